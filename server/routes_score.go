// routes_score.go - Handler fuer Abfragen
// Enthaelt: ShowHandler, ScoreHandler, VocabHandler
package server

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/ngramlm/api"
	"github.com/7blacky7/ngramlm/lm"
)

// ShowHandler verarbeitet /api/show Anfragen
func (s *Server) ShowHandler(c *gin.Context) {
	resp := api.ShowResponse{
		Path:   s.path,
		Type:   s.model.ModelType().String(),
		Order:  s.model.Order(),
		Counts: s.model.Counts(),
	}
	if fi, err := os.Stat(s.path); err == nil {
		resp.Size = fi.Size()
	}
	c.JSON(http.StatusOK, resp)
}

// ScoreHandler verarbeitet /api/score Anfragen
func (s *Server) ScoreHandler(c *gin.Context) {
	var req api.ScoreRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	words := strings.Fields(req.Sentence)
	if len(words) == 0 && !flag(req.EOS) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "sentence is required"})
		return
	}

	total, scores := lm.ScoreSentence(s.model, words, flag(req.BOS), flag(req.EOS))

	resp := api.ScoreResponse{Total: total, Words: make([]api.WordScore, len(scores))}
	notFound := s.model.Vocabulary().NotFound()
	for i, ws := range scores {
		resp.Words[i] = api.WordScore{Word: ws.Word, ID: ws.ID, Prob: ws.Prob, NgramLength: ws.NgramLength}
		if ws.ID == notFound {
			resp.OOV++
		}
	}
	c.JSON(http.StatusOK, resp)
}

// VocabHandler verarbeitet /api/vocab Anfragen
func (s *Server) VocabHandler(c *gin.Context) {
	var req api.VocabRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vocab := s.model.Vocabulary()
	resp := api.VocabResponse{IDs: make([]uint32, len(req.Words))}
	for i, w := range req.Words {
		resp.IDs[i] = vocab.Index(w)
	}
	c.JSON(http.StatusOK, resp)
}

// flag gibt den Wert eines optionalen Bools zurueck, ohne Angabe true
func flag(b *bool) bool {
	return b == nil || *b
}
