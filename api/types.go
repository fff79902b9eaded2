// types.go - Anfragen und Antworten der HTTP-Schnittstelle
// Enthaelt: StatusError, ShowResponse, ScoreRequest/-Response, VocabRequest/-Response
package api

import "fmt"

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the ngramlm server logs for details"
	}
}

// ShowResponse beschreibt das geladene Modell
type ShowResponse struct {
	Path   string   `json:"path"`
	Type   string   `json:"type"`
	Order  int      `json:"order"`
	Counts []uint64 `json:"counts"`
	// Size ist die Groesse der Binaerdatei, 0 bei Modellen im Speicher
	Size int64 `json:"size,omitempty"`
}

// ScoreRequest bewertet einen Satz. Woerter sind durch Leerzeichen getrennt.
type ScoreRequest struct {
	Sentence string `json:"sentence"`

	// BOS und EOS sind ohne Angabe true
	BOS *bool `json:"bos,omitempty"`
	EOS *bool `json:"eos,omitempty"`
}

// WordScore ist die Bewertung eines Wortes
type WordScore struct {
	Word        string  `json:"word"`
	ID          uint32  `json:"id"`
	Prob        float32 `json:"prob"`
	NgramLength uint8   `json:"ngram_length"`
}

// ScoreResponse enthaelt die Summe der log10-Wahrscheinlichkeiten und die Einzelwerte
type ScoreResponse struct {
	Total float32     `json:"total"`
	OOV   int         `json:"oov"`
	Words []WordScore `json:"words"`
}

// VocabRequest fragt die IDs von Woertern ab
type VocabRequest struct {
	Words []string `json:"words"`
}

// VocabResponse enthaelt die IDs in der Reihenfolge der Anfrage, 0 ist <unk>
type VocabResponse struct {
	IDs []uint32 `json:"ids"`
}
