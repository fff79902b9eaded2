// api.go - Abfragen ueber Wort-Strings
//
// Dieses Modul enthaelt:
// - Classify: Erkennt Binaerdateien und ihren Modelltyp
// - Score/ScoreStateless: Ein Wort mit bzw. ohne Zustand
// - ScoreSentence: Ein ganzer Satz mit optionalem <s> und </s>
package lm

import (
	"github.com/7blacky7/ngramlm/fs/lmfile"
)

// Classify meldet, ob path eine Binaerdatei ist, und gibt ihren Typ zurueck.
// ARPA-Dateien liefern false ohne Fehler.
func Classify(path string) (lmfile.ModelType, bool, error) {
	binary, err := lmfile.IsBinary(path)
	if err != nil || !binary {
		return 0, false, err
	}
	t, err := lmfile.Classify(path)
	if err != nil {
		return 0, false, err
	}
	return t, true, nil
}

// Score bewertet word nach dem Zustand in
func Score(m *Model, in State, word string) (FullScoreReturn, State) {
	return m.FullScore(in, m.Vocabulary().Index(word))
}

// ScoreStateless bewertet word nach context (in Textreihenfolge)
func ScoreStateless(m *Model, context []string, word string) FullScoreReturn {
	vocab := m.Vocabulary()
	n := min(len(context), m.Order()-1)
	ids := make([]WordIndex, n)
	for i := range ids {
		ids[i] = vocab.Index(context[len(context)-1-i])
	}
	ret, _ := m.FullScoreForgotState(ids, vocab.Index(word))
	return ret
}

// WordScore ist die Bewertung eines Wortes im Satz
type WordScore struct {
	Word        string
	ID          WordIndex
	Prob        float32
	NgramLength uint8
}

// ScoreSentence bewertet words nacheinander. bos beginnt mit <s>, eos haengt
// </s> an. Zurueck kommen die Summe und die einzelnen Werte.
func ScoreSentence(m *Model, words []string, bos, eos bool) (float32, []WordScore) {
	vocab := m.Vocabulary()
	state := m.NullContextState()
	if bos {
		state = m.BeginSentenceState()
	}

	scores := make([]WordScore, 0, len(words)+1)
	var total float32
	add := func(word string, id WordIndex) {
		var ret FullScoreReturn
		ret, state = m.FullScore(state, id)
		total += ret.Prob
		scores = append(scores, WordScore{Word: word, ID: id, Prob: ret.Prob, NgramLength: ret.NgramLength})
	}

	for _, word := range words {
		add(word, vocab.Index(word))
	}
	if eos {
		add("</s>", vocab.EndSentence())
	}
	return total, scores
}
