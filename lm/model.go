// model.go - Geladenes Sprachmodell und Bewertung
//
// Dieses Modul enthaelt:
// - search: Gemeinsame Schnittstelle von Trie und Hash-Backend
// - Model: Backing, Vokabular und Backend eines Modells
// - Load: Oeffnet eine Binaerdatei
// - FullScore/FullScoreForgotState/GetState: Bewertung mit Zustand
//
// Ein Modell ist nach dem Laden unveraenderlich, alle Abfragen duerfen
// parallel laufen.
package lm

import (
	"fmt"
	"slices"

	"github.com/7blacky7/ngramlm/fs/lmfile"
)

// search ist ein Backend. Kontexte werden vom neuesten Wort aus durchlaufen,
// node traegt die Position von einer Ordnung zur naechsten.
type search interface {
	lookupUnigram(word WordIndex) (prob, backoff float32, n node)
	unigram(word WordIndex) *ProbBackoff
	middleCount() int
	lookupMiddle(i int, word WordIndex, n *node) (prob, backoff float32, ok bool)
	lookupMiddleNoProb(i int, word WordIndex, n *node) (float32, bool)
	lookupLongest(word WordIndex, n *node) (float32, bool)
	fastMakeNode(words []WordIndex) (node, bool)
}

// Model ist ein geladenes oder gebautes Sprachmodell
type Model struct {
	backing *lmfile.Backing
	header  lmfile.Header
	vocab   *Vocabulary
	search  search

	beginSentence State
}

// vocabRegionSize gibt die Groesse des Vokabular-Bereichs zurueck.
// unigrams enthaelt <unk>, das nicht gespeichert wird.
func vocabRegionSize(t lmfile.ModelType, unigrams uint64, multiplier float32) uint64 {
	if t.IsTrie() {
		return sortedVocabSize(unigrams - 1)
	}
	return probingVocabSize(unigrams-1, multiplier)
}

// searchRegionSize gibt die Groesse des Backend-Bereichs zurueck
func searchRegionSize(t lmfile.ModelType, counts []uint64, multiplier float32, p trieParams) uint64 {
	if t.IsTrie() {
		return trieSize(counts, p)
	}
	return hashedSize(counts, multiplier)
}

// Load oeffnet die Binaerdatei path
func Load(path string, cfg Config) (*Model, error) {
	backing, h, err := lmfile.Open(path, cfg.LoadMethod)
	if err != nil {
		return nil, err
	}

	m, err := load(backing, h, &cfg)
	if err != nil {
		backing.Close()
		return nil, withPath(err, path)
	}
	return m, nil
}

func load(backing *lmfile.Backing, h lmfile.Header, cfg *Config) (*Model, error) {
	if h.Order < 2 || h.Order > MaxOrder {
		return nil, &FormatError{Msg: fmt.Sprintf("this model has order %d but only orders 2 to %d are supported", h.Order, MaxOrder)}
	}
	if h.Counts[0] == 0 {
		return nil, &FormatError{Msg: "the model has no unigrams"}
	}
	t := h.ModelType
	if t != lmfile.HashProbing && !t.IsTrie() {
		return nil, &FormatError{Msg: fmt.Sprintf("model type %q is not supported", t)}
	}

	off := backing.HeaderSize()
	vsize := vocabRegionSize(t, h.Counts[0], h.ProbingMultiplier)
	vregion, err := backing.Region(off, vsize)
	if err != nil {
		return nil, err
	}
	off += vsize

	var table wordTable
	if t.IsTrie() {
		table, err = loadSortedWords(vregion)
	} else {
		table, err = loadProbingWords(vregion)
	}
	if err != nil {
		return nil, &FormatError{Msg: err.Error()}
	}

	var p trieParams
	if t.IsTrie() {
		if p, err = readTrieParams(backing.Tail(off), h.Counts, t); err != nil {
			return nil, err
		}
	}
	ssize := searchRegionSize(t, h.Counts, h.ProbingMultiplier, p)
	sregion, err := backing.Region(off, ssize)
	if err != nil {
		return nil, err
	}
	off += ssize

	var s search
	if t.IsTrie() {
		s, err = setupTrie(sregion, h.Counts, p)
	} else {
		s, err = setupHashed(sregion, h.Counts, h.ProbingMultiplier)
	}
	if err != nil {
		return nil, err
	}

	if cfg.EnumerateVocab != nil {
		if !h.HasVocabulary {
			return nil, &FormatError{Msg: "vocabulary enumeration was requested but the file does not contain the vocabulary strings, rebuild it with the vocabulary"}
		}
		if err := readWords(backing.Tail(off), cfg.EnumerateVocab); err != nil {
			return nil, &FormatError{Msg: err.Error()}
		}
	}

	return newModel(backing, h, newVocabulary(table, WordIndex(h.Counts[0])), s), nil
}

func newModel(backing *lmfile.Backing, h lmfile.Header, vocab *Vocabulary, s search) *Model {
	m := &Model{backing: backing, header: h, vocab: vocab, search: s}
	m.beginSentence = State{Length: 1}
	m.beginSentence.Words[0] = vocab.BeginSentence()
	_, m.beginSentence.Backoff[0], _ = s.lookupUnigram(vocab.BeginSentence())
	return m
}

// Close gibt den Speicher frei, danach darf das Modell nicht mehr benutzt werden
func (m *Model) Close() error {
	return m.backing.Close()
}

// Order gibt die hoechste Ordnung zurueck
func (m *Model) Order() int {
	return m.header.Order
}

// Vocabulary gibt das Vokabular zurueck
func (m *Model) Vocabulary() *Vocabulary {
	return m.vocab
}

// Counts gibt die Anzahl N-Gramme pro Ordnung zurueck, Platzhalter eingeschlossen
func (m *Model) Counts() []uint64 {
	return slices.Clone(m.header.Counts)
}

// ModelType gibt das Backend zurueck
func (m *Model) ModelType() lmfile.ModelType {
	return m.header.ModelType
}

// BeginSentenceState ist der Zustand nach <s>
func (m *Model) BeginSentenceState() State {
	return m.beginSentence
}

// NullContextState ist der leere Zustand
func (m *Model) NullContextState() State {
	return State{}
}

// =============================================================================
// Bewertung
// =============================================================================

// FullScore bewertet word nach dem Zustand in
func (m *Model) FullScore(in State, word WordIndex) (FullScoreReturn, State) {
	var out State
	ret := m.scoreExceptBackoff(in.Words[:in.Length], m.vocab.clamp(word), &out)
	for i := int(ret.NgramLength) - 1; i < int(in.Length); i++ {
		ret.Prob += in.Backoff[i]
	}
	return ret, out
}

// Score ist FullScore ohne die Laenge
func (m *Model) Score(in State, word WordIndex) (float32, State) {
	ret, out := m.FullScore(in, word)
	return ret.Prob, out
}

// FullScoreForgotState bewertet word nach context ohne vorherigen Zustand.
// context[0] ist das Wort direkt vor word.
func (m *Model) FullScoreForgotState(context []WordIndex, word WordIndex) (FullScoreReturn, State) {
	context = m.clampContext(context)

	var out State
	ret := m.scoreExceptBackoff(context, m.vocab.clamp(word), &out)

	// Backoffs der Kontexte ab Laenge start bis len(context)
	start := int(ret.NgramLength)
	if len(context) < start {
		return ret, out
	}

	var n node
	if start <= 1 {
		var backoff float32
		_, backoff, n = m.search.lookupUnigram(context[0])
		ret.Prob += backoff
		start = 2
	} else {
		var ok bool
		if n, ok = m.search.fastMakeNode(context[:start-1]); !ok {
			return ret, out
		}
	}

	for i := start - 1; i < len(context); i++ {
		backoff, ok := m.search.lookupMiddleNoProb(i-1, context[i], &n)
		if !ok {
			break
		}
		ret.Prob += backoff
	}
	return ret, out
}

// GetState gibt den Zustand nach context zurueck, context[0] ist das neueste Wort
func (m *Model) GetState(context []WordIndex) State {
	context = m.clampContext(context)

	var out State
	if len(context) == 0 {
		return out
	}

	_, backoff, n := m.search.lookupUnigram(context[0])
	out.Backoff[0] = backoff
	if HasExtension(backoff) {
		out.Length = 1
	}
	for i := 1; i < len(context); i++ {
		backoff, ok := m.search.lookupMiddleNoProb(i-1, context[i], &n)
		if !ok {
			break
		}
		out.Backoff[i] = backoff
		if HasExtension(backoff) {
			out.Length = uint8(i + 1)
		}
	}
	copy(out.Words[:out.Length], context)
	return out
}

// clampContext kuerzt auf Order-1 Woerter und bildet fremde IDs auf <unk> ab
func (m *Model) clampContext(context []WordIndex) []WordIndex {
	context = context[:min(len(context), m.header.Order-1)]
	for _, w := range context {
		if m.vocab.clamp(w) != w {
			clamped := make([]WordIndex, len(context))
			for i, w := range context {
				clamped[i] = m.vocab.clamp(w)
			}
			return clamped
		}
	}
	return context
}

// scoreExceptBackoff sucht das laengste N-Gramm aus word und context und
// schreibt den neuen Zustand nach out. Die Backoffs des alten Zustands
// fehlen noch in der Wahrscheinlichkeit.
func (m *Model) scoreExceptBackoff(context []WordIndex, word WordIndex, out *State) FullScoreReturn {
	ret := FullScoreReturn{NgramLength: 1}

	prob, backoff, n := m.search.lookupUnigram(word)
	ret.Prob = prob
	out.Backoff[0] = backoff
	out.Length = 0
	if HasExtension(backoff) {
		out.Length = 1
	}
	out.Words[0] = word
	if len(context) == 0 {
		return ret
	}

	middles := m.search.middleCount()
	i := 0
	for ; ; i++ {
		if i == len(context) {
			copyRemainingHistory(context, out)
			return ret
		}
		if i == middles {
			break
		}

		revert := ret.Prob
		prob, backoff, ok := m.search.lookupMiddle(i, context[i], &n)
		if !ok {
			copyRemainingHistory(context, out)
			return ret
		}
		out.Backoff[i+1] = backoff
		if isBlank(prob) {
			ret.Prob = revert
			continue
		}
		ret.Prob = prob
		ret.NgramLength = uint8(i + 2)
		if HasExtension(backoff) {
			out.Length = uint8(i + 2)
		}
	}

	if prob, ok := m.search.lookupLongest(context[i], &n); ok {
		ret.Prob = prob
		ret.NgramLength = uint8(m.header.Order)
	}
	copyRemainingHistory(context, out)
	return ret
}

// copyRemainingHistory uebernimmt die Kontextwoerter, die im neuen Zustand gelten
func copyRemainingHistory(context []WordIndex, out *State) {
	if out.Length > 1 {
		copy(out.Words[1:out.Length], context[:out.Length-1])
	}
}
