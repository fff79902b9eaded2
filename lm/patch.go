// patch.go - Aufgeschobene Backoff-Aufloesung fuer Platzhalter-N-Gramme
//
// Dieses Modul enthaelt:
// - patchList: Auftraege "addiere den Backoff von Kontext X zu Wert Y",
//   gesammelt pro Ziel-Ordnung und spaeter gegen die sortierten Records gemischt
// - blankWeights: Werte der Platzhalter und ihre Auftragslisten
//
// Ein Platzhalter bekommt die Wahrscheinlichkeit seines laengsten vorhandenen
// Suffixes plus die Backoffs der Kontexte dazwischen. Diese Backoffs sind beim
// Erzeugen des Platzhalters noch nicht bekannt, weil die Records in anderer
// Reihenfolge gelesen werden. Ziele, die dabei nicht fortgesetzt waren, werden
// als fortgesetzt markiert. Ziele, die selbst Platzhalter sind, landen in extends.
package lm

import (
	"encoding/binary"
	"math"
	"slices"
)

type patch struct {
	// words ist das Ziel rueckwaerts, die ersten order Eintraege gelten
	words [MaxOrder]WordIndex
	// array und index zeigen auf den Wert, der den Backoff bekommt
	array uint8
	index uint64
}

// patchList sammelt die Auftraege fuer Ziele einer Ordnung
type patchList struct {
	order   int
	patches []patch

	// extends sind Ziele ohne eigenen Record, sortiert
	extends [][MaxOrder]WordIndex
	cursor  int
}

func (l *patchList) add(to []WordIndex, array int, index uint64) {
	p := patch{array: uint8(array), index: index}
	copy(p.words[:], to[:l.order])
	l.patches = append(l.patches, p)
}

func (l *patchList) compare(a, b []WordIndex) int {
	return slices.Compare(a[:l.order], b[:l.order])
}

func (l *patchList) sort() {
	slices.SortStableFunc(l.patches, func(a, b patch) int {
		return l.compare(a.words[:], b.words[:])
	})
}

// applyUnigrams loest die Auftraege gegen das Unigramm-Array auf
func (l *patchList) applyUnigrams(values [][]float32, unigrams []ProbBackoff) {
	l.sort()
	for _, p := range l.patches {
		u := &unigrams[p.words[0]]
		setExtension(&u.Backoff)
		values[p.array][p.index] += u.Backoff
	}
	l.patches = nil
}

// applyRecords mischt die Auftraege gegen die sortierte Record-Datei rr
func (l *patchList) applyRecords(values [][]float32, rr *recordReader) error {
	l.sort()
	if err := rr.rewind(); err != nil {
		return err
	}

	words := make([]WordIndex, l.order)
	var bo [4]byte
	for _, p := range l.patches {
		for rr.ok() {
			rec := rr.data()
			for i := range words {
				words[i] = recordWord(rec, i)
			}
			if l.compare(words, p.words[:]) >= 0 {
				break
			}
			if err := rr.next(); err != nil {
				return err
			}
		}

		if !rr.ok() || l.compare(words, p.words[:]) != 0 {
			l.addExtend(p.words)
			continue
		}

		backoff := recordBackoff(rr.data(), l.order)
		if !HasExtension(backoff) {
			setExtension(&backoff)
			binary.LittleEndian.PutUint32(bo[:], math.Float32bits(backoff))
			if err := rr.overwrite(l.order*wordSize+4, bo[:]); err != nil {
				return err
			}
		}
		values[p.array][p.index] += backoff
	}
	l.patches = nil
	return nil
}

func (l *patchList) addExtend(words [MaxOrder]WordIndex) {
	if n := len(l.extends); n > 0 && l.compare(l.extends[n-1][:], words[:]) == 0 {
		return
	}
	l.extends = append(l.extends, words)
}

// extendsWords meldet, ob words ein Ziel ohne Record war. Aufrufe muessen
// in sortierter Reihenfolge kommen.
func (l *patchList) extendsWords(words []WordIndex) bool {
	for l.cursor < len(l.extends) {
		c := l.compare(l.extends[l.cursor][:], words)
		if c == 0 {
			return true
		}
		if c > 0 {
			return false
		}
		l.cursor++
	}
	return false
}

// =============================================================================
// Platzhalter
// =============================================================================

// blankWeights haelt die Platzhalter-Werte pro Ordnung (values[order-1]) und
// die Auftraege pro Ziel-Ordnung (lists[order-1])
type blankWeights struct {
	values [MaxOrder][]float32
	lists  [MaxOrder]patchList
	read   [MaxOrder]int
}

func newBlankWeights() *blankWeights {
	w := &blankWeights{}
	for i := range w.lists {
		w.lists[i].order = i + 1
	}
	return w
}

// send merkt sich den Wert basis fuer einen Platzhalter der Ordnung order
// und fordert die Backoffs der Kontexte to[:i] fuer i in [begin, order) an
func (w *blankWeights) send(begin, order int, to []WordIndex, basis float32) {
	index := uint64(len(w.values[order-1]))
	for i := begin; i < order; i++ {
		w.lists[i-1].add(to, order-1, index)
	}
	w.values[order-1] = append(w.values[order-1], basis)
}

// obtainBackoffs loest alle Auftraege auf. inputs[k] sind die Records der
// Ordnung k+2.
func (w *blankWeights) obtainBackoffs(totalOrder int, unigrams []ProbBackoff, inputs []*recordReader) error {
	values := w.values[:]
	w.lists[0].applyUnigrams(values, unigrams)
	for i := 1; i < totalOrder-1; i++ {
		if err := w.lists[i].applyRecords(values, inputs[i-1]); err != nil {
			return err
		}
	}
	return nil
}

// getBlank gibt die Gewichte des naechsten Platzhalters der Ordnung order
// zurueck. Platzhalter kommen in derselben Reihenfolge wie bei send.
func (w *blankWeights) getBlank(totalOrder, order int, indices []WordIndex) ProbBackoff {
	prob := w.values[order-1][w.read[order-1]]
	w.read[order-1]++

	backoff := noExtensionBackoff
	if order != totalOrder-1 && w.lists[order-1].extendsWords(indices) {
		backoff = extensionBackoff
	}
	return ProbBackoff{Prob: prob, Backoff: backoff}
}

// probs gibt die Platzhalter-Werte der Ordnung order zurueck
func (w *blankWeights) probs(order int) []float32 {
	return w.values[order-1]
}
