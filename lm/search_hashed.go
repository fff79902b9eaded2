// search_hashed.go - Hash-Backend mit offener Adressierung
//
// Dieses Modul enthaelt:
// - combineWordHash: Verkettung der Wort-IDs zu einem 64-Bit Schluessel
// - hashedSearch: Unigramm-Array plus eine Probing-Tabelle pro Ordnung
// - buildHashed: Aufbau aus den N-Gramm-Abschnitten einer ARPA-Datei
//
// Der Schluessel eines N-Gramms beginnt beim letzten Wort und geht nach
// links, so dass jeder Schritt der Abfrage den vorigen Hash erweitert.
package lm

import (
	"errors"
	"fmt"

	"github.com/7blacky7/ngramlm/arpa"
	"github.com/7blacky7/ngramlm/fs/lmfile"
	"github.com/7blacky7/ngramlm/util/probing"
)

func combineWordHash(current uint64, next WordIndex) uint64 {
	return (current * 8978948897894561157) ^ (uint64(1+next) * 17894857484156487943)
}

type hashedMiddle struct {
	Key uint64
	ProbBackoff
}

func (e hashedMiddle) GetKey() uint64 { return e.Key }

type hashedLongest struct {
	Key  uint64
	Prob float32
	_    uint32
}

func (e hashedLongest) GetKey() uint64 { return e.Key }

func hashedUnigramSize(count uint64) uint64 {
	return lmfile.Align8(count * 8)
}

// hashedSize gibt die Groesse des Backend-Bereichs zurueck
func hashedSize(counts []uint64, multiplier float32) uint64 {
	size := hashedUnigramSize(counts[0])
	for _, c := range counts[1 : len(counts)-1] {
		size += probing.Size[hashedMiddle](c, multiplier)
	}
	return size + probing.Size[hashedLongest](counts[len(counts)-1], multiplier)
}

type hashedSearch struct {
	unigrams []ProbBackoff
	middles  []*probing.Table[hashedMiddle]
	longest  *probing.Table[hashedLongest]
}

func setupHashed(search []byte, counts []uint64, multiplier float32) (*hashedSearch, error) {
	h := &hashedSearch{}

	off := hashedUnigramSize(counts[0])
	unigrams, err := lmfile.View[ProbBackoff](search[:off])
	if err != nil {
		return nil, err
	}
	h.unigrams = unigrams[:counts[0]]

	for _, c := range counts[1 : len(counts)-1] {
		size := probing.Size[hashedMiddle](c, multiplier)
		buckets, err := lmfile.View[hashedMiddle](search[off : off+size])
		if err != nil {
			return nil, err
		}
		h.middles = append(h.middles, probing.New(buckets))
		off += size
	}

	size := probing.Size[hashedLongest](counts[len(counts)-1], multiplier)
	buckets, err := lmfile.View[hashedLongest](search[off : off+size])
	if err != nil {
		return nil, err
	}
	h.longest = probing.New(buckets)
	return h, nil
}

func (h *hashedSearch) lookupUnigram(word WordIndex) (prob, backoff float32, n node) {
	u := h.unigrams[word]
	return u.Prob, u.Backoff, node{begin: uint64(word)}
}

func (h *hashedSearch) unigram(word WordIndex) *ProbBackoff {
	return &h.unigrams[word]
}

func (h *hashedSearch) middleCount() int {
	return len(h.middles)
}

func (h *hashedSearch) lookupMiddle(i int, word WordIndex, n *node) (prob, backoff float32, ok bool) {
	n.begin = combineWordHash(n.begin, word)
	e, ok := h.middles[i].Find(n.begin)
	if !ok {
		return 0, 0, false
	}
	return e.Prob, e.Backoff, true
}

func (h *hashedSearch) lookupMiddleNoProb(i int, word WordIndex, n *node) (float32, bool) {
	n.begin = combineWordHash(n.begin, word)
	e, ok := h.middles[i].Find(n.begin)
	if !ok {
		return 0, false
	}
	return e.Backoff, true
}

func (h *hashedSearch) lookupLongest(word WordIndex, n *node) (float32, bool) {
	n.begin = combineWordHash(n.begin, word)
	e, ok := h.longest.Find(n.begin)
	if !ok {
		return 0, false
	}
	return e.Prob, true
}

// fastMakeNode prueft nicht, ob der Kontext existiert
func (h *hashedSearch) fastMakeNode(words []WordIndex) (node, bool) {
	n := node{begin: uint64(words[0])}
	for _, w := range words[1:] {
		n.begin = combineWordHash(n.begin, w)
	}
	return n, true
}

// =============================================================================
// Aufbau
// =============================================================================

var errHashedOverflow = errors.New("avoid pruning n-grams like \"bar baz quux\" when \"foo bar baz quux\" is still in the model; " +
	"the probing model covers these with spare space in its hash tables, increase the probing multiplier (-p) to add more")

// buildHashed liest alle Ordnungen ab 2 aus r in h
func buildHashed(r *arpa.Reader, counts []uint64, vocab *Vocabulary, h *hashedSearch, warn *positiveProbWarn) error {
	order := len(counts)
	ids := make([]WordIndex, order)
	keys := make([]uint64, order-1)

	for n := 2; n <= order; n++ {
		if err := r.ReadHeader(n); err != nil {
			return err
		}

		for range counts[n-1] {
			e, err := r.ReadNGram(n)
			if err != nil {
				return err
			}
			weights, err := readWeights(e, warn, r)
			if err != nil {
				return err
			}

			// IDs rueckwaerts: ids[0] ist das letzte Wort
			for i, w := range e.Words {
				ids[n-1-i] = vocab.Index(w)
			}
			keys[0] = combineWordHash(uint64(ids[0]), ids[1])
			for j := 1; j < n-1; j++ {
				keys[j] = combineWordHash(keys[j-1], ids[j+1])
			}

			if n == order {
				_, err = h.longest.Insert(hashedLongest{Key: keys[n-2], Prob: weights.Prob})
			} else {
				_, err = h.middles[n-2].Insert(hashedMiddle{Key: keys[n-2], ProbBackoff: weights})
			}
			if err != nil {
				return hashedInsertError(err)
			}

			// laengstes vorhandenes Suffix suchen, fehlende dazwischen ergaenzen
			lower := n - 3
			var lowerProb float32
			for ; lower >= 0; lower-- {
				if found, ok := h.middles[lower].Find(keys[lower]); ok {
					lowerProb = found.Prob
					break
				}
			}
			if lower < 0 {
				lowerProb = h.unigrams[ids[0]].Prob
			}
			if lower != n-3 {
				if err := h.fixBlanks(lower, lowerProb, n, keys, ids); err != nil {
					return err
				}
			}

			if err := h.activateContext(ids[:n]); err != nil {
				return &FormatError{Path: r.Name(), Msg: fmt.Sprintf("line %d: %s", r.LineNumber(), err)}
			}
		}
	}
	return nil
}

// fixBlanks ergaenzt die fehlenden Suffixe ueber der Ordnung lower+2.
// Ihre Wahrscheinlichkeit ist die des gefundenen Suffixes plus die
// Backoffs der Kontexte, die dazwischen liegen.
func (h *hashedSearch) fixBlanks(lower int, lowerProb float32, n int, keys []uint64, ids []WordIndex) error {
	blank := ProbBackoff{Prob: lowerProb, Backoff: noExtensionBackoff}

	fix := lower + 1
	backoffHash := combineWordHash(uint64(ids[1]), ids[2])
	if fix == 0 {
		context := &h.unigrams[ids[1]]
		blank.Prob += context.Backoff
		setExtension(&context.Backoff)
		if _, err := h.middles[0].Insert(hashedMiddle{Key: keys[0], ProbBackoff: blank}); err != nil {
			return hashedInsertError(err)
		}
		fix = 1
	} else {
		for i := 3; i < fix+2; i++ {
			backoffHash = combineWordHash(backoffHash, ids[i])
		}
	}

	for ; fix <= n-3; fix++ {
		if context, ok := h.middles[fix-1].Find(backoffHash); ok {
			setExtension(&context.Backoff)
			blank.Prob += context.Backoff
		}
		if _, err := h.middles[fix].Insert(hashedMiddle{Key: keys[fix], ProbBackoff: blank}); err != nil {
			return hashedInsertError(err)
		}
		backoffHash = combineWordHash(backoffHash, ids[fix+2])
	}
	return nil
}

// activateContext markiert den Kontext ids[1:] als fortgesetzt
func (h *hashedSearch) activateContext(ids []WordIndex) error {
	if len(ids) == 2 {
		setExtension(&h.unigrams[ids[1]].Backoff)
		return nil
	}

	hash := uint64(ids[1])
	for _, w := range ids[2:] {
		hash = combineWordHash(hash, w)
	}
	context, ok := h.middles[len(ids)-3].Find(hash)
	if !ok {
		return fmt.Errorf("the context of every %d-gram should appear as a %d-gram", len(ids), len(ids)-1)
	}
	setExtension(&context.Backoff)
	return nil
}

func hashedInsertError(err error) error {
	if errors.Is(err, probing.ErrSizing) {
		return fmt.Errorf("%w: %w", err, errHashedOverflow)
	}
	return err
}
