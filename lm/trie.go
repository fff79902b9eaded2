// trie.go - Bit-gepackter Trie
//
// Dieses Modul enthaelt:
// - unigramValue: Unigramm-Array mit Zeiger auf die Bigramme
// - bitPacked: Gemeinsame Basis der gepackten Tabellen (Wort-Feld, Suche)
// - bitPackedMiddle: [Wort][Gewichte][Kind-Zeiger] pro Eintrag
// - bitPackedLongest: [Wort][Prob] fuer die hoechste Ordnung
// - trieSearch: Layout und Abfragen des kompletten Tries
//
// Layout im Backend-Bereich:
// [Codebuecher][Unigramme][mittlere Ordnungen...][hoechste Ordnung]
// Geschwister liegen nach Wort-ID sortiert hintereinander, jeder Eintrag
// zeigt auf den Anfang seiner Kinder, das Ende ist der Zeiger des Nachfolgers.
package lm

import (
	"fmt"

	"github.com/7blacky7/ngramlm/fs/lmfile"
	"github.com/7blacky7/ngramlm/util/bitpack"
	"github.com/7blacky7/ngramlm/util/sorteduniform"
)

// node ist ein Bereich [begin, end) der naechsten Ordnung.
// Beim Hash-Backend steht in begin der Hash des bisherigen Kontexts.
type node struct {
	begin, end uint64
}

// unigramValue liegt (count+1) mal im Speicher, der letzte Eintrag
// traegt nur das Ende der Bigramme
type unigramValue struct {
	Weights ProbBackoff
	Next    uint64
}

func unigramSize(count uint64) uint64 {
	return (count + 1) * 16
}

const maxEntries = 1 << 57

// =============================================================================
// Gemeinsame Basis
// =============================================================================

type bitPacked struct {
	base        []byte
	word        bitpack.BitsMask
	totalBits   uint64
	maxVocab    uint64
	insertIndex uint64
}

// baseSize: ein Eintrag mehr fuer den letzten Zeiger, 8 Bytes Reserve fuer ReadInt57
func baseSize(entries, maxVocab uint64, remainingBits uint8) uint64 {
	total := uint64(bitpack.RequiredBits(maxVocab)) + uint64(remainingBits)
	return ((1+entries)*total+7)/8 + 8
}

func (b *bitPacked) init(base []byte, maxVocab uint64, remainingBits uint8) error {
	b.word = bitpack.FromMax(maxVocab)
	if err := bitpack.Check(b.word.Bits); err != nil {
		return fmt.Errorf("word indices up to %d: %w", maxVocab, err)
	}
	b.base = base
	b.totalBits = uint64(b.word.Bits) + uint64(remainingBits)
	b.maxVocab = maxVocab
	return nil
}

func (b *bitPacked) key(i int) uint64 {
	return bitpack.ReadInt57(b.base, uint64(i)*b.totalBits, b.word.Mask)
}

// find sucht word unter den Geschwistern in n
func (b *bitPacked) find(word WordIndex, n node) (uint64, bool) {
	i, ok := sorteduniform.BoundedFind(b.key, int(n.begin)-1, 0, int(n.end), b.maxVocab, uint64(word))
	return uint64(i), ok
}

// =============================================================================
// Mittlere Ordnungen
// =============================================================================

type bitPackedMiddle struct {
	bitPacked
	quant      middleQuant
	bhiksha    bhiksha
	nextSource *bitPacked
}

func middleSize(quantBits uint8, entries, maxVocab, maxNext uint64, p bhikshaParams) uint64 {
	return bhikshaSize(p, entries+1, maxNext) + baseSize(entries, maxVocab, quantBits+bhikshaInlineBits(p, entries+1, maxNext))
}

// newBitPackedMiddle legt die Tabelle in region an. off ist die Position von
// region relativ zu einem 8-Byte ausgerichteten Anfang.
func newBitPackedMiddle(region []byte, off uint64, quant middleQuant, entries, maxVocab, maxNext uint64, nextSource *bitPacked, p bhikshaParams) (*bitPackedMiddle, error) {
	if entries+1 >= maxEntries || maxNext >= maxEntries {
		return nil, fmt.Errorf("tables with more than %d n-grams of one order are not supported", uint64(maxEntries))
	}

	bsize := bhikshaSize(p, entries+1, maxNext)
	pad := lmfile.Align8(off) - off
	bh, err := newBhiksha(p, region[min(pad, bsize):bsize], entries+1, maxNext)
	if err != nil {
		return nil, err
	}

	m := &bitPackedMiddle{quant: quant, bhiksha: bh, nextSource: nextSource}
	if err := m.init(region[bsize:], maxVocab, quant.totalBits()+bh.inlineBits()); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *bitPackedMiddle) insert(word WordIndex, prob, backoff float32) {
	at := m.insertIndex * m.totalBits
	bitpack.WriteInt57(m.base, at, uint64(word))
	at += uint64(m.word.Bits)
	m.quant.write(m.base, at, prob, backoff)
	at += uint64(m.quant.totalBits())
	m.bhiksha.writeNext(m.base, at, m.insertIndex, m.nextSource.insertIndex)
	m.insertIndex++
}

func (m *bitPackedMiddle) find(word WordIndex, n *node) (prob, backoff float32, ok bool) {
	index, ok := m.bitPacked.find(word, *n)
	if !ok {
		return 0, 0, false
	}
	at := index*m.totalBits + uint64(m.word.Bits)
	prob, backoff = m.quant.read(m.base, at)
	at += uint64(m.quant.totalBits())
	*n = m.bhiksha.readNext(m.base, at, index, uint8(m.totalBits))
	return prob, backoff, true
}

func (m *bitPackedMiddle) findNoProb(word WordIndex, n *node) (float32, bool) {
	index, ok := m.bitPacked.find(word, *n)
	if !ok {
		return 0, false
	}
	at := index*m.totalBits + uint64(m.word.Bits)
	backoff := m.quant.readBackoff(m.base, at)
	at += uint64(m.quant.totalBits())
	*n = m.bhiksha.readNext(m.base, at, index, uint8(m.totalBits))
	return backoff, true
}

// finish schreibt den Zeiger hinter den letzten Eintrag
func (m *bitPackedMiddle) finish(nextEnd uint64) error {
	at := (m.insertIndex+1)*m.totalBits - uint64(m.bhiksha.inlineBits())
	m.bhiksha.writeNext(m.base, at, m.insertIndex, nextEnd)
	return m.bhiksha.finish()
}

// =============================================================================
// Hoechste Ordnung
// =============================================================================

type bitPackedLongest struct {
	bitPacked
	quant longestQuant
}

func longestSize(quantBits uint8, entries, maxVocab uint64) uint64 {
	return baseSize(entries, maxVocab, quantBits)
}

func newBitPackedLongest(region []byte, quant longestQuant, maxVocab uint64) (*bitPackedLongest, error) {
	l := &bitPackedLongest{quant: quant}
	if err := l.init(region, maxVocab, quant.totalBits()); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *bitPackedLongest) insert(word WordIndex, prob float32) {
	at := l.insertIndex * l.totalBits
	bitpack.WriteInt57(l.base, at, uint64(word))
	l.quant.write(l.base, at+uint64(l.word.Bits), prob)
	l.insertIndex++
}

func (l *bitPackedLongest) find(word WordIndex, n node) (float32, bool) {
	index, ok := l.bitPacked.find(word, n)
	if !ok {
		return 0, false
	}
	return l.quant.read(l.base, index*l.totalBits+uint64(l.word.Bits)), true
}

// =============================================================================
// Trie
// =============================================================================

// trieParams bestimmen das Layout eines Tries
type trieParams struct {
	quantized   bool
	probBits    uint8
	backoffBits uint8
	bhiksha     bhikshaParams
}

func trieParamsFromConfig(t lmfile.ModelType, cfg *Config) trieParams {
	return trieParams{
		quantized:   t.Quantized(),
		probBits:    cfg.ProbBits,
		backoffBits: cfg.BackoffBits,
		bhiksha:     bhikshaParams{array: t.ArrayCompressed(), bits: cfg.ArrayBits, cost: cfg.BhikshaEntryCost},
	}
}

func (p trieParams) middleBits() uint8 {
	if p.quantized {
		return p.probBits + p.backoffBits
	}
	return dontMiddle{}.totalBits()
}

func (p trieParams) longestBits() uint8 {
	if p.quantized {
		return p.probBits
	}
	return dontLongest{}.totalBits()
}

// trieSize gibt die Groesse des Backend-Bereichs zurueck
func trieSize(counts []uint64, p trieParams) uint64 {
	order := len(counts)
	size := quantSize(p.quantized, order, p.probBits, p.backoffBits) + unigramSize(counts[0])
	for i := 2; i < order; i++ {
		size += middleSize(p.middleBits(), counts[i-1], counts[0], counts[i], p.bhiksha)
	}
	return size + longestSize(p.longestBits(), counts[order-1], counts[0])
}

// readTrieParams liest Quantisierung und Zeiger-Kompression aus einer geladenen Datei
func readTrieParams(search []byte, counts []uint64, t lmfile.ModelType) (trieParams, error) {
	p := trieParams{quantized: t.Quantized(), bhiksha: bhikshaParams{array: t.ArrayCompressed()}}
	if p.quantized {
		var err error
		if p.probBits, p.backoffBits, err = readQuantHeader(search); err != nil {
			return p, err
		}
	}
	if p.bhiksha.array && len(counts) > 2 {
		off := quantSize(p.quantized, len(counts), p.probBits, p.backoffBits) + unigramSize(counts[0])
		if off > uint64(len(search)) {
			return p, &FormatError{Msg: "file too small for the trie"}
		}
		var err error
		if p.bhiksha.bits, p.bhiksha.cost, err = readBhikshaHeader(search[off:]); err != nil {
			return p, err
		}
	}
	return p, nil
}

type trieSearch struct {
	quant    quantizer
	unigrams []unigramValue
	middles  []*bitPackedMiddle
	longest  *bitPackedLongest
}

// setupTrie verteilt search auf die Tabellen. search muss trieSize Bytes haben.
func setupTrie(search []byte, counts []uint64, p trieParams) (*trieSearch, error) {
	order := len(counts)
	t := &trieSearch{quant: dontQuantize{}}

	off := quantSize(p.quantized, order, p.probBits, p.backoffBits)
	if p.quantized {
		q, err := newSeparatelyQuantize(search[:off], order, p.probBits, p.backoffBits)
		if err != nil {
			return nil, err
		}
		t.quant = q
	}

	size := unigramSize(counts[0])
	unigrams, err := lmfile.View[unigramValue](search[off : off+size])
	if err != nil {
		return nil, err
	}
	t.unigrams = unigrams
	off += size

	type span struct{ off, size uint64 }
	spans := make([]span, 0, order-2)
	for i := 2; i < order; i++ {
		size := middleSize(p.middleBits(), counts[i-1], counts[0], counts[i], p.bhiksha)
		spans = append(spans, span{off, size})
		off += size
	}

	t.longest, err = newBitPackedLongest(search[off:off+longestSize(p.longestBits(), counts[order-1], counts[0])], t.quant.longest(), counts[0])
	if err != nil {
		return nil, err
	}

	// von hinten, damit die naechste Ordnung schon existiert
	t.middles = make([]*bitPackedMiddle, order-2)
	next := &t.longest.bitPacked
	for i := order - 1; i >= 2; i-- {
		s := spans[i-2]
		m, err := newBitPackedMiddle(search[s.off:s.off+s.size], s.off, t.quant.middle(i), counts[i-1], counts[0], counts[i], next, p.bhiksha)
		if err != nil {
			return nil, err
		}
		t.middles[i-2] = m
		next = &m.bitPacked
	}
	return t, nil
}

func (t *trieSearch) lookupUnigram(word WordIndex) (prob, backoff float32, n node) {
	u := &t.unigrams[word]
	return u.Weights.Prob, u.Weights.Backoff, node{begin: u.Next, end: t.unigrams[word+1].Next}
}

func (t *trieSearch) unigram(word WordIndex) *ProbBackoff {
	return &t.unigrams[word].Weights
}

func (t *trieSearch) middleCount() int {
	return len(t.middles)
}

func (t *trieSearch) lookupMiddle(i int, word WordIndex, n *node) (prob, backoff float32, ok bool) {
	return t.middles[i].find(word, n)
}

func (t *trieSearch) lookupMiddleNoProb(i int, word WordIndex, n *node) (float32, bool) {
	return t.middles[i].findNoProb(word, n)
}

func (t *trieSearch) lookupLongest(word WordIndex, n *node) (float32, bool) {
	return t.longest.find(word, *n)
}

func (t *trieSearch) fastMakeNode(words []WordIndex) (node, bool) {
	_, _, n := t.lookupUnigram(words[0])
	for i, w := range words[1:] {
		if _, ok := t.middles[i].findNoProb(w, &n); !ok {
			return n, false
		}
	}
	return n, true
}
