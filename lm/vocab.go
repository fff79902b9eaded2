// vocab.go - Vokabular: Wort -> ID ueber 64-Bit Hashes
//
// Dieses Modul enthaelt:
// - Vocabulary: Lesesicht fuer Abfragen (Index, Sonderwoerter, Bound)
// - sortedWords: Sortierte Hashes, ID = Rang + 1 (Trie-Modelle)
// - probingWords: Hash-Tabelle Hash -> ID (Hash-Modelle)
// - vocabBuilder: Aufbau beider Varianten aus den Unigrammen
// - EnumerateVocab: Callback fuer (ID, Wort)-Paare
package lm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/7blacky7/ngramlm/fs/lmfile"
	"github.com/7blacky7/ngramlm/util/probing"
	"github.com/7blacky7/ngramlm/util/sorteduniform"
)

// EnumerateVocab bekommt jedes Wort des Vokabulars mit seiner ID
type EnumerateVocab interface {
	Add(index WordIndex, word string)
}

// EnumerateVocabFunc erlaubt normale Funktionen als EnumerateVocab
type EnumerateVocabFunc func(index WordIndex, word string)

func (f EnumerateVocabFunc) Add(index WordIndex, word string) {
	f(index, word)
}

// hashWord ist der Vokabular-Hash, er ist Teil des Dateiformats
func hashWord(word string) uint64 {
	return xxhash.Sum64String(word)
}

var (
	unknownHash    = hashWord("<unk>")
	unknownCapHash = hashWord("<UNK>")
)

func isUnknownHash(h uint64) bool {
	return h == unknownHash || h == unknownCapHash
}

// wordTable bildet Hashes auf IDs ab
type wordTable interface {
	find(hash uint64) (WordIndex, bool)
}

// Vocabulary ist das unveraenderliche Vokabular eines geladenen Modells
type Vocabulary struct {
	table         wordTable
	bound         WordIndex
	beginSentence WordIndex
	endSentence   WordIndex
}

func newVocabulary(table wordTable, bound WordIndex) *Vocabulary {
	v := &Vocabulary{table: table, bound: bound}
	v.beginSentence = v.Index("<s>")
	v.endSentence = v.Index("</s>")
	return v
}

// Index gibt die ID von word zurueck, unbekannte Woerter bekommen 0
func (v *Vocabulary) Index(word string) WordIndex {
	id, _ := v.lookup(hashWord(word))
	return id
}

func (v *Vocabulary) lookup(h uint64) (WordIndex, bool) {
	if isUnknownHash(h) {
		return 0, true
	}
	return v.table.find(h)
}

// BeginSentence gibt die ID von <s> zurueck
func (v *Vocabulary) BeginSentence() WordIndex {
	return v.beginSentence
}

// EndSentence gibt die ID von </s> zurueck
func (v *Vocabulary) EndSentence() WordIndex {
	return v.endSentence
}

// NotFound ist die ID fuer unbekannte Woerter
func (v *Vocabulary) NotFound() WordIndex {
	return 0
}

// Bound ist eins mehr als die groesste gueltige ID
func (v *Vocabulary) Bound() WordIndex {
	return v.bound
}

// clamp bildet IDs ausserhalb des Vokabulars auf <unk> ab
func (v *Vocabulary) clamp(w WordIndex) WordIndex {
	if w >= v.bound {
		return 0
	}
	return w
}

// =============================================================================
// Sortierte Variante
// =============================================================================

// sortedWords haelt die sortierten Hashes ohne <unk>
type sortedWords struct {
	keys []uint64
}

func (s sortedWords) find(h uint64) (WordIndex, bool) {
	i, ok := sorteduniform.FindSlice(s.keys, h)
	if !ok {
		return 0, false
	}
	return WordIndex(i + 1), true
}

// sortedVocabSize: Anzahl + ein Hash pro Eintrag
func sortedVocabSize(entries uint64) uint64 {
	return 8 + 8*entries
}

func loadSortedWords(region []byte) (sortedWords, error) {
	if len(region) < 8 {
		return sortedWords{}, errors.New("vocabulary region too small")
	}
	n := binary.LittleEndian.Uint64(region)
	if 8+8*n > uint64(len(region)) {
		return sortedWords{}, fmt.Errorf("vocabulary claims %d words but the region holds %d", n, (len(region)-8)/8)
	}
	keys, err := lmfile.View[uint64](region[8 : 8+8*n])
	if err != nil {
		return sortedWords{}, err
	}
	return sortedWords{keys: keys}, nil
}

// =============================================================================
// Hash-Variante
// =============================================================================

type vocabEntry struct {
	Key uint64
	ID  WordIndex
	_   uint32
}

func (e vocabEntry) GetKey() uint64 {
	return e.Key
}

type probingWords struct {
	table *probing.Table[vocabEntry]
}

func (p probingWords) find(h uint64) (WordIndex, bool) {
	e, ok := p.table.Find(h)
	if !ok {
		return 0, false
	}
	return e.ID, true
}

func probingVocabSize(entries uint64, multiplier float32) uint64 {
	return probing.Size[vocabEntry](entries, multiplier)
}

func loadProbingWords(region []byte) (probingWords, error) {
	buckets, err := lmfile.View[vocabEntry](region)
	if err != nil {
		return probingWords{}, err
	}
	return probingWords{table: probing.New(buckets)}, nil
}

// =============================================================================
// Aufbau
// =============================================================================

// vocabBuilder vergibt IDs beim Lesen der Unigramme
type vocabBuilder struct {
	sorted bool
	region []byte

	// sortierte Variante
	hashes []uint64

	// Hash-Variante
	table *probing.Table[vocabEntry]

	// Woerter nach ID, nur wenn keepWords
	words     []string
	keepWords bool

	next   WordIndex
	sawUnk bool
}

func newVocabBuilder(sorted bool, region []byte, entries uint64, keepWords bool) (*vocabBuilder, error) {
	b := &vocabBuilder{sorted: sorted, region: region, keepWords: keepWords, next: 1}
	if keepWords {
		b.words = make([]string, 1, entries+1)
		b.words[0] = "<unk>"
	}

	if sorted {
		keys, err := lmfile.View[uint64](region[8:sortedVocabSize(entries)])
		if err != nil {
			return nil, err
		}
		b.hashes = keys[:0]
		return b, nil
	}

	buckets, err := lmfile.View[vocabEntry](region)
	if err != nil {
		return nil, err
	}
	b.table = probing.New(buckets)
	return b, nil
}

// insert vergibt die ID fuer word. Bei der sortierten Variante ist sie
// vorlaeufig und wird in finish neu vergeben.
func (b *vocabBuilder) insert(word string) (WordIndex, error) {
	h := hashWord(word)
	if isUnknownHash(h) {
		b.sawUnk = true
		return 0, nil
	}

	id := b.next
	if b.sorted {
		b.hashes = append(b.hashes, h)
	} else {
		if _, ok := b.table.Find(h); ok {
			return 0, &FormatError{Msg: fmt.Sprintf("duplicate word %q in the vocabulary", word)}
		}
		if _, err := b.table.Insert(vocabEntry{Key: h, ID: id}); err != nil {
			return 0, fmt.Errorf("vocabulary: %w", err)
		}
	}
	if b.keepWords {
		b.words = append(b.words, word)
	}
	b.next++
	return id, nil
}

// finish sortiert die Hashes und ordnet weights (Index = ID) gleich um
func (b *vocabBuilder) finish(weights []ProbBackoff) (*Vocabulary, error) {
	if !b.sorted {
		return newVocabulary(probingWords{table: b.table}, WordIndex(len(weights))), nil
	}

	n := len(b.hashes)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.Slice(perm, func(i, j int) bool { return b.hashes[perm[i]] < b.hashes[perm[j]] })

	hashes := slices.Clone(b.hashes)
	moved := slices.Clone(weights[1 : n+1])
	for rank, from := range perm {
		b.hashes[rank] = hashes[from]
		weights[rank+1] = moved[from]
	}
	if b.keepWords {
		words := slices.Clone(b.words[1:])
		for rank, from := range perm {
			b.words[rank+1] = words[from]
		}
	}

	for i := 1; i < n; i++ {
		if b.hashes[i] == b.hashes[i-1] {
			return nil, fmt.Errorf("duplicate word in the vocabulary (hash %#x)", b.hashes[i])
		}
	}

	binary.LittleEndian.PutUint64(b.region, uint64(n))
	return newVocabulary(sortedWords{keys: b.hashes}, WordIndex(len(weights))), nil
}

// checkSpecials meldet fehlende Sonderwoerter gemaess cfg
func checkSpecials(cfg *Config, v *Vocabulary, sawUnk bool) error {
	if !sawUnk {
		err := fmt.Errorf("the ARPA file is missing <unk>, substituting log10 probability %g", cfg.UnknownMissingLogProb)
		if err := warn(cfg.UnknownMissing, err); err != nil {
			return &FormatError{Msg: "the ARPA file is missing <unk> and the model is configured to reject these models"}
		}
	}
	for _, marker := range []struct {
		word string
		id   WordIndex
	}{{"<s>", v.BeginSentence()}, {"</s>", v.EndSentence()}} {
		if marker.id != v.NotFound() {
			continue
		}
		err := fmt.Errorf("missing special word %s, treating it as <unk>", marker.word)
		if err := warn(cfg.SentenceMarkerMissing, err); err != nil {
			return &FormatError{Msg: fmt.Sprintf("the ARPA file is missing %s and the model is configured to reject these models, build with -s to disable this check", marker.word)}
		}
	}
	return nil
}

// writeWords schreibt die Woerter NUL-terminiert in ID-Reihenfolge
func writeWords(w io.Writer, words []string) error {
	for _, word := range words {
		if _, err := io.WriteString(w, word); err != nil {
			return err
		}
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
	}
	return nil
}

// readWords meldet die NUL-terminierten Woerter aus b an enumerate
func readWords(b []byte, enumerate EnumerateVocab) error {
	var index WordIndex
	for len(b) > 0 {
		end := bytes.IndexByte(b, 0)
		if end < 0 {
			return errors.New("missing null terminator on a vocab word")
		}
		enumerate.Add(index, string(b[:end]))
		index++
		b = b[end+1:]
	}
	return nil
}
