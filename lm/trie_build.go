// trie_build.go - Aufbau des Tries aus den sortierten Dateien
//
// Dieses Modul enthaelt:
// - blankManager: Erkennt fehlende Suffixe beim Durchlauf in Trie-Reihenfolge
// - recursiveInsert: Mischt Unigramme und alle Ordnungen in Tiefensuche-Reihenfolge
// - findBlanks/writeEntries: Die beiden Besucher fuer Zaehlen und Schreiben
// - buildTrie: Ablauf Zaehlen -> Backoffs -> Quantisierung -> Schreiben
package lm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"slices"

	"github.com/emirpasic/gods/v2/trees/binaryheap"
	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/ngramlm/arpa"
	"github.com/7blacky7/ngramlm/fs/lmfile"
)

// trieVisitor bekommt die Eintraege in Trie-Reihenfolge
type trieVisitor interface {
	unigramProb(word WordIndex) float32
	unigram(word WordIndex)
	middleBlank(order int, indices []WordIndex, lower int, basis float32)
	middle(order int, rec []byte) error
	longest(rec []byte)
	cleanup()
}

// badProb markiert eine Ordnung ohne gueltige Basis
var badProb = float32(math.Inf(1))

// blankManager vergleicht jedes N-Gramm mit dem vorigen. Ein N-Gramm, dessen
// kuerzere Suffixe nicht unmittelbar davor besucht wurden, braucht Platzhalter.
type blankManager struct {
	visitor    trieVisitor
	been       [MaxOrder]WordIndex
	beenLength int
	basis      [MaxOrder]float32
}

func newBlankManager(visitor trieVisitor) *blankManager {
	b := &blankManager{visitor: visitor}
	for i := range b.basis {
		b.basis[i] = badProb
	}
	return b
}

func (b *blankManager) visit(to []WordIndex, length int, prob float32) error {
	b.basis[length-1] = prob
	overlap := min(length-1, b.beenLength)
	cur := 0
	for cur < overlap && b.been[cur] == to[cur] {
		cur++
	}
	if cur == length-1 {
		b.been[cur] = to[cur]
		b.beenLength = length
		return nil
	}

	// Platzhalter fuer die Ordnungen cur+1 .. length-1
	blank := cur + 1
	if blank == 1 {
		return &FormatError{Msg: "Missing a unigram that appears as context."}
	}
	lowerBasis := blank - 2
	for b.basis[lowerBasis] == badProb {
		lowerBasis--
	}
	basedOn := lowerBasis + 1
	for ; cur < length-1; cur, blank = cur+1, blank+1 {
		b.visitor.middleBlank(blank, to, basedOn, b.basis[lowerBasis])
		b.been[cur] = to[cur]
		b.basis[blank-1] = badProb
	}
	b.been[cur] = to[cur]
	b.beenLength = length
	return nil
}

// recursiveInsert besucht alle Eintraege in Trie-Reihenfolge: rueckwaerts
// lexikographisch, ein Praefix vor seinen Verlaengerungen. inputs[k] sind
// die Records der Ordnung k+2. Der Unigramm-Zaehler laeuft bis einschliesslich
// unigramCount, damit der letzte Zeiger geschrieben wird.
func recursiveInsert(ctx context.Context, inputs []*recordReader, unigramCount WordIndex, visitor trieVisitor) error {
	order := len(inputs) + 1
	blanks := newBlankManager(visitor)

	// words[c] sind die aktuellen Woerter von Cursor c (0 = Unigramme)
	words := make([][MaxOrder]WordIndex, order)
	load := func(c int) {
		rec := inputs[c-1].data()
		for i := range c + 1 {
			words[c][i] = recordWord(rec, i)
		}
	}

	heap := binaryheap.NewWith(func(a, b int) int {
		if c := slices.Compare(words[a][:min(a, b)+1], words[b][:min(a, b)+1]); c != 0 {
			return c
		}
		return a - b
	})
	heap.Push(0)
	for c := 1; c < order; c++ {
		if inputs[c-1].ok() {
			load(c)
			heap.Push(c)
		}
	}

	var unigram WordIndex
	for visited := 0; !heap.Empty(); visited++ {
		if visited&0xfffff == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		c, _ := heap.Pop()
		if c == 0 {
			if err := blanks.visit(words[0][:1], 1, visitor.unigramProb(unigram)); err != nil {
				return err
			}
			visitor.unigram(unigram)
			if unigram == unigramCount {
				continue
			}
			unigram++
			words[0][0] = unigram
			heap.Push(0)
			continue
		}

		n := c + 1
		rr := inputs[c-1]
		rec := rr.data()
		if err := blanks.visit(words[c][:n], n, recordProb(rec, n)); err != nil {
			return err
		}
		if n == order {
			visitor.longest(rec)
		} else if err := visitor.middle(n, rec); err != nil {
			return err
		}

		if err := rr.next(); err != nil {
			return err
		}
		if rr.ok() {
			load(c)
			heap.Push(c)
		}
	}
	visitor.cleanup()
	return nil
}

// =============================================================================
// Pass 1: Zaehlen und Platzhalter sammeln
// =============================================================================

type findBlanks struct {
	counts   []uint64
	unigrams []ProbBackoff
	blanks   *blankWeights
}

func (f *findBlanks) unigramProb(word WordIndex) float32 {
	return f.unigrams[word].Prob
}

func (f *findBlanks) unigram(WordIndex) {
	f.counts[0]++
}

func (f *findBlanks) middleBlank(order int, indices []WordIndex, lower int, basis float32) {
	f.blanks.send(lower, order, indices[1:], basis)
	f.counts[order-1]++
}

func (f *findBlanks) middle(order int, _ []byte) error {
	f.counts[order-1]++
	return nil
}

func (f *findBlanks) longest([]byte) {
	f.counts[len(f.counts)-1]++
}

// cleanup: der letzte Unigramm-Besuch ist nur der Abschluss-Zeiger
func (f *findBlanks) cleanup() {
	f.counts[0]--
}

// =============================================================================
// Pass 4: Schreiben
// =============================================================================

type writeEntries struct {
	contexts []*recordReader
	trie     *trieSearch
	blanks   *blankWeights
	order    int
}

func (w *writeEntries) bigramInsertIndex() uint64 {
	if len(w.trie.middles) > 0 {
		return w.trie.middles[0].insertIndex
	}
	return w.trie.longest.insertIndex
}

func (w *writeEntries) unigramProb(word WordIndex) float32 {
	return w.trie.unigrams[word].Weights.Prob
}

func (w *writeEntries) unigram(word WordIndex) {
	w.trie.unigrams[word].Next = w.bigramInsertIndex()
}

func (w *writeEntries) middleBlank(order int, indices []WordIndex, _ int, _ float32) {
	weights := w.blanks.getBlank(w.order, order, indices)
	w.trie.middles[order-2].insert(indices[order-1], weights.Prob, weights.Backoff)
}

func (w *writeEntries) middle(order int, rec []byte) error {
	prob, backoff := recordProb(rec, order), recordBackoff(rec, order)

	context := w.contexts[order-1]
	if context.ok() && compareWords(rec, context.data(), order) == 0 {
		setExtension(&backoff)
		if err := context.next(); err != nil {
			return err
		}
	}
	w.trie.middles[order-2].insert(recordWord(rec, order-1), prob, backoff)
	return nil
}

func (w *writeEntries) longest(rec []byte) {
	w.trie.longest.insert(recordWord(rec, w.order-1), recordProb(rec, w.order))
}

func (w *writeEntries) cleanup() {}

// =============================================================================
// Ablauf
// =============================================================================

// sanityCheckCounts vergleicht die Anzahlen nach dem Zaehlen mit der ARPA-Datei
func sanityCheckCounts(initial, fixed []uint64) error {
	if fixed[0] != initial[0] {
		return fmt.Errorf("%w: unigram count changed from %d to %d", ErrInternal, initial[0], fixed[0])
	}
	last := len(initial) - 1
	if fixed[last] != initial[last] {
		return fmt.Errorf("%w: %d-gram count changed from %d to %d", ErrInternal, last+1, initial[last], fixed[last])
	}
	for i := 1; i < last; i++ {
		if fixed[i] < initial[i] {
			return fmt.Errorf("%w: %d-gram count shrank from %d to %d", ErrInternal, i+1, initial[i], fixed[i])
		}
	}
	return nil
}

// trainQuantizer belegt die Codebuecher, eine Goroutine pro Ordnung
func trainQuantizer(ctx context.Context, q *separatelyQuantize, inputs []*recordReader, blanks *blankWeights) error {
	order := len(inputs) + 1

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for n := 2; n <= order; n++ {
		rr := inputs[n-2]
		g.Go(func() error {
			probs := slices.Clone(blanks.probs(n))
			var backoffs []float32
			if err := rr.rewind(); err != nil {
				return err
			}
			for rr.ok() {
				rec := rr.data()
				probs = append(probs, recordProb(rec, n))
				if n < order {
					if bo := recordBackoff(rec, n); bo != 0 {
						backoffs = append(backoffs, bo)
					}
				}
				if err := rr.next(); err != nil {
					return err
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if n == order {
				q.trainProb(n, probs)
			} else {
				q.train(n, probs, backoffs)
			}
			return nil
		})
	}
	return g.Wait()
}

// populateUnigrams kopiert die Unigramme in den Trie und markiert alle
// Woerter, die als Kontext eines Bigramms vorkommen
func populateUnigrams(t *trieSearch, unigrams []ProbBackoff, contexts *recordReader) error {
	for i := range unigrams {
		t.unigrams[i].Weights = unigrams[i]
	}
	for contexts.ok() {
		setExtension(&t.unigrams[recordWord(contexts.data(), 0)].Weights.Backoff)
		if err := contexts.next(); err != nil {
			return err
		}
	}
	return nil
}

// buildTrie liest die Abschnitte ab \2-grams: aus r und baut den Trie im
// Backend-Bereich von backing. unigrams hat count+1 Eintraege, der letzte ist
// der Abschluss. counts wird um die Platzhalter erhoeht.
func buildTrie(ctx context.Context, r *arpa.Reader, counts []uint64, vocab *Vocabulary, names []string, unigrams []ProbBackoff, cfg *Config, p trieParams, backing *lmfile.Backing, warn *positiveProbWarn) (*trieSearch, error) {
	order := len(counts)

	dir, err := trieTempDir(cfg, backing.Path())
	if err != nil {
		return nil, err
	}
	defer removeTempDir(dir)

	files, err := sortARPA(ctx, r, counts, vocab, names, cfg.SortMemory, dir, warn)
	if err != nil {
		return nil, err
	}

	inputs, err := files.openRecords()
	if err != nil {
		return nil, err
	}
	defer closeRecords(inputs)

	// Pass 1
	fixed := make([]uint64, order)
	blanks := newBlankWeights()
	if err := recursiveInsert(ctx, inputs, WordIndex(counts[0]), &findBlanks{counts: fixed, unigrams: unigrams, blanks: blanks}); err != nil {
		return nil, withPath(err, r.Name())
	}
	if err := sanityCheckCounts(counts, fixed); err != nil {
		return nil, err
	}
	slog.Debug("counted blanks", "counts", fixed)

	// Pass 2
	if err := blanks.obtainBackoffs(order, unigrams, inputs); err != nil {
		return nil, err
	}

	search, err := backing.GrowForSearch(trieSize(fixed, p))
	if err != nil {
		return nil, err
	}
	t, err := setupTrie(search, fixed, p)
	if err != nil {
		return nil, err
	}

	// Pass 3
	if q, ok := t.quant.(*separatelyQuantize); ok {
		if err := trainQuantizer(ctx, q, inputs, blanks); err != nil {
			return nil, err
		}
		q.finish()
	}

	contexts, err := files.openContexts()
	if err != nil {
		return nil, err
	}
	defer closeRecords(contexts)

	if err := populateUnigrams(t, unigrams[:counts[0]], contexts[0]); err != nil {
		return nil, err
	}

	// Pass 4
	for _, rr := range inputs {
		if err := rr.rewind(); err != nil {
			return nil, err
		}
	}
	if err := recursiveInsert(ctx, inputs, WordIndex(counts[0]), &writeEntries{contexts: contexts, trie: t, blanks: blanks, order: order}); err != nil {
		return nil, withPath(err, r.Name())
	}

	for n := 2; n <= order; n++ {
		if c := contexts[n-2]; c.ok() {
			return nil, &FormatError{Path: r.Name(), Msg: fmt.Sprintf("A %d-gram has context %q so this context must appear in the model as a %d-gram but it does not",
				n, wordNames(names, c.data(), n-1), n-1)}
		}
	}

	for i, m := range t.middles {
		next := t.longest.insertIndex
		if i+1 < len(t.middles) {
			next = t.middles[i+1].insertIndex
		}
		if err := m.finish(next); err != nil {
			return nil, err
		}
	}

	copy(counts, fixed)
	return t, nil
}

func removeTempDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove temporary directory", "dir", dir, "error", err)
	}
}
