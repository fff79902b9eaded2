// trie_sort.go - Sortieren der ARPA-N-Gramme fuer den Trie-Bau
//
// Dieses Modul enthaelt:
// - sortARPA: Liest alle Ordnungen ab 2, sortiert sie in Laeufen unter dem
//   Speicherbudget und fuehrt die Laeufe pro Ordnung parallel zusammen
// - sortedFiles: Pfade der zusammengefuehrten Record- und Kontext-Dateien
//
// Records sind nach den rueckwaerts gespeicherten Wort-IDs sortiert. Die
// Kontext-Datei einer Ordnung n enthaelt die Woerter 1..n-1 jedes Records,
// sortiert und ohne Duplikate.
package lm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/emirpasic/gods/v2/trees/binaryheap"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/ngramlm/arpa"
	"github.com/7blacky7/ngramlm/envconfig"
	"github.com/7blacky7/ngramlm/logutil"
)

// sortedFiles liegen in einem privaten temporaeren Verzeichnis
type sortedFiles struct {
	dir   string
	order int
}

func (s *sortedFiles) mergedPath(order int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d_merged", order))
}

func (s *sortedFiles) contextsPath(order int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d_contexts", order))
}

func (s *sortedFiles) runPath(order, run int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d_run%d", order, run))
}

// openRecords oeffnet die zusammengefuehrten Records aller Ordnungen ab 2
func (s *sortedFiles) openRecords() ([]*recordReader, error) {
	var readers []*recordReader
	for n := 2; n <= s.order; n++ {
		rr, err := openRecords(s.mergedPath(n), recordSize(n, n == s.order))
		if err != nil {
			closeRecords(readers)
			return nil, err
		}
		readers = append(readers, rr)
	}
	return readers, nil
}

// openContexts oeffnet die Kontext-Dateien aller Ordnungen ab 2
func (s *sortedFiles) openContexts() ([]*recordReader, error) {
	var readers []*recordReader
	for n := 2; n <= s.order; n++ {
		rr, err := openRecords(s.contextsPath(n), (n-1)*wordSize)
		if err != nil {
			closeRecords(readers)
			return nil, err
		}
		readers = append(readers, rr)
	}
	return readers, nil
}

func closeRecords(readers []*recordReader) {
	for _, rr := range readers {
		rr.close()
	}
}

// trieTempDir legt das Verzeichnis fuer die Sortierung an.
// Ein TempPrefix, der ein Verzeichnis ist, nimmt das Verzeichnis darin auf.
func trieTempDir(cfg *Config, outPath string) (string, error) {
	prefix := cfg.TempPrefix
	switch {
	case prefix != "":
		if fi, err := os.Stat(prefix); err == nil && fi.IsDir() {
			prefix = filepath.Join(prefix, "ngramlm")
		}
	case outPath != "":
		prefix = outPath
	default:
		prefix = filepath.Join(envconfig.TmpDir(), "ngramlm")
	}

	dir := prefix + "_trie_tmp_" + uuid.NewString()
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create temporary directory for sorting: %w", err)
	}
	return dir, nil
}

// wordNames setzt rueckwaerts gespeicherte IDs wieder in Textreihenfolge
func wordNames(names []string, rec []byte, n int) string {
	words := make([]string, n)
	for i := range n {
		id := recordWord(rec, i)
		if int(id) < len(names) {
			words[n-1-i] = names[id]
		} else {
			words[n-1-i] = fmt.Sprintf("#%d", id)
		}
	}
	return strings.Join(words, " ")
}

// sortARPA liest die Abschnitte ab \2-grams: aus r und schreibt sie sortiert nach dir
func sortARPA(ctx context.Context, r *arpa.Reader, counts []uint64, vocab *Vocabulary, names []string, memory uint64, dir string, warn *positiveProbWarn) (*sortedFiles, error) {
	order := len(counts)
	files := &sortedFiles{dir: dir, order: order}
	memory = max(memory, minSortMemory)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	// Fehler beim Lesen warten die laufenden Merges ab
	fail := func(err error) (*sortedFiles, error) {
		return nil, errors.Join(err, g.Wait())
	}

	var buf []byte
	for n := 2; n <= order; n++ {
		if err := r.ReadHeader(n); err != nil {
			return fail(err)
		}

		longest := n == order
		size := recordSize(n, longest)
		batch := min(counts[n-1], max(1, memory/uint64(size)))
		if need := int(batch) * size; cap(buf) < need {
			buf = make([]byte, need)
		}

		var runs []string
		for done := uint64(0); done < counts[n-1]; {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}

			this := min(batch, counts[n-1]-done)
			data := buf[:int(this)*size]
			if err := readRecords(r, vocab, n, longest, data, warn); err != nil {
				return fail(err)
			}

			path := files.runPath(n, len(runs))
			if err := writeRun(path, data, n, size, names); err != nil {
				return fail(withPath(err, r.Name()))
			}
			runs = append(runs, path)
			done += this
			logutil.Trace("wrote sort run", "order", n, "run", path, "records", this)
		}

		slog.Debug("sorted n-grams", "order", n, "count", counts[n-1], "runs", len(runs))
		g.Go(func() error {
			return mergeRuns(files, n, runs, size, names)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, withPath(err, r.Name())
	}
	return files, nil
}

// readRecords fuellt data mit den naechsten N-Grammen von r
func readRecords(r *arpa.Reader, vocab *Vocabulary, n int, longest bool, data []byte, warn *positiveProbWarn) error {
	size := recordSize(n, longest)
	for off := 0; off < len(data); off += size {
		e, err := r.ReadNGram(n)
		if err != nil {
			return err
		}
		w, err := readWeights(e, warn, r)
		if err != nil {
			return err
		}

		rec := data[off : off+size]
		for i, word := range e.Words {
			putRecordWord(rec, n-1-i, vocab.Index(word))
		}
		putRecordWeights(rec, n, w.Prob, w.Backoff, longest)
	}
	return nil
}

// recordSorter sortiert Records fester Groesse direkt im Puffer
type recordSorter struct {
	data  []byte
	size  int
	words int
	tmp   []byte
}

func (s *recordSorter) Len() int { return len(s.data) / s.size }

func (s *recordSorter) Less(i, j int) bool {
	return compareWords(s.data[i*s.size:], s.data[j*s.size:], s.words) < 0
}

func (s *recordSorter) Swap(i, j int) {
	a, b := s.data[i*s.size:(i+1)*s.size], s.data[j*s.size:(j+1)*s.size]
	copy(s.tmp, a)
	copy(a, b)
	copy(b, s.tmp)
}

func sortRecords(data []byte, size, words int) {
	sort.Sort(&recordSorter{data: data, size: size, words: words, tmp: make([]byte, size)})
}

func duplicateError(names []string, rec []byte, n int) error {
	return &FormatError{Msg: fmt.Sprintf("duplicate %d-gram detected: %s", n, wordNames(names, rec, n))}
}

// writeRun sortiert data und schreibt es nach path, die Kontexte nach
// path_contexts. Der Puffer wird dabei fuer die Kontexte wiederverwendet.
func writeRun(path string, data []byte, n, size int, names []string) error {
	sortRecords(data, size, n)

	w, err := createRecords(path)
	if err != nil {
		return err
	}
	var prev []byte
	for off := 0; off < len(data); off += size {
		rec := data[off : off+size]
		if prev != nil && compareWords(prev, rec, n) == 0 {
			w.close()
			return duplicateError(names, rec, n)
		}
		if err := w.write(rec); err != nil {
			w.close()
			return err
		}
		prev = rec
	}
	if err := w.close(); err != nil {
		return err
	}

	// Kontexte nach vorne schieben, das Ziel liegt nie hinter der Quelle
	csize := (n - 1) * wordSize
	count := len(data) / size
	for i := range count {
		copy(data[i*csize:(i+1)*csize], data[i*size+wordSize:i*size+wordSize+csize])
	}
	contexts := data[:count*csize]
	sortRecords(contexts, csize, n-1)

	cw, err := createRecords(path + "_contexts")
	if err != nil {
		return err
	}
	prev = nil
	for off := 0; off < len(contexts); off += csize {
		rec := contexts[off : off+csize]
		if prev != nil && compareWords(prev, rec, n-1) == 0 {
			continue
		}
		if err := cw.write(rec); err != nil {
			cw.close()
			return err
		}
		prev = rec
	}
	return cw.close()
}

// mergeRuns fuehrt die Laeufe von Ordnung n zusammen
func mergeRuns(files *sortedFiles, n int, runs []string, size int, names []string) error {
	contexts := make([]string, len(runs))
	for i, run := range runs {
		contexts[i] = run + "_contexts"
	}

	if err := mergeFiles(runs, files.mergedPath(n), size, n, func(rec []byte) error {
		return duplicateError(names, rec, n)
	}); err != nil {
		return err
	}
	return mergeFiles(contexts, files.contextsPath(n), (n-1)*wordSize, n-1, nil)
}

// mergeFiles mischt sortierte Record-Dateien nach out und loescht sie.
// Gleiche Records gehen an dup, ohne dup wird nur der erste behalten.
func mergeFiles(paths []string, out string, size, words int, dup func(rec []byte) error) error {
	switch len(paths) {
	case 0:
		w, err := createRecords(out)
		if err != nil {
			return err
		}
		return w.close()
	case 1:
		return os.Rename(paths[0], out)
	}

	readers := make([]*recordReader, 0, len(paths))
	defer func() {
		closeRecords(readers)
		for _, p := range paths {
			os.Remove(p)
		}
	}()
	for _, p := range paths {
		rr, err := openRecords(p, size)
		if err != nil {
			return err
		}
		readers = append(readers, rr)
	}

	heap := binaryheap.NewWith(func(a, b int) int {
		return compareWords(readers[a].data(), readers[b].data(), words)
	})
	for i, rr := range readers {
		if rr.ok() {
			heap.Push(i)
		}
	}

	w, err := createRecords(out)
	if err != nil {
		return err
	}
	prev := make([]byte, size)
	written := false
	for !heap.Empty() {
		i, _ := heap.Pop()
		rec := readers[i].data()
		if written && compareWords(prev, rec, words) == 0 {
			if dup != nil {
				w.close()
				return dup(rec)
			}
		} else {
			if err := w.write(rec); err != nil {
				w.close()
				return err
			}
			copy(prev, rec)
			written = true
		}

		if err := readers[i].next(); err != nil {
			w.close()
			return err
		}
		if readers[i].ok() {
			heap.Push(i)
		}
	}
	return w.close()
}
