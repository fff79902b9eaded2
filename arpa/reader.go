// Package arpa - Lesen von Sprachmodellen im ARPA-Textformat
//
// Dieses Modul enthaelt:
// - Reader: Zeilenweises Lesen mit gzip/bzip2-Erkennung
// - ReadCounts: Der \data\ Block mit den Anzahlen pro Ordnung
// - ReadHeader/ReadNGram: Abschnitte \N-grams: und ihre Zeilen
// - ReadEnd: Das abschliessende \end\
//
// Eine N-Gramm-Zeile ist "prob<TAB>w1 ... wN[<TAB>backoff]". Trenner sind
// beliebige Leerzeichen, die Anzahl der Felder bestimmt, ob ein Backoff folgt.
package arpa

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// maxLine begrenzt die Laenge einer Zeile
const maxLine = 1 << 20

// ParseError beschreibt eine fehlerhafte Zeile
type ParseError struct {
	Name       string
	LineNumber int
	Msg        string
}

func (e *ParseError) Error() string {
	if e.LineNumber > 0 {
		return fmt.Sprintf("%s (line %d): %s", e.Name, e.LineNumber, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

// Entry ist eine gelesene N-Gramm-Zeile.
// Words bleibt nur bis zum naechsten ReadNGram gueltig.
type Entry struct {
	Prob       float32
	Words      []string
	Backoff    float32
	HasBackoff bool
}

// Reader liest eine ARPA-Datei von vorne nach hinten
type Reader struct {
	name    string
	sc      *bufio.Scanner
	closers []io.Closer
	line    int
	words   []string
}

// Open oeffnet path, komprimierte Dateien werden erkannt
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r, err := NewReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closers = append(r.closers, f)
	return r, nil
}

// NewReader liest aus rd, name erscheint in Fehlermeldungen
func NewReader(rd io.Reader, name string) (*Reader, error) {
	br := bufio.NewReader(rd)
	r := &Reader{name: name}

	magic, _ := br.Peek(3)
	var src io.Reader = br
	switch {
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		r.closers = append(r.closers, zr)
		src = zr
	case bytes.HasPrefix(magic, []byte("BZh")):
		src = bzip2.NewReader(br)
	}

	tr := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r.sc = bufio.NewScanner(transform.NewReader(src, tr))
	r.sc.Buffer(make([]byte, 64*1024), maxLine)
	return r, nil
}

// Name gibt den Namen der Eingabe zurueck
func (r *Reader) Name() string {
	return r.name
}

// LineNumber gibt die zuletzt gelesene Zeile zurueck
func (r *Reader) LineNumber() int {
	return r.line
}

// Close schliesst Dekompressor und Datei
func (r *Reader) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Reader) errorf(format string, args ...any) error {
	return &ParseError{Name: r.name, LineNumber: r.line, Msg: fmt.Sprintf(format, args...)}
}

// readLine liest die naechste Zeile, am Ende kommt io.EOF
func (r *Reader) readLine() (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", fmt.Errorf("%s: %w", r.name, err)
		}
		return "", io.EOF
	}
	r.line++
	return strings.TrimRight(r.sc.Text(), "\r"), nil
}

// readNonBlank ueberspringt leere Zeilen
func (r *Reader) readNonBlank() (string, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) != "" {
			return line, nil
		}
	}
}

func (r *Reader) eof(what string) error {
	return &ParseError{Name: r.name, LineNumber: r.line, Msg: "unexpected end of file while looking for " + what}
}

// ReadCounts liest den \data\ Block. Zeilen davor werden uebersprungen.
func (r *Reader) ReadCounts() ([]uint64, error) {
	for {
		line, err := r.readLine()
		if errors.Is(err, io.EOF) {
			return nil, r.eof(`\data\`)
		} else if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == `\data\` {
			break
		}
	}

	var counts []uint64
	for {
		line, err := r.readLine()
		if errors.Is(err, io.EOF) {
			return nil, r.eof("the first n-gram section")
		} else if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if len(counts) == 0 {
				continue
			}
			return counts, nil
		}

		spec, ok := strings.CutPrefix(line, "ngram ")
		if !ok {
			return nil, r.errorf("count line %q does not begin with \"ngram \"", line)
		}
		order, count, ok := strings.Cut(strings.TrimSpace(spec), "=")
		if !ok {
			return nil, r.errorf("expected = inside %q", line)
		}

		n, err := strconv.Atoi(strings.TrimSpace(order))
		if err != nil {
			return nil, r.errorf("bad order in %q", line)
		}
		if n != len(counts)+1 {
			return nil, r.errorf("n-gram count lines should be consecutive, expected order %d but got %d", len(counts)+1, n)
		}

		c, err := strconv.ParseUint(strings.TrimSpace(count), 10, 64)
		if err != nil {
			return nil, r.errorf("bad count in %q", line)
		}
		counts = append(counts, c)
	}
}

// ReadHeader erwartet den Abschnitt \order-grams:
func (r *Reader) ReadHeader(order int) error {
	line, err := r.readNonBlank()
	if errors.Is(err, io.EOF) {
		return r.eof(fmt.Sprintf(`\%d-grams:`, order))
	} else if err != nil {
		return err
	}

	if want := fmt.Sprintf(`\%d-grams:`, order); strings.TrimSpace(line) != want {
		return r.errorf("expected %s but got %q", want, line)
	}
	return nil
}

// ReadNGram liest eine Zeile mit order Woertern
func (r *Reader) ReadNGram(order int) (Entry, error) {
	line, err := r.readLine()
	if errors.Is(err, io.EOF) {
		return Entry{}, r.eof(fmt.Sprintf("more %d-grams", order))
	} else if err != nil {
		return Entry{}, err
	}

	fields := strings.Fields(line)
	if len(fields) != order+1 && len(fields) != order+2 {
		return Entry{}, r.errorf("expected a %d-gram with probability and optional backoff but got %q", order, line)
	}

	var e Entry
	if e.Prob, err = parseFloat(fields[0]); err != nil {
		return Entry{}, r.errorf("bad probability %q", fields[0])
	}

	r.words = append(r.words[:0], fields[1:order+1]...)
	e.Words = r.words

	if len(fields) == order+2 {
		if e.Backoff, err = parseFloat(fields[order+1]); err != nil {
			return Entry{}, r.errorf("bad backoff %q", fields[order+1])
		}
		e.HasBackoff = true
	}
	return e, nil
}

// ReadEnd erwartet \end\ und danach nur noch leere Zeilen
func (r *Reader) ReadEnd() error {
	line, err := r.readNonBlank()
	if errors.Is(err, io.EOF) {
		return r.eof(`\end\`)
	} else if err != nil {
		return err
	}
	if strings.TrimSpace(line) != `\end\` {
		return r.errorf(`expected \end\ but got %q`, line)
	}

	line, err = r.readNonBlank()
	if errors.Is(err, io.EOF) {
		return nil
	} else if err != nil {
		return err
	}
	return r.errorf("trailing line %q", line)
}

// parseFloat akzeptiert auch -inf/inf in den ueblichen Schreibweisen
func parseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	return float32(f), nil
}
