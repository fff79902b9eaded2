// records.go - Dateien mit Records fester Groesse fuer den Trie-Bau
//
// Dieses Modul enthaelt:
// - recordReader: Sequentielles Lesen mit Rewind und Ueberschreiben des aktuellen Records
// - recordWriter: Gepuffertes Schreiben
// - Hilfen zum Kodieren von Wort-IDs und Gewichten in Records
//
// Ein N-Gramm-Record ist [N Wort-IDs rueckwaerts][Prob][Backoff], bei der
// hoechsten Ordnung ohne Backoff. Ein Kontext-Record hat nur N-1 Wort-IDs.
// Alles little-endian.
package lm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const wordSize = 4

func recordSize(order int, longest bool) int {
	if longest {
		return order*wordSize + 4
	}
	return order*wordSize + 8
}

func recordWord(rec []byte, i int) WordIndex {
	return binary.LittleEndian.Uint32(rec[i*wordSize:])
}

func putRecordWord(rec []byte, i int, w WordIndex) {
	binary.LittleEndian.PutUint32(rec[i*wordSize:], w)
}

func recordProb(rec []byte, order int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(rec[order*wordSize:]))
}

func recordBackoff(rec []byte, order int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(rec[order*wordSize+4:]))
}

func putRecordWeights(rec []byte, order int, prob, backoff float32, longest bool) {
	binary.LittleEndian.PutUint32(rec[order*wordSize:], math.Float32bits(prob))
	if !longest {
		binary.LittleEndian.PutUint32(rec[order*wordSize+4:], math.Float32bits(backoff))
	}
}

// compareWords vergleicht die ersten n Wort-IDs zweier Records
func compareWords(a, b []byte, n int) int {
	for i := range n {
		x, y := recordWord(a, i), recordWord(b, i)
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	}
	return 0
}

// recordReader liest eine Record-Datei vorwaerts
type recordReader struct {
	path string
	f    *os.File
	r    *bufio.Reader
	size int
	buf  []byte
	// Offset des aktuellen Records
	off   int64
	valid bool
}

func openRecords(path string, size int) (*recordReader, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	rr := &recordReader{path: path, f: f, r: bufio.NewReaderSize(f, 1<<16), size: size, buf: make([]byte, size), off: -int64(size)}
	if err := rr.next(); err != nil {
		f.Close()
		return nil, err
	}
	return rr, nil
}

func (rr *recordReader) ok() bool {
	return rr.valid
}

func (rr *recordReader) data() []byte {
	return rr.buf
}

func (rr *recordReader) next() error {
	rr.off += int64(rr.size)
	_, err := io.ReadFull(rr.r, rr.buf)
	switch {
	case err == nil:
		rr.valid = true
		return nil
	case errors.Is(err, io.EOF):
		rr.valid = false
		return nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%s: truncated record at offset %d", rr.path, rr.off)
	default:
		return fmt.Errorf("failed to read %s: %w", rr.path, err)
	}
}

func (rr *recordReader) rewind() error {
	if _, err := rr.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", rr.path, err)
	}
	rr.r.Reset(rr.f)
	rr.off = -int64(rr.size)
	return rr.next()
}

// overwrite ersetzt Bytes des aktuellen Records ab Position at
func (rr *recordReader) overwrite(at int, b []byte) error {
	copy(rr.buf[at:], b)
	if _, err := rr.f.WriteAt(b, rr.off+int64(at)); err != nil {
		return fmt.Errorf("failed to revise %s: %w", rr.path, err)
	}
	return nil
}

func (rr *recordReader) close() error {
	return rr.f.Close()
}

// recordWriter schreibt Records gepuffert in eine neue Datei
type recordWriter struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func createRecords(path string) (*recordWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &recordWriter{path: path, f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

func (rw *recordWriter) write(rec []byte) error {
	if _, err := rw.w.Write(rec); err != nil {
		return fmt.Errorf("failed to write %s: %w", rw.path, err)
	}
	return nil
}

func (rw *recordWriter) close() error {
	if err := rw.w.Flush(); err != nil {
		rw.f.Close()
		return fmt.Errorf("failed to write %s: %w", rw.path, err)
	}
	return rw.f.Close()
}
