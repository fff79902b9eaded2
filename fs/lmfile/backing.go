// backing.go - Speicher-Lebenszyklus der Binaerdatei
//
// Dieses Modul enthaelt:
// - Create: Neue Datei (oder Heap-Speicher) fuer Header und Vokabular
// - GrowForSearch: Vergroessert die Datei um den Backend-Bereich
// - AppendWords: Haengt die Vokabular-Strings hinter das Backend
// - Finish: Synchronisiert und schreibt den Header als letzten Schritt
// - Open: Prueft und mappt eine fertige Datei read-only
package lmfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadMethod bestimmt, wie eine Binaerdatei in den Speicher kommt
type LoadMethod int

const (
	// Lazy mappt die Datei, Seiten werden bei Zugriff geladen
	Lazy LoadMethod = iota
	// Populate mappt die Datei und laedt alle Seiten vorab
	Populate
	// Read liest die Datei komplett in den Heap
	Read
)

func (m LoadMethod) String() string {
	switch m {
	case Populate:
		return "populate"
	case Read:
		return "read"
	default:
		return "lazy"
	}
}

// ParseLoadMethod wandelt einen Namen in eine LoadMethod
func ParseLoadMethod(s string) (LoadMethod, error) {
	switch strings.ToLower(s) {
	case "", "lazy":
		return Lazy, nil
	case "populate":
		return Populate, nil
	case "read":
		return Read, nil
	default:
		return Lazy, fmt.Errorf("unknown load method %q", s)
	}
}

// Backing besitzt den Speicher eines Modells, beim Bauen und beim Laden
type Backing struct {
	path       string
	file       *os.File
	headerSize uint64
	vocabSize  uint64
	searchSize uint64

	// Header + Vokabular (Build) oder komplette Datei (Laden)
	mem    []byte
	region *region

	search       []byte
	searchRegion *region
}

// Create legt die Datei fuer einen Build an und schreibt den Marker fuer
// unvollstaendige Dateien. Ohne path wird nur Heap-Speicher benutzt.
func Create(path string, order int, vocabSize uint64) (*Backing, error) {
	b := &Backing{path: path, headerSize: TotalHeaderSize(order), vocabSize: vocabSize}
	total := b.headerSize + vocabSize

	if path == "" {
		b.mem = make([]byte, total)
		return b, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create binary file: %w", err)
	}
	b.file = f

	if err := f.Truncate(int64(total)); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to size %s: %w", path, err)
	}

	b.region, err = mapRegion(f, 0, int(total), true)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.mem = b.region.data
	copy(b.mem, encodeIncomplete())
	return b, nil
}

// Path gibt den Dateipfad zurueck (leer fuer Heap-Speicher)
func (b *Backing) Path() string {
	return b.path
}

// HeaderSize gibt die Groesse des Headers zurueck
func (b *Backing) HeaderSize() uint64 {
	return b.headerSize
}

// Vocab gibt den Vokabular-Bereich eines Builds zurueck
func (b *Backing) Vocab() []byte {
	return b.mem[b.headerSize : b.headerSize+b.vocabSize]
}

// GrowForSearch vergroessert die Datei um size Bytes fuer das Backend
func (b *Backing) GrowForSearch(size uint64) ([]byte, error) {
	if b.search != nil {
		return nil, errors.New("search region already allocated")
	}
	b.searchSize = size

	if b.file == nil {
		b.search = make([]byte, size)
		return b.search, nil
	}

	off := b.headerSize + b.vocabSize
	if err := b.file.Truncate(int64(off + size)); err != nil {
		return nil, fmt.Errorf("failed to grow %s to %d bytes: %w", b.path, off+size, err)
	}

	r, err := mapRegion(b.file, int64(off), int(size), true)
	if err != nil {
		return nil, err
	}
	b.searchRegion, b.search = r, r.data
	return b.search, nil
}

// AppendWords schreibt die Vokabular-Strings hinter das Backend.
// Ohne Datei passiert nichts.
func (b *Backing) AppendWords(write func(w io.Writer) error) error {
	if b.file == nil {
		return nil
	}

	off := b.headerSize + b.vocabSize + b.searchSize
	w := bufio.NewWriter(io.NewOffsetWriter(b.file, int64(off)))
	if err := write(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write vocabulary strings to %s: %w", b.path, err)
	}
	return nil
}

// Finish synchronisiert das Backend und schreibt danach den Header.
// Bricht der Prozess vorher ab, bleibt der Marker fuer unvollstaendige Dateien stehen.
func (b *Backing) Finish(p Params, counts []uint64) error {
	if b.searchRegion != nil {
		if err := b.searchRegion.sync(); err != nil {
			return fmt.Errorf("failed to sync %s: %w", b.path, err)
		}
	}

	copy(b.mem, EncodeHeader(Header{Params: p, Counts: counts}))

	if b.region != nil {
		if err := b.region.sync(); err != nil {
			return fmt.Errorf("failed to sync header of %s: %w", b.path, err)
		}
	}
	return nil
}

// Open prueft den Header von path und stellt die Datei read-only bereit
func Open(path string, method LoadMethod) (*Backing, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Header{}, err
	}

	head := make([]byte, min(fi.Size(), int64(TotalHeaderSize(255))))
	if _, err := io.ReadFull(f, head); err != nil {
		f.Close()
		return nil, Header{}, err
	}

	h, err := DecodeHeader(path, head)
	if err != nil {
		f.Close()
		return nil, Header{}, err
	}

	b := &Backing{path: path, headerSize: TotalHeaderSize(h.Order)}
	switch method {
	case Read:
		b.mem = make([]byte, fi.Size())
		_, err = f.ReadAt(b.mem, 0)
		f.Close()
		if err != nil {
			return nil, Header{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	default:
		b.file = f
		b.region, err = mapRegion(f, 0, int(fi.Size()), false)
		if err != nil {
			b.Close()
			return nil, Header{}, err
		}
		b.mem = b.region.data
		if method == Populate {
			if err := b.region.willNeed(); err != nil {
				b.Close()
				return nil, Header{}, fmt.Errorf("failed to populate %s: %w", path, err)
			}
		}
	}

	return b, h, nil
}

// Region gibt size Bytes ab Offset off der geladenen Datei zurueck
func (b *Backing) Region(off, size uint64) ([]byte, error) {
	if off+size > uint64(len(b.mem)) {
		return nil, &FormatError{Path: b.path, Msg: fmt.Sprintf("file too small: the model needs %d bytes but the file has %d", off+size, len(b.mem))}
	}
	return b.mem[off : off+size : off+size], nil
}

// Tail gibt alles ab Offset off der geladenen Datei zurueck
func (b *Backing) Tail(off uint64) []byte {
	if off >= uint64(len(b.mem)) {
		return nil
	}
	return b.mem[off:]
}

// Close gibt Mappings und Datei frei
func (b *Backing) Close() error {
	var errs []error
	if b.searchRegion != nil {
		errs = append(errs, b.searchRegion.unmap())
		b.searchRegion = nil
	}
	if b.region != nil {
		errs = append(errs, b.region.unmap())
		b.region = nil
	}
	if b.file != nil {
		errs = append(errs, b.file.Close())
		b.file = nil
	}
	b.mem, b.search = nil, nil
	return errors.Join(errs...)
}
