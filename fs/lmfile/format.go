// Package lmfile - Binaerformat fuer N-Gramm-Sprachmodelle
//
// Dieses Modul enthaelt das Header-Layout der Binaerdatei:
// - Sanity-Block: Magic mit Version und Testwerte fuer Layout/Endianness
// - Params: Ordnung, Probing-Multiplikator, Modelltyp, Vokabular-Flag
// - Counts: ein uint64 pro Ordnung
// - IsBinary/Classify: Erkennung von Binaerdateien
//
// Dateilayout:
//
//	[Sanity 72][Params 16][Counts 8*order][Vokabular][Backend][Woerter]
//
// Alle Werte sind Little-Endian. Eine Datei, deren Magic den Marker fuer
// unvollstaendige Builds traegt, wurde beim Bauen abgebrochen.
package lmfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Version ist die aktuelle Formatversion
const Version = 1

const (
	magicSize   = 40
	magicPrefix = "ngramlm mmap format version "

	// SanitySize ist die Groesse des Sanity-Blocks in Bytes
	SanitySize = 72
	paramsSize = 16
)

var (
	magicBytes      = padMagic(magicPrefix + strconv.Itoa(Version) + "\n")
	magicIncomplete = padMagic("ngramlm mmap incomplete\n")
)

// ErrIncomplete markiert eine Datei aus einem abgebrochenen Build
var ErrIncomplete = errors.New("binary file was not completely written, the build probably failed")

// ErrNotBinary wird zurueckgegeben, wenn die Datei kein Binaermodell ist
var ErrNotBinary = errors.New("not a binary language model file")

// FormatError beschreibt einen Fehler im Dateiformat
type FormatError struct {
	Path string
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// VersionMismatchError wird bei abweichender Formatversion zurueckgegeben
type VersionMismatchError struct {
	Path     string
	Expected int
	Found    string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s: binary file has format version %s but this build expects version %d; rebuild the binary from the ARPA file", e.Path, e.Found, e.Expected)
}

// ModelTypeMismatchError wird zurueckgegeben, wenn der Modelltyp nicht passt
type ModelTypeMismatchError struct {
	Path     string
	Expected ModelType
	Found    ModelType
}

func (e *ModelTypeMismatchError) Error() string {
	return fmt.Sprintf("%s: binary file contains %q but %q was requested", e.Path, e.Found, e.Expected)
}

// =============================================================================
// Modelltypen
// =============================================================================

// ModelType ist der Backend-Typ im Header
type ModelType uint32

const (
	HashProbing ModelType = iota
	HashSorted
	Trie
	QuantTrie
	ArrayTrie
	QuantArrayTrie
)

const (
	// QuantAdd wird zum Trie-Typ addiert, wenn quantisiert wird
	QuantAdd ModelType = QuantTrie - Trie
	// ArrayAdd wird zum Trie-Typ addiert, wenn Pointer komprimiert werden
	ArrayAdd ModelType = ArrayTrie - Trie
)

var modelTypeNames = [...]string{
	"hashed n-grams with probing",
	"hashed n-grams with sorted uniform find",
	"trie",
	"trie with quantization",
	"trie with array-compressed pointers",
	"trie with quantization and array-compressed pointers",
}

func (t ModelType) String() string {
	if int(t) < len(modelTypeNames) {
		return modelTypeNames[t]
	}
	return "unknown model type " + strconv.Itoa(int(t))
}

// IsTrie meldet, ob der Typ ein Trie-Backend ist
func (t ModelType) IsTrie() bool {
	return t >= Trie && t <= QuantArrayTrie
}

// Quantized meldet, ob Gewichte quantisiert gespeichert sind
func (t ModelType) Quantized() bool {
	return t.IsTrie() && (t-Trie)&QuantAdd != 0
}

// ArrayCompressed meldet, ob Pointer mit Overflow-Array gespeichert sind
func (t ModelType) ArrayCompressed() bool {
	return t.IsTrie() && (t-Trie)&ArrayAdd != 0
}

// =============================================================================
// Header
// =============================================================================

type sanityHeader struct {
	Magic     [magicSize]byte
	Zero      float32
	One       float32
	MinusHalf float32
	OneWord   uint32
	MaxWord   uint32
	_         [4]byte
	OneUint64 uint64
}

func newSanityHeader(magic [magicSize]byte) sanityHeader {
	return sanityHeader{
		Magic:     magic,
		One:       1,
		MinusHalf: -0.5,
		OneWord:   1,
		MaxWord:   math.MaxUint32,
		OneUint64: 1,
	}
}

type fixedParams struct {
	Order             uint8
	_                 [3]byte
	ProbingMultiplier float32
	ModelType         uint32
	HasVocabulary     bool
	_                 [3]byte
}

// Params sind die festen Parameter eines Binaermodells
type Params struct {
	Order             int
	ProbingMultiplier float32
	ModelType         ModelType
	HasVocabulary     bool
}

// Header ist der vollstaendige Kopf einer Binaerdatei
type Header struct {
	Params
	Counts []uint64
}

// Align8 rundet n auf ein Vielfaches von 8 auf
func Align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

// TotalHeaderSize gibt die Header-Groesse fuer order zurueck
func TotalHeaderSize(order int) uint64 {
	return Align8(SanitySize + paramsSize + 8*uint64(order))
}

func padMagic(s string) (m [magicSize]byte) {
	copy(m[:], s)
	return m
}

// EncodeHeader serialisiert einen vollstaendigen Header
func EncodeHeader(h Header) []byte {
	var b bytes.Buffer
	b.Grow(int(TotalHeaderSize(len(h.Counts))))

	// bytes.Buffer liefert keine Schreibfehler
	_ = binary.Write(&b, binary.LittleEndian, newSanityHeader(magicBytes))
	_ = binary.Write(&b, binary.LittleEndian, fixedParams{
		Order:             uint8(h.Order),
		ProbingMultiplier: h.ProbingMultiplier,
		ModelType:         uint32(h.ModelType),
		HasVocabulary:     h.HasVocabulary,
	})
	_ = binary.Write(&b, binary.LittleEndian, h.Counts)

	for uint64(b.Len()) < TotalHeaderSize(len(h.Counts)) {
		b.WriteByte(0)
	}
	return b.Bytes()
}

// encodeIncomplete gibt den Sanity-Block fuer unvollstaendige Dateien zurueck
func encodeIncomplete() []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, newSanityHeader(magicIncomplete))
	return b.Bytes()
}

// checkSanity prueft den Sanity-Block b.
// Ergebnis ist nil, ErrNotBinary oder ein Formatfehler.
func checkSanity(path string, b []byte) error {
	if len(b) < SanitySize {
		return ErrNotBinary
	}

	var s sanityHeader
	if err := binary.Read(bytes.NewReader(b[:SanitySize]), binary.LittleEndian, &s); err != nil {
		return err
	}

	switch {
	case s == newSanityHeader(magicBytes):
		return nil
	case s.Magic == magicIncomplete:
		return fmt.Errorf("%s: %w", path, ErrIncomplete)
	case bytes.HasPrefix(s.Magic[:], []byte(magicPrefix)):
		found, _, _ := strings.Cut(string(s.Magic[len(magicPrefix):]), "\n")
		if found != strconv.Itoa(Version) {
			return &VersionMismatchError{Path: path, Expected: Version, Found: found}
		}
		return &FormatError{Path: path, Msg: "file was built on a machine with a different data layout (endianness or float format)"}
	default:
		return ErrNotBinary
	}
}

// DecodeHeader liest und prueft den Header am Anfang von b
func DecodeHeader(path string, b []byte) (Header, error) {
	if err := checkSanity(path, b); err != nil {
		return Header{}, err
	}
	if len(b) < SanitySize+paramsSize {
		return Header{}, &FormatError{Path: path, Msg: "file too small for the parameter block"}
	}

	r := bytes.NewReader(b[SanitySize:])
	var p fixedParams
	if err := binary.Read(r, binary.LittleEndian, &p); err != nil {
		return Header{}, err
	}

	h := Header{Params: Params{
		Order:             int(p.Order),
		ProbingMultiplier: p.ProbingMultiplier,
		ModelType:         ModelType(p.ModelType),
		HasVocabulary:     p.HasVocabulary,
	}}

	if h.Order == 0 {
		return Header{}, &FormatError{Path: path, Msg: "model order is zero"}
	}
	if h.ProbingMultiplier < 1.0 {
		return Header{}, &FormatError{Path: path, Msg: fmt.Sprintf("probing multiplier must be at least 1.0 instead of %g", h.ProbingMultiplier)}
	}
	if uint64(len(b)) < TotalHeaderSize(h.Order) {
		return Header{}, &FormatError{Path: path, Msg: fmt.Sprintf("file too small for a header with %d counts", h.Order)}
	}

	h.Counts = make([]uint64, h.Order)
	if err := binary.Read(r, binary.LittleEndian, h.Counts); err != nil {
		return Header{}, err
	}
	return h, nil
}

// MatchCheck prueft, ob der Header den erwarteten Modelltyp hat
func (h Header) MatchCheck(path string, want ModelType) error {
	if h.ModelType != want {
		return &ModelTypeMismatchError{Path: path, Expected: want, Found: h.ModelType}
	}
	return nil
}

// IsBinary meldet, ob path eine gueltige Binaerdatei ist.
// Unvollstaendige oder inkompatible Dateien liefern einen Fehler.
func IsBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	b := make([]byte, SanitySize)
	if _, err := io.ReadFull(f, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}

	switch err := checkSanity(path, b); {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotBinary):
		return false, nil
	default:
		return false, err
	}
}

// ReadHeader liest nur den Header einer Binaerdatei
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	// Obergrenze fuer Ordnung 255
	b := make([]byte, TotalHeaderSize(math.MaxUint8))
	n, err := io.ReadFull(f, b)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Header{}, err
	}
	return DecodeHeader(path, b[:n])
}

// Classify gibt den Modelltyp einer Binaerdatei zurueck.
// Fuer Textdateien wird ErrNotBinary zurueckgegeben.
func Classify(path string) (ModelType, error) {
	h, err := ReadHeader(path)
	if err != nil {
		return 0, err
	}
	return h.ModelType, nil
}
