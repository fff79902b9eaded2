// config.go - Konfiguration fuer Bau und Laden
//
// Dieses Modul enthaelt:
// - WarningAction: Reaktion auf fehlende Sonderwoerter und positive Log-Probs
// - Config: Alle Parameter fuer Bau und Laden eines Modells
// - DefaultConfig: Standardwerte, ueberschrieben aus envconfig
// - Validate: Prueft die Parameter vor jeglichem I/O
package lm

import (
	"fmt"
	"log/slog"

	"github.com/7blacky7/ngramlm/envconfig"
	"github.com/7blacky7/ngramlm/fs/lmfile"
)

// WarningAction bestimmt, wie auf ein Problem in der ARPA-Datei reagiert wird
type WarningAction int

const (
	// Silent ignoriert das Problem
	Silent WarningAction = iota
	// Complain loggt eine Warnung
	Complain
	// ThrowUp bricht mit einem Fehler ab
	ThrowUp
)

func (a WarningAction) String() string {
	switch a {
	case Silent:
		return "silent"
	case Complain:
		return "complain"
	default:
		return "throw_up"
	}
}

// ConfigError meldet ungueltige Parameter
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Msg
}

// Config enthaelt die Parameter fuer Bau und Laden
type Config struct {
	// ProbingMultiplier ist das Verhaeltnis Slots/Eintraege der Hash-Tabellen, > 1.0
	ProbingMultiplier float32

	UnknownMissing         WarningAction
	SentenceMarkerMissing  WarningAction
	PositiveLogProbability WarningAction

	// UnknownMissingLogProb ersetzt <unk>, wenn die ARPA-Datei keins hat
	UnknownMissingLogProb float32

	// TempPrefix ist das Praefix des temporaeren Verzeichnisses beim Trie-Bau.
	// Leer heisst: neben der Ausgabedatei bzw. in envconfig.TmpDir().
	TempPrefix string

	// SortMemory begrenzt den Sortierpuffer beim Trie-Bau in Bytes
	SortMemory uint64

	// Quantisierung, nur fuer Trie-Modelle
	ProbBits    uint8
	BackoffBits uint8

	// ArrayBits ist die Obergrenze der ausgelagerten Zeiger-Bits
	ArrayBits uint8

	// BhikshaEntryCost ist der Kostenfaktor eines Eintrags im Offset-Array
	BhikshaEntryCost uint64

	// IncludeVocab schreibt die Wort-Strings in die Binaerdatei
	IncludeVocab bool

	LoadMethod lmfile.LoadMethod

	// EnumerateVocab bekommt beim Laden jedes (ID, Wort)-Paar, darf nil sein
	EnumerateVocab EnumerateVocab
}

// DefaultConfig gibt die Standardwerte zurueck
func DefaultConfig() Config {
	method, err := lmfile.ParseLoadMethod(envconfig.LoadMethod())
	if err != nil {
		slog.Warn("invalid environment variable, using default", "key", "NGRAMLM_LOAD_METHOD", "error", err)
	}

	return Config{
		ProbingMultiplier:      envconfig.ProbingMultiplier(),
		UnknownMissing:         Complain,
		SentenceMarkerMissing:  ThrowUp,
		PositiveLogProbability: ThrowUp,
		UnknownMissingLogProb:  -100,
		SortMemory:             envconfig.SortMemory(),
		ProbBits:               8,
		BackoffBits:            8,
		ArrayBits:              22,
		BhikshaEntryCost:       uint64(envconfig.BhikshaCost()),
		IncludeVocab:           true,
		LoadMethod:             method,
	}
}

// minSortMemory ist die untere Grenze fuer den Sortierpuffer
const minSortMemory = 1 << 20

// Validate prueft die Parameter fuer einen Bau vom Typ t
func (c *Config) Validate(t lmfile.ModelType) error {
	if c.ProbingMultiplier <= 1.0 {
		return &ConfigError{Msg: fmt.Sprintf("probing multiplier must be > 1.0, got %g", c.ProbingMultiplier)}
	}

	switch t {
	case lmfile.HashProbing:
	case lmfile.HashSorted:
		return &ConfigError{Msg: "the sorted hash model type is not supported"}
	case lmfile.Trie, lmfile.QuantTrie, lmfile.ArrayTrie, lmfile.QuantArrayTrie:
	default:
		return &ConfigError{Msg: fmt.Sprintf("unknown model type %d", t)}
	}

	if t.Quantized() {
		if err := checkQuantBits("probability", c.ProbBits, minProbBits); err != nil {
			return err
		}
		if err := checkQuantBits("backoff", c.BackoffBits, minBackoffBits); err != nil {
			return err
		}
	}

	if t.ArrayCompressed() && c.BhikshaEntryCost == 0 {
		return &ConfigError{Msg: "offset array entry cost must be positive"}
	}
	return nil
}

// Untergrenzen der Bitbreiten. Backoff-Code 0 und 1 sind fuer -0.0 und +0.0
// reserviert, es braucht also mindestens einen weiteren Code.
const (
	minProbBits    = 1
	minBackoffBits = 2
	maxQuantBits   = 25
)

func checkQuantBits(what string, bits, minBits uint8) error {
	if bits < minBits || bits > maxQuantBits {
		return &ConfigError{Msg: fmt.Sprintf("%s quantization bits must be between %d and %d, got %d", what, minBits, maxQuantBits, bits)}
	}
	return nil
}

// warn reagiert gemaess action auf ein Problem
func warn(action WarningAction, err error) error {
	switch action {
	case ThrowUp:
		return err
	case Complain:
		slog.Warn(err.Error())
	}
	return nil
}
