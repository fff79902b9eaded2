// config_features.go - Build- und Lade-Parameter
//
// Dieses Modul enthaelt:
// - Sortier-Speicher und Probing-Multiplikator fuer den Build
// - Lade-Methode fuer Binaerdateien
// - Kostenkonstante der Pointer-Kompression
package envconfig

import (
	"log/slog"
	"strconv"
	"strings"
)

// =============================================================================
// Build-Parameter
// =============================================================================

var (
	// SortMemory begrenzt den Speicher fuer das Sortieren der N-Gramme (Bytes)
	// Konfigurierbar via NGRAMLM_SORT_MEMORY
	SortMemory = Unsigned[uint64]("NGRAMLM_SORT_MEMORY", 1<<30)

	// BhikshaCost ist die Kosten-Konstante (Bits) eines Overflow-Eintrags
	// Konfigurierbar via NGRAMLM_BHIKSHA_COST
	BhikshaCost = Unsigned[uint]("NGRAMLM_BHIKSHA_COST", 64)
)

// ProbingMultiplier gibt den Wachstumsfaktor der Hash-Tabellen zurueck
// Konfigurierbar via NGRAMLM_PROBING_MULTIPLIER
// Werte <= 1.0 werden ignoriert, Default: 1.5
func ProbingMultiplier() float32 {
	const defaultValue = 1.5
	if s := Var("NGRAMLM_PROBING_MULTIPLIER"); s != "" {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil || f <= 1.0 {
			slog.Warn("invalid environment variable, using default", "key", "NGRAMLM_PROBING_MULTIPLIER", "value", s, "default", defaultValue)
			return defaultValue
		}
		return float32(f)
	}
	return defaultValue
}

// =============================================================================
// Lade-Parameter
// =============================================================================

// LoadMethod gibt die Lade-Methode fuer Binaerdateien zurueck
// Konfigurierbar via NGRAMLM_LOAD_METHOD (lazy, populate, read)
// Default: lazy
func LoadMethod() string {
	switch s := strings.ToLower(Var("NGRAMLM_LOAD_METHOD")); s {
	case "", "lazy":
		return "lazy"
	case "populate", "read":
		return s
	default:
		slog.Warn("invalid environment variable, using default", "key", "NGRAMLM_LOAD_METHOD", "value", s, "default", "lazy")
		return "lazy"
	}
}
