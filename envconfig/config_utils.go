// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - Unsigned: Zahlen-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Zahlen-Getter
// =============================================================================

// Unsigned gibt eine Funktion zurueck, die eine vorzeichenlose Zahl mit
// Default-Wert liest. Ungueltige Werte werden geloggt und ignoriert.
func Unsigned[T ~uint | ~uint32 | ~uint64](key string, defaultValue T) func() T {
	return func() T {
		s := Var(key)
		if s == "" {
			return defaultValue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || uint64(T(n)) != n {
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			return defaultValue
		}
		return T(n)
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"NGRAMLM_DEBUG":              {"NGRAMLM_DEBUG", LogLevel(), "Show additional debug information (e.g. NGRAMLM_DEBUG=1)"},
		"NGRAMLM_HOST":               {"NGRAMLM_HOST", Host(), "IP Address for the query server (default 127.0.0.1:11535)"},
		"NGRAMLM_ORIGINS":            {"NGRAMLM_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"NGRAMLM_TMPDIR":             {"NGRAMLM_TMPDIR", TmpDir(), "Location of temporary sort files while building"},
		"NGRAMLM_SORT_MEMORY":        {"NGRAMLM_SORT_MEMORY", SortMemory(), "Memory for sorting n-grams while building (bytes, default 1GiB)"},
		"NGRAMLM_PROBING_MULTIPLIER": {"NGRAMLM_PROBING_MULTIPLIER", ProbingMultiplier(), "Space multiplier for probing hash tables (default 1.5)"},
		"NGRAMLM_LOAD_METHOD":        {"NGRAMLM_LOAD_METHOD", LoadMethod(), "How to load binary files: lazy, populate or read (default lazy)"},
		"NGRAMLM_BHIKSHA_COST":       {"NGRAMLM_BHIKSHA_COST", BhikshaCost(), "Bit cost of one pointer overflow entry (default 64)"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
