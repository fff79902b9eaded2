// Package lm - N-Gramm Sprachmodelle im Binaerformat
//
// Dieses Modul enthaelt:
// - WordIndex/MaxOrder: Grundtypen fuer Wort-IDs und Ordnungen
// - ProbBackoff: Gewichte eines N-Gramms
// - Sentinel-Werte fuer Backoffs (Erweiterung) und leere N-Gramme
//
// Alle Wahrscheinlichkeiten sind log10-Werte. Ein Backoff von -0.0 sagt,
// dass kein laengeres N-Gramm dieses Kontext fortsetzt; +0.0 sagt das
// Gegenteil. Jeder andere Wert zaehlt als Fortsetzung.
package lm

import "math"

// WordIndex ist die dichte ID eines Wortes, 0 ist <unk>
type WordIndex = uint32

// MaxOrder ist die groesste unterstuetzte Ordnung
const MaxOrder = 6

// ProbBackoff sind die Gewichte eines Unigramms oder mittleren N-Gramms
type ProbBackoff struct {
	Prob    float32
	Backoff float32
}

// Bitmuster von -0.0
const noExtensionBits uint32 = 0x80000000

var (
	// noExtensionBackoff markiert einen Kontext ohne Fortsetzung
	noExtensionBackoff = math.Float32frombits(noExtensionBits)

	// blankProb kennzeichnet ein Platzhalter-N-Gramm ohne eigene Wahrscheinlichkeit
	blankProb = float32(math.Inf(-1))
)

const extensionBackoff float32 = 0

// HasExtension meldet, ob ein Backoff eine Fortsetzung anzeigt
func HasExtension(backoff float32) bool {
	return math.Float32bits(backoff) != noExtensionBits
}

// setExtension macht aus -0.0 ein +0.0, andere Werte bleiben
func setExtension(backoff *float32) {
	if *backoff == 0 {
		*backoff = extensionBackoff
	}
}

// isBlank meldet den Platzhalter -inf
func isBlank(prob float32) bool {
	return math.IsInf(float64(prob), -1)
}
