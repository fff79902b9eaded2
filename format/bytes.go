// Package format - Formatierung und Parsing von Groessenangaben
//
// Dieses Modul enthaelt:
// - HumanBytes: Bytes als lesbare Groesse (z.B. "1.5 GB")
// - ParseBytes: Groessenangaben wie "512M" oder "80%" fuer Sortier-Speicher
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	Byte = 1

	KiloByte = Byte * 1000
	MegaByte = KiloByte * 1000
	GigaByte = MegaByte * 1000
	TeraByte = GigaByte * 1000

	KibiByte = Byte * 1024
	MebiByte = KibiByte * 1024
	GibiByte = MebiByte * 1024
	TebiByte = GibiByte * 1024
)

// HumanBytes formatiert b mit Dezimal-Einheiten
func HumanBytes(b int64) string {
	var value float64
	var unit string

	switch {
	case b >= TeraByte:
		value = float64(b) / TeraByte
		unit = "TB"
	case b >= GigaByte:
		value = float64(b) / GigaByte
		unit = "GB"
	case b >= MegaByte:
		value = float64(b) / MegaByte
		unit = "MB"
	case b >= KiloByte:
		value = float64(b) / KiloByte
		unit = "KB"
	default:
		return fmt.Sprintf("%d B", b)
	}

	if value >= 10 || value == math.Trunc(value) {
		return fmt.Sprintf("%d %s", int(value), unit)
	}
	return fmt.Sprintf("%.1f %s", value, unit)
}

// ParseBytes liest eine Groessenangabe mit optionalem Suffix.
// Suffixe sind binaer (b, K, M, G, T), ohne Suffix gilt K.
// Prozentangaben beziehen sich auf total.
func ParseBytes(s string, total uint64) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	if p, ok := strings.CutSuffix(s, "%"); ok {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 || f > 100 {
			return 0, fmt.Errorf("invalid percentage %q", s)
		}
		if total == 0 {
			return 0, fmt.Errorf("percentage %q needs a known total", s)
		}
		return uint64(f / 100 * float64(total)), nil
	}

	multiplier := uint64(KibiByte)
	number := s
	switch last := s[len(s)-1]; last {
	case 'b', 'B':
		multiplier, number = Byte, s[:len(s)-1]
	case 'k', 'K':
		multiplier, number = KibiByte, s[:len(s)-1]
	case 'm', 'M':
		multiplier, number = MebiByte, s[:len(s)-1]
	case 'g', 'G':
		multiplier, number = GibiByte, s[:len(s)-1]
	case 't', 'T':
		multiplier, number = TebiByte, s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(number, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return uint64(f * float64(multiplier)), nil
}
