// MODUL: bytes_test
// ZWECK: Formatierung und Parsing von Groessenangaben
// INPUT: Tabellen mit Eingaben
// OUTPUT: Testergebnisse
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: testify
package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		input  int64
		expect string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1 KB"},
		{1500, "1.5 KB"},
		{15_000_000, "15 MB"},
		{2_300_000_000, "2.3 GB"},
		{4_000_000_000_000, "4 TB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, HumanBytes(tt.input))
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input  string
		total  uint64
		expect uint64
	}{
		{"100b", 0, 100},
		{"4", 0, 4 * KibiByte},
		{"1.5K", 0, 1536},
		{"512M", 0, 512 * MebiByte},
		{"2g", 0, 2 * GibiByte},
		{"1T", 0, TebiByte},
		{"50%", 1000, 500},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBytes(tt.input, tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}

	for _, bad := range []string{"", "x", "-1M", "150%"} {
		_, err := ParseBytes(bad, 1000)
		assert.Error(t, err, bad)
	}

	_, err := ParseBytes("10%", 0)
	assert.ErrorContains(t, err, "known total")
}
