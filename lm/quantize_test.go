// MODUL: quantize_test
// ZWECK: Codebuch-Training und Kodierung der Gewichte
// INPUT: Handgewaehlte Werte
// OUTPUT: Testergebnisse
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: testify
// HINWEISE: Code 0 ist der Platzhalter, Backoff-Codes 0/1 sind -0.0/+0.0
package lm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeBins(t *testing.T) {
	centers := make([]float32, 2)
	makeBins([]float32{-1, -4, -2, -3}, centers)
	assert.Equal(t, []float32{-3.5, -1.5}, centers)

	// weniger Werte als Buckets
	centers = make([]float32, 3)
	makeBins([]float32{-1}, centers)
	assert.True(t, math.IsInf(float64(centers[0]), -1))
	assert.True(t, math.IsInf(float64(centers[1]), -1))
	assert.Equal(t, float32(-1), centers[2])
}

func TestEncodeBackoffSentinels(t *testing.T) {
	b := newBins(4, make([]float32, 16))
	b.centers[0], b.centers[1] = noExtensionBackoff, extensionBackoff
	makeBins([]float32{-0.5, -0.25, -0.1}, b.centers[2:])

	assert.Equal(t, noExtensionQuant, b.encodeBackoff(noExtensionBackoff))
	assert.Equal(t, extensionQuant, b.encodeBackoff(extensionBackoff))
	assert.False(t, HasExtension(b.decode(noExtensionQuant)))
	assert.True(t, HasExtension(b.decode(extensionQuant)))

	// echte Werte landen nie auf den reservierten Codes
	code := b.encodeBackoff(-0.01)
	assert.GreaterOrEqual(t, code, uint64(2))
	assert.Equal(t, float32(-0.1), b.decode(code))
}

func TestSeparatelyQuantize(t *testing.T) {
	const order = 3
	region := make([]byte, quantSize(true, order, 4, 4))
	q, err := newSeparatelyQuantize(region, order, 4, 4)
	require.NoError(t, err)

	q.train(2, []float32{-1.5, -0.5, -2.5}, []float32{-0.3, -0.7})
	q.trainProb(3, []float32{-0.75, -1.25})
	q.finish()

	base := make([]byte, 32)
	m := q.middle(2)
	require.Equal(t, uint8(8), m.totalBits())

	m.write(base, 3, -0.5, -0.7)
	prob, backoff := m.read(base, 3)
	assert.Equal(t, float32(-0.5), prob)
	assert.Equal(t, float32(-0.7), backoff)

	// Platzhalter ohne Fortsetzung
	m.write(base, 11, blankProb, noExtensionBackoff)
	prob, backoff = m.read(base, 11)
	assert.True(t, isBlank(prob))
	assert.False(t, HasExtension(backoff))
	assert.False(t, HasExtension(m.readBackoff(base, 11)))

	l := q.longest()
	l.write(base, 19, -1.25)
	assert.Equal(t, float32(-1.25), l.read(base, 19))

	probBits, backoffBits, err := readQuantHeader(region)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), probBits)
	assert.Equal(t, uint8(4), backoffBits)

	region[0] = quantizeVersion + 1
	_, _, err = readQuantHeader(region)
	var fe *FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestDontQuantize(t *testing.T) {
	base := make([]byte, 16)
	m := dontQuantize{}.middle(2)
	m.write(base, 1, -2.25, extensionBackoff)
	prob, backoff := m.read(base, 1)
	assert.Equal(t, float32(-2.25), prob)
	assert.True(t, HasExtension(backoff))
	assert.Equal(t, uint8(63), m.totalBits())
}

func TestQuantBitsRejected(t *testing.T) {
	tests := []struct {
		name                  string
		probBits, backoffBits uint8
	}{
		{"no prob bits", 0, 8},
		{"backoff codes all reserved", 8, 1},
		{"prob bits too large", 26, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newSeparatelyQuantize(make([]byte, 64), 3, tt.probBits, tt.backoffBits)
			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		})
	}
}
