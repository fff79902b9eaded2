// bitpack_test.go - Unit Tests fuer gepackte Integer-Felder
package bitpack

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredBits(t *testing.T) {
	tests := []struct {
		max  uint64
		want uint8
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{255, 8},
		{256, 9},
		{math.MaxUint32, 32},
		{1 << 56, 57},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RequiredBits(tt.max), "RequiredBits(%d)", tt.max)
	}
}

func TestInt57RoundTrip(t *testing.T) {
	const entries = 1000
	for _, width := range []uint8{1, 3, 7, 8, 13, 31, 32, 45, 57} {
		t.Run(fmt.Sprintf("%d-bits", width), func(t *testing.T) {
			mask := Mask(width)
			r := rand.New(rand.NewPCG(uint64(width), 7))
			buf := make([]byte, (entries*uint64(width)+7)/8+8)
			want := make([]uint64, entries)
			for i := range want {
				want[i] = r.Uint64() & mask
				WriteInt57(buf, uint64(i)*uint64(width), want[i])
			}
			for i := range want {
				require.Equal(t, want[i], ReadInt57(buf, uint64(i)*uint64(width), mask), "Feld %d mit %d Bits", i, width)
			}
		})
	}
}

func TestFloats(t *testing.T) {
	buf := make([]byte, 32)
	values := []float32{0, -0.5, -1.25, -99, float32(math.Inf(-1))}

	// 31-Bit Felder hintereinander, bewusst unausgerichtet
	for i, v := range values {
		WriteNonPositiveFloat31(buf, 3+uint64(i)*31, v)
	}
	for i, v := range values {
		got := ReadNonPositiveFloat31(buf, 3+uint64(i)*31)
		if v == 0 {
			assert.Equal(t, uint32(0x80000000), math.Float32bits(got), "0 wird als -0.0 gelesen")
			continue
		}
		assert.Equal(t, v, got)
	}

	clear(buf)
	WriteFloat32(buf, 5, 0.25)
	WriteFloat32(buf, 37, float32(math.Copysign(0, -1)))
	assert.Equal(t, float32(0.25), ReadFloat32(buf, 5))
	assert.Equal(t, uint32(0x80000000), math.Float32bits(ReadFloat32(buf, 37)))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(57))
	assert.Error(t, Check(58))
	assert.Equal(t, BitsMask{Bits: 4, Mask: 15}, FromMax(9))
}
