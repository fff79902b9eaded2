package lm

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// State ist der Kontext nach einem Wort, neuestes Wort zuerst. Nur die
// ersten Length Eintraege gelten, Backoff[i] gehoert zu Words[:i+1].
type State struct {
	Words   [MaxOrder - 1]WordIndex
	Backoff [MaxOrder - 1]float32
	Length  uint8
}

// Equal vergleicht nur den gueltigen Teil
func (s State) Equal(o State) bool {
	if s.Length != o.Length {
		return false
	}
	return slices.Equal(s.Words[:s.Length], o.Words[:o.Length])
}

// Hash ist mit Equal vertraeglich
func (s State) Hash() uint64 {
	var b [4 * (MaxOrder - 1)]byte
	for i := range int(s.Length) {
		binary.LittleEndian.PutUint32(b[4*i:], s.Words[i])
	}
	return xxhash.Sum64(b[:4*int(s.Length)])
}

// FullScoreReturn ist das Ergebnis einer Abfrage
type FullScoreReturn struct {
	// Prob ist die log10-Wahrscheinlichkeit inklusive Backoffs
	Prob float32
	// NgramLength ist die Laenge des laengsten gefundenen N-Gramms
	NgramLength uint8
}
