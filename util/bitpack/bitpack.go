// Package bitpack - Lesen und Schreiben gepackter Integer-Felder
//
// Alle Bitfeld-Zugriffe der Trie-Tabellen laufen ueber dieses Paket.
// Ein Feld wird ueber seinen Bit-Offset adressiert und ist hoechstens
// 57 Bit breit, damit es immer in ein 64-Bit-Wort ab Byte-Grenze passt.
// Der Puffer muss deshalb 8 Bytes Reserve hinter dem letzten Feld haben.
//
// Schreiben verodert in den Speicher, der Zielbereich muss genullt sein.
package bitpack

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// MaxBits ist die groesste Feldbreite, die ReadInt57/WriteInt57 erlauben
const MaxBits = 57

// ReadInt57 liest ein Feld der Breite mask ab Bit bitOff
func ReadInt57(base []byte, bitOff uint64, mask uint64) uint64 {
	return (binary.LittleEndian.Uint64(base[bitOff>>3:]) >> (bitOff & 7)) & mask
}

// WriteInt57 verodert value an Bit bitOff; value muss in die Feldbreite passen
func WriteInt57(base []byte, bitOff uint64, value uint64) {
	b := base[bitOff>>3:]
	binary.LittleEndian.PutUint64(b, binary.LittleEndian.Uint64(b)|(value<<(bitOff&7)))
}

// ReadFloat32 liest einen vollen 32-Bit Float ab Bit bitOff
func ReadFloat32(base []byte, bitOff uint64) float32 {
	return math.Float32frombits(uint32(ReadInt57(base, bitOff, math.MaxUint32)))
}

// WriteFloat32 schreibt einen vollen 32-Bit Float ab Bit bitOff
func WriteFloat32(base []byte, bitOff uint64, value float32) {
	WriteInt57(base, bitOff, uint64(math.Float32bits(value)))
}

const signBit = 0x80000000

// ReadNonPositiveFloat31 liest einen Float ohne gespeichertes Vorzeichen.
// Das Vorzeichen ist implizit negativ.
func ReadNonPositiveFloat31(base []byte, bitOff uint64) float32 {
	return math.Float32frombits(uint32(ReadInt57(base, bitOff, signBit-1)) | signBit)
}

// WriteNonPositiveFloat31 schreibt value <= 0 (auch -0.0 und -inf) in 31 Bit
func WriteNonPositiveFloat31(base []byte, bitOff uint64, value float32) {
	WriteInt57(base, bitOff, uint64(math.Float32bits(value)&(signBit-1)))
}

// RequiredBits gibt die Anzahl Bits zurueck, die max darstellen koennen.
// Fuer max == 0 sind es 0 Bits.
func RequiredBits(max uint64) uint8 {
	if max == 0 {
		return 0
	}
	return uint8(bits.Len64(max))
}

// Mask gibt eine Maske mit den unteren n Bits zurueck
func Mask(n uint8) uint64 {
	if n >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << n) - 1
}

// BitsMask fasst Breite und Maske eines Feldes zusammen
type BitsMask struct {
	Bits uint8
	Mask uint64
}

// FromMax erstellt ein Feld, das Werte bis max aufnimmt
func FromMax(max uint64) BitsMask {
	return FromBits(RequiredBits(max))
}

// FromBits erstellt ein Feld mit n Bits
func FromBits(n uint8) BitsMask {
	return BitsMask{Bits: n, Mask: Mask(n)}
}

// Check prueft, ob ein Feld mit n Bits gelesen werden kann
func Check(n uint8) error {
	if n > MaxBits {
		return fmt.Errorf("bit packing: field of %d bits exceeds the %d bit limit", n, MaxBits)
	}
	return nil
}
