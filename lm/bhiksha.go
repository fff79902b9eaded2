// bhiksha.go - Kompression der Kind-Zeiger im Trie
//
// Dieses Modul enthaelt:
// - bhiksha: Lesen/Schreiben des Zeigers auf den Kindbereich eines Eintrags
// - dontBhiksha: Zeiger liegt vollstaendig im Eintrag
// - arrayBhiksha: Nur die unteren Bits liegen im Eintrag, die oberen ergeben
//   sich aus einem sortierten Offset-Array
// - chopBits: Wahl der ausgelagerten Bits nach Kostenmodell
package lm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/7blacky7/ngramlm/fs/lmfile"
	"github.com/7blacky7/ngramlm/util/bitpack"
	"github.com/7blacky7/ngramlm/util/sorteduniform"
)

const arrayBhikshaVersion = 0

// bhikshaParams bestimmen das Layout der Zeiger, sie stehen im Header der Datei
type bhikshaParams struct {
	array bool
	// bits begrenzt die ausgelagerten Bits
	bits uint8
	// cost ist der Preis eines Array-Eintrags in Bits
	cost uint64
}

type bhiksha interface {
	inlineBits() uint8
	// readNext liest den Kindbereich des Eintrags index, dessen Zeigerfeld bei bitOff liegt
	readNext(base []byte, bitOff uint64, index uint64, totalBits uint8) node
	writeNext(base []byte, bitOff uint64, index uint64, value uint64)
	finish() error
}

// bhikshaSize gibt die Groesse der Zusatzdaten fuer eine Tabelle zurueck
func bhikshaSize(p bhikshaParams, maxOffset, maxNext uint64) uint64 {
	if !p.array {
		return 0
	}
	return 8*(1+arrayCount(p, maxOffset, maxNext)) + 7
}

// bhikshaInlineBits gibt die Zeigerbits im Eintrag zurueck
func bhikshaInlineBits(p bhikshaParams, maxOffset, maxNext uint64) uint8 {
	if !p.array {
		return bitpack.RequiredBits(maxNext)
	}
	return bitpack.RequiredBits(maxNext) - chopBits(p, maxOffset, maxNext)
}

func newBhiksha(p bhikshaParams, region []byte, maxOffset, maxNext uint64) (bhiksha, error) {
	if !p.array {
		return &dontBhiksha{next: bitpack.FromMax(maxNext)}, nil
	}
	return newArrayBhiksha(p, region, maxOffset, maxNext)
}

// =============================================================================
// Ohne Kompression
// =============================================================================

type dontBhiksha struct {
	next bitpack.BitsMask
}

func (d *dontBhiksha) inlineBits() uint8 { return d.next.Bits }

func (d *dontBhiksha) readNext(base []byte, bitOff uint64, _ uint64, totalBits uint8) node {
	return node{
		begin: bitpack.ReadInt57(base, bitOff, d.next.Mask),
		end:   bitpack.ReadInt57(base, bitOff+uint64(totalBits), d.next.Mask),
	}
}

func (d *dontBhiksha) writeNext(base []byte, bitOff uint64, _ uint64, value uint64) {
	bitpack.WriteInt57(base, bitOff, value)
}

func (d *dontBhiksha) finish() error { return nil }

// =============================================================================
// Offset-Array
// =============================================================================

// chopBits waehlt die Anzahl ausgelagerter Bits mit den geringsten Kosten:
// Array-Eintraege kosten cost Bits, jedes ausgelagerte Bit spart eins pro Eintrag
func chopBits(p bhikshaParams, maxOffset, maxNext uint64) uint8 {
	required := bitpack.RequiredBits(maxNext)
	best := uint8(0)
	lowest := int64(math.MaxInt64)
	for chop := uint8(0); chop <= min(required, p.bits); chop++ {
		change := int64(maxNext>>(required-chop))*int64(p.cost) - int64(maxOffset)*int64(chop)
		if change < lowest {
			lowest, best = change, chop
		}
	}
	return best
}

func arrayCount(p bhikshaParams, maxOffset, maxNext uint64) uint64 {
	return maxNext>>(bitpack.RequiredBits(maxNext)-chopBits(p, maxOffset, maxNext)) + 1
}

// readBhikshaHeader liest bits und cost aus dem Header einer Tabelle
func readBhikshaHeader(region []byte) (bits uint8, cost uint64, err error) {
	if len(region) < 8 {
		return 0, 0, &FormatError{Msg: "pointer compression header is truncated"}
	}
	if region[0] != arrayBhikshaVersion {
		return 0, 0, &FormatError{Msg: fmt.Sprintf("this file has sorted array compression version %d but the code expects version %d", region[0], arrayBhikshaVersion)}
	}
	return region[1], uint64(binary.LittleEndian.Uint32(region[4:])), nil
}

type arrayBhiksha struct {
	params  bhikshaParams
	region  []byte
	inline  bitpack.BitsMask
	offsets []uint64
	writeTo int
}

func newArrayBhiksha(p bhikshaParams, region []byte, maxOffset, maxNext uint64) (*arrayBhiksha, error) {
	count := arrayCount(p, maxOffset, maxNext)
	offsets, err := lmfile.View[uint64](region[8 : 8+8*count])
	if err != nil {
		return nil, err
	}
	return &arrayBhiksha{
		params:  p,
		region:  region,
		inline:  bitpack.FromBits(bhikshaInlineBits(p, maxOffset, maxNext)),
		offsets: offsets,
		// offsets[0] ist immer 0
		writeTo: 1,
	}, nil
}

func (a *arrayBhiksha) inlineBits() uint8 { return a.inline.Bits }

func (a *arrayBhiksha) readNext(base []byte, bitOff uint64, index uint64, totalBits uint8) node {
	at := func(i int) uint64 { return a.offsets[i] }
	beginHigh := sorteduniform.BinaryBelow(at, len(a.offsets), index)
	endHigh := beginHigh
	for endHigh < len(a.offsets) && a.offsets[endHigh] <= index+1 {
		endHigh++
	}
	endHigh--

	return node{
		begin: uint64(beginHigh)<<a.inline.Bits | bitpack.ReadInt57(base, bitOff, a.inline.Mask),
		end:   uint64(endHigh)<<a.inline.Bits | bitpack.ReadInt57(base, bitOff+uint64(totalBits), a.inline.Mask),
	}
}

// writeNext muss mit aufsteigenden Werten aufgerufen werden
func (a *arrayBhiksha) writeNext(base []byte, bitOff uint64, index uint64, value uint64) {
	high := int(value >> a.inline.Bits)
	for ; a.writeTo <= high; a.writeTo++ {
		a.offsets[a.writeTo] = index
	}
	bitpack.WriteInt57(base, bitOff, value&a.inline.Mask)
}

func (a *arrayBhiksha) finish() error {
	a.offsets[0] = 0
	if a.writeTo != len(a.offsets) {
		return fmt.Errorf("%w: pointer array has %d of %d expected entries", ErrInternal, a.writeTo, len(a.offsets))
	}
	a.region[0] = arrayBhikshaVersion
	a.region[1] = a.params.bits
	binary.LittleEndian.PutUint32(a.region[4:], uint32(a.params.cost))
	return nil
}
