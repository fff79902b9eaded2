// quantize.go - Quantisierung der Gewichte im Trie
//
// Dieses Modul enthaelt:
// - middleQuant/longestQuant: Bitfeld-Kodierung der Gewichte einer Ordnung
// - dontQuantize: Volle Floats (31 Bit Prob + 32 Bit Backoff)
// - separatelyQuantize: Codebuecher pro Ordnung, getrennt fuer Prob und Backoff
// - makeBins: Training mit gleich grossen Buckets
//
// Layout der quantisierten Tabellen:
// [8 Byte Header][pro mittlerer Ordnung: Prob-Tabelle, Backoff-Tabelle][Prob-Tabelle der hoechsten Ordnung]
// Prob-Code 0 ist -inf (Platzhalter), Backoff-Codes 0 und 1 sind -0.0 und +0.0.
package lm

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/7blacky7/ngramlm/fs/lmfile"
	"github.com/7blacky7/ngramlm/util/bitpack"
)

const quantizeVersion = 2

// Reservierte Backoff-Codes
const (
	noExtensionQuant uint64 = 0
	extensionQuant   uint64 = 1
)

type middleQuant interface {
	totalBits() uint8
	write(base []byte, bitOff uint64, prob, backoff float32)
	read(base []byte, bitOff uint64) (prob, backoff float32)
	readBackoff(base []byte, bitOff uint64) float32
}

type longestQuant interface {
	totalBits() uint8
	write(base []byte, bitOff uint64, prob float32)
	read(base []byte, bitOff uint64) float32
}

// quantizer liefert die Kodierung pro Ordnung
type quantizer interface {
	middle(order int) middleQuant
	longest() longestQuant
}

// quantSize gibt die Groesse der Codebuecher zurueck (0 ohne Quantisierung)
func quantSize(quantized bool, order int, probBits, backoffBits uint8) uint64 {
	if !quantized {
		return 0
	}
	prob := uint64(1) << probBits
	backoff := uint64(1) << backoffBits
	return 8 + uint64(order-2)*(prob+backoff)*4 + prob*4
}

// =============================================================================
// Ohne Quantisierung
// =============================================================================

type dontQuantize struct{}

func (dontQuantize) middle(int) middleQuant { return dontMiddle{} }
func (dontQuantize) longest() longestQuant { return dontLongest{} }

type dontMiddle struct{}

func (dontMiddle) totalBits() uint8 { return 63 }

func (dontMiddle) write(base []byte, bitOff uint64, prob, backoff float32) {
	bitpack.WriteNonPositiveFloat31(base, bitOff, prob)
	bitpack.WriteFloat32(base, bitOff+31, backoff)
}

func (dontMiddle) read(base []byte, bitOff uint64) (float32, float32) {
	return bitpack.ReadNonPositiveFloat31(base, bitOff), bitpack.ReadFloat32(base, bitOff+31)
}

func (dontMiddle) readBackoff(base []byte, bitOff uint64) float32 {
	return bitpack.ReadFloat32(base, bitOff+31)
}

type dontLongest struct{}

func (dontLongest) totalBits() uint8 { return 31 }

func (dontLongest) write(base []byte, bitOff uint64, prob float32) {
	bitpack.WriteNonPositiveFloat31(base, bitOff, prob)
}

func (dontLongest) read(base []byte, bitOff uint64) float32 {
	return bitpack.ReadNonPositiveFloat31(base, bitOff)
}

// =============================================================================
// Getrennte Quantisierung
// =============================================================================

// bins ist ein Codebuch mit 2^bits Zentren
type bins struct {
	centers []float32
	bits    uint8
	mask    uint64
}

func newBins(bits uint8, centers []float32) bins {
	return bins{centers: centers, bits: bits, mask: bitpack.Mask(bits)}
}

func (b bins) encodeProb(value float32) uint64 {
	return b.encode(value, 0)
}

func (b bins) encodeBackoff(value float32) uint64 {
	if value == 0 {
		if HasExtension(value) {
			return extensionQuant
		}
		return noExtensionQuant
	}
	return b.encode(value, 2)
}

// encode sucht das naechstgelegene Zentrum ab Position reserved
func (b bins) encode(value float32, reserved int) uint64 {
	c := b.centers
	above := reserved + sort.Search(len(c)-reserved, func(i int) bool { return c[reserved+i] >= value })
	switch {
	case above == reserved:
		return uint64(reserved)
	case above == len(c):
		return uint64(len(c) - 1)
	case value-c[above-1] < c[above]-value:
		return uint64(above - 1)
	default:
		return uint64(above)
	}
}

func (b bins) decode(code uint64) float32 {
	return b.centers[code]
}

type quantMiddle struct {
	prob, backoff bins
	total         bitpack.BitsMask
}

func (q *quantMiddle) totalBits() uint8 { return q.total.Bits }

func (q *quantMiddle) write(base []byte, bitOff uint64, prob, backoff float32) {
	bitpack.WriteInt57(base, bitOff, q.prob.encodeProb(prob)<<q.backoff.bits|q.backoff.encodeBackoff(backoff))
}

func (q *quantMiddle) read(base []byte, bitOff uint64) (float32, float32) {
	both := bitpack.ReadInt57(base, bitOff, q.total.Mask)
	return q.prob.decode(both >> q.backoff.bits), q.backoff.decode(both & q.backoff.mask)
}

func (q *quantMiddle) readBackoff(base []byte, bitOff uint64) float32 {
	return q.backoff.decode(bitpack.ReadInt57(base, bitOff, q.total.Mask) & q.backoff.mask)
}

type quantLongest struct {
	prob bins
}

func (q *quantLongest) totalBits() uint8 { return q.prob.bits }

func (q *quantLongest) write(base []byte, bitOff uint64, prob float32) {
	bitpack.WriteInt57(base, bitOff, q.prob.encodeProb(prob))
}

func (q *quantLongest) read(base []byte, bitOff uint64) float32 {
	return q.prob.decode(bitpack.ReadInt57(base, bitOff, q.prob.mask))
}

// separatelyQuantize haelt die Codebuecher aller Ordnungen
type separatelyQuantize struct {
	region      []byte
	probBits    uint8
	backoffBits uint8
	middles     []*quantMiddle
	last        *quantLongest
}

func newSeparatelyQuantize(region []byte, order int, probBits, backoffBits uint8) (*separatelyQuantize, error) {
	if err := checkQuantBits("probability", probBits, minProbBits); err != nil {
		return nil, err
	}
	if err := checkQuantBits("backoff", backoffBits, minBackoffBits); err != nil {
		return nil, err
	}

	floatsView, err := lmfile.View[float32](region[8:quantSize(true, order, probBits, backoffBits)])
	if err != nil {
		return nil, err
	}

	q := &separatelyQuantize{region: region, probBits: probBits, backoffBits: backoffBits}
	probLen, backoffLen := 1<<probBits, 1<<backoffBits
	for range order - 2 {
		m := &quantMiddle{
			prob:    newBins(probBits, floatsView[:probLen:probLen]),
			backoff: newBins(backoffBits, floatsView[probLen:probLen+backoffLen:probLen+backoffLen]),
			total:   bitpack.FromBits(probBits + backoffBits),
		}
		q.middles = append(q.middles, m)
		floatsView = floatsView[probLen+backoffLen:]
	}
	q.last = &quantLongest{prob: newBins(probBits, floatsView[:probLen:probLen])}
	return q, nil
}

// readQuantHeader liest die Bitbreiten aus einem gespeicherten Header
func readQuantHeader(region []byte) (probBits, backoffBits uint8, err error) {
	if len(region) < 8 {
		return 0, 0, &FormatError{Msg: "quantization header is truncated"}
	}
	if region[0] != quantizeVersion {
		return 0, 0, &FormatError{Msg: fmt.Sprintf("this file has quantization version %d but the code expects version %d", region[0], quantizeVersion)}
	}
	return region[1], region[2], nil
}

func (q *separatelyQuantize) middle(order int) middleQuant { return q.middles[order-2] }
func (q *separatelyQuantize) longest() longestQuant { return q.last }

// train belegt die Codebuecher der mittleren Ordnung order.
// Verschiedene Ordnungen duerfen parallel trainiert werden.
func (q *separatelyQuantize) train(order int, probs, backoffs []float32) {
	q.trainProb(order, probs)

	centers := q.middles[order-2].backoff.centers
	centers[0] = noExtensionBackoff
	centers[1] = extensionBackoff
	makeBins(backoffs, centers[2:])
}

// trainProb belegt nur das Prob-Codebuch von order
func (q *separatelyQuantize) trainProb(order int, probs []float32) {
	var centers []float32
	if order-2 < len(q.middles) {
		centers = q.middles[order-2].prob.centers
	} else {
		centers = q.last.prob.centers
	}
	centers[0] = blankProb
	makeBins(probs, centers[1:])
}

// finish schreibt den Header, danach ist die Datei lesbar
func (q *separatelyQuantize) finish() {
	q.region[0] = quantizeVersion
	q.region[1] = q.probBits
	q.region[2] = q.backoffBits
}

// makeBins sortiert values und teilt sie in len(centers) gleich grosse
// Buckets. Jedes Zentrum ist der Mittelwert seines Buckets, leere Buckets
// uebernehmen das vorige Zentrum.
func makeBins(values []float32, centers []float32) {
	slices.Sort(values)

	n := uint64(len(values))
	bucket := make([]float64, 0, n/uint64(len(centers))+1)
	start := uint64(0)
	for i := range centers {
		finish := n * uint64(i+1) / uint64(len(centers))
		if finish == start {
			if i == 0 {
				centers[i] = float32(math.Inf(-1))
			} else {
				centers[i] = centers[i-1]
			}
			continue
		}

		bucket = bucket[:0]
		for _, v := range values[start:finish] {
			bucket = append(bucket, float64(v))
		}
		centers[i] = float32(floats.Sum(bucket) / float64(len(bucket)))
		start = finish
	}
}
