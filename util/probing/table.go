// Package probing - Hash-Tabelle mit offener Adressierung
//
// Dieses Modul enthaelt:
// - Table: Lineares Sondieren ueber ein Array fester Records
// - Buckets/Size: Groessenberechnung aus Eintragszahl und Multiplikator
//
// Die Records liegen in fremdem Speicher (meist ein mmap-Bereich), die
// Tabelle selbst haelt nur die Sicht darauf. Schluessel 0 markiert leere
// Slots, der Speicher muss beim Aufbau genullt sein. Es gibt kein Loeschen.
package probing

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrSizing wird zurueckgegeben, wenn die Tabelle voll ist
var ErrSizing = errors.New("probing hash table is full")

// InvalidKey markiert einen leeren Slot
const InvalidKey uint64 = 0

// Record ist ein Eintrag fester Groesse mit 64-Bit Schluessel.
// Schluessel sind bereits Hashes, die Tabelle hasht nicht erneut.
type Record interface {
	GetKey() uint64
}

// Buckets gibt die Anzahl Slots fuer entries Eintraege zurueck.
// Es bleibt immer mindestens ein Slot frei.
func Buckets(entries uint64, multiplier float32) uint64 {
	return max(entries+1, uint64(multiplier*float32(entries)))
}

// Size gibt die Groesse in Bytes fuer entries Eintraege vom Typ R zurueck
func Size[R Record](entries uint64, multiplier float32) uint64 {
	var zero R
	return Buckets(entries, multiplier) * uint64(unsafe.Sizeof(zero))
}

// Table ist eine Sicht auf Slots mit linearem Sondieren
type Table[R Record] struct {
	buckets []R
	entries uint64
}

// New erstellt eine Tabelle ueber buckets.
// Bereits belegte Slots (z.B. aus einer Binaerdatei) werden mitgezaehlt.
func New[R Record](buckets []R) *Table[R] {
	t := &Table[R]{buckets: buckets}
	for i := range buckets {
		if buckets[i].GetKey() != InvalidKey {
			t.entries++
		}
	}
	return t
}

// Insert legt r im ersten freien Slot ab seinem Hash ab
func (t *Table[R]) Insert(r R) (*R, error) {
	key := r.GetKey()
	if key == InvalidKey {
		return nil, fmt.Errorf("probing: key %d is reserved for empty slots", InvalidKey)
	}
	if t.entries+1 >= uint64(len(t.buckets)) {
		return nil, fmt.Errorf("%w: %d entries in %d buckets", ErrSizing, t.entries+1, len(t.buckets))
	}
	t.entries++

	for i := t.ideal(key); ; {
		if t.buckets[i].GetKey() == InvalidKey {
			t.buckets[i] = r
			return &t.buckets[i], nil
		}
		if i++; i == uint64(len(t.buckets)) {
			i = 0
		}
	}
}

// Find sucht key; der Zeiger zeigt in den Tabellenspeicher
func (t *Table[R]) Find(key uint64) (*R, bool) {
	if len(t.buckets) == 0 {
		return nil, false
	}
	for i := t.ideal(key); ; {
		got := t.buckets[i].GetKey()
		if got == key {
			return &t.buckets[i], true
		}
		if got == InvalidKey {
			return nil, false
		}
		if i++; i == uint64(len(t.buckets)) {
			i = 0
		}
	}
}

// Count gibt die Anzahl belegter Slots zurueck
func (t *Table[R]) Count() uint64 {
	return t.entries
}

// Len gibt die Anzahl Slots zurueck
func (t *Table[R]) Len() int {
	return len(t.buckets)
}

// All ruft fn fuer jeden belegten Slot auf
func (t *Table[R]) All(fn func(*R)) {
	for i := range t.buckets {
		if t.buckets[i].GetKey() != InvalidKey {
			fn(&t.buckets[i])
		}
	}
}

func (t *Table[R]) ideal(key uint64) uint64 {
	return key % uint64(len(t.buckets))
}
