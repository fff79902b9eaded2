// Package sorteduniform - Suche in sortierten, etwa gleichverteilten Schluesseln
//
// Dieses Modul enthaelt:
// - Find/FindSlice: Interpolationssuche ueber einen sortierten Bereich
// - BoundedFind: Interpolationssuche mit bekannten Grenzen
// - BinaryFind/BinaryBelow: klassische Binaersuche
//
// Die Pivot-Wahl nimmt gleichverteilte Schluessel an (Hashes, Wort-IDs).
// Bei schiefer Verteilung bleibt die Suche korrekt, braucht aber mehr
// Schritte, weil jeder Pivot strikt zwischen den Grenzen liegt.
package sorteduniform

// Accessor liefert den Schluessel an Position i
type Accessor func(i int) uint64

// pivot interpoliert off/rng auf width Positionen, begrenzt auf width-1
func pivot(off, rng uint64, width int) int {
	ret := int(float32(off) / float32(rng) * float32(width))
	if ret < width {
		return ret
	}
	return width - 1
}

// BoundedFind sucht key strikt zwischen before und after.
// Es muss beforeKey <= key < afterKey gelten; before darf -1 sein und
// after darf hinter dem Ende liegen, beide Positionen werden nie gelesen.
func BoundedFind(at Accessor, before int, beforeKey uint64, after int, afterKey uint64, key uint64) (int, bool) {
	for after-before > 1 {
		p := before + 1 + pivot(key-beforeKey, afterKey-beforeKey, after-before-1)
		mid := at(p)
		switch {
		case mid < key:
			before, beforeKey = p, mid
		case mid > key:
			after, afterKey = p, mid
		default:
			return p, true
		}
	}
	return 0, false
}

// Find sucht key in den sortierten Positionen [0, n)
func Find(at Accessor, n int, key uint64) (int, bool) {
	if n == 0 {
		return 0, false
	}

	below := at(0)
	if key <= below {
		return 0, key == below
	}

	last := n - 1
	above := at(last)
	if key >= above {
		return last, key == above
	}

	return BoundedFind(at, 0, below, last, above, key)
}

// FindSlice sucht key im sortierten Slice keys
func FindSlice(keys []uint64, key uint64) (int, bool) {
	return Find(func(i int) uint64 { return keys[i] }, len(keys), key)
}

// BinaryFind sucht key in [0, n) mit Binaersuche
func BinaryFind(at Accessor, n int, key uint64) (int, bool) {
	lo, hi := 0, n
	for lo < hi {
		p := lo + (hi-lo)/2
		mid := at(p)
		switch {
		case mid < key:
			lo = p + 1
		case mid > key:
			hi = p
		default:
			return p, true
		}
	}
	return 0, false
}

// BinaryBelow gibt die letzte Position mit Schluessel <= key zurueck.
// Bei gleichen Schluesseln ist es die letzte Position des Laufs.
// Liegt key unter allen Schluesseln, ist das Ergebnis -1.
func BinaryBelow(at Accessor, n int, key uint64) int {
	lo, hi := 0, n
	for hi > lo {
		p := lo + (hi-lo)/2
		mid := at(p)
		switch {
		case mid < key:
			lo = p + 1
		case mid > key:
			hi = p
		default:
			for p++; p < hi && at(p) == mid; p++ {
			}
			return p - 1
		}
	}
	return lo - 1
}
