// table_test.go - Unit Tests fuer die Probing-Hash-Tabelle
package probing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Key   uint64
	Value uint32
	_     uint32
}

func (e entry) GetKey() uint64 { return e.Key }

func newTable(entries uint64, multiplier float32) *Table[entry] {
	return New(make([]entry, Buckets(entries, multiplier)))
}

func TestInsertFind(t *testing.T) {
	table := newTable(100, 1.5)

	for i := uint64(1); i <= 100; i++ {
		// Kollisionen erzwingen: viele Schluessel mit gleichem Rest
		_, err := table.Insert(entry{Key: i * uint64(table.Len()), Value: uint32(i)})
		require.NoError(t, err)
	}

	for i := uint64(1); i <= 100; i++ {
		got, ok := table.Find(i * uint64(table.Len()))
		require.True(t, ok, "Schluessel %d nicht gefunden", i)
		assert.Equal(t, uint32(i), got.Value)
	}

	_, ok := table.Find(12345)
	assert.False(t, ok)
	assert.Equal(t, uint64(100), table.Count())
}

func TestFindMutable(t *testing.T) {
	table := newTable(4, 2)
	_, err := table.Insert(entry{Key: 42, Value: 1})
	require.NoError(t, err)

	got, ok := table.Find(42)
	require.True(t, ok)
	got.Value = 7

	again, _ := table.Find(42)
	assert.Equal(t, uint32(7), again.Value)
}

func TestSizingError(t *testing.T) {
	const capacity = 16
	// Tabelle fuer capacity-1 Eintraege ohne Reserve
	table := newTable(capacity-1, 1.0)
	require.Equal(t, capacity, table.Len())

	for i := uint64(1); i < capacity; i++ {
		_, err := table.Insert(entry{Key: i, Value: uint32(i)})
		require.NoError(t, err)
	}

	_, err := table.Insert(entry{Key: capacity, Value: capacity})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizing))

	// Bestehende Eintraege sind unveraendert
	for i := uint64(1); i < capacity; i++ {
		got, ok := table.Find(i)
		require.True(t, ok)
		assert.Equal(t, uint32(i), got.Value)
	}
	_, ok := table.Find(capacity)
	assert.False(t, ok)
}

func TestInvalidKey(t *testing.T) {
	table := newTable(4, 1.5)
	_, err := table.Insert(entry{Key: InvalidKey})
	assert.Error(t, err)
}

func TestReopen(t *testing.T) {
	buckets := make([]entry, Buckets(10, 1.5))
	first := New(buckets)
	for i := uint64(1); i <= 10; i++ {
		_, err := first.Insert(entry{Key: i * 977})
		require.NoError(t, err)
	}

	second := New(buckets)
	assert.Equal(t, uint64(10), second.Count())
	_, ok := second.Find(5 * 977)
	assert.True(t, ok)

	var n int
	second.All(func(*entry) { n++ })
	assert.Equal(t, 10, n)
}

func TestSize(t *testing.T) {
	assert.Equal(t, uint64(7*16), Size[entry](5, 1.5))
	assert.Equal(t, uint64(1), Buckets(0, 1.5))
}
