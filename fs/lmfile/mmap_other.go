//go:build !(linux || darwin || freebsd)

package lmfile

import (
	"os"
)

// region haelt den Dateibereich im Heap, wenn mmap nicht verfuegbar ist.
// sync schreibt beschreibbare Bereiche an ihren Offset zurueck.
type region struct {
	data     []byte
	f        *os.File
	off      int64
	writable bool
}

func mapRegion(f *os.File, off int64, length int, writable bool) (*region, error) {
	r := &region{data: make([]byte, length), f: f, off: off, writable: writable}
	if _, err := f.ReadAt(r.data, off); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *region) sync() error {
	if !r.writable || len(r.data) == 0 {
		return nil
	}
	_, err := r.f.WriteAt(r.data, r.off)
	return err
}

func (r *region) willNeed() error {
	return nil
}

func (r *region) unmap() error {
	err := r.sync()
	r.data = nil
	return err
}
