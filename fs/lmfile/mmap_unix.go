//go:build linux || darwin || freebsd

package lmfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// region ist ein gemappter Dateibereich ab einem beliebigen Offset
type region struct {
	data []byte
	raw  []byte
}

// mapRegion mappt length Bytes ab off; der Offset muss nicht seitenausgerichtet sein
func mapRegion(f *os.File, off int64, length int, writable bool) (*region, error) {
	if length == 0 {
		return &region{}, nil
	}

	page := int64(os.Getpagesize())
	aligned := off &^ (page - 1)
	delta := int(off - aligned)

	prot, flags := unix.PROT_READ, unix.MAP_PRIVATE
	if writable {
		prot, flags = unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED
	}

	raw, err := unix.Mmap(int(f.Fd()), aligned, length+delta, prot, flags)
	if err != nil {
		return nil, fmt.Errorf("mmap %s at %d (%d bytes): %w", f.Name(), off, length, err)
	}
	return &region{data: raw[delta:], raw: raw}, nil
}

func (r *region) sync() error {
	if len(r.raw) == 0 {
		return nil
	}
	return unix.Msync(r.raw, unix.MS_SYNC)
}

// willNeed laedt die Seiten vorab in den Page-Cache
func (r *region) willNeed() error {
	if len(r.raw) == 0 {
		return nil
	}
	return unix.Madvise(r.raw, unix.MADV_WILLNEED)
}

func (r *region) unmap() error {
	if len(r.raw) == 0 {
		return nil
	}
	raw := r.raw
	r.raw, r.data = nil, nil
	return unix.Munmap(raw)
}
