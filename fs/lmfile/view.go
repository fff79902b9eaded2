package lmfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

var littleEndianHost = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// View interpretiert b als Slice von T.
// Laenge und Ausrichtung werden einmal beim Aufsetzen geprueft; T darf
// keine Zeiger enthalten.
func View[T any](b []byte) ([]T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if !littleEndianHost {
		return nil, errors.New("typed views over model memory need a little-endian host")
	}
	if len(b)%size != 0 {
		return nil, fmt.Errorf("region of %d bytes is not a multiple of the %d byte record size", len(b), size)
	}
	if len(b) == 0 {
		return nil, nil
	}
	if uintptr(unsafe.Pointer(&b[0]))%unsafe.Alignof(zero) != 0 {
		return nil, fmt.Errorf("region is not aligned to %d bytes", unsafe.Alignof(zero))
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size), nil
}
