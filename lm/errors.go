package lm

import (
	"errors"

	"github.com/7blacky7/ngramlm/fs/lmfile"
)

// FormatError beschreibt fehlerhafte Eingaben (ARPA oder Binaerdatei)
type FormatError = lmfile.FormatError

// ErrInternal meldet eine verletzte Invariante beim Bau
var ErrInternal = errors.New("internal error while building the model")

// withPath setzt den Dateipfad in Formatfehlern ohne Pfad
func withPath(err error, path string) error {
	var fe *FormatError
	if errors.As(err, &fe) && fe.Path == "" {
		fe.Path = path
	}
	return err
}
