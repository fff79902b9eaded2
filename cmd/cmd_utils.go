// cmd_utils.go - Gemeinsame Hilfsfunktionen
// Hauptfunktionen: fileSize
package cmd

import "os"

// fileSize - Groesse einer Datei in Bytes
func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
