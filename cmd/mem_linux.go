package cmd

import "golang.org/x/sys/unix"

// totalMemory gibt den physischen Speicher zurueck, Basis fuer -S mit Prozent
func totalMemory() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
