// Package internal provides descriptor-level helpers used across the pcache packages.
package internal

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// ReopenPath returns an OS-openable path resolving to the open file
// description behind f. On Linux the path stays usable even after the
// original name is unlinked, which is what lets a process reopen files it
// was handed by descriptor only.
func ReopenPath(f *os.File) string {
	if runtime.GOOS == "linux" {
		return fmt.Sprintf("/proc/self/fd/%d", f.Fd())
	}
	return fmt.Sprintf("/dev/fd/%d", f.Fd())
}

// DupFile clones the descriptor behind f into an independently owned
// *os.File with the same name. The clone is close-on-exec; handing it to
// another process is always an explicit transfer.
func DupFile(f *os.File) (*os.File, error) {
	fd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("dup %q: %w", f.Name(), err)
	}
	return os.NewFile(uintptr(fd), f.Name()), nil
}
