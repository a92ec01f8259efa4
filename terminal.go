package jsh

import (
	"os"

	"golang.org/x/sys/unix"
)

// Terminal owns the controlling-terminal handoff described in spec.md §5:
// the shell's process group holds the tty's foreground pgid except
// during a foreground wait window, when a child's pgid holds it instead.
// Grounded on the raw TIOCSPGRP ioctl pattern used for real pgid handoff
// in the retrieval pack's driusan/gosh reference (golang.org/x/sys/unix
// replaces that file's unsafe.Pointer + syscall.RawSyscall with the
// typed wrapper the pack's own go.sum already carries).
type Terminal struct {
	fd         int
	controlled bool
}

// newTerminal uses stdin's fd as the controlling terminal if stdin is a
// terminal (no new descriptor is opened); otherwise
// it returns a Terminal with controlled = false, and every method below
// becomes a no-op (tests and non-interactive invocations run this way).
func newTerminal(stdin *os.File) (*Terminal, error) {
	fd := int(stdin.Fd())
	if _, err := unix.IoctlGetTermios(fd, unix.TCGETS); err != nil {
		return &Terminal{fd: fd, controlled: false}, nil
	}
	return &Terminal{fd: fd, controlled: true}, nil
}

// Foreground reports the pgid currently owning the controlling terminal.
func (t *Terminal) Foreground() (int, error) {
	if !t.controlled {
		return 0, nil
	}
	pgid, err := unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
	if err != nil {
		return 0, err
	}
	return pgid, nil
}

// SetForeground hands control of the terminal to pgid. Callers must
// restore it (typically to the shell's own pgid) once the foreground
// wait window closes.
func (t *Terminal) SetForeground(pgid int) error {
	if !t.controlled {
		return nil
	}
	return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid)
}
