package jsh

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"jsh/parser"
)

// savedStdio holds dup()'d copies of the process's original 0/1/2 so
// they can be restored after a command's redirections have been applied
// and the command has run (spec.md §4.2 "Redirection protocol").
type savedStdio struct {
	stdin, stdout, stderr int
}

func saveStdio() (*savedStdio, error) {
	in, err := unix.Dup(0)
	if err != nil {
		return nil, fmt.Errorf("dup: %w", err)
	}
	out, err := unix.Dup(1)
	if err != nil {
		unix.Close(in)
		return nil, fmt.Errorf("dup: %w", err)
	}
	errFd, err := unix.Dup(2)
	if err != nil {
		unix.Close(in)
		unix.Close(out)
		return nil, fmt.Errorf("dup: %w", err)
	}
	return &savedStdio{stdin: in, stdout: out, stderr: errFd}, nil
}

func (s *savedStdio) restore() {
	unix.Dup2(s.stdin, 0)
	unix.Dup2(s.stdout, 1)
	unix.Dup2(s.stderr, 2)
	unix.Close(s.stdin)
	unix.Close(s.stdout)
	unix.Close(s.stderr)
}

// dup2Std wires the read end of a pipe onto stdin and/or the write end
// onto stdout for a stage that will run in this process (the last stage
// of a multi-command pipeline, or the lone stage of a single-command
// pipeline invoked from a reexec'd job).
func dup2Std(in, out *os.File) error {
	if in != nil {
		if err := unix.Dup2(int(in.Fd()), 0); err != nil {
			return fmt.Errorf("dup2: %w", err)
		}
	}
	if out != nil {
		if err := unix.Dup2(int(out.Fd()), 1); err != nil {
			return fmt.Errorf("dup2: %w", err)
		}
	}
	return nil
}

func runCleanups(cleanups []func()) {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// redirectionFlags derives the open() flags for a redirection's mode,
// matching original_source/src/run/run.c's get_flags: stdin is always
// read-only; stdout/stderr are write+create, plus truncate (default),
// append, or exclusive-create depending on mode.
func redirectionFlags(r parser.Redirection) int {
	if r.Channel == parser.Stdin {
		return os.O_RDONLY
	}
	flags := os.O_WRONLY | os.O_CREATE
	switch r.Mode {
	case parser.Append:
		flags |= os.O_APPEND
	case parser.NoOverwrite:
		flags |= os.O_EXCL
	default:
		flags |= os.O_TRUNC
	}
	return flags
}

// applyRedirections opens and dup2-s every redirection of cmd onto the
// current process's 0/1/2, in stored order, returning cleanups that
// close the opened fds. A nil error with a non-OK status means the
// command must not run but the pipeline list should continue (spec.md
// §7 category 2: per-command runtime errors); the diagnostic has
// already been written to stderr.
func (sh *Shell) applyRedirections(cmd *parser.Command) ([]func(), int, error) {
	var cleanups []func()

	for _, r := range cmd.Redirections {
		var f *os.File
		var err error

		if r.Channel == parser.Stdin && r.Substitution != nil {
			sf, cleanup, serr := sh.resolveSubstitution(r.Substitution)
			if serr != nil {
				runCleanups(cleanups)
				return nil, statusCommandFailure, serr
			}
			cleanups = append(cleanups, cleanup)
			f = sf
		} else {
			f, err = os.OpenFile(r.Target, redirectionFlags(r), 0666)
			if err != nil {
				runCleanups(cleanups)
				if os.IsExist(err) {
					fmt.Fprintf(os.Stderr, "jsh: %s: cannot overwrite existing file\n", r.Target)
					return nil, statusCommandFailure, nil
				}
				if os.IsNotExist(err) && r.Channel == parser.Stdin {
					fmt.Fprintf(os.Stderr, "jsh: %s: no such file or directory\n", r.Target)
					return nil, statusCommandFailure, nil
				}
				fmt.Fprintf(os.Stderr, "jsh: %s: %v\n", r.Target, err)
				return nil, statusCommandFailure, nil
			}
			cleanups = append(cleanups, func() { f.Close() })
		}

		fd := 0
		switch r.Channel {
		case parser.Stdout:
			fd = 1
		case parser.Stderr:
			fd = 2
		}
		if err := unix.Dup2(int(f.Fd()), fd); err != nil {
			runCleanups(cleanups)
			return nil, statusCommandFailure, fmt.Errorf("dup2: %w", err)
		}
	}

	return cleanups, statusOK, nil
}

// resolveArgv expands cmd.Argv into a plain argv, substituting a
// "/proc/self/fd/<n>" path for each process-substitution argument
// (spec.md §4.2 "Process substitution"). It also returns the open files
// those paths name: a built-in dispatched in this process can use the
// argv strings directly, but anything that execs (an external command,
// or a reexec'd built-in) must route substFiles through
// exec.Cmd.ExtraFiles and rewrite the paths with rewriteForExtraFiles
// first, since exec does not carry arbitrary open descriptors forward.
func (sh *Shell) resolveArgv(cmd *parser.Command) ([]string, []*os.File, []func(), error) {
	if cmd.Empty() {
		return nil, nil, nil, fmt.Errorf("empty command")
	}

	argv := make([]string, 0, len(cmd.Argv))
	var substFiles []*os.File
	var cleanups []func()

	for _, a := range cmd.Argv {
		if a.Kind == parser.ArgLiteral {
			argv = append(argv, a.Literal)
			continue
		}
		f, cleanup, err := sh.resolveSubstitution(a.Substitution)
		if err != nil {
			runCleanups(cleanups)
			return nil, nil, nil, err
		}
		cleanups = append(cleanups, cleanup)
		substFiles = append(substFiles, f)
		argv = append(argv, fmt.Sprintf("/proc/self/fd/%d", f.Fd()))
	}

	return argv, substFiles, cleanups, nil
}

// resolveSubstitution forks a reexec'd jsh process that runs sub and
// writes its standard output into a pipe; the read end is returned as a
// live file in this process with FD_CLOEXEC cleared, matching spec.md
// §4.2: "the parent retains the read end as a file descriptor... the
// file-descriptor lifetime is opened before exec of the outer command,
// inherited across exec, closed by the OS when the outer process exits."
func (sh *Shell) resolveSubstitution(sub *parser.Pipeline) (*os.File, func(), error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("pipe: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		w.Close()
		r.Close()
		return nil, nil, fmt.Errorf("fork: error to create a process: %w", err)
	}

	c := exec.Command(self, ReexecJobArg, sub.String())
	c.Dir = sh.cwd
	c.Stdout = w
	c.Stderr = os.Stderr
	c.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, nil, fmt.Errorf("fork: error to create a process: %w", err)
	}
	w.Close()
	go c.Wait()

	if err := clearCloexec(int(r.Fd())); err != nil {
		r.Close()
		return nil, nil, fmt.Errorf("fcntl: %w", err)
	}

	return r, func() { r.Close() }, nil
}

func clearCloexec(fd int) error {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, 0)
	return err
}

// rewriteForExtraFiles translates the "/proc/self/fd/<n>" placeholders
// resolveArgv produced from real, low-numbered fds to the descriptor
// numbers an exec'd child will actually see them at: exec.Cmd.ExtraFiles
// always starts a child's extra descriptors at 3, in list order,
// regardless of what the fd was numbered in this process. Every call
// site that execs — external commands and reexec'd built-ins alike —
// must run its argv and substFiles through this before building the
// exec.Cmd.
func rewriteForExtraFiles(argv []string, substFiles []*os.File) ([]string, []*os.File) {
	if len(substFiles) == 0 {
		return argv, nil
	}
	rewritten := make([]string, len(argv))
	copy(rewritten, argv)
	for i, f := range substFiles {
		real := fmt.Sprintf("/proc/self/fd/%d", f.Fd())
		child := fmt.Sprintf("/proc/self/fd/%d", 3+i)
		for j, a := range rewritten {
			if a == real {
				rewritten[j] = child
			}
		}
	}
	return rewritten, substFiles
}
