package jsh

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// builtin is the shape every built-in dispatches through: the spec
// treats a built-in as "an opaque function taking an argument vector
// and returning a status," so that is exactly the signature here
// (stdin/stdout threaded explicitly rather than read off the package,
// since redirections and pipe stages have already been wired onto them
// by the time a built-in runs). Grounded on the teacher's builtins map
// in builtins.go, reshaped around this package's explicit Shell.
type builtin func(sh *Shell, argv []string, stdin, stdout *os.File) (int, error)

var builtins = map[string]builtin{
	"pwd":  biPwd,
	"cd":   biCd,
	"exit": biExit,
	"?":    biLastStatus,
	"jobs": biJobs,
	"kill": biKill,
	"bg":   biBg,
	"fg":   biFg,
}

func biPwd(sh *Shell, argv []string, stdin, stdout *os.File) (int, error) {
	fmt.Fprintln(stdout, sh.CWD())
	return statusOK, nil
}

func biCd(sh *Shell, argv []string, stdin, stdout *os.File) (int, error) {
	target := ""
	if len(argv) > 1 {
		target = argv[1]
	}
	if err := sh.Chdir(target); err != nil {
		fmt.Fprintf(os.Stderr, "jsh: %v\n", err)
		return statusCommandFailure, nil
	}
	return statusOK, nil
}

// biExit implements exit by unwinding the caller's loop with *ErrExit;
// the read loop in cmd/jsh is responsible for the actual process exit.
func biExit(sh *Shell, argv []string, stdin, stdout *os.File) (int, error) {
	status := sh.lastExitStatus
	if len(argv) > 1 {
		if n, err := strconv.Atoi(argv[1]); err == nil {
			status = n
		}
	}
	return status, &ErrExit{Status: status}
}

func biLastStatus(sh *Shell, argv []string, stdin, stdout *os.File) (int, error) {
	fmt.Fprintln(stdout, sh.LastExitStatus())
	return statusOK, nil
}

func biJobs(sh *Shell, argv []string, stdin, stdout *os.File) (int, error) {
	for _, job := range sh.jobs.List() {
		fmt.Fprintln(stdout, ReportLine(job))
	}
	return statusOK, nil
}

func biKill(sh *Shell, argv []string, stdin, stdout *os.File) (int, error) {
	if len(argv) < 2 {
		fmt.Fprintf(os.Stderr, "jsh: kill: usage: kill [-signal] job_id\n")
		return statusCommandFailure, nil
	}

	sig := unix.SIGTERM
	idArg := argv[1]
	if idArg[0] == '-' && len(argv) >= 3 {
		if n, err := strconv.Atoi(idArg[1:]); err == nil {
			sig = unix.Signal(n)
			idArg = argv[2]
		}
	}

	id, err := strconv.Atoi(idArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jsh: kill: %s: not a job id\n", idArg)
		return statusCommandFailure, nil
	}
	if err := sh.jobs.Signal(id, sig); err != nil {
		fmt.Fprintf(os.Stderr, "jsh: kill: %v\n", err)
		return statusCommandFailure, nil
	}
	return statusOK, nil
}

func biBg(sh *Shell, argv []string, stdin, stdout *os.File) (int, error) {
	id, err := jobArg(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jsh: bg: %v\n", err)
		return statusCommandFailure, nil
	}
	if err := sh.jobs.Background(id); err != nil {
		fmt.Fprintf(os.Stderr, "jsh: bg: %v\n", err)
		return statusCommandFailure, nil
	}
	return statusOK, nil
}

func biFg(sh *Shell, argv []string, stdin, stdout *os.File) (int, error) {
	id, err := jobArg(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jsh: fg: %v\n", err)
		return statusCommandFailure, nil
	}
	if _, err := sh.jobs.Foreground(id, sh.term, sh.shellPGID); err != nil {
		fmt.Fprintf(os.Stderr, "jsh: fg: %v\n", err)
		return statusCommandFailure, nil
	}
	return statusOK, nil
}

func jobArg(argv []string) (int, error) {
	if len(argv) < 2 {
		return 0, fmt.Errorf("usage: %s job_id", argv[0])
	}
	id, err := strconv.Atoi(argv[1])
	if err != nil {
		return 0, fmt.Errorf("%s: not a job id", argv[1])
	}
	return id, nil
}
