package jsh

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// installSignalPolicy implements spec.md §5 "Signals": the shell ignores
// every signal a controlling terminal can raise against it (SIGINT,
// SIGTERM, SIGTSTP, SIGTTIN, SIGTTOU) so that only the foreground process
// group — never the shell itself — is affected by them, and watches
// SIGCHLD on a buffered channel the job-poll step drains as its wake
// flag. Grounded on other_examples' driusan/gosh main.go, which installs
// exactly this ignore set (SIGTTOU, SIGINT) plus a SIGCHLD channel at
// startup; jsh rounds the ignore set out to the full list spec.md names.
//
// Ignoring SIGTTOU in particular is what makes terminal.SetForeground's
// tcsetpgrp-back-to-the-shell call (executor.go, job.go Foreground) safe:
// without it, the kernel would stop the shell with SIGTTOU the moment it
// tried to reclaim the terminal from a background-ish process group.
func installSignalPolicy() chan os.Signal {
	signal.Ignore(
		unix.SIGINT,
		unix.SIGTERM,
		unix.SIGTSTP,
		unix.SIGTTIN,
		unix.SIGTTOU,
	)

	sigChld := make(chan os.Signal, 1)
	signal.Notify(sigChld, unix.SIGCHLD)
	return sigChld
}

// PollJobs drains the SIGCHLD wake flag and runs the job table's
// non-blocking reap/status-transition pass, reporting every job that
// transitions to done/killed/detached via report. Called between input
// lines (spec.md §4.3).
func (sh *Shell) PollJobs(report func(*Job)) {
	select {
	case <-sh.sigChld:
	default:
	}
	sh.jobs.Poll(report)
}
