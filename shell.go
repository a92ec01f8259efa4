// Package jsh is the executor and job table of an interactive process
// shell: it turns a parser.PipelineList into running child processes,
// wiring pipes and redirections, handing the controlling terminal to a
// foreground process group, and tracking background jobs.
package jsh

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Shell is the process-wide state of one shell instance: current working
// directory, last exit status, prompt, job table, and terminal control.
// Unlike the teacher's package-level globals (global_state.go's
// singleton GlobalState), this is threaded explicitly so tests can build
// an isolated Shell instead of reaching into package state.
type Shell struct {
	SessionID string

	cwd            string
	lastExitStatus int
	jobs           *JobTable
	term           *Terminal
	shellPGID      int
	sigChld        chan os.Signal
}

// New constructs a Shell rooted at the process's current working
// directory, with its own job table, and attaches terminal control if
// stdin is a controlling terminal (non-interactive invocations, e.g.
// under "go test", simply get a no-op Terminal).
func New() (*Shell, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("jsh: cannot determine working directory: %w", err)
	}

	term, err := newTerminal(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("jsh: terminal setup: %w", err)
	}

	sh := &Shell{
		SessionID: uuid.New().String(),
		cwd:       cwd,
		jobs:      NewJobTable(),
		term:      term,
		shellPGID: os.Getpgid(os.Getpid()),
		sigChld:   installSignalPolicy(),
	}
	return sh, nil
}

// CWD returns the shell's notion of its current working directory.
func (sh *Shell) CWD() string { return sh.cwd }

// LastExitStatus returns the exit status of the most recently executed
// pipeline-list.
func (sh *Shell) LastExitStatus() int { return sh.lastExitStatus }

// Jobs returns the shell's job table.
func (sh *Shell) Jobs() *JobTable { return sh.jobs }

// Chdir changes the shell's working directory and re-derives the prompt
// (spec: "After cd, the prompt is re-derived" — here that's implicit,
// since Prompt() always reads cwd fresh).
func (sh *Shell) Chdir(path string) error {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cd: %w", err)
		}
		path = home
	}
	if err := os.Chdir(path); err != nil {
		return fmt.Errorf("cd: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cd: %w", err)
	}
	sh.cwd = cwd
	return nil
}

// Prompt derives the shell prompt from the current working directory and
// the number of tracked jobs, mirroring the teacher's GetPrompt/%w
// expansion but reduced to the two fields spec.md §3 names.
func (sh *Shell) Prompt() string {
	dir := sh.cwd
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if dir == home {
			dir = "~"
		} else if len(dir) > len(home) && dir[:len(home)] == home && dir[len(home)] == '/' {
			dir = "~" + dir[len(home):]
		}
	}
	n := sh.jobs.Len()
	if n == 0 {
		return fmt.Sprintf("%s$ ", dir)
	}
	return fmt.Sprintf("%s [%d]$ ", dir, n)
}

// ErrExit is returned up through Execute to signal that the read loop
// must terminate the shell; only the exit built-in produces it. A failed
// fork is returned as an ordinary error, which Execute prints before
// going on with the next pipeline. cmd/jsh's read loop checks for it
// with errors.As.
type ErrExit struct {
	Status int
}

func (e *ErrExit) Error() string { return fmt.Sprintf("exit %d", e.Status) }
