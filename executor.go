package jsh

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"jsh/parser"
)

// Command-level (non-fatal) failure statuses, per spec.md §7.
const (
	statusOK             = 0
	statusCommandFailure = 1
)

// Execute runs a PipelineList start to finish and returns the exit
// status of its last pipeline, updating Shell.lastExitStatus (spec.md
// §4.2 "Pipeline-list loop"). An *ErrExit unwinds the loop immediately:
// the caller (cmd/jsh's read loop) is responsible for tearing down
// process-wide state and terminating.
func (sh *Shell) Execute(list *parser.PipelineList) (int, error) {
	status := sh.lastExitStatus
	for _, p := range list.Pipelines {
		st, err := sh.runPipeline(p)
		status = st
		if err != nil {
			var exit *ErrExit
			if errors.As(err, &exit) {
				sh.lastExitStatus = status
				return status, exit
			}
			fmt.Fprintf(os.Stderr, "jsh: %v\n", err)
		}
	}
	sh.lastExitStatus = status
	return status, nil
}

func (sh *Shell) runPipeline(p *parser.Pipeline) (int, error) {
	if p.ToJob {
		return sh.runBackground(p)
	}
	if len(p.Commands) == 0 {
		return sh.lastExitStatus, nil
	}
	if len(p.Commands) == 1 {
		return sh.runForegroundSingle(p.Commands[0])
	}
	return sh.runForegroundMulti(p.Commands)
}

// runForegroundSingle implements spec.md §4.2's "Single-command
// foreground pipeline": redirection protocol, built-in dispatch or
// fork/exec with terminal handoff, stop-to-job promotion.
func (sh *Shell) runForegroundSingle(cmd *parser.Command) (int, error) {
	if cmd.Empty() {
		return sh.lastExitStatus, nil
	}

	saved, err := saveStdio()
	if err != nil {
		return statusCommandFailure, fmt.Errorf("redirection: %w", err)
	}
	defer saved.restore()

	return sh.runTerminalStage(cmd)
}

// runTerminalStage runs one command (built-in or external) as the
// terminal-controlling foreground process: for an external program it
// forks, places the child in its own process group, hands the
// controlling terminal to that group, waits untraced, and reclaims the
// terminal; a stopped child promotes the pipeline to a job.
func (sh *Shell) runTerminalStage(cmd *parser.Command) (int, error) {
	cleanups, status, err := sh.applyRedirections(cmd)
	defer runCleanups(cleanups)
	if err != nil {
		return status, err
	}
	if status != statusOK {
		return status, nil
	}

	argv, substFiles, argCleanups, err := sh.resolveArgv(cmd)
	defer runCleanups(argCleanups)
	if err != nil {
		return statusCommandFailure, err
	}

	name := argv[0]
	if fn, ok := builtins[name]; ok {
		return fn(sh, argv, os.Stdin, os.Stdout)
	}

	rewritten, extra := rewriteForExtraFiles(argv, substFiles)
	c := exec.Command(rewritten[0], rewritten[1:]...)
	c.Dir = sh.cwd
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.ExtraFiles = extra
	c.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		return statusCommandFailure, fmt.Errorf("fork: error to create a process: %w", err)
	}
	pid := c.Process.Pid

	if sh.term != nil {
		sh.term.SetForeground(pid)
	}

	var wstatus unix.WaitStatus
	_, waitErr := unix.Wait4(pid, &wstatus, unix.WUNTRACED, nil)

	if sh.term != nil {
		sh.term.SetForeground(sh.shellPGID)
	}

	if waitErr != nil {
		return statusCommandFailure, fmt.Errorf("wait: %w", waitErr)
	}

	if wstatus.Stopped() {
		pipeline := &parser.Pipeline{
			Commands: []*parser.Command{{Name: name, Argv: literalArgv(argv)}},
		}
		job := sh.jobs.Add(pid, pid, pipeline)
		fmt.Fprintln(os.Stderr, announceNewJob(job))
		return 0, nil
	}

	return wstatus.ExitStatus(), nil
}

// runForegroundMulti implements spec.md §4.2's N≥2 foreground pipeline:
// N-1 pipes, N-1 forked leading stages, the last stage run in this
// process via runSingleStage fed from the final pipe. The controlling
// terminal is not handed to the pipeline's process group.
func (sh *Shell) runForegroundMulti(commands []*parser.Command) (int, error) {
	status, _, err := sh.runPipelineStages(commands, os.Stdin, os.Stdout, 0)
	return status, err
}

// runPipelineStages wires N-1 pipes between commands, forks every
// leading stage (joining them into pgid if non-zero, or into the first
// forked stage's own pid otherwise), and runs the last stage directly
// in this process via the redirection/built-in/fork protocol. It
// returns the status of the last stage and the pids of every forked
// leading stage (for the background-job sibling report).
func (sh *Shell) runPipelineStages(commands []*parser.Command, in, out *os.File, pgid int) (int, []int, error) {
	n := len(commands)
	if n == 1 {
		saved, err := saveStdio()
		if err != nil {
			return statusCommandFailure, nil, err
		}
		defer saved.restore()
		if err := dup2Std(in, out); err != nil {
			return statusCommandFailure, nil, err
		}
		status, err := sh.runSingleStage(commands[0], pgid)
		return status, nil, err
	}

	pipes := make([][2]*os.File, n-1)
	for i := range pipes {
		r, w, err := os.Pipe()
		if err != nil {
			return statusCommandFailure, nil, fmt.Errorf("pipe: %w", err)
		}
		pipes[i] = [2]*os.File{r, w}
	}

	var siblings []int
	leaderPGID := pgid

	for i := 0; i < n-1; i++ {
		stdin := in
		if i > 0 {
			stdin = pipes[i-1][0]
		}
		stdout := pipes[i][1]

		pid, err := sh.forkStage(commands[i], stdin, stdout, leaderPGID)
		if err != nil {
			return statusCommandFailure, siblings, err
		}
		if leaderPGID == 0 {
			leaderPGID = pid
		}
		siblings = append(siblings, pid)

		if i > 0 {
			pipes[i-1][0].Close()
		}
		pipes[i][1].Close()
	}

	lastIn := pipes[n-2][0]
	saved, err := saveStdio()
	if err != nil {
		return statusCommandFailure, siblings, err
	}
	defer saved.restore()
	if err := dup2Std(lastIn, out); err != nil {
		return statusCommandFailure, siblings, err
	}

	status, err := sh.runSingleStage(commands[n-1], leaderPGID)
	lastIn.Close()

	for _, pid := range siblings {
		var ws unix.WaitStatus
		unix.Wait4(pid, &ws, 0, nil)
	}

	return status, siblings, err
}

// runSingleStage applies cmd's own redirections (layered over whatever
// is already dup2-ed onto this process's 0/1/2) and dispatches a
// built-in in this process or forks/execs an external command, joining
// pgid's process group if pgid != 0. Used for: the lone command of a
// reexec'd single-command dispatch (reexec.go), and the last stage of a
// pipeline running directly in this process.
func (sh *Shell) runSingleStage(cmd *parser.Command, pgid int) (int, error) {
	cleanups, status, err := sh.applyRedirections(cmd)
	defer runCleanups(cleanups)
	if err != nil {
		return status, err
	}
	if status != statusOK {
		return status, nil
	}

	argv, substFiles, argCleanups, err := sh.resolveArgv(cmd)
	defer runCleanups(argCleanups)
	if err != nil {
		return statusCommandFailure, err
	}

	if fn, ok := builtins[argv[0]]; ok {
		return fn(sh, argv, os.Stdin, os.Stdout)
	}

	rewritten, extra := rewriteForExtraFiles(argv, substFiles)
	c := exec.Command(rewritten[0], rewritten[1:]...)
	c.Dir = sh.cwd
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.ExtraFiles = extra
	c.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	if pgid != 0 {
		c.SysProcAttr.Pgid = pgid
	}

	if err := c.Start(); err != nil {
		return statusCommandFailure, fmt.Errorf("fork: error to create a process: %w", err)
	}
	var ws unix.WaitStatus
	_, waitErr := unix.Wait4(c.Process.Pid, &ws, 0, nil)
	if waitErr != nil {
		return statusCommandFailure, fmt.Errorf("wait: %w", waitErr)
	}
	return ws.ExitStatus(), nil
}

// forkStage starts one non-terminal pipeline stage as a real OS
// process: a built-in is run via the reexec trick (reexec.go), an
// external command is exec'd directly. Either way the new process joins
// pgid (or becomes the group leader when pgid == 0), and any process-
// substitution argument is routed through ExtraFiles with its path
// rewritten, since both paths exec.
func (sh *Shell) forkStage(cmd *parser.Command, stdin, stdout *os.File, pgid int) (int, error) {
	argv, substFiles, argCleanups, err := sh.resolveArgv(cmd)
	defer runCleanups(argCleanups)
	if err != nil {
		return 0, err
	}

	rewritten, extra := rewriteForExtraFiles(argv, substFiles)

	var c *exec.Cmd
	if _, ok := builtins[argv[0]]; ok {
		self, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("fork: error to create a process: %w", err)
		}
		c = exec.Command(self, ReexecCommandArg, joinArgv(rewritten))
	} else {
		c = exec.Command(rewritten[0], rewritten[1:]...)
	}
	c.Dir = sh.cwd
	c.Stdin = stdin
	c.Stdout = stdout
	c.Stderr = os.Stderr
	c.ExtraFiles = extra
	c.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	if pgid != 0 {
		c.SysProcAttr.Pgid = pgid
	}

	if err := c.Start(); err != nil {
		return 0, fmt.Errorf("fork: error to create a process: %w", err)
	}
	go c.Wait()
	return c.Process.Pid, nil
}

// runBackground implements spec.md §4.2's background pipeline: the
// process-group leader is a reexec'd jsh process (see reexec.go); the
// shell registers the job and returns immediately without waiting.
func (sh *Shell) runBackground(p *parser.Pipeline) (int, error) {
	if len(p.Commands) == 1 && p.Commands[0].Empty() {
		return sh.lastExitStatus, nil
	}

	self, err := os.Executable()
	if err != nil {
		return statusCommandFailure, fmt.Errorf("fork: error to create a process: %w", err)
	}

	reportR, reportW, err := os.Pipe()
	if err != nil {
		return statusCommandFailure, fmt.Errorf("pipe: %w", err)
	}

	text := (&parser.Pipeline{Commands: p.Commands}).String()
	c := exec.Command(self, ReexecJobArg, text)
	c.Dir = sh.cwd
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.ExtraFiles = []*os.File{reportW}
	c.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		reportR.Close()
		reportW.Close()
		return statusCommandFailure, fmt.Errorf("fork: error to create a process: %w", err)
	}
	reportW.Close()

	leaderPID := c.Process.Pid
	unix.Setpgid(leaderPID, leaderPID)

	job := sh.jobs.Add(leaderPID, leaderPID, p)
	fmt.Fprintln(os.Stderr, announceNewJob(job))

	// The leader's own exit is reaped by JobTable.Poll's wait4(-pgid, ...)
	// between input lines, not here: calling c.Wait() from this goroutine
	// would race that poll for the same pid and leave one side with
	// ECHILD, so this goroutine only drains the sibling-pid report and
	// leaves reaping to the job table.
	go func() {
		line, _ := io.ReadAll(reportR)
		reportR.Close()
		for _, field := range strings.Fields(strings.Trim(string(line), "[] \n")) {
			field = strings.TrimSuffix(field, ",")
			if pid, err := strconv.Atoi(field); err == nil {
				unix.Setpgid(pid, leaderPID)
			}
		}
	}()

	return 0, nil
}

func literalArgv(argv []string) []parser.Argument {
	out := make([]parser.Argument, len(argv))
	for i, a := range argv {
		out[i] = parser.Argument{Kind: parser.ArgLiteral, Literal: a}
	}
	return out
}

func joinArgv(argv []string) string {
	return strings.Join(argv, " ")
}
