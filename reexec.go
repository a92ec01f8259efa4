package jsh

import (
	"fmt"
	"os"

	"jsh/parser"
)

// Go cannot safely fork its own runtime mid-execution (goroutines and
// the scheduler's internal state do not survive a bare fork), so a
// pipeline stage that needs its own process to run a built-in gets one
// by re-executing the jsh binary itself with a hidden argv marker,
// exactly the pattern the retrieval pack's teleport reexec package uses
// for "run more of my own code in a child process." External commands
// never need this: exec.Command already forks and execs them directly.

// ReexecCommandArg is argv[1] cmd/jsh checks for before starting the
// interactive read loop: argv[2] is one serialized Command (built-in or
// external) to run in this process and exit with its status.
const ReexecCommandArg = "__jsh_exec_command__"

// ReexecJobArg is argv[1] for a background job's process-group leader:
// argv[2] is one serialized Pipeline (to_job already stripped) to run
// as a job in this process, reporting sibling pids on fd 3 once the
// pipeline has finished and the siblings have been waited for.
const ReexecJobArg = "__jsh_exec_job__"

// RunReexecCommand implements the ReexecCommandArg entry point: parse
// text as a single command and run it to completion in this process,
// returning the status the process should exit with.
func RunReexecCommand(text string) int {
	pl, err := parser.Parse(text)
	if err != nil || len(pl.Pipelines) != 1 || len(pl.Pipelines[0].Commands) != 1 {
		fmt.Fprintf(os.Stderr, "jsh: malformed reexec command\n")
		return 1
	}
	sh := &Shell{jobs: NewJobTable(), term: &Terminal{}}
	if cwd, err := os.Getwd(); err == nil {
		sh.cwd = cwd
	}
	status, err := sh.runSingleStage(pl.Pipelines[0].Commands[0], 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jsh: %v\n", err)
	}
	return status
}

// RunReexecJob implements the ReexecJobArg entry point: parse text as
// one pipeline and run it as a background job's leader process. Every
// sibling pid it forks is written to reportFD after the last stage has
// run and all siblings have been waited for; the siblings already joined
// this process's group when they were started. Returns the exit status
// of the pipeline's last command.
func RunReexecJob(text string, reportFD *os.File) int {
	pl, err := parser.Parse(text)
	if err != nil || len(pl.Pipelines) != 1 {
		fmt.Fprintf(os.Stderr, "jsh: malformed reexec job\n")
		return 1
	}
	sh := &Shell{jobs: NewJobTable(), term: &Terminal{}}
	if cwd, err := os.Getwd(); err == nil {
		sh.cwd = cwd
	}

	pipeline := pl.Pipelines[0]
	ownPID := os.Getpid()

	status, siblings, err := sh.runPipelineStages(pipeline.Commands, os.Stdin, os.Stdout, ownPID)
	if reportFD != nil {
		fmt.Fprintf(reportFD, "%v\n", siblings)
		reportFD.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "jsh: %v\n", err)
		return 1
	}
	return status
}
