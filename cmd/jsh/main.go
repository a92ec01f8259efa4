// Command jsh is the interactive front end: a readline-based prompt/read
// loop over the jsh executor, plus the reexec entry points a pipeline
// stage or process substitution dispatches itself through (reexec.go).
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/chzyer/readline"

	"jsh"
	"jsh/history"
	"jsh/parser"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("")

	switch {
	case len(os.Args) >= 3 && os.Args[1] == jsh.ReexecCommandArg:
		os.Exit(jsh.RunReexecCommand(os.Args[2]))
	case len(os.Args) >= 3 && os.Args[1] == jsh.ReexecJobArg:
		var reportFD *os.File
		if f := os.NewFile(3, "report"); f != nil {
			reportFD = f
		}
		os.Exit(jsh.RunReexecJob(os.Args[2], reportFD))
	}

	sh, err := jsh.New()
	if err != nil {
		log.Fatalf("jsh: %v", err)
	}

	hist, err := history.Open("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "jsh: history unavailable: %v\n", err)
	}
	if hist != nil {
		defer hist.Close()
	}

	log.Printf("session %s started at %s by user %d (%s)", sh.SessionID, time.Now(), os.Geteuid(), os.Getenv("USER"))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sh.Prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("jsh: readline: %v", err)
	}
	defer rl.Close()

	for {
		sh.PollJobs(func(job *jsh.Job) {
			fmt.Fprintln(os.Stderr, jsh.ReportLine(job))
		})

		rl.SetPrompt(sh.Prompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			break
		}
		if line == "" {
			continue
		}

		if hist != nil {
			hist.Record(sh.SessionID, line)
		}

		list, perr := parser.Parse(line)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "jsh: %v\n", perr)
			continue
		}

		if _, err := sh.Execute(list); err != nil {
			var exit *jsh.ErrExit
			if errors.As(err, &exit) {
				rl.Close()
				if hist != nil {
					hist.Close()
				}
				os.Exit(exit.Status)
			}
		}
	}
}
