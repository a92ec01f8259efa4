package jsh

import (
	"os"
	"testing"
)

// TestMain intercepts the reexec markers before testing's own main runs.
// Every self-reexec in this package (resolveSubstitution, runBackground,
// forkStage) launches os.Executable(), which under "go test" is this
// test binary, so a reexec'd child's argv looks exactly like what
// cmd/jsh's main() checks for — this hook gives the test binary the same
// front door, the same pattern projects that self-reexec (e.g.
// moby/libcontainer's reexec package) hook into TestMain for.
func TestMain(m *testing.M) {
	if len(os.Args) >= 3 {
		switch os.Args[1] {
		case ReexecCommandArg:
			os.Exit(RunReexecCommand(os.Args[2]))
		case ReexecJobArg:
			var reportFD *os.File
			if f := os.NewFile(3, "report"); f != nil {
				reportFD = f
			}
			os.Exit(RunReexecJob(os.Args[2], reportFD))
		}
	}
	os.Exit(m.Run())
}
