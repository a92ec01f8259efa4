package jsh

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"jsh/parser"
)

func newTestShell(t *testing.T) *Shell {
	t.Helper()
	sh, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sh
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	saved := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = saved }()

	fn()

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestExitCodeHandling(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode int
	}{
		{name: "true returns 0", input: "true", wantCode: 0},
		{name: "false returns 1", input: "false", wantCode: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := exec.LookPath(strings.Fields(tt.input)[0]); err != nil {
				t.Skipf("%s not available", tt.input)
			}
			sh := newTestShell(t)
			list, err := parser.Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			status, _ := sh.Execute(list)
			if status != tt.wantCode {
				t.Errorf("status = %d, want %d", status, tt.wantCode)
			}
			if sh.LastExitStatus() != tt.wantCode {
				t.Errorf("LastExitStatus() = %d, want %d", sh.LastExitStatus(), tt.wantCode)
			}
		})
	}
}

func TestPipelineExitCode(t *testing.T) {
	for _, bin := range []string{"true", "false", "cat"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available", bin)
		}
	}

	sh := newTestShell(t)
	list, err := parser.Parse("true | true | true")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	status, _ := sh.Execute(list)
	if status != 0 {
		t.Errorf("status = %d, want 0", status)
	}
}

func TestPipelineCarriesOutput(t *testing.T) {
	for _, bin := range []string{"echo", "cat"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available", bin)
		}
	}

	sh := newTestShell(t)
	list, err := parser.Parse("echo hello | cat")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	out := captureStdout(t, func() {
		if _, err := sh.Execute(list); err != nil {
			t.Errorf("Execute() error = %v", err)
		}
	})
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("output = %q, want %q", out, "hello")
	}
}

func TestStdoutRedirectionCreatesFile(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	sh := newTestShell(t)
	list, err := parser.Parse("echo hello > " + path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := sh.Execute(list); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.TrimSpace(string(data)) != "hello" {
		t.Errorf("file contents = %q, want %q", data, "hello")
	}
}

func TestNoOverwriteRejectsExistingFile(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sh := newTestShell(t)
	list, err := parser.Parse("echo hello > " + path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	status, _ := sh.Execute(list)
	if status != statusCommandFailure {
		t.Errorf("status = %d, want %d", status, statusCommandFailure)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "original" {
		t.Errorf("file was modified: %q", data)
	}
}

func TestAppendRedirection(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(path, []byte("first\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sh := newTestShell(t)
	list, err := parser.Parse("echo second >> " + path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := sh.Execute(list); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("file contents = %q", data)
	}
}

func TestBuiltinPwdAndCd(t *testing.T) {
	dir := t.TempDir()
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks() error = %v", err)
	}

	sh := newTestShell(t)
	list, err := parser.Parse("cd " + dir)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := sh.Execute(list); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if sh.CWD() != realDir {
		t.Errorf("CWD() = %q, want %q", sh.CWD(), realDir)
	}

	list, err = parser.Parse("pwd")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out := captureStdout(t, func() {
		if _, err := sh.Execute(list); err != nil {
			t.Errorf("Execute() error = %v", err)
		}
	})
	if strings.TrimSpace(out) != realDir {
		t.Errorf("pwd output = %q, want %q", out, realDir)
	}
}

func TestExitBuiltinUnwindsWithStatus(t *testing.T) {
	sh := newTestShell(t)
	list, err := parser.Parse("exit 7")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	status, err := sh.Execute(list)
	if status != 7 {
		t.Errorf("status = %d, want 7", status)
	}
	var exit *ErrExit
	if err == nil {
		t.Fatalf("Execute() error = nil, want *ErrExit")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("exit 7")) {
		t.Errorf("err = %v, want to mention exit 7", err)
	}
	_ = exit
}

func TestLastStatusBuiltin(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	sh := newTestShell(t)

	list, _ := parser.Parse("false")
	sh.Execute(list)

	list, err := parser.Parse("?")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out := captureStdout(t, func() {
		sh.Execute(list)
	})
	if strings.TrimSpace(out) != "1" {
		t.Errorf("? output = %q, want %q", out, "1")
	}
}

func TestEmptyCommandPreservesLastExitStatus(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	sh := newTestShell(t)

	list, _ := parser.Parse("false")
	sh.Execute(list)

	list, err := parser.Parse("   ")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	status, _ := sh.Execute(list)
	if status != 1 {
		t.Errorf("status = %d, want 1 (preserved)", status)
	}
}

func TestBackgroundJobIsRegisteredAndReaped(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	sh := newTestShell(t)

	list, err := parser.Parse("sleep 0.1 &")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out := captureStdout(t, func() {
		if _, err := sh.Execute(list); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	})
	_ = out

	if sh.Jobs().Len() != 1 {
		t.Fatalf("Jobs().Len() = %d, want 1", sh.Jobs().Len())
	}
	job := sh.Jobs().List()[0]
	if job.Status != Running {
		t.Errorf("job.Status = %v, want Running", job.Status)
	}

	deadline := 0
	for sh.Jobs().Len() > 0 && deadline < 50 {
		sh.Jobs().Poll(func(*Job) {})
		deadline++
	}
	if sh.Jobs().Len() != 0 {
		t.Errorf("job was not reaped after exit")
	}
}

func TestProcessSubstitutionArgument(t *testing.T) {
	for _, bin := range []string{"cat", "echo"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available", bin)
		}
	}

	sh := newTestShell(t)
	list, err := parser.Parse("cat <(echo substituted)")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out := captureStdout(t, func() {
		if _, err := sh.Execute(list); err != nil {
			t.Errorf("Execute() error = %v", err)
		}
	})
	if strings.TrimSpace(out) != "substituted" {
		t.Errorf("output = %q, want %q", out, "substituted")
	}
}

func TestJobTableIDReuse(t *testing.T) {
	jt := NewJobTable()
	j1 := jt.Add(100, 100, nil)
	j2 := jt.Add(200, 200, nil)
	if j1.ID != 1 || j2.ID != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", j1.ID, j2.ID)
	}

	jt.remove(j1.ID)
	j3 := jt.Add(300, 300, nil)
	if j3.ID != 1 {
		t.Errorf("reused id = %d, want 1", j3.ID)
	}
}
