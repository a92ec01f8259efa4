package jsh

import (
	"errors"
	"fmt"
	"sync"

	ps "github.com/mitchellh/go-ps"
	"golang.org/x/sys/unix"

	"jsh/parser"
)

// JobStatus is the lifecycle state of a Job (spec.md §3/§4.3).
type JobStatus int

const (
	Running JobStatus = iota
	Stopped
	Done
	Killed
	Detached
)

func (s JobStatus) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Done:
		return "done"
	case Killed:
		return "killed"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// Job is one tracked background or stopped process group.
type Job struct {
	ID        int
	PGID      int
	LeaderPID int
	Pipeline  *parser.Pipeline
	Status    JobStatus
}

// ErrJobNotFound is returned by JobTable lookups (Get, Background,
// Foreground, Signal) when no job with the given id is registered.
var ErrJobNotFound = errors.New("job not found")

// JobTable tracks every background/stopped process group. Ids are
// reused by always choosing the smallest positive integer not currently
// in use (original_source/src/utils/jobs_core.c's get_id_new_job), not a
// monotonic counter like the teacher's JobManager.nextID.
type JobTable struct {
	mu   sync.Mutex
	jobs map[int]*Job
}

// NewJobTable returns an empty job table.
func NewJobTable() *JobTable {
	return &JobTable{jobs: make(map[int]*Job)}
}

// Len reports the number of jobs currently tracked.
func (t *JobTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// nextID scans for the smallest unused positive integer. Caller must
// hold t.mu.
func (t *JobTable) nextID() int {
	for id := 1; ; id++ {
		if _, used := t.jobs[id]; !used {
			return id
		}
	}
}

// Add registers a new running job and returns it. Matches spec.md
// §4.3's Create transition: "add a new job with status running."
func (t *JobTable) Add(pgid, leaderPID int, pipeline *parser.Pipeline) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	job := &Job{
		ID:        t.nextID(),
		PGID:      pgid,
		LeaderPID: leaderPID,
		Pipeline:  pipeline,
		Status:    Running,
	}
	t.jobs[job.ID] = job
	return job
}

// Get returns the job with the given id.
func (t *JobTable) Get(id int) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%d: %w", id, ErrJobNotFound)
	}
	return job, nil
}

// List returns a snapshot of every tracked job, ordered by id.
func (t *JobTable) List() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID > out[j].ID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (t *JobTable) remove(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, id)
}

// Poll performs the non-blocking reap/status-transition pass spec.md
// §4.3 calls for: WNOHANG|WUNTRACED|WCONTINUED on every tracked pgid,
// mapping wait results onto the Job lifecycle. Jobs landing on Done,
// Killed, or Detached are reported (via report) and removed.
func (t *JobTable) Poll(report func(*Job)) {
	for _, job := range t.List() {
		t.pollOne(job, report)
	}
}

func (t *JobTable) pollOne(job *Job, report func(*Job)) {
	var status unix.WaitStatus
	pid, err := unix.Wait4(-job.PGID, &status, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
	if err != nil {
		if errors.Is(err, unix.ECHILD) {
			job.Status = Detached
			report(job)
			t.remove(job.ID)
		}
		return
	}
	if pid <= 0 {
		return
	}

	switch {
	case status.Exited():
		job.Status = Done
		report(job)
		t.remove(job.ID)
	case status.Signaled():
		job.Status = Killed
		report(job)
		t.remove(job.ID)
	case status.Stopped():
		job.Status = Stopped
	case status.Continued():
		job.Status = Running
	}
}

// Background sends SIGCONT to job id's process group and leaves it
// running in the background (spec.md §4.3 bg).
func (t *JobTable) Background(id int) error {
	job, err := t.Get(id)
	if err != nil {
		return err
	}
	if err := unix.Kill(-job.PGID, unix.SIGCONT); err != nil {
		return err
	}
	job.Status = Running
	return nil
}

// Signal forwards sig to job id's process group (spec.md §4.3 kill).
func (t *JobTable) Signal(id int, sig unix.Signal) error {
	job, err := t.Get(id)
	if err != nil {
		return err
	}
	return unix.Kill(-job.PGID, sig)
}

// Foreground brings job id to the foreground: it hands the controlling
// terminal to the job's pgid, continues it, waits for it to stop or
// exit, then reclaims the terminal for the shell (spec.md §4.3 fg).
func (t *JobTable) Foreground(id int, term *Terminal, shellPGID int) (JobStatus, error) {
	job, err := t.Get(id)
	if err != nil {
		return 0, err
	}

	if err := term.SetForeground(job.PGID); err != nil {
		return 0, err
	}
	defer term.SetForeground(shellPGID)

	if err := unix.Kill(-job.PGID, unix.SIGCONT); err != nil {
		return 0, err
	}
	job.Status = Running

	var status unix.WaitStatus
	_, err = unix.Wait4(-job.PGID, &status, unix.WUNTRACED, nil)
	if err != nil {
		return 0, err
	}

	switch {
	case status.Stopped():
		job.Status = Stopped
	default:
		job.Status = Done
		t.remove(id)
	}
	return job.Status, nil
}

// describe renders a job the way "jobs" and the report-and-reap printer
// do: the pipeline's canonical serialization, falling back to the
// leader's process name via go-ps when the pipeline isn't available
// (e.g. a job a test constructed directly without a parsed Pipeline).
func describe(job *Job) string {
	if job.Pipeline != nil {
		return job.Pipeline.String()
	}
	if proc, err := ps.FindProcess(job.LeaderPID); err == nil && proc != nil {
		return proc.Executable()
	}
	return fmt.Sprintf("pid %d", job.LeaderPID)
}

// ReportLine renders the report-and-reap line format fixed by
// original_source/src/utils/jobs_core.c's
// "[%u]  + %jd %s   %s\n" (two spaces before '+', three spaces before
// the pipeline text), with the trailing %s filled in by the canonical
// serializer.
func ReportLine(job *Job) string {
	return fmt.Sprintf("[%d]  + %d %s   %s", job.ID, job.LeaderPID, job.Status, describe(job))
}

// announceNewJob renders the line printed when a background pipeline is
// first registered (spec.md §4.3 Create: "print [<id>] <leader_pid>").
func announceNewJob(job *Job) string {
	return fmt.Sprintf("[%d] %d", job.ID, job.LeaderPID)
}
