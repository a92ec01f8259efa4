// Package parser turns an input line into a PipelineList: the data the
// executor walks to fork, pipe, and redirect child processes. It never
// touches a file descriptor, a process, or a stream — a malformed line
// comes back as a *ParseError for the caller to report.
package parser

import "fmt"

// Channel identifies which standard stream a Redirection applies to.
type Channel int

const (
	Stdin Channel = iota
	Stdout
	Stderr
)

// Mode identifies how a redirection target is opened.
type Mode int

const (
	// NoMode is the mode of every stdin ("<") redirection; stdout and
	// stderr redirections never carry it.
	NoMode Mode = iota
	Overwrite
	Append
	NoOverwrite
)

// Redirection is one "<", ">", ">|", ">>", "2>", "2>|" or "2>>" clause.
// Substitution is non-nil when the redirection's target was itself a
// "<(...)" process substitution rather than a filename (spec.md §4.2:
// "Process substitution may also appear as the target of a stdin
// redirection; the behavior is identical" to a substitution argument).
type Redirection struct {
	Channel      Channel
	Mode         Mode
	Target       string
	Substitution *Pipeline
}

func (r Redirection) operator() string {
	switch {
	case r.Channel == Stdin:
		return "<"
	case r.Channel == Stdout && r.Mode == NoOverwrite:
		return ">"
	case r.Channel == Stdout && r.Mode == Overwrite:
		return ">|"
	case r.Channel == Stdout && r.Mode == Append:
		return ">>"
	case r.Channel == Stderr && r.Mode == NoOverwrite:
		return "2>"
	case r.Channel == Stderr && r.Mode == Overwrite:
		return "2>|"
	default:
		return "2>>"
	}
}

// String renders a redirection the way the canonical serializer wants it:
// " < file", " >> file", etc.
func (r Redirection) String() string {
	if r.Substitution != nil {
		return fmt.Sprintf(" %s <(%s)", r.operator(), r.Substitution.String())
	}
	return fmt.Sprintf(" %s %s", r.operator(), r.Target)
}

// ArgKind distinguishes a plain word argument from a process-substitution
// argument.
type ArgKind int

const (
	ArgLiteral ArgKind = iota
	ArgSubstitution
)

// Argument is the tagged union described by the data model: either a plain
// word, or a substitution that owns a nested Pipeline whose stdout is
// exposed to the parent command as a /proc/self/fd path.
type Argument struct {
	Kind         ArgKind
	Literal      string
	Substitution *Pipeline
}

func (a Argument) String() string {
	if a.Kind == ArgSubstitution {
		return "<(" + a.Substitution.String() + ")"
	}
	return a.Literal
}

// Command is a single external program or built-in invocation. Name == ""
// marks the empty command: "no-op, preserve last exit status". When Name is
// non-empty, Argv is non-empty and Argv[0] is a literal equal to Name.
type Command struct {
	Name         string
	Argv         []Argument
	Redirections []Redirection
}

// Empty reports whether this is the no-op placeholder command.
func (c *Command) Empty() bool { return c.Name == "" }

func (c *Command) String() string {
	var parts []string
	for _, a := range c.Argv {
		parts = append(parts, a.String())
	}
	s := joinSpace(parts)
	for _, r := range c.Redirections {
		s += r.String()
	}
	return s
}

// Pipeline is commands connected stdout->stdin left to right. ToJob marks a
// backgrounded ("&") pipeline.
type Pipeline struct {
	Commands []*Command
	ToJob    bool
}

func (p *Pipeline) String() string {
	var parts []string
	for _, c := range p.Commands {
		parts = append(parts, c.String())
	}
	return joinPipe(parts)
}

// PipelineList is the top-level parse result: pipelines executed in order.
type PipelineList struct {
	Pipelines []*Pipeline
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

func joinPipe(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " | "
		}
		out += p
	}
	return out
}
