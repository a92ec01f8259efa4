package parser

import (
	"fmt"
	"strings"
)

// ParseError is returned for any malformed input. Its text matches the
// diagnostics original_source/src/parser/parser.c writes, minus the
// "jsh: " prefix the caller (the read loop, not the parser) is responsible
// for adding — keeping the parser itself free of I/O keeps it pure and
// lets it be exercised directly in tests.
type ParseError struct {
	Near string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error near `%s'", e.Near)
}

func parseErr(near string) error {
	return &ParseError{Near: near}
}

// Parse turns one input line into a PipelineList, or returns a *ParseError.
func Parse(input string) (*PipelineList, error) {
	return parsePipelineList(input)
}

func parsePipelineList(input string) (*PipelineList, error) {
	if hasDoubledTopLevel(input, '&') {
		return nil, parseErr("&")
	}
	if startsWithIgnoringLeadingSpaces(input, '&') {
		return nil, parseErr("&")
	}

	segments := tokenizeStrtok(input, "&")
	if len(segments) == 0 {
		return &PipelineList{}, nil
	}

	list := &PipelineList{}
	for i := 0; i < len(segments)-1; i++ {
		p, err := parsePipeline(segments[i], true)
		if err != nil {
			return nil, err
		}
		list.Pipelines = append(list.Pipelines, p)
	}

	lastToJob := len(input) > 0 && input[len(input)-1] == '&'
	last, err := parsePipeline(segments[len(segments)-1], lastToJob)
	if err != nil {
		return nil, err
	}
	list.Pipelines = append(list.Pipelines, last)

	return list, nil
}

func parsePipeline(input string, toJob bool) (*Pipeline, error) {
	if startsWithIgnoringLeadingSpaces(input, '|') ||
		endsWithIgnoringTrailingSpaces(input, '|') ||
		hasDoubledTopLevel(input, '|') {
		return nil, parseErr("|")
	}

	segments := tokenizeSequence(input, " | ")
	if len(segments) == 0 {
		return &Pipeline{ToJob: toJob}, nil
	}

	commands := make([]*Command, 0, len(segments))
	for _, seg := range segments {
		cmd, err := parseCommand(seg)
		if err != nil {
			return nil, err
		}
		if cmd.Empty() && len(segments) > 1 {
			return nil, parseErr("|")
		}
		commands = append(commands, cmd)
	}

	if len(segments) == 1 && commands[0].Empty() && toJob {
		return nil, parseErr("&")
	}

	return &Pipeline{Commands: commands, ToJob: toJob}, nil
}

// parseCommand parses a single pipe-segment (no "|" at this level) into a
// Command. An all-whitespace segment yields the empty no-op Command.
func parseCommand(input string) (*Command, error) {
	tokens := tokenizeWhitespace(input)
	if len(tokens) == 0 {
		return &Command{}, nil
	}

	if isRedirectionOperator(tokens[0]) {
		return nil, parseErr(tokens[0])
	}
	if isSubstitutionToken(tokens[0]) {
		return nil, parseErr(tokens[0])
	}

	cmd := &Command{Name: tokens[0]}
	cmd.Argv = append(cmd.Argv, Argument{Kind: ArgLiteral, Literal: tokens[0]})

	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]

		if isRedirectionOperator(tok) {
			if i+1 >= len(tokens) {
				return nil, parseErr(tok)
			}
			next := tokens[i+1]
			if isRedirectionOperator(next) {
				return nil, parseErr(tok)
			}

			redir := redirectionOperators[tok]
			if isSubstitutionToken(next) {
				if redir.Channel != Stdin {
					return nil, parseErr(next)
				}
				sub, err := parseSubstitution(next)
				if err != nil {
					return nil, err
				}
				redir.Substitution = sub
			} else {
				redir.Target = next
			}
			cmd.Redirections = append(cmd.Redirections, redir)
			i++
			continue
		}

		if isSubstitutionToken(tok) {
			sub, err := parseSubstitution(tok)
			if err != nil {
				return nil, err
			}
			cmd.Argv = append(cmd.Argv, Argument{Kind: ArgSubstitution, Substitution: sub})
			continue
		}

		cmd.Argv = append(cmd.Argv, Argument{Kind: ArgLiteral, Literal: tok})
	}

	return cmd, nil
}

// parseSubstitution parses the "<(...)" token's interior as a nested,
// always-foreground pipeline.
func parseSubstitution(tok string) (*Pipeline, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(tok, "<("), ")")
	return parsePipeline(inner, false)
}

func startsWithIgnoringLeadingSpaces(s string, ch byte) bool {
	trimmed := strings.TrimLeft(s, " ")
	return len(trimmed) > 0 && trimmed[0] == ch
}

func endsWithIgnoringTrailingSpaces(s string, ch byte) bool {
	trimmed := strings.TrimRight(s, " ")
	return len(trimmed) > 0 && trimmed[len(trimmed)-1] == ch
}

// hasDoubledTopLevel reports two occurrences of ch separated only by
// spaces, ignoring anything inside a "<(...)" substitution span — e.g.
// "cmd |  | cmd" is doubled, "cmd <(a | b)" is not.
func hasDoubledTopLevel(s string, ch byte) bool {
	idx := topLevelIndices(s, ch)
	for i := 0; i+1 < len(idx); i++ {
		between := s[idx[i]+1 : idx[i+1]]
		if strings.Trim(between, " ") == "" {
			return true
		}
	}
	return false
}

func topLevelIndices(s string, ch byte) []int {
	var idx []int
	depth := 0
	i := 0
	for i < len(s) {
		if depth == 0 && strings.HasPrefix(s[i:], "<(") {
			depth++
			i += 2
			continue
		}
		if depth > 0 {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			i++
			continue
		}
		if s[i] == ch {
			idx = append(idx, i)
		}
		i++
	}
	return idx
}
