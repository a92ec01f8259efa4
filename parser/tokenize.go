package parser

import "strings"

// maxTokens caps the whitespace tokenizer's output. The source this shell
// is modeled on (original_source/src/parser/parser.h) fixes this at 256 and
// silently drops the remainder; spec.md documents it as a known limit
// rather than an error, so we keep the silent truncation.
const maxTokens = 256

var redirectionOperators = map[string]Redirection{
	"<":   {Channel: Stdin, Mode: NoMode},
	">":   {Channel: Stdout, Mode: NoOverwrite},
	">|":  {Channel: Stdout, Mode: Overwrite},
	">>":  {Channel: Stdout, Mode: Append},
	"2>":  {Channel: Stderr, Mode: NoOverwrite},
	"2>|": {Channel: Stderr, Mode: Overwrite},
	"2>>": {Channel: Stderr, Mode: Append},
}

func isRedirectionOperator(tok string) bool {
	_, ok := redirectionOperators[tok]
	return ok
}

func isSubstitutionToken(tok string) bool {
	return strings.HasPrefix(tok, "<(") && strings.HasSuffix(tok, ")")
}

// splitTopLevel scans s for sep, but never inside a "<(...)" substitution
// span (balanced on parens, so a nested substitution or a pipe buried in
// one doesn't get cut in half by an outer split). It does not itself strip
// empty leading/trailing segments; callers decide what to do with those.
func splitTopLevel(s string, sep string) []string {
	var tokens []string
	depth := 0
	start := 0
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
		if sep != "" && strings.HasPrefix(s[i:], sep) {
			tokens = append(tokens, s[start:i])
			i += len(sep)
			start = i
			continue
		}
		i++
	}
	tokens = append(tokens, s[start:])
	return tokens
}

// tokenizeStrtok splits on runs of a single-character delimiter the way C's
// strtok does: consecutive, leading, and trailing delimiters all collapse
// to nothing, so no empty token is ever produced. Used for both word
// splitting (delimiter " ") and pipeline-list splitting (delimiter "&").
func tokenizeStrtok(input string, delim string) []string {
	raw := splitTopLevel(input, delim)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t == "" {
			continue
		}
		if len(tokens) >= maxTokens {
			break
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// tokenizeWhitespace splits on runs of ASCII space, respecting substitution
// spans, and caps the result at maxTokens (excess silently dropped).
func tokenizeWhitespace(input string) []string {
	return tokenizeStrtok(input, " ")
}

// tokenizeSequence splits on a literal multi-character separator, skipping
// empty segments at the head only (spec.md §4.1).
func tokenizeSequence(input string, seqDelim string) []string {
	if input == "" {
		return nil
	}
	raw := splitTopLevel(input, seqDelim)
	i := 0
	for i < len(raw) && raw[i] == "" {
		i++
	}
	return raw[i:]
}
