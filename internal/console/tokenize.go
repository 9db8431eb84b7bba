package console

import (
	"errors"
	"strings"
	"unicode"
)

// ErrUnterminatedQuote is returned when a quoted span is still open at the
// end of the input. The whole command is discarded.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Tokenize splits a command line into arguments.
//
// Unquoted whitespace separates arguments. ' and " open a span closed by the
// same character, inside which whitespace is literal. A backslash inserts
// the next character literally in or out of quotes and never changes the
// quote state. Quoting an empty span ("") yields an empty argument; runs of
// whitespace never do.
func Tokenize(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		started bool // current holds a token, possibly empty
		escaped bool
	)

	for _, c := range line {
		if escaped {
			current.WriteRune(c)
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			started = true
			continue
		}
		if quote != 0 {
			if c == quote {
				quote = 0
			} else {
				current.WriteRune(c)
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
			started = true
		case unicode.IsSpace(c):
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(c)
			started = true
		}
	}

	if quote != 0 {
		return nil, ErrUnterminatedQuote
	}
	// a trailing lone backslash stands for itself
	if escaped {
		current.WriteRune('\\')
	}
	if started {
		args = append(args, current.String())
	}
	return args, nil
}

// SplitCommand separates a command line into its command name and the raw
// argument string that follows the first run of whitespace.
func SplitCommand(line string) (name, rest string) {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimLeftFunc(line[i:], unicode.IsSpace)
}
