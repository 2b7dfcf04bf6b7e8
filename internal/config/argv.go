package config

import (
	"fmt"
	"strings"
	"unicode"
)

// parseArgv splits a shell-like command string into argv tokens with
// support for single/double quotes and backslash escapes.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	var (
		argv    []string
		current strings.Builder
		quote   rune
		escape  bool
		loaded  bool
	)

	flush := func() {
		if !loaded {
			return
		}
		argv = append(argv, current.String())
		current.Reset()
		loaded = false
	}

	for _, r := range input {
		switch {
		case escape:
			current.WriteRune(r)
			loaded = true
			escape = false
		case r == '\\' && quote != '\'':
			escape = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			loaded = true
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
			loaded = true
		}
	}

	if escape {
		return nil, fmt.Errorf("command %q ends with a dangling escape", input)
	}
	if quote != 0 {
		return nil, fmt.Errorf("command %q has an unterminated %c quote", input, quote)
	}
	flush()

	return argv, nil
}
