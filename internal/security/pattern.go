package security

import (
	"fmt"
	"regexp"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// Search patterns are validated by sink. The two policies must stay
// separate:
//
//   - Shell-sink patterns end up inside a grep command line on a remote
//     host. Only [A-Za-z0-9 .-] is allowed.
//   - In-process-sink patterns are only ever compared with strings.Contains
//     in this process. Brackets, quotes and pipes are fine; control
//     characters are not.

const (
	maxShellPatternLength  = 200
	maxFilterPatternLength = 500
)

var shellPatternChars = regexp.MustCompile(`^[A-Za-z0-9 .-]+$`)

// ValidateShellPattern validates a pattern destined for a remote grep.
// Used by files.Service.GrepFiles and discovery scans.
func ValidateShellPattern(pattern string) (string, error) {
	if pattern == "" {
		return "", errors.NewValidation("pattern", "must not be empty", pattern)
	}
	if len(pattern) > maxShellPatternLength {
		return "", errors.NewValidation("pattern", fmt.Sprintf("longer than %d characters", maxShellPatternLength), pattern)
	}
	if !shellPatternChars.MatchString(pattern) {
		return "", errors.NewValidation("pattern", "may only contain letters, digits, spaces, '.' and '-'", pattern)
	}
	return pattern, nil
}

// ValidateFilterPattern validates a pattern matched in-process against log
// lines. Used by files.Service.TailLog. Never pass the result to a shell.
func ValidateFilterPattern(pattern string) (string, error) {
	if len(pattern) > maxFilterPatternLength {
		return "", errors.NewValidation("filter", fmt.Sprintf("longer than %d characters", maxFilterPatternLength), pattern)
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] < 0x20 {
			return "", errors.NewValidation("filter", "must not contain control characters", pattern)
		}
	}
	return pattern, nil
}
