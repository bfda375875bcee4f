package security

import "strings"

// EscapeShellArg wraps s in single quotes, replacing each embedded ' with
// '\''. This is the only way a value containing metacharacters is made
// safe for a POSIX shell. A line meant for a second shell is escaped once
// for the inner shell, then again as a single argument for the outer one.
func EscapeShellArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
