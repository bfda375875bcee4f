package exec

import (
	"fmt"
	"regexp"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// commandNotFoundPatterns detect "command not found" output from various
// shells. They only apply with exit code 127.
var commandNotFoundPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bash: (\S+): command not found`),
	regexp.MustCompile(`(?i)zsh: command not found: (\S+)`),
	regexp.MustCompile(`(?i)sh: \d+: (\S+): not found`),
	regexp.MustCompile(`(?i)-bash: (\S+): No such file or directory`),
	regexp.MustCompile(`(?i)(\S+): not found`),
	regexp.MustCompile(`(?i)(\S+): command not found`),
}

// IsCommandNotFound checks if the error output indicates a missing command.
// Returns the command name (if extractable) and whether it's a
// command-not-found error.
func IsCommandNotFound(stderr string, exitCode int) (string, bool) {
	if exitCode != 127 {
		return "", false
	}
	for _, pattern := range commandNotFoundPatterns {
		if matches := pattern.FindStringSubmatch(stderr); len(matches) > 1 {
			return matches[1], true
		}
	}
	return "", true
}

// MissingCommandError turns a 127 exit into an EXEC error that names the
// missing program and the host. It returns nil for any other result.
func MissingCommandError(host, name string, res *Result) error {
	if res == nil {
		return nil
	}
	cmdName, notFound := IsCommandNotFound(string(res.Stderr), res.ExitCode)
	if !notFound {
		return nil
	}
	if cmdName == "" {
		cmdName = name
	}
	return errors.New(errors.ErrExec,
		fmt.Sprintf("'%s' not found in PATH on %s", cmdName, host),
		fmt.Sprintf("Install '%s' on the host, or check it with: fleet exec --host %s which %s", cmdName, host, cmdName)).
		WithHost(host)
}
