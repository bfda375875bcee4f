package exec

import (
	"regexp"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/security"
)

// commandNameChars restricts program names. Names are rendered verbatim, so
// they get the path character class instead of escaping.
var commandNameChars = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// Command is one stage of a pipeline: a program name and its arguments.
type Command struct {
	Name string
	Args []string

	// Output redirects this stage's stdout to a file. The path must
	// already have passed security.ValidatePath.
	Output string
}

// Cmd is shorthand for a Command without redirection.
func Cmd(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

func (c Command) validate() error {
	if c.Name == "" || strings.HasPrefix(c.Name, "-") || !commandNameChars.MatchString(c.Name) {
		return errors.NewValidation("command", "program name contains unsafe characters", c.Name)
	}
	if c.Output != "" {
		if _, err := security.ValidatePath(c.Output); err != nil {
			return err
		}
	}
	return nil
}

// String renders the stage for a POSIX shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+3)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		parts = append(parts, security.EscapeShellArg(a))
	}
	if c.Output != "" {
		parts = append(parts, ">", security.EscapeShellArg(c.Output))
	}
	return strings.Join(parts, " ")
}

// Render builds the command line sent to a remote shell. Program names go
// in verbatim, every argument is escaped on its own, stages are joined with
// pipes, and a working directory becomes a leading cd.
//
//	cd '/srv/app' && cat '--' '/srv/app/log' | tail '-n' '50'
func Render(stages []Command, workDir string) string {
	rendered := make([]string, len(stages))
	for i, s := range stages {
		rendered[i] = s.String()
	}
	line := strings.Join(rendered, " | ")
	if workDir != "" {
		line = "cd " + security.EscapeShellArg(workDir) + " && " + line
	}
	return line
}

func validateStages(stages []Command, workDir string) error {
	if len(stages) == 0 {
		return errors.NewValidation("command", "must not be empty", "")
	}
	for _, s := range stages {
		if err := s.validate(); err != nil {
			return err
		}
	}
	if workDir != "" {
		if _, err := security.ValidateWorkingDir(workDir); err != nil {
			return err
		}
	}
	return nil
}
