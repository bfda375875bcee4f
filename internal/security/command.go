package security

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// AllowAnyCommandEnv disables the base-command allow-list when set to a
// true value. It defaults to disabled.
const AllowAnyCommandEnv = "FLEET_ALLOW_ANY_COMMAND"

// SafeCommands is the allow-list of base commands ExecuteCommand accepts.
var SafeCommands = map[string]bool{
	"cat":            true,
	"date":           true,
	"df":             true,
	"diff":           true,
	"docker":         true,
	"docker-compose": true,
	"du":             true,
	"echo":           true,
	"file":           true,
	"find":           true,
	"free":           true,
	"git":            true,
	"grep":           true,
	"head":           true,
	"hostname":       true,
	"id":             true,
	"journalctl":     true,
	"ls":             true,
	"md5sum":         true,
	"ps":             true,
	"pwd":            true,
	"sha256sum":      true,
	"sort":           true,
	"stat":           true,
	"tail":           true,
	"tree":           true,
	"uname":          true,
	"uniq":           true,
	"uptime":         true,
	"wc":             true,
	"which":          true,
	"whoami":         true,
}

// AllowedCommands returns the allow-listed base commands in sorted order.
func AllowedCommands() []string {
	names := make([]string, 0, len(SafeCommands))
	for name, ok := range SafeCommands {
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AllowAnyCommandFromEnv reports whether the escape hatch is switched on.
// Unparseable values count as off.
func AllowAnyCommandFromEnv() bool {
	v, err := strconv.ParseBool(os.Getenv(AllowAnyCommandEnv))
	return err == nil && v
}

// SafeCommand is a raw command line split into a validated base command and
// its arguments.
type SafeCommand struct {
	Name string
	Args []string
}

// String renders the command for a shell: the base command verbatim, every
// argument escaped individually, joined with spaces.
func (c SafeCommand) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		parts = append(parts, EscapeShellArg(a))
	}
	return strings.Join(parts, " ")
}

// ParseSafeCommand splits raw on whitespace and validates the first token.
// It does not understand quoting: `grep "a b" f` becomes three arguments
// `"a`, `b"` and `f`, each escaped literally.
func ParseSafeCommand(raw string, allowAny bool) (SafeCommand, error) {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return SafeCommand{}, errors.NewValidation("command", "must not be empty", raw)
	}
	base := tokens[0]
	if !pathChars.MatchString(base) || strings.HasPrefix(base, "-") {
		return SafeCommand{}, errors.NewValidation("command", "base command contains unsafe characters", base)
	}
	if !allowAny && !SafeCommands[base] {
		e := errors.NewValidation("command", "base command is not in the allow-list", base)
		e.Suggestion = "Allowed: " + strings.Join(AllowedCommands(), ", ")
		return SafeCommand{}, e
	}
	return SafeCommand{Name: base, Args: tokens[1:]}, nil
}
