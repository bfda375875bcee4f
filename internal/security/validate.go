package security

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// DefaultMaxArgLength is the length ceiling applied by ValidateArg when the
// caller passes a non-positive limit.
const DefaultMaxArgLength = 500

const (
	maxPathLength     = 4096
	maxHostLength     = 253
	maxUserLength     = 32
	maxProjectLength  = 128
	MaxTreeDepth      = 10
	MaxFindDepth      = 20
	MaxResultLimit    = 10000
	MaxContextLines   = 100
	MaxCommandTimeout = 10 * time.Minute
)

// ShellMetacharacters is the denylist shared by host, user, key path and
// generic argument validation.
const ShellMetacharacters = ";&|`$()<>{}[]\\\"'\n\t\r\x00"

var (
	pathChars    = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	nameChars    = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	keyPathChars = regexp.MustCompile(`^[A-Za-z0-9._~/-]+$`)
)

// ValidatePath accepts absolute paths built from [A-Za-z0-9._-/] with no
// "." or ".." segment. The cleaned path must keep the original first
// segment.
func ValidatePath(p string) (string, error) {
	return validateAbsPath("path", p)
}

// ValidateWorkingDir applies the path rules to a directory a command will
// run in.
func ValidateWorkingDir(dir string) (string, error) {
	return validateAbsPath("working_dir", dir)
}

func validateAbsPath(param, p string) (string, error) {
	if p == "" {
		return "", errors.NewValidation(param, "must not be empty", p)
	}
	if len(p) > maxPathLength {
		return "", errors.NewValidation(param, fmt.Sprintf("longer than %d characters", maxPathLength), p)
	}
	if !strings.HasPrefix(p, "/") {
		return "", errors.NewValidation(param, "must be absolute", p)
	}
	if !pathChars.MatchString(p) {
		return "", errors.NewValidation(param, "may only contain letters, digits, '.', '_', '-' and '/'", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return "", errors.NewValidation(param, "must not contain '.' or '..' segments", p)
		}
	}
	if firstSegment(path.Clean(p)) != firstSegment(p) {
		return "", errors.NewValidation(param, "resolves outside its own root", p)
	}
	return p, nil
}

func firstSegment(p string) string {
	trimmed := strings.TrimLeft(p, "/")
	if i := strings.Index(trimmed, "/"); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// ValidateHost accepts hostnames and IPv4 addresses made of [A-Za-z0-9._-].
// A leading '-' is rejected so the value can never be read as an ssh option.
func ValidateHost(host string) (string, error) {
	return validateName("host", host, maxHostLength)
}

// ValidateUser accepts usernames made of [A-Za-z0-9._-].
func ValidateUser(user string) (string, error) {
	return validateName("user", user, maxUserLength)
}

// ValidateProjectName accepts compose-style project names. Project names
// become cache keys and find(1) arguments.
func ValidateProjectName(name string) (string, error) {
	v, err := validateName("project", name, maxProjectLength)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(v, ".") {
		return "", errors.NewValidation("project", "must not start with '.'", name)
	}
	return v, nil
}

func validateName(param, v string, maxLen int) (string, error) {
	if v == "" {
		return "", errors.NewValidation(param, "must not be empty", v)
	}
	if len(v) > maxLen {
		return "", errors.NewValidation(param, fmt.Sprintf("longer than %d characters", maxLen), v)
	}
	if strings.ContainsAny(v, ShellMetacharacters) {
		return "", errors.NewValidation(param, "contains shell metacharacters", v)
	}
	if !nameChars.MatchString(v) {
		return "", errors.NewValidation(param, "may only contain letters, digits, '.', '_' and '-'", v)
	}
	if strings.HasPrefix(v, "-") {
		return "", errors.NewValidation(param, "must not start with '-'", v)
	}
	return v, nil
}

// ValidateKeyPath accepts credential file paths. '~' is allowed so
// ~/.ssh/id_ed25519 style references pass through to the transport.
func ValidateKeyPath(p string) (string, error) {
	if p == "" {
		return "", errors.NewValidation("key_path", "must not be empty", p)
	}
	if len(p) > maxPathLength {
		return "", errors.NewValidation("key_path", fmt.Sprintf("longer than %d characters", maxPathLength), p)
	}
	if strings.ContainsAny(p, ShellMetacharacters) {
		return "", errors.NewValidation("key_path", "contains shell metacharacters", p)
	}
	if !keyPathChars.MatchString(p) {
		return "", errors.NewValidation("key_path", "may only contain letters, digits, '.', '_', '-', '~' and '/'", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", errors.NewValidation("key_path", "must not contain '..' segments", p)
		}
	}
	return p, nil
}

// ValidateArg guards a generic remote argument. Spaces are permitted since
// arguments are never split further. maxLen <= 0 means DefaultMaxArgLength.
func ValidateArg(arg string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxArgLength
	}
	if len(arg) > maxLen {
		return "", errors.NewValidation("argument", fmt.Sprintf("longer than %d characters", maxLen), arg)
	}
	if strings.ContainsAny(arg, ShellMetacharacters) {
		return "", errors.NewValidation("argument", "contains shell metacharacters", arg)
	}
	return arg, nil
}

// ValidateDepth checks a depth bound for tree/find. Depths are rendered
// into command lines, so they are range-checked rather than trusted.
func ValidateDepth(param string, depth, max int) (int, error) {
	if depth < 1 || depth > max {
		return 0, errors.NewValidation(param, fmt.Sprintf("must be between 1 and %d", max), fmt.Sprint(depth))
	}
	return depth, nil
}

// ValidateLimit checks a result-count cap.
func ValidateLimit(limit int) (int, error) {
	if limit < 1 || limit > MaxResultLimit {
		return 0, errors.NewValidation("limit", fmt.Sprintf("must be between 1 and %d", MaxResultLimit), fmt.Sprint(limit))
	}
	return limit, nil
}

// ValidateContextLines checks the unified diff context size.
func ValidateContextLines(n int) (int, error) {
	if n < 0 || n > MaxContextLines {
		return 0, errors.NewValidation("context_lines", fmt.Sprintf("must be between 0 and %d", MaxContextLines), fmt.Sprint(n))
	}
	return n, nil
}

// ValidateTimeout checks a caller-supplied command timeout.
func ValidateTimeout(d time.Duration) (time.Duration, error) {
	if d <= 0 || d > MaxCommandTimeout {
		return 0, errors.NewValidation("timeout", fmt.Sprintf("must be between 1ms and %s", MaxCommandTimeout), d.String())
	}
	return d, nil
}

// ValidateSize checks a byte budget such as ReadFile's maxSize.
func ValidateSize(param string, n, max int64) (int64, error) {
	if n < 1 || n > max {
		return 0, errors.NewValidation(param, fmt.Sprintf("must be between 1 and %d", max), fmt.Sprint(n))
	}
	return n, nil
}
