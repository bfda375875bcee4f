package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// ParseTimeout parses a --timeout flag into a duration.
// Returns zero duration if the flag is empty.
func ParseTimeout(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrValidation,
			fmt.Sprintf("'%s' doesn't look like a valid timeout", flag),
			"Try something like 5s, 2m, or 500ms.").WithParam("timeout")
	}
	return duration, nil
}

// hostPath is a "host:path" argument. Host is empty when the argument had
// no host prefix.
type hostPath struct {
	Host string
	Path string
}

// parseHostPath splits "web1:/srv/app/.env" into host and path. A bare
// path keeps an empty host so the caller can fall back to --host/--project.
func parseHostPath(arg string) (hostPath, error) {
	if arg == "" {
		return hostPath{}, errors.NewValidation("path", "must not be empty", arg)
	}
	i := strings.IndexByte(arg, ':')
	if i < 0 || strings.HasPrefix(arg, "/") || strings.HasPrefix(arg, ".") {
		return hostPath{Path: arg}, nil
	}
	hp := hostPath{Host: arg[:i], Path: arg[i+1:]}
	if hp.Path == "" {
		return hostPath{}, errors.NewValidation("path", "missing after host prefix", arg)
	}
	return hp, nil
}

// emit writes data as a JSON envelope in machine mode, or runs human to
// print it for people.
func emit(w io.Writer, data interface{}, human func(w io.Writer) error) error {
	if machineMode {
		return WriteJSONSuccess(w, data)
	}
	return human(w)
}
