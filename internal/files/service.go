// Package files implements the remote file and command primitives: read,
// list, tree, execute, find, transfer, diff, grep and tail. Every input
// passes the security layer before it reaches a command line; execution
// goes through the exec router so local and remote hosts look the same.
package files

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/exec"
	"github.com/rileyhilliard/fleet/internal/logger"
)

// Limits and defaults for the file operations.
const (
	DefaultMaxReadSize  int64 = 1 << 20
	MaxReadSize         int64 = 16 << 20
	MaxStreamSize       int64 = 256 << 20
	MaxCrossHostDiff    int64 = 4 << 20
	DefaultTreeDepth          = 3
	DefaultFindDepth          = 5
	DefaultFindLimit          = 100
	DefaultContextLines       = 3
	DefaultGrepMatches        = 100
	DefaultTailLines          = 100
)

// Runner executes commands on a host. *exec.Router satisfies it.
type Runner interface {
	Execute(ctx context.Context, host config.HostConfig, name string, args []string, opts exec.Options) (*exec.Result, error)
	Pipeline(ctx context.Context, host config.HostConfig, stages []exec.Command, opts exec.Options) (*exec.Result, error)
}

var _ Runner = (*exec.Router)(nil)

// Options configures a Service.
type Options struct {
	// AllowAnyCommand disables the ExecuteCommand allow-list.
	AllowAnyCommand bool

	// CommandTimeout is the default for ExecuteCommand.
	CommandTimeout time.Duration

	Logger logger.Logger
}

// Service runs the file operations against configured hosts.
type Service struct {
	run      Runner
	allowAny bool
	timeout  time.Duration
	log      logger.Logger
}

// NewService creates a Service.
func NewService(r Runner, opts Options) *Service {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = exec.DefaultTimeout
	}
	return &Service{
		run:      r,
		allowAny: opts.AllowAnyCommand,
		timeout:  opts.CommandTimeout,
		log:      logger.OrDefault(opts.Logger),
	}
}

// check turns a non-zero exit into an EXEC error for operations where any
// failure is fatal. Stderr is trimmed and truncated so it can be relayed.
func check(op string, host config.HostConfig, name string, res *exec.Result) error {
	if res.ExitCode == 0 {
		return nil
	}
	if err := exec.MissingCommandError(host.Name, name, res); err != nil {
		return err.(*errors.Error).WithOp(op)
	}
	return commandFailed(op, host, res)
}

// checkPipeline is check for find pipelines. The exit status is the last
// stage's, so a find that only complained on stderr looks like success.
func checkPipeline(op string, host config.HostConfig, name string, res *exec.Result) error {
	if err := check(op, host, name, res); err != nil {
		return err
	}
	if len(res.Stdout) == 0 && len(strings.TrimSpace(string(res.Stderr))) > 0 {
		return errors.New(errors.ErrExec,
			fmt.Sprintf("%s failed on '%s'", op, host.Name),
			errors.Truncate(strings.TrimSpace(string(res.Stderr)), 300)).
			WithHost(host.Name).WithOp(op)
	}
	return nil
}

// requireDir fails unless dir is a directory on host.
func (s *Service) requireDir(ctx context.Context, op string, host config.HostConfig, dir string) error {
	res, err := s.run.Execute(ctx, host, "test", []string{"-d", dir}, exec.Options{})
	if err != nil {
		return err
	}
	if res.ExitCode == 0 {
		return nil
	}
	return errors.New(errors.ErrExec,
		fmt.Sprintf("%s: '%s' is not a directory on '%s'", op, dir, host.Name),
		fmt.Sprintf("Check the path with: fleet ls --host %s %s", host.Name, dir)).
		WithHost(host.Name).WithOp(op).WithParam("path")
}

func commandFailed(op string, host config.HostConfig, res *exec.Result) error {
	detail := strings.TrimSpace(string(res.Stderr))
	if detail == "" {
		detail = strings.TrimSpace(string(res.Stdout))
	}
	return errors.New(errors.ErrExec,
		fmt.Sprintf("%s failed on '%s' (exit %d)", op, host.Name, res.ExitCode),
		errors.Truncate(detail, 300)).
		WithHost(host.Name).WithOp(op)
}

func splitLines(b []byte) []string {
	s := strings.TrimRight(string(b), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
