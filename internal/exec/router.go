package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/pool"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
)

// DefaultTimeout bounds a command when neither the caller nor the router
// options set one.
const DefaultTimeout = 30 * time.Second

// ConnectionPool is the part of pool.Pool the router needs.
type ConnectionPool interface {
	Acquire(ctx context.Context, host config.HostConfig) (*pool.PooledConnection, error)
	Release(host config.HostConfig, conn *pool.PooledConnection)
	Discard(host config.HostConfig, conn *pool.PooledConnection)
}

var _ ConnectionPool = (*pool.Pool)(nil)

// Options are per-call execution settings.
type Options struct {
	// WorkDir is the directory the command runs in. Empty keeps the
	// login directory (remote) or the process directory (local).
	WorkDir string

	// Timeout overrides the router default.
	Timeout time.Duration

	// Stdin feeds the first stage.
	Stdin io.Reader
}

// Result is the captured outcome of a command that ran to completion.
// A non-zero ExitCode is not an error at this layer.
type Result struct {
	Host     string
	Command  string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Succeeded reports a zero exit code.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// RouterOptions configures a Router.
type RouterOptions struct {
	DefaultTimeout time.Duration
	Logger         logger.Logger
}

// Router sends each command either to the local executor or through a
// pooled SSH connection, depending on the host.
type Router struct {
	pool    ConnectionPool
	local   *LocalExecutor
	timeout time.Duration
	log     logger.Logger
}

// NewRouter creates a Router backed by p.
func NewRouter(p ConnectionPool, opts RouterOptions) *Router {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	return &Router{
		pool:    p,
		local:   NewLocalExecutor(),
		timeout: opts.DefaultTimeout,
		log:     logger.OrDefault(opts.Logger),
	}
}

// Execute runs a single command on host.
func (r *Router) Execute(ctx context.Context, host config.HostConfig, name string, args []string, opts Options) (*Result, error) {
	return r.Pipeline(ctx, host, []Command{{Name: name, Args: args}}, opts)
}

// ExecuteStdin runs a single command on host with stdin attached.
func (r *Router) ExecuteStdin(ctx context.Context, host config.HostConfig, name string, args []string, stdin io.Reader, opts Options) (*Result, error) {
	opts.Stdin = stdin
	return r.Execute(ctx, host, name, args, opts)
}

// Pipeline runs stages connected stdout to stdin on host. It returns an
// error only when the command could not be run to completion: validation,
// pool, transport or timeout failures.
func (r *Router) Pipeline(ctx context.Context, host config.HostConfig, stages []Command, opts Options) (*Result, error) {
	if err := validateStages(stages, opts.WorkDir); err != nil {
		return nil, err
	}
	if !host.HasShell() {
		return nil, errors.New(errors.ErrExec,
			fmt.Sprintf("Host '%s' has no shell access", host.Name),
			"Hosts with protocol http only expose the container-engine API").
			WithHost(host.Name).WithOp("execute")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	line := Render(stages, opts.WorkDir)
	res := &Result{Host: host.Name, Command: line}
	start := time.Now()

	var err error
	if host.IsLocal() {
		r.log.Debug("local exec: %s", line)
		res.Stdout, res.Stderr, res.ExitCode, err = r.local.Run(runCtx, stages, opts.WorkDir, opts.Stdin)
	} else {
		r.log.Debug("remote exec on %s: %s", host.Name, line)
		err = r.runRemote(runCtx, host, line, opts.Stdin, res)
	}
	res.Duration = time.Since(start)

	if err != nil {
		if ctx.Err() == nil && stderrors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewTimeout("execute", timeout).WithHost(host.Name)
		}
		return nil, err
	}
	return res, nil
}

// runRemote borrows a connection for exactly one command. The connection
// goes back to the idle set on every exit path unless the transport died,
// in which case it is discarded.
func (r *Router) runRemote(ctx context.Context, host config.HostConfig, line string, stdin io.Reader, res *Result) (err error) {
	conn, err := r.pool.Acquire(ctx, host)
	if err != nil {
		return err
	}

	dead := false
	defer func() {
		if dead {
			r.log.Debug("discarding conn %s on %s after transport error", conn.ID, host.Name)
			r.pool.Discard(host, conn)
			return
		}
		r.pool.Release(host, conn)
	}()

	var stdout, stderr bytes.Buffer
	code, execErr := conn.Client.ExecContext(ctx, line, stdin, &stdout, &stderr)
	res.Stdout, res.Stderr, res.ExitCode = stdout.Bytes(), stderr.Bytes(), code
	if execErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		// Timed out or canceled. The session is presumed alive.
		return ctx.Err()
	}
	if sshutil.IsConnectionError(execErr) {
		dead = true
	}
	if errors.CodeOf(execErr) != "" {
		return execErr
	}
	return errors.WrapWithCode(execErr, errors.ErrSSH,
		fmt.Sprintf("Command failed on '%s'", host.Name),
		"Check the connection with: fleet hosts --check").
		WithHost(host.Name).WithOp("execute")
}
