package sshutil

import (
	"context"
	"io"
)

// SSHClient defines the interface for SSH command execution.
// Both the real Client and mock implementations satisfy this interface,
// so the pool and the executors can be tested without a live server.
type SSHClient interface {
	// ExecContext runs a command, piping stdin and streaming output.
	// A non-zero exit code with nil error means the command ran but failed.
	// On ctx expiry it returns ctx.Err().
	ExecContext(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (exitCode int, err error)

	// Ping checks that the connection is still usable.
	Ping(ctx context.Context) error

	// Close closes the SSH connection.
	Close() error

	// GetHost returns the logical host name used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}

var _ SSHClient = (*Client)(nil)
