package sshutil

import (
	"context"
	stderrors "errors"
	"io"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ExecContext runs cmd in a fresh session, wiring stdin/stdout/stderr
// through. When ctx is done the remote process gets SIGKILL and the session
// is torn down; ctx.Err() is returned so callers can tell a timeout from a
// transport failure.
func (c *Client) ExecContext(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	session, err := c.Client.NewSession()
	if err != nil {
		return -1, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to create SSH session",
			"Connection may have been closed. Try reconnecting.").WithHost(c.Host)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = stdin
	}
	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Start(cmd); err != nil {
		return -1, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to start remote command",
			"Connection may have been closed. Try reconnecting.").WithHost(c.Host)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return -1, ctx.Err()
	case err := <-done:
		if err == nil {
			return 0, nil
		}
		var exitErr *ssh.ExitError
		if stderrors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return -1, errors.WrapWithCode(err, errors.ErrSSH,
			"Remote command ended without an exit status",
			"The connection may have dropped mid-command.").WithHost(c.Host)
	}
}

// Ping checks liveness with a keepalive global request, which avoids the
// cost of opening a session. A wedged connection is closed when ctx ends so
// the request goroutine can't leak.
func (c *Client) Ping(ctx context.Context) error {
	if c.Client == nil {
		return stderrors.New("ssh connection not initialized")
	}

	errCh := make(chan error, 1)
	go func() {
		_, _, err := c.Client.SendRequest("keepalive@openssh.com", true, nil)
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		_ = c.Client.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// IsConnectionError reports whether err means the transport itself broke,
// as opposed to a command failing or a deadline passing. Connections that
// return such errors should be discarded rather than reused.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if stderrors.Is(err, io.EOF) {
		return true
	}
	var missing *ssh.ExitMissingError
	if stderrors.As(err, &missing) {
		return true
	}
	if errors.IsCode(err, errors.ErrSSH) {
		return true
	}
	errText := err.Error()
	return strings.Contains(errText, "EOF") ||
		strings.Contains(errText, "connection reset by peer") ||
		strings.Contains(errText, "use of closed network connection") ||
		strings.Contains(errText, "broken pipe")
}
