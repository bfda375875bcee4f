package pool

import (
	"context"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
)

// Dialer opens a new transport session for a host.
type Dialer interface {
	Dial(ctx context.Context, host config.HostConfig) (sshutil.SSHClient, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, host config.HostConfig) (sshutil.SSHClient, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, host config.HostConfig) (sshutil.SSHClient, error) {
	return f(ctx, host)
}

// SSHDialer dials real SSH connections with sshutil.Dial.
func SSHDialer(timeout time.Duration) Dialer {
	return DialerFunc(func(ctx context.Context, host config.HostConfig) (sshutil.SSHClient, error) {
		return sshutil.Dial(ctx, TargetFor(host), timeout)
	})
}

// TargetFor maps a host entry onto a transport target.
func TargetFor(host config.HostConfig) sshutil.Target {
	return sshutil.Target{
		Name:    host.Name,
		Address: host.Address,
		Port:    host.Port,
		User:    host.User,
		KeyPath: host.KeyPath,
	}
}
