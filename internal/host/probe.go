// Package host checks that configured hosts are reachable and explains
// why they are not.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/exec"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
	"golang.org/x/sync/errgroup"
)

// DefaultProbeConcurrency caps how many hosts ProbeAll dials at once.
const DefaultProbeConcurrency = 8

// ProbeError represents a failed probe with categorized failure reason.
type ProbeError struct {
	Host   string
	Reason ProbeFailReason
	Cause  error
}

// ProbeFailReason categorizes why a probe failed.
type ProbeFailReason int

const (
	ProbeFailUnknown ProbeFailReason = iota
	ProbeFailTimeout
	ProbeFailRefused
	ProbeFailUnreachable
	ProbeFailAuth
	ProbeFailHostKey
	ProbeFailDNS
	ProbeFailPool
)

// String returns a human-readable description of the failure reason.
func (r ProbeFailReason) String() string {
	switch r {
	case ProbeFailTimeout:
		return "connection timed out"
	case ProbeFailRefused:
		return "connection refused"
	case ProbeFailUnreachable:
		return "host unreachable"
	case ProbeFailAuth:
		return "authentication failed"
	case ProbeFailHostKey:
		return "host key verification failed"
	case ProbeFailDNS:
		return "name resolution failed"
	case ProbeFailPool:
		return "connection pool exhausted"
	default:
		return "unknown error"
	}
}

func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("probe %s failed: %s (%v)", e.Host, e.Reason, firstLine(e.Cause.Error()))
	}
	return fmt.Sprintf("probe %s failed: %s", e.Host, e.Reason)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Suggestion returns the usual fix for the failure reason.
func (e *ProbeError) Suggestion() string {
	switch e.Reason {
	case ProbeFailTimeout:
		return "Check if the host is reachable: ping " + e.Host
	case ProbeFailAuth:
		return "Deploy your key: ssh-copy-id " + e.Host
	case ProbeFailHostKey:
		return "Accept the host key: ssh -o StrictHostKeyChecking=accept-new " + e.Host + " exit"
	case ProbeFailDNS:
		return "Check the address spelling and your ssh config"
	case ProbeFailRefused, ProbeFailUnreachable:
		return "Check that sshd is running and the port is open"
	case ProbeFailPool:
		return "Every pooled connection to this host is busy; retry shortly"
	default:
		return ""
	}
}

// ProbeResult is the outcome for one host.
type ProbeResult struct {
	Host    string        `json:"host"`
	Address string        `json:"address"`
	Local   bool          `json:"local"`
	Skipped bool          `json:"skipped,omitempty"`
	Success bool          `json:"success"`
	Latency time.Duration `json:"latency_ns"`
	Error   error         `json:"-"`
}

// Probe borrows a pooled connection to host, pings it, and hands it back.
// Local hosts always succeed; hosts without a shell transport are skipped.
func Probe(ctx context.Context, p exec.ConnectionPool, h config.HostConfig) ProbeResult {
	res := ProbeResult{Host: h.Name, Address: h.Address}
	switch {
	case h.IsLocal():
		res.Local = true
		res.Success = true
		return res
	case !h.HasShell():
		res.Skipped = true
		return res
	}

	start := time.Now()
	conn, err := p.Acquire(ctx, h)
	if err != nil {
		res.Error = categorizeProbeError(h.Name, err)
		return res
	}
	if err := conn.Client.Ping(ctx); err != nil {
		p.Discard(h, conn)
		res.Error = categorizeProbeError(h.Name, err)
		return res
	}
	p.Release(h, conn)

	res.Latency = time.Since(start)
	res.Success = true
	return res
}

// ProbeAll probes hosts concurrently, at most concurrency at a time, and
// returns results in input order.
func ProbeAll(ctx context.Context, p exec.ConnectionPool, hosts []config.HostConfig, concurrency int) []ProbeResult {
	if concurrency <= 0 {
		concurrency = DefaultProbeConcurrency
	}
	results := make([]ProbeResult, len(hosts))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, h := range hosts {
		i, h := i, h
		g.Go(func() error {
			results[i] = Probe(ctx, p, h)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// categorizeProbeError converts a generic error into a ProbeError with
// a categorized failure reason.
func categorizeProbeError(hostName string, err error) *ProbeError {
	if err == nil {
		return nil
	}

	probeErr := &ProbeError{
		Host:   hostName,
		Reason: ProbeFailUnknown,
		Cause:  err,
	}

	var hkErr *sshutil.HostKeyMismatchError
	if errors.As(err, &hkErr) {
		probeErr.Reason = ProbeFailHostKey
		return probeErr
	}

	if strings.Contains(strings.ToLower(err.Error()), "connection pool exhausted") {
		probeErr.Reason = ProbeFailPool
		return probeErr
	}

	// Match on the innermost error so wrapper suggestions don't skew the result.
	errStr := strings.ToLower(rootCause(err).Error())

	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "deadline exceeded"):
		probeErr.Reason = ProbeFailTimeout
	case strings.Contains(errStr, "connection refused"):
		probeErr.Reason = ProbeFailRefused
	case strings.Contains(errStr, "no route to host"),
		strings.Contains(errStr, "network is unreachable"),
		strings.Contains(errStr, "host is down"):
		probeErr.Reason = ProbeFailUnreachable
	case strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "server misbehaving"):
		probeErr.Reason = ProbeFailDNS
	case strings.Contains(errStr, "unable to authenticate"),
		strings.Contains(errStr, "no supported methods"),
		strings.Contains(errStr, "permission denied"),
		strings.Contains(errStr, "authentication failed"):
		probeErr.Reason = ProbeFailAuth
	case strings.Contains(errStr, "host key"):
		probeErr.Reason = ProbeFailHostKey
	}
	return probeErr
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "✗"))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
