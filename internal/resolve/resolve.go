// Package resolve finds the host that owns a compose project.
package resolve

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/discovery"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/security"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a fan-out across all hosts.
const DefaultTimeout = 30 * time.Second

// Locator reports where a project lives on one host. *discovery.Discoverer
// satisfies it.
type Locator interface {
	Lookup(ctx context.Context, host config.HostConfig, project string) (discovery.ProjectEntry, bool, error)
}

// Observer is told when each host's lookup starts and finishes. Calls come
// from multiple goroutines.
type Observer interface {
	HostStarted(host string)
	HostDone(host string, found bool, err error)
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	Host    config.HostConfig    `json:"-"`
	Project string               `json:"project,omitempty"`
	Path    string               `json:"path,omitempty"`
	Source  discovery.Provenance `json:"source,omitempty"`
}

// Options configures a Resolver.
type Options struct {
	Timeout  time.Duration
	Logger   logger.Logger
	Observer Observer
}

// Resolver picks a target host, either by name or by asking every host
// whether it has the project.
type Resolver struct {
	hosts   []config.HostConfig
	locate  Locator
	timeout time.Duration
	log     logger.Logger
	obs     Observer
}

// New creates a Resolver over hosts.
func New(hosts []config.HostConfig, l Locator, opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Resolver{
		hosts:   hosts,
		locate:  l,
		timeout: opts.Timeout,
		log:     logger.OrDefault(opts.Logger),
		obs:     opts.Observer,
	}
}

// Host returns the configured host named name.
func (r *Resolver) Host(name string) (config.HostConfig, error) {
	for _, h := range r.hosts {
		if h.Name == name {
			return h, nil
		}
	}
	return config.HostConfig{}, errors.New(errors.ErrResolve,
		fmt.Sprintf("Host '%s' not found in configuration", name),
		r.hostSuggestion()).WithHost(name).WithOp("resolve")
}

func (r *Resolver) hostSuggestion() string {
	if len(r.hosts) == 0 {
		return "No hosts are configured. Add one to fleet.yaml or run 'fleet hosts import'"
	}
	names := make([]string, len(r.hosts))
	for i, h := range r.hosts {
		names[i] = h.Name
	}
	return "Configured hosts: " + strings.Join(names, ", ")
}

// Resolve returns the host for project. An explicit host wins without any
// discovery. Otherwise every host is asked concurrently; exactly one must
// report the project.
func (r *Resolver) Resolve(ctx context.Context, project, explicitHost string) (*Resolution, error) {
	if project != "" {
		if _, err := security.ValidateProjectName(project); err != nil {
			return nil, err
		}
	}

	if explicitHost != "" {
		h, err := r.Host(explicitHost)
		if err != nil {
			return nil, err
		}
		return &Resolution{Host: h, Project: project}, nil
	}

	if project == "" {
		return nil, errors.New(errors.ErrResolve,
			"Need a host or a project to pick a target",
			"Pass --host <name> or --project <name>").WithOp("resolve")
	}

	return r.fanOut(ctx, project)
}

type hostResult struct {
	entry discovery.ProjectEntry
	found bool
	err   error
}

func (r *Resolver) fanOut(ctx context.Context, project string) (*Resolution, error) {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make([]hostResult, len(r.hosts))
	var g errgroup.Group
	for i, h := range r.hosts {
		i, h := i, h
		g.Go(func() error {
			if r.obs != nil {
				r.obs.HostStarted(h.Name)
			}
			entry, found, err := r.locate.Lookup(tctx, h, project)
			if err != nil {
				r.log.Debug("lookup of %s on %s failed: %v", project, h.Name, err)
			}
			if r.obs != nil {
				r.obs.HostDone(h.Name, found, err)
			}
			results[i] = hostResult{entry: entry, found: found, err: err}
			// Per-host failures are collected, not propagated, so one
			// unreachable host does not hide a match on another.
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if stderrors.Is(tctx.Err(), context.DeadlineExceeded) {
		return nil, errors.NewTimeout("resolve", r.timeout).WithParam(project)
	}

	var matches []int
	var failed []string
	for i, res := range results {
		switch {
		case res.err != nil:
			failed = append(failed, r.hosts[i].Name)
		case res.found:
			matches = append(matches, i)
		}
	}

	switch len(matches) {
	case 1:
		i := matches[0]
		r.log.Debug("resolved %s to %s:%s", project, r.hosts[i].Name, results[i].entry.Path)
		return &Resolution{
			Host:    r.hosts[i],
			Project: project,
			Path:    results[i].entry.Path,
			Source:  results[i].entry.DiscoveredFrom,
		}, nil
	case 0:
		suggestion := "Check the project name, or pass --host if it lives outside the configured search paths"
		if len(failed) > 0 {
			suggestion = fmt.Sprintf("Could not check %s; fix connectivity or pass --host", strings.Join(failed, ", "))
		}
		return nil, errors.New(errors.ErrResolve,
			fmt.Sprintf("Project '%s' not found on any host", project),
			suggestion).WithParam(project).WithOp("resolve")
	default:
		names := make([]string, len(matches))
		for k, i := range matches {
			names[k] = r.hosts[i].Name
		}
		return nil, errors.New(errors.ErrResolve,
			fmt.Sprintf("Project '%s' found on multiple hosts: %s", project, strings.Join(names, ", ")),
			"Pass --host to pick one").WithParam(project).WithOp("resolve")
	}
}
