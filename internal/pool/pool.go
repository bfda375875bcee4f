package pool

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
)

// ProbeCommand is the no-op remote command used by health checks.
const ProbeCommand = "true"

// Options controls pool sizing and timers.
type Options struct {
	MaxConnections      int
	IdleTimeout         time.Duration
	ConnectTimeout      time.Duration
	HealthCheckEnabled  bool
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	Logger              logger.Logger
}

// OptionsFromConfig maps the pool section of fleet.yaml onto Options.
func OptionsFromConfig(c config.PoolConfig) Options {
	return Options{
		MaxConnections:      c.MaxConnections,
		IdleTimeout:         c.IdleTimeout,
		ConnectTimeout:      c.ConnectTimeout,
		HealthCheckEnabled:  c.HealthCheckEnabled,
		HealthCheckInterval: c.HealthCheckInterval,
		HealthCheckTimeout:  c.HealthCheckTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := config.DefaultConfig().Pool
	if o.MaxConnections <= 0 {
		o.MaxConnections = d.MaxConnections
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = d.IdleTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.HealthCheckInterval <= 0 {
		o.HealthCheckInterval = d.HealthCheckInterval
	}
	if o.HealthCheckTimeout <= 0 {
		o.HealthCheckTimeout = d.HealthCheckTimeout
	}
	o.Logger = logger.OrDefault(o.Logger)
	return o
}

// PooledConnection is one live transport session owned by the pool.
// Callers hold it only between Acquire and Release/Discard.
type PooledConnection struct {
	ID        string
	Key       string
	Host      string
	Client    sshutil.SSHClient
	CreatedAt time.Time

	// Guarded by Pool.mu.
	lastUsed       time.Time
	active         bool
	checking       bool
	checkDone      chan struct{} // closed when the running health check ends
	gen            uint64
	idleTimer      *time.Timer
	healthPasses   int
	healthFailures int
}

// Pool keeps up to MaxConnections SSH sessions per pool key (name:port).
// A single mutex guards the map and counters; dials happen outside it
// against a reserved slot so the cap holds under concurrent Acquire.
type Pool struct {
	opts   Options
	dialer Dialer
	log    logger.Logger

	mu      sync.Mutex
	conns   map[string][]*PooledConnection
	pending map[string]int
	stats   counters
	closed  bool

	healthOnce    sync.Once
	healthRunning atomic.Bool
	stopHealth    chan struct{}
	healthDone    chan struct{}
}

// New creates a pool. Call Start to run the health loop and CloseAll on
// shutdown.
func New(dialer Dialer, opts Options) *Pool {
	opts = opts.withDefaults()
	return &Pool{
		opts:       opts,
		dialer:     dialer,
		log:        opts.Logger,
		conns:      make(map[string][]*PooledConnection),
		pending:    make(map[string]int),
		stopHealth: make(chan struct{}),
		healthDone: make(chan struct{}),
	}
}

// Acquire returns an idle connection for host, or dials a new one when the
// key is under its limit. It fails fast with a POOL error when every slot
// is borrowed. A slot held only by a running health check is not borrowed:
// Acquire waits for the check and takes the entry if it passed, or dials
// into the freed slot if it failed.
func (p *Pool) Acquire(ctx context.Context, host config.HostConfig) (*PooledConnection, error) {
	key := host.PoolKey()
	var waitUntil time.Time

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, errClosed(host.Name)
		}

		var checked chan struct{}
		for _, c := range p.conns[key] {
			if c.active {
				continue
			}
			if c.checking {
				if checked == nil {
					checked = c.checkDone
				}
				continue
			}
			c.active = true
			c.lastUsed = time.Now()
			c.gen++
			if c.idleTimer != nil {
				c.idleTimer.Stop()
				c.idleTimer = nil
			}
			p.stats.hits++
			p.mu.Unlock()
			p.log.Debug("pool hit %s (conn %s)", key, c.ID)
			return c, nil
		}

		if len(p.conns[key])+p.pending[key] < p.opts.MaxConnections {
			break
		}
		if checked == nil {
			p.mu.Unlock()
			return nil, errors.NewPoolExhausted(key, p.opts.MaxConnections).WithHost(host.Name)
		}

		// Checks are bounded by HealthCheckTimeout; the extra margin covers
		// the bookkeeping after one times out.
		if waitUntil.IsZero() {
			waitUntil = time.Now().Add(2 * p.opts.HealthCheckTimeout)
		}
		remaining := time.Until(waitUntil)
		if remaining <= 0 {
			p.mu.Unlock()
			return nil, errors.NewPoolExhausted(key, p.opts.MaxConnections).WithHost(host.Name)
		}
		p.mu.Unlock()

		p.log.Debug("pool %s full of conns under health check, waiting", key)
		timer := time.NewTimer(remaining)
		select {
		case <-checked:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.WrapWithCode(ctx.Err(), errors.ErrPool,
				fmt.Sprintf("Gave up waiting for a connection to '%s'", host.Name),
				"").WithHost(host.Name).WithOp("acquire")
		}
		timer.Stop()
		p.mu.Lock()
	}
	p.pending[key]++
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.opts.ConnectTimeout)
	client, err := p.dialer.Dial(dialCtx, host)
	cancel()

	p.mu.Lock()
	p.pending[key]--
	if p.pending[key] == 0 {
		delete(p.pending, key)
	}
	if err != nil {
		p.mu.Unlock()
		return nil, errors.WrapWithCode(err, errors.ErrPool,
			fmt.Sprintf("Couldn't open a connection to '%s'", host.Name),
			"Check the host is reachable with: fleet hosts --check").
			WithHost(host.Name).WithOp("acquire")
	}
	if p.closed {
		p.mu.Unlock()
		_ = client.Close()
		return nil, errClosed(host.Name)
	}

	now := time.Now()
	c := &PooledConnection{
		ID:        uuid.NewString(),
		Key:       key,
		Host:      host.Name,
		Client:    client,
		CreatedAt: now,
		lastUsed:  now,
		active:    true,
	}
	p.conns[key] = append(p.conns[key], c)
	p.stats.misses++
	p.mu.Unlock()

	p.log.Debug("pool miss %s, opened conn %s", key, c.ID)
	return c, nil
}

// Release returns a borrowed connection to the idle set and arms its idle
// eviction timer. Releasing a connection the pool no longer tracks is a no-op.
func (p *Pool) Release(host config.HostConfig, conn *PooledConnection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tracked(host.PoolKey(), conn) {
		p.log.Debug("release of untracked conn %s ignored", conn.ID)
		return
	}
	if !conn.active {
		p.log.Warn("conn %s released twice", conn.ID)
		return
	}

	conn.active = false
	conn.lastUsed = time.Now()
	conn.gen++
	gen := conn.gen
	key := conn.Key
	conn.idleTimer = time.AfterFunc(p.opts.IdleTimeout, func() {
		p.evictIdle(key, conn, gen)
	})
}

// Discard removes a borrowed connection whose transport is dead and
// closes it. It is never handed out again.
func (p *Pool) Discard(host config.HostConfig, conn *PooledConnection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	removed := p.remove(host.PoolKey(), conn)
	if removed {
		p.stats.discarded++
	}
	p.mu.Unlock()

	if removed {
		p.log.Debug("discarded conn %s for %s", conn.ID, conn.Key)
		_ = conn.Client.Close()
	}
}

// evictIdle fires from the per-release timer. gen guards against an entry
// that was reacquired (and maybe released again) since the timer was armed.
func (p *Pool) evictIdle(key string, conn *PooledConnection, gen uint64) {
	p.mu.Lock()
	if conn.active || conn.gen != gen || !p.tracked(key, conn) {
		p.mu.Unlock()
		return
	}
	p.remove(key, conn)
	p.stats.evictions++
	p.mu.Unlock()

	p.log.Debug("evicted idle conn %s for %s", conn.ID, key)
	_ = conn.Client.Close()
}

// Start launches the background health loop when enabled. It runs until
// ctx is done or CloseAll is called. Calling Start more than once is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if !p.opts.HealthCheckEnabled {
		return
	}
	p.healthOnce.Do(func() {
		p.healthRunning.Store(true)
		go p.healthLoop(ctx)
	})
}

func (p *Pool) healthLoop(ctx context.Context) {
	defer close(p.healthDone)

	ticker := time.NewTicker(p.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopHealth:
			return
		case <-ticker.C:
			p.CheckHealth(ctx)
		}
	}
}

// CheckHealth probes every idle connection once. Connections whose probe
// fails are removed and closed; the outcome only shows up in Stats.
func (p *Pool) CheckHealth(ctx context.Context) {
	p.mu.Lock()
	var idle []*PooledConnection
	for _, list := range p.conns {
		for _, c := range list {
			if !c.active && !c.checking {
				c.checking = true
				c.checkDone = make(chan struct{})
				idle = append(idle, c)
			}
		}
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range idle {
		wg.Add(1)
		go func(c *PooledConnection) {
			defer wg.Done()
			p.probe(ctx, c)
		}(c)
	}
	wg.Wait()
}

func (p *Pool) probe(ctx context.Context, c *PooledConnection) {
	probeCtx, cancel := context.WithTimeout(ctx, p.opts.HealthCheckTimeout)
	code, err := c.Client.ExecContext(probeCtx, ProbeCommand, nil, io.Discard, io.Discard)
	cancel()
	ok := err == nil && code == 0

	p.mu.Lock()
	c.checking = false
	close(c.checkDone)
	c.checkDone = nil
	if !p.tracked(c.Key, c) {
		// Evicted or closed while the probe was in flight.
		p.mu.Unlock()
		return
	}
	if ok {
		c.healthPasses++
		c.healthFailures = 0
		p.stats.healthPassed++
		p.mu.Unlock()
		return
	}
	c.healthFailures++
	p.stats.healthFailed++
	p.remove(c.Key, c)
	p.mu.Unlock()

	p.log.Warn("health check failed for conn %s on %s, disposing: %v", c.ID, c.Key, probeErr(code, err))
	_ = c.Client.Close()
}

func probeErr(code int, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("probe exited %d", code)
}

// CloseAll stops the health loop and closes every connection, borrowed or
// not. The pool rejects further Acquire calls.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var all []*PooledConnection
	for key, list := range p.conns {
		for _, c := range list {
			if c.idleTimer != nil {
				c.idleTimer.Stop()
				c.idleTimer = nil
			}
			all = append(all, c)
		}
		delete(p.conns, key)
	}
	p.mu.Unlock()

	close(p.stopHealth)
	// Blocks until a concurrent Start has finished, and prevents later ones.
	p.healthOnce.Do(func() {})
	if p.healthRunning.Load() {
		<-p.healthDone
	}

	var errs []error
	for _, c := range all {
		if err := c.Client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.ID, err))
		}
	}
	return stderrors.Join(errs...)
}

// tracked must be called with p.mu held.
func (p *Pool) tracked(key string, conn *PooledConnection) bool {
	for _, c := range p.conns[key] {
		if c == conn {
			return true
		}
	}
	return false
}

// remove must be called with p.mu held. It reports whether conn was present.
func (p *Pool) remove(key string, conn *PooledConnection) bool {
	list := p.conns[key]
	for i, c := range list {
		if c != conn {
			continue
		}
		if c.idleTimer != nil {
			c.idleTimer.Stop()
			c.idleTimer = nil
		}
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(p.conns, key)
		} else {
			p.conns[key] = list
		}
		return true
	}
	return false
}

func errClosed(host string) *errors.Error {
	return errors.New(errors.ErrPool,
		"Connection pool is closed",
		"The process is shutting down; retry in a new invocation").
		WithHost(host).WithOp("acquire")
}
