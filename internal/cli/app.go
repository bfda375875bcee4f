package cli

import (
	"context"
	"io"
	"os"
	"path"
	"strings"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/discovery"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/exec"
	"github.com/rileyhilliard/fleet/internal/files"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/pool"
	"github.com/rileyhilliard/fleet/internal/resolve"
	"github.com/rileyhilliard/fleet/internal/security"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// app holds everything a command needs for one invocation: the loaded
// config and the pool, router, file service and discovery stack built on it.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	pool     *pool.Pool
	router   *exec.Router
	files    *files.Service
	discover *discovery.Discoverer
	out      io.Writer

	// interactive enables live resolve progress on stderr.
	interactive bool

	stop context.CancelFunc
}

// newApp loads the config and wires the real SSH dialer and filesystem.
// Tests replace it.
var newApp = func(ctx context.Context) (*app, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	a := buildApp(ctx, cfg, pool.SSHDialer(cfg.Pool.ConnectTimeout), afero.NewOsFs(), os.Stdout)
	a.interactive = !machineMode && ui.Interactive()
	return a, nil
}

func buildApp(ctx context.Context, cfg *config.Config, dialer pool.Dialer, fs afero.Fs, out io.Writer) *app {
	log := logger.NewEnvLogger("fleet")

	opts := pool.OptionsFromConfig(cfg.Pool)
	opts.Logger = log
	p := pool.New(dialer, opts)

	ctx, stop := context.WithCancel(ctx)
	p.Start(ctx)

	router := exec.NewRouter(p, exec.RouterOptions{
		DefaultTimeout: cfg.CommandTimeout,
		Logger:         log,
	})
	cache := discovery.NewCache(fs, cfg.Discovery.CacheDir, discovery.CacheOptions{
		TTL:    cfg.Discovery.TTL,
		Logger: log,
	})

	return &app{
		cfg:    cfg,
		log:    log,
		pool:   p,
		router: router,
		files: files.NewService(router, files.Options{
			AllowAnyCommand: cfg.AllowAnyCommand || security.AllowAnyCommandFromEnv(),
			CommandTimeout:  cfg.CommandTimeout,
			Logger:          log,
		}),
		discover: discovery.NewDiscoverer(cache, router, cfg.Discovery.MaxDepth, log),
		out:      out,
		stop:     stop,
	}
}

// Close stops the health loop, closes every pooled connection and drops
// the ssh-agent socket.
func (a *app) Close() {
	a.stop()
	if err := a.pool.CloseAll(); err != nil {
		a.log.Debug("closing pool: %v", err)
	}
	sshutil.CloseAgent()
}

// withApp adapts a command body to cobra's RunE, building the app first
// and tearing it down afterwards.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}

// resolve picks the target from host and project. With a single configured
// host and neither flag, that host is used.
func (a *app) resolve(ctx context.Context, project, host string) (*resolve.Resolution, error) {
	if project == "" && host == "" && len(a.cfg.Hosts) == 1 {
		host = a.cfg.Hosts[0].Name
	}

	opts := resolve.Options{Timeout: a.cfg.ResolveTimeout, Logger: a.log}
	var progress *ui.ResolveProgress
	if a.interactive && host == "" && project != "" && len(a.cfg.Hosts) > 1 {
		progress = ui.NewResolveProgress(project, a.cfg.HostNames(), os.Stderr)
		opts.Observer = progress
		progress.Start()
	}

	res, err := resolve.New(a.cfg.Hosts, a.discover, opts).Resolve(ctx, project, host)
	if progress != nil {
		progress.Stop()
	}
	return res, err
}

// target resolves the --host and --project flags.
func (a *app) target(ctx context.Context) (*resolve.Resolution, error) {
	return a.resolve(ctx, projectFlag, hostFlag)
}

// hostNamed looks up a configured host by name.
func (a *app) hostNamed(name string) (config.HostConfig, error) {
	return resolve.New(a.cfg.Hosts, a.discover, resolve.Options{}).Host(name)
}

// projectDir returns the project directory for res, looking it up on the
// chosen host when the host was given explicitly.
func (a *app) projectDir(ctx context.Context, res *resolve.Resolution) (string, error) {
	if res.Path != "" || res.Project == "" {
		return res.Path, nil
	}
	entry, found, err := a.discover.Lookup(ctx, res.Host, res.Project)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.New(errors.ErrResolve,
			"Project '"+res.Project+"' not found on "+res.Host.Name,
			"Check the project name or the host's search_paths").WithHost(res.Host.Name).WithParam(res.Project)
	}
	res.Path = entry.Path
	res.Source = entry.DiscoveredFrom
	return res.Path, nil
}

// remotePath makes p absolute against the project directory. Absolute
// paths pass through; relative ones need --project. The result is not
// cleaned so the security layer still sees any traversal.
func (a *app) remotePath(ctx context.Context, res *resolve.Resolution, p string) (string, error) {
	if path.IsAbs(p) {
		return p, nil
	}
	dir, err := a.projectDir(ctx, res)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", errors.NewValidation("path", "must be absolute unless --project is set", p)
	}
	if p == "" || p == "." {
		return dir, nil
	}
	return strings.TrimSuffix(dir, "/") + "/" + strings.TrimPrefix(p, "./"), nil
}
