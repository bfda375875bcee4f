package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/exec"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/security"
)

// ComposeFileNames are the file names that mark a compose project directory.
var ComposeFileNames = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yaml",
	"docker-compose.yml",
}

// Runner executes commands on a host. *exec.Router satisfies it.
type Runner interface {
	Execute(ctx context.Context, host config.HostConfig, name string, args []string, opts exec.Options) (*exec.Result, error)
}

// Scanner finds compose projects by walking a host's search paths.
type Scanner struct {
	run      Runner
	maxDepth int
	log      logger.Logger
}

// NewScanner creates a Scanner. maxDepth bounds the find walk below each
// search path.
func NewScanner(r Runner, maxDepth int, log logger.Logger) *Scanner {
	if maxDepth <= 0 {
		maxDepth = config.DefaultConfig().Discovery.MaxDepth
	}
	return &Scanner{run: r, maxDepth: maxDepth, log: logger.OrDefault(log)}
}

// Scan returns every project found under host's search paths, keyed by
// the name of the directory holding the compose file. When the same name
// shows up twice the first (shallowest, then lexical) wins.
func (s *Scanner) Scan(ctx context.Context, host config.HostConfig) (map[string]ProjectEntry, error) {
	depth, err := security.ValidateDepth("max_depth", s.maxDepth, security.MaxFindDepth)
	if err != nil {
		return nil, err
	}

	found := make(map[string]ProjectEntry)
	for _, root := range host.SearchPaths {
		root, err := security.ValidatePath(root)
		if err != nil {
			return nil, err
		}

		args := []string{root, "-maxdepth", strconv.Itoa(depth), "-type", "f", "("}
		for i, name := range ComposeFileNames {
			if i > 0 {
				args = append(args, "-o")
			}
			args = append(args, "-name", name)
		}
		args = append(args, ")")

		res, err := s.run.Execute(ctx, host, "find", args, exec.Options{})
		if err != nil {
			return nil, err
		}
		// find exits 1 when part of the tree is unreadable; keep what it printed.
		if res.ExitCode > 1 {
			return nil, errors.New(errors.ErrExec,
				fmt.Sprintf("Project scan of %s failed on '%s' (exit %d)", root, host.Name, res.ExitCode),
				errors.Truncate(strings.TrimSpace(string(res.Stderr)), 300)).WithHost(host.Name).WithOp("scan")
		}

		for _, dir := range sortedDirs(string(res.Stdout)) {
			name := path.Base(dir)
			if _, err := security.ValidateProjectName(name); err != nil {
				s.log.Debug("skipping %s on %s: unusable project name", dir, host.Name)
				continue
			}
			if _, err := security.ValidatePath(dir); err != nil {
				s.log.Debug("skipping %s on %s: unsafe path", dir, host.Name)
				continue
			}
			if _, dup := found[name]; dup {
				continue
			}
			found[name] = ProjectEntry{Path: dir, DiscoveredFrom: FromScan}
		}
	}
	return found, nil
}

// sortedDirs turns find output into unique parent directories, shallowest
// first.
func sortedDirs(out string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		dir := path.Dir(line)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sortByDepth(dirs)
	return dirs
}

func sortByDepth(dirs []string) {
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], "/"), strings.Count(dirs[j], "/")
		if di != dj {
			return di < dj
		}
		return dirs[i] < dirs[j]
	})
}

// EngineLister asks the container engine which compose projects it knows.
type EngineLister struct {
	run Runner
	log logger.Logger
}

// NewEngineLister creates an EngineLister.
func NewEngineLister(r Runner, log logger.Logger) *EngineLister {
	return &EngineLister{run: r, log: logger.OrDefault(log)}
}

// composeProject is one element of `docker compose ls --format json`.
type composeProject struct {
	Name        string `json:"Name"`
	Status      string `json:"Status"`
	ConfigFiles string `json:"ConfigFiles"`
}

// List returns the projects reported by `docker compose ls`. Projects
// whose name or directory fails validation are skipped.
func (e *EngineLister) List(ctx context.Context, host config.HostConfig) (map[string]ProjectEntry, error) {
	res, err := e.run.Execute(ctx, host, "docker", []string{"compose", "ls", "--all", "--format", "json"}, exec.Options{})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, errors.New(errors.ErrExec,
			fmt.Sprintf("docker compose ls failed on '%s' (exit %d)", host.Name, res.ExitCode),
			errors.Truncate(strings.TrimSpace(string(res.Stderr)), 300)).WithHost(host.Name).WithOp("engine_list")
	}
	return ParseComposeLS(res.Stdout, e.log)
}

// ParseComposeLS decodes `docker compose ls --format json` output.
func ParseComposeLS(data []byte, log logger.Logger) (map[string]ProjectEntry, error) {
	log = logger.OrDefault(log)
	found := make(map[string]ProjectEntry)
	if len(strings.TrimSpace(string(data))) == 0 {
		return found, nil
	}

	var projects []composeProject
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't parse docker compose ls output",
			"Check the host runs Docker Compose v2").WithOp("engine_list")
	}
	for _, p := range projects {
		first := strings.TrimSpace(strings.Split(p.ConfigFiles, ",")[0])
		if first == "" {
			continue
		}
		dir := path.Dir(first)
		if _, err := security.ValidateProjectName(p.Name); err != nil {
			log.Debug("skipping engine project %q: %v", p.Name, err)
			continue
		}
		if _, err := security.ValidatePath(dir); err != nil {
			log.Debug("skipping engine project %q: unsafe path %q", p.Name, dir)
			continue
		}
		found[p.Name] = ProjectEntry{Path: dir, DiscoveredFrom: FromEngine}
	}
	return found, nil
}

// Discoverer combines the engine listing and the filesystem scan and keeps
// the cache up to date.
type Discoverer struct {
	cache   *Cache
	run     Runner
	scanner *Scanner
	engine  *EngineLister
	log     logger.Logger
}

// NewDiscoverer wires a Discoverer from its parts.
func NewDiscoverer(cache *Cache, r Runner, maxDepth int, log logger.Logger) *Discoverer {
	log = logger.OrDefault(log)
	return &Discoverer{
		cache:   cache,
		run:     r,
		scanner: NewScanner(r, maxDepth, log),
		engine:  NewEngineLister(r, log),
		log:     log,
	}
}

// Cache returns the underlying cache.
func (d *Discoverer) Cache() *Cache {
	return d.cache
}

// Discover refreshes host's record. Engine results take precedence over
// scan results for the same name. A failing engine listing is logged and
// the scan still runs; a failing scan fails the refresh.
func (d *Discoverer) Discover(ctx context.Context, host config.HostConfig) (*HostRecord, error) {
	if !host.HasShell() {
		return d.cache.Load(host.Name)
	}

	found, err := d.scanner.Scan(ctx, host)
	if err != nil {
		return nil, err
	}
	listed, err := d.engine.List(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		d.log.Debug("engine listing unavailable on %s: %v", host.Name, err)
	}
	for name, entry := range listed {
		found[name] = entry
	}
	return d.cache.Record(host.Name, host.SearchPaths, found)
}

// Lookup returns project's location on host. A fresh cache entry is
// checked with `test -d` and dropped if the directory is gone; a miss
// triggers a refresh.
func (d *Discoverer) Lookup(ctx context.Context, host config.HostConfig, project string) (ProjectEntry, bool, error) {
	entry, ok, err := d.cache.Get(host.Name, project)
	if err != nil {
		return ProjectEntry{}, false, err
	}
	if ok {
		if !host.HasShell() {
			return entry, true, nil
		}
		exists, err := d.dirExists(ctx, host, entry.Path)
		if err != nil {
			return ProjectEntry{}, false, err
		}
		if exists {
			return entry, true, nil
		}
		if err := d.cache.Invalidate(host.Name, project); err != nil {
			return ProjectEntry{}, false, err
		}
	}

	if !host.HasShell() {
		return ProjectEntry{}, false, nil
	}
	if _, err := d.Discover(ctx, host); err != nil {
		return ProjectEntry{}, false, err
	}
	// Read back through Get so entries not seen by this run still honor the TTL.
	return d.cache.Get(host.Name, project)
}

func (d *Discoverer) dirExists(ctx context.Context, host config.HostConfig, dir string) (bool, error) {
	res, err := d.run.Execute(ctx, host, "test", []string{"-d", dir}, exec.Options{})
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}
