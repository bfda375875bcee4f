// Package discovery maps compose project names to the directory that holds
// them on each host. Results are kept in a per-host JSON file with a TTL
// that is checked when an entry is read.
package discovery

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/security"
	"github.com/spf13/afero"
)

// DefaultTTL is how long a cached project location is trusted.
const DefaultTTL = 24 * time.Hour

// Provenance records how a project location was learned.
type Provenance string

const (
	FromScan   Provenance = "scan"
	FromEngine Provenance = "engine-listing"
)

// ProjectEntry is the cached location of one project on one host.
type ProjectEntry struct {
	Path           string     `json:"path" validate:"required,startswith=/"`
	DiscoveredFrom Provenance `json:"discoveredFrom" validate:"required,oneof=scan engine-listing"`
	LastSeen       time.Time  `json:"lastSeen" validate:"required"`
}

// HostRecord is the whole cache file for a host. It is always read and
// written in one piece.
type HostRecord struct {
	LastScan    time.Time               `json:"lastScan" validate:"required"`
	SearchPaths []string                `json:"searchPaths" validate:"dive,startswith=/"`
	Projects    map[string]ProjectEntry `json:"projects" validate:"required,dive"`
}

// ProjectNames returns the cached project names, sorted.
func (r *HostRecord) ProjectNames() []string {
	names := make([]string, 0, len(r.Projects))
	for name := range r.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var validate = validator.New()

// CacheOptions configures a Cache. Zero values take defaults.
type CacheOptions struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger logger.Logger
}

// Cache stores one HostRecord per host under dir. Concurrent writers for
// the same host are not coordinated; callers serialize them if needed.
type Cache struct {
	fs  afero.Fs
	dir string
	ttl time.Duration
	now func() time.Time
	log logger.Logger
}

// NewCache creates a cache rooted at dir on fs.
func NewCache(fs afero.Fs, dir string, opts CacheOptions) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		fs:  fs,
		dir: dir,
		ttl: opts.TTL,
		now: opts.Now,
		log: logger.OrDefault(opts.Logger),
	}
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// path validates host before it is used to build a filename, so a key like
// "../../etc/passwd" never reaches the filesystem.
func (c *Cache) path(host string) (string, error) {
	if _, err := security.ValidateHost(host); err != nil {
		return "", err
	}
	return filepath.Join(c.dir, host+".json"), nil
}

// Load reads the record for host. A missing file is an empty record. A
// malformed file fails with a CACHE error instead of loading partially.
func (c *Cache) Load(host string) (*HostRecord, error) {
	p, err := c.path(host)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(c.fs, p)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return &HostRecord{Projects: map[string]ProjectEntry{}}, nil
		}
		return nil, errors.WrapWithCode(err, errors.ErrCache,
			fmt.Sprintf("Couldn't read the discovery cache for '%s'", host),
			"Check permissions on "+c.dir).WithHost(host).WithOp("cache_load")
	}

	var rec HostRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, corrupt(host, p, err)
	}
	if err := validateRecord(&rec); err != nil {
		return nil, corrupt(host, p, err)
	}
	return &rec, nil
}

func validateRecord(rec *HostRecord) error {
	if err := validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, e := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag())
			}
			return stderrors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	for name, entry := range rec.Projects {
		if _, err := security.ValidateProjectName(name); err != nil {
			return err
		}
		if _, err := security.ValidatePath(entry.Path); err != nil {
			return err
		}
	}
	return nil
}

func corrupt(host, path string, cause error) error {
	return errors.WrapWithCode(cause, errors.ErrCache,
		fmt.Sprintf("Discovery cache for '%s' is malformed", host),
		"Delete "+path+" to rebuild it on the next lookup").WithHost(host).WithOp("cache_load")
}

// Save writes the record for host, replacing the old file in one rename.
func (c *Cache) Save(host string, rec *HostRecord) error {
	p, err := c.path(host)
	if err != nil {
		return err
	}
	if rec.Projects == nil {
		rec.Projects = map[string]ProjectEntry{}
	}
	if rec.LastScan.IsZero() {
		rec.LastScan = c.now()
	}
	if err := validateRecord(rec); err != nil {
		return errors.WrapWithCode(err, errors.ErrCache,
			fmt.Sprintf("Refusing to write an invalid discovery record for '%s'", host),
			"").WithHost(host).WithOp("cache_save")
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCache, "Couldn't encode the discovery cache", "").WithHost(host)
	}

	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return errors.WrapWithCode(err, errors.ErrCache,
			"Couldn't create the discovery cache directory",
			"Check permissions on "+c.dir).WithHost(host).WithOp("cache_save")
	}
	tmp := p + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrCache,
			"Couldn't write the discovery cache",
			"Check permissions on "+c.dir).WithHost(host).WithOp("cache_save")
	}
	if err := c.fs.Rename(tmp, p); err != nil {
		_ = c.fs.Remove(tmp)
		return errors.WrapWithCode(err, errors.ErrCache,
			"Couldn't replace the discovery cache file", "").WithHost(host).WithOp("cache_save")
	}
	return nil
}

// Get returns the cached entry for project on host if it is within TTL.
// Stale entries are reported as absent but left on disk.
func (c *Cache) Get(host, project string) (ProjectEntry, bool, error) {
	rec, err := c.Load(host)
	if err != nil {
		return ProjectEntry{}, false, err
	}
	entry, ok := rec.Projects[project]
	if !ok {
		return ProjectEntry{}, false, nil
	}
	if age := c.now().Sub(entry.LastSeen); age > c.ttl {
		c.log.Debug("cache entry %s/%s is stale (%s old)", host, project, age.Round(time.Second))
		return ProjectEntry{}, false, nil
	}
	return entry, true, nil
}

// Put records project at path on host, stamped now.
func (c *Cache) Put(host, project, path string, from Provenance) error {
	if _, err := security.ValidateProjectName(project); err != nil {
		return err
	}
	rec, err := c.Load(host)
	if err != nil {
		return err
	}
	rec.Projects[project] = ProjectEntry{Path: path, DiscoveredFrom: from, LastSeen: c.now()}
	return c.Save(host, rec)
}

// Invalidate drops project from host's record.
func (c *Cache) Invalidate(host, project string) error {
	rec, err := c.Load(host)
	if err != nil {
		return err
	}
	if _, ok := rec.Projects[project]; !ok {
		return nil
	}
	delete(rec.Projects, project)
	c.log.Debug("invalidated cache entry %s/%s", host, project)
	return c.Save(host, rec)
}

// Record merges a discovery run into host's record. Found entries are
// stamped now; entries not seen this run keep their old lastSeen and age
// out through the TTL.
func (c *Cache) Record(host string, searchPaths []string, found map[string]ProjectEntry) (*HostRecord, error) {
	rec, err := c.Load(host)
	if err != nil {
		return nil, err
	}
	now := c.now()
	rec.LastScan = now
	rec.SearchPaths = searchPaths
	for name, entry := range found {
		entry.LastSeen = now
		rec.Projects[name] = entry
	}
	if err := c.Save(host, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
