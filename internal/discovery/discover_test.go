package discovery

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/exec"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/pool"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
	sshtest "github.com/rileyhilliard/fleet/pkg/sshutil/testing"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var web1 = config.HostConfig{
	Name:        "web1",
	Address:     "10.0.0.1",
	Protocol:    config.ProtocolSSH,
	SearchPaths: []string{"/srv"},
}

const composeLS = `[
  {"Name":"shop","Status":"running(3)","ConfigFiles":"/opt/stacks/shop/compose.yaml"},
  {"Name":"blog","Status":"exited(1)","ConfigFiles":"/srv/blog/docker-compose.yml,/srv/blog/override.yml"},
  {"Name":"bad;name","Status":"running(1)","ConfigFiles":"/srv/bad/compose.yaml"}
]`

type discoverFixture struct {
	d     *Discoverer
	mock  *sshtest.MockClient
	clock *clock
}

func newDiscoverFixture(t *testing.T) *discoverFixture {
	t.Helper()
	c, _, clk := newTestCache(t)
	mock := sshtest.NewMockClient("web1")
	p := pool.New(pool.DialerFunc(func(ctx context.Context, h config.HostConfig) (sshutil.SSHClient, error) {
		if h.Name != "web1" {
			return nil, fmt.Errorf("no mock for %s", h.Name)
		}
		return mock, nil
	}), pool.Options{MaxConnections: 2, Logger: logger.Noop()})
	t.Cleanup(func() { _ = p.CloseAll() })

	r := exec.NewRouter(p, exec.RouterOptions{Logger: logger.Noop()})
	return &discoverFixture{d: NewDiscoverer(c, r, 3, logger.Noop()), mock: mock, clock: clk}
}

func (f *discoverFixture) countCalls(prefix string) int {
	n := 0
	for _, c := range f.mock.Calls() {
		if strings.HasPrefix(c.Cmd, prefix) {
			n++
		}
	}
	return n
}

func TestScanner_Scan(t *testing.T) {
	f := newDiscoverFixture(t)
	f.mock.SetCommandResponse(`^find '/srv' `, sshtest.CommandResponse{Stdout: []byte(
		"/srv/shop/compose.yaml\n" +
			"/srv/shop/docker-compose.yml\n" +
			"/srv/old/shop/compose.yaml\n" +
			"/srv/api/compose.yml\n" +
			"/srv/.hidden/compose.yaml\n\n")})

	found, err := f.d.scanner.Scan(context.Background(), web1)
	require.NoError(t, err)

	assert.Equal(t, map[string]ProjectEntry{
		"shop": {Path: "/srv/shop", DiscoveredFrom: FromScan},
		"api":  {Path: "/srv/api", DiscoveredFrom: FromScan},
	}, found)

	assert.Equal(t,
		"find '/srv' '-maxdepth' '3' '-type' 'f' '(' '-name' 'compose.yaml' '-o' '-name' 'compose.yml' "+
			"'-o' '-name' 'docker-compose.yaml' '-o' '-name' 'docker-compose.yml' ')'",
		f.mock.LastCommand())
}

func TestScanner_Errors(t *testing.T) {
	t.Run("partial read keeps results", func(t *testing.T) {
		f := newDiscoverFixture(t)
		f.mock.SetCommandResponse(`^find `, sshtest.CommandResponse{
			Stdout:   []byte("/srv/api/compose.yaml\n"),
			Stderr:   []byte("find: '/srv/private': Permission denied\n"),
			ExitCode: 1,
		})
		found, err := f.d.scanner.Scan(context.Background(), web1)
		require.NoError(t, err)
		assert.Contains(t, found, "api")
	})

	t.Run("hard failure", func(t *testing.T) {
		f := newDiscoverFixture(t)
		f.mock.SetCommandResponse(`^find `, sshtest.CommandResponse{ExitCode: 2, Stderr: []byte("boom")})
		_, err := f.d.scanner.Scan(context.Background(), web1)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrExec))
	})

	t.Run("unsafe search path", func(t *testing.T) {
		f := newDiscoverFixture(t)
		host := web1
		host.SearchPaths = []string{"/srv/../etc"}
		_, err := f.d.scanner.Scan(context.Background(), host)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrValidation))
		assert.Empty(t, f.mock.Calls())
	})
}

func TestParseComposeLS(t *testing.T) {
	found, err := ParseComposeLS([]byte(composeLS), logger.Noop())
	require.NoError(t, err)
	assert.Equal(t, map[string]ProjectEntry{
		"shop": {Path: "/opt/stacks/shop", DiscoveredFrom: FromEngine},
		"blog": {Path: "/srv/blog", DiscoveredFrom: FromEngine},
	}, found)

	found, err = ParseComposeLS([]byte("  \n"), nil)
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = ParseComposeLS([]byte("not json"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
}

func TestDiscoverer_EngineOverridesScan(t *testing.T) {
	f := newDiscoverFixture(t)
	f.mock.SetCommandResponse(`^find `, sshtest.CommandResponse{Stdout: []byte(
		"/srv/shop/compose.yaml\n/srv/api/compose.yaml\n")})
	f.mock.SetCommandResponse(`^docker 'compose' 'ls'`, sshtest.CommandResponse{Stdout: []byte(composeLS)})

	rec, err := f.d.Discover(context.Background(), web1)
	require.NoError(t, err)

	assert.Equal(t, []string{"api", "blog", "shop"}, rec.ProjectNames())
	assert.Equal(t, "/opt/stacks/shop", rec.Projects["shop"].Path)
	assert.Equal(t, FromEngine, rec.Projects["shop"].DiscoveredFrom)
	assert.Equal(t, FromScan, rec.Projects["api"].DiscoveredFrom)
	assert.Equal(t, []string{"/srv"}, rec.SearchPaths)

	stored, err := f.d.Cache().Load("web1")
	require.NoError(t, err)
	assert.Equal(t, rec.ProjectNames(), stored.ProjectNames())
}

func TestDiscoverer_EngineFailureKeepsScan(t *testing.T) {
	f := newDiscoverFixture(t)
	f.mock.SetCommandResponse(`^find `, sshtest.CommandResponse{Stdout: []byte("/srv/api/compose.yaml\n")})
	f.mock.SetCommandResponse(`^docker `, sshtest.CommandResponse{ExitCode: 127, Stderr: []byte("docker: command not found")})

	rec, err := f.d.Discover(context.Background(), web1)
	require.NoError(t, err)
	assert.Equal(t, []string{"api"}, rec.ProjectNames())
}

func TestDiscoverer_NonShellHostUsesCacheOnly(t *testing.T) {
	f := newDiscoverFixture(t)
	api := config.HostConfig{Name: "api", Address: "api.internal", Protocol: config.ProtocolHTTP}

	rec, err := f.d.Discover(context.Background(), api)
	require.NoError(t, err)
	assert.Empty(t, rec.Projects)

	_, ok, err := f.d.Lookup(context.Background(), api, "shop")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.mock.Calls())
}

func TestDiscoverer_Lookup(t *testing.T) {
	t.Run("fresh hit verified with test -d", func(t *testing.T) {
		f := newDiscoverFixture(t)
		sshtest.WithDirs(f.mock, []string{"/srv/shop"})
		require.NoError(t, f.d.Cache().Put("web1", "shop", "/srv/shop", FromScan))

		entry, ok, err := f.d.Lookup(context.Background(), web1, "shop")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "/srv/shop", entry.Path)
		assert.Equal(t, "test '-d' '/srv/shop'", f.mock.LastCommand())
		assert.Zero(t, f.countCalls("find "))
	})

	t.Run("missing directory invalidates and rescans", func(t *testing.T) {
		f := newDiscoverFixture(t)
		require.NoError(t, f.d.Cache().Put("web1", "shop", "/srv/gone", FromScan))
		f.mock.SetCommandResponse(`^find `, sshtest.CommandResponse{Stdout: []byte("/srv/shop/compose.yaml\n")})

		entry, ok, err := f.d.Lookup(context.Background(), web1, "shop")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "/srv/shop", entry.Path)
		assert.Equal(t, 1, f.countCalls("find "))
	})

	t.Run("missing directory and not rediscovered", func(t *testing.T) {
		f := newDiscoverFixture(t)
		require.NoError(t, f.d.Cache().Put("web1", "shop", "/srv/gone", FromScan))

		_, ok, err := f.d.Lookup(context.Background(), web1, "shop")
		require.NoError(t, err)
		assert.False(t, ok)

		rec, err := f.d.Cache().Load("web1")
		require.NoError(t, err)
		assert.NotContains(t, rec.Projects, "shop")
	})

	t.Run("stale entry triggers a refresh", func(t *testing.T) {
		f := newDiscoverFixture(t)
		require.NoError(t, f.d.Cache().Put("web1", "shop", "/srv/shop", FromScan))
		f.clock.t = f.clock.t.Add(25 * time.Hour)
		f.mock.SetCommandResponse(`^find `, sshtest.CommandResponse{Stdout: []byte("/srv/shop/compose.yaml\n")})

		entry, ok, err := f.d.Lookup(context.Background(), web1, "shop")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, f.clock.t, entry.LastSeen)
		assert.Equal(t, 1, f.countCalls("find "))
	})

	t.Run("stale entry not seen again stays hidden", func(t *testing.T) {
		f := newDiscoverFixture(t)
		require.NoError(t, f.d.Cache().Put("web1", "shop", "/srv/shop", FromScan))
		f.clock.t = f.clock.t.Add(25 * time.Hour)

		_, ok, err := f.d.Lookup(context.Background(), web1, "shop")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt cache fails closed", func(t *testing.T) {
		c, fs, _ := newTestCache(t)
		f := newDiscoverFixture(t)
		d := NewDiscoverer(c, f.d.run, 3, nil)
		require.NoError(t, afero.WriteFile(fs, cacheDir+"/web1.json", []byte("{"), 0o644))

		_, _, err := d.Lookup(context.Background(), web1, "shop")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCache))
		assert.Empty(t, f.mock.Calls())
	})
}
