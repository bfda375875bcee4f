package files

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
	"github.com/rileyhilliard/fleet/internal/security"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
	sshtest "github.com/rileyhilliard/fleet/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	web1 = config.HostConfig{Name: "web1", Address: "10.0.0.1", Protocol: config.ProtocolSSH}
	web2 = config.HostConfig{Name: "web2", Address: "10.0.0.2", User: "deploy", Port: 2222, Protocol: config.ProtocolSSH}
)

type fixture struct {
	svc   *Service
	mocks map[string]*sshtest.MockClient
	log   *logger.BufferLogger
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		mocks: map[string]*sshtest.MockClient{
			"web1": sshtest.NewMockClient("web1"),
			"web2": sshtest.NewMockClient("web2"),
		},
		log: logger.NewBufferLogger(),
	}
	p := pool.New(pool.DialerFunc(func(ctx context.Context, h config.HostConfig) (sshutil.SSHClient, error) {
		m, ok := f.mocks[h.Name]
		if !ok {
			return nil, fmt.Errorf("no mock for %s", h.Name)
		}
		return m, nil
	}), pool.Options{MaxConnections: 2, Logger: logger.Noop()})
	t.Cleanup(func() { _ = p.CloseAll() })

	opts.Logger = f.log
	f.svc = NewService(exec.NewRouter(p, exec.RouterOptions{Logger: logger.Noop()}), opts)
	return f
}

func TestReadFile(t *testing.T) {
	f := newFixture(t, Options{})
	sshtest.WithFiles(f.mocks["web1"], map[string]string{"/var/log/app.log": "0123456789"})

	t.Run("fits", func(t *testing.T) {
		res, err := f.svc.ReadFile(context.Background(), web1, "/var/log/app.log", 100)
		require.NoError(t, err)
		assert.Equal(t, "0123456789", res.Content)
		assert.Equal(t, int64(10), res.Size)
		assert.False(t, res.Truncated)
	})

	t.Run("exactly max size is not truncated", func(t *testing.T) {
		res, err := f.svc.ReadFile(context.Background(), web1, "/var/log/app.log", 10)
		require.NoError(t, err)
		assert.False(t, res.Truncated)
		assert.Equal(t, "0123456789", res.Content)
	})

	t.Run("truncated reports real size", func(t *testing.T) {
		res, err := f.svc.ReadFile(context.Background(), web1, "/var/log/app.log", 4)
		require.NoError(t, err)
		assert.True(t, res.Truncated)
		assert.Equal(t, "0123", res.Content)
		assert.Equal(t, int64(10), res.Size)
		calls := f.mocks["web1"].Calls()
		require.GreaterOrEqual(t, len(calls), 2)
		assert.Equal(t, "head '-c' '5' '--' '/var/log/app.log'", calls[len(calls)-2].Cmd)
		assert.Equal(t, "stat '-c' '%s' '--' '/var/log/app.log'", calls[len(calls)-1].Cmd)
	})

	t.Run("truncated with unknown size", func(t *testing.T) {
		g := newFixture(t, Options{})
		sshtest.WithFiles(g.mocks["web1"], map[string]string{"/var/log/app.log": "0123456789"})
		g.mocks["web1"].SetCommandResponse(`^stat `, sshtest.CommandResponse{ExitCode: 1, Stderr: []byte("stat: Permission denied")})

		res, err := g.svc.ReadFile(context.Background(), web1, "/var/log/app.log", 4)
		require.NoError(t, err)
		assert.True(t, res.Truncated)
		assert.Equal(t, "0123", res.Content)
		assert.Zero(t, res.Size)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := f.svc.ReadFile(context.Background(), web1, "/nope", 0)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrExec))
		assert.Contains(t, err.Error(), "No such file")
	})
}

func TestReadFile_RejectsBadInput(t *testing.T) {
	f := newFixture(t, Options{})

	for _, p := range []string{"/a/../b", "rel/path", "/a;rm -rf /", ""} {
		_, err := f.svc.ReadFile(context.Background(), web1, p, 0)
		require.Error(t, err, p)
		assert.True(t, errors.IsCode(err, errors.ErrValidation), p)
	}
	_, err := f.svc.ReadFile(context.Background(), web1, "/a", MaxReadSize+1)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
	assert.Empty(t, f.mocks["web1"].Calls(), "nothing runs when validation fails")
}

func TestListDirectory(t *testing.T) {
	f := newFixture(t, Options{})
	f.mocks["web1"].SetCommandResponse(`^ls '-la' '--' '/srv'$`, sshtest.CommandResponse{Stdout: []byte("total 0\n.env\n")})
	f.mocks["web1"].SetCommandResponse(`^ls '-l' '--' '/srv'$`, sshtest.CommandResponse{Stdout: []byte("total 0\n")})

	res, err := f.svc.ListDirectory(context.Background(), web1, "/srv", true)
	require.NoError(t, err)
	assert.Contains(t, res.Listing, ".env")

	res, err = f.svc.ListDirectory(context.Background(), web1, "/srv", false)
	require.NoError(t, err)
	assert.NotContains(t, res.Listing, ".env")
}

func TestTreeDirectory(t *testing.T) {
	f := newFixture(t, Options{})
	f.mocks["web1"].SetCommandResponse(`^tree '-L' '2' '--' '/srv'$`, sshtest.CommandResponse{Stdout: []byte("/srv\n└── app\n")})

	res, err := f.svc.TreeDirectory(context.Background(), web1, "/srv", 2)
	require.NoError(t, err)
	assert.Contains(t, res.Tree, "app")
	assert.False(t, res.Fallback)

	for _, d := range []int{-1, security.MaxTreeDepth + 1} {
		_, err = f.svc.TreeDirectory(context.Background(), web1, "/srv", d)
		assert.True(t, errors.IsCode(err, errors.ErrValidation), d)
	}
}

func TestTreeDirectory_FallsBackToFind(t *testing.T) {
	f := newFixture(t, Options{})
	m := f.mocks["web1"]
	sshtest.WithDirs(m, []string{"/srv"})
	m.SetCommandResponse(`^tree `, sshtest.CommandResponse{ExitCode: 127, Stderr: []byte("bash: tree: command not found")})
	m.SetCommandResponse(`^find '/srv' '-maxdepth' '3' \| sort$`, sshtest.CommandResponse{Stdout: []byte("/srv\n/srv/app\n")})

	res, err := f.svc.TreeDirectory(context.Background(), web1, "/srv", 0)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, DefaultTreeDepth, res.Depth)
	assert.Equal(t, "/srv\n/srv/app\n", res.Tree)
}

func TestTreeDirectory_FallbackFailures(t *testing.T) {
	tests := []struct {
		name    string
		dirs    []string
		find    sshtest.CommandResponse
		wantMsg string
	}{
		{
			name:    "missing root",
			wantMsg: "not a directory",
		},
		{
			name:    "find only wrote to stderr",
			dirs:    []string{"/srv"},
			find:    sshtest.CommandResponse{Stderr: []byte("find: '/srv': Permission denied\n")},
			wantMsg: "tree_directory failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			m := f.mocks["web1"]
			sshtest.WithDirs(m, tt.dirs)
			m.SetCommandResponse(`^tree `, sshtest.CommandResponse{ExitCode: 127, Stderr: []byte("bash: tree: command not found")})
			m.SetCommandResponse(`^find `, tt.find)

			_, err := f.svc.TreeDirectory(context.Background(), web1, "/srv", 0)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrExec))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestExecuteCommand(t *testing.T) {
	f := newFixture(t, Options{})
	m := f.mocks["web1"]
	m.SetCommandResponse(`^cd '/srv/app' && git 'status' '--short'$`, sshtest.CommandResponse{Stdout: []byte(" M main.go\n")})

	res, err := f.svc.ExecuteCommand(context.Background(), web1, "/srv/app", "git status --short", 0)
	require.NoError(t, err)
	assert.Equal(t, " M main.go\n", res.Stdout)
	assert.Equal(t, "git 'status' '--short'", res.Command)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecuteCommand_ArgumentsAreEscaped(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.ExecuteCommand(context.Background(), web1, "/srv", "echo $(id);rm -rf /", 0)
	require.NoError(t, err)
	assert.Equal(t, `cd '/srv' && echo '$(id);rm' '-rf' '/'`, f.mocks["web1"].LastCommand())
}

func TestExecuteCommand_AllowList(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.ExecuteCommand(context.Background(), web1, "/srv", "rm -rf /srv", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
	assert.Empty(t, f.mocks["web1"].Calls())

	open := newFixture(t, Options{AllowAnyCommand: true})
	_, err = open.svc.ExecuteCommand(context.Background(), web1, "/srv", "rm -rf /srv/tmp", 0)
	assert.NoError(t, err)
}

func TestExecuteCommand_NonZeroExitIsReported(t *testing.T) {
	f := newFixture(t, Options{})
	f.mocks["web1"].SetCommandResponse(`git`, sshtest.CommandResponse{ExitCode: 128, Stderr: []byte("fatal: not a git repository")})

	res, err := f.svc.ExecuteCommand(context.Background(), web1, "/srv", "git log", 0)
	require.NoError(t, err)
	assert.Equal(t, 128, res.ExitCode)
	assert.Contains(t, res.Stderr, "not a git repository")
}

func TestExecuteCommand_MissingBinary(t *testing.T) {
	f := newFixture(t, Options{})
	f.mocks["web1"].SetCommandResponse(`tree`, sshtest.CommandResponse{ExitCode: 127, Stderr: []byte("bash: tree: command not found")})

	_, err := f.svc.ExecuteCommand(context.Background(), web1, "/srv", "tree", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Contains(t, err.Error(), "'tree' not found")
}

func TestExecuteCommand_Timeout(t *testing.T) {
	f := newFixture(t, Options{})
	f.mocks["web1"].SetCommandResponse(`journalctl`, sshtest.CommandResponse{Block: true})

	_, err := f.svc.ExecuteCommand(context.Background(), web1, "/srv", "journalctl -f", 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTimeout))

	_, err = f.svc.ExecuteCommand(context.Background(), web1, "/srv", "ls", -time.Second)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestFindFiles(t *testing.T) {
	f := newFixture(t, Options{})
	m := f.mocks["web1"]
	sshtest.WithDirs(m, []string{"/srv"})
	m.SetCommandResponse(`^find '/srv' '-maxdepth' '2' '-type' 'f' '-name' '\*.yml' \| head '-n' '3'$`,
		sshtest.CommandResponse{Stdout: []byte("/srv/a.yml\n/srv/b.yml\n/srv/c.yml\n")})

	res, err := f.svc.FindFiles(context.Background(), web1, "/srv", "*.yml", FindOptions{Type: security.FileTypeFile, MaxDepth: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/a.yml", "/srv/b.yml"}, res.Matches)
	assert.True(t, res.Limited)
}

func TestFindFiles_NoMatches(t *testing.T) {
	f := newFixture(t, Options{})
	sshtest.WithDirs(f.mocks["web1"], []string{"/srv"})

	res, err := f.svc.FindFiles(context.Background(), web1, "/srv", "", FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.NotNil(t, res.Matches)
	assert.False(t, res.Limited)
	assert.Equal(t, `find '/srv' '-maxdepth' '5' | head '-n' '101'`, f.mocks["web1"].LastCommand())
}

func TestFindFiles_MissingRoot(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.FindFiles(context.Background(), web1, "/nope", "*.yml", FindOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Contains(t, err.Error(), "not a directory")
	assert.Equal(t, "test '-d' '/nope'", f.mocks["web1"].LastCommand(), "find never runs")
}

func TestFindFiles_StderrWithoutOutputFails(t *testing.T) {
	f := newFixture(t, Options{})
	m := f.mocks["web1"]
	sshtest.WithDirs(m, []string{"/srv"})
	m.SetCommandResponse(`^find '/srv' `, sshtest.CommandResponse{Stderr: []byte("find: '/srv': Permission denied\n")})

	_, err := f.svc.FindFiles(context.Background(), web1, "/srv", "", FindOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Contains(t, err.Error(), "Permission denied")

	// Partial output with complaints about unreadable subdirectories is
	// still a result.
	m.SetCommandResponse(`^find '/srv' `, sshtest.CommandResponse{
		Stdout: []byte("/srv/a\n"),
		Stderr: []byte("find: '/srv/private': Permission denied\n"),
	})
	res, err := f.svc.FindFiles(context.Background(), web1, "/srv", "", FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/a"}, res.Matches)
}

func TestFindFiles_RejectsBadOptions(t *testing.T) {
	f := newFixture(t, Options{})

	tests := []struct {
		name    string
		pattern string
		opts    FindOptions
	}{
		{"forged type", "", FindOptions{Type: security.FileType("f -delete")}},
		{"depth too deep", "", FindOptions{MaxDepth: security.MaxFindDepth + 1}},
		{"negative limit", "", FindOptions{Limit: -5}},
		{"metachar pattern", "*.yml;id", FindOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.FindFiles(context.Background(), web1, "/srv", tt.pattern, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrValidation))
		})
	}
	assert.Empty(t, f.mocks["web1"].Calls())
}

func TestGrepFiles(t *testing.T) {
	f := newFixture(t, Options{})
	m := f.mocks["web1"]
	m.SetCommandResponse(`^grep '-n' '-I' '-m' '100' '-i' '-e' 'connection refused' '--' '/var/log/app.log'$`,
		sshtest.CommandResponse{Stdout: []byte("12:Connection refused\n40:connection refused again\n")})

	res, err := f.svc.GrepFiles(context.Background(), web1, "/var/log/app.log", "connection refused", GrepOptions{IgnoreCase: true})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 2)
}

func TestGrepFiles_NoMatchIsEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	f.mocks["web1"].SetCommandResponse(`^grep`, sshtest.CommandResponse{ExitCode: 1})

	res, err := f.svc.GrepFiles(context.Background(), web1, "/var/log", "nothing", GrepOptions{Recursive: true})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestGrepFiles_ShellSinkPolicy(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.GrepFiles(context.Background(), web1, "/var/log/app.log", "[ERROR] 'admin' (x)", GrepOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
	assert.Empty(t, f.mocks["web1"].Calls())
}

func TestTailLog_InProcessFilter(t *testing.T) {
	f := newFixture(t, Options{})
	f.mocks["web1"].SetCommandResponse(`^tail '-n' '50' '--' '/var/log/app.log'$`, sshtest.CommandResponse{
		Stdout: []byte("[INFO] boot\n[ERROR] 'admin' (x) denied\n[ERROR] disk\n"),
	})

	res, err := f.svc.TailLog(context.Background(), web1, "/var/log/app.log", 50, "[ERROR] 'admin' (x)")
	require.NoError(t, err)
	assert.Equal(t, []string{"[ERROR] 'admin' (x) denied"}, res.Lines)

	all, err := f.svc.TailLog(context.Background(), web1, "/var/log/app.log", 50, "")
	require.NoError(t, err)
	assert.Len(t, all.Lines, 3)

	for _, cmd := range f.mocks["web1"].Calls() {
		assert.NotContains(t, cmd.Cmd, "admin", "filter never reaches the host")
	}

	_, err = f.svc.TailLog(context.Background(), web1, "/var/log/app.log", 50, "bad\x00filter")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestTransferFile_SameHost(t *testing.T) {
	f := newFixture(t, Options{})
	sshtest.WithFiles(f.mocks["web1"], map[string]string{"/srv/a.txt": "hello world"})

	res, err := f.svc.TransferFile(context.Background(), web1, "/srv/a.txt", web1, "/srv/b.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.BytesTransferred)
	assert.Equal(t, MethodCopy, res.Method)
	assert.Empty(t, res.Warnings)

	content, err := f.mocks["web1"].GetFS().ReadFile("/srv/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
}

func TestTransferFile_CrossHostPipe(t *testing.T) {
	f := newFixture(t, Options{})
	src := f.mocks["web1"]
	sshtest.WithFiles(src, map[string]string{"/srv/a.txt": "0123456789abcdef"})
	src.SetCommandResponse(`^cat .* \| ssh `, sshtest.CommandResponse{})
	// What ssh would have written on the target.
	sshtest.WithFiles(f.mocks["web2"], map[string]string{"/etc/app/a.txt": "0123456789abcdef"})

	res, err := f.svc.TransferFile(context.Background(), web1, "/srv/a.txt", web2, "/etc/app/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(16), res.BytesTransferred)
	assert.Equal(t, MethodPipe, res.Method)
	require.Len(t, res.Warnings, 1, "sensitive destination advisory")
	assert.True(t, f.log.HasLevel("warn"))

	// Outer pass: the whole inner line is one escaped ssh argument.
	inner := "cat > '/etc/app/a.txt'"
	want := "cat '--' '/srv/a.txt' | ssh '-o' 'BatchMode=yes' '-p' '2222' 'deploy@10.0.0.2' " + security.EscapeShellArg(inner)
	assert.Equal(t, want, src.LastCommand())

	// Undo the source shell, then the target shell.
	words := sshtest.SplitWords(src.LastCommand())
	assert.Equal(t, inner, words[len(words)-1])
	assert.Equal(t, []string{"cat", ">", "/etc/app/a.txt"}, sshtest.SplitWords(words[len(words)-1]))

	// The target is reached through the source host; fleet only stats it.
	require.Len(t, f.mocks["web2"].Calls(), 1)
	assert.Equal(t, "stat '-c' '%s' '--' '/etc/app/a.txt'", f.mocks["web2"].LastCommand())
}

func TestTransferFile_CrossHostPipeSourceFails(t *testing.T) {
	f := newFixture(t, Options{})
	src := f.mocks["web1"]
	sshtest.WithFiles(src, map[string]string{"/srv/a.txt": "0123456789"})
	// cat fails inside the pipeline; ssh still exits 0 after creating an
	// empty file.
	src.SetCommandResponse(`^cat .* \| ssh `, sshtest.CommandResponse{Stderr: []byte("cat: /srv/a.txt: Permission denied\n")})
	sshtest.WithFiles(f.mocks["web2"], map[string]string{"/srv/a.txt": ""})

	_, err := f.svc.TransferFile(context.Background(), web1, "/srv/a.txt", web2, "/srv/a.txt")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Contains(t, err.Error(), "has 0 bytes, expected 10")
	assert.Contains(t, err.Error(), "Permission denied")
}

func TestTransferFile_TargetRevalidated(t *testing.T) {
	f := newFixture(t, Options{})
	sshtest.WithFiles(f.mocks["web1"], map[string]string{"/srv/a.txt": "x"})

	bad := []config.HostConfig{
		{Name: "evil", Address: "10.0.0.3;id", Protocol: config.ProtocolSSH},
		{Name: "evil", Address: "10.0.0.3", User: "root$(id)", Protocol: config.ProtocolSSH},
		{Name: "evil", Address: "-oProxyCommand=id", Protocol: config.ProtocolSSH},
	}
	for _, h := range bad {
		_, err := f.svc.TransferFile(context.Background(), web1, "/srv/a.txt", h, "/srv/a.txt")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrValidation))
	}
	for _, c := range f.mocks["web1"].Calls() {
		assert.NotContains(t, c.Cmd, "ssh")
	}
}

func TestTransferFile_UnparsableSize(t *testing.T) {
	f := newFixture(t, Options{})
	f.mocks["web1"].SetCommandResponse(`^stat `, sshtest.CommandResponse{Stdout: []byte("lots\n")})

	_, err := f.svc.TransferFile(context.Background(), web1, "/srv/a.txt", web1, "/srv/b.txt")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.NotContains(t, f.mocks["web1"].LastCommand(), "cp")
}

func TestTransferFile_MissingSource(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.TransferFile(context.Background(), web1, "/srv/none.txt", web2, "/srv/none.txt")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
}

func TestDiffFiles_SameHost(t *testing.T) {
	f := newFixture(t, Options{})
	m := f.mocks["web1"]
	m.SetCommandResponse(`^diff '-U' '3' '--' '/a' '/b'$`, sshtest.CommandResponse{ExitCode: 1, Stdout: []byte("--- /a\n+++ /b\n@@ -1 +1 @@\n-x\n+y\n")})
	m.SetCommandResponse(`^diff '-U' '3' '--' '/a' '/a'$`, sshtest.CommandResponse{})
	m.SetCommandResponse(`^diff '-U' '3' '--' '/a' '/missing'$`, sshtest.CommandResponse{ExitCode: 2, Stderr: []byte("diff: /missing: No such file or directory")})

	res, err := f.svc.DiffFiles(context.Background(), web1, "/a", web1, "/b", 3)
	require.NoError(t, err)
	assert.False(t, res.Identical)
	assert.Contains(t, res.Diff, "+y")

	res, err = f.svc.DiffFiles(context.Background(), web1, "/a", web1, "/a", 3)
	require.NoError(t, err)
	assert.True(t, res.Identical)

	_, err = f.svc.DiffFiles(context.Background(), web1, "/a", web1, "/missing", 3)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))

	_, err = f.svc.DiffFiles(context.Background(), web1, "/a", web1, "/b", security.MaxContextLines+1)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestDiffFiles_CrossHost(t *testing.T) {
	f := newFixture(t, Options{})
	sshtest.WithFiles(f.mocks["web1"], map[string]string{"/etc/app.conf": "port=80\n", "/etc/other.conf": "x"})
	sshtest.WithFiles(f.mocks["web2"], map[string]string{"/etc/app.conf": "port=80\n"})

	res, err := f.svc.DiffFiles(context.Background(), web1, "/etc/app.conf", web2, "/etc/app.conf", 0)
	require.NoError(t, err)
	assert.True(t, res.Identical)
	assert.Empty(t, res.Diff)

	res, err = f.svc.DiffFiles(context.Background(), web1, "/etc/other.conf", web2, "/etc/app.conf", 0)
	require.NoError(t, err)
	assert.False(t, res.Identical)
}

func TestRemoteWriteArgs(t *testing.T) {
	args, err := RemoteWriteArgs(config.HostConfig{Name: "db", Address: "db.internal"}, "/srv/x")
	require.NoError(t, err)
	assert.Equal(t, []string{"-o", "BatchMode=yes", "-p", "22", "db.internal", "cat > '/srv/x'"}, args)
	assert.False(t, strings.Contains(args[4], "@"))
}
