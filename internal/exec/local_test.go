package exec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var localhost = config.HostConfig{Name: "local", Protocol: config.ProtocolLocal}

func newLocalRouter() *Router {
	// A nil pool is fine: local hosts never touch it.
	return NewRouter(nil, RouterOptions{Logger: logger.Noop()})
}

func TestLocal_SimpleCommand(t *testing.T) {
	res, err := newLocalRouter().Execute(context.Background(), localhost, "echo", []string{"hello"}, Options{})

	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", string(res.Stdout))
	assert.Empty(t, res.Stderr)
}

func TestLocal_MetacharactersAreInert(t *testing.T) {
	res, err := newLocalRouter().Execute(context.Background(), localhost, "echo", []string{"$(whoami); rm -rf / | cat"}, Options{})

	require.NoError(t, err)
	assert.Equal(t, "$(whoami); rm -rf / | cat\n", string(res.Stdout))
}

func TestLocal_Pipeline(t *testing.T) {
	res, err := newLocalRouter().Pipeline(context.Background(), localhost,
		[]Command{Cmd("echo", "hello world"), Cmd("tr", " ", "_")}, Options{})

	require.NoError(t, err)
	assert.Equal(t, "hello_world\n", string(res.Stdout))
}

func TestLocal_NonZeroExitCode(t *testing.T) {
	res, err := newLocalRouter().Execute(context.Background(), localhost, "sh", []string{"-c", "exit 42"}, Options{})

	require.NoError(t, err)
	assert.Equal(t, 42, res.ExitCode)
}

func TestLocal_StderrCaptured(t *testing.T) {
	res, err := newLocalRouter().Execute(context.Background(), localhost, "sh", []string{"-c", "echo oops >&2"}, Options{})

	require.NoError(t, err)
	assert.Equal(t, "oops\n", string(res.Stderr))
}

func TestLocal_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()

	res, err := newLocalRouter().Execute(context.Background(), localhost, "pwd", nil, Options{WorkDir: dir})

	require.NoError(t, err)
	assert.Contains(t, strings.TrimSpace(string(res.Stdout)), filepath.Base(dir))
}

func TestLocal_StdinAndRedirect(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	_, err := newLocalRouter().Pipeline(context.Background(), localhost,
		[]Command{{Name: "cat", Output: out}},
		Options{Stdin: strings.NewReader("streamed")})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(data))
}

func TestLocal_CommandNotFound(t *testing.T) {
	res, err := newLocalRouter().Execute(context.Background(), localhost, "fleet-no-such-binary", nil, Options{})

	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
	assert.Equal(t, "fleet-no-such-binary: command not found\n", string(res.Stderr))

	name, missing := IsCommandNotFound(string(res.Stderr), res.ExitCode)
	assert.True(t, missing)
	assert.Equal(t, "fleet-no-such-binary", name)

	mErr := MissingCommandError(localhost.Name, "fleet-no-such-binary", res)
	require.Error(t, mErr)
	assert.True(t, errors.IsCode(mErr, errors.ErrExec))
}

func TestLocal_CommandNotFoundInPipeline(t *testing.T) {
	tests := []struct {
		name     string
		stages   []Command
		wantCode int
		wantOut  string
	}{
		{
			name:     "missing first stage",
			stages:   []Command{Cmd("fleet-no-such-binary"), Cmd("wc", "-c")},
			wantCode: 0,
			wantOut:  "0",
		},
		{
			name:     "missing last stage",
			stages:   []Command{Cmd("echo", "hi"), Cmd("fleet-no-such-binary")},
			wantCode: 127,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newLocalRouter().Pipeline(context.Background(), localhost, tt.stages, Options{})

			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, res.ExitCode)
			assert.Contains(t, string(res.Stderr), "fleet-no-such-binary: command not found")
			assert.Equal(t, tt.wantOut, strings.TrimSpace(string(res.Stdout)))
		})
	}
}

func TestLocal_Timeout(t *testing.T) {
	start := time.Now()
	_, err := newLocalRouter().Execute(context.Background(), localhost, "sleep", []string{"5"}, Options{Timeout: 50 * time.Millisecond})

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTimeout))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestLocal_ParentCancelIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLocalRouter().Execute(ctx, localhost, "sleep", []string{"5"}, Options{})

	require.Error(t, err)
	assert.False(t, errors.IsCode(err, errors.ErrTimeout))
}

func TestLocal_LoopbackAddressRunsLocally(t *testing.T) {
	h := config.HostConfig{Name: "self", Address: "127.0.0.1", Protocol: config.ProtocolSSH}

	res, err := newLocalRouter().Execute(context.Background(), h, "echo", []string{"ok"}, Options{})

	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(res.Stdout))
}
