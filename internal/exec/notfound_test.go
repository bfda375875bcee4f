package exec

import (
	"testing"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCommandNotFound(t *testing.T) {
	tests := []struct {
		name      string
		stderr    string
		exitCode  int
		wantCmd   string
		wantFound bool
	}{
		{"bash", "bash: docker: command not found", 127, "docker", true},
		{"zsh", "zsh: command not found: tree", 127, "tree", true},
		{"dash", "sh: 1: journalctl: not found", 127, "journalctl", true},
		{"127 without a name", "weird output", 127, "", true},
		{"other exit code", "bash: docker: command not found", 1, "", false},
		{"success", "", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, found := IsCommandNotFound(tt.stderr, tt.exitCode)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantCmd, cmd)
		})
	}
}

func TestMissingCommandError(t *testing.T) {
	err := MissingCommandError("web1", "tree", &Result{ExitCode: 127, Stderr: []byte("bash: tree: command not found")})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Contains(t, err.Error(), "'tree' not found in PATH on web1")

	err = MissingCommandError("web1", "tree", &Result{ExitCode: 127})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'tree'")

	assert.NoError(t, MissingCommandError("web1", "ls", &Result{ExitCode: 2}))
	assert.NoError(t, MissingCommandError("web1", "ls", nil))
}
