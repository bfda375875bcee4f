package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetRootCmd creates a fresh root command for testing.
func resetRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fleet",
		Short: "Inspect files and run commands across a fleet of hosts",
	}
}

func TestCompletionBashGeneration(t *testing.T) {
	cmd := resetRootCmd()

	var buf bytes.Buffer
	require.NoError(t, cmd.GenBashCompletion(&buf))
	output := buf.String()

	assert.Contains(t, output, "# bash completion for fleet")
	assert.Contains(t, output, "__fleet_debug")
	assert.Contains(t, output, "complete -o default -F __start_fleet fleet")
}

func TestCompletionZshGeneration(t *testing.T) {
	cmd := resetRootCmd()

	var buf bytes.Buffer
	require.NoError(t, cmd.GenZshCompletion(&buf))
	output := buf.String()

	assert.Contains(t, output, "#compdef fleet")
	assert.Contains(t, output, "_fleet()")
}

func TestCompletionFishGeneration(t *testing.T) {
	cmd := resetRootCmd()

	var buf bytes.Buffer
	require.NoError(t, cmd.GenFishCompletion(&buf, true))
	output := buf.String()

	assert.Contains(t, output, "fish completion for fleet")
	assert.Contains(t, output, "complete -c fleet")
}

func TestCompletionPowershellGeneration(t *testing.T) {
	cmd := resetRootCmd()

	var buf bytes.Buffer
	require.NoError(t, cmd.GenPowerShellCompletion(&buf))
	output := buf.String()

	assert.Contains(t, strings.ToLower(output), "powershell completion")
	assert.Contains(t, output, "Register-ArgumentCompleter")
}

func TestCompletionIncludesBuiltinCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, rootCmd.GenBashCompletion(&buf))
	output := buf.String()

	assert.Contains(t, output, "__completeNoDesc", "should use dynamic completion")
	assert.Contains(t, output, "__start_fleet", "should have start function")
	assert.Contains(t, output, "_fleet_root_command", "should have root command function")

	// Commands with local flags get their own functions.
	assert.Contains(t, output, "_fleet_exec()")
	assert.Contains(t, output, "_fleet_find()")
	assert.Contains(t, output, "_fleet_pool-stats()")
}

func TestCompletionBashSyntaxValid(t *testing.T) {
	cmd := resetRootCmd()
	cmd.AddCommand(&cobra.Command{Use: "read", Short: "Print a file"})
	cmd.AddCommand(&cobra.Command{Use: "exec", Short: "Run a command"})

	var buf bytes.Buffer
	require.NoError(t, cmd.GenBashCompletion(&buf))
	output := buf.String()

	assert.Equal(t, strings.Count(output, "{"), strings.Count(output, "}"), "braces should be balanced")
	assert.Contains(t, output, "__start_fleet()")
	assert.Contains(t, output, "complete -o default -F __start_fleet fleet")
}

func TestCompletionCommandValidArgs(t *testing.T) {
	assert.Contains(t, completionCmd.ValidArgs, "bash")
	assert.Contains(t, completionCmd.ValidArgs, "zsh")
	assert.Contains(t, completionCmd.ValidArgs, "fish")
	assert.Contains(t, completionCmd.ValidArgs, "powershell")
	assert.Len(t, completionCmd.ValidArgs, 4)
}

func TestCompleteHostNames(t *testing.T) {
	old := cfgFile
	defer func() { cfgFile = old }()

	cfgFile = filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`version: 1
hosts:
  - name: web2
    address: 10.0.0.2
  - name: db1
    address: 10.0.0.9
`), 0o644))

	names, directive := completeHostNames(rootCmd, nil, "")
	assert.Equal(t, []string{"db1", "web2"}, names)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	names, _ = completeHostNames(rootCmd, nil, "")
	assert.Empty(t, names)
}
