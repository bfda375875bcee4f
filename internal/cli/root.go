package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile     string
	hostFlag    string
	projectFlag string
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Inspect files and run commands across a fleet of hosts",
	Long: `fleet reads files, lists directories, runs allow-listed commands and
moves files between the machines listed in fleet.yaml. Remote hosts are
reached over pooled SSH connections; a host named "localhost" runs commands
directly.

Pick a target with --host, or name a compose project with --project and let
fleet find the one host that has it.

Examples:
  fleet read --host web1 /etc/hostname
  fleet ls --project shop .
  fleet exec --project shop "docker compose ps"
  fleet cp web1:/srv/app/.env db1:/srv/app/.env`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.ConfigureColor(os.Stdout, noColor || machineMode)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./fleet.yaml, then ~/.config/fleet/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "target host name from fleet.yaml")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "target project; its host is discovered when --host is not set")
	rootCmd.PersistentFlags().BoolVar(&machineMode, "json", false, "output JSON for scripts and agents")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	// Remote exit codes pass through untouched; the command already printed
	// its output.
	if code, ok := errors.GetExitCode(err); ok {
		os.Exit(code)
	}

	if machineMode {
		_ = WriteJSONFromError(os.Stdout, err)
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, err)
	if isUnknownCommandError(err) {
		if name := extractUnknownCommand(err); name != "" {
			fmt.Fprintf(os.Stderr, "\n  '%s' isn't a fleet command. Run 'fleet --help' to see what is.\n", name)
		}
	}
	os.Exit(1)
}

// isUnknownCommandError reports whether err is cobra's complaint about an
// unknown subcommand or flag.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the quoted command name out of cobra's
// `unknown command "foo" for "fleet"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
