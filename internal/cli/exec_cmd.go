package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/files"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

// defaultWorkDir is where commands run when there is no project directory.
const defaultWorkDir = "/"

var (
	execWorkDir string
	execTimeout string
)

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run an allow-listed command on a host",
	Long: `Run a command on the target host. The first word must be on the safe
command list (docker, ls, cat, df, journalctl, ...) unless
allow_any_command is set in fleet.yaml or FLEET_ALLOW_ANY_COMMAND=true.

The command line is split on whitespace and every argument is quoted on
its own, so shell operators and quotes are passed through literally.

The command runs in the project directory when --project is set, else in
--workdir (default /). The remote exit code becomes fleet's exit code.

Examples:
  fleet exec --host web1 "df -h"
  fleet exec --project shop docker compose ps
  fleet exec --host db1 --timeout 2m "du -sh /var/lib/postgresql"`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(runExec),
}

func init() {
	execCmd.Flags().StringVarP(&execWorkDir, "workdir", "w", "", "directory to run in (default: project directory, else /)")
	execCmd.Flags().StringVar(&execTimeout, "timeout", "", "command timeout (e.g., 30s, 5m)")
	rootCmd.AddCommand(execCmd)
}

func runExec(ctx context.Context, a *app, args []string) error {
	raw := strings.TrimSpace(strings.Join(args, " "))
	if raw == "" {
		return errors.New(errors.ErrValidation,
			"What should I run?",
			"Usage: fleet exec <command>  (e.g., fleet exec --host web1 \"df -h\")")
	}
	timeout, err := ParseTimeout(execTimeout)
	if err != nil {
		return err
	}

	res, err := a.target(ctx)
	if err != nil {
		return err
	}
	workDir := execWorkDir
	if workDir == "" {
		dir, err := a.projectDir(ctx, res)
		if err != nil {
			return err
		}
		workDir = dir
	} else if workDir, err = a.remotePath(ctx, res, workDir); err != nil {
		return err
	}
	if workDir == "" {
		workDir = defaultWorkDir
	}

	out, err := a.files.ExecuteCommand(ctx, res.Host, workDir, raw, timeout)
	if err != nil {
		return err
	}

	if err := emit(a.out, out, func(w io.Writer) error {
		return printCommandResult(w, out)
	}); err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return errors.NewExitError(out.ExitCode)
	}
	return nil
}

// printCommandResult writes stdout as-is, then stderr, then a one-line
// footer for failures.
func printCommandResult(w io.Writer, res *files.CommandResult) error {
	if _, err := io.WriteString(w, res.Stdout); err != nil {
		return err
	}
	if res.Stderr != "" {
		fmt.Fprint(w, ui.MutedStyle().Render(res.Stderr))
		if !strings.HasSuffix(res.Stderr, "\n") {
			fmt.Fprintln(w)
		}
	}
	if res.ExitCode != 0 {
		fmt.Fprintln(w, ui.ErrorStyle().Render(fmt.Sprintf("%s %s exited %d on %s after %s",
			ui.SymbolFail, res.Command, res.ExitCode, res.Host, res.Duration.Round(time.Millisecond))))
	}
	return nil
}
