package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/files"
	"github.com/rileyhilliard/fleet/internal/resolve"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

var diffContext int

var cpCmd = &cobra.Command{
	Use:   "cp <[host:]src> <[host:]dst>",
	Short: "Copy a file between hosts",
	Long: `Copy a file on one host or between two hosts. Arguments without a host
prefix use --host/--project.

On one host this is cp. Between two remote hosts the source pipes the file
straight to the target over ssh, so the source needs its own key access to
the target. Copies to or from localhost stream through fleet.

Examples:
  fleet cp web1:/srv/app/.env web2:/srv/app/.env
  fleet cp --host web1 /etc/nginx/nginx.conf /tmp/nginx.conf.bak
  fleet cp web1:/var/log/app.log localhost:/tmp/app.log`,
	Args: cobra.ExactArgs(2),
	RunE: withApp(runCopy),
}

var diffCmd = &cobra.Command{
	Use:   "diff <[host:]path1> <[host:]path2>",
	Short: "Compare two files, on one host or across hosts",
	Long: `Compare two files. On the same host a unified diff is shown; across
hosts fleet reports only whether the contents are identical.

Examples:
  fleet diff web1:/etc/nginx/nginx.conf web2:/etc/nginx/nginx.conf
  fleet diff --project shop compose.yaml compose.override.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: withApp(runDiff),
}

func init() {
	diffCmd.Flags().IntVarP(&diffContext, "context", "U", files.DefaultContextLines, "lines of context")
	rootCmd.AddCommand(cpCmd, diffCmd)
}

// endpoints resolves two host:path arguments. Bare paths share one
// --host/--project resolution, done at most once.
func endpoints(ctx context.Context, a *app, args []string) ([2]config.HostConfig, [2]string, error) {
	var hosts [2]config.HostConfig
	var paths [2]string
	var shared *resolve.Resolution

	for i, arg := range args[:2] {
		hp, err := parseHostPath(arg)
		if err != nil {
			return hosts, paths, err
		}

		var res *resolve.Resolution
		if hp.Host != "" {
			h, err := a.hostNamed(hp.Host)
			if err != nil {
				return hosts, paths, err
			}
			res = &resolve.Resolution{Host: h, Project: projectFlag}
		} else {
			if shared == nil {
				if shared, err = a.target(ctx); err != nil {
					return hosts, paths, err
				}
			}
			res = shared
		}

		p, err := a.remotePath(ctx, res, hp.Path)
		if err != nil {
			return hosts, paths, err
		}
		hosts[i], paths[i] = res.Host, p
	}
	return hosts, paths, nil
}

func runCopy(ctx context.Context, a *app, args []string) error {
	hosts, paths, err := endpoints(ctx, a, args)
	if err != nil {
		return err
	}
	res, err := a.files.TransferFile(ctx, hosts[0], paths[0], hosts[1], paths[1])
	if err != nil {
		return err
	}
	return emit(a.out, res, func(w io.Writer) error {
		fmt.Fprintf(w, "%s Copied %s:%s to %s:%s %s\n",
			ui.SuccessStyle().Render(ui.SymbolSuccess),
			res.SourceHost, res.SourcePath, res.TargetHost, res.TargetPath,
			ui.MutedStyle().Render(fmt.Sprintf("(%s, %s)", ui.FormatBytes(res.BytesTransferred), res.Method)))
		for _, warning := range res.Warnings {
			fmt.Fprintln(w, ui.WarningStyle().Render(ui.SymbolWarning+" "+warning))
		}
		return nil
	})
}

func runDiff(ctx context.Context, a *app, args []string) error {
	hosts, paths, err := endpoints(ctx, a, args)
	if err != nil {
		return err
	}
	res, err := a.files.DiffFiles(ctx, hosts[0], paths[0], hosts[1], paths[1], diffContext)
	if err != nil {
		return err
	}
	return emit(a.out, res, func(w io.Writer) error {
		switch {
		case res.Identical:
			fmt.Fprintf(w, "%s Files are identical\n", ui.SuccessStyle().Render(ui.SymbolSuccess))
		case res.Diff != "":
			fmt.Fprint(w, res.Diff)
		default:
			fmt.Fprintf(w, "%s %s:%s and %s:%s differ\n", ui.WarningStyle().Render(ui.SymbolWarning),
				res.Host1, res.Path1, res.Host2, res.Path2)
		}
		return nil
	})
}
