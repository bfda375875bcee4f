package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rileyhilliard/fleet/internal/discovery"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

var resolveRefresh bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <project>",
	Short: "Show which host has a project",
	Long: `Find the single host that has a compose project. Every configured host
is asked at once; cached answers younger than the discovery TTL are reused,
and a cached directory that no longer exists triggers a rescan.

Fails when no host or more than one host has the project.

Examples:
  fleet resolve shop
  fleet resolve shop --refresh
  fleet resolve shop --host web1`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runResolve),
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveRefresh, "refresh", false, "rescan every host instead of trusting the cache")
	rootCmd.AddCommand(resolveCmd)
}

// resolveOutput is the JSON shape of a resolution.
type resolveOutput struct {
	Project string               `json:"project"`
	Host    string               `json:"host"`
	Address string               `json:"address"`
	Path    string               `json:"path"`
	Source  discovery.Provenance `json:"source,omitempty"`
}

func runResolve(ctx context.Context, a *app, args []string) error {
	project := args[0]
	if resolveRefresh {
		for _, h := range a.cfg.Hosts {
			if hostFlag != "" && h.Name != hostFlag {
				continue
			}
			if _, err := a.discover.Discover(ctx, h); err != nil {
				a.log.Warn("rescan of %s failed: %v", h.Name, err)
			}
		}
	}

	res, err := a.resolve(ctx, project, hostFlag)
	if err != nil {
		return err
	}
	if _, err := a.projectDir(ctx, res); err != nil {
		return err
	}

	out := resolveOutput{
		Project: project,
		Host:    res.Host.Name,
		Address: res.Host.Address,
		Path:    res.Path,
		Source:  res.Source,
	}
	return emit(a.out, out, func(w io.Writer) error {
		fmt.Fprintf(w, "%s %s is on %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), out.Project, ui.InfoStyle().Render(out.Host))
		fmt.Fprintf(w, "  %s %s\n", ui.MutedStyle().Render("path:  "), out.Path)
		if out.Source != "" {
			fmt.Fprintf(w, "  %s %s\n", ui.MutedStyle().Render("source:"), out.Source)
		}
		return nil
	})
}
