package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/files"
	"github.com/rileyhilliard/fleet/internal/pool"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// defaultStatsCommand is cheap and on the allow-list everywhere.
const defaultStatsCommand = "uptime"

var (
	statsRepeat   int
	statsParallel int
)

var poolStatsCmd = &cobra.Command{
	Use:   "pool-stats [command]",
	Short: "Run a command a few times and report connection pool counters",
	Long: `Run a command against the target host --repeat times, --parallel at a
time, through one connection pool, then print the pool's counters: hits,
misses, health checks, evictions and the connections it holds.

Useful for checking that connections are reused and that max_connections
holds under concurrent load.

Examples:
  fleet pool-stats --host web1
  fleet pool-stats --host web1 --repeat 20 --parallel 8 "docker ps"`,
	Args: cobra.ArbitraryArgs,
	RunE: withApp(runPoolStats),
}

func init() {
	poolStatsCmd.Flags().IntVarP(&statsRepeat, "repeat", "n", 3, "number of runs")
	poolStatsCmd.Flags().IntVar(&statsParallel, "parallel", 1, "runs in flight at once")
	rootCmd.AddCommand(poolStatsCmd)
}

// poolStatsOutput is the JSON shape of a pool-stats run.
type poolStatsOutput struct {
	Host     string     `json:"host"`
	Command  string     `json:"command"`
	Runs     int        `json:"runs"`
	Failures []string   `json:"failures,omitempty"`
	HitRate  float64    `json:"hit_rate"`
	Stats    pool.Stats `json:"stats"`
}

func runPoolStats(ctx context.Context, a *app, args []string) error {
	raw := strings.TrimSpace(strings.Join(args, " "))
	if raw == "" {
		raw = defaultStatsCommand
	}
	if statsRepeat < 1 || statsParallel < 1 {
		return errors.New(errors.ErrValidation,
			"--repeat and --parallel must be at least 1",
			"Try --repeat 10 --parallel 4")
	}

	res, err := a.target(ctx)
	if err != nil {
		return err
	}
	workDir, err := a.projectDir(ctx, res)
	if err != nil {
		return err
	}
	if workDir == "" {
		workDir = defaultWorkDir
	}

	failures := make([]string, statsRepeat)
	var g errgroup.Group
	g.SetLimit(statsParallel)
	for i := 0; i < statsRepeat; i++ {
		i := i
		g.Go(func() error {
			out, err := a.files.ExecuteCommand(ctx, res.Host, workDir, raw, 0)
			failures[i] = runFailure(out, err)
			// Validation fails every run the same way; stop early.
			if errors.IsCode(err, errors.ErrValidation) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats := a.pool.Stats()
	out := poolStatsOutput{
		Host:     res.Host.Name,
		Command:  raw,
		Runs:     statsRepeat,
		Failures: compact(failures),
		HitRate:  stats.HitRate(),
		Stats:    stats,
	}
	return emit(a.out, out, func(w io.Writer) error {
		return printPoolStats(w, out)
	})
}

func runFailure(out *files.CommandResult, err error) string {
	switch {
	case err != nil:
		return strings.SplitN(strings.TrimSpace(strings.TrimPrefix(err.Error(), ui.SymbolFail)), "\n", 2)[0]
	case out.ExitCode != 0:
		return fmt.Sprintf("exit %d", out.ExitCode)
	}
	return ""
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printPoolStats(w io.Writer, out poolStatsOutput) error {
	s := out.Stats
	fmt.Fprintf(w, "%s %d × %s on %s", ui.HeaderStyle().Render("Pool"), out.Runs, out.Command, out.Host)
	if n := len(out.Failures); n > 0 {
		fmt.Fprint(w, ui.ErrorStyle().Render(fmt.Sprintf("  (%d failed: %s)", n, out.Failures[0])))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  hit rate  %s\n\n", ui.RenderRatioBar(out.HitRate, 20))
	fmt.Fprintln(w, ui.RenderSimpleTable(
		[]ui.TableColumn{{Title: "COUNTER", Width: 22}, {Title: "VALUE", Width: 8}},
		[][]string{
			{"hits", strconv.FormatUint(s.Hits, 10)},
			{"misses", strconv.FormatUint(s.Misses, 10)},
			{"health checks passed", strconv.FormatUint(s.HealthChecksPassed, 10)},
			{"health checks failed", strconv.FormatUint(s.HealthChecksFailed, 10)},
			{"evictions", strconv.FormatUint(s.Evictions, 10)},
			{"discarded", strconv.FormatUint(s.Discarded, 10)},
			{"active", strconv.Itoa(s.Active)},
			{"idle", strconv.Itoa(s.Idle)},
		},
	))

	if len(s.Connections) == 0 {
		return nil
	}
	rows := make([][]string, len(s.Connections))
	for i, c := range s.Connections {
		state := "idle"
		if c.Active {
			state = "active"
		}
		rows[i] = []string{shortID(c.ID), c.Key, state, ui.FormatAge(c.CreatedAt), ui.FormatAge(c.LastUsed)}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.RenderSimpleTable(
		[]ui.TableColumn{
			{Title: "ID", Width: 10},
			{Title: "KEY", Width: 24},
			{Title: "STATE", Width: 8},
			{Title: "CREATED", Width: 16},
			{Title: "LAST USED", Width: 16},
		},
		rows,
	))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
