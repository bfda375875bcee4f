package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/files"
	"github.com/rileyhilliard/fleet/internal/security"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

// Command-specific flags
var (
	readMaxSize    int64
	lsAll          bool
	treeDepth      int
	findType       string
	findDepth      int
	findLimit      int
	grepIgnoreCase bool
	grepRecursive  bool
	grepMax        int
	logsLines      int
	logsFilter     string
)

var readCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print a file from a host",
	Long: `Print the contents of a file. Output stops at --max-size bytes and is
marked as truncated when the file is larger.

Relative paths are taken from the project directory when --project is set.

Examples:
  fleet read --host web1 /etc/hostname
  fleet read --project shop compose.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runRead),
}

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory on a host",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withApp(runList),
}

var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "Show a directory tree on a host",
	Long: `Show a directory tree, using tree(1) when the host has it and find(1)
otherwise.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(runTree),
}

var findCmd = &cobra.Command{
	Use:   "find <path> [pattern]",
	Short: "Find files by name on a host",
	Long: `Find files under a path. The optional pattern is a find -name glob.

Examples:
  fleet find --host web1 /var/log "*.log"
  fleet find --project shop . --type dir --depth 2`,
	Args: cobra.RangeArgs(1, 2),
	RunE: withApp(runFind),
}

var grepCmd = &cobra.Command{
	Use:   "grep <pattern> <path>",
	Short: "Search file contents on a host",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runGrep),
}

var logsCmd = &cobra.Command{
	Use:   "logs <path>",
	Short: "Show the end of a log file",
	Long: `Show the last lines of a log file. --filter keeps only lines that
contain the given text; matching happens locally, after the lines arrive.

Examples:
  fleet logs --host web1 /var/log/nginx/error.log -n 200
  fleet logs --project shop logs/app.log --filter ERROR`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runLogs),
}

func init() {
	readCmd.Flags().Int64Var(&readMaxSize, "max-size", files.DefaultMaxReadSize, "maximum bytes to read")
	lsCmd.Flags().BoolVarP(&lsAll, "all", "a", false, "include hidden entries")
	treeCmd.Flags().IntVarP(&treeDepth, "depth", "d", files.DefaultTreeDepth, "maximum depth")
	findCmd.Flags().StringVarP(&findType, "type", "t", "", "only match file, dir, or link")
	findCmd.Flags().IntVarP(&findDepth, "depth", "d", files.DefaultFindDepth, "maximum depth")
	findCmd.Flags().IntVarP(&findLimit, "limit", "l", files.DefaultFindLimit, "maximum results")
	grepCmd.Flags().BoolVarP(&grepIgnoreCase, "ignore-case", "i", false, "case-insensitive match")
	grepCmd.Flags().BoolVarP(&grepRecursive, "recursive", "r", false, "search directories recursively")
	grepCmd.Flags().IntVarP(&grepMax, "max", "m", files.DefaultGrepMatches, "maximum matching lines")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", files.DefaultTailLines, "number of lines from the end")
	logsCmd.Flags().StringVarP(&logsFilter, "filter", "f", "", "only show lines containing this text")

	rootCmd.AddCommand(readCmd, lsCmd, treeCmd, findCmd, grepCmd, logsCmd)
}

// targetPath resolves the target host and turns arg into an absolute path
// on it. An empty arg means the project directory.
func targetPath(ctx context.Context, a *app, arg string) (config.HostConfig, string, error) {
	res, err := a.target(ctx)
	if err != nil {
		return config.HostConfig{}, "", err
	}
	p, err := a.remotePath(ctx, res, arg)
	if err != nil {
		return config.HostConfig{}, "", err
	}
	return res.Host, p, nil
}

func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runRead(ctx context.Context, a *app, args []string) error {
	host, p, err := targetPath(ctx, a, args[0])
	if err != nil {
		return err
	}
	res, err := a.files.ReadFile(ctx, host, p, readMaxSize)
	if err != nil {
		return err
	}
	return emit(a.out, res, func(w io.Writer) error {
		fmt.Fprint(w, res.Content)
		if res.Truncated {
			if !strings.HasSuffix(res.Content, "\n") {
				fmt.Fprintln(w)
			}
			total := "an unknown size"
			if res.Size > 0 {
				total = ui.FormatBytes(res.Size)
			}
			fmt.Fprintln(w, ui.WarningStyle().Render(fmt.Sprintf("%s truncated: showing %s of %s",
				ui.SymbolWarning, ui.FormatBytes(int64(len(res.Content))), total)))
		}
		return nil
	})
}

func runList(ctx context.Context, a *app, args []string) error {
	host, p, err := targetPath(ctx, a, optionalArg(args))
	if err != nil {
		return err
	}
	res, err := a.files.ListDirectory(ctx, host, p, lsAll)
	if err != nil {
		return err
	}
	return emit(a.out, res, func(w io.Writer) error {
		_, err := fmt.Fprint(w, res.Listing)
		return err
	})
}

func runTree(ctx context.Context, a *app, args []string) error {
	host, p, err := targetPath(ctx, a, optionalArg(args))
	if err != nil {
		return err
	}
	res, err := a.files.TreeDirectory(ctx, host, p, treeDepth)
	if err != nil {
		return err
	}
	return emit(a.out, res, func(w io.Writer) error {
		fmt.Fprint(w, res.Tree)
		if res.Fallback {
			fmt.Fprintln(w, ui.MutedStyle().Render("(tree is not installed on "+res.Host+"; listed with find)"))
		}
		return nil
	})
}

func runFind(ctx context.Context, a *app, args []string) error {
	fileType, err := security.ParseFileType(findType)
	if err != nil {
		return err
	}
	host, p, err := targetPath(ctx, a, args[0])
	if err != nil {
		return err
	}
	pattern := ""
	if len(args) > 1 {
		pattern = args[1]
	}
	res, err := a.files.FindFiles(ctx, host, p, pattern, files.FindOptions{
		Type:     fileType,
		MaxDepth: findDepth,
		Limit:    findLimit,
	})
	if err != nil {
		return err
	}
	return emit(a.out, res, func(w io.Writer) error {
		for _, m := range res.Matches {
			fmt.Fprintln(w, m)
		}
		if res.Limited {
			fmt.Fprintln(w, ui.MutedStyle().Render(fmt.Sprintf("(stopped at %d results; raise --limit for more)", findLimit)))
		}
		return nil
	})
}

func runGrep(ctx context.Context, a *app, args []string) error {
	host, p, err := targetPath(ctx, a, args[1])
	if err != nil {
		return err
	}
	res, err := a.files.GrepFiles(ctx, host, p, args[0], files.GrepOptions{
		IgnoreCase: grepIgnoreCase,
		Recursive:  grepRecursive,
		MaxMatches: grepMax,
	})
	if err != nil {
		return err
	}
	return emit(a.out, res, func(w io.Writer) error {
		if len(res.Matches) == 0 {
			fmt.Fprintln(w, ui.MutedStyle().Render("No matches"))
			return nil
		}
		for _, m := range res.Matches {
			fmt.Fprintln(w, m)
		}
		return nil
	})
}

func runLogs(ctx context.Context, a *app, args []string) error {
	host, p, err := targetPath(ctx, a, args[0])
	if err != nil {
		return err
	}
	res, err := a.files.TailLog(ctx, host, p, logsLines, logsFilter)
	if err != nil {
		return err
	}
	return emit(a.out, res, func(w io.Writer) error {
		for _, line := range res.Lines {
			fmt.Fprintln(w, line)
		}
		return nil
	})
}
