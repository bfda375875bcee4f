package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/host"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
	"github.com/spf13/cobra"
)

var (
	hostsCheck       bool
	hostsConcurrency int
	importSSHConfig  string
	importAll        bool
	importWithKeys   bool
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List configured hosts",
	Long: `List the hosts in fleet.yaml. With --check, every host is dialed and
pinged through the connection pool and the result shown next to it.

Examples:
  fleet hosts
  fleet hosts --check
  fleet hosts --check --json`,
	Args: cobra.NoArgs,
	RunE: withApp(runHosts),
}

var hostsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Add hosts from ~/.ssh/config to fleet.yaml",
	Long: `Offer the concrete Host aliases from an ssh_config file and append the
chosen ones to fleet.yaml. Aliases already configured are listed but not
preselected. Without a terminal, or with --all, every new alias is added.

Examples:
  fleet hosts import
  fleet hosts import --all
  fleet hosts import --with-keys
  fleet hosts import --ssh-config ./ssh_config --config ./fleet.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHostsImport(os.Stdout, ui.Interactive() && !machineMode)
	},
}

func init() {
	hostsCmd.Flags().BoolVar(&hostsCheck, "check", false, "dial and ping every host")
	hostsCmd.Flags().IntVar(&hostsConcurrency, "concurrency", host.DefaultProbeConcurrency, "hosts checked at once")
	hostsImportCmd.Flags().StringVar(&importSSHConfig, "ssh-config", "", "ssh_config file to read (default ~/.ssh/config)")
	hostsImportCmd.Flags().BoolVar(&importAll, "all", false, "import every new alias without asking")
	hostsImportCmd.Flags().BoolVar(&importWithKeys, "with-keys", false, "only offer aliases with a usable key file")
	hostsCmd.AddCommand(hostsImportCmd)
	rootCmd.AddCommand(hostsCmd)
}

// hostOutput is the JSON shape of one configured host.
type hostOutput struct {
	Name        string       `json:"name"`
	Address     string       `json:"address,omitempty"`
	Port        int          `json:"port,omitempty"`
	Protocol    string       `json:"protocol"`
	User        string       `json:"user,omitempty"`
	SearchPaths []string     `json:"search_paths,omitempty"`
	Check       *checkOutput `json:"check,omitempty"`
}

type checkOutput struct {
	Success bool       `json:"success"`
	Local   bool       `json:"local,omitempty"`
	Skipped bool       `json:"skipped,omitempty"`
	Latency string     `json:"latency,omitempty"`
	Error   *JSONError `json:"error,omitempty"`
}

func runHosts(ctx context.Context, a *app, args []string) error {
	var results []host.ProbeResult
	if hostsCheck {
		results = host.ProbeAll(ctx, a.pool, a.cfg.Hosts, hostsConcurrency)
	}

	out := make([]hostOutput, len(a.cfg.Hosts))
	rows := make([]ui.HostRow, len(a.cfg.Hosts))
	for i, h := range a.cfg.Hosts {
		out[i] = hostOutput{
			Name:        h.Name,
			Address:     h.Address,
			Port:        h.Port,
			Protocol:    string(h.Protocol),
			User:        h.User,
			SearchPaths: h.SearchPaths,
		}
		rows[i] = ui.HostRow{Name: h.Name, Address: displayAddress(h), Protocol: string(h.Protocol)}
		if results != nil {
			out[i].Check = toCheckOutput(results[i])
			rows[i].Status, rows[i].Detail = hostStatus(results[i])
		}
	}

	return emit(a.out, out, func(w io.Writer) error {
		fmt.Fprintln(w, ui.RenderHostsTable(rows))
		return nil
	})
}

func displayAddress(h config.HostConfig) string {
	addr := h.Address
	if h.User != "" {
		addr = h.User + "@" + addr
	}
	if h.Port != 0 && h.Port != config.DefaultSSHPort {
		addr += ":" + strconv.Itoa(h.Port)
	}
	return addr
}

func toCheckOutput(r host.ProbeResult) *checkOutput {
	c := &checkOutput{Success: r.Success, Local: r.Local, Skipped: r.Skipped}
	if r.Success && !r.Local {
		c.Latency = r.Latency.Round(time.Millisecond).String()
	}
	if r.Error != nil {
		c.Error = ErrorToJSON(r.Error)
	}
	return c
}

// hostStatus maps a probe result onto the table's status column.
func hostStatus(r host.ProbeResult) (status, detail string) {
	switch {
	case r.Local:
		return "local", ""
	case r.Skipped:
		return "skipped", "no shell transport"
	case r.Success:
		return "ok", ui.FormatLatency(r.Latency)
	}
	if perr, ok := r.Error.(*host.ProbeError); ok {
		return "fail", perr.Reason.String()
	}
	if r.Error != nil {
		return "fail", r.Error.Error()
	}
	return "fail", ""
}

// importResult is the JSON shape of a hosts import.
type importResult struct {
	ConfigPath string   `json:"config_path"`
	Added      []string `json:"added"`
	Skipped    []string `json:"skipped,omitempty"`
}

func runHostsImport(w io.Writer, interactive bool) error {
	entries, err := readSSHConfig(importSSHConfig)
	if err != nil {
		return err
	}
	if importWithKeys {
		entries = sshutil.FilterHostsWithKeys(entries)
	}

	path, err := importConfigPath(cfgFile)
	if err != nil {
		return err
	}
	configured := map[string]bool{}
	if _, statErr := os.Stat(path); statErr == nil {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		for _, name := range cfg.HostNames() {
			configured[name] = true
		}
	}

	hosts, skipped := hostsFromSSHEntries(entries, configured)
	if len(hosts) == 0 {
		return emit(w, importResult{ConfigPath: path, Added: []string{}, Skipped: skipped}, func(w io.Writer) error {
			fmt.Fprintln(w, ui.MutedStyle().Render("No new ssh_config aliases to import"))
			return nil
		})
	}

	if interactive && !importAll {
		candidates := make([]ui.ImportCandidate, 0, len(entries))
		for _, e := range entries {
			candidates = append(candidates, ui.ImportCandidate{
				Alias:       e.Alias,
				Description: e.Description(),
				Configured:  configured[e.Alias],
			})
		}
		picked, err := ui.PickImportHosts(candidates)
		if err != nil {
			return err
		}
		if picked == nil {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
		hosts = selectHosts(hosts, picked)
		if len(hosts) == 0 {
			fmt.Fprintln(w, "Nothing selected.")
			return nil
		}
	}

	if err := config.AppendHosts(path, hosts); err != nil {
		return err
	}

	added := make([]string, len(hosts))
	for i, h := range hosts {
		added[i] = h.Name
	}
	return emit(w, importResult{ConfigPath: path, Added: added, Skipped: skipped}, func(w io.Writer) error {
		for _, name := range added {
			fmt.Fprintf(w, "%s Added host '%s'\n", ui.SuccessStyle().Render(ui.SymbolSuccess), name)
		}
		fmt.Fprintln(w, ui.MutedStyle().Render("Wrote "+path+". Add search_paths to enable project discovery."))
		return nil
	})
}

func readSSHConfig(path string) ([]sshutil.SSHHostEntry, error) {
	var (
		entries []sshutil.SSHHostEntry
		err     error
	)
	if path == "" {
		entries, err = sshutil.ParseSSHConfig()
	} else {
		entries, err = sshutil.ParseSSHConfigFile(path)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read ssh_config",
			"Check the file's syntax, or point --ssh-config at another file")
	}
	return entries, nil
}

// importConfigPath is the fleet.yaml that import writes to: --config, the
// file config discovery finds, else ./fleet.yaml.
func importConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	found, err := config.Find("")
	if err != nil {
		return "", err
	}
	if found != "" {
		return found, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Pass --config with the file to write")
	}
	return filepath.Join(cwd, config.ConfigFileName), nil
}

// hostsFromSSHEntries converts ssh_config aliases into host entries.
// Aliases already configured are left out; ones that fail validation are
// returned by name in skipped.
func hostsFromSSHEntries(entries []sshutil.SSHHostEntry, configured map[string]bool) (hosts []config.HostConfig, skipped []string) {
	for _, e := range entries {
		if configured[e.Alias] {
			continue
		}
		h := config.HostConfig{
			Name:     e.Alias,
			Address:  e.Address(),
			Port:     e.PortNumber(),
			Protocol: config.ProtocolSSH,
			User:     e.User,
			KeyPath:  e.IdentityFile,
		}
		if err := config.ValidateHost(h); err != nil {
			skipped = append(skipped, e.Alias)
			continue
		}
		hosts = append(hosts, h)
	}
	return hosts, skipped
}

// selectHosts keeps the hosts whose names were picked, in their original order.
func selectHosts(hosts []config.HostConfig, picked []string) []config.HostConfig {
	want := make(map[string]bool, len(picked))
	for _, name := range picked {
		want[name] = true
	}
	var out []config.HostConfig
	for _, h := range hosts {
		if want[h.Name] {
			out = append(out, h)
		}
	}
	return out
}
