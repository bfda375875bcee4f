package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect fleet configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration fleet will use: the config file merged with
defaults and FLEET_* environment overrides.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow(os.Stdout)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print which config file is in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Find(cfgFile)
		if err != nil {
			return err
		}
		return emit(os.Stdout, map[string]string{"path": path}, func(w io.Writer) error {
			if path == "" {
				fmt.Fprintln(w, "No config file found; using defaults")
				return nil
			}
			fmt.Fprintln(w, path)
			return nil
		})
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(w io.Writer) error {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return err
	}
	out, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	if !machineMode {
		_, err = w.Write(out)
		return err
	}

	// Round-trip through YAML so JSON keys and durations match the file.
	var data map[string]interface{}
	if err := yaml.Unmarshal(out, &data); err != nil {
		return err
	}
	return WriteJSONSuccess(w, data)
}
