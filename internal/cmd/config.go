package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Show the effective configuration. Values come from, lowest to highest:
built-in defaults, the user config file, the project .cto/config.yaml,
CTO_* environment variables and command flags.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file paths",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Merge the project config when there is one; outside a project the
	// user config alone applies.
	if a, err := openApp(); err == nil {
		a.close()
	} else if !errors.Is(err, errors.ErrNotInitialized) {
		return err
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	if agentSettings, ok := settings["agent"].(map[string]any); ok {
		if key, ok := agentSettings["api_key"].(string); ok && key != "" {
			agentSettings["api_key"] = "********"
		}
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "user:    %s\n", config.ConfigFile())
	if cwd, err := os.Getwd(); err == nil {
		if root, err := config.FindProjectRoot(cwd); err == nil {
			fmt.Fprintf(out, "project: %s\n", config.ProjectConfigFile(root))
		}
	}
	if used := viper.ConfigFileUsed(); used != "" && used != config.ConfigFile() {
		fmt.Fprintf(out, "loaded:  %s\n", used)
	}
	return nil
}
