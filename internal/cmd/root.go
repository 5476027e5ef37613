package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "cto",
	Short: "Ticket scheduler and multi-agent coordinator",
	Long: `cto keeps a ticket board for a project and works it with autonomous
coding agents. Tickets are delegated to a single agent or to a team of
agents that share messages, decisions and file reservations, reviewed,
and rolled up into their epics.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints the error it fails with.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// Exit statuses.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitCanceled = 130
)

// ExitCode maps a command error to the process exit status. Canceled runs
// exit like an interrupted shell command; errors the user can fix, such as
// bad input or a missing project, exit 2.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errors.ErrCanceled):
		return exitCanceled
	case errors.Is(err, errors.ErrNotInitialized):
		return exitUsage
	case errors.IsUserFacing(err) && errors.GetSeverity(err) <= errors.SeverityWarning:
		return exitUsage
	}
	return exitFailure
}

// printError renders a command error. User-facing errors of warning
// severity or lower print in the warning color.
func printError(w io.Writer, err error) {
	switch {
	case errors.Is(err, errors.ErrCanceled):
		warnColor.Fprintln(w, "Interrupted.")
	case errors.Is(err, errors.ErrNotInitialized):
		warnColor.Fprintf(w, "Error: %v\n", err)
		fmt.Fprintln(w, "Run 'cto init' to create a project here.")
	case errors.IsUserFacing(err):
		c := failColor
		if errors.GetSeverity(err) <= errors.SeverityWarning {
			c = warnColor
		}
		c.Fprintf(w, "Error: %v\n", err)
	default:
		failColor.Fprintf(w, "Error: %v\n", err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/cto/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CTO")
	// e.g. CTO_SPRINT_MAX_ITERATIONS for sprint.max_iterations
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.BindLegacyEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
