package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/progress"
)

var initPrefix string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize cto in the current directory",
	Long: `Initialize cto in the current directory.
This creates a .cto directory with the ticket, team, decision and log
folders and a project config.yaml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initPrefix, "prefix", "", "ticket id prefix (default CTO)")
	rootCmd.AddCommand(initCmd)
}

// projectDirs are created under .cto by init.
var projectDirs = []string{
	"tickets",
	filepath.Join("teams", "active"),
	filepath.Join("teams", "messages"),
	filepath.Join("teams", "context"),
	"decisions",
	"logs",
}

// projectConfig is the config.yaml written by init.
type projectConfig struct {
	Project struct {
		TicketPrefix string `yaml:"ticket_prefix"`
	} `yaml:"project"`
	Sprint struct {
		MaxIterations int `yaml:"max_iterations"`
	} `yaml:"sprint"`
	Review struct {
		AutoApprove bool `yaml:"auto_approve"`
	} `yaml:"review"`
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	out := cmd.OutOrStdout()
	dir := filepath.Join(cwd, config.ProjectDirName)

	for _, sub := range projectDirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}

	cfgPath := config.ProjectConfigFile(cwd)
	if fileExists(cfgPath) && initPrefix == "" {
		fmt.Fprintf(out, "cto already initialized in %s\n", dir)
		return nil
	}

	defaults := config.Default()
	var pc projectConfig
	pc.Project.TicketPrefix = defaults.Project.TicketPrefix
	if initPrefix != "" {
		pc.Project.TicketPrefix = strings.ToUpper(initPrefix)
	}
	pc.Sprint.MaxIterations = defaults.Sprint.MaxIterations
	pc.Review.AutoApprove = defaults.Review.AutoApprove

	data, err := yaml.Marshal(&pc)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	log := progress.NewLog(filepath.Join(dir, "logs"))
	if err := log.Append(progress.Entry{
		Action:  progress.ActionNote,
		Message: "Project initialized with prefix " + pc.Project.TicketPrefix,
	}); err != nil {
		return err
	}

	okColor.Fprintf(out, "Initialized cto in %s\n", dir)
	fmt.Fprintf(out, "Ticket prefix: %s\n", pc.Project.TicketPrefix)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  cto ticket create --title \"...\"   Add work")
	fmt.Fprintln(out, "  cto plan \"<description>\"         Have the architect plan it")
	fmt.Fprintln(out, "  cto sprint                        Work the board")
	return nil
}
