package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// GetVersionInfo returns the current version and commit information.
func GetVersionInfo() (string, string) {
	return version, commit
}

func main() {
	root := newRootCommand()
	root.AddCommand(newServeCommand())
	root.AddCommand(newImportCommand())
	root.AddCommand(newConfigCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the gitgrid root. Running it without a subcommand
// starts the API server.
func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "gitgrid",
		Short:         "GitGrid - GitHub data query service",
		Long:          "Serves per-user GitHub collections (organizations, repositories, commits, pull requests, issues, changelogs and users) over a JSON API with search, facets and saved filters.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnvFiles(configPath)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/gitgrid/config.yml)")
	cmd.Version = fmt.Sprintf("%s (%s)", version, commit)
	return cmd
}

func configFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configFlag(cmd))
		},
	}
}

func serve(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validateServe(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return runServer(cfg)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "GitGrid - GitHub data query service\n")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", buildTime)
			fmt.Fprintf(out, "  Go version: %s\n", goVersion)
		},
	}
}
