package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const generatedConfigName = "config.yml"

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management utilities",
	}
	cmd.AddCommand(newConfigGenerateCommand())
	cmd.AddCommand(newConfigShowCommand())
	return cmd
}

func newConfigGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a config file holding every default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputDir, _ := cmd.Flags().GetString("output")
			overwrite, _ := cmd.Flags().GetBool("overwrite")

			path, written, err := writeDefaultConfig(outputDir, overwrite)
			if err != nil {
				return err
			}
			if !written {
				fmt.Fprintf(cmd.OutOrStdout(), "Skipping %s (file exists, use --overwrite to replace)\n", path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", path)
			return nil
		},
	}

	cmd.Flags().String("output", ".", "output directory for the config file")
	cmd.Flags().Bool("overwrite", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag(cmd))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg.JWTSecret = redact(cfg.JWTSecret)
			cfg.BackupS3SecretKey = redact(cfg.BackupS3SecretKey)
			cfg.BackupS3SessionToken = redact(cfg.BackupS3SessionToken)

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// writeDefaultConfig writes config.yml into dir. It reports false without
// touching the file when one exists and overwrite is off.
func writeDefaultConfig(dir string, overwrite bool) (string, bool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, generatedConfigName)
	if _, err := os.Stat(path); err == nil && !overwrite {
		return path, false, nil
	}

	data, err := renderDefaultConfig()
	if err != nil {
		return path, false, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return path, false, fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return path, true, nil
}

// renderDefaultConfig emits the defaults as YAML, with durations in their
// string form so the file reads back through viper unchanged.
func renderDefaultConfig() ([]byte, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("finding home directory: %w", err)
	}
	v := viper.New()
	setDefaults(v, home)

	settings := v.AllSettings()
	for k, val := range settings {
		if d, ok := val.(time.Duration); ok {
			settings[k] = d.String()
		}
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
