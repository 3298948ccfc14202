package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/watzon/gensched/internal/config"
)

const configTableWidth = 90

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show every setting with its default and effective value",
	Long: `Show the effective configuration after the config file and
GENSCHED_* environment variables are applied. Secrets are masked.

Examples:
  gensched config show
  GENSCHED_SERVER_PORT=9000 gensched config show -o yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Loading already validated; reaching here means it passed.
		path, err := config.ConfigFilePath(cfgFile)
		if err != nil {
			path = "defaults"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK (%s)\n", path)
		return nil
	},
}

func init() {
	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", outputTable, "Output format (table, json, yaml)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if err := checkOutput(configOutput, outputTable, outputJSON, outputYAML); err != nil {
		return err
	}

	settings := config.Describe(appConfig)
	if configOutput != outputTable {
		return printStructured(cmd.OutOrStdout(), configOutput, settings)
	}
	printSettings(cmd.OutOrStdout(), settings)
	return nil
}

func printSettings(w io.Writer, settings []config.Setting) {
	fmt.Fprintf(w, "%-42s %-20s %s\n", "KEY", "DEFAULT", "CURRENT")
	fmt.Fprintln(w, strings.Repeat("-", configTableWidth))
	for _, s := range settings {
		marker := ""
		if s.Current != s.Default && !s.Sensitive {
			marker = " *"
		}
		fmt.Fprintf(w, "%-42s %-20s %s%s\n", s.Key, dash(s.Default), dash(s.Current), marker)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
