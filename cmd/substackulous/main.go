// Package main is the entry point for the substackulous CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "substackulous",
		Short:         "AI growth assistant backend for Substack authors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), serviceCmd(), boundCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "substackulous %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.GetModules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func runParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return app.RunParams{
		ConfigPath: cfgPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    dataDir,
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start substackulous with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := runParams(cmd)
			if service.Interactive() {
				return app.Run(cmd.Context(), params)
			}
			// Launched by the service manager.
			s, err := app.NewService(params)
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Override the data directory")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			cfg, resolved, err := app.LoadConfig(path)
			if err != nil {
				return err
			}
			dataDir, _ := cmd.Flags().GetString("data-dir")
			if dataDir == "" {
				dataDir = cfg.DataDir
			}
			if dataDir == "" {
				dataDir = os.TempDir()
			}
			ids, err := app.Check(cfg, dataDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s (%d modules)\n", resolved, len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
	check.Flags().String("data-dir", "", "Data directory used while provisioning")
	cmd.AddCommand(check)
	return cmd
}
