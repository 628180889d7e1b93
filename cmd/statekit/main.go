// Package main is the entry point for the statekit CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/statekit/internal/catalog"
	"github.com/flemzord/statekit/internal/config"
	"github.com/flemzord/statekit/internal/runner"

	_ "github.com/flemzord/statekit/modules/demo/clock"
	_ "github.com/flemzord/statekit/modules/demo/counter"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "statekit",
		Short:         "A model-based state container with managed side effects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), replayCmd(), configCmd(), modelsCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled models",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "statekit %s (commit: %s, built: %s)\n", version, commit, date)
			factories := catalog.List()
			if len(factories) == 0 {
				fmt.Fprintln(out, "\nNo compiled models.")
				return
			}
			fmt.Fprintln(out, "\nCompiled models:")
			for _, f := range factories {
				fmt.Fprintf(out, "  %s\n", f.Namespace)
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start statekit with all configured models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return runner.Run(cmd.Context(), runner.Params{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <script>",
		Short: "Dispatch a script of actions and print the journal and final state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			script, err := runner.LoadScript(args[0])
			if err != nil {
				return err
			}
			logger, err := runner.NewLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			host, err := runner.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.RemoveTimeout)
				defer cancel()
				_ = host.Shutdown(shutdownCtx)
			}()
			if err := host.App.Start(); err != nil {
				return err
			}

			report, err := runner.Replay(ctx, host, script)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().Duration("timeout", time.Minute, "Maximum replay duration")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			names := cfg.ModelNames()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d models)\n", len(names))
			for _, ns := range names {
				fmt.Fprintf(out, "  %s\n", ns)
			}
			return nil
		},
	})
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models that can be configured",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, f := range catalog.List() {
				fmt.Fprintf(out, "%-12s %s\n", f.Namespace, f.Description)
			}
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		resolved, err := runner.ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
