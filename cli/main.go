package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pikaboard/pikausage/cli/internal/output"
	"github.com/pikaboard/pikausage/cli/internal/remote"
	"github.com/pikaboard/pikausage/internal/config"
	"github.com/pikaboard/pikausage/internal/model"
	"github.com/pikaboard/pikausage/internal/parser"
	"github.com/pikaboard/pikausage/internal/usage"
)

const version = "0.1.0"

var (
	configPath string
	roots      []string
	timezone   string
	jsonOut    bool
	compact    bool
	server     string
	apiKey     string
	verbose    bool
	refresh    bool
)

var rootCmd = &cobra.Command{
	Use:          "pikausage",
	Short:        "Agent usage and cost report",
	Long:         "pikausage reports token usage, cost and savings across agent session logs, read locally or from a pikausage-server",
	Version:      version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd.Context(), printSummary)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show today, this week, this month and lifetime totals (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd.Context(), printSummary)
	},
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Show the trailing 30 days",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd.Context(), func(r *model.UsageReport, opts output.TableOptions) error {
			if jsonOut {
				return output.PrintJSON(os.Stdout, r.Daily)
			}
			output.PrintDaily(os.Stdout, r.Daily, opts)
			return nil
		})
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Show lifetime usage per model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd.Context(), func(r *model.UsageReport, opts output.TableOptions) error {
			if jsonOut {
				return output.PrintJSON(os.Stdout, r.ByModel)
			}
			output.PrintModels(os.Stdout, r.ByModel, r.Pricing, opts)
			return nil
		})
	},
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Show what the last scan found: files, skipped lines and unpriced models",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var diag *model.ScanDiagnostics
		if cfg.Server != "" {
			if diag, err = remote.NewClient(cfg.Server, cfg.APIKey).Diagnostics(cmd.Context()); err != nil {
				return err
			}
		} else {
			svc, err := newLocalService(cfg)
			if err != nil {
				return err
			}
			if _, err := svc.Report(cmd.Context()); err != nil {
				return err
			}
			last, _ := svc.LastScan()
			diag = &last
		}

		if jsonOut {
			return output.PrintJSON(os.Stdout, diag)
		}
		output.PrintDiagnostics(os.Stdout, diag)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Save the server URL and API key used to fetch remote reports",
	Example: `  pikausage config --server https://usage.example.com --api-key pku_xxx
  pikausage config --show`,
	RunE: func(cmd *cobra.Command, args []string) error {
		show, _ := cmd.Flags().GetBool("show")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if show {
			if cfg.Server == "" {
				fmt.Println("No server configured. Run 'pikausage config --server <url> --api-key <key>' to configure.")
			} else {
				fmt.Printf("Server:  %s\n", cfg.Server)
			}
			if len(cfg.APIKey) > 14 {
				fmt.Printf("API Key: %s...%s\n", cfg.APIKey[:10], cfg.APIKey[len(cfg.APIKey)-4:])
			}
			fmt.Printf("Roots:   %v\n", cfg.AgentRoots)
			return nil
		}

		if server == "" && apiKey == "" {
			return cmd.Usage()
		}
		if server != "" {
			cfg.Server = server
		}
		if apiKey != "" {
			cfg.APIKey = apiKey
		}
		if err := config.Save(configPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("Configuration saved.")
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default ~/.pikausage.yaml)")
	flags.StringSliceVar(&roots, "root", nil, "Agent root directory (repeatable, overrides config)")
	flags.StringVar(&timezone, "timezone", "", "Timezone for calendar windows (e.g., America/New_York)")
	flags.BoolVar(&jsonOut, "json", false, "Output as JSON")
	flags.BoolVarP(&compact, "compact", "c", false, "Force compact table output")
	flags.StringVar(&server, "server", "", "Fetch the report from a pikausage-server instead of scanning locally")
	flags.StringVar(&apiKey, "api-key", "", "API key for --server")
	flags.BoolVar(&verbose, "verbose", false, "Log scan progress to stderr")
	flags.BoolVar(&refresh, "refresh", false, "Ask --server to recompute before reporting")

	configCmd.Flags().Bool("show", false, "Show current configuration")

	rootCmd.AddCommand(reportCmd, dailyCmd, modelsCmd, diagnosticsCmd, configCmd)
}

type printer func(*model.UsageReport, output.TableOptions) error

func printSummary(r *model.UsageReport, opts output.TableOptions) error {
	if jsonOut {
		return output.PrintJSON(os.Stdout, r)
	}
	output.PrintSummary(os.Stdout, r, opts)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if len(roots) > 0 {
		cfg.AgentRoots = roots
	}
	if timezone != "" {
		cfg.Timezone = timezone
	}
	if server != "" {
		cfg.Server = server
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	return cfg, nil
}

func runReport(ctx context.Context, show printer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report, err := loadReport(ctx, cfg)
	if err != nil {
		if errors.Is(err, parser.ErrNoReadableRoots) {
			return fmt.Errorf("no agent directory could be read in %v", cfg.AgentRoots)
		}
		return err
	}

	return show(report, output.TableOptions{ForceCompact: compact})
}

func loadReport(ctx context.Context, cfg *config.Config) (*model.UsageReport, error) {
	if cfg.Server != "" {
		client := remote.NewClient(cfg.Server, cfg.APIKey)
		if refresh {
			return client.Refresh(ctx)
		}
		return client.Report(ctx)
	}

	svc, err := newLocalService(cfg)
	if err != nil {
		return nil, err
	}
	return svc.Report(ctx)
}

func newLocalService(cfg *config.Config) (*usage.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	table, err := cfg.PricingTable()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return usage.NewService(usage.Options{
		Roots:    cfg.AgentRoots,
		Location: loc,
		Table:    table,
		Workers:  cfg.Scan.Workers,
		MaxAge:   cfg.CacheMaxAge,
		Logger:   logger,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
