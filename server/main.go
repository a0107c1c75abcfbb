package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/pikaboard/pikausage/server/internal/auth"
)

const version = "0.1.0"

var (
	configPath string
	logFormat  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "pikausage-server",
	Short:        "Serve agent usage and cost reports over HTTP",
	Long:         "pikausage-server scans agent session logs and serves usage, cost and savings reports for the task-board dashboard",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, prg, err := newService()
		if err != nil {
			return err
		}
		if svcLogger, err := s.Logger(nil); err == nil {
			prg.svcLogger = svcLogger
		}
		return s.Run()
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the OS service",
	Long:  "Install, start, stop, uninstall or inspect pikausage-server as an OS service",
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Hash an API key for the api_keys config section",
	Long:  "Print the bcrypt hash of an API key. Without an argument a new random key is generated.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			generated, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			key = generated
			fmt.Printf("API key: %s\n", key)
		}

		hash, err := auth.HashKey(key)
		if err != nil {
			return err
		}
		fmt.Printf("Hash:    %s\n", hash)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.pikausage.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	serviceCmd.AddCommand(
		serviceAction("install", "Install and start the service", func(s service.Service) (string, error) {
			if err := s.Install(); err != nil {
				return "", fmt.Errorf("failed to install service: %w", err)
			}
			if err := s.Start(); err != nil {
				return "", fmt.Errorf("service installed but failed to start: %w", err)
			}
			return "Service installed and started.", nil
		}),
		serviceAction("start", "Start the service", func(s service.Service) (string, error) {
			return "Service started.", s.Start()
		}),
		serviceAction("stop", "Stop the service", func(s service.Service) (string, error) {
			return "Service stopped.", s.Stop()
		}),
		serviceAction("uninstall", "Stop and remove the service", func(s service.Service) (string, error) {
			_ = s.Stop()
			return "Service uninstalled.", s.Uninstall()
		}),
		serviceAction("status", "Show service status", func(s service.Service) (string, error) {
			status, err := s.Status()
			if err != nil {
				return fmt.Sprintf("Service status: not installed or error (%v)", err), nil
			}
			switch status {
			case service.StatusRunning:
				return "Service status: running", nil
			case service.StatusStopped:
				return "Service status: stopped", nil
			}
			return "Service status: unknown", nil
		}),
	)

	rootCmd.AddCommand(serveCmd, serviceCmd, hashKeyCmd)
}

func serviceAction(use, short string, action func(service.Service) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := newService()
			if err != nil {
				return err
			}
			msg, err := action(s)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}

// newService wraps the server in an OS service. The installed service runs
// "serve" with the same config file.
func newService() (service.Service, *program, error) {
	args := []string{"serve", "--log-format", logFormat, "--log-level", logLevel}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, "--config", abs)
	}

	svcConfig := &service.Config{
		Name:        "pikausage",
		DisplayName: "pikausage Server",
		Description: "Serves agent usage and cost reports for the task-board dashboard",
		Arguments:   args,
	}

	prg := &program{
		configPath: configPath,
		logger:     newLogger(logFormat, logLevel),
	}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, prg, nil
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
