package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptctx/internal/config"
	"github.com/jackzampolin/promptctx/internal/home"
	"github.com/jackzampolin/promptctx/internal/logging"
	"github.com/jackzampolin/promptctx/internal/metrics"
	"github.com/jackzampolin/promptctx/internal/output"
	"github.com/jackzampolin/promptctx/internal/svcctx"
	"github.com/jackzampolin/promptctx/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	metricsOut   string
)

// Commands annotated with skipServices run without opening the store.
const skipServices = "skip-services"

var (
	services   *svcctx.Services
	cfgManager *config.Manager
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "promptctx",
	Short: "Compose prompts with their assets, queries and output templates",
	Long: `promptctx stores prompts and composes them into context-rich documents.

Composition appends:
  - Content of related assets (files and PDFs)
  - Results of the prompt's embedded database queries
  - Output-format instructions generated from attached JSON templates

Prompts missing from the store are read from local files in the
configured search directories.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := output.ParseFormat(outputFormat); err != nil {
			return err
		}
		if cmd.Annotations[skipServices] == "true" {
			return nil
		}
		return setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.promptctx/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "promptctx home directory (default: ~/.promptctx)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&metricsOut, "metrics-out", "", "write prometheus metrics to this file on exit",
	)

	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and attaches services to the command context.
func setup(cmd *cobra.Command) error {
	h, err := getHome()
	if err != nil {
		return err
	}

	file := cfgFile
	if file == "" && h.ConfigExists() {
		file = h.ConfigPath()
	}
	cfgManager, err = config.NewManager(file)
	if err != nil {
		return err
	}
	cfg := cfgManager.Get()

	logger, closer, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logCloser = closer
	slog.SetDefault(logger)

	services, err = svcctx.Build(cmd.Context(), cfg, h, logger)
	if err != nil {
		return err
	}
	cmd.SetContext(svcctx.WithServices(cmd.Context(), services))
	return nil
}

// shutdown flushes metrics and releases services. Safe to call when setup
// never ran.
func shutdown() error {
	var errs []error
	if services != nil {
		if metricsOut != "" {
			errs = append(errs, metrics.WriteTextfile(services.Registry, metricsOut))
		}
		errs = append(errs, services.Close())
		services = nil
	}
	if logCloser != nil {
		errs = append(errs, logCloser.Close())
		logCloser = nil
	}
	return errors.Join(errs...)
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// printer returns the structured printer for cmd's stdout.
func printer(cmd *cobra.Command) *output.Printer {
	format, _ := output.ParseFormat(outputFormat)
	return output.New(cmd.OutOrStdout(), format)
}

// mustServices returns the services attached by setup.
func mustServices(cmd *cobra.Command) (*svcctx.Services, error) {
	s := svcctx.ServicesFrom(cmd.Context())
	if s == nil {
		return nil, fmt.Errorf("services not initialized")
	}
	return s, nil
}
