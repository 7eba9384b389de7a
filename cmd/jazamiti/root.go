package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/johnayoung/jazamiti-consensus/internal/config"
	"github.com/johnayoung/jazamiti-consensus/internal/telemetry"
	"github.com/johnayoung/jazamiti-consensus/internal/ui"
)

const serviceName = "jazamiti-consensus"

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configFile    string
	envFile       string
	logLevel      string
	logFormat     string
	traceExporter string
	otlpEndpoint  string

	logger *slog.Logger
	cfg    config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "jazamiti",
		Short:         "Validate tree-planting records with multi-model AI consensus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			slog.SetDefault(logger)

			cfg, err := config.Load(config.LoadOptions{File: opts.configFile, EnvFile: opts.envFile})
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file merged into the environment when present")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")
	f.StringVar(&opts.traceExporter, "trace", telemetry.ExporterNone, "trace exporter (none, stdout, otlp)")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector address")

	root.AddCommand(
		newValidateCmd(opts),
		newConfigCmd(opts),
		newStatusCmd(opts),
		newModelsCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// startTracing installs the configured trace exporter.
func (o *rootOptions) startTracing(ctx context.Context) (telemetry.Shutdown, error) {
	return telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Exporter:    o.traceExporter,
		Endpoint:    o.otlpEndpoint,
	})
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && ui.IsTerminal(f)
}
