package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnayoung/jazamiti-consensus/internal/config"
	"github.com/johnayoung/jazamiti-consensus/internal/consensus"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
	"github.com/johnayoung/jazamiti-consensus/internal/server"
	"github.com/johnayoung/jazamiti-consensus/internal/ui"
)

// Version information set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errInvalidConfig is returned by config check and serve when validation fails.
var errInvalidConfig = errors.New("configuration is invalid")

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the AI orchestration configuration",
	}

	var jsonOut bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and list every problem found",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := root.cfg.Validate()
			out := cmd.OutOrStdout()

			if jsonOut {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else if report.IsValid {
				ui.PrintSuccess(out, "Configuration is valid")
			} else {
				for _, e := range report.Errors {
					ui.PrintError(out, e)
				}
			}

			if !report.IsValid {
				return errInvalidConfig
			}
			return nil
		},
	}
	check.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON")

	cmd.AddCommand(check)
	return cmd
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which AI backends are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := consensus.NewFromConfig(root.cfg, consensus.WithLogger(root.logger))
			if err != nil {
				return err
			}
			status := engine.Status()
			out := cmd.OutOrStdout()

			if jsonOut {
				return writeJSON(out, status)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE\tAVAILABLE\tMODEL")
			for _, id := range provider.KnownIDs {
				fmt.Fprintf(tw, "%s\t%t\t%s\n", id.DisplayName(), status.Services[id], root.cfg.Providers[id].Model)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d of %d services enabled, consensus threshold %d\n",
				status.TotalEnabled, len(provider.KnownIDs), root.cfg.ConsensusThreshold)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print status as JSON")
	return cmd
}

// modelEntry describes one configured backend model.
type modelEntry struct {
	Provider  provider.ID `json:"provider"`
	Model     string      `json:"model"`
	Enabled   bool        `json:"enabled"`
	Available *bool       `json:"available,omitempty"`
}

func newModelsCmd(root *rootOptions) *cobra.Command {
	var (
		jsonOut bool
		remote  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List configured models, optionally checking them against the OpenAI model list",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]modelEntry, 0, len(provider.KnownIDs))
			for _, id := range provider.KnownIDs {
				pc := root.cfg.Providers[id]
				entries = append(entries, modelEntry{Provider: id, Model: pc.Model, Enabled: pc.Enabled})
			}

			if remote {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if err := checkOpenAIModels(ctx, root.cfg, entries); err != nil {
					// Non-fatal: still print the local listing.
					root.logger.Warn("remote model check failed", "provider", provider.OpenAIID, "error", err)
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, entries)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tMODEL\tENABLED\tAVAILABLE")
			for _, e := range entries {
				avail := "-"
				if e.Available != nil {
					avail = fmt.Sprint(*e.Available)
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.Provider, e.Model, e.Enabled, avail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print models as JSON")
	cmd.Flags().BoolVar(&remote, "remote", false, "verify the OpenAI model against the models endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "timeout for the remote check")
	return cmd
}

// checkOpenAIModels marks the OpenAI entry available when its model is
// listed by the API.
func checkOpenAIModels(ctx context.Context, cfg config.Config, entries []modelEntry) error {
	p, err := consensus.NewProvider(provider.OpenAIID, cfg.Providers[provider.OpenAIID])
	if err != nil {
		return err
	}
	lister, ok := p.(interface {
		Models(ctx context.Context) ([]string, error)
	})
	if !ok {
		return fmt.Errorf("%s does not list models", provider.OpenAIID)
	}

	models, err := lister.Models(ctx)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].Provider == provider.OpenAIID {
			found := slices.Contains(models, entries[i].Model)
			entries[i].Available = &found
		}
	}
	return nil
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if report := root.cfg.Validate(); !report.IsValid {
				for _, e := range report.Errors {
					ui.PrintError(cmd.ErrOrStderr(), e)
				}
				return errInvalidConfig
			}

			shutdown, err := root.startTracing(ctx)
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			engine, err := consensus.NewFromConfig(root.cfg, consensus.WithLogger(root.logger))
			if err != nil {
				return err
			}
			return server.New(engine, root.logger, getVersion()).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "jazamiti %s\n", getVersion())
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// getVersion returns the version string, using build info as fallback.
func getVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
