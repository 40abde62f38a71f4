package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/config"
)

type rootOptions struct {
	configPath string
	envPrefix  string
	jsonOutput bool
	logLevel   slog.Level

	// overrides are applied after file and env
	overrides []config.Option
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logLevel: slog.LevelWarn}

	cmd := &cobra.Command{
		Use:           "attachctl",
		Short:         "Manage attachments and reconcile orphaned blobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envPrefix, "env-prefix", "", "prefix for environment variables")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newReconcileCmd(opts),
		newPutCmd(opts),
		newListCmd(opts),
		newGetCmd(opts),
		newRemoveCmd(opts),
		newStatsCmd(opts),
		newDanglingCmd(opts),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	var options []config.Option
	if o.configPath != "" {
		options = append(options, config.WithFile(o.configPath))
	}
	options = append(options, config.WithEnv(o.envPrefix))
	options = append(options, o.overrides...)
	return config.Load(options...)
}

// withComponents loads configuration, wires everything and runs fn
func (o *rootOptions) withComponents(ctx context.Context, stderr io.Writer, fn func(*config.Config, *config.Components) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: o.logLevel}))
	comps, err := cfg.Build(ctx, logger)
	if err != nil {
		return err
	}
	defer comps.Close()
	return fn(cfg, comps)
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePlain(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
