package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lookbook-ai/internal/config"
	"lookbook-ai/internal/gemini"
	"lookbook-ai/internal/httpclient"
	"lookbook-ai/internal/pipeline"
	"lookbook-ai/internal/preset"
	"lookbook-ai/internal/scenario"
)

type rootOptions struct {
	presetsFile string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "stylist",
		Short:         "Inspect presets, assemble try-on prompts and validate generations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.presetsFile, "presets-file", os.Getenv("PRESETS_FILE"), "YAML preset catalog (embedded catalog when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr: debug, info, warn, error")

	root.AddCommand(
		newPresetsCmd(opts),
		newAssembleCmd(opts),
		newValidateCmd(opts),
	)
	return root
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(o.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) catalog() (*preset.Catalog, error) {
	if o.presetsFile == "" {
		return preset.Builtin()
	}
	return preset.LoadFile(o.presetsFile)
}

// service builds a pipeline. The Gemini judge is wired only when asked for
// and a key is configured.
func (o *rootOptions) service(cmd *cobra.Command, withJudge bool) (*pipeline.Service, error) {
	logger := o.logger(cmd)
	c, err := o.catalog()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var judge scenario.Judge
	if withJudge {
		if !cfg.JudgeEnabled() {
			return nil, fmt.Errorf("--judge needs GEMINI_API_KEY")
		}
		judge = gemini.NewJudge(gemini.New(gemini.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			Model:      cfg.JudgeModel,
			HTTPClient: httpclient.New(httpclient.Options{
				PreferIPv4: cfg.PreferIPv4,
				Timeout:    cfg.HTTPTimeout,
				UserAgent:  "lookbook-ai/stylist",
				Logger:     logger,
			}),
			Logger: logger,
		}))
	}

	return pipeline.New(pipeline.Options{
		Catalog: c,
		Selector: scenario.New(judge, scenario.Options{
			Budget:  cfg.SampleBudget,
			Timeout: cfg.JudgeTimeout,
			Logger:  logger,
		}),
		MaxConcurrent: cfg.MaxConcurrent,
		Logger:        logger,
	})
}

// readJSON decodes a file, or stdin when path is "-" or empty.
func readJSON(cmd *cobra.Command, path string, v any) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", displayName(path), err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func displayName(path string) string {
	if path == "" || path == "-" {
		return "stdin"
	}
	return path
}
