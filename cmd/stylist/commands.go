package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"lookbook-ai/internal/analysis"
	"lookbook-ai/internal/pipeline"
	"lookbook-ai/internal/preset"
)

var errValidationFailed = errors.New("validation failed")

func newPresetsCmd(root *rootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List catalog presets grouped by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := root.catalog()
			if err != nil {
				return err
			}

			cats := preset.Categories()
			if category != "" {
				cat := preset.Category(strings.ToLower(category))
				if !cat.Valid() {
					return fmt.Errorf("unknown category %q", category)
				}
				cats = []preset.Category{cat}
			}

			title := cases.Title(language.English)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog %s\n", c.Version())
			for _, cat := range cats {
				presets := c.ListByCategory(cat)
				if len(presets) == 0 {
					continue
				}
				fmt.Fprintf(out, "\n%s\n", title.String(string(cat)))
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, p := range presets {
					fmt.Fprintf(tw, "  %s\t%s\t%.2f\t%d scenarios\n", p.ID, p.Name, p.Deviation, len(p.ScenarioPool()))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			for _, rej := range c.Rejected() {
				fmt.Fprintf(out, "\nrejected %s: %s\n", rej.ID, rej.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only list one category")
	return cmd
}

func newAssembleCmd(root *rootOptions) *cobra.Command {
	var (
		presetID     string
		analysisFile string
		clothing     string
		notes        string
		withJudge    bool
		promptOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Select a scenario and assemble the final prompt",
		Long: `Reads an analysis JSON document ({"person": {...}, "garment": {...}})
from --analysis or stdin, selects a scenario of the preset and prints the
assembled prompt together with the selection and warnings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in analysis.Input
			if err := readJSON(cmd, analysisFile, &in); err != nil {
				return err
			}
			svc, err := root.service(cmd, withJudge)
			if err != nil {
				return err
			}

			out, err := svc.Prepare(cmd.Context(), pipeline.PrepareRequest{
				PresetID:            presetID,
				Analysis:            in,
				ClothingDescription: clothing,
				Notes:               notes,
			})
			if err != nil && !out.Assembly.Blocked {
				return err
			}
			if promptOnly {
				fmt.Fprintln(cmd.OutOrStdout(), out.Assembly.FinalPrompt)
			} else if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
				return werr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&presetID, "preset", "p", preset.NeutralID, "preset id")
	cmd.Flags().StringVarP(&analysisFile, "analysis", "a", "-", "analysis JSON file, - for stdin")
	cmd.Flags().StringVar(&clothing, "clothing", "", "garment description, defaults to the analysis")
	cmd.Flags().StringVar(&notes, "notes", "", "extra scene notes")
	cmd.Flags().BoolVar(&withJudge, "judge", false, "ask Gemini to choose the scenario")
	cmd.Flags().BoolVar(&promptOnly, "prompt-only", false, "print only the final prompt")
	return cmd
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Score a generation against its analysis and final prompt",
		Long: `Reads a validation request JSON document with analysis, generated,
preset_id and final_prompt fields. Exits non-zero when the result fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req pipeline.ValidateRequest
			if err := readJSON(cmd, input, &req); err != nil {
				return err
			}
			svc, err := root.service(cmd, false)
			if err != nil {
				return err
			}

			res := svc.Validate(cmd.Context(), req)
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Passed {
				return fmt.Errorf("%w: score %.3f", errValidationFailed, res.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "validation request JSON file, - for stdin")
	return cmd
}
