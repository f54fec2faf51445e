// Package pipeline wires the catalog, selector, assembler and validator into
// the two request paths: prepare (before generation) and validate (after).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lookbook-ai/internal/analysis"
	"lookbook-ai/internal/preset"
	"lookbook-ai/internal/prompt"
	"lookbook-ai/internal/scenario"
	"lookbook-ai/internal/validate"
)

var ErrInvalidRequest = errors.New("invalid request")

type PrepareRequest struct {
	RequestID           string         `json:"request_id,omitempty"`
	PresetID            string         `json:"preset_id"`
	Analysis            analysis.Input `json:"analysis"`
	ClothingDescription string         `json:"clothing_description,omitempty"`
	Notes               string         `json:"notes,omitempty"`
}

type Prepared struct {
	RequestID       string             `json:"request_id"`
	PresetRequested string             `json:"preset_requested"`
	Selection       scenario.Selection `json:"selection"`
	Assembly        prompt.Result      `json:"assembly"`
}

type ValidateRequest struct {
	RequestID   string             `json:"request_id,omitempty"`
	Analysis    analysis.Input     `json:"analysis"`
	Generated   validate.Generated `json:"generated"`
	PresetID    string             `json:"preset_id,omitempty"`
	FinalPrompt string             `json:"final_prompt"`
}

// ValidationReport is what sinks receive after each validation.
type ValidationReport struct {
	RequestID string          `json:"request_id"`
	PresetID  string          `json:"preset_id,omitempty"`
	Model     string          `json:"model,omitempty"`
	Result    validate.Result `json:"result"`
	At        time.Time       `json:"at"`
}

// Sink consumes validation reports. Implementations must not block.
type Sink interface {
	RecordValidation(ctx context.Context, r ValidationReport)
}

// PrepareObserver is an optional Sink extension notified after each prepare.
type PrepareObserver interface {
	ObservePrepare(p Prepared)
}

type Options struct {
	Catalog       *preset.Catalog
	Selector      *scenario.Selector
	Sinks         []Sink
	MaxConcurrent int
	Logger        *slog.Logger
	Now           func() time.Time
}

type Service struct {
	catalog       *preset.Catalog
	selector      *scenario.Selector
	sinks         []Sink
	maxConcurrent int
	logger        *slog.Logger
	now           func() time.Time
}

func New(opts Options) (*Service, error) {
	if opts.Catalog == nil {
		return nil, errors.New("pipeline: catalog is nil")
	}
	if opts.Selector == nil {
		opts.Selector = scenario.New(nil, scenario.Options{Logger: opts.Logger})
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		catalog:       opts.Catalog,
		selector:      opts.Selector,
		sinks:         opts.Sinks,
		maxConcurrent: opts.MaxConcurrent,
		logger:        opts.Logger,
		now:           opts.Now,
	}, nil
}

func (s *Service) Catalog() *preset.Catalog {
	return s.catalog
}

// Prepare selects a scenario and assembles the prompt. A missing or rejected
// preset degrades to the neutral one. The only errors are an empty request and
// a blocked prompt; in the latter case the Prepared value is still returned.
func (s *Service) Prepare(ctx context.Context, req PrepareRequest) (Prepared, error) {
	if req.Analysis.IsZero() && strings.TrimSpace(req.ClothingDescription) == "" {
		return Prepared{}, fmt.Errorf("%w: analysis and clothing description are both empty", ErrInvalidRequest)
	}

	out := Prepared{
		RequestID:       requestID(req.RequestID),
		PresetRequested: strings.TrimSpace(req.PresetID),
	}
	log := s.logger.With("request_id", out.RequestID, "preset", out.PresetRequested)

	var (
		warnings []string
		rejected bool
	)
	p, err := s.lookup(out.PresetRequested)
	switch {
	case errors.Is(err, preset.ErrRejected):
		rejected = true
		log.Warn("requested preset was rejected at catalog load, using neutral")
		warnings = append(warnings, fmt.Sprintf("preset %q rejected", out.PresetRequested))
	case err != nil:
		log.Warn("requested preset not found, using neutral")
		warnings = append(warnings, fmt.Sprintf("preset %q not found, using neutral", out.PresetRequested))
	}

	out.Selection = s.selector.Select(ctx, p, req.Analysis)

	description := req.ClothingDescription
	if strings.TrimSpace(description) == "" {
		description = out.Selection.GarmentDescription
	}
	sc := out.Selection.Scenario
	out.Assembly = prompt.Assemble(prompt.Input{
		Preset:              &p,
		Scenario:            &sc,
		ClothingDescription: description,
		Analysis:            req.Analysis,
		Notes:               req.Notes,
	})
	if rejected {
		out.Assembly.PresetUsed = nil
	}
	out.Assembly.Warnings = append(warnings, out.Assembly.Warnings...)

	for _, sink := range s.sinks {
		if obs, ok := sink.(PrepareObserver); ok {
			obs.ObservePrepare(out)
		}
	}

	if out.Assembly.Blocked {
		log.Warn("assembled prompt blocked", "warnings", out.Assembly.Warnings)
		return out, fmt.Errorf("%w: request %s", prompt.ErrMalformedPrompt, out.RequestID)
	}
	log.Info("prompt prepared",
		"scenario", out.Selection.Scenario.ID,
		"fallback", out.Selection.Fallback,
		"warnings", len(out.Assembly.Warnings),
	)
	return out, nil
}

// BatchItem carries one Prepare outcome; Error is empty on success.
type BatchItem struct {
	Prepared Prepared `json:"prepared"`
	Error    string   `json:"error,omitempty"`
}

// PrepareBatch runs Prepare for every request with bounded concurrency. One
// failing item never cancels the others and results keep request order.
func (s *Service) PrepareBatch(ctx context.Context, reqs []PrepareRequest) []BatchItem {
	out := make([]BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i] = BatchItem{Error: err.Error()}
				return nil
			}
			p, err := s.Prepare(ctx, req)
			out[i] = BatchItem{Prepared: p}
			if err != nil {
				out[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Validate scores a generation and hands the report to every sink.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) validate.Result {
	var used *preset.Preset
	if id := strings.TrimSpace(req.PresetID); id != "" {
		if p, err := s.lookup(id); err == nil {
			used = &p
		} else {
			s.logger.Warn("validated preset unknown, scoring with neutral deviation", "preset", id)
		}
	}

	res := validate.Validate(req.Analysis, req.Generated, used, req.FinalPrompt)
	report := ValidationReport{
		RequestID: requestID(req.RequestID),
		PresetID:  strings.TrimSpace(req.PresetID),
		Model:     req.Generated.Model,
		Result:    res,
		At:        s.now().UTC(),
	}

	level := slog.LevelInfo
	if !res.Passed {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "validation finished",
		"request_id", report.RequestID,
		"preset", report.PresetID,
		"passed", res.Passed,
		"score", res.Score,
	)

	for _, sink := range s.sinks {
		sink.RecordValidation(ctx, report)
	}
	return res
}

func (s *Service) lookup(id string) (preset.Preset, error) {
	if id == "" || id == preset.NeutralID {
		return preset.Neutral(), nil
	}
	p, err := s.catalog.Get(id)
	if err != nil {
		return preset.Neutral(), err
	}
	return p, nil
}

func requestID(given string) string {
	if given = strings.TrimSpace(given); given != "" {
		return given
	}
	return uuid.NewString()
}
