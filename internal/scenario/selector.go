// Package scenario picks one scene variant from a preset's pool with the help
// of an external judge, falling back to a deterministic choice whenever the
// judge is missing, slow, or wrong.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"lookbook-ai/internal/analysis"
	"lookbook-ai/internal/preset"
	"lookbook-ai/internal/sanitize"
)

const (
	DefaultBudget   = 10
	DefaultTimeout  = 20 * time.Second
	fallbackPerson  = "the person exactly as shown in the source photo"
	fallbackGarment = "the garment shown in the reference image"
)

// Summary is the structured, text-only view of a scenario handed to the judge.
// Index is 1-based within the sampled set.
type Summary struct {
	Index      int    `json:"index"`
	ID         string `json:"id"`
	Background string `json:"background"`
	Camera     string `json:"camera"`
	Lighting   string `json:"lighting"`
	Pose       string `json:"pose"`
	Expression string `json:"expression"`
	Mood       string `json:"mood"`
}

type Request struct {
	PresetID  string
	Scenarios []Summary
	Analysis  analysis.Input
}

// Verdict is the judge's answer. ScenarioID may carry either a scenario id or
// a 1-based ordinal into Request.Scenarios.
type Verdict struct {
	ScenarioID         string `json:"scenario_id"`
	PersonDescription  string `json:"person_description"`
	GarmentDescription string `json:"garment_description"`
	Reasoning          string `json:"reasoning"`
}

// Judge matches the analysis against candidate scenarios.
type Judge interface {
	Choose(ctx context.Context, req Request) (Verdict, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, req Request) (Verdict, error)

func (f JudgeFunc) Choose(ctx context.Context, req Request) (Verdict, error) {
	return f(ctx, req)
}

type Selection struct {
	Scenario           preset.Scenario `json:"scenario"`
	PersonDescription  string          `json:"person_description"`
	GarmentDescription string          `json:"garment_description"`
	Reasoning          string          `json:"reasoning"`
	Fallback           bool            `json:"fallback"`
	Sampled            int             `json:"sampled"`
	Warnings           []string        `json:"warnings,omitempty"`
}

type Options struct {
	Budget   int
	Timeout  time.Duration
	CacheTTL time.Duration // zero disables caching
	Logger   *slog.Logger
}

type Selector struct {
	judge   Judge
	budget  int
	timeout time.Duration
	ttl     time.Duration
	cache   *cache.Cache
	group   singleflight.Group
	log     *slog.Logger
}

// New returns a Selector. A nil judge is allowed; every selection then uses
// the fallback.
func New(judge Judge, opts Options) *Selector {
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Selector{
		judge:   judge,
		budget:  opts.Budget,
		timeout: opts.Timeout,
		ttl:     opts.CacheTTL,
		log:     opts.Logger,
	}
	if opts.CacheTTL > 0 {
		s.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return s
}

// Sample returns at most budget scenarios evenly strided across pool.
func Sample(pool []preset.Scenario, budget int) []preset.Scenario {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if len(pool) <= budget {
		return append([]preset.Scenario(nil), pool...)
	}
	stride := len(pool) / budget
	out := make([]preset.Scenario, 0, budget)
	for i := 0; i < budget; i++ {
		out = append(out, pool[i*stride])
	}
	return out
}

// Select never fails: every problem with the judge degrades to the first
// scenario of the pool with neutral descriptions built from the analysis.
func (s *Selector) Select(ctx context.Context, p preset.Preset, in analysis.Input) Selection {
	var warnings []string
	pos := sanitize.SanitizeList(p.PositiveModifiers)
	neg := sanitize.SanitizeList(p.NegativeModifiers)
	if pos.UnsafeFound || neg.UnsafeFound {
		s.log.Warn("preset rejected for scenario selection", "preset", p.ID)
		warnings = append(warnings, fmt.Sprintf("preset %q rejected, using neutral scenarios", p.ID))
		p = preset.Neutral()
	}

	pool := p.ScenarioPool()
	sampled := Sample(pool, s.budget)

	if s.judge == nil {
		sel := s.fallback(pool, in, "no judge configured")
		sel.Sampled = len(sampled)
		sel.Warnings = append(warnings, sel.Warnings...)
		return sel
	}

	key := p.ID + ":" + in.Fingerprint()
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			if sel, ok := cached.(Selection); ok {
				sel.Warnings = append(append([]string(nil), warnings...), sel.Warnings...)
				return sel
			}
		}
	}

	// The flight outlives any single caller; each caller still stops waiting
	// when its own context ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		if s.cache != nil {
			if cached, ok := s.cache.Get(key); ok {
				return cached, nil
			}
		}
		sel, err := s.ask(flightCtx, p.ID, sampled, in)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(key, sel, cache.DefaultExpiration)
		}
		return sel, nil
	})

	var (
		val interface{}
		err error
	)
	select {
	case res := <-ch:
		val, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.log.Warn("scenario judge failed, using fallback", "preset", p.ID, "error", err)
		sel := s.fallback(pool, in, "judge unavailable: "+err.Error())
		sel.Sampled = len(sampled)
		sel.Warnings = append(warnings, sel.Warnings...)
		return sel
	}

	sel, ok := val.(Selection)
	if !ok {
		sel = s.fallback(pool, in, fmt.Sprintf("unexpected selection type %T", val))
		sel.Sampled = len(sampled)
	}
	sel.Warnings = append(append([]string(nil), warnings...), sel.Warnings...)
	return sel
}

func (s *Selector) ask(ctx context.Context, presetID string, sampled []preset.Scenario, in analysis.Input) (Selection, error) {
	if len(sampled) == 0 {
		return Selection{}, errors.New("empty scenario pool")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type answer struct {
		verdict Verdict
		err     error
	}
	started := time.Now()
	done := make(chan answer, 1)
	go func() {
		v, err := s.judge.Choose(ctx, Request{
			PresetID:  presetID,
			Scenarios: Summaries(sampled),
			Analysis:  in,
		})
		done <- answer{verdict: v, err: err}
	}()

	var verdict Verdict
	select {
	case a := <-done:
		if a.err != nil {
			return Selection{}, a.err
		}
		verdict = a.verdict
	case <-ctx.Done():
		return Selection{}, ctx.Err()
	}
	s.log.Debug("scenario judge answered", "preset", presetID, "scenario", verdict.ScenarioID, "elapsed", time.Since(started))

	sel := Selection{Sampled: len(sampled), Reasoning: strings.TrimSpace(verdict.Reasoning)}
	if sc, ok := match(sampled, verdict.ScenarioID); ok {
		sel.Scenario = sc
	} else {
		s.log.Warn("judge chose an unknown scenario, using the first sampled one", "preset", presetID, "scenario", verdict.ScenarioID)
		sel.Scenario = sampled[0]
		sel.Warnings = append(sel.Warnings, fmt.Sprintf("judge returned unknown scenario %q, using %q", verdict.ScenarioID, sampled[0].ID))
	}

	var w []string
	sel.PersonDescription, w = cleanDescription(verdict.PersonDescription, personFallback(in))
	sel.Warnings = append(sel.Warnings, w...)
	sel.GarmentDescription, w = cleanDescription(verdict.GarmentDescription, garmentFallback(in))
	sel.Warnings = append(sel.Warnings, w...)
	return sel, nil
}

func (s *Selector) fallback(pool []preset.Scenario, in analysis.Input, reason string) Selection {
	sel := Selection{
		PersonDescription:  personFallback(in),
		GarmentDescription: garmentFallback(in),
		Reasoning:          "fallback: " + reason,
		Fallback:           true,
	}
	if len(pool) > 0 {
		sel.Scenario = pool[0]
	} else {
		sel.Scenario = preset.Neutral().ScenarioPool()[0]
	}
	sel.Warnings = []string{"scenario fallback: " + reason}
	return sel
}

// Summaries renders scenarios for the judge, numbering them from 1.
func Summaries(scenarios []preset.Scenario) []Summary {
	out := make([]Summary, 0, len(scenarios))
	for i, sc := range scenarios {
		out = append(out, Summary{
			Index:      i + 1,
			ID:         sc.ID,
			Background: sc.Background,
			Camera:     sc.Camera.Describe(),
			Lighting:   sc.Lighting.Describe(),
			Pose:       sc.Pose,
			Expression: sc.Expression,
			Mood:       sc.Mood,
		})
	}
	return out
}

func match(sampled []preset.Scenario, id string) (preset.Scenario, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return preset.Scenario{}, false
	}
	for _, sc := range sampled {
		if strings.EqualFold(sc.ID, id) {
			return sc, true
		}
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(id, "#")); err == nil && n >= 1 && n <= len(sampled) {
		return sampled[n-1], true
	}
	return preset.Scenario{}, false
}

func cleanDescription(text, fallback string) (string, []string) {
	r := sanitize.Sanitize(text)
	if r.Text == "" {
		return fallback, r.Warnings
	}
	return r.Text, r.Warnings
}

func personFallback(in analysis.Input) string {
	if s := in.PersonSummary(); s != "" {
		return "the person exactly as shown in the source photo (" + s + ")"
	}
	return fallbackPerson
}

func garmentFallback(in analysis.Input) string {
	if s := in.GarmentSummary(); s != "" {
		return s
	}
	return fallbackGarment
}
