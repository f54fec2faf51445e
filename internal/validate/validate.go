// Package validate scores an assembled prompt and its generation metadata
// against the hard constraints. The checks are structural: they look at the
// analysis, the prompt text and whatever the generator reported, never at
// pixels.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"lookbook-ai/internal/analysis"
	"lookbook-ai/internal/preset"
	"lookbook-ai/internal/prompt"
)

const (
	CheckIdentity       = "identity"
	CheckClothing       = "clothing"
	CheckPose           = "pose"
	CheckNoExtraObjects = "noExtraObjects"
	CheckPresetSafety   = "presetSafety"
)

const (
	// MaxSafeDeviation is stricter than the catalog clamp.
	MaxSafeDeviation = 0.2
	lowScore         = 0.8
	identityMarker   = "IDENTITY LOCK"
)

// Generated is what the generator reported about its output. Every field is
// optional.
type Generated struct {
	Caption string   `json:"caption,omitempty"`
	Objects []string `json:"objects,omitempty"`
	Model   string   `json:"model,omitempty"`
}

type Check struct {
	Passed  bool    `json:"passed"`
	Score   float64 `json:"score"`
	Message string  `json:"message"`
}

type Result struct {
	Passed   bool             `json:"passed"`
	Score    float64          `json:"score"`
	Checks   map[string]Check `json:"checks"`
	Warnings []string         `json:"warnings,omitempty"`
	Errors   []string         `json:"errors,omitempty"`
}

type env struct {
	original  analysis.Input
	generated Generated
	preset    *preset.Preset
	prompt    string
}

type checker struct {
	name   string
	weight float64
	run    func(env) Check
}

var checkers = []checker{
	{name: CheckIdentity, weight: 0.40, run: checkIdentity},
	{name: CheckClothing, weight: 0.30, run: checkClothing},
	{name: CheckPose, weight: 0.10, run: checkPose},
	{name: CheckNoExtraObjects, weight: 0.15, run: checkNoExtraObjects},
	{name: CheckPresetSafety, weight: 0.05, run: checkPresetSafety},
}

// CheckNames lists the checks in evaluation order.
func CheckNames() []string {
	out := make([]string, 0, len(checkers))
	for _, c := range checkers {
		out = append(out, c.name)
	}
	return out
}

// Weight returns the fixed weight of a check, or zero for an unknown name.
func Weight(name string) float64 {
	for _, c := range checkers {
		if c.name == name {
			return c.weight
		}
	}
	return 0
}

// Validate runs every check. Passed requires each check to pass and the
// prompt to be well formed; the weighted score alone never passes a result.
func Validate(original analysis.Input, generated Generated, presetUsed *preset.Preset, finalPrompt string) Result {
	e := env{original: original, generated: generated, preset: presetUsed, prompt: finalPrompt}
	res := Result{Passed: true, Checks: make(map[string]Check, len(checkers))}

	if err := prompt.CheckWellFormed(finalPrompt); err != nil {
		res.Errors = append(res.Errors, err.Error())
		res.Passed = false
	}

	total := 0.0
	for _, c := range checkers {
		ch := c.run(e)
		ch.Score = clamp01(ch.Score)
		res.Checks[c.name] = ch
		total += c.weight * ch.Score
		if !ch.Passed {
			res.Passed = false
			continue
		}
		if ch.Score < lowScore {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s passed with low score %.2f: %s", c.name, ch.Score, ch.Message))
		}
	}
	res.Score = math.Round(clamp01(total)*1000) / 1000
	return res
}

func checkIdentity(e env) Check {
	attrs := e.original.IdentityAttributes()
	present := analysis.Present(attrs)
	score := float64(present) / float64(len(attrs))
	locked := strings.Contains(e.prompt, identityMarker)

	switch {
	case !locked:
		return Check{Passed: false, Score: score / 2, Message: "prompt carries no identity lock"}
	case present < 2:
		return Check{Passed: false, Score: score, Message: fmt.Sprintf("only %d of %d identity attributes known", present, len(attrs))}
	default:
		return Check{Passed: true, Score: score, Message: fmt.Sprintf("%d of %d identity attributes locked", present, len(attrs))}
	}
}

// checkClothing never hard-fails: missing garment attributes lower the score.
func checkClothing(e env) Check {
	attrs := e.original.GarmentAttributes()
	present := analysis.Present(attrs)
	var missing []string
	for _, a := range attrs {
		if a.Value == "" {
			missing = append(missing, a.Name)
		}
	}
	msg := fmt.Sprintf("%d of %d garment attributes known", present, len(attrs))
	if len(missing) > 0 {
		msg += ", missing " + strings.Join(missing, ", ")
	}
	return Check{Passed: true, Score: float64(present) / float64(len(attrs)), Message: msg}
}

func checkPose(e env) Check {
	attrs := e.original.BodyAttributes()
	present := analysis.Present(attrs)
	if present == 0 {
		return Check{Passed: false, Score: 0, Message: "neither pose nor build known"}
	}
	return Check{Passed: true, Score: float64(present) / float64(len(attrs)), Message: fmt.Sprintf("%d of %d body attributes known", present, len(attrs))}
}

const accessoryTerms = `(jewelry|jewellery|chains?|necklaces?|earrings?|(?:sun)?glasses|watch(?:es)?|jackets?|bracelets?|rings?|hats?)`

var (
	accessoryRequest = regexp.MustCompile(`(?i)\b(?:add(?:s|ed|ing)?|includ(?:e|es|ed|ing)|put(?:ting)?\s+on|accessori[sz]e\s+with)\b(?:\s+[\w'-]+){0,3}?\s+` + accessoryTerms + `\b`)
	accessoryWord    = regexp.MustCompile(`(?i)\b` + accessoryTerms + `\b`)
)

func checkNoExtraObjects(e env) Check {
	if m := accessoryRequest.FindString(e.prompt); m != "" {
		return Check{Passed: false, Score: 0, Message: fmt.Sprintf("prompt asks for an accessory: %q", m)}
	}

	garment := strings.ToLower(strings.Join([]string{
		e.original.GarmentSummary(), e.original.Garment.Sleeves, e.original.Garment.Neckline,
	}, " "))
	if extra := extraAccessories(e.prompt, garment); len(extra) > 0 {
		return Check{Passed: false, Score: 0, Message: "prompt names accessories: " + strings.Join(extra, ", ")}
	}
	reported := e.generated.Caption + " " + strings.Join(e.generated.Objects, " ")
	if extra := extraAccessories(reported, garment); len(extra) > 0 {
		return Check{Passed: false, Score: 0, Message: "generated output reports extra objects: " + strings.Join(extra, ", ")}
	}
	return Check{Passed: true, Score: 1, Message: "no extraneous accessories requested or reported"}
}

// extraAccessories lists accessory terms in text that the garment itself does
// not account for.
func extraAccessories(text, garment string) []string {
	var extra []string
	for _, term := range accessoryWord.FindAllString(text, -1) {
		term = strings.ToLower(term)
		if strings.Contains(garment, singular(term)) {
			continue
		}
		extra = append(extra, term)
	}
	return uniq(extra)
}

var unsafeEdit = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:add|change|modify|alter)\s+(?:hair|face|body|clothing)\b`),
	regexp.MustCompile(`(?i)\b(?:enhance|improve)\s+(?:face|skin|body)\b`),
}

func checkPresetSafety(e env) Check {
	deviation := preset.MinDeviation
	id := preset.NeutralID
	if e.preset != nil {
		deviation = preset.ClampDeviation(e.preset.Deviation)
		id = e.preset.ID
	}
	if deviation > MaxSafeDeviation {
		return Check{Passed: false, Score: 0, Message: fmt.Sprintf("preset %q deviation %.2f exceeds %.2f", id, deviation, MaxSafeDeviation)}
	}
	for _, re := range unsafeEdit {
		if m := re.FindString(e.prompt); m != "" {
			return Check{Passed: false, Score: 0, Message: fmt.Sprintf("prompt requests a protected edit: %q", m)}
		}
	}
	return Check{Passed: true, Score: 1, Message: fmt.Sprintf("preset %q within deviation %.2f", id, deviation)}
}

func singular(term string) string {
	switch {
	case strings.HasSuffix(term, "ches"), strings.HasSuffix(term, "sses"):
		return strings.TrimSuffix(term, "es")
	case strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss"):
		return strings.TrimSuffix(term, "s")
	default:
		return term
	}
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
