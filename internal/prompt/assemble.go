// Package prompt assembles the final instruction for the image model from the
// identity lock, clothing rules, a sanitized preset scene and the garment
// description.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"lookbook-ai/internal/analysis"
	"lookbook-ai/internal/preset"
	"lookbook-ai/internal/sanitize"
)

// MinPromptLength is the shortest text that can hold every required section.
const MinPromptLength = 200

var ErrMalformedPrompt = errors.New("malformed prompt")

type Input struct {
	Preset              *preset.Preset
	Scenario            *preset.Scenario
	ClothingDescription string
	Analysis            analysis.Input
	Notes               string
}

// Result is produced once per request. PresetUsed is nil when the requested
// preset was rejected and the neutral bundle was used instead.
type Result struct {
	FinalPrompt string         `json:"final_prompt"`
	PresetUsed  *preset.Preset `json:"preset_used"`
	Warnings    []string       `json:"warnings,omitempty"`
	Blocked     bool           `json:"blocked"`
}

// Assemble is pure: identical inputs give byte-identical output.
func Assemble(in Input) Result {
	var (
		res      Result
		active   preset.Preset
		scenario = in.Scenario
	)

	switch {
	case in.Preset == nil:
		active = preset.Neutral()
		used := active.Clone()
		res.PresetUsed = &used
		res.Warnings = append(res.Warnings, "no preset given, using neutral")
	case presetUnsafe(*in.Preset):
		res.Warnings = append(res.Warnings, fmt.Sprintf("preset %q rejected: modifier list contains a forbidden phrase", in.Preset.ID))
		active = preset.Neutral()
		scenario = nil
	default:
		active = in.Preset.Clone()
		active.Deviation = preset.ClampDeviation(active.Deviation)
		used := active.Clone()
		res.PresetUsed = &used
	}
	if scenario == nil && active.ID == preset.NeutralID {
		pool := active.ScenarioPool()
		scenario = &pool[0]
	}

	sc, w := scene(sceneParts{preset: active, scenario: scenario, notes: in.Notes})
	res.Warnings = append(res.Warnings, w...)
	cl, w := clothing(in.ClothingDescription, in.Analysis)
	res.Warnings = append(res.Warnings, w...)

	text := compose(identityLock(in.Analysis), clothingRules(), sc, cl, priorityRule())

	text, w = sanitize.Sweep(text)
	res.Warnings = append(res.Warnings, w...)
	text, w = sanitize.Default().Rewrite(text)
	res.Warnings = append(res.Warnings, w...)

	res.FinalPrompt = text
	if sanitize.ContainsForbidden(text) || sanitize.HasBannedPair(text) {
		res.Blocked = true
		res.Warnings = append(res.Warnings, "final prompt still contains a forbidden phrase")
	}
	if err := CheckWellFormed(text); err != nil {
		res.Blocked = true
		res.Warnings = append(res.Warnings, err.Error())
	}
	return res
}

// CheckWellFormed reports whether text carries every required section in
// order, with the identity lock at both ends.
func CheckWellFormed(text string) error {
	text = strings.TrimSpace(text)
	if len(text) < MinPromptLength {
		return fmt.Errorf("%w: %d characters, need at least %d", ErrMalformedPrompt, len(text), MinPromptLength)
	}
	if !strings.HasPrefix(text, identityHeader) {
		return fmt.Errorf("%w: does not open with the identity lock", ErrMalformedPrompt)
	}

	pos := 0
	for _, marker := range []string{clothingRulesHeader, sceneHeader, clothingHeader, priorityHeader, identityHeader} {
		i := strings.Index(text[pos:], marker)
		if i < 0 {
			return fmt.Errorf("%w: missing %q", ErrMalformedPrompt, marker)
		}
		pos += i + len(marker)
	}
	return nil
}

func presetUnsafe(p preset.Preset) bool {
	return sanitize.SanitizeList(p.PositiveModifiers).UnsafeFound ||
		sanitize.SanitizeList(p.NegativeModifiers).UnsafeFound
}
