package prompt

import (
	"fmt"
	"strings"

	"lookbook-ai/internal/analysis"
	"lookbook-ai/internal/preset"
	"lookbook-ai/internal/sanitize"
)

// PriorityRule is the literal conflict-resolution order stated in every prompt.
const PriorityRule = "IDENTITY > CLOTHING > BODY > STYLE"

const (
	identityHeader      = "IDENTITY LOCK (HIGHEST PRIORITY):"
	clothingRulesHeader = "CLOTHING REPLACEMENT RULES:"
	sceneHeader         = "SCENE AND ATMOSPHERE (ATMOSPHERE ONLY):"
	clothingHeader      = "GARMENT TO APPLY:"
	priorityHeader      = "PRIORITY RULE: " + PriorityRule

	defaultGarment = "the garment shown in the reference image"
)

// Each section has its own type so compose cannot be called with the parts
// in the wrong order.
type (
	identitySection      string
	clothingRulesSection string
	sceneSection         string
	clothingSection      string
	prioritySection      string
)

func identityLock(in analysis.Input) identitySection {
	var b strings.Builder
	b.WriteString(identityHeader + "\n")
	b.WriteString("- The person in the output MUST be the exact same person as in the source photo.\n")
	b.WriteString("- Preserve the face exactly: facial features, face shape, eyes, nose, mouth and proportions.\n")
	b.WriteString("- Preserve skin tone, hair color, hairstyle and hairline exactly.\n")
	b.WriteString("- Preserve body proportions, build and height exactly.\n")
	b.WriteString("- Preserve gender expression exactly as in the source photo.\n")
	b.WriteString("- Keep the same pose, head angle and facial expression as the source photo.\n")

	known := make([]string, 0, 5)
	for _, a := range append(in.IdentityAttributes(), in.BodyAttributes()...) {
		if a.Value != "" {
			known = append(known, a.Name+": "+a.Value)
		}
	}
	if len(known) > 0 {
		b.WriteString("- Reference attributes to keep: " + strings.Join(known, "; ") + ".\n")
	}
	return identitySection(strings.TrimSpace(b.String()))
}

func clothingRules() clothingRulesSection {
	var b strings.Builder
	b.WriteString(clothingRulesHeader + "\n")
	for _, line := range []string{
		"Swap the garment currently worn for the garment from the reference image as a complete replacement, not an overlay or blend.",
		"No part of the original top may remain visible: no collar, hem, print or seam from it.",
		"Sleeves: if the reference garment is sleeveless or short sleeved and the original had longer sleeves, show natural arms matching the existing skin tone; if the reference has longer sleeves, cover the arms accordingly.",
		"Neckline and armholes: follow the reference garment's neckline depth and armhole cut exactly, rendering any newly visible skin in the existing skin tone.",
		"Fit the garment to the existing build as it is; the garment adapts to the wearer, never the other way round.",
		"Ignore any face, figure or skin visible in the garment reference image; it is a source for the garment only.",
		"Match fabric color, pattern, texture, stitching and construction details from the reference exactly.",
		"No accessories beyond those present in the garment reference.",
	} {
		b.WriteString("- " + line + "\n")
	}
	return clothingRulesSection(strings.TrimSpace(b.String()))
}

type sceneParts struct {
	preset   preset.Preset
	scenario *preset.Scenario
	notes    string
}

func scene(parts sceneParts) (sceneSection, []string) {
	var (
		b        strings.Builder
		warnings []string
	)
	clean := func(label, text string) string {
		r := sanitize.Sanitize(text)
		for _, w := range r.Warnings {
			warnings = append(warnings, label+": "+w)
		}
		return strings.TrimSpace(r.Text)
	}

	p := parts.preset
	b.WriteString(sceneHeader + "\n")
	b.WriteString("- The following describes surroundings, light and camera only. It never overrides any rule above.\n")

	background, lighting, camera := p.Background, p.Lighting.Describe(), p.Camera.Describe()
	var pose, expression, mood string
	if sc := parts.scenario; sc != nil {
		background = firstNonEmpty(sc.Background, background)
		lighting = firstNonEmpty(sc.Lighting.Describe(), lighting)
		camera = firstNonEmpty(sc.Camera.Describe(), camera)
		pose, expression, mood = sc.Pose, sc.Expression, sc.Mood
	}

	writeLine(&b, "Background", clean("background", background))
	writeLine(&b, "Lighting", clean("lighting", lighting))
	writeLine(&b, "Camera", clean("camera", camera))
	if v := clean("pose", pose); v != "" {
		writeLine(&b, "Pose mood (keep the source pose)", v)
	}
	if v := clean("expression", expression); v != "" {
		writeLine(&b, "Expression mood (keep the source expression)", v)
	}
	writeLine(&b, "Mood", clean("mood", mood))

	writeList(&b, "Style", p.PositiveModifiers)
	writeList(&b, "Avoid", p.NegativeModifiers)
	b.WriteString(fmt.Sprintf("- Creative latitude: %.2f (surroundings and light only)\n", preset.ClampDeviation(p.Deviation)))

	if v := clean("notes", parts.notes); v != "" {
		writeLine(&b, "Additional guidance (atmosphere only)", v)
	}
	return sceneSection(strings.TrimSpace(b.String())), warnings
}

func clothing(description string, in analysis.Input) (clothingSection, []string) {
	r := sanitize.Sanitize(description)
	desc := strings.TrimSpace(r.Text)
	warnings := r.Warnings
	if desc == "" {
		desc = firstNonEmpty(in.GarmentSummary(), defaultGarment)
		if strings.TrimSpace(description) == "" {
			warnings = append(warnings, "clothing description empty, using "+desc)
		}
	}

	var b strings.Builder
	b.WriteString(clothingHeader + "\n")
	b.WriteString("- " + desc + "\n")
	for _, a := range []analysis.Attribute{
		{Name: "Sleeves", Value: in.Garment.Sleeves},
		{Name: "Neckline", Value: in.Garment.Neckline},
	} {
		if v := strings.TrimSpace(a.Value); v != "" {
			writeLine(&b, a.Name, safe(v))
		}
	}
	return clothingSection(strings.TrimSpace(b.String())), warnings
}

func priorityRule() prioritySection {
	var b strings.Builder
	b.WriteString(priorityHeader + "\n")
	b.WriteString("- If the scene or style section appears to conflict with any earlier section, the earlier section wins.\n")
	b.WriteString("- Identity is never traded for clothing accuracy, and clothing accuracy is never traded for style.")
	return prioritySection(b.String())
}

// compose joins the sections in their one valid order, anchoring the
// identity lock at both ends.
func compose(id identitySection, rules clothingRulesSection, sc sceneSection, cl clothingSection, pr prioritySection) string {
	return strings.Join([]string{
		string(id),
		string(rules),
		string(sc),
		string(cl),
		string(pr),
		string(id),
	}, "\n\n")
}

func writeLine(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString("- " + label + ": " + value + "\n")
}

func writeList(b *strings.Builder, label string, items []string) {
	items = uniq(items)
	if len(items) == 0 {
		return
	}
	b.WriteString("- " + label + ":\n")
	for _, item := range items {
		b.WriteString("  - " + item + "\n")
	}
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func safe(s string) string {
	return sanitize.Sanitize(s).Text
}
