// Package preset holds the read-only catalog of style presets: atmosphere
// modifiers, scene descriptors and the scenario pool each preset offers.
package preset

import (
	"math"
	"strings"
)

type Category string

const (
	CategoryStudio    Category = "studio"
	CategoryStreet    Category = "street"
	CategoryEditorial Category = "editorial"
	CategoryLifestyle Category = "lifestyle"
	CategoryOutdoor   Category = "outdoor"
)

// Categories returns every known category in display order.
func Categories() []Category {
	return []Category{
		CategoryStudio,
		CategoryStreet,
		CategoryEditorial,
		CategoryLifestyle,
		CategoryOutdoor,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

const (
	MinDeviation = 0.1
	MaxDeviation = 0.5
)

type Lighting struct {
	Type             string `json:"type" yaml:"type"`
	Source           string `json:"source" yaml:"source"`
	Direction        string `json:"direction" yaml:"direction"`
	Quality          string `json:"quality" yaml:"quality"`
	ColorTemperature string `json:"color_temperature" yaml:"color_temperature"`
}

// Describe renders the lighting as one comma separated phrase.
func (l Lighting) Describe() string {
	return joinNonEmpty(", ", l.Type, l.Source, l.Direction, l.Quality, l.ColorTemperature)
}

type Camera struct {
	Angle        string `json:"angle" yaml:"angle"`
	Lens         string `json:"lens" yaml:"lens"`
	Framing      string `json:"framing" yaml:"framing"`
	DepthOfField string `json:"depth_of_field,omitempty" yaml:"depth_of_field,omitempty"`
}

func (c Camera) Describe() string {
	return joinNonEmpty(", ", c.Angle, c.Lens, c.Framing, c.DepthOfField)
}

// Scenario is one concrete scene variant belonging to a single preset.
type Scenario struct {
	ID         string   `json:"id" yaml:"id"`
	PresetID   string   `json:"preset_id" yaml:"-"`
	Background string   `json:"background" yaml:"background"`
	Camera     Camera   `json:"camera" yaml:"camera"`
	Lighting   Lighting `json:"lighting" yaml:"lighting"`
	Pose       string   `json:"pose" yaml:"pose"`
	Expression string   `json:"expression" yaml:"expression"`
	Mood       string   `json:"mood" yaml:"mood"`
}

type Preset struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Category          Category   `json:"category"`
	PositiveModifiers []string   `json:"positive_modifiers"`
	NegativeModifiers []string   `json:"negative_modifiers"`
	Deviation         float64    `json:"deviation"`
	Background        string     `json:"background"`
	Lighting          Lighting   `json:"lighting"`
	Camera            Camera     `json:"camera"`
	Scenarios         []Scenario `json:"scenarios,omitempty"`
}

// ClampDeviation bounds a creative-freedom value to [MinDeviation, MaxDeviation].
// NaN is treated as missing and yields MinDeviation.
func ClampDeviation(d float64) float64 {
	switch {
	case math.IsNaN(d), d < MinDeviation:
		return MinDeviation
	case d > MaxDeviation:
		return MaxDeviation
	default:
		return d
	}
}

// ClampStoredDeviation is ClampDeviation for an optional value.
func ClampStoredDeviation(d *float64) float64 {
	if d == nil {
		return MinDeviation
	}
	return ClampDeviation(*d)
}

// ScenarioPool returns the preset's scenario variations. A preset without any
// gets one scenario built from its own background, lighting and camera.
func (p Preset) ScenarioPool() []Scenario {
	if len(p.Scenarios) > 0 {
		out := make([]Scenario, len(p.Scenarios))
		copy(out, p.Scenarios)
		return out
	}
	return []Scenario{{
		ID:         p.ID + "-base",
		PresetID:   p.ID,
		Background: p.Background,
		Camera:     p.Camera,
		Lighting:   p.Lighting,
		Pose:       "pose exactly as in the source photo",
		Expression: "expression exactly as in the source photo",
		Mood:       strings.ToLower(p.Name),
	}}
}

// Clone returns a deep copy.
func (p Preset) Clone() Preset {
	p.PositiveModifiers = append([]string(nil), p.PositiveModifiers...)
	p.NegativeModifiers = append([]string(nil), p.NegativeModifiers...)
	if p.Scenarios != nil {
		p.Scenarios = append([]Scenario(nil), p.Scenarios...)
	}
	return p
}

// NeutralID identifies the built-in fallback preset.
const NeutralID = "neutral"

// Neutral returns the always-safe default bundle used when a requested preset
// is unknown or fails sanitization.
func Neutral() Preset {
	return Preset{
		ID:       NeutralID,
		Name:     "Neutral Studio",
		Category: CategoryStudio,
		PositiveModifiers: []string{
			"clean professional product photography look",
			"soft even illumination",
			"natural true-to-life colors",
			"sharp focus on the garment fabric",
		},
		NegativeModifiers: []string{
			"blurry details",
			"harsh shadows",
			"oversaturated colors",
			"distracting background elements",
		},
		Deviation:  MinDeviation,
		Background: "plain light grey seamless studio backdrop",
		Lighting: Lighting{
			Type:             "softbox",
			Source:           "two large softboxes",
			Direction:        "frontal, slightly above eye level",
			Quality:          "diffused",
			ColorTemperature: "neutral 5500K",
		},
		Camera: Camera{
			Angle:   "eye level",
			Lens:    "85mm",
			Framing: "framing as in the source photo",
		},
		Scenarios: []Scenario{{
			ID:         "neutral-default",
			PresetID:   NeutralID,
			Background: "plain light grey seamless studio backdrop",
			Camera: Camera{
				Angle:   "eye level",
				Lens:    "85mm",
				Framing: "framing as in the source photo",
			},
			Lighting: Lighting{
				Type:             "softbox",
				Direction:        "frontal",
				Quality:          "diffused",
				ColorTemperature: "neutral 5500K",
			},
			Pose:       "pose exactly as in the source photo",
			Expression: "expression exactly as in the source photo",
			Mood:       "calm and neutral",
		}},
	}
}

func joinNonEmpty(sep string, values ...string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
