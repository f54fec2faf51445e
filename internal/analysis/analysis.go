// Package analysis holds the structured description of a person and a garment
// produced by the external vision step. Values are treated as trusted and are
// never mutated by the pipeline.
package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

type Person struct {
	FaceShape        string `json:"face_shape" yaml:"face_shape"`
	SkinTone         string `json:"skin_tone" yaml:"skin_tone"`
	HairColor        string `json:"hair_color" yaml:"hair_color"`
	HairStyle        string `json:"hair_style" yaml:"hair_style"`
	Build            string `json:"build" yaml:"build"`
	Pose             string `json:"pose" yaml:"pose"`
	GenderExpression string `json:"gender_expression,omitempty" yaml:"gender_expression,omitempty"`
}

type Garment struct {
	Type     string `json:"type" yaml:"type"`
	Color    string `json:"color" yaml:"color"`
	Pattern  string `json:"pattern" yaml:"pattern"`
	Texture  string `json:"texture" yaml:"texture"`
	Sleeves  string `json:"sleeves,omitempty" yaml:"sleeves,omitempty"`
	Neckline string `json:"neckline,omitempty" yaml:"neckline,omitempty"`
}

type Input struct {
	Person  Person  `json:"person" yaml:"person"`
	Garment Garment `json:"garment" yaml:"garment"`
}

// Attribute is one named field of the analysis, kept in a fixed order so that
// anything rendered from it is deterministic.
type Attribute struct {
	Name  string
	Value string
}

// IdentityAttributes returns the attributes that pin a person's identity.
func (in Input) IdentityAttributes() []Attribute {
	return []Attribute{
		{Name: "face shape", Value: clean(in.Person.FaceShape)},
		{Name: "skin tone", Value: clean(in.Person.SkinTone)},
		{Name: "hair", Value: joinNonEmpty(" ", in.Person.HairColor, in.Person.HairStyle)},
	}
}

// BodyAttributes returns build and pose.
func (in Input) BodyAttributes() []Attribute {
	return []Attribute{
		{Name: "build", Value: clean(in.Person.Build)},
		{Name: "pose", Value: clean(in.Person.Pose)},
	}
}

// GarmentAttributes returns type, color, pattern and texture.
func (in Input) GarmentAttributes() []Attribute {
	return []Attribute{
		{Name: "type", Value: clean(in.Garment.Type)},
		{Name: "color", Value: clean(in.Garment.Color)},
		{Name: "pattern", Value: clean(in.Garment.Pattern)},
		{Name: "texture", Value: clean(in.Garment.Texture)},
	}
}

// Present counts attributes with a non-empty value.
func Present(attrs []Attribute) int {
	n := 0
	for _, a := range attrs {
		if a.Value != "" {
			n++
		}
	}
	return n
}

// GarmentSummary renders the garment as a short phrase, e.g.
// "navy striped cotton t-shirt". Empty when nothing is known.
func (in Input) GarmentSummary() string {
	g := in.Garment
	return joinNonEmpty(" ", g.Color, g.Pattern, g.Texture, g.Type)
}

// PersonSummary renders the person as a short neutral phrase.
func (in Input) PersonSummary() string {
	p := in.Person
	var parts []string
	if v := clean(p.Build); v != "" {
		parts = append(parts, v+" build")
	}
	if v := clean(p.SkinTone); v != "" {
		parts = append(parts, v+" skin tone")
	}
	if v := joinNonEmpty(" ", p.HairColor, p.HairStyle); v != "" {
		parts = append(parts, v+" hair")
	}
	if v := clean(p.FaceShape); v != "" {
		parts = append(parts, v+" face shape")
	}
	return strings.Join(parts, ", ")
}

// IsZero reports whether no attribute at all is set.
func (in Input) IsZero() bool {
	return Present(in.IdentityAttributes())+Present(in.BodyAttributes())+Present(in.GarmentAttributes()) == 0
}

// Fingerprint returns a stable hash of the normalized input, used as a cache key.
func (in Input) Fingerprint() string {
	norm := Input{
		Person: Person{
			FaceShape:        lower(in.Person.FaceShape),
			SkinTone:         lower(in.Person.SkinTone),
			HairColor:        lower(in.Person.HairColor),
			HairStyle:        lower(in.Person.HairStyle),
			Build:            lower(in.Person.Build),
			Pose:             lower(in.Person.Pose),
			GenderExpression: lower(in.Person.GenderExpression),
		},
		Garment: Garment{
			Type:     lower(in.Garment.Type),
			Color:    lower(in.Garment.Color),
			Pattern:  lower(in.Garment.Pattern),
			Texture:  lower(in.Garment.Texture),
			Sleeves:  lower(in.Garment.Sleeves),
			Neckline: lower(in.Garment.Neckline),
		},
	}
	raw, _ := json.Marshal(norm)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lower(s string) string {
	return strings.ToLower(clean(s))
}

func joinNonEmpty(sep string, values ...string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = clean(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
