package preset

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"lookbook-ai/internal/sanitize"
)

var (
	ErrNotFound = errors.New("preset not found")
	ErrRejected = errors.New("preset rejected")
)

//go:embed presets.yaml
var builtinYAML []byte

type fileConfig struct {
	Version string       `yaml:"version"`
	Presets []filePreset `yaml:"presets"`
}

type filePreset struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	Category   Category   `yaml:"category"`
	Positive   []string   `yaml:"positive"`
	Negative   []string   `yaml:"negative"`
	Deviation  *float64   `yaml:"deviation"`
	Background string     `yaml:"background"`
	Lighting   Lighting   `yaml:"lighting"`
	Camera     Camera     `yaml:"camera"`
	Scenarios  []Scenario `yaml:"scenarios"`
}

// Rejection records a preset excluded at load because its modifiers were unsafe.
type Rejection struct {
	ID       string   `json:"id"`
	Reason   string   `json:"reason"`
	Warnings []string `json:"warnings,omitempty"`
}

type entry struct {
	preset    Preset
	deviation *float64
}

// Catalog is immutable once loaded and safe for concurrent readers.
type Catalog struct {
	version  string
	entries  []entry
	index    map[string]int
	rejected []Rejection
	rejectIx map[string]int
}

var (
	builtinOnce sync.Once
	builtin     *Catalog
	builtinErr  error
)

// Builtin returns the catalog embedded in the binary, parsed on first use.
func Builtin() (*Catalog, error) {
	builtinOnce.Do(func() {
		builtin, builtinErr = Load(builtinYAML)
	})
	return builtin, builtinErr
}

// LoadFile reads a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset file: %w", err)
	}
	c, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load parses and validates a YAML catalog. Structural problems (bad YAML,
// missing or duplicate ids, unknown categories) are errors. Presets whose
// modifier lists contain a forbidden phrase are excluded and listed by Rejected.
func Load(data []byte) (*Catalog, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse preset catalog: %w", err)
	}
	if len(cfg.Presets) == 0 {
		return nil, errors.New("preset catalog is empty")
	}

	c := &Catalog{
		version:  strings.TrimSpace(cfg.Version),
		index:    make(map[string]int, len(cfg.Presets)),
		rejectIx: make(map[string]int),
	}
	if c.version == "" {
		c.version = "unversioned"
	}

	seen := make(map[string]struct{}, len(cfg.Presets))
	for i, fp := range cfg.Presets {
		id := strings.TrimSpace(fp.ID)
		if id == "" {
			return nil, fmt.Errorf("preset #%d: missing id", i+1)
		}
		if id == NeutralID {
			return nil, fmt.Errorf("preset %q: id is reserved", id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("preset %q: duplicate id", id)
		}
		seen[id] = struct{}{}
		if !fp.Category.Valid() {
			return nil, fmt.Errorf("preset %q: unknown category %q", id, fp.Category)
		}

		if rej, unsafe := checkModifiers(id, fp.Positive, fp.Negative); unsafe {
			c.rejectIx[id] = len(c.rejected)
			c.rejected = append(c.rejected, rej)
			continue
		}

		p := Preset{
			ID:                id,
			Name:              strings.TrimSpace(fp.Name),
			Category:          fp.Category,
			PositiveModifiers: trimAll(fp.Positive),
			NegativeModifiers: trimAll(fp.Negative),
			Background:        strings.TrimSpace(fp.Background),
			Lighting:          fp.Lighting,
			Camera:            fp.Camera,
		}
		if p.Name == "" {
			p.Name = id
		}
		for j, sc := range fp.Scenarios {
			sc.ID = strings.TrimSpace(sc.ID)
			if sc.ID == "" {
				sc.ID = fmt.Sprintf("%s-%02d", id, j+1)
			}
			sc.PresetID = id
			p.Scenarios = append(p.Scenarios, sc)
		}

		c.index[id] = len(c.entries)
		c.entries = append(c.entries, entry{preset: p, deviation: fp.Deviation})
	}
	return c, nil
}

func checkModifiers(id string, positive, negative []string) (Rejection, bool) {
	pos := sanitize.SanitizeList(positive)
	neg := sanitize.SanitizeList(negative)
	if !pos.UnsafeFound && !neg.UnsafeFound {
		return Rejection{}, false
	}
	rej := Rejection{ID: id, Reason: "modifier list contains a forbidden phrase"}
	for _, w := range pos.Warnings {
		rej.Warnings = append(rej.Warnings, "positive "+w)
	}
	for _, w := range neg.Warnings {
		rej.Warnings = append(rej.Warnings, "negative "+w)
	}
	return rej, true
}

func (c *Catalog) Version() string {
	return c.version
}

// Get returns a copy of the preset with its deviation clamped.
func (c *Catalog) Get(id string) (Preset, error) {
	id = strings.TrimSpace(id)
	if i, ok := c.index[id]; ok {
		return c.read(i), nil
	}
	if _, ok := c.rejectIx[id]; ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrRejected, id)
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// ListByCategory returns presets of one category in catalog order.
func (c *Catalog) ListByCategory(cat Category) []Preset {
	var out []Preset
	for i, e := range c.entries {
		if e.preset.Category == cat {
			out = append(out, c.read(i))
		}
	}
	return out
}

// ListAll returns every accepted preset in catalog order.
func (c *Catalog) ListAll() []Preset {
	out := make([]Preset, 0, len(c.entries))
	for i := range c.entries {
		out = append(out, c.read(i))
	}
	return out
}

// Rejected returns the presets excluded at load.
func (c *Catalog) Rejected() []Rejection {
	out := make([]Rejection, len(c.rejected))
	for i, r := range c.rejected {
		r.Warnings = append([]string(nil), r.Warnings...)
		out[i] = r
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

func (c *Catalog) read(i int) Preset {
	e := c.entries[i]
	p := e.preset.Clone()
	p.Deviation = ClampStoredDeviation(e.deviation)
	return p
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
