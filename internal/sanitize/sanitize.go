// Package sanitize detects and neutralizes instruction text that would ask an
// image model to change a protected attribute (face, body, pose, identity).
//
// Two independent layers exist. The rule table rewrites a closed set of
// forbidden phrases to safe equivalents and drops text that stays unsafe after
// rewriting. Sweep is the last-resort pass over assembled output that turns any
// banned verb aimed at a protected noun into "preserve".
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Rule maps one forbidden phrase to its safe replacement.
type Rule struct {
	Phrase      string
	Replacement string
	Pattern     *regexp.Regexp
}

// Result is the outcome of sanitizing a single string.
type Result struct {
	Text     string
	Unsafe   bool
	Dropped  bool
	Warnings []string
}

// ListResult is the outcome of sanitizing an ordered list of strings.
// Dropped entries are omitted from Items; order is otherwise preserved.
type ListResult struct {
	Items       []string
	UnsafeFound bool
	Warnings    []string
}

// Sanitizer applies an ordered rule table. It is immutable and safe for
// concurrent use.
type Sanitizer struct {
	rules []Rule
}

// determiners that may sit between a verb and a protected noun, up to two
// deep as in "the subject's face".
const determiners = `(?:(?:the|a|an|her|his|their|its|my|your|our|(?:subject|person|model)['’]s)\s+){0,2}`

// NewRule compiles a verb+noun phrase ("change pose") or a bare verb
// ("reshape") into a case-insensitive, whitespace-tolerant rule. The leading
// verb also matches its inflected forms.
func NewRule(phrase, replacement string) Rule {
	return compileRule(phrase, replacement, true)
}

// NewLiteralRule is NewRule without verb inflection, for phrases led by an
// adjective such as "new pose".
func NewLiteralRule(phrase, replacement string) Rule {
	return compileRule(phrase, replacement, false)
}

func compileRule(phrase, replacement string, inflect bool) Rule {
	words := strings.Fields(strings.ToLower(phrase))
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}

	expr := `$^`
	if len(quoted) > 0 {
		head := quoted[0]
		if inflect {
			head = inflections(head)
		}
		expr = `(?i)\b` + head
		if len(quoted) > 1 {
			expr += `\s+` + determiners + strings.Join(quoted[1:], `\s+`)
		}
		expr += `\b`
	}

	return Rule{
		Phrase:      strings.Join(words, " "),
		Replacement: replacement,
		Pattern:     regexp.MustCompile(expr),
	}
}

// DefaultRules is the fixed forbidden-phrase table. Longer phrases come first
// so that "reshape body" is reported as such before the bare "reshape" rule.
func DefaultRules() []Rule {
	return []Rule{
		NewRule("change pose", "same pose"),
		NewLiteralRule("new pose", "same pose"),
		NewLiteralRule("different pose", "same pose"),
		NewRule("alter pose", "same pose"),
		NewRule("alter face", "same face"),
		NewRule("change face", "same face"),
		NewRule("modify face", "same face"),
		NewRule("modify body", "same body"),
		NewRule("change body", "same body"),
		NewRule("reshape body", "same body"),
		NewRule("alter body", "same body"),
		NewRule("adjust expression", "same expression"),
		NewRule("change expression", "same expression"),
		NewRule("change identity", "same identity"),
		NewRule("change gender", "same gender expression"),
		NewRule("reconstruct", "preserve"),
		NewRule("reshape", "preserve"),
		NewRule("transform", "preserve"),
	}
}

var std = New(DefaultRules())

// New returns a Sanitizer using the given rule table.
func New(rules []Rule) *Sanitizer {
	return &Sanitizer{rules: append([]Rule(nil), rules...)}
}

// Default returns the process-wide sanitizer built from DefaultRules.
func Default() *Sanitizer {
	return std
}

// Sanitize runs the default sanitizer.
func Sanitize(text string) Result {
	return std.Sanitize(text)
}

// SanitizeList runs the default sanitizer over items.
func SanitizeList(items []string) ListResult {
	return std.SanitizeList(items)
}

// ContainsForbidden runs the default sanitizer's check.
func ContainsForbidden(text string) bool {
	return std.ContainsForbidden(text)
}

// Sanitize rewrites every forbidden phrase found in text. If a forbidden phrase
// is still present afterwards the text is dropped entirely.
func (s *Sanitizer) Sanitize(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	out, warnings := s.Rewrite(text)
	res := Result{
		Text:     out,
		Unsafe:   len(warnings) > 0,
		Warnings: warnings,
	}
	if s.ContainsForbidden(out) {
		res.Text = ""
		res.Unsafe = true
		res.Dropped = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("dropped %q: forbidden phrase remains after rewrite", truncate(text, 60)))
	}
	return res
}

// SanitizeList sanitizes each entry. UnsafeFound is set when any entry matched
// a forbidden phrase, whether it was rewritten or dropped.
func (s *Sanitizer) SanitizeList(items []string) ListResult {
	out := ListResult{Items: make([]string, 0, len(items))}
	for i, item := range items {
		r := s.Sanitize(item)
		if r.Unsafe {
			out.UnsafeFound = true
		}
		for _, w := range r.Warnings {
			out.Warnings = append(out.Warnings, fmt.Sprintf("item %d: %s", i+1, w))
		}
		if strings.TrimSpace(r.Text) != "" {
			out.Items = append(out.Items, r.Text)
		}
	}
	return out
}

// Rewrite applies every rule once, in table order, and reports each rewrite.
// Unlike Sanitize it never drops text.
func (s *Sanitizer) Rewrite(text string) (string, []string) {
	out := Normalize(text)
	var warnings []string
	for _, rule := range s.rules {
		if !rule.Pattern.MatchString(out) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("rewrote forbidden phrase %q to %q", rule.Phrase, rule.Replacement))
		out = rule.Pattern.ReplaceAllLiteralString(out, rule.Replacement)
	}
	return out, warnings
}

// ContainsForbidden reports whether any rule matches text.
func (s *Sanitizer) ContainsForbidden(text string) bool {
	text = Normalize(text)
	for _, rule := range s.rules {
		if rule.Pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Phrases returns the canonical forbidden phrases in table order.
func (s *Sanitizer) Phrases() []string {
	out := make([]string, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Phrase)
	}
	return out
}

// Normalize folds compatibility characters (fullwidth letters, ligatures) and
// strips invisible format characters so that obfuscated phrases still match.
func Normalize(text string) string {
	t := transform.Chain(norm.NFKC, runes.Remove(runes.In(unicode.Cf)))
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// inflections expands a lowercase verb into a group matching its common forms.
func inflections(verb string) string {
	forms := []string{verb}
	switch {
	case strings.HasSuffix(verb, "y") && len(verb) > 2:
		stem := strings.TrimSuffix(verb, "y")
		forms = append(forms, stem+"ies", stem+"ied", verb+"ing")
	case strings.HasSuffix(verb, "e"):
		stem := strings.TrimSuffix(verb, "e")
		forms = append(forms, verb+"s", verb+"d", stem+"ing")
	default:
		forms = append(forms, verb+"s", verb+"ed", verb+"ing")
	}
	return `(?:` + strings.Join(forms, "|") + `)`
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
