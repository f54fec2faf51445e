package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

var bannedVerbs = []string{
	"add", "change", "alter", "modify", "transform", "adjust",
	"replace", "remove", "reposition", "rotate", "tilt",
}

const protectedNouns = `(faces?|bod(?:y|ies)|anatomy|poses?|expressions?|skin|hair|persons?|people|subjects?|identity|identities)`

// A leading negation is consumed with the verb: "never alter the face" becomes
// "preserve the face", not "never preserve the face".
const negation = `(?:(?:do\s+not|don't|never|must\s+not|should\s+not|cannot|can't)\s+)?`

var sweepPattern = buildSweepPattern()

func buildSweepPattern() *regexp.Regexp {
	verbs := make([]string, 0, len(bannedVerbs))
	for _, v := range bannedVerbs {
		verbs = append(verbs, inflections(v))
	}
	expr := `(?i)\b` + negation + `(?:` + strings.Join(verbs, "|") + `)\s+(` + determiners + `)` + protectedNouns + `\b`
	return regexp.MustCompile(expr)
}

// Sweep rewrites every banned verb applied to a protected noun into
// "preserve", keeping the determiner and noun. It runs on fully assembled
// text regardless of how the parts were sanitized.
func Sweep(text string) (string, []string) {
	text = Normalize(text)
	matches := sweepPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	warnings := make([]string, 0, len(matches))
	for _, m := range matches {
		warnings = append(warnings, fmt.Sprintf("swept %q to %q", m, sweepPattern.ReplaceAllString(m, "preserve ${1}${2}")))
	}
	return sweepPattern.ReplaceAllString(text, "preserve ${1}${2}"), warnings
}

// HasBannedPair reports whether Sweep would change text.
func HasBannedPair(text string) bool {
	return sweepPattern.MatchString(Normalize(text))
}
