package guide

import (
	"regexp"
	"strings"
)

// redactedToken replaces flag values in anything shown to or received from
// the model.
const redactedToken = "[REDACTED]"

// flagShaped matches flag-formatted tokens like FLAG{...} or flag{...}.
// Used as a backstop on model output after literal redaction.
var flagShaped = regexp.MustCompile(`(?i)\bflag\{[^}]*\}`)

// Redact replaces every occurrence of each secret with the redaction token.
// Matching is exact-substring and case-sensitive: flag values are machine
// placed verbatim, so the literal is the only form that can leak from
// scenario-derived text.
func Redact(text string, secrets []string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		text = strings.ReplaceAll(text, s, redactedToken)
	}
	return text
}

// LeaksFlag reports whether text still contains a flag-shaped token after
// redaction. A true result means the model reconstructed or invented a flag
// value and the response must be discarded.
func LeaksFlag(text string) bool {
	return flagShaped.MatchString(text)
}
