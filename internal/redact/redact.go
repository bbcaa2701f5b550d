// Package redact strips personal data from text bound for the provider or a
// telemetry export.
package redact

import (
	"fmt"
	"regexp"
)

// Level selects how aggressively text is redacted.
type Level string

const (
	LevelNone    Level = "none"
	LevelMinimal Level = "minimal"
	LevelStrict  Level = "strict"
)

// ParseLevel validates a level string.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelNone, LevelMinimal, LevelStrict:
		return Level(s), nil
	}
	return "", fmt.Errorf("invalid redaction level %q (use none, minimal, strict)", s)
}

var (
	// Email locals often contain symbols that break \b, so anchor on whitespace.
	emailRE     = regexp.MustCompile(`(?i)(^|\s)[\w.+-]+@[\w-]+\.[\w.-]+(\s|$)`)
	urlRE       = regexp.MustCompile(`\bhttps?://\S+`)
	longDigitRE = regexp.MustCompile(`\b\d{7,}\b`)
)

// Result is redacted text plus whether anything was removed.
type Result struct {
	Text     string
	Redacted bool
}

// Apply redacts text per the given level. Deterministic; no dependencies.
func Apply(text string, level Level) Result {
	if level == LevelNone {
		return Result{Text: text}
	}

	out := text
	redacted := false

	next := emailRE.ReplaceAllString(out, "${1}[REDACTED_EMAIL]${2}")
	redacted = redacted || next != out
	out = next

	next = urlRE.ReplaceAllString(out, "[REDACTED_URL]")
	redacted = redacted || next != out
	out = next

	if level == LevelStrict {
		next = longDigitRE.ReplaceAllString(out, "[REDACTED_NUMBER]")
		redacted = redacted || next != out
		out = next
	}

	return Result{Text: out, Redacted: redacted}
}
