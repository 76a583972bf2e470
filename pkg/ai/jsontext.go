package ai

import (
	"fmt"
	"regexp"
	"strings"
)

// Models wrap their JSON in Markdown fences, surround it with commentary, or
// use typographic quotes. The helpers below salvage a parseable payload from
// that free text: fenced block first, then a bracket scan, then quote
// normalization and trailing-comma stripping.

const previewLimit = 500

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*\\n?(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	quoteReplacer        = strings.NewReplacer(
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
	)
)

// SalvageArray locates and cleans a JSON array inside free text.
func SalvageArray(raw string) ([]byte, error) {
	return salvage(raw, '[', ']')
}

// SalvageObject locates and cleans a JSON object inside free text.
func SalvageObject(raw string) ([]byte, error) {
	return salvage(raw, '{', '}')
}

func salvage(raw string, opening, closing byte) ([]byte, error) {
	candidate := raw
	if fenced, ok := extractFenced(raw); ok {
		candidate = fenced
	}

	sliced, ok := extractDelimited(candidate, opening, closing)
	if !ok {
		// A fenced block without the wanted delimiters may still hide them
		// in the surrounding text.
		if sliced, ok = extractDelimited(raw, opening, closing); !ok {
			return nil, malformed(raw, fmt.Errorf("no %c...%c payload found", opening, closing))
		}
	}

	cleaned := quoteReplacer.Replace(sliced)
	cleaned = trailingCommaPattern.ReplaceAllString(cleaned, "$1")
	return []byte(cleaned), nil
}

func extractFenced(s string) (string, bool) {
	match := fencePattern.FindStringSubmatch(s)
	if match == nil {
		return "", false
	}
	content := strings.TrimSpace(match[1])
	if content == "" {
		return "", false
	}
	return content, true
}

func extractDelimited(s string, opening, closing byte) (string, bool) {
	start := strings.IndexByte(s, opening)
	end := strings.LastIndexByte(s, closing)
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// malformed wraps ErrMalformedResponse with the cause and a bounded preview
// of the raw reply so callers can diagnose without logging megabytes.
func malformed(raw string, cause error) error {
	return fmt.Errorf("%w: %v (preview: %s)", ErrMalformedResponse, cause, preview(raw))
}

func preview(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= previewLimit {
		return raw
	}
	return raw[:previewLimit] + "..."
}
