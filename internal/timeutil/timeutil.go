// Package timeutil centralises the UTC/IST time handling used across the
// API. All gates and stored timestamps are UTC; the fixed IST offset exists
// for display and for interpreting naive CLI input only.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// IST is the fixed UTC+5:30 zone used for human-facing timestamps.
var IST = time.FixedZone("IST", 5*3600+30*60)

const deadlineInputLayout = "2006-01-02 15:04"

// FormatIST renders a UTC instant in the display zone.
func FormatIST(t time.Time) string {
	return t.In(IST).Format("2006-01-02 15:04:05 IST")
}

// ParseDeadlineIST interprets a naive "YYYY-MM-DD HH:MM" string as IST wall
// time and converts it to UTC. An empty input means no deadline.
func ParseDeadlineIST(input string) (*time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	parsed, err := time.ParseInLocation(deadlineInputLayout, input, IST)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline %q: use YYYY-MM-DD HH:MM (e.g. 2025-12-01 23:59)", input)
	}

	utc := parsed.UTC()
	return &utc, nil
}
