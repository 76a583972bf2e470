package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// reservedResponseKeys never act as score candidates; they carry the overall
// feedback text.
var reservedResponseKeys = map[string]struct{}{
	"overall_summary":  {},
	"overall_feedback": {},
	"feedback":         {},
}

// GradeReport grades one report against the criteria list. The document is
// attached to the model call when possible; otherwise its extracted text is
// inlined in the prompt. An empty extraction aborts before any model call.
func (c *Client) GradeReport(ctx context.Context, report Document, criteria []Criterion) (GradeResult, error) {
	prompt := gradingPrompt(criteria)

	var (
		raw string
		err error
	)

	if attachable(report) {
		raw, err = c.complete(ctx, "grade_report", c.cfg.Model, true, []openai.ChatCompletionMessage{
			userMessageWithAttachment(prompt, report),
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("file", report.Name).Msg("attached grading call failed, falling back to local text")
		}
	}

	if raw == "" {
		text, textErr := c.documentText(report)
		if textErr != nil {
			return GradeResult{}, textErr
		}
		raw, err = c.complete(ctx, "grade_report", c.cfg.Model, true, []openai.ChatCompletionMessage{
			userMessage(prompt + "\n\nProject report:\n" + text),
		})
		if err != nil {
			return GradeResult{}, err
		}
	}

	return ParseGradeResult(raw, criteria)
}

func gradingPrompt(criteria []Criterion) string {
	rubricJSON, _ := json.MarshalIndent(criteria, "", "  ")

	keys := make([]string, 0, len(criteria)+1)
	for _, criterion := range criteria {
		if criterion.Key != "" {
			keys = append(keys, fmt.Sprintf("%q", criterion.Key))
		}
	}
	keys = append(keys, `"overall_summary"`)

	builder := strings.Builder{}
	builder.WriteString("You are an expert academic evaluator.\n\n")
	builder.WriteString("Use the EXACT rubric JSON below (do NOT modify keys).\nRubrics JSON:\n")
	builder.Write(rubricJSON)
	builder.WriteString("\n\nTask:\n")
	builder.WriteString("- For each rubric key, return \"Score: <number>/10 — <one-line feedback>\"\n")
	builder.WriteString("- Include \"overall_summary\"\n")
	builder.WriteString("- Return ONLY a JSON object with keys: ")
	builder.WriteString(strings.Join(keys, ", "))
	return builder.String()
}

// ParseGradeResult salvages the score object from a model reply and computes
// the aggregate. The total is a 2-decimal rounded SUM of matched scores, not
// an average; criteria the model skipped contribute nothing.
func ParseGradeResult(raw string, criteria []Criterion) (GradeResult, error) {
	payload, err := SalvageObject(raw)
	if err != nil {
		return GradeResult{}, err
	}

	var response map[string]json.RawMessage
	if err := json.Unmarshal(payload, &response); err != nil {
		return GradeResult{}, malformed(raw, fmt.Errorf("decode grade object: %v", err))
	}

	scores, total := aggregateScores(criteria, response)

	return GradeResult{
		Scores:          scores,
		OverallFeedback: overallFeedback(response),
		TotalScore:      total,
		MaxScore:        float64(len(criteria)) * 10,
		RawPreview:      preview(raw),
	}, nil
}

// aggregateScores matches each criterion against the response keys, in order
// of preference: exact key, exact title, then containment of the key or
// title inside a returned key. Response keys are visited in sorted order so
// fuzzy matches are deterministic.
func aggregateScores(criteria []Criterion, response map[string]json.RawMessage) ([]CriterionScore, float64) {
	responseKeys := make([]string, 0, len(response))
	for key := range response {
		if _, reserved := reservedResponseKeys[strings.ToLower(strings.TrimSpace(key))]; reserved {
			continue
		}
		responseKeys = append(responseKeys, key)
	}
	sort.Strings(responseKeys)

	scores := make([]CriterionScore, 0, len(criteria))
	sum := 0.0

	for _, criterion := range criteria {
		entry := CriterionScore{Key: criterion.Key, Title: criterion.Title}

		if matchKey, ok := matchResponseKey(criterion, responseKeys); ok {
			score, feedback, scored := valueScore(response[matchKey])
			entry.Matched = scored
			entry.Feedback = feedback
			if scored {
				entry.Score = score
				sum += score
			}
		}

		scores = append(scores, entry)
	}

	return scores, math.Round(sum*100) / 100
}

func matchResponseKey(criterion Criterion, responseKeys []string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(criterion.Key))
	title := strings.ToLower(strings.TrimSpace(criterion.Title))

	for _, candidate := range responseKeys {
		if key != "" && strings.ToLower(strings.TrimSpace(candidate)) == key {
			return candidate, true
		}
	}
	for _, candidate := range responseKeys {
		if title != "" && strings.ToLower(strings.TrimSpace(candidate)) == title {
			return candidate, true
		}
	}
	for _, candidate := range responseKeys {
		lowered := strings.ToLower(candidate)
		if key != "" && strings.Contains(lowered, key) {
			return candidate, true
		}
		if title != "" && strings.Contains(lowered, title) {
			return candidate, true
		}
	}
	return "", false
}

// valueScore extracts a numeric score and feedback from one response value,
// which may be a formatted string or a nested {score, feedback} object.
func valueScore(raw json.RawMessage) (float64, string, bool) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		score, ok := ExtractNumericScore(text)
		return score, text, ok
	}

	var nested struct {
		Score    *float64 `json:"score"`
		Feedback string   `json:"feedback"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Score != nil {
		return *nested.Score, nested.Feedback, true
	}

	return 0, "", false
}

func overallFeedback(response map[string]json.RawMessage) string {
	for _, key := range []string{"overall_summary", "overall_feedback", "feedback"} {
		if raw, ok := response[key]; ok {
			var text string
			if err := json.Unmarshal(raw, &text); err == nil {
				return text
			}
		}
	}
	return ""
}
