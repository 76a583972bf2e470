package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/edulens/edulens-api/pkg/extract"
)

// fallbackTextLimit caps inline document text so a large PDF cannot blow the
// prompt budget.
const fallbackTextLimit = 50000

const rubricPrompt = `You are an academic evaluator. Read this rubric document carefully.

Extract ALL grading criteria and return them as a JSON array. Each criterion must have:
- "title": brief name of the criterion
- "description": what is being evaluated
- "max_score": maximum points (default 10)
- "key": a unique, URL-safe key derived from the title

Example format:
[
  {
    "title": "Code Quality",
    "description": "Assess code organization, naming conventions, and comments",
    "max_score": 10,
    "key": "code_quality"
  }
]

Return ONLY the JSON array, no additional text.`

// ExtractCriteria sends the rubric document to the model and parses the
// criteria array out of its reply. Criteria the model returns without a key
// get one derived from the title. The call persists nothing.
func (c *Client) ExtractCriteria(ctx context.Context, doc Document) ([]Criterion, error) {
	var (
		raw string
		err error
	)

	if attachable(doc) {
		raw, err = c.complete(ctx, "extract_criteria", c.cfg.Model, false, []openai.ChatCompletionMessage{
			userMessageWithAttachment(rubricPrompt, doc),
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("file", doc.Name).Msg("attached rubric extraction failed, falling back to local text")
		}
	}

	if raw == "" {
		text, textErr := c.documentText(doc)
		if textErr != nil {
			return nil, textErr
		}
		raw, err = c.complete(ctx, "extract_criteria", c.cfg.Model, false, []openai.ChatCompletionMessage{
			userMessage(rubricPrompt + "\n\nRubric document:\n" + text),
		})
		if err != nil {
			return nil, err
		}
	}

	return ParseCriteria(raw)
}

// ParseCriteria salvages and validates the criteria array from a model reply.
func ParseCriteria(raw string) ([]Criterion, error) {
	payload, err := SalvageArray(raw)
	if err != nil {
		return nil, err
	}

	var criteria []Criterion
	if err := json.Unmarshal(payload, &criteria); err != nil {
		return nil, malformed(raw, fmt.Errorf("decode criteria: %v", err))
	}
	if len(criteria) == 0 {
		return nil, malformed(raw, fmt.Errorf("criteria array is empty"))
	}

	for i := range criteria {
		criteria[i].Title = strings.TrimSpace(criteria[i].Title)
		if criteria[i].Title == "" {
			return nil, malformed(raw, fmt.Errorf("criterion %d has no title", i))
		}
		if criteria[i].Key == "" {
			criteria[i].Key = SlugKey(criteria[i].Title)
		}
		if criteria[i].MaxScore <= 0 {
			criteria[i].MaxScore = 10
		}
	}

	return criteria, nil
}

// SlugKey derives a stable criterion key from its title: lower-cased,
// whitespace collapsed to underscores, slashes removed, hyphens turned into
// underscores.
func SlugKey(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.Join(strings.Fields(s), "_")
}

// RubricContentID hashes the canonical JSON form of a criteria list. Keys
// are marshalled in sorted order, so the identifier is stable across
// key-order permutations of the same content.
func RubricContentID(criteria []Criterion) string {
	items := make([]map[string]any, 0, len(criteria))
	for _, criterion := range criteria {
		items = append(items, map[string]any{
			"key":         criterion.Key,
			"title":       criterion.Title,
			"description": criterion.Description,
			"max_score":   criterion.MaxScore,
		})
	}

	payload, _ := json.Marshal(items)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// documentText produces the inline-text fallback for a document that could
// not be attached. An empty result is fatal: grading or extraction must
// never run against an empty document.
func (c *Client) documentText(doc Document) (string, error) {
	text, err := extract.Text(doc.Bytes, doc.MIME)
	if err != nil {
		c.logger.Warn().Err(err).Str("file", doc.Name).Msg("local text extraction failed")
		text = ""
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrExtractionFailed, doc.Name)
	}
	if len(text) > fallbackTextLimit {
		text = text[:fallbackTextLimit] + "\n\n[document truncated due to length]"
	}
	return text, nil
}
