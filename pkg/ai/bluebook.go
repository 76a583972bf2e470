package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const bluebookPrompt = `You are analyzing a crop of a Blue Book internal assessment sheet. This crop contains exactly ONE Blue Book.

The image contains the printed form fields (USN, COURSE CODE & NAME, marks grid) and handwritten student data.

Your task:
1. Locate the field "USN" and read the student registration number.
2. Locate "COURSE CODE & NAME" and extract ONLY the subject code (e.g., CS533, 21CS34).
3. Locate the internal marks grid and extract the marks for T1 and T2.

Return the result strictly in this JSON structure:

{
  "usn": "...",
  "subject_code": "...",
  "cie_marks": {
    "T1": {
      "Q1": { "a": "...", "b": "...", "c": "...", "d": "..." },
      "Q2": { "a": "...", "b": "...", "c": "...", "d": "..." },
      "Q3": { "a": "...", "b": "...", "c": "...", "d": "..." }
    },
    "T2": {
      "Q1": { "a": "...", "b": "...", "c": "...", "d": "..." },
      "Q2": { "a": "...", "b": "...", "c": "...", "d": "..." },
      "Q3": { "a": "...", "b": "...", "c": "...", "d": "..." }
    }
  }
}

If any value is missing, use null. Return ONLY valid JSON, no explanations.`

// ExtractBluebook reads cover-page fields from a booklet image crop using
// the vision model.
func (c *Client) ExtractBluebook(ctx context.Context, image []byte, mimeType string) (BluebookFields, error) {
	if len(image) == 0 {
		return BluebookFields{}, fmt.Errorf("%w: empty image", ErrExtractionFailed)
	}

	raw, err := c.complete(ctx, "extract_bluebook", c.cfg.VisionModel, true, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: bluebookPrompt},
				attachmentPart(mimeType, image),
			},
		},
	})
	if err != nil {
		return BluebookFields{}, err
	}

	return ParseBluebookFields(raw)
}

// ParseBluebookFields salvages the field object from a model reply.
func ParseBluebookFields(raw string) (BluebookFields, error) {
	payload, err := SalvageObject(raw)
	if err != nil {
		return BluebookFields{}, err
	}

	var fields BluebookFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return BluebookFields{}, malformed(raw, fmt.Errorf("decode bluebook fields: %v", err))
	}

	fields.USN = strings.TrimSpace(fields.USN)
	fields.SubjectCode = strings.TrimSpace(fields.SubjectCode)
	return fields, nil
}
