package enrich

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	errEmptyResponse = errors.New("empty response")
	errNoJSON        = errors.New("no JSON object found in response")
	errNoSummary     = errors.New("response has no summary")
)

const promptTemplate = `Summarize the following webpage in 2-3 short sentences.
Then generate 3-5 relevant tags.

Return JSON only:
{
  "summary": "text",
  "tags": ["tag1", "tag2"]
}

Title: %s
URL: %s`

// BuildPrompt renders the fixed instruction for one page.
func BuildPrompt(title, url string) string {
	return fmt.Sprintf(promptTemplate, title, url)
}

type modelAnswer struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// ParseResult decodes the model's answer. Surrounding prose or code fences
// are tolerated; the object itself must match the contract exactly.
func ParseResult(text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, errEmptyResponse
	}

	raw, err := extractJSON(text)
	if err != nil {
		return Result{}, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	var ans modelAnswer
	if err := dec.Decode(&ans); err != nil {
		return Result{}, fmt.Errorf("decode model answer: %w", err)
	}

	summary := strings.TrimSpace(ans.Summary)
	if summary == "" {
		return Result{}, errNoSummary
	}

	return Result{
		Summary: summary,
		Tags:    clampTags(ans.Tags),
		Source:  SourceAI,
	}, nil
}

// extractJSON returns the text between the first '{' and the last '}'.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}
