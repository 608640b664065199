package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain object",
			content: `{"risk_level": "low"}`,
			want:    `{"risk_level": "low"}`,
		},
		{
			name:    "markdown code block",
			content: "Here is my analysis:\n```json\n{\"risk_level\": \"low\"}\n```\nDone.",
			want:    `{"risk_level": "low"}`,
		},
		{
			name:    "code block without language tag",
			content: "```\n{\"risk_level\": \"medium\"}\n```",
			want:    `{"risk_level": "medium"}`,
		},
		{
			name:    "surrounding prose",
			content: `The proposal looks fine. {"risk_level": "low", "confidence": 0.9} Hope that helps!`,
			want:    `{"risk_level": "low", "confidence": 0.9}`,
		},
		{
			name:    "no json at all",
			content: "I cannot analyze this proposal.",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.content))
		})
	}
}

func TestExtractJSON_TrailingComma(t *testing.T) {
	content := `{"risk_factors": ["a", "b",], "confidence": 0.8,}`
	got := ExtractJSON(content)

	var parsed map[string]any
	assert.NoError(t, json.Unmarshal([]byte(got), &parsed))
	assert.Equal(t, 0.8, parsed["confidence"])
}

func TestExtractJSON_Comments(t *testing.T) {
	content := `{
  "risk_level": "low", // looks safe
  "url": "http://example.com/doc" // not a comment inside the string
}`
	got := ExtractJSON(content)

	var parsed map[string]any
	assert.NoError(t, json.Unmarshal([]byte(got), &parsed))
	assert.Equal(t, "low", parsed["risk_level"])
	assert.Equal(t, "http://example.com/doc", parsed["url"])
}
