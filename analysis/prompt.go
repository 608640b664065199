package analysis

import (
	"fmt"
	"unicode/utf8"

	"github.com/c360studio/agora/governance"
)

const systemPrompt = `You are an expert DAO governance analyst. Analyze proposals for:

1. RISK LEVEL (low/medium/high/critical)
2. RISK FACTORS (specific concerns list)
3. SENTIMENT (-1.0 to +1.0 scale)
4. KEY POINTS (3-5 main items)
5. IMPACT ESTIMATION
6. TREASURY IMPACT (direct USD outflow, 0 if none)
7. CONFIDENCE (0.0-1.0)

Respond in valid JSON format only.`

const userPromptTemplate = `Analyze this DAO governance proposal:

**DAO**: %s
**Title**: %s
**Description**: %s

Respond with this exact JSON structure:
{
  "risk_level": "low|medium|high|critical",
  "risk_factors": ["factor1", "factor2"],
  "sentiment": -1.0 to 1.0,
  "key_points": ["point1", "point2", "point3"],
  "estimated_impact": "brief impact description",
  "treasury_impact_usd": 0,
  "confidence": 0.0 to 1.0,
  "rationale": "brief reasoning"
}`

// maxBodyChars bounds the proposal text included in the prompt. Long bodies
// add cost without improving classification.
const maxBodyChars = 8000

// BuildMessages constructs the chat messages for analyzing a proposal.
func BuildMessages(p *governance.Proposal) []Message {
	body := p.Body
	if len(body) > maxBodyChars {
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := maxBodyChars
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "\n[truncated]"
	}
	if body == "" {
		body = "(no description provided)"
	}

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(userPromptTemplate, p.DAO, p.Title, body)},
	}
}
