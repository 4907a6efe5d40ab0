package llm

import (
	"strings"

	"github.com/joseph-ayodele/video-insights/constants"
)

// WithInput appends the material a prompt refers to, separated by a blank line.
func WithInput(prompt, input string) string {
	prompt = strings.TrimSpace(prompt)
	input = strings.TrimSpace(input)
	if input == "" {
		return prompt
	}
	return prompt + "\n\n" + input
}

// NormalizeFlag maps a free-text yes/no answer onto the literal True/False
// values stored in tables. Anything mentioning "true" counts as True.
func NormalizeFlag(answer string) string {
	if strings.Contains(strings.ToLower(answer), "true") {
		return constants.FlagTrue
	}
	return constants.FlagFalse
}

// CleanTags trims whitespace, quotes and a trailing period off each tag and
// drops empties, keeping the comma-separated form.
func CleanTags(raw string) string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"'`)
		p = strings.TrimSuffix(p, ".")
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// IsNoContent reports whether a vision answer means "nothing readable".
func IsNoContent(text string) bool {
	t := strings.Trim(strings.TrimSpace(text), ".")
	return t == "" || strings.EqualFold(t, constants.NoContentSentinel) || strings.EqualFold(t, "NA")
}
