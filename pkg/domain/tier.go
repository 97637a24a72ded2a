package domain

import "strings"

type Tier string

const (
	TierFast Tier = "fast"
	TierDeep Tier = "deep"
)

var tierKeywords = map[Tier][]string{
	TierFast: {"flash", "lite", "-mini", "turbo"},
	TierDeep: {"pro", "deep", "thinking"},
}

// ParseTier maps a human label such as "Gemini 1.5 Flash" to a tier. Labels
// that match no keyword fall back to TierFast.
func ParseTier(label string) Tier {
	label = strings.ToLower(label)
	for _, kw := range tierKeywords[TierDeep] {
		if strings.Contains(label, kw) {
			return TierDeep
		}
	}
	return TierFast
}

// Keywords are the model id substrings typical of the tier.
func (t Tier) Keywords() []string {
	return tierKeywords[t]
}
