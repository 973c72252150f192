package scoring

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Meta description length bounds, in characters.
const (
	DescriptionMinLength = 120
	DescriptionMaxLength = 165
)

// Title length bounds, in characters.
const (
	TitleMinLength = 30
	TitleMaxLength = 60
)

// callToActionWords is matched case-insensitively as substrings.
var callToActionWords = []string{
	"learn", "discover", "find", "get", "try", "buy", "shop", "explore",
	"start", "download", "contact", "call", "sign up", "join", "book",
	"order", "read more",
}

// PrimaryKeyword returns the first dot-delimited label of the URL's host,
// lowercased. It returns "" when the URL has no host.
func PrimaryKeyword(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	label, _, _ := strings.Cut(host, ".")
	return label
}

// HasCallToAction reports whether text contains any call-to-action word.
func HasCallToAction(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range callToActionWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// ScoreDescription applies the meta description rubric. An empty
// description scores 0 and skips every other rule.
func ScoreDescription(content, keyword string) MetaTagAnalysis {
	length := utf8.RuneCountInString(content)
	analysis := MetaTagAnalysis{
		Content:         content,
		Length:          length,
		HasKeyword:      containsFold(content, keyword),
		HasCallToAction: HasCallToAction(content),
		Recommendations: []string{},
	}
	if strings.TrimSpace(content) == "" {
		analysis.Score = 0
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("Add a meta description between %d and %d characters that summarizes the page.",
				DescriptionMinLength, DescriptionMaxLength))
		return analysis
	}

	score := 100
	if length < DescriptionMinLength {
		score -= 20
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("Meta description is too short (%d characters); aim for at least %d.", length, DescriptionMinLength))
	}
	if length > DescriptionMaxLength {
		score -= 10
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("Meta description is too long (%d characters); search results truncate after about %d.", length, DescriptionMaxLength))
	}
	if keyword != "" && !analysis.HasKeyword {
		score -= 30
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("Include the primary keyword %q in the meta description.", keyword))
	}
	if !analysis.HasCallToAction {
		score -= 30
		analysis.Recommendations = append(analysis.Recommendations,
			"Add a call to action (for example \"learn more\") to the meta description.")
	}
	analysis.Score = clamp(score)
	return analysis
}

// ScoreTitle gives 100 to titles within the length bounds and 50 otherwise.
func ScoreTitle(content, keyword string) MetaTagAnalysis {
	length := utf8.RuneCountInString(content)
	analysis := MetaTagAnalysis{
		Content:         content,
		Length:          length,
		HasKeyword:      containsFold(content, keyword),
		HasCallToAction: HasCallToAction(content),
		Score:           100,
		Recommendations: []string{},
	}
	switch {
	case length < TitleMinLength:
		analysis.Score = 50
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("Title is too short (%d characters); aim for %d to %d.", length, TitleMinLength, TitleMaxLength))
	case length > TitleMaxLength:
		analysis.Score = 50
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("Title is too long (%d characters); keep it under %d.", length, TitleMaxLength))
	}
	return analysis
}

func containsFold(text, sub string) bool {
	if sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(sub))
}
