package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/seo-auditor/internal/scoring"
)

// MockName identifies the deterministic generator.
const MockName = "mock"

// Mock derives insights from the audit itself. It never fails.
type Mock struct{}

// Name implements Generator.
func (Mock) Name() string { return MockName }

// Generate implements Generator.
func (m Mock) Generate(ctx context.Context, a scoring.ScoredAudit) (scoring.AIInsights, error) {
	if err := ctx.Err(); err != nil {
		return scoring.AIInsights{}, err
	}
	return m.Insights(a), nil
}

// Insights is Generate without the context check.
func (Mock) Insights(a scoring.ScoredAudit) scoring.AIInsights {
	keyword := scoring.PrimaryKeyword(a.URL)
	if keyword == "" {
		keyword = "website"
	}

	var recs []scoring.Recommendation
	if a.Technical.MetaTags.Description.Score < 80 {
		recs = append(recs, scoring.Recommendation{
			Title:       "Improve the meta description",
			Description: joinOr(a.Technical.MetaTags.Description.Recommendations, "Write a 120-165 character description with a call to action."),
			Priority:    "high",
			Category:    "technical",
			Impact:      "Higher click-through rate from search results",
		})
	}
	if a.OnPage.Headers.Score < 100 {
		recs = append(recs, scoring.Recommendation{
			Title:       "Fix the H1 structure",
			Description: joinOr(a.OnPage.Headers.Recommendations, "Use exactly one descriptive H1."),
			Priority:    "medium",
			Category:    "on-page",
			Impact:      "Clearer topic signals for crawlers",
		})
	}
	if a.OnPage.Images.Score < 100 {
		recs = append(recs, scoring.Recommendation{
			Title:       "Add alternative text to images",
			Description: joinOr(a.OnPage.Images.Recommendations, "Describe every meaningful image with alt text."),
			Priority:    "medium",
			Category:    "accessibility",
			Impact:      "Better accessibility and image search visibility",
		})
	}
	if a.Scores.Performance < 80 {
		recs = append(recs, scoring.Recommendation{
			Title:       "Speed up page load",
			Description: fmt.Sprintf("The page loaded in %d ms. Compress images, defer scripts and cache static assets.", a.Technical.PageSpeed.LoadTimeMs),
			Priority:    "high",
			Category:    "performance",
			Impact:      "Improved Core Web Vitals and rankings",
		})
	}
	if len(recs) == 0 {
		recs = append(recs, scoring.Recommendation{
			Title:       "Expand topical content",
			Description: "The fundamentals are in place. Publish supporting pages that target related queries.",
			Priority:    "low",
			Category:    "content",
		})
	}

	return scoring.AIInsights{
		Industry: scoring.Industry{
			Primary:     "General Business",
			SubCategory: "Online Presence",
			Confidence:  0.5,
			Reasoning:   "Classification is a placeholder; no language model was consulted.",
		},
		Recommendations: recs,
		Keywords: []scoring.Keyword{
			{Term: keyword, Relevance: 1, Difficulty: "medium"},
			{Term: keyword + " services", Relevance: 0.8, Difficulty: "medium"},
			{Term: keyword + " reviews", Relevance: 0.6, Difficulty: "low"},
		},
		Summary: fmt.Sprintf("%s scores %d overall with %d recommendation(s); performance %d, on-page %d.",
			a.URL, a.Scores.Overall, len(recs), a.Scores.Performance, a.Scores.OnPage),
	}
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, " ")
}
