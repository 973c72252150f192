// Package scoring turns extracted page signals into 0-100 SEO scores with
// human-readable recommendations. Everything here is pure.
package scoring

import "time"

// ScoredAudit is the read-only view built from one page extraction. AI is
// nil until insights are merged with WithInsights.
type ScoredAudit struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Timestamp time.Time       `json:"timestamp"`
	Technical TechnicalReport `json:"technical"`
	OnPage    OnPageReport    `json:"onPage"`
	AI        *AIInsights     `json:"ai"`
	Scores    Scores          `json:"scores"`
}

// TechnicalReport groups crawlability and performance checks.
type TechnicalReport struct {
	PageSpeed        PageSpeed        `json:"pageSpeed"`
	SSL              CheckResult      `json:"ssl"`
	Canonical        CanonicalCheck   `json:"canonical"`
	Sitemap          CheckResult      `json:"sitemap"`
	Schema           CheckResult      `json:"schema"`
	MobileResponsive CheckResult      `json:"mobileResponsive"`
	MetaTags         MetaTagsAnalysis `json:"metaTags"`
}

// PageSpeed carries desktop and mobile performance scores.
type PageSpeed struct {
	LoadTimeMs    int64         `json:"loadTime"`
	Desktop       int           `json:"desktop"`
	Mobile        int           `json:"mobile"`
	CoreWebVitals CoreWebVitals `json:"coreWebVitals"`
}

// CoreWebVitals are estimated from a single load time.
type CoreWebVitals struct {
	LCP float64 `json:"lcp"`
	FID int     `json:"fid"`
	CLS float64 `json:"cls"`
}

// CheckResult is the shape shared by the simple presence checks.
type CheckResult struct {
	Passed bool     `json:"passed"`
	Score  int      `json:"score"`
	Issues []string `json:"issues"`
}

// CanonicalCheck reports the canonical URL the page is assumed to declare.
type CanonicalCheck struct {
	CheckResult
	URL string `json:"url"`
}

// MetaTagsAnalysis holds the title and description analyses.
type MetaTagsAnalysis struct {
	Title       MetaTagAnalysis `json:"title"`
	Description MetaTagAnalysis `json:"description"`
}

// MetaTagAnalysis scores one meta tag.
type MetaTagAnalysis struct {
	Content         string   `json:"content"`
	Length          int      `json:"length"`
	HasKeyword      bool     `json:"hasKeyword"`
	HasCallToAction bool     `json:"hasCallToAction"`
	Score           int      `json:"score"`
	Recommendations []string `json:"recommendations"`
}

// OnPageReport groups content structure checks.
type OnPageReport struct {
	Headers HeadingAnalysis `json:"headers"`
	Images  ImageAnalysis   `json:"images"`
	Links   LinkAnalysis    `json:"links"`
	Content ContentAnalysis `json:"content"`
}

// HeadingAnalysis scores the level-1 headings.
type HeadingAnalysis struct {
	H1Count         int      `json:"h1Count"`
	H1s             []string `json:"h1s"`
	Score           int      `json:"score"`
	Recommendations []string `json:"recommendations"`
}

// ImageAnalysis scores alternative text coverage.
type ImageAnalysis struct {
	Total           int      `json:"total"`
	MissingAlt      int      `json:"missingAlt"`
	Score           int      `json:"score"`
	Recommendations []string `json:"recommendations"`
}

// LinkAnalysis splits anchors by host.
type LinkAnalysis struct {
	Total    int `json:"total"`
	Internal int `json:"internal"`
	External int `json:"external"`
}

// ContentAnalysis describes body text volume.
type ContentAnalysis struct {
	WordCount int `json:"wordCount"`
}

// Scores are the aggregate numbers shown to the user.
type Scores struct {
	Overall     int `json:"overall"`
	Technical   int `json:"technical"`
	OnPage      int `json:"onPage"`
	Content     int `json:"content"`
	Performance int `json:"performance"`
}

// AIInsights is the payload returned by the insight generator.
type AIInsights struct {
	Industry        Industry         `json:"industry"`
	Recommendations []Recommendation `json:"recommendations"`
	Keywords        []Keyword        `json:"keywords"`
	Summary         string           `json:"summary"`
}

// Industry is the generator's classification of the site.
type Industry struct {
	Primary     string  `json:"primary"`
	SubCategory string  `json:"subCategory"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// Recommendation is one prioritized suggestion.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Impact      string `json:"impact,omitempty"`
}

// Keyword is one suggested search term.
type Keyword struct {
	Term       string  `json:"term"`
	Relevance  float64 `json:"relevance"`
	Difficulty string  `json:"difficulty,omitempty"`
}
