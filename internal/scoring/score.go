package scoring

import (
	"time"

	"github.com/JakeFAU/seo-auditor/internal/audit"
)

// Score builds the scored audit for one extraction. id and at are supplied
// by the caller so the function stays deterministic.
func Score(id, rawURL string, at time.Time, data audit.PageData) ScoredAudit {
	keyword := PrimaryKeyword(rawURL)
	description := ScoreDescription(data.Description, keyword)
	title := ScoreTitle(data.Title, keyword)
	images := ScoreImages(data.ImgCount, data.MissingAltCount)
	headings := ScoreHeadings(data.H1s)
	desktop, mobile := ScorePerformance(data.LoadTime)

	external := data.LinkCount - data.InternalLinkCount
	if external < 0 {
		external = 0
	}

	return ScoredAudit{
		ID:        id,
		URL:       rawURL,
		Timestamp: at,
		Technical: TechnicalReport{
			PageSpeed: PageSpeed{
				LoadTimeMs:    data.LoadTime,
				Desktop:       desktop,
				Mobile:        mobile,
				CoreWebVitals: EstimateCoreWebVitals(data.LoadTime),
			},
			SSL:              CheckSSL(rawURL),
			Canonical:        CheckCanonical(rawURL),
			Sitemap:          CheckSitemap(),
			Schema:           CheckSchema(),
			MobileResponsive: CheckMobileResponsive(),
			MetaTags:         MetaTagsAnalysis{Title: title, Description: description},
		},
		OnPage: OnPageReport{
			Headers: headings,
			Images:  images,
			Links: LinkAnalysis{
				Total:    data.LinkCount,
				Internal: data.InternalLinkCount,
				External: external,
			},
			Content: ContentAnalysis{WordCount: data.WordCount},
		},
		Scores: Aggregate(desktop, images.Score, headings.Score, description.Score),
	}
}

// Aggregate combines the sub-scores:
//
//	overall   = floor(mean(performance, images, Baseline, description))
//	technical = floor(mean(performance, Baseline, description))
//	onPage    = floor(mean(images, headings, Baseline))
//	content   = Baseline
func Aggregate(performance, images, headings, description int) Scores {
	return Scores{
		Overall:     (performance + images + Baseline + description) / 4,
		Technical:   (performance + Baseline + description) / 3,
		OnPage:      (images + headings + Baseline) / 3,
		Content:     Baseline,
		Performance: performance,
	}
}

// WithInsights returns a copy of a with the AI insights attached. a itself
// is left untouched.
func WithInsights(a ScoredAudit, insights AIInsights) ScoredAudit {
	merged := a
	cp := insights
	cp.Recommendations = append([]Recommendation(nil), insights.Recommendations...)
	cp.Keywords = append([]Keyword(nil), insights.Keywords...)
	merged.AI = &cp
	return merged
}
