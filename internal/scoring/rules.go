package scoring

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// Baseline stands in for checks that have no real signal yet.
const Baseline = 75

// mobilePenalty is subtracted from the desktop performance score.
const mobilePenalty = 15

// Performance penalties apply cumulatively once load time exceeds each
// threshold (seconds). The score never drops below performanceFloor.
var performanceTiers = []struct {
	overSeconds float64
	penalty     int
}{
	{2.5, 20},
	{4.0, 30},
	{6.0, 20},
	{8.0, 20},
}

const performanceFloor = 10

// Core Web Vitals estimation constants.
const (
	lcpShareOfLoad  = 0.85
	fidBaseMs       = 40
	fidPerSecondMs  = 25
	clsFast         = 0.05
	clsSlow         = 0.15
	clsSlowAfterSec = 4.0
)

// ScoreImages returns 100 when there are no images, otherwise the share of
// images carrying alternative text.
func ScoreImages(total, missingAlt int) ImageAnalysis {
	analysis := ImageAnalysis{Total: total, MissingAlt: missingAlt, Score: 100, Recommendations: []string{}}
	if total <= 0 {
		return analysis
	}
	if missingAlt > total {
		missingAlt = total
	}
	if missingAlt < 0 {
		missingAlt = 0
	}
	analysis.Score = clamp(int(math.Round(100 * (1 - float64(missingAlt)/float64(total)))))
	if missingAlt > 0 {
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("Add alt text to %d of %d images.", missingAlt, total))
	}
	return analysis
}

// ScorePerformance maps a load time to desktop and mobile scores.
func ScorePerformance(loadTimeMs int64) (desktop, mobile int) {
	seconds := float64(loadTimeMs) / 1000
	desktop = 100
	for _, tier := range performanceTiers {
		if seconds > tier.overSeconds {
			desktop -= tier.penalty
		}
	}
	if desktop < performanceFloor {
		desktop = performanceFloor
	}
	return desktop, clamp(desktop - mobilePenalty)
}

// EstimateCoreWebVitals derives LCP (seconds), FID (ms) and CLS from one load
// time. These are estimates, not field data.
func EstimateCoreWebVitals(loadTimeMs int64) CoreWebVitals {
	seconds := float64(max(loadTimeMs, 0)) / 1000
	cls := clsFast
	if seconds > clsSlowAfterSec {
		cls = clsSlow
	}
	return CoreWebVitals{
		LCP: math.Round(seconds*lcpShareOfLoad*100) / 100,
		FID: fidBaseMs + int(math.Round(seconds*fidPerSecondMs)),
		CLS: cls,
	}
}

// ScoreHeadings gives 100 for exactly one H1 and 50 otherwise.
func ScoreHeadings(h1s []string) HeadingAnalysis {
	analysis := HeadingAnalysis{
		H1Count:         len(h1s),
		H1s:             append([]string{}, h1s...),
		Score:           100,
		Recommendations: []string{},
	}
	switch {
	case len(h1s) == 0:
		analysis.Score = 50
		analysis.Recommendations = append(analysis.Recommendations, "Add one H1 heading describing the page.")
	case len(h1s) > 1:
		analysis.Score = 50
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("Use a single H1 heading; found %d.", len(h1s)))
	}
	return analysis
}

// CheckSSL passes https URLs.
func CheckSSL(rawURL string) CheckResult {
	u, err := url.Parse(rawURL)
	if err == nil && strings.EqualFold(u.Scheme, "https") {
		return CheckResult{Passed: true, Score: 100, Issues: []string{}}
	}
	return CheckResult{Passed: false, Score: 0, Issues: []string{"Page is not served over HTTPS."}}
}

// CheckCanonical assumes the page's canonical URL is itself without query or
// fragment.
func CheckCanonical(rawURL string) CanonicalCheck {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return CanonicalCheck{
			CheckResult: CheckResult{Passed: false, Score: 0, Issues: []string{"Canonical URL could not be derived."}},
		}
	}
	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""
	return CanonicalCheck{
		CheckResult: CheckResult{Passed: true, Score: 100, Issues: []string{}},
		URL:         canonical.String(),
	}
}

// CheckSitemap, CheckSchema and CheckMobileResponsive are placeholders that
// report the baseline until the extractor collects the matching signals.
func CheckSitemap() CheckResult {
	return CheckResult{Passed: true, Score: Baseline, Issues: []string{}}
}

// CheckSchema reports the baseline.
func CheckSchema() CheckResult {
	return CheckResult{Passed: true, Score: Baseline, Issues: []string{}}
}

// CheckMobileResponsive reports the baseline.
func CheckMobileResponsive() CheckResult {
	return CheckResult{Passed: true, Score: Baseline, Issues: []string{}}
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
