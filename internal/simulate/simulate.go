// Package simulate produces stand-in audits when a real one cannot be
// obtained. Output is deterministic in the URL so repeated fallbacks for the
// same site agree with each other.
package simulate

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/scoring"
)

var titleTemplates = []string{
	"%s | Official Site",
	"%s",
	"Welcome to %s - Products, Services and Support for Every Customer",
	"Home - %s",
}

var descriptionTemplates = []string{
	"",
	"%s homepage.",
	"Discover what %s offers. Browse our products, read customer stories and learn more about our team today.",
	"%s helps you find the right solution for your business with expert guidance, fast delivery and friendly support.",
}

var headingTemplates = []string{
	"Welcome to %s",
	"Why choose %s",
	"Latest from %s",
}

// Seed derives the generator seed from the URL using FNV-64a.
func Seed(rawURL string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.TrimSpace(rawURL)))
	return h.Sum64()
}

// PageData returns synthetic extraction data for rawURL.
func PageData(rawURL string) audit.PageData {
	seed := Seed(rawURL)
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	name := displayName(scoring.PrimaryKeyword(rawURL))

	h1Count := rng.IntN(3)
	h1s := make([]string, 0, h1Count)
	for i := 0; i < h1Count; i++ {
		h1s = append(h1s, fmt.Sprintf(headingTemplates[rng.IntN(len(headingTemplates))], name))
	}

	description := descriptionTemplates[rng.IntN(len(descriptionTemplates))]
	if description != "" {
		description = fmt.Sprintf(description, name)
	}

	images := rng.IntN(31)
	links := 10 + rng.IntN(111)

	return audit.PageData{
		Title:             fmt.Sprintf(titleTemplates[rng.IntN(len(titleTemplates))], name),
		Description:       description,
		H1s:               h1s,
		ImgCount:          images,
		MissingAltCount:   rng.IntN(images + 1),
		LinkCount:         links,
		InternalLinkCount: rng.IntN(links + 1),
		WordCount:         200 + rng.IntN(2301),
		LoadTime:          int64(800 + rng.IntN(8201)),
	}
}

// Audit scores synthetic data for rawURL through the real scoring engine.
func Audit(id, rawURL string, at time.Time) scoring.ScoredAudit {
	return scoring.Score(id, rawURL, at, PageData(rawURL))
}

func displayName(keyword string) string {
	if keyword == "" {
		return "Example"
	}
	r, size := utf8.DecodeRuneInString(keyword)
	return string(unicode.ToUpper(r)) + keyword[size:]
}
