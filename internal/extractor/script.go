// Package extractor holds what every page extractor shares: the in-page
// extraction script, its output contract and the request defaults.
package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/seo-auditor/internal/audit"
)

// ScriptVersion identifies the output contract of Script. Decode rejects
// output carrying any other version.
const ScriptVersion = "seo-extract/2"

// DefaultNavigationTimeout bounds one page navigation.
const DefaultNavigationTimeout = 45 * time.Second

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// BlockedResourceTypes are aborted before they hit the network. Names follow
// the browser resource type vocabulary shared by CDP and Playwright.
var BlockedResourceTypes = []string{"stylesheet", "font", "media"}

// IsBlockedResource reports whether a resource type should be aborted.
func IsBlockedResource(resourceType string) bool {
	for _, blocked := range BlockedResourceTypes {
		if strings.EqualFold(resourceType, blocked) {
			return true
		}
	}
	return false
}

// ErrScriptOutput marks extraction script output that breaks the contract.
var ErrScriptOutput = errors.New("unexpected extraction script output")

// Script runs in the loaded document and returns a JSON string matching
// the ScriptVersion contract.
const Script = `(() => {
  const clean = (s) => (s || '').replace(/\s+/g, ' ').trim();
  const meta = document.querySelector('meta[name="description"]') ||
    document.querySelector('meta[property="og:description"]');
  const h1s = Array.from(document.querySelectorAll('h1'))
    .map((h) => clean(h.innerText || h.textContent))
    .filter((t) => t.length > 0);
  const images = Array.from(document.querySelectorAll('img'));
  const missingAlt = images.filter((img) => clean(img.getAttribute('alt')) === '').length;
  const anchors = Array.from(document.querySelectorAll('a'));
  let internal = 0;
  for (const a of anchors) {
    const href = a.getAttribute('href');
    if (href === null) continue;
    try {
      if (new URL(href, document.baseURI).host === location.host) internal++;
    } catch (_) {}
  }
  const text = document.body ? clean(document.body.innerText || document.body.textContent) : '';
  let loadTime = 0;
  const nav = performance.getEntriesByType ? performance.getEntriesByType('navigation')[0] : undefined;
  if (nav) {
    const end = nav.loadEventEnd > 0 ? nav.loadEventEnd : nav.domContentLoadedEventEnd;
    loadTime = Math.max(0, Math.round(end - nav.startTime));
  }
  return JSON.stringify({
    version: '` + ScriptVersion + `',
    title: document.title || '',
    description: meta ? (meta.getAttribute('content') || '') : '',
    h1s: h1s,
    imgCount: images.length,
    missingAltCount: missingAlt,
    linkCount: anchors.length,
    internalLinkCount: internal,
    wordCount: text === '' ? 0 : text.split(' ').length,
    loadTime: loadTime,
  });
})()`

// scriptOutput mirrors the JSON produced by Script. Pointers distinguish a
// missing key from a zero value.
type scriptOutput struct {
	Version           *string   `json:"version"`
	Title             *string   `json:"title"`
	Description       *string   `json:"description"`
	H1s               *[]string `json:"h1s"`
	ImgCount          *int      `json:"imgCount"`
	MissingAltCount   *int      `json:"missingAltCount"`
	LinkCount         *int      `json:"linkCount"`
	InternalLinkCount *int      `json:"internalLinkCount"`
	WordCount         *int      `json:"wordCount"`
	LoadTime          *int64    `json:"loadTime"`
}

// Decode validates raw script output and converts it to PageData. Unknown
// keys, missing keys, a version mismatch and impossible counts are rejected.
func Decode(raw []byte) (audit.PageData, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var out scriptOutput
	if err := dec.Decode(&out); err != nil {
		return audit.PageData{}, fmt.Errorf("%w: %w", ErrScriptOutput, err)
	}
	if dec.More() {
		return audit.PageData{}, fmt.Errorf("%w: trailing data", ErrScriptOutput)
	}
	if err := out.validate(); err != nil {
		return audit.PageData{}, err
	}
	return audit.PageData{
		Title:             strings.TrimSpace(*out.Title),
		Description:       strings.TrimSpace(*out.Description),
		H1s:               NormalizeHeadings(*out.H1s),
		ImgCount:          *out.ImgCount,
		MissingAltCount:   *out.MissingAltCount,
		LinkCount:         *out.LinkCount,
		InternalLinkCount: *out.InternalLinkCount,
		WordCount:         *out.WordCount,
		LoadTime:          *out.LoadTime,
	}, nil
}

func (o scriptOutput) validate() error {
	missing := []string{}
	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	check("version", o.Version != nil)
	check("title", o.Title != nil)
	check("description", o.Description != nil)
	check("h1s", o.H1s != nil)
	check("imgCount", o.ImgCount != nil)
	check("missingAltCount", o.MissingAltCount != nil)
	check("linkCount", o.LinkCount != nil)
	check("internalLinkCount", o.InternalLinkCount != nil)
	check("wordCount", o.WordCount != nil)
	check("loadTime", o.LoadTime != nil)
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrScriptOutput, strings.Join(missing, ", "))
	}
	if *o.Version != ScriptVersion {
		return fmt.Errorf("%w: version %q, want %q", ErrScriptOutput, *o.Version, ScriptVersion)
	}
	for name, v := range map[string]int64{
		"imgCount":          int64(*o.ImgCount),
		"missingAltCount":   int64(*o.MissingAltCount),
		"linkCount":         int64(*o.LinkCount),
		"internalLinkCount": int64(*o.InternalLinkCount),
		"wordCount":         int64(*o.WordCount),
		"loadTime":          *o.LoadTime,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s is negative", ErrScriptOutput, name)
		}
	}
	if *o.MissingAltCount > *o.ImgCount {
		return fmt.Errorf("%w: missingAltCount %d exceeds imgCount %d", ErrScriptOutput, *o.MissingAltCount, *o.ImgCount)
	}
	if *o.InternalLinkCount > *o.LinkCount {
		return fmt.Errorf("%w: internalLinkCount %d exceeds linkCount %d", ErrScriptOutput, *o.InternalLinkCount, *o.LinkCount)
	}
	return nil
}

// NormalizeHeadings collapses whitespace in each heading and drops empty ones.
func NormalizeHeadings(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, h := range raw {
		if h = strings.Join(strings.Fields(h), " "); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// CountWords counts space-delimited tokens after collapsing whitespace.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
