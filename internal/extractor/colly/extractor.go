// Package collyextractor implements the reduced-fidelity plain HTTP
// extractor using Colly and goquery. It sees the served markup only: no
// script execution and no navigation timing.
package collyextractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/extractor"
)

// Backend names this extractor in capabilities and metrics.
const Backend = "colly"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Extractor implements audit.Extractor using the Colly collector.
type Extractor struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchResult is filled in by the collector callbacks.
type fetchResult struct {
	finalURL   *url.URL
	statusCode int
	body       []byte
	elapsed    time.Duration
	err        error
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	if cfg.UserAgent == "" {
		cfg.UserAgent = extractor.DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = extractor.DefaultNavigationTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	if cfg.Transport != nil {
		c.WithTransport(cfg.Transport)
	} else {
		c.WithTransport(newHTTPTransport())
	}
	return &Extractor{cfg: cfg, baseCollector: c}
}

// Capabilities reports the reduced fidelity of plain HTTP extraction.
func (e *Extractor) Capabilities() audit.Capabilities {
	return audit.Capabilities{
		Backend:          Backend,
		Rendered:         false,
		NavigationTiming: false,
		ResourceBlocking: false,
	}
}

// Extract fetches the raw HTML and extracts the page signals from markup.
// LoadTime is the time to receive the document, not a browser load time.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (audit.PageData, error) {
	pageURL, err := audit.ValidateURL(rawURL)
	if err != nil {
		return audit.PageData{}, err
	}

	var result fetchResult
	timeout := e.requestTimeout(ctx)
	collector := e.buildCollector(time.Now(), timeout, &result)
	if err := runCollector(ctx, collector, pageURL.String(), timeout, &result); err != nil {
		return audit.PageData{}, err
	}
	if result.statusCode < http.StatusOK || result.statusCode >= http.StatusMultipleChoices {
		return audit.PageData{}, &audit.FetchError{URL: rawURL, StatusCode: result.statusCode}
	}
	if result.finalURL == nil {
		result.finalURL = pageURL
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.body))
	if err != nil {
		return audit.PageData{}, fmt.Errorf("parse html: %w", err)
	}
	data := FromDocument(doc, result.finalURL)
	data.LoadTime = result.elapsed.Milliseconds()
	data.StatusCode = result.statusCode
	return data, nil
}

// requestTimeout is cfg.Timeout shortened to the context deadline, so a
// visit abandoned on cancellation never outlives the caller's budget.
func (e *Extractor) requestTimeout(ctx context.Context) time.Duration {
	timeout := e.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = max(left, time.Millisecond)
		}
	}
	return timeout
}

func (e *Extractor) buildCollector(start time.Time, timeout time.Duration, result *fetchResult) *colly.Collector {
	collector := e.baseCollector.Clone()
	collector.UserAgent = e.cfg.UserAgent
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	// Status handling happens in Extract so error pages still report their code.
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(timeout)
	e.configureCollectorHooks(collector, start, result)
	return collector
}

func (e *Extractor) configureCollectorHooks(hooks collectorHooks, start time.Time, result *fetchResult) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.statusCode = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
		result.elapsed = time.Since(start)
		if r.Request != nil && r.Request.URL != nil {
			result.finalURL = r.Request.URL
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		result.err = err
		if r != nil {
			result.statusCode = r.StatusCode
		}
	})
}

// runCollector returns as soon as ctx is done. colly has no per-request
// context, so the Visit goroutine runs on until the request timeout fires.
func runCollector(ctx context.Context, collector *colly.Collector, rawURL string, timeout time.Duration, result *fetchResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("plain fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = result.err
		}
		if err == nil {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %s after %s", audit.ErrNavigationTimeout, rawURL, timeout)
		}
		return &audit.FetchError{URL: rawURL, StatusCode: result.statusCode, Reason: err.Error()}
	}
}

// FromDocument extracts page signals from parsed markup. Links are resolved
// against pageURL (or a <base href> when present) to decide which are
// internal.
func FromDocument(doc *goquery.Document, pageURL *url.URL) audit.PageData {
	base := pageURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := pageURL.Parse(strings.TrimSpace(href)); err == nil {
			base = resolved
		}
	}

	description := ""
	if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		description = content
	} else if content, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
		description = content
	}

	var h1s []string
	doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		h1s = append(h1s, s.Text())
	})

	images := doc.Find("img")
	missingAlt := 0
	images.Each(func(_ int, s *goquery.Selection) {
		alt, ok := s.Attr("alt")
		if !ok || strings.TrimSpace(alt) == "" {
			missingAlt++
		}
	})

	anchors := doc.Find("a")
	internal := 0
	anchors.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		target, err := base.Parse(strings.TrimSpace(href))
		if err == nil && strings.EqualFold(target.Host, pageURL.Host) {
			internal++
		}
	})

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()

	return audit.PageData{
		Title:             strings.TrimSpace(doc.Find("title").First().Text()),
		Description:       strings.TrimSpace(description),
		H1s:               extractor.NormalizeHeadings(h1s),
		ImgCount:          images.Length(),
		MissingAltCount:   missingAlt,
		LinkCount:         anchors.Length(),
		InternalLinkCount: internal,
		WordCount:         extractor.CountWords(body.Text()),
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
