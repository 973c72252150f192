package headless

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/extractor"
)

// PlaywrightBackend names the playwright extractor in capabilities and metrics.
const PlaywrightBackend = "playwright"

// PlaywrightExtractor implements audit.Extractor with playwright-go. One
// Chromium process is shared and every extraction gets its own browser
// context.
type PlaywrightExtractor struct {
	cfg     Config
	limiter chan struct{}
	pw      *playwright.Playwright
	browser playwright.Browser

	closeOnce sync.Once
}

// NewPlaywright starts the playwright driver and launches Chromium.
func NewPlaywright(cfg Config) (*PlaywrightExtractor, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = extractor.DefaultNavigationTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = extractor.DefaultUserAgent
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright initialization failed: %w", err)
	}
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
		},
	}
	if cfg.ExecPath != "" {
		launch.ExecutablePath = playwright.String(cfg.ExecPath)
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("browser launch failed: %w", err)
	}

	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &PlaywrightExtractor{cfg: cfg, limiter: limiter, pw: pw, browser: browser}, nil
}

// Close shuts the browser and the driver down.
func (e *PlaywrightExtractor) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.browser != nil {
			if closeErr := e.browser.Close(); closeErr != nil {
				err = fmt.Errorf("close browser: %w", closeErr)
			}
		}
		if e.pw != nil {
			if stopErr := e.pw.Stop(); stopErr != nil && err == nil {
				err = fmt.Errorf("stop playwright: %w", stopErr)
			}
		}
	})
	return err
}

// Capabilities reports full rendering with navigation timing.
func (e *PlaywrightExtractor) Capabilities() audit.Capabilities {
	return audit.Capabilities{
		Backend:          PlaywrightBackend,
		Rendered:         true,
		NavigationTiming: true,
		ResourceBlocking: true,
	}
}

type playwrightResult struct {
	data audit.PageData
	err  error
}

// Extract navigates until DOMContentLoaded and runs the extraction script.
func (e *PlaywrightExtractor) Extract(ctx context.Context, rawURL string) (audit.PageData, error) {
	pageURL, err := audit.ValidateURL(rawURL)
	if err != nil {
		return audit.PageData{}, err
	}
	if err := e.acquire(ctx); err != nil {
		return audit.PageData{}, err
	}
	defer e.release()

	bctx, err := e.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(e.cfg.UserAgent),
	})
	if err != nil {
		return audit.PageData{}, fmt.Errorf("new browser context: %w", err)
	}
	defer func() { _ = bctx.Close() }()

	done := make(chan playwrightResult, 1)
	go func() {
		data, err := e.extractIn(bctx, pageURL.String(), rawURL)
		done <- playwrightResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		// Closing the context aborts the in-flight navigation.
		_ = bctx.Close()
		<-done
		return audit.PageData{}, fmt.Errorf("headless extraction canceled: %w", ctx.Err())
	case res := <-done:
		return res.data, res.err
	}
}

func (e *PlaywrightExtractor) extractIn(bctx playwright.BrowserContext, target, rawURL string) (audit.PageData, error) {
	if err := bctx.Route("**/*", func(route playwright.Route) {
		if extractor.IsBlockedResource(route.Request().ResourceType()) {
			_ = route.Abort("blockedbyclient")
			return
		}
		_ = route.Continue()
	}); err != nil {
		return audit.PageData{}, fmt.Errorf("set up resource blocking: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		return audit.PageData{}, fmt.Errorf("new page: %w", err)
	}

	resp, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(e.navTimeout().Milliseconds())),
	})
	if err != nil {
		return audit.PageData{}, e.classifyError(rawURL, err)
	}
	if resp == nil {
		return audit.PageData{}, &audit.FetchError{URL: rawURL}
	}
	status := resp.Status()
	if status < 200 || status > 299 {
		return audit.PageData{}, &audit.FetchError{URL: rawURL, StatusCode: status}
	}

	out, err := page.Evaluate(extractor.Script)
	if err != nil {
		return audit.PageData{}, e.classifyError(rawURL, err)
	}
	raw, ok := out.(string)
	if !ok {
		return audit.PageData{}, fmt.Errorf("%w: script returned %T", extractor.ErrScriptOutput, out)
	}
	data, err := extractor.Decode([]byte(raw))
	if err != nil {
		return audit.PageData{}, err
	}
	data.StatusCode = status
	return data, nil
}

func (e *PlaywrightExtractor) classifyError(rawURL string, err error) error {
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "timeout") {
		return fmt.Errorf("%w: %s after %s", audit.ErrNavigationTimeout, rawURL, e.navTimeout())
	}
	return &audit.FetchError{URL: rawURL, Reason: msg}
}

func (e *PlaywrightExtractor) acquire(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	select {
	case e.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (e *PlaywrightExtractor) release() {
	if e.limiter == nil {
		return
	}
	select {
	case <-e.limiter:
	default:
	}
}

func (e *PlaywrightExtractor) navTimeout() time.Duration {
	if e.cfg.NavigationTimeout > 0 {
		return e.cfg.NavigationTimeout
	}
	return extractor.DefaultNavigationTimeout
}
