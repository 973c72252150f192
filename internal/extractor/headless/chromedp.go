// Package headless contains extractors that render pages in a real browser.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/extractor"
)

// Backend names the chromedp extractor in capabilities and metrics.
const Backend = "chromedp"

// Config controls the behavior of the headless extractors.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ExecPath points at a specific Chrome binary. Empty means auto-detect.
	ExecPath string
}

// Extractor implements audit.Extractor using chromedp and headless Chrome.
// Every call gets its own browser tab which is torn down on return.
type Extractor struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless extractor backed by chromedp. Chrome is
// started lazily on the first extraction.
func NewChromedp(cfg Config) (*Extractor, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = extractor.DefaultNavigationTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = extractor.DefaultUserAgent
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Extractor{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts down the browser process.
func (e *Extractor) Close() error {
	e.allocCancel()
	return nil
}

// Capabilities reports full rendering with navigation timing.
func (e *Extractor) Capabilities() audit.Capabilities {
	return audit.Capabilities{
		Backend:          Backend,
		Rendered:         true,
		NavigationTiming: true,
		ResourceBlocking: true,
	}
}

// Extract opens rawURL in a fresh browser context and runs the extraction
// script once DOMContentLoaded fires. Stylesheets, fonts and media are
// refused. The context is disposed on return, so no cookies, storage or
// cache survive between calls.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (audit.PageData, error) {
	pageURL, err := audit.ValidateURL(rawURL)
	if err != nil {
		return audit.PageData{}, err
	}
	if err := e.acquire(ctx); err != nil {
		return audit.PageData{}, err
	}
	defer e.release()

	tabCtx, cancelTab := chromedp.NewContext(e.allocator, chromedp.WithNewBrowserContext())
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	watch := newNavigationWatch()
	chromedp.ListenTarget(tabCtx, listen(tabCtx, watch))
	if err := chromedp.Run(tabCtx, e.setupAction()); err != nil {
		if ctx.Err() != nil {
			return audit.PageData{}, fmt.Errorf("headless extraction canceled: %w", ctx.Err())
		}
		return audit.PageData{}, fmt.Errorf("start browser tab: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, e.navTimeout())
	defer cancelNav()

	var loaderID cdp.LoaderID
	if err := chromedp.Run(navCtx, navigate(pageURL.String(), watch, &loaderID)); err != nil {
		return audit.PageData{}, classifyNavError(ctx, navCtx, rawURL, e.navTimeout(), err)
	}
	resp := watch.document(loaderID)
	if resp == nil {
		return audit.PageData{}, &audit.FetchError{URL: rawURL}
	}
	status := int(resp.Status)
	if status < 200 || status > 299 {
		return audit.PageData{}, &audit.FetchError{URL: rawURL, StatusCode: status}
	}

	var raw string
	if err := chromedp.Run(navCtx, chromedp.Evaluate(extractor.Script, &raw)); err != nil {
		return audit.PageData{}, classifyNavError(ctx, navCtx, rawURL, e.navTimeout(), err)
	}
	data, err := extractor.Decode([]byte(raw))
	if err != nil {
		return audit.PageData{}, err
	}
	data.StatusCode = status
	return data, nil
}

func (e *Extractor) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable page domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(e.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := fetch.Enable().WithPatterns(blockedPatterns()).Do(ctx); err != nil {
			return fmt.Errorf("enable request interception: %w", err)
		}
		return nil
	})
}

// navigate issues Page.navigate and returns once the new document fires
// DOMContentLoaded. The main document's loader id is written to loaderID.
func navigate(target string, watch *navigationWatch, loaderID *cdp.LoaderID) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		watch.arm()
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(target), &res); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		if res.ErrorText != "" {
			return fmt.Errorf("navigate: %s", res.ErrorText)
		}
		*loaderID = res.LoaderID
		select {
		case <-watch.ready:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for DOMContentLoaded: %w", ctx.Err())
		}
	})
}

// navigationWatch collects main document responses and the first
// DOMContentLoaded after arm.
type navigationWatch struct {
	mu        sync.Mutex
	armed     bool
	documents map[cdp.LoaderID]*network.Response
	ready     chan struct{}
	once      sync.Once
}

func newNavigationWatch() *navigationWatch {
	return &navigationWatch{
		documents: make(map[cdp.LoaderID]*network.Response),
		ready:     make(chan struct{}),
	}
}

func (w *navigationWatch) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = true
}

func (w *navigationWatch) onResponse(ev *network.EventResponseReceived) {
	if ev.Type != network.ResourceTypeDocument || ev.Response == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.documents[ev.LoaderID] = ev.Response
}

func (w *navigationWatch) onDOMContentLoaded() {
	w.mu.Lock()
	armed := w.armed
	w.mu.Unlock()
	if armed {
		w.once.Do(func() { close(w.ready) })
	}
}

func (w *navigationWatch) document(loaderID cdp.LoaderID) *network.Response {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.documents[loaderID]
}

func blockedPatterns() []*fetch.RequestPattern {
	patterns := make([]*fetch.RequestPattern, 0, len(extractor.BlockedResourceTypes))
	for _, kind := range []network.ResourceType{
		network.ResourceTypeStylesheet,
		network.ResourceTypeFont,
		network.ResourceTypeMedia,
	} {
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: kind,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

// listen routes target events. Listener callbacks must not block, so the
// CDP replies to paused requests run on their own goroutines.
func listen(tabCtx context.Context, watch *navigationWatch) func(any) {
	return func(ev any) {
		switch ev := ev.(type) {
		case *network.EventResponseReceived:
			watch.onResponse(ev)
		case *page.EventDomContentEventFired:
			watch.onDOMContentLoaded()
		case *fetch.EventRequestPaused:
			go answerPaused(tabCtx, ev)
		}
	}
}

func answerPaused(tabCtx context.Context, paused *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(tabCtx, c.Target)
	if extractor.IsBlockedResource(string(paused.ResourceType)) {
		_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
		return
	}
	_ = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
}

// classifyNavError maps browser errors onto the audit error taxonomy.
func classifyNavError(parent, navCtx context.Context, rawURL string, timeout time.Duration, err error) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("headless extraction canceled: %w", parent.Err())
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %s", audit.ErrNavigationTimeout, rawURL, timeout)
	default:
		return &audit.FetchError{URL: rawURL, Reason: err.Error()}
	}
}

func (e *Extractor) acquire(ctx context.Context) error {
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

func (e *Extractor) release() {
	if e.limiter == nil {
		return
	}
	select {
	case <-e.limiter:
	default:
	}
}

func (e *Extractor) navTimeout() time.Duration {
	if e.cfg.NavigationTimeout > 0 {
		return e.cfg.NavigationTimeout
	}
	return extractor.DefaultNavigationTimeout
}
