package viewport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"gallerygrab/pkg/auth"
	"gallerygrab/pkg/config"
	errs "gallerygrab/pkg/errors"
	"gallerygrab/pkg/logger"
)

const (
	defaultCallTimeout = 15 * time.Second
	pollInterval       = 250 * time.Millisecond
)

// Chromedp drives a headless Chrome instance as the viewport backend.
type Chromedp struct {
	cfg     config.GalleryConfig
	account *auth.Account
	timeout time.Duration
	logger  logger.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

var _ Adapter = (*Chromedp)(nil)

// NewChromedp starts a headless browser surface for the configured gallery.
// account may be nil for galleries that need no session.
func NewChromedp(cfg config.GalleryConfig, account *auth.Account) (*Chromedp, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Chromedp{
		cfg:           cfg,
		account:       account,
		timeout:       defaultCallTimeout,
		logger:        logger.GetLogger().WithField("component", "viewport"),
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// BrowserContext exposes the underlying browser context for collaborators
// that need CDP event access (the download executor).
func (c *Chromedp) BrowserContext() context.Context {
	return c.browserCtx
}

// run executes chromedp actions against the browser with a bounded timeout
// tied to the caller's context.
func (c *Chromedp) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.browserCtx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case err := <-done:
		if err != nil {
			if runCtx.Err() == context.DeadlineExceeded {
				return errs.Wrap(errs.ErrorTypeTimeout, "viewport operation timed out", err)
			}
			return errs.Wrap(errs.ErrorTypeViewport, "viewport operation failed", err)
		}
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Navigate opens the gallery page, injecting the session cookie first.
func (c *Chromedp) Navigate(ctx context.Context) error {
	actions := []chromedp.Action{network.Enable()}

	if c.account != nil && c.account.SessionCookie != "" {
		u, err := url.Parse(c.cfg.URL)
		if err != nil {
			return fmt.Errorf("invalid gallery URL: %w", err)
		}
		cookieName := c.cfg.SessionCookie
		if cookieName == "" {
			cookieName = "session"
		}
		actions = append(actions, network.SetCookie(cookieName, c.account.SessionCookie).
			WithDomain(u.Hostname()).
			WithPath("/").
			WithHTTPOnly(true))
	}

	actions = append(actions,
		chromedp.Navigate(c.cfg.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)

	if err := c.run(ctx, actions...); err != nil {
		return errs.Wrap(errs.ErrorTypeNavigation, "failed to open gallery", err)
	}

	c.logger.InfoWithFields("gallery opened", map[string]interface{}{
		"url": c.cfg.URL,
	})
	return nil
}

// itemTagScript assigns stable data attributes to grid containers and
// returns their handles in DOM order.
const itemTagScript = `(() => {
	const sel = %q;
	if (!window.__ggNext) { window.__ggNext = 0; }
	return Array.from(document.querySelectorAll(sel)).map((el, i) => {
		if (!el.dataset.ggid) {
			el.dataset.ggid = 'gg-' + (window.__ggNext++);
		}
		return { id: el.dataset.ggid, index: i };
	});
})()`

func (c *Chromedp) VisibleItems(ctx context.Context) ([]ItemHandle, error) {
	var raw []struct {
		ID    string `json:"id"`
		Index int    `json:"index"`
	}
	script := fmt.Sprintf(itemTagScript, c.cfg.Selectors.GridItem)
	if err := c.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, err
	}

	handles := make([]ItemHandle, len(raw))
	for i, r := range raw {
		handles[i] = ItemHandle{ID: r.ID, Index: r.Index}
	}
	return handles, nil
}

func (c *Chromedp) ItemCount(ctx context.Context) (int, error) {
	var count int
	script := fmt.Sprintf(`document.querySelectorAll(%q).length`, c.cfg.Selectors.GridItem)
	if err := c.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Chromedp) ScrollBy(ctx context.Context, pixels int) error {
	container := c.cfg.Selectors.GridContainer
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (el && el.scrollHeight > el.clientHeight) {
			el.scrollBy(0, %d);
		} else {
			window.scrollBy(0, %d);
		}
	})()`, container, pixels, pixels)
	return c.run(ctx, chromedp.Evaluate(script, nil))
}

func (c *Chromedp) ViewportHeight(ctx context.Context) (int, error) {
	var height int
	if err := c.run(ctx, chromedp.Evaluate(`window.innerHeight`, &height)); err != nil {
		return 0, err
	}
	return height, nil
}

func (c *Chromedp) ClickItem(ctx context.Context, h ItemHandle) (bool, error) {
	sel := fmt.Sprintf(`[data-ggid=%q]`, h.ID)
	var exists bool
	check := fmt.Sprintf(`!!document.querySelector(%q)`, sel)
	if err := c.run(ctx, chromedp.Evaluate(check, &exists)); err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := c.run(ctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Chromedp) NextItem(ctx context.Context) (bool, error) {
	return c.clickIfPresent(ctx, c.cfg.Selectors.NextItemButton)
}

func (c *Chromedp) CloseDetail(ctx context.Context) error {
	// Escape closes the site's detail overlay; falling back to history when
	// the overlay is a routed page.
	err := c.run(ctx, chromedp.KeyEvent("\x1b"))
	if err != nil {
		return err
	}

	ok, err := c.WaitFor(ctx, GridVisible(), 3*time.Second)
	if err != nil {
		return err
	}
	if !ok {
		if err := c.run(ctx, chromedp.NavigateBack()); err != nil {
			return err
		}
		if ok, err = c.WaitFor(ctx, GridVisible(), 3*time.Second); err != nil {
			return err
		}
		if !ok {
			return errs.New(errs.ErrorTypeNavigation, "overview grid did not reappear after closing detail view")
		}
	}
	return nil
}

func (c *Chromedp) ClickDownload(ctx context.Context) (bool, error) {
	return c.clickIfPresent(ctx, c.cfg.Selectors.DownloadButton)
}

func (c *Chromedp) clickIfPresent(ctx context.Context, sel string) (bool, error) {
	if sel == "" {
		return false, errs.New(errs.ErrorTypeViewport, "selector not configured")
	}
	var clickable bool
	check := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return !!el && !el.disabled;
	})()`, sel)
	if err := c.run(ctx, chromedp.Evaluate(check, &clickable)); err != nil {
		return false, err
	}
	if !clickable {
		return false, nil
	}
	if err := c.run(ctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return false, err
	}
	return true, nil
}

// WaitFor polls the condition at a fixed interval until it holds or the
// timeout elapses.
func (c *Chromedp) WaitFor(ctx context.Context, cond Condition, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := c.evalCondition(ctx, cond)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		}
	}
}

func (c *Chromedp) evalCondition(ctx context.Context, cond Condition) (bool, error) {
	switch cond.kind {
	case condDetailChanged:
		// When a post-navigation marker is configured, the token is only
		// trusted once the marker has rendered.
		if sel := c.cfg.Selectors.NavIndicator; sel != "" {
			var present bool
			script := fmt.Sprintf(`!!document.querySelector(%q)`, sel)
			if err := c.run(ctx, chromedp.Evaluate(script, &present)); err != nil {
				return false, err
			}
			if !present {
				return false, nil
			}
		}
		token, err := c.DetailToken(ctx)
		if err != nil {
			return false, err
		}
		return token != cond.token && token != "", nil
	case condItemCountAtLeast:
		count, err := c.ItemCount(ctx)
		if err != nil {
			return false, err
		}
		return count >= cond.count, nil
	case condGridVisible:
		var visible bool
		script := fmt.Sprintf(`!!document.querySelector(%q)`, c.cfg.Selectors.GridContainer)
		if err := c.run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
			return false, err
		}
		return visible, nil
	default:
		return false, errs.New(errs.ErrorTypeViewport, "unknown wait condition")
	}
}

func (c *Chromedp) ReadText(ctx context.Context, h ItemHandle, region Region) (string, error) {
	inner := c.regionSelector(region)
	if inner == "" {
		return "", errs.New(errs.ErrorTypeExtraction, fmt.Sprintf("no selector configured for region %s", region))
	}

	script := fmt.Sprintf(`(() => {
		const item = document.querySelector('[data-ggid="%s"]');
		if (!item) return "";
		const el = item.querySelector(%q);
		return el ? el.textContent : "";
	})()`, h.ID, inner)

	var text string
	if err := c.run(ctx, chromedp.Evaluate(script, &text)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Chromedp) ReadDetailText(ctx context.Context, region Region) (string, error) {
	var script string
	switch region {
	case RegionTimestampByLabel, RegionPromptByLabel:
		label := c.cfg.Selectors.TimestampLabel
		if region == RegionPromptByLabel {
			label = c.cfg.Selectors.PromptLabel
		}
		if label == "" {
			return "", errs.New(errs.ErrorTypeExtraction, fmt.Sprintf("no label configured for region %s", region))
		}
		// Find the label text anywhere in the detail view and read the
		// value element next to it.
		script = fmt.Sprintf(`(() => {
			const view = document.querySelector(%q);
			if (!view) return "";
			const walker = document.createTreeWalker(view, NodeFilter.SHOW_ELEMENT);
			while (walker.nextNode()) {
				const el = walker.currentNode;
				if (el.children.length === 0 && el.textContent.trim() === %q) {
					const next = el.nextElementSibling || el.parentElement.nextElementSibling;
					if (next) return next.textContent;
				}
			}
			return "";
		})()`, c.cfg.Selectors.DetailView, label)
	case RegionMedia:
		sel := c.cfg.Selectors.DetailMedia
		if sel == "" {
			return "", errs.New(errs.ErrorTypeExtraction, "no media selector configured")
		}
		script = fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			return el ? (el.src || el.currentSrc || "") : "";
		})()`, sel)
	default:
		sel := c.regionSelector(region)
		if sel == "" {
			return "", errs.New(errs.ErrorTypeExtraction, fmt.Sprintf("no selector configured for region %s", region))
		}
		script = fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			return el ? el.textContent : "";
		})()`, sel)
	}

	var text string
	if err := c.run(ctx, chromedp.Evaluate(script, &text)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Chromedp) DetailTexts(ctx context.Context) ([]string, error) {
	script := fmt.Sprintf(`(() => {
		const view = document.querySelector(%q);
		if (!view) return [];
		const out = [];
		const walker = document.createTreeWalker(view, NodeFilter.SHOW_ELEMENT);
		while (walker.nextNode()) {
			const el = walker.currentNode;
			if (el.children.length === 0) {
				const t = el.textContent.trim();
				if (t) out.push(t);
			}
		}
		return out;
	})()`, c.cfg.Selectors.DetailView)

	var texts []string
	if err := c.run(ctx, chromedp.Evaluate(script, &texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

// DetailToken concatenates the detail view's timestamp text and media source
// into a cheap view-state token.
func (c *Chromedp) DetailToken(ctx context.Context) (string, error) {
	script := fmt.Sprintf(`(() => {
		const view = document.querySelector(%q);
		if (!view) return "";
		const ts = view.querySelector(%q);
		const media = view.querySelector(%q);
		return (ts ? ts.textContent.trim() : "") + "#" + (media ? (media.src || media.currentSrc || "") : "");
	})()`, c.cfg.Selectors.DetailView, c.cfg.Selectors.DetailTimestamp, c.cfg.Selectors.DetailMedia)

	var token string
	if err := c.run(ctx, chromedp.Evaluate(script, &token)); err != nil {
		return "", err
	}
	if token == "#" {
		return "", nil
	}
	return token, nil
}

func (c *Chromedp) regionSelector(region Region) string {
	switch region {
	case RegionGridTimestamp:
		return c.cfg.Selectors.GridTimestamp
	case RegionGridPrompt:
		return c.cfg.Selectors.GridPrompt
	case RegionTimestamp:
		return c.cfg.Selectors.DetailTimestamp
	case RegionPrompt:
		return c.cfg.Selectors.DetailPrompt
	case RegionMedia:
		return c.cfg.Selectors.DetailMedia
	default:
		return ""
	}
}

// Close releases the browser and its allocator.
func (c *Chromedp) Close() error {
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}
