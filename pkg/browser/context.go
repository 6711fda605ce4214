package browser

import (
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/kiln/pkg/session"
)

// Context is one live browser session: an isolated browser instance with a
// single page that operations act on. The concrete implementation is backed
// by playwright; consumers depend on this interface so they can run against
// in-memory fakes.
type Context interface {
	session.TerminationNotifier

	// Navigate loads a URL in the page, subject to the navigation policy.
	Navigate(url string, opts NavigateOptions) error

	// Click clicks an element matching the selector.
	Click(opts ClickOptions) error

	// Fill fills an input element with the given value.
	Fill(opts FillOptions) error

	// WaitFor waits until an element reaches the requested state.
	WaitFor(opts WaitOptions) error

	// Evaluate executes JavaScript in the page and returns its result.
	Evaluate(code string) (interface{}, error)

	// ExtractContent extracts page content in the requested format.
	ExtractContent(opts ExtractOptions) (string, error)

	// Search scans the page's visible text for a pattern.
	Search(opts SearchOptions) ([]SearchResult, error)

	// Metadata returns current page metadata (title, url).
	Metadata() (map[string]string, error)

	// Alive reports whether the page and browser are still usable.
	Alive() bool

	// Describe returns the current page URL, or "" when the session is dead.
	Describe() string
}

// playwrightContext implements Context on top of a dedicated playwright
// browser instance.
type playwrightContext struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	policy  *NavigationPolicy

	mu         sync.Mutex
	currentURL string
	terminated bool
	termFns    []func()
}

func newPlaywrightContext(b playwright.Browser, bctx playwright.BrowserContext, page playwright.Page, policy *NavigationPolicy) *playwrightContext {
	c := &playwrightContext{
		browser:    b,
		context:    bctx,
		page:       page,
		policy:     policy,
		currentURL: "about:blank",
	}

	// Either event means the browser is gone out from under us: the
	// context was closed or the browser process died/disconnected.
	bctx.OnClose(func(playwright.BrowserContext) { c.fireTerminated() })
	b.OnDisconnected(func(playwright.Browser) { c.fireTerminated() })

	return c
}

// OnTerminated registers fn to run once when the underlying browser dies.
// If the browser is already gone, fn runs immediately.
func (c *playwrightContext) OnTerminated(fn func()) {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		fn()
		return
	}
	c.termFns = append(c.termFns, fn)
	c.mu.Unlock()
}

func (c *playwrightContext) fireTerminated() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	fns := c.termFns
	c.termFns = nil
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Navigate navigates the page to the specified URL.
func (c *playwrightContext) Navigate(url string, opts NavigateOptions) error {
	if err := c.policy.Check(url); err != nil {
		return err
	}

	gotoOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = &opts.Timeout
	}

	if _, err := c.page.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	c.setCurrentURL(c.page.URL())
	return nil
}

// Click clicks an element matching the selector.
func (c *playwrightContext) Click(opts ClickOptions) error {
	clickOpts := playwright.PageClickOptions{}
	if opts.Button != "" {
		button := playwright.MouseButton(opts.Button)
		clickOpts.Button = &button
	}
	if opts.ClickCount > 0 {
		clickOpts.ClickCount = &opts.ClickCount
	}
	if opts.Timeout > 0 {
		clickOpts.Timeout = &opts.Timeout
	}

	if err := c.page.Click(opts.Selector, clickOpts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}

	// The click may have caused navigation
	c.setCurrentURL(c.page.URL())
	return nil
}

// Fill fills an input element with the specified value.
func (c *playwrightContext) Fill(opts FillOptions) error {
	fillOpts := playwright.PageFillOptions{}
	if opts.Timeout > 0 {
		fillOpts.Timeout = &opts.Timeout
	}

	if err := c.page.Fill(opts.Selector, opts.Value, fillOpts); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// WaitFor waits for an element to reach the requested state.
func (c *playwrightContext) WaitFor(opts WaitOptions) error {
	if opts.Selector == "" {
		return fmt.Errorf("selector is required for wait")
	}

	waitOpts := playwright.PageWaitForSelectorOptions{}
	if opts.State != "" {
		state := playwright.WaitForSelectorState(opts.State)
		waitOpts.State = &state
	}
	if opts.Timeout > 0 {
		waitOpts.Timeout = &opts.Timeout
	}

	if _, err := c.page.WaitForSelector(opts.Selector, waitOpts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// Evaluate executes JavaScript in the page and returns its result.
func (c *playwrightContext) Evaluate(code string) (interface{}, error) {
	result, err := c.page.Evaluate(code)
	if err != nil {
		return nil, fmt.Errorf("JavaScript execution failed: %w", err)
	}
	return result, nil
}

// ExtractContent extracts page content in the specified format.
func (c *playwrightContext) ExtractContent(opts ExtractOptions) (string, error) {
	if opts.Format == "" {
		opts.Format = FormatMarkdown
	}
	if opts.MaxLength == 0 {
		opts.MaxLength = DefaultMaxLength
	}

	switch opts.Format {
	case FormatText:
		return c.extractText(opts)
	case FormatMarkdown:
		raw, err := c.rawHTML(opts.Selector)
		if err != nil {
			return "", err
		}
		return MarkdownFromHTML(raw, opts.MaxLength)
	case FormatHTML:
		raw, err := c.rawHTML(opts.Selector)
		if err != nil {
			return "", err
		}
		cleaned, err := CleanHTML(raw, opts.MaxLength)
		if err != nil {
			return "", err
		}
		return cleaned.HTML, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

// extractText extracts plain text content from the page or selector.
func (c *playwrightContext) extractText(opts ExtractOptions) (string, error) {
	selector := opts.Selector
	if selector == "" {
		selector = "body"
	}

	element, err := c.page.QuerySelector(selector)
	if err != nil {
		return "", fmt.Errorf("selector query failed: %w", err)
	}
	if element == nil {
		return "", fmt.Errorf("no element found matching selector: %s", selector)
	}

	content, err := element.TextContent()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}

	if opts.MaxLength > 0 && len(content) > opts.MaxLength {
		truncated := content[:opts.MaxLength]
		return truncated + fmt.Sprintf("\n\n[Content truncated: %d of %d characters shown]", opts.MaxLength, len(content)), nil
	}
	return content, nil
}

// Search scans the page's visible text for the pattern.
func (c *playwrightContext) Search(opts SearchOptions) ([]SearchResult, error) {
	text, err := c.extractText(ExtractOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get page text: %w", err)
	}
	return SearchText(text, opts), nil
}

// rawHTML returns the page's full HTML, or the inner HTML of the first
// element matching selector.
func (c *playwrightContext) rawHTML(selector string) (string, error) {
	if selector == "" {
		content, err := c.page.Content()
		if err != nil {
			return "", fmt.Errorf("failed to read page content: %w", err)
		}
		return content, nil
	}

	element, err := c.page.QuerySelector(selector)
	if err != nil {
		return "", fmt.Errorf("selector query failed: %w", err)
	}
	if element == nil {
		return "", fmt.Errorf("no element found matching selector: %s", selector)
	}
	return element.InnerHTML()
}

// Metadata returns current page metadata.
func (c *playwrightContext) Metadata() (map[string]string, error) {
	title, err := c.page.Title()
	if err != nil {
		title = ""
	}
	return map[string]string{
		"title": title,
		"url":   c.page.URL(),
	}, nil
}

// Alive reports whether the page and browser are still usable.
func (c *playwrightContext) Alive() bool {
	c.mu.Lock()
	terminated := c.terminated
	c.mu.Unlock()
	if terminated {
		return false
	}
	return !c.page.IsClosed() && c.browser.IsConnected()
}

// Describe returns the current page URL, or "" when the session is dead.
func (c *playwrightContext) Describe() string {
	if !c.Alive() {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentURL
}

func (c *playwrightContext) setCurrentURL(url string) {
	c.mu.Lock()
	c.currentURL = url
	c.mu.Unlock()
}
