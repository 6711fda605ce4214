package browser

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/entrhq/kiln/pkg/session"
)

// Provider launches an isolated browser instance per session. It implements
// session.Provider[Context], so a session registry built on it provisions a
// fresh browser on first acquire and closes it on session teardown.
type Provider struct {
	opts   Options
	policy *NavigationPolicy
	logger zerolog.Logger

	mu          sync.Mutex
	pw          *playwright.Playwright
	initialized bool
}

var _ session.Provider[Context] = (*Provider)(nil)

// NewProvider creates a provider using opts for every browser it launches.
// The URL policy is compiled here, so invalid glob patterns fail fast.
func NewProvider(opts Options, logger zerolog.Logger) (*Provider, error) {
	policy, err := NewNavigationPolicy(opts.AllowedURLs, opts.DeniedURLs)
	if err != nil {
		return nil, err
	}
	return &Provider{
		opts:   opts.withDefaults(),
		policy: policy,
		logger: logger,
	}, nil
}

// Initialize installs and starts the playwright driver. It must be called
// before the first Provision; calling it again is a no-op.
func (p *Provider) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	// Discard driver output so it cannot interleave with tool output
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	p.pw = pw
	p.initialized = true
	p.logger.Debug().Msg("playwright driver ready")
	return nil
}

// Provision launches a browser, creates an isolated context and a page, and
// returns them as a session resource along with a teardown that closes all
// three.
func (p *Provider) Provision(ctx context.Context, caller session.Caller) (Context, session.Teardown, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	pw := p.pw
	initialized := p.initialized
	p.mu.Unlock()

	if !initialized {
		return nil, nil, fmt.Errorf("browser provider not initialized")
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &p.opts.Headless,
	}
	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  p.opts.Viewport.Width,
			Height: p.opts.Viewport.Height,
		},
	}
	bctx, err := b.NewContext(contextOpts)
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		return nil, nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(p.opts.Timeout)

	c := newPlaywrightContext(b, bctx, page, p.policy)

	teardown := func(ctx context.Context) error {
		_ = page.Close() // continue cleanup on error
		_ = bctx.Close()
		if err := b.Close(); err != nil {
			return fmt.Errorf("failed to close browser: %w", err)
		}
		return nil
	}

	p.logger.Debug().
		Str("caller", caller.Name).
		Bool("headless", p.opts.Headless).
		Msg("browser provisioned")

	return c, teardown, nil
}

// Stop stops the playwright driver. Call it only after every session has
// been closed; browsers launched by this provider die with the driver.
func (p *Provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized || p.pw == nil {
		return nil
	}
	if err := p.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	p.pw = nil
	p.initialized = false
	return nil
}
