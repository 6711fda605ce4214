// Package browser provides web browser automation through Playwright.
//
// Each session is an isolated browser instance with its own context and a
// single page. The package does not manage session lifetimes itself: the
// Provider plugs into a session.Registry, which decides when browsers are
// launched and closed, keeps them warm between uses, and reconciles the
// mapping when a browser dies out-of-band.
//
// # Resource model
//
// Context is the per-session resource handed to consumers. It carries the
// page operations (navigate, click, fill, wait, evaluate, extract) plus the
// probes the registry needs: Alive, Describe, and OnTerminated. The concrete
// playwright implementation stays unexported so consumers can substitute
// fakes in tests.
//
// # Navigation policy
//
// Every Navigate call is checked against a NavigationPolicy compiled from
// glob patterns. Denied patterns win over allowed ones, and an empty allow
// list permits everything not explicitly denied. Rejected navigations fail
// with ErrNavigationDenied before playwright is touched.
//
// # Example
//
//	provider, err := browser.NewProvider(browser.Options{Headless: true}, logger)
//	if err != nil {
//	    return err
//	}
//	if err := provider.Initialize(); err != nil {
//	    return err
//	}
//	registry := session.New[browser.Context](provider, session.Config{Logger: logger})
//
//	ctx, release, err := registry.Acquire(context.Background(), "research", caller)
//	if err != nil {
//	    return err
//	}
//	defer release()
//	err = ctx.Navigate("https://example.com", browser.NavigateOptions{WaitUntil: "load"})
package browser
