// Package browser exposes web browser automation as XML tool calls backed
// by a shared session registry.
//
// The tools resolve browser contexts through a session.Registry, so sessions
// persist across tool calls and concurrent calls naming the same session
// share one browser. A call that omits the session name operates on the
// shared "default" session, which is created on first use.
//
// # Session Lifecycle
//
// Browser sessions follow this lifecycle:
//
//  1. Create: start_browser_session (or the first tool call naming the
//     session) creates it
//  2. Use: navigation, interaction, and extraction tools operate on the
//     session, each holding a reference for the duration of the call
//  3. Close: close_browser_session explicitly tears the session down
//  4. Sweep: cleanup_browser_sessions closes sessions idle past an age
//     bound; sessions in use or pinned by start_browser_session are kept
//
// # Tools
//
// Session management: start_browser_session, close_browser_session,
// list_browser_sessions, cleanup_browser_sessions.
//
// Page interaction: browser_navigate, browser_click, browser_fill_form,
// browser_wait, browser_evaluate, browser_extract_content, browser_search.
//
// # Example Usage
//
//	provider, _ := browser.NewProvider(browser.Options{Headless: true}, logger)
//	registry := session.New[browser.Context](provider, session.Config{Logger: logger})
//	toolset := NewToolset(registry, session.NewCaller("agent"), 30*time.Minute)
//
//	for _, tool := range toolset.Tools() {
//	    register(tool)
//	}
package browser
