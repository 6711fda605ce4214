package browser

import (
	"context"
	"time"

	"github.com/entrhq/kiln/pkg/browser"
	"github.com/entrhq/kiln/pkg/session"
	"github.com/entrhq/kiln/pkg/tools"
)

// Toolset wires the browser tools to a shared session registry. Every tool
// resolves sessions through the registry, so concurrent tool calls naming
// the same session share a single browser context.
type Toolset struct {
	sessions   *session.Registry[browser.Context]
	caller     session.Caller
	maxIdleAge time.Duration
}

// NewToolset creates the browser toolset. maxIdleAge is the age bound used
// by cleanup_browser_sessions when a call does not specify its own.
func NewToolset(sessions *session.Registry[browser.Context], caller session.Caller, maxIdleAge time.Duration) *Toolset {
	return &Toolset{
		sessions:   sessions,
		caller:     caller,
		maxIdleAge: maxIdleAge,
	}
}

// Tools returns all browser tools bound to this toolset.
func (ts *Toolset) Tools() []tools.Tool {
	return []tools.Tool{
		NewStartSessionTool(ts),
		NewCloseSessionTool(ts),
		NewListSessionsTool(ts),
		NewCleanupSessionsTool(ts),
		NewNavigateTool(ts),
		NewClickTool(ts),
		NewFillTool(ts),
		NewWaitTool(ts),
		NewEvaluateTool(ts),
		NewExtractContentTool(ts),
		NewSearchTool(ts),
	}
}

// sessionName maps an omitted session name to the shared default, so
// single-session callers never have to invent names.
func (ts *Toolset) sessionName(name string) string {
	if name == "" {
		return session.DefaultID
	}
	return name
}

// acquire resolves name and takes a reference on that session, creating it
// when absent. The caller must invoke release when finished with the
// returned context.
func (ts *Toolset) acquire(ctx context.Context, name string) (browser.Context, string, session.ReleaseFunc, error) {
	id := ts.sessionName(name)
	c, release, err := ts.sessions.Acquire(ctx, id, ts.caller)
	if err != nil {
		return nil, id, nil, err
	}
	return c, id, release, nil
}
