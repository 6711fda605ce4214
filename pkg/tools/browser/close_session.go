package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/kiln/pkg/tools"
)

// CloseSessionTool closes a browser session and tears down its resources.
type CloseSessionTool struct {
	ts *Toolset
}

// NewCloseSessionTool creates a new close session tool.
func NewCloseSessionTool(ts *Toolset) *CloseSessionTool {
	return &CloseSessionTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *CloseSessionTool) Name() string {
	return "close_browser_session"
}

// Description returns the tool description.
func (t *CloseSessionTool) Description() string {
	return "Close a browser session and clean up its resources. The browser closes and the session name becomes available again."
}

// Schema returns the tool's JSON schema.
func (t *CloseSessionTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": map[string]interface{}{
				"type":        "string",
				"description": "Name of the browser session to close. Omit to close the shared 'default' session.",
			},
		},
		nil,
	)
}

// CloseSessionInput defines the input parameters for closing a session.
type CloseSessionInput struct {
	XMLName xml.Name `xml:"arguments"`
	Session string   `xml:"session"`
}

// Execute closes a browser session.
func (t *CloseSessionTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input CloseSessionInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	id := t.ts.sessionName(input.Session)

	found, err := t.ts.sessions.CloseSession(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("failed to close session: %w", err)
	}
	if !found {
		return fmt.Sprintf("No session named %q is active.\n\nUse list_browser_sessions to see the active sessions.", id), nil, nil
	}

	result := fmt.Sprintf(`Session closed successfully

Session: %s

The browser has been closed and all resources have been cleaned up. Browser tools remain available; using the same name again starts a fresh session.`,
		id,
	)

	return result, nil, nil
}
