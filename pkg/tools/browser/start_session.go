package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/kiln/pkg/tools"
)

// StartSessionTool creates a browser session, or attaches to the existing
// one with the same name. Started sessions hold a reference until closed,
// so idle cleanup does not reclaim them.
type StartSessionTool struct {
	ts *Toolset
}

// NewStartSessionTool creates a new start session tool.
func NewStartSessionTool(ts *Toolset) *StartSessionTool {
	return &StartSessionTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *StartSessionTool) Name() string {
	return "start_browser_session"
}

// Description returns the tool description.
func (t *StartSessionTool) Description() string {
	return "Create a browser session for web automation, or attach to the existing session with the same name. Sessions persist across tool calls and can be shared by name."
}

// Schema returns the tool's JSON schema.
func (t *StartSessionTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name for the browser session (e.g., 'research', 'app_test'). Omit to use the shared 'default' session.",
			},
		},
		nil,
	)
}

// StartSessionInput defines the input parameters for starting a session.
type StartSessionInput struct {
	XMLName xml.Name `xml:"arguments"`
	Name    string   `xml:"name"`
}

// Execute starts or attaches to a browser session.
func (t *StartSessionTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input StartSessionInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	id := t.ts.sessionName(input.Name)

	c, err := t.ts.sessions.GetOrCreate(ctx, id, t.ts.caller)
	if err != nil {
		return "", nil, fmt.Errorf("failed to start session: %w", err)
	}

	result := fmt.Sprintf(`Browser session ready

Session Details:
- Name: %s
- URL: %s
- Status: Active

The session is now active and browser tools are available. Use browser_navigate, browser_extract_content, browser_click, and the other browser tools to interact with web pages. The session stays open until close_browser_session is called.`,
		id,
		c.Describe(),
	)

	return result, nil, nil
}
