package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/kiln/pkg/browser"
	"github.com/entrhq/kiln/pkg/tools"
)

// ClickTool clicks an element in a browser session.
type ClickTool struct {
	ts *Toolset
}

// NewClickTool creates a new click tool.
func NewClickTool(ts *Toolset) *ClickTool {
	return &ClickTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *ClickTool) Name() string {
	return "browser_click"
}

// Description returns the tool description.
func (t *ClickTool) Description() string {
	return "Click an element in the browser session using a CSS selector. Supports single and double clicks, and different mouse buttons."
}

// Schema returns the tool's JSON schema.
func (t *ClickTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": map[string]interface{}{
				"type":        "string",
				"description": "Name of the browser session to use. Omit to use the shared 'default' session.",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the element to click (e.g., 'button.submit', '#login-btn', 'a[href=\"/about\"]')",
			},
			"button": map[string]interface{}{
				"type":        "string",
				"description": "Mouse button to use: 'left' (default), 'right', or 'middle'",
			},
			"click_count": map[string]interface{}{
				"type":        "integer",
				"description": "Number of clicks: 1 (default) for single click, 2 for double click",
			},
		},
		[]string{"selector"},
	)
}

// ClickInput defines the input parameters for clicking.
type ClickInput struct {
	XMLName    xml.Name `xml:"arguments"`
	Session    string   `xml:"session"`
	Selector   string   `xml:"selector"`
	Button     string   `xml:"button"`
	ClickCount *int     `xml:"click_count"`
}

// Execute clicks an element.
func (t *ClickTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ClickInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}

	opts := browser.ClickOptions{
		Selector:   input.Selector,
		Button:     input.Button,
		ClickCount: 1,
	}

	if input.ClickCount != nil {
		if *input.ClickCount < 1 || *input.ClickCount > 3 {
			return "", nil, fmt.Errorf("click_count must be between 1 and 3")
		}
		opts.ClickCount = *input.ClickCount
	}

	if opts.Button != "" {
		validButtons := map[string]bool{
			"left":   true,
			"right":  true,
			"middle": true,
		}
		if !validButtons[opts.Button] {
			return "", nil, fmt.Errorf("invalid button: %s (must be 'left', 'right', or 'middle')", opts.Button)
		}
	}

	c, id, release, err := t.ts.acquire(ctx, input.Session)
	if err != nil {
		return "", nil, err
	}
	defer release()

	if err := c.Click(opts); err != nil {
		return "", nil, err
	}

	clickType := "single click"
	switch opts.ClickCount {
	case 2:
		clickType = "double click"
	case 3:
		clickType = "triple click"
	}

	buttonDesc := "left button"
	switch opts.Button {
	case "right":
		buttonDesc = "right button"
	case "middle":
		buttonDesc = "middle button"
	}

	result := fmt.Sprintf(`Click executed successfully

Click Details:
- Session: %s
- Selector: %s
- Action: %s with %s
- Current URL: %s

The element has been clicked. If this caused navigation or page changes, you may want to extract content or verify the new page state.`,
		id,
		input.Selector,
		clickType,
		buttonDesc,
		c.Describe(),
	)

	return result, nil, nil
}
