package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/kiln/pkg/browser"
	"github.com/entrhq/kiln/pkg/tools"
)

// FillTool fills form inputs in a browser session.
type FillTool struct {
	ts *Toolset
}

// NewFillTool creates a new fill tool.
func NewFillTool(ts *Toolset) *FillTool {
	return &FillTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *FillTool) Name() string {
	return "browser_fill_form"
}

// Description returns the tool description.
func (t *FillTool) Description() string {
	return "Fill a form input field in the browser session. Works with text inputs, textareas, and other fillable elements."
}

// Schema returns the tool's JSON schema.
func (t *FillTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": map[string]interface{}{
				"type":        "string",
				"description": "Name of the browser session to use. Omit to use the shared 'default' session.",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the input element to fill (e.g., 'input[name=\"email\"]', '#password', 'textarea.comment')",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "Text value to fill into the input field",
			},
		},
		[]string{"selector", "value"},
	)
}

// FillInput defines the input parameters for filling.
type FillInput struct {
	XMLName  xml.Name `xml:"arguments"`
	Session  string   `xml:"session"`
	Selector string   `xml:"selector"`
	Value    string   `xml:"value"`
}

// Execute fills a form input.
func (t *FillTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input FillInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}
	// Value may be empty, that clears the field.

	c, id, release, err := t.ts.acquire(ctx, input.Session)
	if err != nil {
		return "", nil, err
	}
	defer release()

	opts := browser.FillOptions{
		Selector: input.Selector,
		Value:    input.Value,
	}

	if err := c.Fill(opts); err != nil {
		return "", nil, err
	}

	valueDesc := fmt.Sprintf("%d characters", len(input.Value))
	if input.Value == "" {
		valueDesc = "empty (cleared field)"
	}

	result := fmt.Sprintf(`Form field filled successfully

Fill Details:
- Session: %s
- Selector: %s
- Value: %s
- Current URL: %s

The form field has been filled with the specified value. You can now click submit buttons or fill additional fields.`,
		id,
		input.Selector,
		valueDesc,
		c.Describe(),
	)

	return result, nil, nil
}
