package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/kiln/pkg/browser"
	"github.com/entrhq/kiln/pkg/tools"
)

// NavigateTool navigates to a URL in a browser session.
type NavigateTool struct {
	ts *Toolset
}

// NewNavigateTool creates a new navigate tool.
func NewNavigateTool(ts *Toolset) *NavigateTool {
	return &NavigateTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *NavigateTool) Name() string {
	return "browser_navigate"
}

// Description returns the tool description.
func (t *NavigateTool) Description() string {
	return "Navigate to a URL in a browser session. The browser will load the page and wait for it to be ready. Starts the session if it does not exist yet."
}

// Schema returns the tool's JSON schema.
func (t *NavigateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": map[string]interface{}{
				"type":        "string",
				"description": "Name of the browser session to use. Omit to use the shared 'default' session.",
			},
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to navigate to (must include protocol, e.g., https://example.com)",
			},
			"wait_until": map[string]interface{}{
				"type":        "string",
				"description": "When to consider navigation complete: 'load' (default), 'domcontentloaded', or 'networkidle'",
			},
		},
		[]string{"url"},
	)
}

// NavigateInput defines the input parameters for navigation.
type NavigateInput struct {
	XMLName   xml.Name `xml:"arguments"`
	Session   string   `xml:"session"`
	URL       string   `xml:"url"`
	WaitUntil string   `xml:"wait_until"`
}

// Execute navigates to a URL.
func (t *NavigateTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input NavigateInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if input.URL == "" {
		return "", nil, fmt.Errorf("URL is required")
	}

	opts := browser.NavigateOptions{
		WaitUntil: input.WaitUntil,
	}
	if opts.WaitUntil == "" {
		opts.WaitUntil = "load"
	}

	validWaitStates := map[string]bool{
		"load":             true,
		"domcontentloaded": true,
		"networkidle":      true,
	}
	if !validWaitStates[opts.WaitUntil] {
		return "", nil, fmt.Errorf("invalid wait_until value: %s (must be 'load', 'domcontentloaded', or 'networkidle')", opts.WaitUntil)
	}

	c, id, release, err := t.ts.acquire(ctx, input.Session)
	if err != nil {
		return "", nil, err
	}
	defer release()

	if navErr := c.Navigate(input.URL, opts); navErr != nil {
		return "", nil, navErr
	}

	title := "Unknown"
	currentURL := input.URL
	if meta, metaErr := c.Metadata(); metaErr == nil {
		if meta["title"] != "" {
			title = meta["title"]
		}
		if meta["url"] != "" {
			currentURL = meta["url"]
		}
	}

	result := fmt.Sprintf(`Navigation successful

Page Details:
- URL: %s
- Title: %s
- Session: %s

The page has loaded and is ready for interaction. You can now use browser_extract_content, browser_click, browser_fill_form, and other browser tools to interact with the page.`,
		currentURL,
		title,
		id,
	)

	return result, nil, nil
}
