package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/kiln/pkg/browser"
	"github.com/entrhq/kiln/pkg/tools"
)

// ExtractContentTool extracts content from the current page of a session.
type ExtractContentTool struct {
	ts *Toolset
}

// NewExtractContentTool creates a new extract content tool.
func NewExtractContentTool(ts *Toolset) *ExtractContentTool {
	return &ExtractContentTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *ExtractContentTool) Name() string {
	return "browser_extract_content"
}

// Description returns the tool description.
func (t *ExtractContentTool) Description() string {
	return "Extract content from the current page in the browser session. Supports multiple formats: markdown (default), plain text, or cleaned HTML."
}

// Schema returns the tool's JSON schema.
func (t *ExtractContentTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": map[string]interface{}{
				"type":        "string",
				"description": "Name of the browser session to extract from. Omit to use the shared 'default' session.",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"description": "Output format: 'markdown' (default), 'text', or 'html'",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "Optional CSS selector to extract content from a specific element (e.g., 'article', '.main-content')",
			},
			"max_length": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum content length in characters. Default: 10000",
			},
		},
		nil,
	)
}

// ExtractContentInput defines the input parameters for extraction.
type ExtractContentInput struct {
	XMLName   xml.Name `xml:"arguments"`
	Session   string   `xml:"session"`
	Format    string   `xml:"format"`
	Selector  string   `xml:"selector"`
	MaxLength *int     `xml:"max_length"`
}

// Execute extracts content from the page.
func (t *ExtractContentTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ExtractContentInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	opts := browser.ExtractOptions{
		Format:    browser.FormatMarkdown,
		Selector:  input.Selector,
		MaxLength: browser.DefaultMaxLength,
	}

	if input.Format != "" {
		switch input.Format {
		case "markdown":
			opts.Format = browser.FormatMarkdown
		case "text":
			opts.Format = browser.FormatText
		case "html":
			opts.Format = browser.FormatHTML
		default:
			return "", nil, fmt.Errorf("invalid format: %s (must be 'markdown', 'text', or 'html')", input.Format)
		}
	}

	if input.MaxLength != nil {
		if *input.MaxLength < 100 || *input.MaxLength > 100000 {
			return "", nil, fmt.Errorf("max_length must be between 100 and 100000")
		}
		opts.MaxLength = *input.MaxLength
	}

	c, id, release, err := t.ts.acquire(ctx, input.Session)
	if err != nil {
		return "", nil, err
	}
	defer release()

	content, err := c.ExtractContent(opts)
	if err != nil {
		return "", nil, err
	}

	selectorDesc := "entire page"
	if opts.Selector != "" {
		selectorDesc = fmt.Sprintf("selector: %s", opts.Selector)
	}

	result := fmt.Sprintf(`Content extracted successfully

Extraction Details:
- Session: %s
- URL: %s
- Format: %s
- Source: %s
- Length: %d characters

---

%s`,
		id,
		c.Describe(),
		opts.Format,
		selectorDesc,
		len(content),
		content,
	)

	return result, nil, nil
}
