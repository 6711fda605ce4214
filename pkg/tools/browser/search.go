package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/kiln/pkg/browser"
	"github.com/entrhq/kiln/pkg/tools"
)

// SearchTool searches for text in the current page content.
type SearchTool struct {
	ts *Toolset
}

// NewSearchTool creates a new search tool.
func NewSearchTool(ts *Toolset) *SearchTool {
	return &SearchTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *SearchTool) Name() string {
	return "browser_search"
}

// Description returns the tool description.
func (t *SearchTool) Description() string {
	return "Search for text patterns in the current page content. Returns matching text with surrounding context."
}

// Schema returns the tool's JSON schema.
func (t *SearchTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": map[string]interface{}{
				"type":        "string",
				"description": "Name of the browser session to search in. Omit to use the shared 'default' session.",
			},
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Text pattern to search for in the page content",
			},
			"case_sensitive": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether the search should be case-sensitive. Default: false",
			},
			"max_results": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results to return. Default: 10",
			},
		},
		[]string{"pattern"},
	)
}

// SearchInput defines the input parameters for searching.
type SearchInput struct {
	XMLName       xml.Name `xml:"arguments"`
	Session       string   `xml:"session"`
	Pattern       string   `xml:"pattern"`
	CaseSensitive *bool    `xml:"case_sensitive"`
	MaxResults    *int     `xml:"max_results"`
}

// Execute searches the page.
func (t *SearchTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input SearchInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if input.Pattern == "" {
		return "", nil, fmt.Errorf("search pattern is required")
	}

	opts := browser.SearchOptions{
		Pattern:    input.Pattern,
		MaxResults: 10,
	}
	if input.CaseSensitive != nil {
		opts.CaseSensitive = *input.CaseSensitive
	}
	if input.MaxResults != nil {
		if *input.MaxResults < 1 || *input.MaxResults > 100 {
			return "", nil, fmt.Errorf("max_results must be between 1 and 100")
		}
		opts.MaxResults = *input.MaxResults
	}

	c, id, release, err := t.ts.acquire(ctx, input.Session)
	if err != nil {
		return "", nil, err
	}
	defer release()

	results, err := c.Search(opts)
	if err != nil {
		return "", nil, fmt.Errorf("search failed: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`Search completed successfully

Search Details:
- Session: %s
- Pattern: %q
- Case Sensitive: %v
- Results Found: %d

`,
		id,
		input.Pattern,
		opts.CaseSensitive,
		len(results),
	))

	if len(results) == 0 {
		sb.WriteString("No matches found for the search pattern.")
	} else {
		sb.WriteString("Matches:\n\n")
		for i, result := range results {
			sb.WriteString(fmt.Sprintf("Match %d:\n", i+1))
			sb.WriteString(fmt.Sprintf("Text: %q\n", result.Text))
			sb.WriteString(fmt.Sprintf("Context: %s\n\n", result.Context))
		}
		if len(results) == opts.MaxResults {
			sb.WriteString(fmt.Sprintf("[Limited to %d results. There may be more matches in the page.]", opts.MaxResults))
		}
	}

	return sb.String(), nil, nil
}
