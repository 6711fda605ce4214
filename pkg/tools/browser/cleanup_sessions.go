package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/entrhq/kiln/pkg/tools"
)

// CleanupSessionsTool closes idle browser sessions in bulk. A session is
// idle when no tool call currently holds it and a start reference does not
// pin it open.
type CleanupSessionsTool struct {
	ts *Toolset
}

// NewCleanupSessionsTool creates a new cleanup sessions tool.
func NewCleanupSessionsTool(ts *Toolset) *CleanupSessionsTool {
	return &CleanupSessionsTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *CleanupSessionsTool) Name() string {
	return "cleanup_browser_sessions"
}

// Description returns the tool description.
func (t *CleanupSessionsTool) Description() string {
	return "Close browser sessions that have been idle for too long, freeing their resources. Sessions currently in use are never touched."
}

// Schema returns the tool's JSON schema.
func (t *CleanupSessionsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"max_age_minutes": map[string]interface{}{
				"type":        "integer",
				"description": "Close idle sessions last used more than this many minutes ago. 0 closes every idle session. Omit to use the configured default.",
			},
		},
		nil,
	)
}

// CleanupSessionsInput defines the input parameters for cleanup.
type CleanupSessionsInput struct {
	XMLName       xml.Name `xml:"arguments"`
	MaxAgeMinutes *int     `xml:"max_age_minutes"`
}

// Execute closes idle sessions older than the given age.
func (t *CleanupSessionsTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input CleanupSessionsInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	olderThan := t.ts.maxIdleAge
	ageDesc := "the configured default"
	if input.MaxAgeMinutes != nil {
		if *input.MaxAgeMinutes < 0 {
			return "", nil, fmt.Errorf("max_age_minutes must not be negative")
		}
		olderThan = time.Duration(*input.MaxAgeMinutes) * time.Minute
		ageDesc = fmt.Sprintf("%d minutes", *input.MaxAgeMinutes)
	}

	count := t.ts.sessions.CleanupIdle(ctx, olderThan)

	if count == 0 {
		return fmt.Sprintf("No idle browser sessions older than %s.\n\nSessions in use or recently touched are left alone.", ageDesc), nil, nil
	}

	result := fmt.Sprintf(`Cleanup complete

Closed %d idle browser session(s) last used more than %s ago.

Active sessions and sessions pinned by start_browser_session were not touched.`,
		count,
		ageDesc,
	)

	return result, nil, nil
}
