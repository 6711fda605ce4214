package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/kiln/pkg/tools"
)

// ListSessionsTool lists all active browser sessions.
type ListSessionsTool struct {
	ts *Toolset
}

// NewListSessionsTool creates a new list sessions tool.
func NewListSessionsTool(ts *Toolset) *ListSessionsTool {
	return &ListSessionsTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *ListSessionsTool) Name() string {
	return "list_browser_sessions"
}

// Description returns the tool description.
func (t *ListSessionsTool) Description() string {
	return "List all active browser sessions with their current state and metadata."
}

// Schema returns the tool's JSON schema.
func (t *ListSessionsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{},
		nil,
	)
}

// Execute lists all sessions.
func (t *ListSessionsTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	infos := t.ts.sessions.Inspect()

	if len(infos) == 0 {
		return "No active browser sessions.\n\nUse start_browser_session to create a new session.", nil, nil
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Active Browser Sessions: %d\n\n", len(infos)))

	for i, info := range infos {
		status := "active"
		url := info.Descriptor
		if !info.Alive {
			status = "inactive"
			url = "(unavailable)"
		}

		age := time.Since(info.CreatedAt)
		idle := time.Since(info.LastAccessed)

		result.WriteString(fmt.Sprintf(`%d. %s
   URL: %s
   Status: %s
   References: %d
   Age: %s
   Last Used: %s ago

`,
			i+1,
			info.ID,
			url,
			status,
			info.RefCount,
			formatDuration(age),
			formatDuration(idle),
		))
	}

	result.WriteString("Use close_browser_session to close a session when finished.")

	return result.String(), nil, nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
