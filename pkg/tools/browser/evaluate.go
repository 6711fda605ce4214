package browser

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/kiln/pkg/tools"
)

// EvaluateTool executes JavaScript code in a browser session.
type EvaluateTool struct {
	ts *Toolset
}

// NewEvaluateTool creates a new evaluate tool.
func NewEvaluateTool(ts *Toolset) *EvaluateTool {
	return &EvaluateTool{
		ts: ts,
	}
}

// Name returns the tool name.
func (t *EvaluateTool) Name() string {
	return "browser_evaluate"
}

// Description returns the tool description.
func (t *EvaluateTool) Description() string {
	return "Execute JavaScript code in the browser session. Can be used to manipulate the DOM, extract data, or interact with page elements programmatically. Returns the result of the JavaScript expression."
}

// Schema returns the tool's JSON schema.
func (t *EvaluateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": map[string]interface{}{
				"type":        "string",
				"description": "Name of the browser session to use. Omit to use the shared 'default' session.",
			},
			"code": map[string]interface{}{
				"type":        "string",
				"description": "JavaScript code to execute. Can be an expression or a function body. For complex operations, wrap in an IIFE: (function() { /* code */ })();",
			},
		},
		[]string{"code"},
	)
}

// EvaluateInput defines the input parameters for evaluation.
type EvaluateInput struct {
	XMLName xml.Name `xml:"arguments"`
	Session string   `xml:"session"`
	Code    string   `xml:"code"`
}

// Execute runs JavaScript in the browser session.
func (t *EvaluateTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input EvaluateInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if input.Code == "" {
		return "", nil, fmt.Errorf("JavaScript code is required")
	}

	c, id, release, err := t.ts.acquire(ctx, input.Session)
	if err != nil {
		return "", nil, err
	}
	defer release()

	result, err := c.Evaluate(input.Code)
	if err != nil {
		return "", nil, err
	}

	var resultStr string
	if result == nil {
		resultStr = "undefined"
	} else {
		jsonBytes, jsonErr := json.MarshalIndent(result, "", "  ")
		if jsonErr != nil {
			resultStr = fmt.Sprintf("%v", result)
		} else {
			resultStr = string(jsonBytes)
		}
	}

	output := fmt.Sprintf(`JavaScript Execution Complete

Session: %s
URL: %s

Result:
%s

The JavaScript code executed successfully in the browser context.`,
		id,
		c.Describe(),
		resultStr,
	)

	return output, nil, nil
}
