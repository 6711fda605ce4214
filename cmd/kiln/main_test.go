package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/kiln/pkg/tools"
)

// echoTool records its invocations and returns a fixed result.
type echoTool struct {
	name  string
	calls [][]byte
	err   error
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "test tool" }

func (t *echoTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, nil)
}

func (t *echoTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	t.calls = append(t.calls, argsXML)
	if t.err != nil {
		return "", nil, t.err
	}
	return "echo result", nil, nil
}

func testTools(ts ...*echoTool) map[string]tools.Tool {
	byName := make(map[string]tools.Tool)
	for _, tool := range ts {
		byName[tool.name] = tool
	}
	return byName
}

func TestToolLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("executes call spanning multiple lines", func(t *testing.T) {
		tool := &echoTool{name: "echo"}
		in := strings.NewReader(`<tool>
<tool_name>echo</tool_name>
<arguments>
  <value>hello</value>
</arguments>
</tool>
`)
		var out bytes.Buffer

		err := toolLoop(ctx, in, &out, testTools(tool), zerolog.Nop())
		require.NoError(t, err)

		assert.Contains(t, out.String(), "echo result")
		require.Len(t, tool.calls, 1)
		assert.Contains(t, string(tool.calls[0]), "<value>hello</value>")
	})

	t.Run("executes two blocks on one line", func(t *testing.T) {
		tool := &echoTool{name: "echo"}
		in := strings.NewReader(
			`<tool><tool_name>echo</tool_name><arguments></arguments></tool><tool><tool_name>echo</tool_name><arguments></arguments></tool>` + "\n")
		var out bytes.Buffer

		err := toolLoop(ctx, in, &out, testTools(tool), zerolog.Nop())
		require.NoError(t, err)

		assert.Len(t, tool.calls, 2)
		assert.Equal(t, 2, strings.Count(out.String(), "echo result"))
	})

	t.Run("unknown tool reports error and continues", func(t *testing.T) {
		tool := &echoTool{name: "echo"}
		in := strings.NewReader(
			"<tool><tool_name>nope</tool_name><arguments></arguments></tool>\n" +
				"<tool><tool_name>echo</tool_name><arguments></arguments></tool>\n")
		var out bytes.Buffer

		err := toolLoop(ctx, in, &out, testTools(tool), zerolog.Nop())
		require.NoError(t, err)

		assert.Contains(t, out.String(), `unknown tool "nope"`)
		assert.Contains(t, out.String(), "echo result")
	})

	t.Run("tool error rendered as result", func(t *testing.T) {
		tool := &echoTool{name: "echo", err: errors.New("selector is required")}
		in := strings.NewReader("<tool><tool_name>echo</tool_name><arguments></arguments></tool>\n")
		var out bytes.Buffer

		err := toolLoop(ctx, in, &out, testTools(tool), zerolog.Nop())
		require.NoError(t, err)

		assert.Contains(t, out.String(), "Error: selector is required")
	})

	t.Run("malformed block dropped, later calls still work", func(t *testing.T) {
		tool := &echoTool{name: "echo"}
		in := strings.NewReader(
			"<tool><arguments></arguments></tool>\n" +
				"<tool><tool_name>echo</tool_name><arguments></arguments></tool>\n")
		var out bytes.Buffer

		err := toolLoop(ctx, in, &out, testTools(tool), zerolog.Nop())
		require.NoError(t, err)

		assert.Contains(t, out.String(), "Error:")
		assert.Contains(t, out.String(), "echo result")
		assert.Len(t, tool.calls, 1)
	})

	t.Run("plain text is ignored", func(t *testing.T) {
		in := strings.NewReader("just thinking out loud\nno tools here\n")
		var out bytes.Buffer

		err := toolLoop(ctx, in, &out, testTools(), zerolog.Nop())
		require.NoError(t, err)
		assert.Empty(t, out.String())
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(context.Background())
		pr, pw := io.Pipe()
		defer pw.Close()

		done := make(chan error, 1)
		go func() {
			done <- toolLoop(cancelCtx, pr, &bytes.Buffer{}, testTools(), zerolog.Nop())
		}()

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("toolLoop did not stop after cancellation")
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := loadConfig(&CLIConfig{})
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := loadConfig(&CLIConfig{ConfigFile: "/does/not/exist.yaml"})
		require.Error(t, err)
	})
}
