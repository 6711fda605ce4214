// Package main provides the kiln runner: a stdin-driven tool-call loop over
// persistent browser sessions. Tool calls arrive as XML <tool> blocks,
// results go to stdout, logs to stderr.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/kiln/pkg/browser"
	"github.com/entrhq/kiln/pkg/config"
	"github.com/entrhq/kiln/pkg/logging"
	"github.com/entrhq/kiln/pkg/session"
	"github.com/entrhq/kiln/pkg/tools"
	browsertools "github.com/entrhq/kiln/pkg/tools/browser"
)

const (
	version = "0.1.0"

	// maxBuffered caps how much input may accumulate without a complete
	// tool call before the buffer is discarded.
	maxBuffered = 10 * 1024 * 1024

	shutdownTimeout = 30 * time.Second
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigFile  string
	LogLevel    string
	ShowVersion bool
}

func main() {
	cliConfig := parseFlags()

	if cliConfig.ShowVersion {
		fmt.Printf("kiln v%s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cliConfig); err != nil {
		logger := logging.Base()
		logger.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags() *CLIConfig {
	cliConfig := &CLIConfig{}

	flag.StringVar(&cliConfig.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cliConfig.LogLevel, "log-level", "", "Log level override: trace, debug, info, warn, or error")
	flag.BoolVar(&cliConfig.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Kiln - Persistent Browser Sessions as Tool Calls\n\n")
		fmt.Fprintf(os.Stderr, "Usage: kiln [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run with defaults (headless browser, info logging)\n")
		fmt.Fprintf(os.Stderr, "  kiln\n\n")
		fmt.Fprintf(os.Stderr, "  # Run with config file\n")
		fmt.Fprintf(os.Stderr, "  kiln -config kiln.yaml\n\n")
		fmt.Fprintf(os.Stderr, "  # One-shot call\n")
		fmt.Fprintf(os.Stderr, "  echo '<tool><tool_name>list_browser_sessions</tool_name><arguments></arguments></tool>' | kiln\n\n")
	}

	flag.Parse()
	return cliConfig
}

// run wires the provider, registry, and toolset together and supervises the
// tool loop and the idle sweeper until the input closes or a signal arrives.
func run(ctx context.Context, cliConfig *CLIConfig) error {
	cfg, err := loadConfig(cliConfig)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return fmt.Errorf("invalid configuration: %w", validationErr)
	}

	level := cfg.Log.Level
	if cliConfig.LogLevel != "" {
		level = cliConfig.LogLevel
	}
	logging.Configure(logging.Config{Level: level})
	logger := logging.Base()

	provider, err := browser.NewProvider(cfg.BrowserOptions(), logging.WithComponent("browser"))
	if err != nil {
		return fmt.Errorf("failed to create browser provider: %w", err)
	}
	if initErr := provider.Initialize(); initErr != nil {
		return fmt.Errorf("failed to initialize browser provider: %w", initErr)
	}

	registry := session.New[browser.Context](provider, session.Config{
		Logger: logging.WithComponent("session"),
	})

	toolset := browsertools.NewToolset(registry, session.NewCaller("kiln"), cfg.Sessions.MaxIdleAge.Std())
	byName := make(map[string]tools.Tool)
	for _, tool := range toolset.Tools() {
		byName[tool.Name()] = tool
	}

	logger.Info().
		Str("version", version).
		Int("tools", len(byName)).
		Bool("headless", cfg.Browser.Headless).
		Msg("kiln ready")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		// Input closing ends the run, including the sweeper.
		defer cancel()
		return toolLoop(runCtx, os.Stdin, os.Stdout, byName, logger)
	})
	g.Go(func() error {
		sweep(runCtx, registry, cfg.Sessions.SweepInterval.Std(), cfg.Sessions.MaxIdleAge.Std())
		return nil
	})

	err = g.Wait()

	// Sessions are closed against a fresh context: the run context is
	// already canceled by the time shutdown starts.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if closeErr := registry.CloseAll(shutdownCtx); closeErr != nil {
		logger.Warn().Err(closeErr).Msg("session shutdown reported errors")
	}
	if stopErr := provider.Stop(); stopErr != nil {
		logger.Warn().Err(stopErr).Msg("browser provider stop failed")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig loads configuration from file, or defaults when no file is given.
func loadConfig(cliConfig *CLIConfig) (*config.Config, error) {
	if cliConfig.ConfigFile != "" {
		return config.Load(cliConfig.ConfigFile)
	}
	return config.DefaultConfig(), nil
}

// toolLoop reads XML tool calls from in and writes their results to out. A
// call may span multiple lines; input accumulates until a complete <tool>
// block is present. The loop ends on EOF or context cancellation.
func toolLoop(ctx context.Context, in io.Reader, out io.Writer, byName map[string]tools.Tool, logger zerolog.Logger) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxBuffered)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErr <- err
		}
	}()

	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("failed to read input: %w", err)
				default:
					return nil
				}
			}

			buf.WriteString(line)
			buf.WriteByte('\n')

			if buf.Len() > maxBuffered {
				buf.Reset()
				writeResult(out, "Error: input exceeded maximum size without a complete tool call")
				continue
			}

			// A single line can carry more than one block; drain them all.
			for tools.HasToolCall(buf.String()) {
				call, remaining, err := tools.ParseToolCall(buf.String())
				buf.Reset()
				if err != nil {
					writeResult(out, fmt.Sprintf("Error: %v", err))
					break
				}
				buf.WriteString(remaining)

				writeResult(out, execute(ctx, byName, call, logger))
			}
		}
	}
}

// execute dispatches one parsed call to its tool and renders the outcome.
func execute(ctx context.Context, byName map[string]tools.Tool, call *tools.ToolCall, logger zerolog.Logger) string {
	tool, ok := byName[call.ToolName]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", call.ToolName)
	}

	logger.Debug().Str("tool", call.ToolName).Msg("executing tool call")
	start := time.Now()

	result, _, err := tool.Execute(ctx, call.GetArgumentsXML())
	if err != nil {
		logger.Error().Err(err).Str("tool", call.ToolName).Msg("tool call failed")
		return fmt.Sprintf("Error: %v", err)
	}

	logger.Debug().
		Str("tool", call.ToolName).
		Dur("elapsed", time.Since(start)).
		Msg("tool call completed")
	return result
}

// writeResult writes one tool result to out, separated by a blank line.
func writeResult(out io.Writer, text string) {
	fmt.Fprintln(out, text)
	fmt.Fprintln(out)
}

// sweep periodically evicts idle sessions until ctx is done. A non-positive
// interval disables sweeping entirely.
func sweep(ctx context.Context, registry *session.Registry[browser.Context], interval, maxIdleAge time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.CleanupIdle(ctx, maxIdleAge)
		}
	}
}
