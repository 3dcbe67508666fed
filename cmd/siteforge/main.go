// Command siteforge forges an extraction recipe for one site: probe,
// author, then repair until the output validates.
//
// Usage:
//
//	siteforge -config forge.yaml -url https://example.com -query batman
//	siteforge -config forge.yaml -url https://example.com -query batman \
//	    -pattern 'https://example.com/search?q=$QUERY' -detail -fields title,url,cover
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/mendrake/siteforge/fixer"
	"github.com/mendrake/siteforge/forge"
)

func main() {
	configPath := flag.String("config", "", "path to forge.yaml config file")
	baseURL := flag.String("url", "", "site entry point URL")
	query := flag.String("query", "", "probe search term")
	altQuery := flag.String("alt-query", "", "second term for the cross-query check")
	siteID := flag.String("site", "", "recipe id (generated when empty)")
	category := flag.String("category", "", "recipe category tag")
	patterns := flag.String("pattern", "", "comma-separated candidate search URL templates ($QUERY placeholder)")
	detail := flag.Bool("detail", false, "also forge detail-page steps")
	fields := flag.String("fields", "", "comma-separated declared detail fields")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if *configPath == "" || *baseURL == "" || *query == "" {
		fmt.Fprintln(os.Stderr, "usage: siteforge -config <file> -url <url> -query <term> [flags]")
		os.Exit(1)
	}

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, logger, *configPath, forge.SiteRequest{
		SiteID:         *siteID,
		Category:       *category,
		BaseURL:        *baseURL,
		URLPatterns:    splitList(*patterns),
		Query:          *query,
		AltQuery:       *altQuery,
		ProbeDetail:    *detail,
		DeclaredFields: splitList(*fields),
	})
	if err != nil && !errors.Is(err, errForgeFailed) {
		logger.Error("siteforge: fatal", "error", err)
	}
	// run has returned, so every deferred teardown has already fired;
	// exiting here leaks nothing.
	os.Exit(exitCode(err))
}

// errForgeFailed marks a pipeline that completed without a passing
// recipe. The summary already tells the story, so no fatal log line.
var errForgeFailed = errors.New("forge did not produce a passing recipe")

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errForgeFailed):
		return 2
	default:
		return 1
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, req forge.SiteRequest) error {
	cfg, err := forge.LoadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	collab := &fixer.CmdCollaborator{
		Bin:           cfg.Fixer.Bin,
		Args:          cfg.Fixer.Args,
		AuthorTimeout: cfg.Fixer.AuthorTimeout,
	}

	p, err := forge.New(ctx, *cfg, collab, collab, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.Forge(ctx, req)
	if result != nil {
		printSummary(result)
	}
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		return errForgeFailed
	}
	return nil
}

// printSummary writes the machine-readable outcome to stdout; logs go
// to stderr so the two streams stay separable.
func printSummary(result *forge.SiteResult) {
	summary := map[string]any{
		"recipe_path": result.RecipePath,
		"succeeded":   result.Succeeded(),
	}
	if result.Recipe != nil {
		summary["recipe_id"] = result.Recipe.ID
	}
	if result.Evidence != nil {
		summary["search_type"] = string(result.Evidence.Type)
	}
	if result.SearchReport != nil {
		summary["search_state"] = string(result.SearchReport.FinalState)
		summary["search_attempts"] = len(result.SearchReport.Attempts)
	}
	if result.DetailReport != nil {
		summary["detail_state"] = string(result.DetailReport.FinalState)
	}
	data, _ := json.Marshal(summary)
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
