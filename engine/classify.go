package engine

import "strings"

// tagClasses maps explicit error type tags emitted by the collaborator
// to failure classes. Explicit tags take precedence over text matching.
var tagClasses = map[string]FailureClass{
	"spawn_error":      ClassProcessSpawnFailure,
	"decode_error":     ClassInvalidOutputEncoding,
	"missing_steps":    ClassMissingStepDefinition,
	"selector_timeout": ClassSelectorTimeout,
	"network_error":    ClassNetworkFailure,
	"blocked":          ClassAntiBotBlock,
	"recipe_error":     ClassRecipeSyntaxError,
	"empty_results":    ClassEmptyResultSet,
}

// textPatterns is the fixed-priority pattern cascade over combined
// stdout/stderr. Order matters: anti-bot markers must win over the
// generic network patterns they often co-occur with.
var textPatterns = []struct {
	class    FailureClass
	patterns []string
}{
	{ClassProcessSpawnFailure, []string{
		"executable file not found", "no such file or directory",
		"permission denied", "exec format error", "cannot spawn",
	}},
	{ClassRecipeSyntaxError, []string{
		"recipe syntax", "invalid recipe", "unknown command",
		"unknown step type", "failed to parse recipe",
	}},
	{ClassMissingStepDefinition, []string{
		"no steps defined", "steps array is null", "missing step definition",
	}},
	{ClassAntiBotBlock, []string{
		"captcha", "just a moment", "datadome", "cloudflare",
		"access denied", "blocked by", "perimeterx",
	}},
	{ClassSelectorTimeout, []string{
		"waiting for selector", "selector timeout", "timed out waiting",
		"element not found", "no node found for selector",
	}},
	{ClassNetworkFailure, []string{
		"net::err", "econnrefused", "econnreset", "dns", "ssl",
		"navigation failed", "connection closed",
	}},
	{ClassInvalidOutputEncoding, []string{
		"invalid character", "unexpected end of json", "invalid utf-8",
		"unmarshal", "not valid json",
	}},
	{ClassEmptyResultSet, []string{
		"0 results", "empty result set", "no results extracted",
	}},
}

// Classify derives a failure class from the collaborator's signal. An
// explicit tag wins; otherwise the combined stdout/stderr text is
// matched against the pattern cascade in priority order.
func Classify(tag, stdout, stderr string) FailureClass {
	if c, ok := tagClasses[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return c
	}

	combined := strings.ToLower(stdout + "\n" + stderr)
	for _, tp := range textPatterns {
		for _, p := range tp.patterns {
			if strings.Contains(combined, p) {
				return tp.class
			}
		}
	}
	return ClassUnknown
}
