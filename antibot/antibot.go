// Package antibot classifies a loaded page as blocked or challenged by
// a known anti-bot provider, and can hand off to an interactive bypass
// flow that captures a solved session's cookies for reuse by later
// headless probes.
package antibot

import (
	"strings"
)

// Provider identifies the anti-bot vendor behind a block.
type Provider string

const (
	ProviderNone       Provider = "none"
	ProviderDataDome   Provider = "datadome"
	ProviderCloudflare Provider = "cloudflare"
	ProviderHCaptcha   Provider = "hcaptcha"
	ProviderReCaptcha  Provider = "recaptcha"
	ProviderPerimeterX Provider = "perimeterx"
	ProviderUnknown    Provider = "unknown"
)

// Verdict is the classification result for one page.
type Verdict struct {
	Blocked  bool     `json:"blocked"`
	Provider Provider `json:"provider"`
	// Reason names the fingerprint (or heuristic) that fired.
	Reason string `json:"reason,omitempty"`
}

// fingerprint is one provider detection rule: any marker hit in the
// lowercased markup (or title, for titleMarkers) means a block.
type fingerprint struct {
	provider     Provider
	markers      []string
	titleMarkers []string
}

// fingerprints are tried in fixed priority order. Providers that embed
// other vendors' captchas (DataDome serving hCaptcha) are listed first
// so the delivering provider wins.
var fingerprints = []fingerprint{
	{
		provider: ProviderDataDome,
		markers:  []string{"datadome", "geo.captcha-delivery.com", "ct.captcha-delivery.com"},
	},
	{
		provider:     ProviderCloudflare,
		markers:      []string{"challenges.cloudflare.com", "cf-browser-verification", "cf_chl_", "turnstile"},
		titleMarkers: []string{"just a moment", "attention required"},
	},
	{
		provider: ProviderHCaptcha,
		markers:  []string{"hcaptcha.com/captcha", "h-captcha"},
	},
	{
		provider: ProviderReCaptcha,
		markers:  []string{"google.com/recaptcha", "g-recaptcha", "grecaptcha"},
	},
	{
		provider:     ProviderPerimeterX,
		markers:      []string{"perimeterx", "px-captcha", "_pxhd"},
		titleMarkers: []string{"access to this page has been denied"},
	},
}

// Detect classifies page markup and title. Known provider fingerprints
// are tried first; a content-starved page with almost no script tags is
// presumed blocked by an unknown provider.
func Detect(pageHTML, title string) Verdict {
	lowerHTML := strings.ToLower(pageHTML)
	lowerTitle := strings.ToLower(title)

	for _, fp := range fingerprints {
		for _, m := range fp.markers {
			if strings.Contains(lowerHTML, m) {
				return Verdict{Blocked: true, Provider: fp.provider, Reason: "marker " + m}
			}
		}
		for _, m := range fp.titleMarkers {
			if strings.Contains(lowerTitle, m) {
				return Verdict{Blocked: true, Provider: fp.provider, Reason: "title " + m}
			}
		}
	}

	if isContentStarved(pageHTML) {
		return Verdict{Blocked: true, Provider: ProviderUnknown, Reason: "content starvation"}
	}

	return Verdict{Provider: ProviderNone}
}

// Starvation thresholds: a real page rarely ships under this much
// visible text with this few scripts; interstitials routinely do.
const (
	starvedTextMax    = 120
	starvedScriptsMax = 2
)

// isContentStarved reports a page with very little visible text and
// very few script tags. Script-heavy SPA shells are deliberately not
// flagged: a shell is empty but script-rich.
func isContentStarved(pageHTML string) bool {
	if len(pageHTML) == 0 {
		return true
	}
	text := visibleTextLen(pageHTML)
	scripts := strings.Count(strings.ToLower(pageHTML), "<script")
	return text < starvedTextMax && scripts <= starvedScriptsMax
}

// visibleTextLen counts non-whitespace text bytes outside of tags,
// scripts and styles.
func visibleTextLen(s string) int {
	text := 0
	inTag, inScript, inStyle := false, false, false

	i := 0
	for i < len(s) {
		if inScript {
			idx := strings.Index(strings.ToLower(s[i:]), "</script")
			if idx == -1 {
				break
			}
			i += idx
			if end := strings.IndexByte(s[i:], '>'); end >= 0 {
				i += end + 1
			}
			inScript = false
			continue
		}
		if inStyle {
			idx := strings.Index(strings.ToLower(s[i:]), "</style")
			if idx == -1 {
				break
			}
			i += idx
			if end := strings.IndexByte(s[i:], '>'); end >= 0 {
				i += end + 1
			}
			inStyle = false
			continue
		}

		ch := s[i]
		if ch == '<' {
			inTag = true
			rest := strings.ToLower(s[i:])
			if strings.HasPrefix(rest, "<script") {
				inScript = true
			} else if strings.HasPrefix(rest, "<style") {
				inStyle = true
			}
			i++
			continue
		}
		if ch == '>' {
			inTag = false
			i++
			continue
		}
		if !inTag && ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
			text++
		}
		i++
	}
	return text
}
