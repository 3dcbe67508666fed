package evidence

import (
	"context"
	"strings"

	"github.com/mendrake/siteforge/browser"
)

// consentSelectors targets the accept button of known consent
// frameworks, in priority order. Framework buttons are preferred over
// text matching because their selectors are exact and their click
// semantics are known.
var consentSelectors = []string{
	"#onetrust-accept-btn-handler",                                   // OneTrust
	"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",         // Cookiebot
	"#didomi-notice-agree-button",                                    // Didomi
	"#truste-consent-button",                                         // TrustArc
	".qc-cmp2-summary-buttons button[mode=\"primary\"]",              // Quantcast
	"button[data-testid=\"uc-accept-all-button\"]",                   // Usercentrics
	".cmplz-accept",                                                  // Complianz
	"#tarteaucitronPersonalize2",                                     // tarteaucitron
	"button.fc-cta-consent",                                          // Funding Choices
	"button#L2AGLb",                                                  // Google consent
}

// consentPhrases is the text-matching fallback, lowercased.
var consentPhrases = []string{
	"accept all", "accept cookies", "accept", "agree", "i agree",
	"allow all", "ok", "got it", "alle akzeptieren", "akzeptieren",
	"tout accepter", "accepter", "aceptar", "accetta",
}

// dismissConsent clicks through consent overlays. Best-effort: probing
// proceeds whether or not a banner was found, so failures are only
// logged at debug level.
func (c *Collector) dismissConsent(ctx context.Context, page browser.Page) {
	for _, sel := range consentSelectors {
		el, ok, err := page.Query(ctx, sel)
		if err != nil || !ok {
			continue
		}
		if err := el.Click(ctx); err != nil {
			c.cfg.Logger.Debug("evidence: consent click failed", "selector", sel, "error", err)
			continue
		}
		c.cfg.Logger.Debug("evidence: consent dismissed", "selector", sel)
		return
	}

	// Fallback: any button-like element whose text matches a known
	// consent phrase exactly enough.
	buttons, err := page.QueryAll(ctx, `button, [role="button"], input[type="button"], input[type="submit"]`)
	if err != nil {
		return
	}
	for _, b := range buttons {
		text, err := b.Text(ctx)
		if err != nil {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(text))
		if lower == "" || len(lower) > 40 {
			continue
		}
		for _, phrase := range consentPhrases {
			if lower == phrase || strings.HasPrefix(lower, phrase+" ") {
				if err := b.Click(ctx); err == nil {
					c.cfg.Logger.Debug("evidence: consent dismissed by text", "text", lower)
				}
				return
			}
		}
	}
}
