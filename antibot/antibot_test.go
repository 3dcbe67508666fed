package antibot

import (
	"strings"
	"testing"
)

func TestDetect_DataDome(t *testing.T) {
	v := Detect(`<html><script src="https://geo.captcha-delivery.com/captcha.js"></script></html>`, "")
	if !v.Blocked || v.Provider != ProviderDataDome {
		t.Errorf("verdict = %+v, want datadome block", v)
	}
}

func TestDetect_CloudflareByTitle(t *testing.T) {
	v := Detect(`<html><body>checking your browser</body></html>`, "Just a moment...")
	if !v.Blocked || v.Provider != ProviderCloudflare {
		t.Errorf("verdict = %+v, want cloudflare block", v)
	}
}

func TestDetect_DataDomeBeatsHCaptcha(t *testing.T) {
	// WHAT: DataDome delivering an hCaptcha widget classifies as DataDome.
	// WHY: The delivering provider decides the bypass strategy, not the
	// embedded captcha vendor.
	page := `<html><div class="h-captcha"></div><script src="https://ct.captcha-delivery.com/c.js"></script></html>`
	v := Detect(page, "")
	if v.Provider != ProviderDataDome {
		t.Errorf("provider = %s, want datadome", v.Provider)
	}
}

func TestDetect_ReCaptcha(t *testing.T) {
	v := Detect(`<html><div class="g-recaptcha" data-sitekey="x"></div></html>`, "")
	if !v.Blocked || v.Provider != ProviderReCaptcha {
		t.Errorf("verdict = %+v, want recaptcha block", v)
	}
}

func TestDetect_PerimeterX(t *testing.T) {
	v := Detect(`<html><body><div id="px-captcha"></div></body></html>`, "Access to this page has been denied")
	if !v.Blocked || v.Provider != ProviderPerimeterX {
		t.Errorf("verdict = %+v, want perimeterx block", v)
	}
}

func TestDetect_ContentStarvation(t *testing.T) {
	// WHAT: A near-empty page with no scripts is presumed blocked by an
	// unknown provider.
	v := Detect(`<html><body>Denied</body></html>`, "")
	if !v.Blocked || v.Provider != ProviderUnknown {
		t.Errorf("verdict = %+v, want unknown-provider block", v)
	}
}

func TestDetect_SPAShellNotStarved(t *testing.T) {
	// WHY: An SPA shell has no visible text either, but its script count
	// distinguishes it from an interstitial.
	page := `<html><head>` +
		strings.Repeat(`<script src="/bundle.js"></script>`, 5) +
		`</head><body><div id="root"></div></body></html>`
	v := Detect(page, "App")
	if v.Blocked {
		t.Errorf("script-heavy shell should not be flagged: %+v", v)
	}
}

func TestDetect_NormalPage(t *testing.T) {
	page := `<html><body><h1>Catalog</h1><p>` + strings.Repeat("Plenty of readable catalog text. ", 20) + `</p></body></html>`
	v := Detect(page, "Catalog")
	if v.Blocked || v.Provider != ProviderNone {
		t.Errorf("verdict = %+v, want none", v)
	}
}

func TestVisibleTextLen_IgnoresScriptsAndStyles(t *testing.T) {
	page := `<html><style>body{color:red}</style><script>var x = "lots of invisible code";</script><body>Hi</body></html>`
	if n := visibleTextLen(page); n != 2 {
		t.Errorf("visible text length = %d, want 2", n)
	}
}
