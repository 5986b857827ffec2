package platform

import (
	"net/http"
	"strings"

	"github.com/mathiasgse/screenfree/internal/fetcher"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// Detail pages carry contact forms that embed captcha widgets, so captcha
// markers only count on small interstitial pages.
const interstitialSize = 10_000

// DetectBlock checks a fetched page for signs of anti-bot protection.
func DetectBlock(p *fetcher.Page) BlockType {
	if p == nil {
		return BlockNone
	}

	if p.StatusCode == http.StatusForbidden || p.StatusCode == http.StatusServiceUnavailable {
		if p.Header.Get("cf-ray") != "" || p.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(p.Header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(p.Body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-challenge") {
		return BlockCloudflare
	}

	if len(p.Body) < interstitialSize && strings.Contains(lower, "captcha") {
		return BlockCaptcha
	}

	if len(p.Body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return BlockJSShell
		}
	}

	return BlockNone
}
