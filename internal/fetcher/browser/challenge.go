package browser

import "bytes"

// challengeScanLimit bounds the marker scan. Interstitials announce
// themselves in the head of the page, so the first chunk is enough and prose
// deeper in an article cannot trip the detector.
const challengeScanLimit = 16 << 10

// challengeMarkers are lowercase fragments that betray an anti-bot
// interstitial rather than article content.
var challengeMarkers = [][]byte{
	[]byte("just a moment..."),
	[]byte("checking your browser"),
	[]byte("cf-browser-verification"),
	[]byte("cf-chl"),
	[]byte("__cf_chl"),
	[]byte("attention required! | cloudflare"),
	[]byte("ddos protection by"),
	[]byte("verify you are human"),
	[]byte("are you a robot"),
	[]byte("g-recaptcha"),
	[]byte("h-captcha"),
	[]byte("captcha-delivery"),
	[]byte("enable javascript and cookies to continue"),
}

// IsChallenge reports whether body looks like an anti-bot interstitial page.
func IsChallenge(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	if len(body) > challengeScanLimit {
		body = body[:challengeScanLimit]
	}
	lowered := bytes.ToLower(body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
