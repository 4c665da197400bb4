package headless

import "strings"

// defaultBlockedHosts lists ad and tracker hosts whose requests are
// dropped before the browser issues them. Pages render faster and the
// captured DOM stays free of injected ad markup.
func defaultBlockedHosts() []string {
	return []string{
		"doubleclick.net",
		"googlesyndication.com",
		"googletagmanager.com",
		"googletagservices.com",
		"google-analytics.com",
		"amazon-adsystem.com",
		"adnxs.com",
		"adsrvr.org",
		"facebook.net",
		"connect.facebook.com",
		"scorecardresearch.com",
		"quantserve.com",
		"outbrain.com",
		"taboola.com",
		"criteo.com",
		"hotjar.com",
		"mixpanel.com",
		"chartbeat.com",
		"newrelic.com",
		"nr-data.net",
	}
}

// blockPatterns converts host names into devtools URL patterns. A bare
// host matches itself and any subdomain on any path.
func blockPatterns(hosts []string) []string {
	patterns := make([]string, 0, len(hosts))
	seen := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		host = strings.TrimPrefix(host, "*.")
		host = strings.TrimPrefix(host, ".")
		if host == "" {
			continue
		}
		pattern := "*" + host + "*"
		if _, dup := seen[pattern]; dup {
			continue
		}
		seen[pattern] = struct{}{}
		patterns = append(patterns, pattern)
	}
	return patterns
}
