package browser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsChallenge(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want bool
	}{
		{
			name: "cloudflare title",
			body: "<html><head><title>Just a moment...</title></head><body></body></html>",
			want: true,
		},
		{
			name: "cloudflare chl marker",
			body: "<html><body><form id=\"challenge-form\" action=\"/?__cf_chl_f_tk=abc\"></form></body></html>",
			want: true,
		},
		{
			name: "perimeterx prompt",
			body: "<html><body><h1>Please verify you are human</h1></body></html>",
			want: true,
		},
		{
			name: "recaptcha widget",
			body: "<html><body><div class=\"g-recaptcha\" data-sitekey=\"key\"></div></body></html>",
			want: true,
		},
		{
			name: "ordinary article",
			body: "<html><body><article><p>Stocks rallied on Tuesday as yields eased.</p></article></body></html>",
			want: false,
		},
		{
			name: "empty body",
			body: "",
			want: false,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, IsChallenge([]byte(tc.body)))
		})
	}
}

func TestIsChallengeScansOnlyLeadingChunk(t *testing.T) {
	t.Parallel()

	// A marker buried past the scan window must not trip the detector.
	var b bytes.Buffer
	b.WriteString("<html><body>")
	b.WriteString(strings.Repeat("<p>plain paragraph text</p>", 2000))
	b.WriteString("verify you are human")
	b.WriteString("</body></html>")
	require.Greater(t, b.Len(), challengeScanLimit)
	require.False(t, IsChallenge(b.Bytes()))
}
