package state

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeURL reduces a media URL to the form used as the reverse
// lookup key: scheme dropped, host lowercased, query and fragment
// removed, path in Unicode NFC. Uploads with non-ASCII file names arrive
// both composed and decomposed depending on the client that wrote them.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return norm.NFC.String(raw)
	}

	return strings.ToLower(u.Host) + norm.NFC.String(u.Path)
}
