package sale

import (
	"regexp"
	"strings"

	"github.com/macharian8/stocksnap/internal/code"
)

// Two accepted shapes: the legacy URI encoding scheme://item/{code} (any
// scheme — migrated installs used different app schemes over time) and the
// bare canonical code. Anything else is simply not a code.
var legacyURIPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://item/(.+)$`)

// ResolveCode extracts the catalog lookup code from a raw scanned or typed
// payload. ok=false means the payload does not encode an item reference;
// callers ignore it silently rather than treating it as an error.
func ResolveCode(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	if m := legacyURIPattern.FindStringSubmatch(trimmed); m != nil {
		// Legacy codes predate the canonical format; keep them verbatim and
		// let the store match either code column.
		extracted := strings.TrimSpace(m[1])
		if extracted == "" {
			return "", false
		}
		return extracted, true
	}

	upper := strings.ToUpper(trimmed)
	if code.IsCanonical(upper) {
		return upper, true
	}

	return "", false
}
