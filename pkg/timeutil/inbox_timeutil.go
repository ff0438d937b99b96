// Package timeutil normalizes provider-native timestamps to UTC RFC3339.
package timeutil

import (
	"strconv"
	"strings"
	"time"
)

// providerLayouts covers the formats the two providers emit: RFC-2822
// variants from Gmail headers and ISO-8601 variants from the Graph API,
// plus a few degraded shapes seen in cached data.
var providerLayouts = []string{
	time.RFC1123Z,                  // Mon, 02 Jan 2006 15:04:05 -0700
	time.RFC1123,                   // Mon, 02 Jan 2006 15:04:05 MST
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,                   // 2006-01-02T15:04:05Z07:00
	"2006-01-02T15:04:05.999999999Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse converts a raw provider timestamp to UTC. It accepts the layouts
// above and epoch seconds or milliseconds. Returns false when nothing
// matched; callers skip (not fail) the offending message.
func Parse(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	// Gmail sometimes appends a "(UTC)" style zone comment.
	if i := strings.Index(raw, " ("); i > 0 {
		raw = raw[:i]
	}

	for _, layout := range providerLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}

	// Epoch seconds, or milliseconds when implausibly large.
	if ts, err := strconv.ParseFloat(raw, 64); err == nil {
		if ts > 1e12 {
			ts /= 1000
		}
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), true
	}

	return time.Time{}, false
}

// Normalize converts a raw provider timestamp to a UTC RFC3339 string.
// The empty string signals an unparseable input.
func Normalize(raw string) string {
	t, ok := Parse(raw)
	if !ok {
		return ""
	}
	return t.Format(time.RFC3339)
}
