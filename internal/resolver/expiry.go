package resolver

import (
	"net/url"
	"strconv"
	"time"
)

// fallbackLifetime applies when the URL carries no usable expire parameter.
const fallbackLifetime = time.Hour

// ExtractExpiry returns the instant encoded in the URL's "expire" query
// parameter (Unix seconds), or now+1h when it is missing or not an integer.
// Past values are returned as-is; the entry is simply stale on the next read.
func ExtractExpiry(rawURL string, now time.Time) time.Time {
	u, err := url.Parse(rawURL)
	if err != nil {
		return now.Add(fallbackLifetime)
	}
	raw := u.Query().Get("expire")
	if raw == "" {
		return now.Add(fallbackLifetime)
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return now.Add(fallbackLifetime)
	}
	return time.Unix(secs, 0).UTC()
}
