package meeting

import (
	"net/url"
	"strings"

	"meetscribe/internal/session"
)

// Detect classifies a page URL as one of the supported meeting platforms.
func Detect(rawURL string) session.Platform {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return session.PlatformUnknown
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case host == "meet.google.com":
		return session.PlatformMeet
	case host == "teams.microsoft.com" || host == "teams.live.com" ||
		strings.HasSuffix(host, ".teams.microsoft.com"):
		return session.PlatformTeams
	default:
		return session.PlatformUnknown
	}
}

// IsSupported reports whether the URL belongs to a platform we can capture.
func IsSupported(rawURL string) bool {
	return Detect(rawURL) != session.PlatformUnknown
}

// NormalizeURL reduces a meeting URL to lowercase host plus path with any
// trailing slash removed. Query string and fragment are dropped so that
// rejoining the same meeting through a different invite link still matches.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}
	host := strings.ToLower(parsed.Hostname())
	path := strings.TrimSuffix(parsed.EscapedPath(), "/")
	if host == "" {
		return path
	}
	return host + path
}

// SameMeeting reports whether two URLs identify the same meeting instance
// under host+path equality.
func SameMeeting(a, b string) bool {
	na := NormalizeURL(a)
	if na == "" {
		return false
	}
	return na == NormalizeURL(b)
}
