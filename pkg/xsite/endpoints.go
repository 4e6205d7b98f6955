package xsite

import (
	"net/url"
	"path"
	"strings"
)

const (
	// BaseURL is the default site root, with a trailing slash
	BaseURL = "https://x.com/"

	// MediaPath is appended to a profile URL to reach its media grid
	MediaPath = "/media"

	// AuthCookie is the name of the session cookie carrying the auth token
	AuthCookie = "auth_token"

	// MediaHost serves full-size images
	MediaHost = "pbs.twimg.com"

	// DefaultFormat is used when an image URL carries no format parameter
	DefaultFormat = "jpg"

	// MaxHandleLength is the longest handle the site accepts
	MaxHandleLength = 15
)

func normalizeBase(base string) string {
	if base == "" {
		base = BaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// ProfileURL returns the profile page for a handle
func ProfileURL(base, handle string) string {
	if handle == "" {
		return ""
	}
	return normalizeBase(base) + handle
}

// MediaURL returns the media timeline page for a handle
func MediaURL(base, handle string) string {
	if handle == "" {
		return ""
	}
	return ProfileURL(base, handle) + MediaPath
}

// CookieDomain returns the cookie domain for a base URL, e.g. ".x.com"
func CookieDomain(base string) string {
	u, err := url.Parse(normalizeBase(base))
	if err != nil || u.Hostname() == "" {
		return ".x.com"
	}
	return "." + strings.TrimPrefix(u.Hostname(), "www.")
}

// IsValidHandle reports whether handle follows the site's handle rules
func IsValidHandle(handle string) bool {
	if handle == "" || len(handle) > MaxHandleLength {
		return false
	}

	for _, char := range handle {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}

	return true
}

// SanitizeHandle strips a leading @, surrounding blanks and trailing slashes.
// Full profile URLs are reduced to their first path segment.
func SanitizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, "http://") || strings.HasPrefix(handle, "https://") {
		if u, err := url.Parse(handle); err == nil {
			handle = strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)[0]
		}
	}
	handle = strings.TrimPrefix(handle, "@")
	return strings.TrimRight(handle, "/ ")
}

// IsMediaURL reports whether raw points at a full-size image asset
func IsMediaURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host == MediaHost && strings.HasPrefix(u.Path, "/media/")
}

// Extension returns the file extension for an image URL, taken from the
// format query parameter or the path and falling back to DefaultFormat.
func Extension(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return DefaultFormat
	}
	if f := u.Query().Get("format"); f != "" {
		return strings.ToLower(f)
	}
	if ext := strings.TrimPrefix(path.Ext(u.Path), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return DefaultFormat
}

// OriginalURL rewrites an image URL to request the original upload size.
// URLs that are not media assets are returned unchanged.
func OriginalURL(raw string) string {
	if !IsMediaURL(raw) {
		return raw
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	if q.Get("format") == "" {
		q.Set("format", Extension(raw))
		u.Path = strings.TrimSuffix(u.Path, path.Ext(u.Path))
	}
	q.Set("name", "orig")
	u.RawQuery = q.Encode()
	return u.String()
}
