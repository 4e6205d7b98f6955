package xsite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		handle   string
		expected string
	}{
		{name: "default base", base: "", handle: "nasa", expected: "https://x.com/nasa/media"},
		{name: "base without slash", base: "https://x.com", handle: "nasa", expected: "https://x.com/nasa/media"},
		{name: "custom base", base: "http://localhost:8080/", handle: "a_b", expected: "http://localhost:8080/a_b/media"},
		{name: "empty handle", base: BaseURL, handle: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MediaURL(tt.base, tt.handle))
		})
	}
}

func TestCookieDomain(t *testing.T) {
	assert.Equal(t, ".x.com", CookieDomain("https://x.com/"))
	assert.Equal(t, ".x.com", CookieDomain(""))
	assert.Equal(t, ".twitter.com", CookieDomain("https://www.twitter.com"))
	assert.Equal(t, ".localhost", CookieDomain("http://localhost:9222/"))
}

func TestIsValidHandle(t *testing.T) {
	tests := []struct {
		handle string
		valid  bool
	}{
		{"nasa", true},
		{"Jack_2006", true},
		{"", false},
		{"this_is_too_long_x", false},
		{"dot.name", false},
		{"with-dash", false},
		{"@nasa", false},
	}

	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidHandle(tt.handle))
		})
	}
}

func TestSanitizeHandle(t *testing.T) {
	tests := map[string]string{
		"@nasa":                    "nasa",
		" nasa/ ":                  "nasa",
		"https://x.com/nasa/media": "nasa",
		"https://twitter.com/nasa": "nasa",
		"":                         "",
		"plain":                    "plain",
	}

	for in, want := range tests {
		assert.Equal(t, want, SanitizeHandle(in), "input %q", in)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "png", Extension("https://pbs.twimg.com/media/abc?format=png&name=large"))
	assert.Equal(t, "jpg", Extension("https://pbs.twimg.com/media/abc.jpg"))
	assert.Equal(t, "webp", Extension("https://pbs.twimg.com/media/abc.WEBP"))
	assert.Equal(t, "jpg", Extension("https://pbs.twimg.com/media/abc"))
	assert.Equal(t, "jpg", Extension("%%not a url"))
}

func TestOriginalURL(t *testing.T) {
	assert.Equal(t,
		"https://pbs.twimg.com/media/abc?format=jpg&name=orig",
		OriginalURL("https://pbs.twimg.com/media/abc?format=jpg&name=small"))
	assert.Equal(t,
		"https://pbs.twimg.com/media/abc?format=png&name=orig",
		OriginalURL("https://pbs.twimg.com/media/abc.png"))

	other := "https://example.com/media/abc?name=small"
	assert.Equal(t, other, OriginalURL(other))
}
