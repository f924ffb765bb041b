package indieweb

import (
	"fmt"
	"net/url"
	"strings"
)

// CanonicalURL standardizes a URL so the same resource maps to one key.
// It lowercases the scheme and host, removes default ports and fragments,
// sorts query parameters and turns an empty path into "/".
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// SameURL reports whether a and b canonicalize to the same URL.
func SameURL(a, b string) bool {
	ca, err := CanonicalURL(a)
	if err != nil {
		return false
	}
	cb, err := CanonicalURL(b)
	if err != nil {
		return false
	}
	return ca == cb
}

// DedupeURLs removes blank and duplicate URLs, comparing canonical forms and
// keeping the first spelling seen.
func DedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, err := CanonicalURL(raw)
		if err != nil {
			key = raw
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, raw)
	}
	return out
}
