// Package urlutil joins playground paths onto the configured base URL.
package urlutil

import "strings"

// Join appends path to base. Absolute http(s) paths are returned unchanged,
// and base keeps its own path, unlike URL reference resolution:
//
//	Join("https://host/playground", "/demo") == "https://host/playground/demo"
func Join(base, path string) string {
	base = normalizeBase(base)
	path = strings.TrimSpace(path)
	if path == "" {
		return base
	}
	if IsAbsolute(path) {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

// IsAbsolute reports whether raw carries an http or https scheme.
func IsAbsolute(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

func normalizeBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}
