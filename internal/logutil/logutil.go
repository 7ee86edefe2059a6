package logutil

import (
	"encoding/json"
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case normalized == "user", normalized == "username":
		return true
	case strings.Contains(normalized, "accesskey"):
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	default:
		return false
	}
}

// RedactJSON redacts sensitive fields at any depth of a JSON document.
// Input that is not valid JSON is returned unchanged.
func RedactJSON(body []byte) string {
	text := string(body)

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return text
	}

	var redact func(v any)
	redact = func(v any) {
		switch typed := v.(type) {
		case map[string]any:
			for k, child := range typed {
				if IsSensitiveLogField(k) {
					typed[k] = redacted
					continue
				}
				redact(child)
			}
		case []any:
			for _, child := range typed {
				redact(child)
			}
		}
	}

	redact(payload)
	safeJSON, err := json.Marshal(payload)
	if err != nil {
		return text
	}
	return string(safeJSON)
}

// RedactEndpoint returns a grid WebSocket URL that is safe to log: the JSON
// carried in the capabilities query parameter has its credentials redacted.
func RedactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return redacted
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	q := u.Query()
	raw := q.Get("capabilities")
	if raw == "" {
		return u.String()
	}
	q.Set("capabilities", RedactJSON([]byte(raw)))
	u.RawQuery = q.Encode()
	return u.String()
}

// MaskSecret keeps the first n characters of a secret for display.
func MaskSecret(secret string, n int) string {
	if secret == "" {
		return "<unset>"
	}
	if n <= 0 || len(secret) <= n {
		return "..."
	}
	return secret[:n] + "..."
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	return normalized[:maxChars] + "... [truncated]"
}
