package forms

import (
	"strings"
	"time"
)

// Payload is a raw form answer set. Webhook senders control its shape, so
// everything here tolerates absence and wrong types instead of failing.
type Payload map[string]any

// StringAt walks nested maps along path and returns the string value at
// the end, or "" if any step is missing or not a string.
func (p Payload) StringAt(path ...string) string {
	var current any = map[string]any(p)
	for _, step := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = m[step]
	}
	switch v := current.(type) {
	case string:
		return v
	default:
		return ""
	}
}

// timeLayouts are tried in order when parsing source timestamps. Upstream
// senders are inconsistent about zone suffixes and separators.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// TimeAt parses the string at path as a timestamp. Unparsable values
// degrade to nil rather than failing the record.
func (p Payload) TimeAt(path ...string) *time.Time {
	return ParseTime(p.StringAt(path...))
}

// ParseTime parses a source date string, returning nil when it cannot.
func ParseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// Identity returns the normalized client identity from the payload's
// Email field: any mailto: wrapper stripped, trimmed, lower-cased.
func (p Payload) Identity() string {
	return NormalizeIdentity(p.StringAt("Email"))
}

// NormalizeIdentity lower-cases and trims an email string, stripping a
// URI-scheme prefix such as "mailto:".
func NormalizeIdentity(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.Index(email, ":"); i >= 0 && strings.EqualFold(email[:i], "mailto") {
		email = email[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(email))
}

// CompanyName returns the top-level CompanyName answer, if any.
func (p Payload) CompanyName() string {
	return strings.TrimSpace(p.StringAt("CompanyName"))
}

// LogoFile returns the upstream URL and filename hint of an embedded
// company logo upload. File-upload answers arrive either as a single
// object, a one-element array of objects, or occasionally a bare URL.
func (p Payload) LogoFile() (url, name string, ok bool) {
	raw, exists := p["CompanyLogo"]
	if !exists {
		return "", "", false
	}
	if list, isList := raw.([]any); isList {
		if len(list) == 0 {
			return "", "", false
		}
		raw = list[0]
	}
	switch v := raw.(type) {
	case map[string]any:
		file, _ := v["File"].(string)
		hint, _ := v["Name"].(string)
		file = strings.TrimSpace(file)
		if file == "" {
			return "", "", false
		}
		return file, strings.TrimSpace(hint), true
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return "", "", false
		}
		return v, "", true
	default:
		return "", "", false
	}
}
