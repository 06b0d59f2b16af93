package log

import "strings"

// DefaultRedactedFields lists field names whose values never reach an output.
var DefaultRedactedFields = []string{"token", "secret", "authorization", "api_key", "password"}

// RedactionHook replaces the value of sensitive fields.
type RedactionHook struct {
	fields map[string]struct{}
}

// NewRedactionHook creates a redaction hook for the given field names,
// matched case-insensitively.
func NewRedactionHook(fields ...string) *RedactionHook {
	h := &RedactionHook{fields: make(map[string]struct{}, len(fields))}
	for _, f := range fields {
		h.fields[strings.ToLower(f)] = struct{}{}
	}
	return h
}

// Fire redacts matching fields in place.
func (h *RedactionHook) Fire(entry *Entry) error {
	for k := range entry.Fields {
		if _, ok := h.fields[strings.ToLower(k)]; ok {
			entry.Fields[k] = "[REDACTED]"
		}
	}
	return nil
}
