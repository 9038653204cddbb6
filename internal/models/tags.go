package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Tags stores a resource tag set as a JSON array. A nil set is written as [].
type Tags []string

// NormalizeTags trims, drops empty entries and removes duplicates while keeping first-seen order.
func NormalizeTags(tags []string) Tags {
	out := make(Tags, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// Contains reports whether the set holds tag, ignoring case.
func (t Tags) Contains(tag string) bool {
	for _, existing := range t {
		if strings.EqualFold(existing, strings.TrimSpace(tag)) {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer for database serialization. Tags are stored without
// HTML escaping so text search sees "&", "<" and ">" as written.
func (t Tags) Value() (driver.Value, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if errEncode := enc.Encode([]string(NormalizeTags(t))); errEncode != nil {
		return nil, fmt.Errorf("tags marshal: %w", errEncode)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Scan implements sql.Scanner for database deserialization.
func (t *Tags) Scan(value any) error {
	if t == nil {
		return fmt.Errorf("tags scan: nil receiver")
	}
	var data []byte
	switch typed := value.(type) {
	case nil:
		*t = Tags{}
		return nil
	case []byte:
		data = typed
	case string:
		data = []byte(typed)
	default:
		return fmt.Errorf("tags scan: unsupported type %T", value)
	}
	if len(data) == 0 {
		*t = Tags{}
		return nil
	}
	var list []string
	if errUnmarshal := json.Unmarshal(data, &list); errUnmarshal != nil {
		return fmt.Errorf("tags scan: %w", errUnmarshal)
	}
	*t = NormalizeTags(list)
	return nil
}
