package crawler

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Record is one upstream object as decoded from JSON, or one table row as read
// back from disk (in which case every value is a string).
type Record map[string]any

// FormatBool renders booleans the way the persisted tables store them.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool accepts the textual flag forms found in persisted tables.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "sim":
		return true
	default:
		return false
	}
}

// FormatValue renders a decoded JSON value as a table cell.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return FormatBool(val)
	case json.Number:
		return val.String()
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// String returns the cell form of key, or "" when absent.
func (r Record) String(key string) string {
	return FormatValue(r[key])
}

// Bool interprets key as a flag. Absent keys are false.
func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		return ParseBool(v)
	default:
		return ParseBool(FormatValue(v))
	}
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// UnionKeys returns the sorted union of keys across records.
func UnionKeys(records []Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
