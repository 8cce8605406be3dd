package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Record is one row of a collection, keyed by column name.
// Backends return driver-native values; the accessors below normalize them.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Unwrap dereferences pointer values scanned by database drivers and
// converts byte slices to strings.
func Unwrap(v any) any {
	switch x := v.(type) {
	case *any:
		if x == nil {
			return nil
		}
		return Unwrap(*x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case []byte:
		return string(x)
	}
	return v
}

// Project returns a copy of r limited to columns. Empty columns returns a clone.
func (r Record) Project(columns []string) Record {
	if len(columns) == 0 {
		return r.Clone()
	}
	out := make(Record, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

// String returns the value of key as a string ("" when absent or null).
func (r Record) String(key string) string {
	switch v := Unwrap(r[key]).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// StringPtr returns nil for absent, null or empty values.
func (r Record) StringPtr(key string) *string {
	s := r.String(key)
	if s == "" {
		return nil
	}
	return &s
}

// Int returns the value of key as an int (0 when absent or unparsable).
func (r Record) Int(key string) int {
	switch v := Unwrap(r[key]).(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case []byte:
		n, _ := strconv.Atoi(string(v))
		return n
	}
	return 0
}

// Time returns the value of key as a time (zero when absent or unparsable).
// Strings are parsed as RFC3339 and, failing that, as SQL datetime text.
func (r Record) Time(key string) time.Time {
	switch v := Unwrap(r[key]).(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	}
	return time.Time{}
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// DecodeJSON decodes a JSON column into dst.
// The column may hold JSON text, raw bytes or an already-decoded value.
// Absent or empty columns leave dst untouched.
func (r Record) DecodeJSON(key string, dst any) error {
	var raw []byte
	switch v := Unwrap(r[key]).(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("re-encode %s: %w", key, err)
		}
		raw = b
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// EncodeJSON renders v as JSON text for storage in a JSON column.
func EncodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
