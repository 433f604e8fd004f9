// Package nodeconfig gives typed, default-tolerant access to the free-form
// config map carried by workflow nodes.
package nodeconfig

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Config wraps a node's config map. Accessors never fail: a missing key or a
// value of the wrong shape yields the supplied default.
type Config struct {
	data map[string]any
}

// New wraps data. A nil map behaves as an empty config.
func New(data map[string]any) Config {
	if data == nil {
		data = map[string]any{}
	}
	return Config{data: data}
}

// String returns the string at key.
func (c Config) String(key, def string) string {
	if s, ok := c.data[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the bool at key.
func (c Config) Bool(key string, def bool) bool {
	if b, ok := c.data[key].(bool); ok {
		return b
	}
	return def
}

// Int returns the integral number at key. Decoders disagree on numeric
// types (float64 from JSON, int from YAML, json.Number from UseNumber), so
// all of them are accepted; floats with a fractional part are rejected.
func (c Config) Int(key string, def int) int {
	n, ok := c.IntOK(key)
	if !ok {
		return def
	}
	return n
}

// IntOK is Int with an explicit presence flag.
func (c Config) IntOK(key string) (int, bool) {
	switch v := c.data[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

// Float returns the number at key as float64.
func (c Config) Float(key string, def float64) float64 {
	switch v := c.data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Duration returns the duration at key. Strings are parsed with
// time.ParseDuration; bare numbers are seconds.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	d, err := c.DurationErr(key)
	if err != nil || d == 0 && !c.Has(key) {
		return def
	}
	return d
}

// DurationErr parses the duration at key and reports malformed values.
// A missing key yields (0, nil).
func (c Config) DurationErr(key string) (time.Duration, error) {
	switch v := c.data[key].(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(v)
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("%s: expected duration, got %T", key, v)
	}
}

// StringSlice returns the list of strings at key. A list holding any
// non-string element yields def.
func (c Config) StringSlice(key string, def []string) []string {
	switch v := c.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	}
	return def
}

// Slice returns the list at key and whether the value is a list at all.
func (c Config) Slice(key string) ([]any, bool) {
	v, ok := c.data[key]
	if !ok || v == nil {
		return nil, false
	}
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Map returns the nested config at key.
func (c Config) Map(key string) Config {
	if m, ok := c.data[key].(map[string]any); ok {
		return New(m)
	}
	return New(nil)
}

// Any returns the raw value at key.
func (c Config) Any(key string, def any) any {
	if v, ok := c.data[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is present, even with a nil value.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Raw returns the wrapped map. Callers must not modify it.
func (c Config) Raw() map[string]any {
	return c.data
}
