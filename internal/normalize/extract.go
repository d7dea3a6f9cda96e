package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Field is an ordered list of dotted paths into a decoded JSON tree. The
// first path that resolves to a usable value wins.
type Field []string

// nestedKeys are tried, in order, when a scalar is expected but an object
// was found (e.g. "country": {"name": "India"}).
var nestedKeys = []string{"name", "code", "text", "default", "iata", "icao", "utc"}

// lookup walks one dotted path.
func lookup(raw any, path string) (any, bool) {
	cur := raw
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String returns the first non-empty string the field resolves to.
func (f Field) String(raw any) string {
	for _, path := range f {
		v, ok := lookup(raw, path)
		if !ok {
			continue
		}
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

// Float returns the first numeric value the field resolves to, or 0.
func (f Field) Float(raw any) float64 {
	for _, path := range f {
		v, ok := lookup(raw, path)
		if !ok {
			continue
		}
		if n, ok := asFloat(v); ok {
			return n
		}
	}
	return 0
}

// Int is Float rounded to the nearest integer.
func (f Field) Int(raw any) int {
	return int(math.Round(f.Float(raw)))
}

// Minutes reads a duration in minutes. Plain numbers are taken as minutes;
// "HH:MM:SS" strings are converted.
func (f Field) Minutes(raw any) float64 {
	for _, path := range f {
		v, ok := lookup(raw, path)
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr {
			if m, ok := clockMinutes(s); ok {
				return m
			}
		}
		if n, ok := asFloat(v); ok {
			return n
		}
	}
	return 0
}

// Time returns the first parseable timestamp, in UTC, or nil.
func (f Field) Time(raw any) *time.Time {
	for _, path := range f {
		v, ok := lookup(raw, path)
		if !ok {
			continue
		}
		if t, ok := parseTime(asString(v)); ok {
			return &t
		}
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case map[string]any:
		for _, k := range nestedKeys {
			if inner, ok := s[k]; ok && inner != nil {
				if str := asString(inner); str != "" {
					return str
				}
			}
		}
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// clockMinutes parses "HH:MM:SS" or "HH:MM" into minutes.
func clockMinutes(s string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	var total float64
	scale := []float64{60, 1, 1.0 / 60}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		total += float64(n) * scale[i]
	}
	return math.Round(total*100) / 100, true
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
