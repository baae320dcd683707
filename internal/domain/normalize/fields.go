package normalize

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// object is a decoded JSON object. Numbers are json.Number.
type object map[string]interface{}

func (o object) has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

func (o object) keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// missing returns the first required key that is absent or null
func (o object) missing(required ...string) (string, bool) {
	for _, k := range required {
		if !o.has(k) {
			return k, true
		}
	}
	return "", false
}

func (o object) obj(key string) (object, bool) {
	m, ok := o[key].(map[string]interface{})
	return object(m), ok
}

func (o object) arr(key string) ([]interface{}, bool) {
	a, ok := o[key].([]interface{})
	return a, ok
}

// str renders scalars as text; objects and arrays yield ""
func (o object) str(key string) string {
	switch v := o[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// first returns the text of the first present key
func (o object) first(keys ...string) string {
	for _, k := range keys {
		if s := o.str(k); s != "" {
			return s
		}
	}
	return ""
}

// intID reads an identifier that must be an integer, either a JSON number or
// a numeric string.
func (o object) intID(key string) (int64, bool) {
	switch v := o[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// intValue reads a loose integer (count, progress). "40%" and 40.6 are accepted.
func (o object) intValue(key string) (int, bool) {
	var f float64
	switch v := o[key].(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

// parseTimestamp accepts everything types.ParseTimestamp does plus JSON
// numbers holding epoch seconds or milliseconds.
func parseTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case json.Number:
		return types.FromEpoch(t.String())
	case string:
		return types.ParseTimestamp(t)
	}
	return time.Time{}, fmt.Errorf("timestamp must be a string or number")
}

// sanitizer strips markup from producer strings before they reach the UI
type sanitizer struct {
	policy *bluemonday.Policy
}

func newSanitizer() *sanitizer {
	return &sanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses bounds how many entity-encoding layers are peeled
const maxSanitizePasses = 8

// clean returns plain text. Entity-encoded markup decodes into markup, so
// stripping repeats until the text stops changing.
func (s *sanitizer) clean(in string) string {
	if in == "" || !strings.ContainsAny(in, "<>&") {
		return in
	}
	out := in
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	// still unstable: hand back the escaped form rather than live markup
	return strings.TrimSpace(s.policy.Sanitize(out))
}
