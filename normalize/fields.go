package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldMissingError reports a key absent from a raw record.
type FieldMissingError struct {
	Siret string
	Field string
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("missing key %s in siret %s received from API", e.Field, e.Siret)
}

// accessor remembers the first missing key met while reading a record, so
// mapping code can read every field without checking errors one by one.
type accessor struct {
	siret string
	err   error
}

func (a *accessor) missing(field string) {
	if a.err == nil {
		a.err = &FieldMissingError{Siret: a.siret, Field: field}
	}
}

func (a *accessor) root(m map[string]any) view {
	return view{acc: a, m: m}
}

// view is a JSON object reached at path. Null values read as "".
type view struct {
	acc  *accessor
	path string
	m    map[string]any
}

func (v view) join(key string) string {
	if v.path == "" {
		return key
	}

	return v.path + "." + key
}

func (v view) get(key string) (any, bool) {
	raw, ok := v.m[key]
	if !ok {
		v.acc.missing(v.join(key))
	}

	return raw, ok
}

func (v view) str(key string) string {
	raw, _ := v.get(key)

	return toString(raw)
}

func (v view) flag(key string) bool {
	raw, _ := v.get(key)
	b, _ := raw.(bool)

	return b
}

func (v view) object(key string) view {
	raw, _ := v.get(key)
	m, _ := raw.(map[string]any)

	return view{acc: v.acc, path: v.join(key), m: m}
}

// first returns the first element of the array at key.
func (v view) first(key string) view {
	child := view{acc: v.acc, path: v.join(key) + "[0]"}

	raw, ok := v.get(key)
	if !ok {
		return child
	}

	switch items := raw.(type) {
	case []any:
		if len(items) > 0 {
			child.m, _ = items[0].(map[string]any)

			return child
		}
	case []map[string]any:
		if len(items) > 0 {
			child.m = items[0]

			return child
		}
	}

	v.acc.missing(child.path)

	return child
}

func toString(raw any) string {
	switch t := raw.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]

	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}

	return strings.Join(kept, sep)
}
