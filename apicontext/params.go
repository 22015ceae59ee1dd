package apicontext

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Loosely-typed API call parameters. Values may be strings, booleans, integers, [fmt.Stringer] or [encoding.TextMarshaler] values, or slices of any of those.
type Params map[string]any

// Flattens params into plain strings. Slices are joined with commas, so []string{"a", "b"} and "a,b" produce the same value. A nil value becomes the empty string.
func NormalizeParams(raw Params) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := paramString(v)
		if err != nil {
			return nil, fmt.Errorf("can't encode param '%s': %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func paramString(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case int, uint, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	case encoding.TextMarshaler:
		b, err := v.MarshalText()
		if err != nil {
			return "", err
		}
		return string(b), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	ref := reflect.ValueOf(v)
	if ref.Kind() != reflect.Slice && ref.Kind() != reflect.Array {
		return "", fmt.Errorf("unsupported type: %T", v)
	}
	elems := make([]string, 0, ref.Len())
	for i := 0; i < ref.Len(); i++ {
		elem := ref.Index(i).Interface()
		if k := reflect.ValueOf(elem).Kind(); k == reflect.Slice || k == reflect.Array {
			return "", fmt.Errorf("nested slice type: %T", v)
		}
		s, err := paramString(elem)
		if err != nil {
			return "", err
		}
		elems = append(elems, s)
	}
	return strings.Join(elems, ","), nil
}

// Returns the keys of params in lexicographic order.
func sortedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
