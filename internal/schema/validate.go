package schema

import (
	"fmt"
	"math"
	"sort"

	"openlms/internal/apierr"
)

// Validate checks rawInput against the resource schema and returns the
// normalized parameter set. creating toggles enforcement of required fields;
// updates never re-require creation-only fields.
//
// Read-only fields present in the input are silently dropped, never rejected.
// The identity field is the one exception and is handled by the caller before
// validation, because an id on a creation request is a hard error rather than
// a no-op.
func Validate(r Resource, creating bool, rawInput map[string]any) (map[string]any, *apierr.Error) {
	if creating {
		var missing []string
		for _, f := range r.Fields {
			if !f.Required {
				continue
			}
			v, ok := rawInput[f.Name]
			if !ok || isEmpty(v) {
				missing = append(missing, f.Name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, apierr.MissingParameter(missing...)
		}
	}

	normalized := map[string]any{}
	for _, f := range r.Fields {
		raw, ok := rawInput[f.Name]
		if !ok {
			continue
		}
		if f.ReadOnly || !f.InContext(ContextEdit) {
			continue
		}
		v, err := normalizeField(f, raw)
		if err != nil {
			return nil, err
		}
		normalized[f.Name] = v
	}
	return normalized, nil
}

func normalizeField(f Field, raw any) (any, *apierr.Error) {
	switch f.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, apierr.InvalidParameter(f.Name, "must be a string")
		}
		return s, nil
	case KindEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, apierr.InvalidParameter(f.Name, "must be a string")
		}
		for _, allowed := range f.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, apierr.InvalidParameter(f.Name, fmt.Sprintf("%q is not one of the allowed values", s))
	case KindInt:
		n, ok := asInt(raw)
		if !ok {
			return nil, apierr.InvalidParameter(f.Name, "must be an integer")
		}
		return n, nil
	case KindFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		return nil, apierr.InvalidParameter(f.Name, "must be a number")
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, apierr.InvalidParameter(f.Name, "must be a boolean")
		}
		return b, nil
	case KindIntList:
		list, ok := raw.([]any)
		if !ok {
			return nil, apierr.InvalidParameter(f.Name, "must be an array of integers")
		}
		out := make([]int64, 0, len(list))
		for _, item := range list {
			n, ok := asInt(item)
			if !ok {
				return nil, apierr.InvalidParameter(f.Name, "must be an array of integers")
			}
			out = append(out, n)
		}
		return out, nil
	case KindObject:
		return normalizeObject(f, raw)
	}
	return nil, apierr.InvalidParameter(f.Name, "unsupported field kind")
}

// normalizeObject accepts either the nested object form or a bare scalar,
// which is interpreted as the raw sub-value.
func normalizeObject(f Field, raw any) (any, *apierr.Error) {
	if f.Nested == nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, apierr.InvalidParameter(f.Name, "must be an object")
		}
		return obj, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		if s, isScalar := raw.(string); isScalar {
			obj = map[string]any{"raw": s}
		} else {
			return nil, apierr.InvalidParameter(f.Name, "must be an object or a string")
		}
	}
	out := map[string]any{}
	for _, sub := range f.Nested.Fields {
		v, present := obj[sub.Name]
		if !present || sub.ReadOnly || !sub.InContext(ContextEdit) {
			continue
		}
		nv, err := normalizeField(sub, v)
		if err != nil {
			return nil, apierr.InvalidParameter(f.Name+"."+sub.Name, err.Message)
		}
		out[sub.Name] = nv
	}
	return out, nil
}

func asInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		raw, ok := t["raw"].(string)
		if ok {
			return raw == ""
		}
		return len(t) == 0
	}
	return false
}
