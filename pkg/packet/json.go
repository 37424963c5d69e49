package packet

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// FromJSON converts a plain JSON document, such as a packaged sample alert,
// into record values typed after s. Fields missing from the document are
// left out; Serialize fills them from their defaults.
func FromJSON(data []byte, s *Schema) (AlertRecord, error) {
	raw, err := decodeJSON(data)
	if err != nil {
		return AlertRecord{}, errors.Wrap(err, "cannot parse alert JSON")
	}

	v, err := convertValue(s.root, raw, s.root.Name, false)
	if err != nil {
		return AlertRecord{}, err
	}

	return AlertRecord{Fields: v.(map[string]interface{})}, nil
}

// convertValue maps a decoded JSON value onto t. With fill set, absent
// record fields take their defaults, as required for schema defaults.
func convertValue(t Type, raw interface{}, path string, fill bool) (interface{}, error) {
	switch t := t.(type) {
	case *PrimitiveType:
		return convertPrimitive(t.kind, raw, path)

	case *EnumType:
		s, ok := raw.(string)
		if !ok || t.index(s) < 0 {
			return nil, errors.Errorf("%s: %v is not a symbol of enum %s", path, raw, t.FullName())
		}
		return s, nil

	case *ArrayType:
		list, ok := raw.([]interface{})
		if !ok {
			return nil, errors.Errorf("%s: expected an array, got %T", path, raw)
		}
		out := make([]interface{}, 0, len(list))
		for i, item := range list {
			v, err := convertValue(t.Items, item, indexPath(path, i), fill)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case *RecordType:
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("%s: expected an object for record %s, got %T", path, t.FullName(), raw)
		}
		out := make(map[string]interface{}, len(t.Fields))
		for _, f := range t.Fields {
			rv, ok := m[f.Name]
			if !ok {
				if !fill {
					continue
				}
				if !f.HasDefault {
					return nil, errors.Errorf("%s: missing field %s without default", path, f.Name)
				}
				out[f.Name] = copyValue(f.Default)
				continue
			}
			v, err := convertValue(f.Type, rv, path+"."+f.Name, fill)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		if !fill {
			// keep undeclared keys so that validation can report them
			for k, v := range m {
				if t.Field(k) == nil {
					out[k] = v
				}
			}
		}
		return out, nil

	case *UnionType:
		if raw == nil {
			if isNullable(t) {
				return nil, nil
			}
			return nil, errors.Errorf("%s: null is not allowed", path)
		}
		for _, b := range t.nonNull() {
			if v, err := convertValue(b, raw, path, fill); err == nil {
				return v, nil
			}
		}
		return nil, errors.Errorf("%s: %v matches no branch of the union", path, raw)
	}

	return nil, errors.Errorf("%s: unsupported type", path)
}

func convertPrimitive(k Kind, raw interface{}, path string) (interface{}, error) {
	switch k {
	case Null:
		if raw != nil {
			return nil, errors.Errorf("%s: expected null, got %v", path, raw)
		}
		return nil, nil

	case Boolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, errors.Errorf("%s: expected a boolean, got %v", path, raw)
		}
		return b, nil

	case Int, Long:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, errors.Errorf("%s: expected an integer, got %v", path, raw)
		}
		i, err := cast.ToInt64E(n.String())
		if err != nil {
			return nil, errors.Errorf("%s: %v is not an integer", path, raw)
		}
		if k == Long {
			return i, nil
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, errors.Errorf("%s: %d overflows int", path, i)
		}
		return int32(i), nil

	case Float, Double:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, errors.Errorf("%s: expected a number, got %v", path, raw)
		}
		f, err := cast.ToFloat64E(n.String())
		if err != nil {
			return nil, errors.Errorf("%s: %v is not a number", path, raw)
		}
		if k == Float {
			return float32(f), nil
		}
		return f, nil

	case String:
		s, ok := raw.(string)
		if !ok {
			return nil, errors.Errorf("%s: expected a string, got %v", path, raw)
		}
		return s, nil

	case Bytes:
		s, ok := raw.(string)
		if !ok {
			return nil, errors.Errorf("%s: expected a string of bytes, got %v", path, raw)
		}
		out := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xff {
				return nil, errors.Errorf("%s: code point %U does not fit in a byte", path, r)
			}
			out = append(out, byte(r))
		}
		return out, nil
	}

	return nil, errors.Errorf("%s: unsupported primitive %s", path, k)
}

// copyValue deep copies mutable values so defaults are never shared with
// decoded records.
func copyValue(v interface{}) interface{} {
	switch v := v.(type) {
	case []byte:
		return append([]byte(nil), v...)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = copyValue(v[i])
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = copyValue(item)
		}
		return out
	}
	return v
}
