package packet

import (
	"encoding/json"
	"strconv"
	"strings"
)

// writeDefinition renders the full definition of rec with every named type
// inlined at its first use.
func writeDefinition(rec *RecordType) string {
	w := &schemaWriter{seen: map[string]bool{}}
	w.full(rec)
	return w.String()
}

// writeCanonical renders the Parsing Canonical Form of rec.
func writeCanonical(rec *RecordType) string {
	w := &schemaWriter{seen: map[string]bool{}}
	w.canonical(rec)
	return w.String()
}

type schemaWriter struct {
	strings.Builder
	seen map[string]bool
}

func (w *schemaWriter) str(s string) {
	b, _ := json.Marshal(s)
	w.Write(b)
}

func (w *schemaWriter) key(k string) {
	w.str(k)
	w.WriteByte(':')
}

func (w *schemaWriter) list(items []string) {
	w.WriteByte('[')
	for i, s := range items {
		if i > 0 {
			w.WriteByte(',')
		}
		w.str(s)
	}
	w.WriteByte(']')
}

func (w *schemaWriter) named(n Named) {
	w.key("name")
	w.str(n.Name)
	if n.Namespace != "" {
		w.WriteByte(',')
		w.key("namespace")
		w.str(n.Namespace)
	}
	if n.Doc != "" {
		w.WriteByte(',')
		w.key("doc")
		w.str(n.Doc)
	}
	if len(n.Aliases) > 0 {
		w.WriteByte(',')
		w.key("aliases")
		w.list(n.Aliases)
	}
}

func (w *schemaWriter) full(t Type) {
	switch t := t.(type) {
	case *PrimitiveType:
		if t.LogicalType == "" {
			w.str(t.kind.String())
			return
		}
		w.WriteByte('{')
		w.key("type")
		w.str(t.kind.String())
		w.WriteByte(',')
		w.key("logicalType")
		w.str(t.LogicalType)
		w.WriteByte('}')

	case *RecordType:
		if w.seen[t.FullName()] {
			w.str(t.FullName())
			return
		}
		w.seen[t.FullName()] = true

		w.WriteByte('{')
		w.key("type")
		w.str("record")
		w.WriteByte(',')
		w.named(t.Named)
		w.WriteByte(',')
		w.key("fields")
		w.WriteByte('[')
		for i, f := range t.Fields {
			if i > 0 {
				w.WriteByte(',')
			}
			w.WriteByte('{')
			w.key("name")
			w.str(f.Name)
			w.WriteByte(',')
			w.key("type")
			w.full(f.Type)
			if f.Doc != "" {
				w.WriteByte(',')
				w.key("doc")
				w.str(f.Doc)
			}
			if len(f.Aliases) > 0 {
				w.WriteByte(',')
				w.key("aliases")
				w.list(f.Aliases)
			}
			if f.HasDefault {
				w.WriteByte(',')
				w.key("default")
				w.value(f.Type, f.Default)
			}
			w.WriteByte('}')
		}
		w.WriteString("]}")

	case *EnumType:
		if w.seen[t.FullName()] {
			w.str(t.FullName())
			return
		}
		w.seen[t.FullName()] = true

		w.WriteByte('{')
		w.key("type")
		w.str("enum")
		w.WriteByte(',')
		w.named(t.Named)
		w.WriteByte(',')
		w.key("symbols")
		w.list(t.Symbols)
		if t.HasDefault {
			w.WriteByte(',')
			w.key("default")
			w.str(t.Default)
		}
		w.WriteByte('}')

	case *ArrayType:
		w.WriteByte('{')
		w.key("type")
		w.str("array")
		w.WriteByte(',')
		w.key("items")
		w.full(t.Items)
		w.WriteByte('}')

	case *UnionType:
		w.WriteByte('[')
		for i, b := range t.Branches {
			if i > 0 {
				w.WriteByte(',')
			}
			w.full(b)
		}
		w.WriteByte(']')
	}
}

func (w *schemaWriter) canonical(t Type) {
	switch t := t.(type) {
	case *PrimitiveType:
		w.str(t.kind.String())

	case *RecordType:
		if w.seen[t.FullName()] {
			w.str(t.FullName())
			return
		}
		w.seen[t.FullName()] = true

		w.WriteByte('{')
		w.key("name")
		w.str(t.FullName())
		w.WriteByte(',')
		w.key("type")
		w.str("record")
		w.WriteByte(',')
		w.key("fields")
		w.WriteByte('[')
		for i, f := range t.Fields {
			if i > 0 {
				w.WriteByte(',')
			}
			w.WriteByte('{')
			w.key("name")
			w.str(f.Name)
			w.WriteByte(',')
			w.key("type")
			w.canonical(f.Type)
			w.WriteByte('}')
		}
		w.WriteString("]}")

	case *EnumType:
		if w.seen[t.FullName()] {
			w.str(t.FullName())
			return
		}
		w.seen[t.FullName()] = true

		w.WriteByte('{')
		w.key("name")
		w.str(t.FullName())
		w.WriteByte(',')
		w.key("type")
		w.str("enum")
		w.WriteByte(',')
		w.key("symbols")
		w.list(t.Symbols)
		w.WriteByte('}')

	case *ArrayType:
		w.WriteByte('{')
		w.key("type")
		w.str("array")
		w.WriteByte(',')
		w.key("items")
		w.canonical(t.Items)
		w.WriteByte('}')

	case *UnionType:
		w.WriteByte('[')
		for i, b := range t.Branches {
			if i > 0 {
				w.WriteByte(',')
			}
			w.canonical(b)
		}
		w.WriteByte(']')
	}
}

// value writes v, a value of type t, as JSON in Avro's default notation.
func (w *schemaWriter) value(t Type, v interface{}) {
	switch t := t.(type) {
	case *PrimitiveType:
		switch v := v.(type) {
		case nil:
			w.WriteString("null")
		case bool:
			w.WriteString(strconv.FormatBool(v))
		case int32:
			w.WriteString(strconv.FormatInt(int64(v), 10))
		case int64:
			w.WriteString(strconv.FormatInt(v, 10))
		case float32:
			w.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
		case float64:
			w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		case string:
			w.str(v)
		case []byte:
			var sb strings.Builder
			for _, c := range v {
				sb.WriteRune(rune(c))
			}
			w.str(sb.String())
		}

	case *EnumType:
		w.str(v.(string))

	case *ArrayType:
		items, _ := v.([]interface{})
		w.WriteByte('[')
		for i, item := range items {
			if i > 0 {
				w.WriteByte(',')
			}
			w.value(t.Items, item)
		}
		w.WriteByte(']')

	case *RecordType:
		m, _ := v.(map[string]interface{})
		w.WriteByte('{')
		for i, f := range t.Fields {
			if i > 0 {
				w.WriteByte(',')
			}
			w.key(f.Name)
			w.value(f.Type, m[f.Name])
		}
		w.WriteByte('}')

	case *UnionType:
		if v == nil {
			w.WriteString("null")
			return
		}
		if b := matchBranch(t, v); b != nil {
			w.value(b, v)
			return
		}
		w.WriteString("null")
	}
}
