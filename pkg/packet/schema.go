package packet

import (
	"strings"

	"github.com/linkedin/goavro/v2"
)

// Kind enumerates the Avro types understood by this package.
type Kind int

const (
	Null Kind = iota
	Boolean
	Int
	Long
	Float
	Double
	Bytes
	String
	Record
	Enum
	Array
	Union
)

var kindNames = map[Kind]string{
	Null:    "null",
	Boolean: "boolean",
	Int:     "int",
	Long:    "long",
	Float:   "float",
	Double:  "double",
	Bytes:   "bytes",
	String:  "string",
	Record:  "record",
	Enum:    "enum",
	Array:   "array",
	Union:   "union",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func primitiveKind(name string) (Kind, bool) {
	switch name {
	case "null":
		return Null, true
	case "boolean":
		return Boolean, true
	case "int":
		return Int, true
	case "long":
		return Long, true
	case "float":
		return Float, true
	case "double":
		return Double, true
	case "bytes":
		return Bytes, true
	case "string":
		return String, true
	}
	return 0, false
}

// Type is a node of the schema tree. The set of implementations is closed:
// *PrimitiveType, *RecordType, *EnumType, *ArrayType and *UnionType.
type Type interface {
	Kind() Kind
	isType()
}

type PrimitiveType struct {
	kind Kind
	// LogicalType is carried through unchanged, values keep their primitive
	// representation.
	LogicalType string
}

func (p *PrimitiveType) Kind() Kind { return p.kind }
func (*PrimitiveType) isType()      {}

// Named holds the identity shared by records and enums.
type Named struct {
	Name      string
	Namespace string
	Aliases   []string
	Doc       string
}

// FullName returns namespace.name, or name when there is no namespace.
func (n Named) FullName() string {
	if n.Namespace == "" {
		return n.Name
	}
	return n.Namespace + "." + n.Name
}

// matches reports whether other refers to the same type under name resolution,
// by unqualified name or by one of n's aliases.
func (n Named) matches(other Named) bool {
	if n.Name == other.Name {
		return true
	}
	for _, alias := range n.Aliases {
		if shortName(alias) == other.Name {
			return true
		}
	}
	return false
}

type RecordType struct {
	Named
	Fields []*Field
}

func (*RecordType) Kind() Kind { return Record }
func (*RecordType) isType()    {}

// Field returns the field with the given name, or nil.
func (r *RecordType) Field(name string) *Field {
	for _, f := range r.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

type Field struct {
	Name    string
	Type    Type
	Doc     string
	Aliases []string
	// Default holds the default in the same representation as decoded
	// values; it is only meaningful when HasDefault is set.
	Default    interface{}
	HasDefault bool
}

// Nullable reports whether null is an accepted value of the field.
func (f *Field) Nullable() bool {
	return isNullable(f.Type)
}

type EnumType struct {
	Named
	Symbols    []string
	Default    string
	HasDefault bool
}

func (*EnumType) Kind() Kind { return Enum }
func (*EnumType) isType()    {}

func (e *EnumType) index(symbol string) int {
	for i, s := range e.Symbols {
		if s == symbol {
			return i
		}
	}
	return -1
}

type ArrayType struct {
	Items Type
}

func (*ArrayType) Kind() Kind { return Array }
func (*ArrayType) isType()    {}

type UnionType struct {
	Branches []Type
}

func (*UnionType) Kind() Kind { return Union }
func (*UnionType) isType()    {}

// nonNull returns the branches other than null.
func (u *UnionType) nonNull() []Type {
	var out []Type
	for _, b := range u.Branches {
		if b.Kind() != Null {
			out = append(out, b)
		}
	}
	return out
}

func isNullable(t Type) bool {
	switch t := t.(type) {
	case *PrimitiveType:
		return t.kind == Null
	case *UnionType:
		for _, b := range t.Branches {
			if b.Kind() == Null {
				return true
			}
		}
	}
	return false
}

// Schema is a parsed, immutable alert schema rooted at a record.
type Schema struct {
	root        *RecordType
	version     Version
	definition  string
	canonical   string
	fingerprint uint64
	codec       *goavro.Codec
}

// Root returns the top level record.
func (s *Schema) Root() *RecordType { return s.root }

// Name returns the fully qualified name of the root record.
func (s *Schema) Name() string { return s.root.FullName() }

func (s *Schema) Namespace() string { return s.root.Namespace }

func (s *Schema) Version() Version { return s.version }

// Fields returns the root record's fields in declaration order.
func (s *Schema) Fields() []*Field { return s.root.Fields }

// String returns the full, self-contained JSON definition including docs,
// aliases and defaults.
func (s *Schema) String() string { return s.definition }

// Canonical returns the Avro Parsing Canonical Form.
func (s *Schema) Canonical() string { return s.canonical }

// Fingerprint is the CRC-64-AVRO (Rabin) fingerprint of the canonical form.
func (s *Schema) Fingerprint() uint64 { return s.fingerprint }

// Equal reports whether both schemas have the same full definition.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.definition == other.definition
}

func shortName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
