package packet

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Parse parses a self-contained JSON schema definition whose top level type
// is a record.
func Parse(definition string) (*Schema, error) {
	return parseWithDefinitions([]byte(definition), nil)
}

// parseWithDefinitions parses root and resolves named type references
// against defs, keyed by full name, as loaded from sibling schema files.
func parseWithDefinitions(root []byte, defs map[string]map[string]interface{}) (*Schema, error) {
	raw, err := decodeJSON(root)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSchema, err.Error())
	}

	p := &parser{
		defs:       defs,
		named:      map[string]Type{},
		inProgress: map[string]bool{},
	}

	t, err := p.parseType(raw, "")
	if err != nil {
		return nil, err
	}

	rec, ok := t.(*RecordType)
	if !ok {
		return nil, invalidSchemaf("top level type must be a record, got %s", t.Kind())
	}

	return newSchema(rec)
}

func newSchema(rec *RecordType) (*Schema, error) {
	s := &Schema{
		root:       rec,
		definition: writeDefinition(rec),
		canonical:  writeCanonical(rec),
	}
	s.version, _ = versionFromNamespace(rec.Namespace)

	codec, err := goavro.NewCodec(s.canonical)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSchema, "canonical form rejected: %v", err)
	}
	s.fingerprint = codec.Rabin
	s.codec = codec

	return s, nil
}

func decodeJSON(data []byte) (interface{}, error) {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()

	var out interface{}
	if err := d.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

type parser struct {
	defs       map[string]map[string]interface{}
	named      map[string]Type
	inProgress map[string]bool
}

func (p *parser) parseType(raw interface{}, namespace string) (Type, error) {
	switch v := raw.(type) {
	case string:
		if k, ok := primitiveKind(v); ok {
			return &PrimitiveType{kind: k}, nil
		}
		return p.reference(v, namespace)

	case []interface{}:
		return p.parseUnion(v, namespace)

	case map[string]interface{}:
		return p.parseComplex(v, namespace)
	}

	return nil, invalidSchemaf("unexpected type definition %v", raw)
}

func (p *parser) parseComplex(m map[string]interface{}, namespace string) (Type, error) {
	switch typ := m["type"].(type) {
	case string:
		switch typ {
		case "record", "error":
			return p.parseRecord(m, namespace)
		case "enum":
			return p.parseEnum(m, namespace)
		case "array":
			items, ok := m["items"]
			if !ok {
				return nil, invalidSchemaf("array without items")
			}
			t, err := p.parseType(items, namespace)
			if err != nil {
				return nil, err
			}
			return &ArrayType{Items: t}, nil
		case "map", "fixed":
			return nil, invalidSchemaf("type %q is not supported", typ)
		}

		if k, ok := primitiveKind(typ); ok {
			logical, _ := m["logicalType"].(string)
			return &PrimitiveType{kind: k, LogicalType: logical}, nil
		}
		return p.reference(typ, namespace)

	case nil:
		return nil, invalidSchemaf("type definition without type: %v", m)

	default:
		return p.parseType(typ, namespace)
	}
}

func (p *parser) parseUnion(branches []interface{}, namespace string) (Type, error) {
	if len(branches) == 0 {
		return nil, invalidSchemaf("empty union")
	}

	u := &UnionType{}
	seen := map[string]bool{}
	for _, b := range branches {
		t, err := p.parseType(b, namespace)
		if err != nil {
			return nil, err
		}

		key := t.Kind().String()
		switch t := t.(type) {
		case *UnionType:
			return nil, invalidSchemaf("unions may not immediately contain other unions")
		case *RecordType:
			key = t.FullName()
		case *EnumType:
			key = t.FullName()
		}
		if seen[key] {
			return nil, invalidSchemaf("union contains %s more than once", key)
		}
		seen[key] = true

		u.Branches = append(u.Branches, t)
	}

	return u, nil
}

func (p *parser) parseNamed(m map[string]interface{}, namespace string) (Named, error) {
	name, _ := m["name"].(string)
	if name == "" {
		return Named{}, invalidSchemaf("named type without name")
	}

	n := Named{Namespace: namespace}
	if ns, ok := m["namespace"].(string); ok {
		n.Namespace = ns
	}
	if i := lastDot(name); i >= 0 {
		n.Namespace = name[:i]
		name = name[i+1:]
	}
	n.Name = name
	if !validName.MatchString(name) {
		return Named{}, invalidSchemaf("invalid name %q", name)
	}

	n.Doc, _ = m["doc"].(string)

	aliases, err := stringList(m["aliases"])
	if err != nil {
		return Named{}, errors.Wrapf(err, "aliases of %s", n.FullName())
	}
	n.Aliases = aliases

	if _, ok := p.named[n.FullName()]; ok || p.inProgress[n.FullName()] {
		return Named{}, invalidSchemaf("type %s is defined more than once", n.FullName())
	}

	return n, nil
}

func (p *parser) parseRecord(m map[string]interface{}, namespace string) (Type, error) {
	named, err := p.parseNamed(m, namespace)
	if err != nil {
		return nil, err
	}

	full := named.FullName()
	p.inProgress[full] = true
	defer delete(p.inProgress, full)

	rawFields, ok := m["fields"].([]interface{})
	if !ok {
		return nil, invalidSchemaf("record %s has no fields array", full)
	}

	rec := &RecordType{Named: named}
	taken := map[string]string{}
	for _, rf := range rawFields {
		fm, ok := rf.(map[string]interface{})
		if !ok {
			return nil, invalidSchemaf("record %s: field definition is not an object", full)
		}

		f, err := p.parseField(fm, named.Namespace, full)
		if err != nil {
			return nil, err
		}

		if owner, ok := taken[f.Name]; ok {
			return nil, invalidSchemaf("record %s: field name %q collides with %s", full, f.Name, owner)
		}
		taken[f.Name] = "field " + f.Name
		rec.Fields = append(rec.Fields, f)
	}

	// aliases are checked once every field name is known
	for _, f := range rec.Fields {
		for _, alias := range f.Aliases {
			if owner, ok := taken[alias]; ok {
				return nil, invalidSchemaf("record %s: alias %q of field %s collides with %s", full, alias, f.Name, owner)
			}
			taken[alias] = "alias of field " + f.Name
		}
	}

	p.named[full] = rec
	return rec, nil
}

func (p *parser) parseField(m map[string]interface{}, namespace, record string) (*Field, error) {
	name, _ := m["name"].(string)
	if !validName.MatchString(name) {
		return nil, invalidSchemaf("record %s: invalid field name %q", record, name)
	}

	rawType, ok := m["type"]
	if !ok {
		return nil, invalidSchemaf("record %s: field %s has no type", record, name)
	}

	t, err := p.parseType(rawType, namespace)
	if err != nil {
		return nil, errors.Wrapf(err, "field %s.%s", record, name)
	}

	f := &Field{Name: name, Type: t}
	f.Doc, _ = m["doc"].(string)

	f.Aliases, err = stringList(m["aliases"])
	if err != nil {
		return nil, errors.Wrapf(err, "aliases of %s.%s", record, name)
	}

	if rawDefault, ok := m["default"]; ok {
		v, err := convertValue(t, rawDefault, record+"."+name, true)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSchema, "default of %s.%s: %v", record, name, err)
		}
		f.Default = v
		f.HasDefault = true
	}

	return f, nil
}

func (p *parser) parseEnum(m map[string]interface{}, namespace string) (Type, error) {
	named, err := p.parseNamed(m, namespace)
	if err != nil {
		return nil, err
	}

	symbols, err := stringList(m["symbols"])
	if err != nil || len(symbols) == 0 {
		return nil, invalidSchemaf("enum %s needs a list of symbols", named.FullName())
	}

	e := &EnumType{Named: named, Symbols: symbols}
	seen := map[string]bool{}
	for _, s := range symbols {
		if !validName.MatchString(s) {
			return nil, invalidSchemaf("enum %s: invalid symbol %q", named.FullName(), s)
		}
		if seen[s] {
			return nil, invalidSchemaf("enum %s: duplicate symbol %q", named.FullName(), s)
		}
		seen[s] = true
	}

	if def, ok := m["default"].(string); ok {
		if !seen[def] {
			return nil, invalidSchemaf("enum %s: default %q is not a symbol", named.FullName(), def)
		}
		e.Default = def
		e.HasDefault = true
	}

	p.named[named.FullName()] = e
	return e, nil
}

func (p *parser) reference(name, namespace string) (Type, error) {
	candidates := []string{name}
	if lastDot(name) < 0 && namespace != "" {
		candidates = []string{namespace + "." + name, name}
	}

	for _, c := range candidates {
		if t, ok := p.named[c]; ok {
			return t, nil
		}
		if p.inProgress[c] {
			return nil, invalidSchemaf("recursive type %s is not supported", c)
		}
	}

	for _, c := range candidates {
		def, ok := p.defs[c]
		if !ok {
			continue
		}
		ns := ""
		if i := lastDot(c); i >= 0 {
			ns = c[:i]
		}
		return p.parseType(def, ns)
	}

	return nil, invalidSchemaf("unknown type %q", name)
}

func stringList(raw interface{}) ([]string, error) {
	if raw == nil {
		return nil, nil
	}

	list, ok := raw.([]interface{})
	if !ok {
		return nil, invalidSchemaf("expected a list of strings, got %v", raw)
	}

	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, invalidSchemaf("expected a list of strings, got %v", raw)
		}
		out = append(out, s)
	}
	return out, nil
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
