package packet

import (
	"sync"

	"github.com/pkg/errors"
)

// FieldSource tells where the value of a reader field comes from.
type FieldSource int

const (
	// SourceDirect reads the writer field of the same name.
	SourceDirect FieldSource = iota
	// SourceAlias reads a writer field matched through an alias.
	SourceAlias
	// SourceDefault fills the reader default, the writer has no such field.
	SourceDefault
)

func (s FieldSource) String() string {
	switch s {
	case SourceDirect:
		return "direct"
	case SourceAlias:
		return "alias"
	case SourceDefault:
		return "default"
	}
	return "unknown"
}

// FieldResolution describes how one top level reader field is populated.
type FieldResolution struct {
	Name       string
	Source     FieldSource
	WriterName string
	Default    interface{}
}

// ResolvedSchema is the merge of a writer and a reader schema. It drives
// Deserialize: values are read in writer order and shaped after the reader.
type ResolvedSchema struct {
	Writer *Schema
	Reader *Schema
	// Fields lists the reader's top level fields in reader order.
	Fields []FieldResolution

	root *recordPlan
}

// Resolve reconciles writer with reader following Avro schema resolution:
// fields match by name and then by alias, reader fields unknown to the
// writer take their defaults, writer-only fields are skipped and numeric
// values are promoted. It fails with ErrIncompatibleSchema when data written
// with writer cannot be read as reader.
func Resolve(writer, reader *Schema) (*ResolvedSchema, error) {
	if writer == nil || reader == nil {
		return nil, errors.Wrap(ErrIncompatibleSchema, "missing schema")
	}

	if !writer.root.matches(reader.root.Named) && !reader.root.matches(writer.root.Named) {
		return nil, incompatiblef("writer record %s does not match reader record %s",
			writer.root.FullName(), reader.root.FullName())
	}

	root, err := resolveRecord(writer.root, reader.root, reader.root.Name)
	if err != nil {
		return nil, err
	}

	return &ResolvedSchema{
		Writer: writer,
		Reader: reader,
		Fields: root.fields,
		root:   root,
	}, nil
}

// Resolver memoizes resolutions by the full definitions of both schemas. It
// is safe for concurrent use.
type Resolver struct {
	mutex sync.Mutex
	cache map[[2]string]*ResolvedSchema
}

func NewResolver() *Resolver {
	return &Resolver{cache: map[[2]string]*ResolvedSchema{}}
}

// Resolve returns the cached resolution of writer and reader, computing it
// on first use. Failures are not cached.
func (r *Resolver) Resolve(writer, reader *Schema) (*ResolvedSchema, error) {
	if r == nil {
		return Resolve(writer, reader)
	}
	if writer == nil || reader == nil {
		return nil, errors.Wrap(ErrIncompatibleSchema, "missing schema")
	}

	key := [2]string{writer.String(), reader.String()}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if rs, ok := r.cache[key]; ok {
		return rs, nil
	}

	rs, err := Resolve(writer, reader)
	if err != nil {
		return nil, err
	}
	r.cache[key] = rs
	return rs, nil
}

// plan reads one writer value and returns it in the reader's representation.
type plan interface {
	read(d *decoder) (interface{}, error)
}

type primitivePlan struct {
	writer Kind
	reader Kind
}

func (p *primitivePlan) read(d *decoder) (interface{}, error) {
	v, err := d.readPrimitive(p.writer)
	if err != nil || p.writer == p.reader {
		return v, err
	}
	return promote(v, p.reader), nil
}

func promote(v interface{}, to Kind) interface{} {
	switch v := v.(type) {
	case int32:
		switch to {
		case Long:
			return int64(v)
		case Float:
			return float32(v)
		case Double:
			return float64(v)
		}
	case int64:
		switch to {
		case Float:
			return float32(v)
		case Double:
			return float64(v)
		}
	case float32:
		if to == Double {
			return float64(v)
		}
	case string:
		if to == Bytes {
			return []byte(v)
		}
	case []byte:
		if to == String {
			return string(v)
		}
	}
	return v
}

func promotable(writer, reader Kind) bool {
	if writer == reader {
		return true
	}
	switch writer {
	case Int:
		return reader == Long || reader == Float || reader == Double
	case Long:
		return reader == Float || reader == Double
	case Float:
		return reader == Double
	case String:
		return reader == Bytes
	case Bytes:
		return reader == String
	}
	return false
}

type enumPlan struct {
	name    string
	symbols []string
}

func (p *enumPlan) read(d *decoder) (interface{}, error) {
	i, err := d.readLong()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= int64(len(p.symbols)) {
		return nil, errors.Wrapf(ErrMalformedData, "enum %s has no symbol %d", p.name, i)
	}
	return p.symbols[i], nil
}

type arrayPlan struct {
	items plan
	// minItem is the least encoded size of a writer item.
	minItem int
}

func (p *arrayPlan) read(d *decoder) (interface{}, error) {
	out := []interface{}{}
	for {
		n, err := d.blockCount(p.minItem, int64(len(out)))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		for i := int64(0); i < n; i++ {
			v, err := p.items.read(d)
			if err != nil {
				return nil, errors.WithMessagef(err, "item %d", len(out))
			}
			out = append(out, v)
		}
	}
}

// unionPlan reads a writer union, one plan per writer branch.
type unionPlan struct {
	branches []plan
}

func (p *unionPlan) read(d *decoder) (interface{}, error) {
	i, err := d.readLong()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= int64(len(p.branches)) {
		return nil, errors.Wrapf(ErrMalformedUnion, "branch %d of %d", i, len(p.branches))
	}
	return p.branches[i].read(d)
}

type fieldStep struct {
	// name is the reader field to populate, empty when the writer field is
	// skipped.
	name   string
	writer *Field
	plan   plan
}

type recordPlan struct {
	steps  []fieldStep
	fills  []*Field
	fields []FieldResolution
}

func (p *recordPlan) read(d *decoder) (interface{}, error) {
	out := make(map[string]interface{}, len(p.steps)+len(p.fills))
	for _, s := range p.steps {
		if s.name == "" {
			if err := d.skip(s.writer.Type); err != nil {
				return nil, errors.WithMessage(err, s.writer.Name)
			}
			continue
		}
		v, err := s.plan.read(d)
		if err != nil {
			return nil, errors.WithMessage(err, s.writer.Name)
		}
		out[s.name] = v
	}
	for _, f := range p.fills {
		out[f.Name] = copyValue(f.Default)
	}
	return out, nil
}

func resolveType(writer, reader Type, path string) (plan, error) {
	if wu, ok := writer.(*UnionType); ok {
		up := &unionPlan{}
		for _, wb := range wu.Branches {
			p, err := resolveType(wb, reader, path)
			if err != nil {
				return nil, err
			}
			up.branches = append(up.branches, p)
		}
		return up, nil
	}

	if ru, ok := reader.(*UnionType); ok {
		// an exact match wins over a promotion
		for _, rb := range ru.Branches {
			if sameType(writer, rb) {
				return resolveType(writer, rb, path)
			}
		}
		for _, rb := range ru.Branches {
			if p, err := resolveType(writer, rb, path); err == nil {
				return p, nil
			}
		}
		return nil, incompatiblef("%s: writer type %s matches no branch of the reader union", path, typeName(writer))
	}

	switch w := writer.(type) {
	case *PrimitiveType:
		r, ok := reader.(*PrimitiveType)
		if !ok || !promotable(w.kind, r.kind) {
			return nil, incompatiblef("%s: cannot read %s as %s", path, typeName(writer), typeName(reader))
		}
		return &primitivePlan{writer: w.kind, reader: r.kind}, nil

	case *EnumType:
		r, ok := reader.(*EnumType)
		if !ok || !namesMatch(w.Named, r.Named) {
			return nil, incompatiblef("%s: cannot read %s as %s", path, typeName(writer), typeName(reader))
		}
		return resolveEnum(w, r, path)

	case *ArrayType:
		r, ok := reader.(*ArrayType)
		if !ok {
			return nil, incompatiblef("%s: cannot read array as %s", path, typeName(reader))
		}
		items, err := resolveType(w.Items, r.Items, path+"[]")
		if err != nil {
			return nil, err
		}
		return &arrayPlan{items: items, minItem: minSize(w.Items)}, nil

	case *RecordType:
		r, ok := reader.(*RecordType)
		if !ok || !namesMatch(w.Named, r.Named) {
			return nil, incompatiblef("%s: cannot read %s as %s", path, typeName(writer), typeName(reader))
		}
		return resolveRecord(w, r, path)
	}

	return nil, incompatiblef("%s: unsupported writer type %s", path, typeName(writer))
}

func resolveEnum(w, r *EnumType, path string) (plan, error) {
	p := &enumPlan{name: w.FullName()}
	for _, s := range w.Symbols {
		switch {
		case r.index(s) >= 0:
			p.symbols = append(p.symbols, s)
		case r.HasDefault:
			p.symbols = append(p.symbols, r.Default)
		default:
			return nil, incompatiblef("%s: symbol %s of enum %s is unknown to the reader, which has no default",
				path, s, w.FullName())
		}
	}
	return p, nil
}

func resolveRecord(w, r *RecordType, path string) (*recordPlan, error) {
	p := &recordPlan{}
	used := map[string]string{}

	for _, rf := range r.Fields {
		wf, source := writerField(w, rf)
		if wf == nil {
			if !rf.HasDefault {
				return nil, incompatiblef("%s.%s: field is absent from writer %s and has no default",
					path, rf.Name, w.FullName())
			}
			p.fills = append(p.fills, rf)
			p.fields = append(p.fields, FieldResolution{Name: rf.Name, Source: SourceDefault, Default: rf.Default})
			continue
		}
		if other, ok := used[wf.Name]; ok {
			return nil, incompatiblef("%s: writer field %s is claimed by both %s and %s", path, wf.Name, other, rf.Name)
		}
		used[wf.Name] = rf.Name
		p.fields = append(p.fields, FieldResolution{Name: rf.Name, Source: source, WriterName: wf.Name})
	}

	for _, wf := range w.Fields {
		name, ok := used[wf.Name]
		if !ok {
			p.steps = append(p.steps, fieldStep{writer: wf})
			continue
		}
		fp, err := resolveType(wf.Type, r.Field(name).Type, path+"."+name)
		if err != nil {
			return nil, err
		}
		p.steps = append(p.steps, fieldStep{name: name, writer: wf, plan: fp})
	}

	return p, nil
}

// writerField finds the writer field feeding rf: by name, then through an
// alias on either side.
func writerField(w *RecordType, rf *Field) (*Field, FieldSource) {
	if wf := w.Field(rf.Name); wf != nil {
		return wf, SourceDirect
	}
	for _, alias := range rf.Aliases {
		if wf := w.Field(alias); wf != nil {
			return wf, SourceAlias
		}
	}
	for _, wf := range w.Fields {
		for _, alias := range wf.Aliases {
			if alias == rf.Name {
				return wf, SourceAlias
			}
		}
	}
	return nil, SourceDefault
}

func namesMatch(w, r Named) bool {
	return r.matches(w) || w.matches(r)
}

func sameType(a, b Type) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a := a.(type) {
	case *RecordType:
		return namesMatch(a.Named, b.(*RecordType).Named)
	case *EnumType:
		return namesMatch(a.Named, b.(*EnumType).Named)
	case *ArrayType:
		return sameType(a.Items, b.(*ArrayType).Items)
	}
	return true
}

func typeName(t Type) string {
	switch t := t.(type) {
	case *RecordType:
		return "record " + t.FullName()
	case *EnumType:
		return "enum " + t.FullName()
	case *ArrayType:
		return "array of " + typeName(t.Items)
	}
	return t.Kind().String()
}
