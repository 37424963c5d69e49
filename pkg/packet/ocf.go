package packet

import (
	"io"

	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

// WriteOCF writes records as a standard Avro object container file readable
// by any Avro implementation. Cutouts have no place in that format and
// records carrying them are rejected.
func WriteOCF(w io.Writer, s *Schema, records []AlertRecord) error {
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Schema:          s.Canonical(),
		CompressionName: goavro.CompressionNullLabel,
	})
	if err != nil {
		return errors.Wrap(err, "cannot create OCF writer")
	}

	natives := make([]interface{}, 0, len(records))
	for i, rec := range records {
		if len(rec.Cutouts) > 0 {
			return &RecordError{Index: i, Err: errors.Wrap(ErrEncoding, "cutouts cannot be stored in an object container file")}
		}
		if err := Validate(rec, s); err != nil {
			return &RecordError{Index: i, Err: err}
		}
		natives = append(natives, toNative(s.root, rec.Fields))
	}

	return errors.Wrap(ocf.Append(natives), "cannot append records")
}

// ReadOCF reads an Avro object container file, resolving the writer schema
// from its header against reader. A nil reader keeps the writer schema.
func ReadOCF(r io.Reader, reader *Schema, resolver *Resolver) (*Schema, []AlertRecord, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, nil, errors.Wrap(ErrBadContainer, err.Error())
	}

	codec := ocf.Codec()
	writer, err := Parse(codec.Schema())
	if err != nil {
		return nil, nil, errors.WithMessage(err, "OCF schema")
	}
	if reader == nil {
		reader = writer
	}

	resolved, err := resolver.Resolve(writer, reader)
	if err != nil {
		return nil, nil, err
	}

	var records []AlertRecord
	for i := 0; ocf.Scan(); i++ {
		datum, err := ocf.Read()
		if err != nil {
			return writer, records, &RecordError{Index: i, Err: err}
		}

		body, err := codec.BinaryFromNative(nil, datum)
		if err != nil {
			return writer, records, &RecordError{Index: i, Err: errors.Wrap(ErrEncoding, err.Error())}
		}

		d := &decoder{buf: body}
		v, err := resolved.root.read(d)
		if err != nil {
			return writer, records, &RecordError{Index: i, Err: err}
		}
		records = append(records, AlertRecord{Fields: v.(map[string]interface{})})
	}

	return writer, records, errors.Wrap(ocf.Err(), "cannot read object container file")
}

// toNative converts a validated value of t into goavro's native form, where
// non-null union values are wrapped in a single entry map.
func toNative(t Type, v interface{}) interface{} {
	switch t := t.(type) {
	case *RecordType:
		m, _ := v.(map[string]interface{})
		out := make(map[string]interface{}, len(t.Fields))
		for _, f := range t.Fields {
			fv, ok := m[f.Name]
			if !ok && f.HasDefault {
				fv = f.Default
			}
			out[f.Name] = toNative(f.Type, fv)
		}
		return out

	case *ArrayType:
		items, _ := v.([]interface{})
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toNative(t.Items, item)
		}
		return out

	case *UnionType:
		if v == nil {
			return nil
		}
		b := matchBranch(t, v)
		if b == nil {
			return v
		}
		return goavro.Union(branchName(b), toNative(b, v))
	}

	return v
}

func branchName(t Type) string {
	switch t := t.(type) {
	case *RecordType:
		return t.FullName()
	case *EnumType:
		return t.FullName()
	}
	return t.Kind().String()
}
