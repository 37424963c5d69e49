package packet

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Containers start with containerMagic and a format version, followed by
// the full writer schema definition as Avro bytes. Each record follows as a
// long length and the output of Serialize, cutouts included.
var containerMagic = []byte("ALRT")

const containerVersion = 1

// maxFrame bounds single frames read from a container.
const maxFrame = 256 << 20

// ContainerWriter writes alert records to a self-describing container.
type ContainerWriter struct {
	w      *bufio.Writer
	schema *Schema
	count  int
}

// NewContainerWriter writes the container header for s to w.
func NewContainerWriter(w io.Writer, s *Schema) (*ContainerWriter, error) {
	cw := &ContainerWriter{w: bufio.NewWriter(w), schema: s}

	e := &encoder{}
	e.buf = append(e.buf, containerMagic...)
	e.buf = append(e.buf, containerVersion)
	e.writeString(s.String())

	if _, err := cw.w.Write(e.buf); err != nil {
		return nil, errors.Wrap(err, "cannot write container header")
	}
	return cw, nil
}

// Write serializes rec and appends it to the container.
func (cw *ContainerWriter) Write(rec AlertRecord) error {
	data, err := Serialize(rec, cw.schema)
	if err != nil {
		return &RecordError{Index: cw.count, Err: err}
	}

	var frame [binary.MaxVarintLen64]byte
	n := binary.PutVarint(frame[:], int64(len(data)))
	if _, err := cw.w.Write(frame[:n]); err != nil {
		return errors.Wrap(err, "cannot write record")
	}
	if _, err := cw.w.Write(data); err != nil {
		return errors.Wrap(err, "cannot write record")
	}

	cw.count++
	return nil
}

// Count returns the number of records written so far.
func (cw *ContainerWriter) Count() int {
	return cw.count
}

// Flush writes buffered data to the underlying writer.
func (cw *ContainerWriter) Flush() error {
	return errors.Wrap(cw.w.Flush(), "cannot flush container")
}

// StoreMany writes a container holding records, stopping at the first
// record that cannot be serialized.
func StoreMany(w io.Writer, s *Schema, records []AlertRecord) error {
	cw, err := NewContainerWriter(w, s)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// StoreFile writes records to a new container file at path.
func StoreFile(path string, s *Schema, records []AlertRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "cannot close %s", path)
		}
	}()

	return StoreMany(f, s, records)
}

// ContainerReader reads records from a container written by
// ContainerWriter.
type ContainerReader struct {
	r        *bufio.Reader
	writer   *Schema
	resolved *ResolvedSchema
	index    int
	err      error
}

// NewContainerReader reads the container header from r and resolves the
// embedded writer schema against reader. A nil reader reads records with the
// writer schema. resolver may be nil.
func NewContainerReader(r io.Reader, reader *Schema, resolver *Resolver) (*ContainerReader, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(containerMagic)+1)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, errors.Wrapf(ErrBadContainer, "cannot read header: %v", err)
	}
	if !bytes.Equal(magic[:len(containerMagic)], containerMagic) {
		return nil, errors.Wrap(ErrBadContainer, "bad magic")
	}
	if magic[len(containerMagic)] != containerVersion {
		return nil, errors.Wrapf(ErrBadContainer, "unsupported version %d", magic[len(containerMagic)])
	}

	definition, err := readFrame(br)
	if err != nil {
		return nil, errors.Wrapf(ErrBadContainer, "cannot read schema: %v", err)
	}
	writer, err := Parse(string(definition))
	if err != nil {
		return nil, errors.WithMessage(err, "container schema")
	}

	if reader == nil {
		reader = writer
	}
	resolved, err := resolver.Resolve(writer, reader)
	if err != nil {
		return nil, err
	}

	return &ContainerReader{r: br, writer: writer, resolved: resolved}, nil
}

// Schema returns the writer schema embedded in the container.
func (cr *ContainerReader) Schema() *Schema {
	return cr.writer
}

// Err returns the error that ended the container, or nil while records may
// still follow. io.EOF is not reported.
func (cr *ContainerReader) Err() error {
	if cr.err == io.EOF {
		return nil
	}
	return cr.err
}

// Next returns the next record, or io.EOF once the container is exhausted.
// A record that cannot be decoded yields a *RecordError and reading may go
// on with the following record. A damaged frame ends the stream.
func (cr *ContainerReader) Next() (AlertRecord, error) {
	if cr.err != nil {
		return AlertRecord{}, cr.err
	}

	data, err := readFrame(cr.r)
	if err != nil {
		if err != io.EOF {
			err = &RecordError{Index: cr.index, Err: err}
		}
		cr.err = err
		return AlertRecord{}, err
	}

	i := cr.index
	cr.index++

	rec, err := Deserialize(data, cr.resolved)
	if err != nil {
		return AlertRecord{}, &RecordError{Index: i, Err: err}
	}
	return rec, nil
}

// readFrame reads a long length and that many bytes. It returns io.EOF only
// when r is exhausted at a frame boundary.
func readFrame(r *bufio.Reader) ([]byte, error) {
	n, err := binary.ReadVarint(r)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrTruncatedData
		}
		return nil, errors.Wrap(ErrMalformedData, err.Error())
	}
	if n < 0 || n > maxFrame {
		return nil, errors.Wrapf(ErrMalformedData, "invalid frame length %d", n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, ErrTruncatedData
	}
	return data, nil
}

// RetrieveMany reads every record of a container. Records that fail to
// decode are skipped and reported through the returned error; the records
// that could be read are returned along with it.
func RetrieveMany(r io.Reader, reader *Schema, resolver *Resolver) (*Schema, []AlertRecord, error) {
	cr, err := NewContainerReader(r, reader, resolver)
	if err != nil {
		return nil, nil, err
	}

	var (
		records []AlertRecord
		failed  *multierror.Error
	)
	for {
		rec, err := cr.Next()
		if err == io.EOF {
			break
		}
		var recErr *RecordError
		if errors.As(err, &recErr) && cr.Err() == nil {
			failed = multierror.Append(failed, err)
			continue
		}
		if err != nil {
			failed = multierror.Append(failed, err)
			break
		}
		records = append(records, rec)
	}

	return cr.Schema(), records, failed.ErrorOrNil()
}

// RetrieveFile reads every record of the container file at path.
func RetrieveFile(path string, reader *Schema, resolver *Resolver) (*Schema, []AlertRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cannot open %s", path)
	}
	defer f.Close()

	return RetrieveMany(f, reader, resolver)
}
