package registry

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/open-ch/alertpacket/pkg/packet"
)

const (
	magicByte  = 0
	headerSize = 5
)

type schemaSource interface {
	SchemaByID(int) (*packet.Schema, error)
}

// Framer en- and decodes alerts in the Confluent wire format:
// https://docs.confluent.io/current/schema-registry/serializer-formatter.html#wire-format
// A zero magic byte and the big endian schema ID precede the packet.
type Framer struct {
	registry schemaSource
	reader   *packet.Schema
	resolver *packet.Resolver
}

// NewFramer returns a framer reading messages as reader. A nil reader
// decodes with the writer schema of each message.
func NewFramer(s schemaSource, reader *packet.Schema) *Framer {
	return &Framer{
		registry: s,
		reader:   reader,
		resolver: packet.NewResolver(),
	}
}

// Encode serializes rec with the schema registered under schemaID and
// prepends the header.
func (f *Framer) Encode(rec packet.AlertRecord, schemaID int) ([]byte, error) {
	s, err := f.registry.SchemaByID(schemaID)
	if err != nil {
		return nil, err
	}

	body, err := packet.Serialize(rec, s)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(body))
	out[0] = magicByte
	binary.BigEndian.PutUint32(out[1:headerSize], uint32(schemaID))
	return append(out, body...), nil
}

// Decode reads the schema ID from the header, fetches the writer schema and
// decodes the remainder resolved against the reader schema.
func (f *Framer) Decode(msg []byte) (packet.AlertRecord, int, error) {
	id, err := SchemaID(msg)
	if err != nil {
		return packet.AlertRecord{}, 0, err
	}

	writer, err := f.registry.SchemaByID(id)
	if err != nil {
		return packet.AlertRecord{}, id, err
	}

	reader := f.reader
	if reader == nil {
		reader = writer
	}

	resolved, err := f.resolver.Resolve(writer, reader)
	if err != nil {
		return packet.AlertRecord{}, id, err
	}

	rec, err := packet.Deserialize(msg[headerSize:], resolved)
	return rec, id, err
}

// SchemaID returns the schema ID from the header of msg.
func SchemaID(msg []byte) (int, error) {
	if len(msg) < headerSize {
		return 0, errors.Wrapf(ErrBadFrame, "message of %d bytes is too short", len(msg))
	}
	if msg[0] != magicByte {
		return 0, errors.Wrapf(ErrBadFrame, "unknown magic byte %d", msg[0])
	}
	return int(binary.BigEndian.Uint32(msg[1:headerSize])), nil
}
