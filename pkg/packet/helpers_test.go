package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const pointSchema = `{
	"type": "record",
	"name": "Alert",
	"namespace": "test.v1_0",
	"fields": [
		{"name": "id", "type": "long"},
		{"name": "ra", "type": "double"},
		{"name": "dec", "type": "double"},
		{"name": "band", "type": "string"}
	]
}`

func mustParse(t *testing.T, definition string) *Schema {
	t.Helper()

	s, err := Parse(definition)
	require.NoError(t, err)
	return s
}

func mustLoad(t *testing.T, version string) *Schema {
	t.Helper()

	v, err := ParseVersion(version)
	require.NoError(t, err)

	s, err := DefaultStore(nil).Load(v)
	require.NoError(t, err)
	return s
}

// sampleAlert returns the packaged sample alert of version.
func sampleAlert(t *testing.T, version string) (*Schema, AlertRecord) {
	t.Helper()

	s := mustLoad(t, version)
	data, err := DefaultStore(nil).SampleData(s.Version())
	require.NoError(t, err)

	rec, err := FromJSON(data, s)
	require.NoError(t, err)
	return s, rec
}

func roundTrip(t *testing.T, rec AlertRecord, writer, reader *Schema) AlertRecord {
	t.Helper()

	data, err := Serialize(rec, writer)
	require.NoError(t, err)

	resolved, err := Resolve(writer, reader)
	require.NoError(t, err)

	out, err := Deserialize(data, resolved)
	require.NoError(t, err)
	return out
}

func point() AlertRecord {
	return AlertRecord{Fields: map[string]interface{}{
		"id":   int64(42),
		"ra":   10.5,
		"dec":  -3.25,
		"band": "r",
	}}
}
