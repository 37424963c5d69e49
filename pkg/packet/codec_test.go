package packet

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializePoint(t *testing.T) {
	s := mustParse(t, pointSchema)
	rec := point()
	rec.Cutouts = []Cutout{{Name: CutoutDifference, Data: []byte{1, 2, 3}}}

	data, err := Serialize(rec, s)
	require.NoError(t, err)

	want := []byte{0x54} // 42
	want = binary.LittleEndian.AppendUint64(want, math.Float64bits(10.5))
	want = binary.LittleEndian.AppendUint64(want, math.Float64bits(-3.25))
	want = append(want, 0x02, 'r')
	want = append(want, 0x02, 0x20)
	want = append(want, CutoutDifference...)
	want = append(want, 0x06, 1, 2, 3)
	assert.Equal(t, want, data)

	resolved, err := Resolve(s, s)
	require.NoError(t, err)

	out, err := Deserialize(data, resolved)
	require.NoError(t, err)
	assert.Equal(t, rec, out)
}

func TestRoundTripSample(t *testing.T) {
	for _, version := range []string{"6.0", "7.0", "7.1", "7.2"} {
		t.Run(version, func(t *testing.T) {
			s, rec := sampleAlert(t, version)
			rec.Cutouts = []Cutout{
				{Name: CutoutScience, Data: []byte("SIMPLE  =                    T")},
				{Name: CutoutTemplate, Data: []byte{}},
			}

			out := roundTrip(t, rec, s, s)

			first, err := Serialize(rec, s)
			require.NoError(t, err)
			again, err := Serialize(out, s)
			require.NoError(t, err)
			assert.Equal(t, first, again)

			science, ok := out.Cutout(CutoutScience)
			require.True(t, ok)
			assert.Equal(t, rec.Cutouts[0].Data, science.Data)
			_, ok = out.Cutout(CutoutDifference)
			assert.False(t, ok)
		})
	}
}

func TestSerializeFillsDefaults(t *testing.T) {
	s := mustParse(t, `{
		"type": "record", "name": "r",
		"fields": [
			{"name": "id", "type": "long"},
			{"name": "flux", "type": ["null", "float"]},
			{"name": "flags", "type": "int", "default": 7},
			{"name": "bands", "type": {"type": "array", "items": "string"}, "default": ["g"]}
		]
	}`)

	out := roundTrip(t, AlertRecord{Fields: map[string]interface{}{"id": int64(1)}}, s, s)
	assert.Equal(t, map[string]interface{}{
		"id":    int64(1),
		"flux":  nil,
		"flags": int32(7),
		"bands": []interface{}{"g"},
	}, out.Fields)
	assert.Nil(t, out.Cutouts)
}

func TestSerializeRejectsInvalidRecords(t *testing.T) {
	s := mustParse(t, pointSchema)

	_, err := Serialize(AlertRecord{Fields: map[string]interface{}{
		"id":   42, // int instead of int64
		"ra":   10.5,
		"dec":  -3.25,
		"band": "r",
	}}, s)
	assert.ErrorIs(t, err, ErrValidation)

	rec := point()
	rec.Cutouts = []Cutout{{Name: CutoutScience}, {Name: CutoutScience}}
	_, err = Serialize(rec, s)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSerializeReadableByGoavro(t *testing.T) {
	s, rec := sampleAlert(t, "7.2")

	data, err := Serialize(rec, s)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// no cutouts, the trailer is a single zero count
	body, trailer := data[:len(data)-1], data[len(data)-1]
	assert.Equal(t, byte(0), trailer)

	codec, err := goavro.NewCodec(s.Canonical())
	require.NoError(t, err)

	native, rest, err := codec.NativeFromBinary(body)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, toNative(s.Root(), rec.Fields), native)
}

func TestDeserializeTruncated(t *testing.T) {
	s, rec := sampleAlert(t, "7.2")
	rec.Cutouts = []Cutout{{Name: CutoutDifference, Data: []byte{0xca, 0xfe}}}

	data, err := Serialize(rec, s)
	require.NoError(t, err)

	resolved, err := Resolve(s, s)
	require.NoError(t, err)

	for i := 0; i < len(data); i++ {
		_, err := Deserialize(data[:i], resolved)
		require.ErrorIs(t, err, ErrTruncatedData, "prefix of %d bytes", i)
	}
}

func TestDeserializeMalformed(t *testing.T) {
	s := mustParse(t, `{
		"type": "record", "name": "r",
		"fields": [
			{"name": "id", "type": "long"},
			{"name": "flux", "type": ["null", "float"]},
			{"name": "ok", "type": "boolean"}
		]
	}`)
	resolved, err := Resolve(s, s)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"union index out of range", []byte{0x02, 0x04}, ErrMalformedUnion},
		{"negative union index", []byte{0x02, 0x01}, ErrMalformedUnion},
		{"invalid boolean", []byte{0x02, 0x00, 0x02}, ErrMalformedData},
		{"varint too long", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, ErrMalformedData},
		{"negative cutout count", []byte{0x02, 0x00, 0x01, 0x01}, ErrMalformedData},
		{"negative cutout length", []byte{0x02, 0x00, 0x01, 0x02, 0x02, 'x', 0x01}, ErrMalformedData},
		{"trailing bytes", []byte{0x02, 0x00, 0x01, 0x00, 0x00}, ErrMalformedData},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Deserialize(test.data, resolved)
			assert.ErrorIs(t, err, test.err)
		})
	}
}

func TestDeserializeIntOverflow(t *testing.T) {
	s := mustParse(t, `{"type": "record", "name": "r", "fields": [{"name": "n", "type": "int"}]}`)
	resolved, err := Resolve(s, s)
	require.NoError(t, err)

	data := binary.AppendUvarint(nil, uint64(math.MaxInt32+1)<<1)
	data = append(data, 0x00)
	_, err = Deserialize(data, resolved)
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestDeserializeBlockedArray(t *testing.T) {
	s := mustParse(t, `{"type": "record", "name": "r", "fields": [{"name": "xs", "type": {"type": "array", "items": "int"}}]}`)
	resolved, err := Resolve(s, s)
	require.NoError(t, err)

	// a block of -2 items with its byte size, a block of 1 item, the end
	data := []byte{0x03, 0x04, 0x02, 0x04, 0x02, 0x06, 0x00, 0x00}
	out, err := Deserialize(data, resolved)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(1), int32(2), int32(3)}, out.Fields["xs"])
}

func TestDeserializeRejectsOversizedBlocks(t *testing.T) {
	record := func(items string) string {
		return fmt.Sprintf(`{"type": "record", "name": "r", "fields": [{"name": "xs", "type": {"type": "array", "items": %s}}]}`, items)
	}
	block := func(counts ...int64) []byte {
		var data []byte
		for _, n := range counts {
			data = binary.AppendVarint(data, n)
		}
		return data
	}

	tests := []struct {
		name  string
		items string
		data  []byte
		err   error
	}{
		{"null items", `"null"`, []byte{0xfe, 0xff, 0xff, 0xff, 0x0f}, ErrMalformedData},
		{"empty records", `{"type": "record", "name": "e", "fields": []}`, block(maxEmptyItems + 1), ErrMalformedData},
		{"null items over several blocks", `"null"`, block(maxEmptyItems/2, maxEmptyItems/2+1), ErrMalformedData},
		{"negative block count", `"null"`, block(math.MinInt64, 0), ErrMalformedData},
		{"more ints than bytes", `"int"`, block(1000, 2, 2), ErrTruncatedData},
		{"more doubles than bytes", `"double"`, append(block(2), make([]byte, 15)...), ErrTruncatedData},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := mustParse(t, record(test.items))
			resolved, err := Resolve(s, s)
			require.NoError(t, err)

			_, err = Deserialize(test.data, resolved)
			assert.ErrorIs(t, err, test.err)
		})
	}

	// skipped writer fields are bounded the same way
	writer := mustParse(t, `{"type": "record", "name": "r", "fields": [
		{"name": "id", "type": "long"},
		{"name": "xs", "type": {"type": "array", "items": "null"}}
	]}`)
	reader := mustParse(t, `{"type": "record", "name": "r", "fields": [{"name": "id", "type": "long"}]}`)
	resolved, err := Resolve(writer, reader)
	require.NoError(t, err)

	_, err = Deserialize([]byte{0x02, 0xfe, 0xff, 0xff, 0xff, 0x0f}, resolved)
	assert.ErrorIs(t, err, ErrMalformedData)

	data := append([]byte{0x02}, block(maxEmptyItems, 0)...)
	out, err := Deserialize(append(data, 0x00), resolved)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Fields["id"])
}
