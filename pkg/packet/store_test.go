package packet

import (
	"testing"
	"testing/fstest"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	v1_0Alert = `{
		"namespace": "lsst.v1_0", "type": "record", "name": "alert",
		"fields": [
			{"name": "alertId", "type": "long"},
			{"name": "diaSource", "type": "lsst.v1_0.diaSource"}
		]
	}`
	v1_0Source = `{
		"namespace": "lsst.v1_0", "type": "record", "name": "diaSource",
		"fields": [
			{"name": "diaSourceId", "type": "long"},
			{"name": "snr", "type": ["null", "float"], "default": null}
		]
	}`
	v1_1Alert = `{
		"namespace": "lsst.v1_1", "type": "record", "name": "alert",
		"fields": [
			{"name": "alertId", "type": "long"},
			{"name": "diaSource", "type": "lsst.v1_1.diaSource"}
		]
	}`
)

func testFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestDefaultStore(t *testing.T) {
	store := DefaultStore(nil)

	latest, err := store.LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 7, Minor: 2}, latest)

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, []Version{{6, 0}, {7, 0}, {7, 1}, {7, 2}}, versions)

	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, latest, current.Version())
	assert.Equal(t, "lsst.v7_2.alert", current.Name())

	again, err := store.Load(latest)
	require.NoError(t, err)
	assert.Same(t, current, again)

	assert.NoError(t, store.CheckCompatibility())
}

func TestStoreSampleData(t *testing.T) {
	store := DefaultStore(nil)

	versions, err := store.Versions()
	require.NoError(t, err)
	for _, v := range versions {
		t.Run(v.String(), func(t *testing.T) {
			s, err := store.Load(v)
			require.NoError(t, err)

			data, err := store.SampleData(v)
			require.NoError(t, err)

			rec, err := FromJSON(data, s)
			require.NoError(t, err)
			assert.NoError(t, Validate(rec, s))
		})
	}

	_, err = store.SampleData(Version{Major: 1, Minor: 0})
	assert.Error(t, err)
}

func TestStoreLogsLoads(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	store := NewStore(testFS(map[string]string{
		"latest.txt":                   "1.0\n",
		"1/0/lsst.v1_0.alert.avsc":     v1_0Alert,
		"1/0/lsst.v1_0.diaSource.avsc": v1_0Source,
	}), log)

	s, err := store.Current()
	require.NoError(t, err)
	_, err = store.Current()
	require.NoError(t, err)

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, "Loaded schema", entry.Message)
	assert.Equal(t, "1.0", entry.Data["version"])
	assert.Equal(t, s.Version(), Version{Major: 1, Minor: 0})
}

func TestStoreLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		err   error
	}{
		{
			name:  "missing root file",
			files: map[string]string{"1/0/lsst.v1_0.diaSource.avsc": v1_0Source},
		},
		{
			name:  "missing referenced type",
			files: map[string]string{"1/0/lsst.v1_0.alert.avsc": v1_0Alert},
			err:   ErrInvalidSchema,
		},
		{
			name: "malformed definition",
			files: map[string]string{
				"1/0/lsst.v1_0.alert.avsc":     v1_0Alert,
				"1/0/lsst.v1_0.diaSource.avsc": `{"type": "record",`,
			},
			err: ErrInvalidSchema,
		},
		{
			name: "duplicate field",
			files: map[string]string{
				"1/0/lsst.v1_0.alert.avsc": v1_0Alert,
				"1/0/lsst.v1_0.diaSource.avsc": `{
					"namespace": "lsst.v1_0", "type": "record", "name": "diaSource",
					"fields": [
						{"name": "diaSourceId", "type": "long"},
						{"name": "diaSourceId", "type": "int"}
					]
				}`,
			},
			err: ErrInvalidSchema,
		},
		{
			name: "alias collision",
			files: map[string]string{
				"1/0/lsst.v1_0.alert.avsc": v1_0Alert,
				"1/0/lsst.v1_0.diaSource.avsc": `{
					"namespace": "lsst.v1_0", "type": "record", "name": "diaSource",
					"fields": [
						{"name": "diaSourceId", "type": "long"},
						{"name": "signalToNoise", "type": "float", "aliases": ["diaSourceId"]}
					]
				}`,
			},
			err: ErrInvalidSchema,
		},
		{
			name: "namespace of another version",
			files: map[string]string{
				"1/0/lsst.v1_0.alert.avsc": `{
					"namespace": "lsst.v2_0", "type": "record", "name": "alert",
					"fields": [{"name": "alertId", "type": "long"}]
				}`,
			},
			err: ErrInvalidSchema,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := NewStore(testFS(test.files), nil)

			_, err := store.Load(Version{Major: 1, Minor: 0})
			var loadErr *SchemaLoadError
			require.ErrorAs(t, err, &loadErr)
			assert.NotEmpty(t, loadErr.Path)
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
			}
		})
	}
}

func TestStoreLatestErrors(t *testing.T) {
	_, err := NewStore(testFS(map[string]string{}), nil).LatestVersion()
	var loadErr *SchemaLoadError
	assert.ErrorAs(t, err, &loadErr)

	_, err = NewStore(testFS(map[string]string{"latest.txt": "seven"}), nil).LatestVersion()
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestStoreCheckCompatibility(t *testing.T) {
	files := map[string]string{
		"latest.txt":                   "1.1",
		"1/0/lsst.v1_0.alert.avsc":     v1_0Alert,
		"1/0/lsst.v1_0.diaSource.avsc": v1_0Source,
		"1/1/lsst.v1_1.alert.avsc":     v1_1Alert,
		"1/1/lsst.v1_1.diaSource.avsc": `{
			"namespace": "lsst.v1_1", "type": "record", "name": "diaSource",
			"fields": [
				{"name": "diaSourceId", "type": "long"},
				{"name": "signalToNoise", "type": ["null", "float"], "default": null, "aliases": ["snr"]},
				{"name": "band", "type": "string", "default": "r"}
			]
		}`,
		// another major line does not need to be compatible
		"2/0/lsst.v2_0.alert.avsc": `{
			"namespace": "lsst.v2_0", "type": "record", "name": "alert",
			"fields": [{"name": "alertId", "type": "string"}]
		}`,
	}

	store := NewStore(testFS(files), nil)
	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, []Version{{1, 0}, {1, 1}, {2, 0}}, versions)
	assert.NoError(t, store.CheckCompatibility())

	// a field without default cannot be added within a major line
	files["1/1/lsst.v1_1.diaSource.avsc"] = `{
		"namespace": "lsst.v1_1", "type": "record", "name": "diaSource",
		"fields": [
			{"name": "diaSourceId", "type": "long"},
			{"name": "band", "type": "string"}
		]
	}`
	err = NewStore(testFS(files), nil).CheckCompatibility()
	assert.ErrorIs(t, err, ErrIncompatibleSchema)
	assert.Contains(t, err.Error(), "1.0 cannot be read by 1.1")
}

func TestIndex(t *testing.T) {
	ix, err := IndexFromStore(DefaultStore(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"6.0", "7.0", "7.1", "7.2"}, ix.KnownVersions())

	s, err := ix.ByVersion("7.2")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 7, Minor: 2}, s.Version())

	byID, err := ix.ByID(s.Fingerprint())
	require.NoError(t, err)
	assert.Same(t, s, byID)

	other := mustParse(t, pointSchema)
	id := ix.Register(other, "7.2")
	assert.Equal(t, other.Fingerprint(), id)

	replaced, err := ix.ByVersion("7.2")
	require.NoError(t, err)
	assert.Same(t, other, replaced)

	// the replaced schema stays reachable by its ID
	old, err := ix.ByID(s.Fingerprint())
	require.NoError(t, err)
	assert.Same(t, s, old)

	_, err = ix.ByVersion("9.9")
	assert.Error(t, err)
	_, err = ix.ByID(1)
	assert.Error(t, err)
}
