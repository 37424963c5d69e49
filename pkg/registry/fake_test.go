package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-ch/alertpacket/pkg/packet"
)

const contentType = "application/vnd.schemaregistry.v1+json"

// fakeRegistry serves the subset of the Confluent REST API used by Client.
type fakeRegistry struct {
	mutex    sync.Mutex
	schemas  map[int]string
	subjects map[string][]int
	requests map[string]int
	block    chan struct{}
}

func newFakeRegistry(t *testing.T) (*fakeRegistry, *httptest.Server) {
	t.Helper()

	f := &fakeRegistry{
		schemas:  map[int]string{},
		subjects: map[string][]int{},
		requests: map[string]int{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRegistry) add(subject, definition string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.addLocked(subject, definition)
}

func (f *fakeRegistry) addLocked(subject, definition string) int {
	for id, s := range f.schemas {
		if s == definition {
			for _, known := range f.subjects[subject] {
				if known == id {
					return id
				}
			}
			f.subjects[subject] = append(f.subjects[subject], id)
			return id
		}
	}

	id := len(f.schemas) + 1
	f.schemas[id] = definition
	f.subjects[subject] = append(f.subjects[subject], id)
	return id
}

func (f *fakeRegistry) count(path string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.requests[path]
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.block != nil {
		<-f.block
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.requests[r.URL.Path]++
	w.Header().Set("Content-Type", contentType)

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "subjects":
		subjects := make([]string, 0, len(f.subjects))
		for s := range f.subjects {
			subjects = append(subjects, s)
		}
		sort.Strings(subjects)
		reply(w, subjects)

	case len(parts) == 3 && parts[0] == "schemas" && parts[1] == "ids":
		id, _ := strconv.Atoi(parts[2])
		s, ok := f.schemas[id]
		if !ok {
			fail(w, 40403, "Schema not found")
			return
		}
		reply(w, map[string]interface{}{"schema": s})

	case len(parts) == 3 && parts[0] == "subjects" && parts[2] == "versions":
		if r.Method == http.MethodPost {
			var body struct {
				Schema string `json:"schema"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				fail(w, 42201, "Invalid schema")
				return
			}
			reply(w, map[string]int{"id": f.addLocked(parts[1], body.Schema)})
			return
		}

		ids, ok := f.subjects[parts[1]]
		if !ok {
			fail(w, 40401, "Subject not found")
			return
		}
		versions := make([]int, len(ids))
		for i := range ids {
			versions[i] = i + 1
		}
		reply(w, versions)

	case len(parts) == 4 && parts[0] == "subjects" && parts[2] == "versions":
		ids, ok := f.subjects[parts[1]]
		if !ok {
			fail(w, 40401, "Subject not found")
			return
		}
		version := len(ids)
		if parts[3] != "latest" {
			version, _ = strconv.Atoi(parts[3])
		}
		if version < 1 || version > len(ids) {
			fail(w, 40402, "Version not found")
			return
		}
		id := ids[version-1]
		reply(w, map[string]interface{}{
			"subject": parts[1],
			"version": version,
			"id":      id,
			"schema":  f.schemas[id],
		})

	default:
		fail(w, 40400, "Not found")
	}
}

func reply(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, code int, message string) {
	w.WriteHeader(code / 100)
	reply(w, map[string]interface{}{"error_code": code, "message": message})
}

func loadSchema(t *testing.T, version string) *packet.Schema {
	t.Helper()

	v, err := packet.ParseVersion(version)
	require.NoError(t, err)
	s, err := packet.DefaultStore(nil).Load(v)
	require.NoError(t, err)
	return s
}

func sample(t *testing.T, s *packet.Schema) packet.AlertRecord {
	t.Helper()

	data, err := packet.DefaultStore(nil).SampleData(s.Version())
	require.NoError(t, err)
	rec, err := packet.FromJSON(data, s)
	require.NoError(t, err)
	return rec
}
