package packet

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Index is an in-memory lookup of schemas by version label and by ID, the
// ID being the schema fingerprint.
type Index struct {
	mutex     sync.RWMutex
	versionID map[string]uint64
	byID      map[uint64]*Schema
}

func NewIndex() *Index {
	return &Index{
		versionID: map[string]uint64{},
		byID:      map[uint64]*Schema{},
	}
}

// IndexFromStore registers every packaged version of store.
func IndexFromStore(store *Store) (*Index, error) {
	versions, err := store.Versions()
	if err != nil {
		return nil, err
	}

	ix := NewIndex()
	for _, v := range versions {
		s, err := store.Load(v)
		if err != nil {
			return nil, err
		}
		ix.Register(s, v.String())
	}
	return ix, nil
}

// Register adds s under version and returns its ID. A schema registered
// again under an existing version replaces the previous one for version
// lookups; the old schema stays reachable by ID.
func (ix *Index) Register(s *Schema, version string) uint64 {
	id := s.Fingerprint()

	ix.mutex.Lock()
	defer ix.mutex.Unlock()

	ix.versionID[version] = id
	ix.byID[id] = s
	return id
}

func (ix *Index) ByID(id uint64) (*Schema, error) {
	ix.mutex.RLock()
	defer ix.mutex.RUnlock()

	s, ok := ix.byID[id]
	if !ok {
		return nil, errors.Errorf("no schema with id %016x", id)
	}
	return s, nil
}

func (ix *Index) ByVersion(version string) (*Schema, error) {
	ix.mutex.RLock()
	defer ix.mutex.RUnlock()

	id, ok := ix.versionID[version]
	if !ok {
		return nil, errors.Errorf("no schema with version %s", version)
	}
	return ix.byID[id], nil
}

// KnownVersions returns the registered version labels, sorted.
func (ix *Index) KnownVersions() []string {
	ix.mutex.RLock()
	defer ix.mutex.RUnlock()

	out := make([]string, 0, len(ix.versionID))
	for v := range ix.versionID {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
