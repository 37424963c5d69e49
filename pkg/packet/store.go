package packet

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//go:embed schema
var packaged embed.FS

const (
	latestFile = "latest.txt"
	sampleFile = "sample_data/alert.json"
)

// Store loads packaged schemas. The layout below its root is
//
//	latest.txt                      MAJOR.MINOR of the current schema
//	M/m/lsst.vM_m.alert.avsc        root record of version M.m
//	M/m/lsst.vM_m.<type>.avsc       named types referenced by full name
//	M/m/sample_data/alert.json      sample alert
//
// Parsed schemas are cached for the lifetime of the store.
type Store struct {
	fsys fs.FS
	log  logrus.FieldLogger

	mutex   sync.Mutex
	schemas map[Version]*Schema
}

// NewStore returns a store rooted at fsys.
func NewStore(fsys fs.FS, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		fsys:    fsys,
		log:     log,
		schemas: map[Version]*Schema{},
	}
}

// DefaultStore returns a store over the schemas compiled into the binary.
func DefaultStore(log logrus.FieldLogger) *Store {
	sub, err := fs.Sub(packaged, "schema")
	if err != nil {
		panic(err)
	}
	return NewStore(sub, log)
}

// DirStore returns a store over an on-disk schema root.
func DirStore(dir string, log logrus.FieldLogger) *Store {
	return NewStore(os.DirFS(dir), log)
}

// LatestVersion returns the version named in latest.txt.
func (s *Store) LatestVersion() (Version, error) {
	data, err := fs.ReadFile(s.fsys, latestFile)
	if err != nil {
		return Version{}, &SchemaLoadError{Path: latestFile, Err: err}
	}

	v, err := ParseVersion(string(data))
	if err != nil {
		return Version{}, &SchemaLoadError{Path: latestFile, Err: errors.Wrap(ErrInvalidSchema, err.Error())}
	}
	return v, nil
}

// Current loads the latest schema. Repeated calls return the cached schema.
func (s *Store) Current() (*Schema, error) {
	v, err := s.LatestVersion()
	if err != nil {
		return nil, err
	}
	return s.Load(v)
}

// Load returns the schema of version v.
func (s *Store) Load(v Version) (*Schema, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if schema, ok := s.schemas[v]; ok {
		return schema, nil
	}

	schema, err := s.load(v)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"version":     v.String(),
		"fingerprint": fmt.Sprintf("%016x", schema.Fingerprint()),
	}).Debug("Loaded schema")

	s.schemas[v] = schema
	return schema, nil
}

func (s *Store) load(v Version) (*Schema, error) {
	dir := versionDir(v)
	rootFile := path.Join(dir, fmt.Sprintf("lsst.v%d_%d.alert.avsc", v.Major, v.Minor))

	root, err := fs.ReadFile(s.fsys, rootFile)
	if err != nil {
		return nil, &SchemaLoadError{Path: rootFile, Err: err}
	}

	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, &SchemaLoadError{Path: dir, Err: err}
	}

	defs := map[string]map[string]interface{}{}
	for _, e := range entries {
		name := path.Join(dir, e.Name())
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".avsc") || name == rootFile {
			continue
		}

		data, err := fs.ReadFile(s.fsys, name)
		if err != nil {
			return nil, &SchemaLoadError{Path: name, Err: err}
		}
		raw, err := decodeJSON(data)
		if err != nil {
			return nil, &SchemaLoadError{Path: name, Err: errors.Wrap(ErrInvalidSchema, err.Error())}
		}
		def, ok := raw.(map[string]interface{})
		if !ok {
			return nil, &SchemaLoadError{Path: name, Err: invalidSchemaf("expected a named type definition")}
		}
		defs[definedName(def)] = def
	}

	schema, err := parseWithDefinitions(root, defs)
	if err != nil {
		return nil, &SchemaLoadError{Path: rootFile, Err: err}
	}
	if schema.Version() != v {
		return nil, &SchemaLoadError{
			Path: rootFile,
			Err:  invalidSchemaf("namespace %s does not carry version %s", schema.Namespace(), v),
		}
	}

	return schema, nil
}

func definedName(def map[string]interface{}) string {
	name, _ := def["name"].(string)
	ns, _ := def["namespace"].(string)
	if ns == "" || strings.Contains(name, ".") {
		return name
	}
	return ns + "." + name
}

// Versions lists every packaged version in ascending order.
func (s *Store) Versions() ([]Version, error) {
	majors, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, &SchemaLoadError{Path: ".", Err: err}
	}

	var out []Version
	for _, ma := range majors {
		major, err := strconv.Atoi(ma.Name())
		if !ma.IsDir() || err != nil {
			continue
		}

		minors, err := fs.ReadDir(s.fsys, ma.Name())
		if err != nil {
			return nil, &SchemaLoadError{Path: ma.Name(), Err: err}
		}
		for _, mi := range minors {
			minor, err := strconv.Atoi(mi.Name())
			if !mi.IsDir() || err != nil {
				continue
			}
			v := Version{Major: major, Minor: minor}
			rootFile := path.Join(versionDir(v), fmt.Sprintf("lsst.v%d_%d.alert.avsc", major, minor))
			if _, err := fs.Stat(s.fsys, rootFile); err == nil {
				out = append(out, v)
			}
		}
	}

	sortVersions(out)
	return out, nil
}

// SampleData returns the packaged sample alert of version v as JSON.
func (s *Store) SampleData(v Version) ([]byte, error) {
	name := path.Join(versionDir(v), sampleFile)
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return nil, errors.Wrapf(err, "no sample data for version %s", v)
	}
	return data, nil
}

// CheckCompatibility verifies that within each major line every packaged
// version can read data written by every earlier one. All failures are
// reported together.
func (s *Store) CheckCompatibility() error {
	versions, err := s.Versions()
	if err != nil {
		return err
	}

	schemas := make([]*Schema, len(versions))
	for i, v := range versions {
		if schemas[i], err = s.Load(v); err != nil {
			return err
		}
	}

	var result *multierror.Error
	for i := range versions {
		for j := i + 1; j < len(versions); j++ {
			if !versions[i].SameLine(versions[j]) {
				continue
			}
			if _, err := Resolve(schemas[i], schemas[j]); err != nil {
				result = multierror.Append(result, errors.WithMessagef(err, "%s cannot be read by %s", versions[i], versions[j]))
			}
		}
	}

	return result.ErrorOrNil()
}

func versionDir(v Version) string {
	return path.Join(strconv.Itoa(v.Major), strconv.Itoa(v.Minor))
}
