package packet

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a MAJOR.MINOR schema version. Minor versions of one major line
// must be forward transitive compatible.
type Version struct {
	Major int
	Minor int
}

var namespaceVersion = regexp.MustCompile(`(?:^|\.)v(\d+)_(\d+)(?:\.|$)`)

// ParseVersion parses "MAJOR.MINOR".
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return Version{}, errors.Errorf("version %q is not of the form MAJOR.MINOR", s)
	}

	ma, err := strconv.Atoi(major)
	if err != nil || ma < 0 {
		return Version{}, errors.Errorf("invalid major version in %q", s)
	}

	mi, err := strconv.Atoi(minor)
	if err != nil || mi < 0 {
		return Version{}, errors.Errorf("invalid minor version in %q", s)
	}

	return Version{Major: ma, Minor: mi}, nil
}

// versionFromNamespace extracts the version from namespaces like lsst.v7_2.
func versionFromNamespace(ns string) (Version, bool) {
	m := namespaceVersion.FindStringSubmatch(ns)
	if m == nil {
		return Version{}, false
	}

	ma, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	return Version{Major: ma, Minor: mi}, true
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// IsZero reports whether the version is unset.
func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// SameLine reports whether both versions share a major version.
func (v Version) SameLine(o Version) bool {
	return v.Major == o.Major
}

// RegistryVersion is the integer used when mirroring packaged versions into a
// registry: MAJOR followed by a zero padded two digit MINOR, 7.2 -> 702.
func (v Version) RegistryVersion() int {
	return v.Major*100 + v.Minor
}

func sortVersions(vs []Version) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Less(vs[j]) })
}
