package packet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// AlertRecord is a single alert: structured field values plus the named
// cutouts that travel after them.
//
// Values use the following Go types: null is nil, boolean is bool, int is
// int32, long is int64, float is float32, double is float64, bytes is []byte,
// string and enum are string, array is []interface{} and a nested record is
// map[string]interface{}. Union values are stored untagged.
type AlertRecord struct {
	Fields  map[string]interface{} `json:"fields" yaml:"fields"`
	Cutouts []Cutout               `json:"cutouts,omitempty" yaml:"cutouts,omitempty"`
}

// Cutout is a named binary payload, usually a FITS postage stamp.
type Cutout struct {
	Name string `json:"name" yaml:"name"`
	Data []byte `json:"data" yaml:"data"`
}

// Cutout names used by the alert producer.
const (
	CutoutDifference = "cutoutDifference"
	CutoutScience    = "cutoutScience"
	CutoutTemplate   = "cutoutTemplate"
)

// Cutout returns the cutout with the given name.
func (r AlertRecord) Cutout(name string) (Cutout, bool) {
	for _, c := range r.Cutouts {
		if c.Name == name {
			return c, true
		}
	}
	return Cutout{}, false
}

// LoadCutout reads a stamp file into a cutout named name. An empty name uses
// the base name of the file.
func LoadCutout(path, name string) (Cutout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Cutout{}, errors.Wrapf(err, "cannot read cutout %s", path)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return Cutout{Name: name, Data: data}, nil
}

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
