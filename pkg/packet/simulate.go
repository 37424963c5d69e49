package packet

import (
	"math/rand"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

const (
	letters   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxString = 10
	maxBytes  = 1000
	maxArray  = 1 << 16
)

// Simulator generates random alerts valid under a schema. Field names are
// matched without namespace at any depth.
type Simulator struct {
	// KeepNull lists nullable fields that are always null.
	KeepNull []string
	// ArrayCount sets the number of items generated for array fields. Arrays
	// not listed are null when nullable and empty otherwise.
	ArrayCount map[string]int
	// Cutouts names the random cutouts attached to every alert.
	Cutouts []string
}

// DefaultSimulator mimics a survey year of visitsPerYear visits: a full
// detection history, monthly forced photometry and no solar system object.
func DefaultSimulator(visitsPerYear int) *Simulator {
	return &Simulator{
		KeepNull: []string{"ssObject"},
		ArrayCount: map[string]int{
			"prvDiaSources":       visitsPerYear,
			"prvDiaForcedSources": visitsPerYear / 12,
		},
		Cutouts: []string{CutoutDifference, CutoutScience, CutoutTemplate},
	}
}

// WithVisits sets the visit driven history lengths a profile leaves out.
// Counts the profile names are kept.
func (sim *Simulator) WithVisits(visitsPerYear int) *Simulator {
	if sim.ArrayCount == nil {
		sim.ArrayCount = map[string]int{}
	}
	for name, n := range DefaultSimulator(visitsPerYear).ArrayCount {
		if _, ok := sim.ArrayCount[name]; !ok {
			sim.ArrayCount[name] = n
		}
	}
	return sim
}

type simulatorProfile struct {
	KeepNull   []string               `yaml:"keepNull"`
	ArrayCount map[string]interface{} `yaml:"arrayCount"`
	Cutouts    []string               `yaml:"cutouts"`
}

// LoadSimulator reads a YAML simulation profile.
func LoadSimulator(path string) (*Simulator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read profile %s", path)
	}

	var p simulatorProfile
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, errors.Wrapf(err, "cannot parse profile %s", path)
	}

	sim := &Simulator{KeepNull: p.KeepNull, Cutouts: p.Cutouts, ArrayCount: map[string]int{}}
	for name, raw := range p.ArrayCount {
		n, err := cast.ToIntE(raw)
		if err != nil || n < 0 || n > maxArray {
			return nil, errors.Errorf("profile %s: invalid array count %v for %s", path, raw, name)
		}
		sim.ArrayCount[name] = n
	}
	return sim, nil
}

// Simulate returns one random alert valid under s.
func (sim *Simulator) Simulate(s *Schema, rng *rand.Rand) AlertRecord {
	g := &generator{sim: sim, rng: rng, keepNull: map[string]bool{}}
	for _, name := range sim.KeepNull {
		g.keepNull[name] = true
	}

	rec := AlertRecord{Fields: g.record(s.root)}
	for _, name := range sim.Cutouts {
		rec.Cutouts = append(rec.Cutouts, Cutout{Name: name, Data: g.bytes()})
	}
	return rec
}

// SimulateMany returns n random alerts.
func (sim *Simulator) SimulateMany(s *Schema, rng *rand.Rand, n int) []AlertRecord {
	out := make([]AlertRecord, n)
	for i := range out {
		out[i] = sim.Simulate(s, rng)
	}
	return out
}

type generator struct {
	sim      *Simulator
	rng      *rand.Rand
	keepNull map[string]bool
}

func (g *generator) record(t *RecordType) map[string]interface{} {
	out := make(map[string]interface{}, len(t.Fields))
	for _, f := range t.Fields {
		out[f.Name] = g.field(f.Name, f.Type)
	}
	return out
}

func (g *generator) field(name string, t Type) interface{} {
	nullable := isNullable(t)
	if nullable && g.keepNull[name] {
		return nil
	}

	if u, ok := t.(*UnionType); ok {
		branches := u.nonNull()
		if len(branches) == 0 {
			return nil
		}
		t = branches[0]
	}

	if a, ok := t.(*ArrayType); ok {
		n, ok := g.sim.ArrayCount[name]
		if !ok {
			if nullable {
				return nil
			}
			return []interface{}{}
		}
		items := make([]interface{}, n)
		for i := range items {
			items[i] = g.value(a.Items)
		}
		return items
	}

	return g.value(t)
}

func (g *generator) value(t Type) interface{} {
	switch t := t.(type) {
	case *PrimitiveType:
		switch t.kind {
		case Boolean:
			return g.rng.Intn(2) == 1
		case Int:
			return int32(g.rng.Uint32())
		case Long:
			return int64(g.rng.Uint64())
		case Float:
			return g.rng.Float32()
		case Double:
			return g.rng.Float64()
		case String:
			b := make([]byte, g.rng.Intn(maxString+1))
			for i := range b {
				b[i] = letters[g.rng.Intn(len(letters))]
			}
			return string(b)
		case Bytes:
			return g.bytes()
		}
		return nil

	case *EnumType:
		return t.Symbols[g.rng.Intn(len(t.Symbols))]

	case *RecordType:
		return g.record(t)

	case *ArrayType:
		return []interface{}{}

	case *UnionType:
		branches := t.nonNull()
		if len(branches) == 0 {
			return nil
		}
		return g.value(branches[0])
	}
	return nil
}

func (g *generator) bytes() []byte {
	b := make([]byte, g.rng.Intn(maxBytes+1))
	g.rng.Read(b)
	return b
}
