package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	s, rec := sampleAlert(t, "7.2")
	assert.NoError(t, Validate(rec, s))

	// nullable and defaulted fields may be left out
	delete(rec.Fields, "ssObject")
	delete(rec.Fields, "prvDiaForcedSources")
	assert.NoError(t, Validate(rec, s))
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	s := mustParse(t, pointSchema)

	err := Validate(AlertRecord{
		Fields: map[string]interface{}{
			"ra":    "ten",
			"dec":   nil,
			"extra": 1,
		},
		Cutouts: []Cutout{
			{Name: CutoutScience},
			{Name: ""},
			{Name: CutoutScience},
		},
	}, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var violations ValidationErrors
	require.ErrorAs(t, err, &violations)

	paths := map[string]bool{}
	for _, v := range violations {
		paths[v.Path] = true
	}
	assert.Equal(t, map[string]bool{
		"Alert.id":    true,
		"Alert.ra":    true,
		"Alert.dec":   true,
		"Alert.band":  true,
		"Alert.extra": true,
		"cutouts[1]":  true,
		"cutouts[2]":  true,
	}, paths)
	assert.Len(t, violations, 7)
	assert.Contains(t, err.Error(), "7 validation errors")
}

func TestValidateNested(t *testing.T) {
	s, rec := sampleAlert(t, "7.2")

	source := rec.Fields["diaSource"].(map[string]interface{})
	source["detector"] = int64(42)
	object := rec.Fields["diaObject"].(map[string]interface{})
	object["variability"] = "BORING"
	object["bands"] = []interface{}{"g", 5}

	err := Validate(rec, s)
	var violations ValidationErrors
	require.ErrorAs(t, err, &violations)

	var paths []string
	for _, v := range violations {
		paths = append(paths, v.Path)
	}
	assert.ElementsMatch(t, []string{
		"alert.diaSource.detector",
		"alert.diaObject.variability",
		"alert.diaObject.bands[1]",
	}, paths)
}

func TestValidateEmptyRecord(t *testing.T) {
	s := mustParse(t, pointSchema)

	err := Validate(AlertRecord{}, s)
	assert.ErrorIs(t, err, ErrValidation)
}
