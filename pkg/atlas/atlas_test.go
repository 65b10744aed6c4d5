package atlas

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAtlas = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[4,0],[4,4],[0,4],[0,0]]]},
      "properties": {
        "classification": {"names": ["Left", "VISp1"]},
        "measurements": {"ID": 385, "Parent ID": 669}
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[0,0],[1,0],[1,1],[0,0]]]]},
      "properties": {
        "name": "Root",
        "measurements": [{"name": "ID", "value": 997.0}]
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [1, 1]},
      "properties": {"name": "marker"}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,0]]]},
      "properties": null
    }
  ]
}`

func TestDecode(t *testing.T) {
	coll, err := Decode(strings.NewReader(sampleAtlas))
	require.NoError(t, err)
	require.Len(t, coll.Features, 4)

	first := coll.Features[0]
	require.NotNil(t, first.ID())
	require.NotNil(t, first.ParentID())
	assert.Equal(t, int64(385), *first.ID())
	assert.Equal(t, int64(669), *first.ParentID())
	_, ok := first.Geometry.(orb.Polygon)
	assert.True(t, ok)

	second := coll.Features[1]
	require.NotNil(t, second.ID())
	assert.Equal(t, int64(997), *second.ID())
	assert.Nil(t, second.ParentID())

	assert.Nil(t, coll.Features[3].ID())
	assert.NotNil(t, coll.Features[3].Properties)
}

func TestPolygonal(t *testing.T) {
	coll, err := Decode(strings.NewReader(sampleAtlas))
	require.NoError(t, err)

	poly := coll.Polygonal()
	assert.Len(t, poly, 3)
	for _, f := range poly {
		assert.True(t, f.IsPolygonal())
	}
}

func TestDecodeMissingFeatures(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"type": "FeatureCollection"}`))
	assert.ErrorIs(t, err, ErrMissingFeatures)

	_, err = Decode(strings.NewReader(`{"type": "FeatureCollection", "features": null}`))
	assert.ErrorIs(t, err, ErrMissingFeatures)
}

func TestDecodeInvalidGeometry(t *testing.T) {
	doc := `{"type": "FeatureCollection", "features": [
		{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": "oops"}, "properties": {}}
	]}`
	_, err := Decode(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestDecodeNotJSON(t *testing.T) {
	_, err := Decode(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestMeasurementIgnoresNonNumeric(t *testing.T) {
	f := Feature{Properties: map[string]interface{}{
		"measurements": map[string]interface{}{"ID": "abc", "Parent ID": nil},
	}}
	assert.Nil(t, f.ID())
	assert.Nil(t, f.ParentID())
}

func TestMeasurementRejectsNonIntegral(t *testing.T) {
	tests := []struct {
		value interface{}
		want  *int64
	}{
		{12.5, nil},
		{1e30, nil},
		{-1e30, nil},
		{json.Number("7.25"), nil},
		{-3.0, int64Ptr(-3)},
		{997.0, int64Ptr(997)},
		{json.Number("9007199254740993"), int64Ptr(9007199254740993)},
	}

	for _, tt := range tests {
		f := Feature{Properties: map[string]interface{}{
			"measurements": map[string]interface{}{"ID": tt.value},
		}}
		assert.Equal(t, tt.want, f.ID(), "value %v", tt.value)
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slice_01.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleAtlas), 0644))

	coll, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, coll.Features, 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
