// Package atlas decodes registered atlas annotations exported as GeoJSON
// feature collections.
package atlas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrMissingFeatures is returned when the document has no "features" list
var ErrMissingFeatures = errors.New("atlas annotation has no features")

const (
	idKey       = "ID"
	parentIDKey = "Parent ID"
)

// Feature is one annotated atlas object
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// Collection is a decoded annotation file
type Collection struct {
	Features []Feature
}

// Load reads and decodes the annotation file at path
func Load(path string) (*Collection, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	coll, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode atlas %s: %w", path, err)
	}
	return coll, nil
}

// Decode parses a GeoJSON FeatureCollection
func Decode(r io.Reader) (*Collection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("invalid annotation document: %w", err)
	}
	raw, ok := top["features"]
	if !ok || string(raw) == "null" {
		return nil, ErrMissingFeatures
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("invalid feature collection: %w", err)
	}

	coll := &Collection{Features: make([]Feature, 0, len(fc.Features))}
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		props := map[string]interface{}(f.Properties)
		if props == nil {
			props = map[string]interface{}{}
		}
		coll.Features = append(coll.Features, Feature{Geometry: f.Geometry, Properties: props})
	}
	return coll, nil
}

// Polygonal returns the features whose geometry is a Polygon or MultiPolygon.
// Points, lines and other annotations are not regions.
func (c *Collection) Polygonal() []Feature {
	out := make([]Feature, 0, len(c.Features))
	for _, f := range c.Features {
		if f.IsPolygonal() {
			out = append(out, f)
		}
	}
	return out
}

// IsPolygonal reports whether the feature describes an area
func (f Feature) IsPolygonal() bool {
	switch f.Geometry.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// ID returns the "ID" measurement, or nil when absent
func (f Feature) ID() *int64 {
	return f.measurement(idKey)
}

// ParentID returns the "Parent ID" measurement, or nil when absent
func (f Feature) ParentID() *int64 {
	return f.measurement(parentIDKey)
}

// measurement looks up a numeric measurement. Both the map layout and the
// older list of {name, value} pairs are accepted.
func (f Feature) measurement(key string) *int64 {
	switch m := f.Properties["measurements"].(type) {
	case map[string]interface{}:
		return toInt64(m[key])
	case []interface{}:
		for _, item := range m {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if name, _ := entry["name"].(string); name == key {
				return toInt64(entry["value"])
			}
		}
	}
	return nil
}

// toInt64 accepts integral numbers only. Fractional or out of range values
// are treated as absent.
func toInt64(v interface{}) *int64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		id := int64(n)
		return &id
	case int64:
		return &n
	case json.Number:
		if id, err := n.Int64(); err == nil {
			return &id
		}
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil
	}
	id := int64(f)
	return &id
}
