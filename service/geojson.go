package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// UnmarshalGeometry decodes a geojson geometry, feature or feature collection.
// The geometries of a feature collection are returned as a geom.Collection.
func UnmarshalGeometry(data []byte) (geom.Geometry, error) {
	var g geojson.Geometry
	if err := g.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return unwrapFeatures(g.Geometry), nil
}

func unwrapFeatures(g geom.Geometry) geom.Geometry {
	switch g := g.(type) {
	case geojson.Feature:
		return unwrapFeatures(g.Geometry.Geometry)
	case geojson.FeatureCollection:
		c := make(geom.Collection, 0, len(g.Features))
		for _, f := range g.Features {
			if sub := unwrapFeatures(f.Geometry.Geometry); sub != nil {
				c = append(c, sub)
			}
		}
		return c
	}
	return g
}

// WriteJSON writes v in path, indented with two spaces
func WriteJSON(v interface{}, path string) error {
	vb, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("WriteJSON.Marshal: %w", err)
	}
	if err := os.WriteFile(path, vb, 0644); err != nil {
		return fmt.Errorf("WriteJSON.WriteFile: %w", err)
	}
	return nil
}

// ReadJSON reads path and decodes it into v
func ReadJSON(path string, v interface{}) error {
	vb, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ReadJSON.ReadFile: %w", err)
	}
	if err := json.Unmarshal(vb, v); err != nil {
		return MakeFatal(fmt.Errorf("ReadJSON.Unmarshal[%s]: %w", filepath.Base(path), err))
	}
	return nil
}
