package dataset

import (
	"encoding/json"

	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
)

// geoJSONGeometry is a GeoJSON Point geometry in longitude-latitude order.
type geoJSONGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// geoJSONFeature carries the full record as properties.
type geoJSONFeature struct {
	Type       string          `json:"type"`
	Geometry   geoJSONGeometry `json:"geometry"`
	Properties gbif.Occurrence `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// ToGeoJSON serializes records into a GeoJSON FeatureCollection. Records
// without finite, present coordinates are excluded from the spatial export.
// Output is deterministic for a given input ordering.
func ToGeoJSON(records []gbif.Occurrence) ([]byte, error) {
	collection := geoJSONCollection{
		Type:     "FeatureCollection",
		Features: make([]geoJSONFeature, 0, len(records)),
	}

	for i := range records {
		if !records[i].HasCoordinates() {
			continue
		}
		collection.Features = append(collection.Features, geoJSONFeature{
			Type: "Feature",
			Geometry: geoJSONGeometry{
				Type:        "Point",
				Coordinates: [2]float64{*records[i].DecimalLongitude, *records[i].DecimalLatitude},
			},
			Properties: records[i],
		})
	}

	data, err := json.Marshal(&collection)
	if err != nil {
		return nil, errors.Newf("failed to serialize GeoJSON: %w", err).
			Category(errors.CategoryFileParsing).
			Component("dataset").
			Build()
	}
	return data, nil
}
