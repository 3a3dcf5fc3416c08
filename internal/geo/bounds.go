// Package geo converts between rectangular geographic extents and the wire
// geometry format used by the occurrence search API.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/karimogit/GBIF3D/internal/errors"
)

// Bounds is a rectangular geographic extent in degrees. Valid rectangles have
// West <= East and South <= North; antimeridian-crossing rectangles are not
// handled.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Valid reports whether the bounds form a plausible rectangle with finite,
// in-range coordinates.
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.West >= -180 && b.East <= 180 && b.South >= -90 && b.North <= 90 &&
		b.West <= b.East && b.South <= b.North
}

// BoundsToPolygon builds the WKT polygon string for a bounds rectangle as a
// closed counter-clockwise 5-point ring (SW, NW, NE, SE, SW) in
// longitude-latitude order. Pure function, identical input produces identical
// output. Assumes finite numeric bounds.
func BoundsToPolygon(b Bounds) string {
	sw := coord(b.West, b.South)
	nw := coord(b.West, b.North)
	ne := coord(b.East, b.North)
	se := coord(b.East, b.South)
	return fmt.Sprintf("POLYGON((%s,%s,%s,%s,%s))", sw, nw, ne, se, sw)
}

func coord(lon, lat float64) string {
	return formatDegree(lon) + " " + formatDegree(lat)
}

func formatDegree(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RectangleToBounds converts a west/south/east/north rectangle to Bounds,
// converting radians to degrees when inRadians is set. No wrapping or
// clamping of out-of-range values is performed.
func RectangleToBounds(west, south, east, north float64, inRadians bool) Bounds {
	if inRadians {
		const degPerRad = 180 / math.Pi
		west *= degPerRad
		south *= degPerRad
		east *= degPerRad
		north *= degPerRad
	}
	return Bounds{West: west, South: south, East: east, North: north}
}

// ParseBBox parses a geocoder bounding box given in south/north/west/east
// order and returns it reordered as Bounds. Fewer than 4 numeric components
// is a validation error.
func ParseBBox(parts []string) (Bounds, error) {
	if len(parts) < 4 {
		return Bounds{}, errors.Newf("malformed bounding box: expected 4 components, got %d", len(parts)).
			Category(errors.CategoryValidation).
			Component("geo").
			Build()
	}

	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return Bounds{}, errors.Newf("malformed bounding box component %q: %w", parts[i], err).
				Category(errors.CategoryValidation).
				Component("geo").
				Build()
		}
		vals[i] = v
	}

	// Upstream order is south, north, west, east
	return Bounds{West: vals[2], South: vals[0], East: vals[3], North: vals[1]}, nil
}
