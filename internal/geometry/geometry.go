// Package geometry derives numeric enrichment properties from raw GeoJSON
// geometries. Both helpers fail soft: malformed input yields nil, never an
// error, so callers can assign results straight into optional properties.
package geometry

import (
	"bytes"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Point is a lon/lat pair.
type Point struct {
	Lon float64
	Lat float64
}

var nullLiteral = []byte("null")

func decode(raw []byte) orb.Geometry {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), nullLiteral) {
		return nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil
	}
	geom := g.Geometry()
	if isEmpty(geom) {
		return nil
	}
	return geom
}

func isEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		return len(v) == 0
	}
	return false
}

// Valid reports whether raw decodes to a non-empty GeoJSON geometry.
func Valid(raw []byte) bool {
	return decode(raw) != nil
}

// AreaSqKm computes the geodesic surface area of a GeoJSON geometry in
// square kilometers, rounded to 2 decimal digits. Returns nil for
// malformed or empty geometries.
func AreaSqKm(raw []byte) *float64 {
	g := decode(raw)
	if g == nil {
		return nil
	}
	sqm := geo.Area(g)
	km := roundTo(math.Abs(sqm)/1e6, 2)
	if math.IsNaN(km) || math.IsInf(km, 0) {
		return nil
	}
	return &km
}

// Centroid computes the geometric centroid of a GeoJSON geometry, each
// coordinate rounded to 4 decimal digits. Returns nil for malformed or
// empty geometries.
func Centroid(raw []byte) *Point {
	g := decode(raw)
	if g == nil {
		return nil
	}
	c, _ := planar.CentroidArea(g)
	lon := roundTo(c.Lon(), 4)
	lat := roundTo(c.Lat(), 4)
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return nil
	}
	return &Point{Lon: lon, Lat: lat}
}

func roundTo(v float64, digits int) float64 {
	shift := math.Pow(10, float64(digits))
	return math.Round(v*shift) / shift
}
