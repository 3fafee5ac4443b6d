// Package match provides name and coordinate equality helpers used for
// candidate dedup and reconciliation.
package match

import (
	"math"
	"strings"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CoordTolerance is the per-axis tolerance in degrees under which two
// coordinates count as the same location (~100 m at mid latitudes).
const CoordTolerance = 0.001

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName folds a business name for comparison: diacritics removed,
// lowercased, whitespace collapsed.
func NormalizeName(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// SameName reports whether two business names are equal after folding.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

// Nearby reports whether two points are within tol degrees on both axes.
func Nearby(a, b orb.Point, tol float64) bool {
	return math.Abs(a.Lat()-b.Lat()) <= tol && math.Abs(a.Lon()-b.Lon()) <= tol
}

// DistanceMeters returns the haversine distance between two points.
func DistanceMeters(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// Point builds an orb.Point from latitude and longitude.
func Point(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}
