package dedup

import (
	"math"
	"strings"
)

const (
	// FuzzyThreshold is the maximum normalised edit distance for two names
	// to count as the same listing.
	FuzzyThreshold = 0.2

	// ProximityMeters is the radius within which two coordinates are
	// considered the same place.
	ProximityMeters = 500.0

	earthRadiusMeters = 6_371_000.0
)

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// IsFuzzyMatch reports whether two names are near-identical after trimming
// and lower-casing: equal, or edit distance below FuzzyThreshold of the
// longer name.
func IsFuzzyMatch(a, b string) bool {
	na := strings.ToLower(strings.TrimSpace(a))
	nb := strings.ToLower(strings.TrimSpace(b))
	if na == nb {
		return true
	}
	maxLen := max(len([]rune(na)), len([]rune(nb)))
	return float64(Levenshtein(na, nb))/float64(maxLen) < FuzzyThreshold
}

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p lies within WGS84 bounds.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Haversine returns the great-circle distance between a and b in metres.
func Haversine(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// IsNearby reports whether a and b are closer than ProximityMeters.
func IsNearby(a, b Point) bool {
	return Haversine(a, b) < ProximityMeters
}

// BoundingBox returns the lat/lng box enclosing a circle of radius metres
// around p. Used to pre-filter proximity lookups in the store.
func BoundingBox(p Point, radius float64) (minPt, maxPt Point) {
	dLat := radius / earthRadiusMeters * 180 / math.Pi
	cos := math.Cos(radians(p.Lat))
	dLng := 180.0
	if cos > 1e-9 {
		dLng = math.Min(dLat/cos, 180)
	}
	return Point{Lat: p.Lat - dLat, Lng: p.Lng - dLng}, Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
