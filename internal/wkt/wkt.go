// Package wkt formats and parses the WKT points exchanged with callers
// and with PostGIS. Only POINT geometries are supported; everything else
// the service handles stays inside the database.
package wkt

import (
	"strconv"
	"strings"

	"github.com/internetofwater/nldi-go/internal/errs"
)

// Point formats a longitude/latitude pair as a WKT point.
func Point(lon, lat float64) string {
	var b strings.Builder
	b.WriteString("POINT(")
	b.WriteString(strconv.FormatFloat(lon, 'f', -1, 64))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(lat, 'f', -1, 64))
	b.WriteByte(')')
	return b.String()
}

// ParsePoint parses a WKT point of the form POINT(lon lat) and validates
// the coordinate ranges. The keyword is matched case-insensitively and
// surrounding whitespace is tolerated.
func ParsePoint(s string) (lon, lat float64, err error) {
	trimmed := strings.TrimSpace(s)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "POINT") {
		return 0, 0, errs.InvalidInputf("coords must be a WKT point: %q", s)
	}
	rest := strings.TrimSpace(trimmed[len("POINT"):])
	if len(rest) < 2 || rest[0] != '(' || rest[len(rest)-1] != ')' {
		return 0, 0, errs.InvalidInputf("coords must be a WKT point: %q", s)
	}
	parts := strings.Fields(rest[1 : len(rest)-1])
	if len(parts) != 2 {
		return 0, 0, errs.InvalidInputf("coords must contain exactly two coordinates: %q", s)
	}
	lon, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, errs.InvalidInputf("invalid longitude %q", parts[0])
	}
	lat, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, errs.InvalidInputf("invalid latitude %q", parts[1])
	}
	if lon < -180 || lon > 180 {
		return 0, 0, errs.InvalidInputf("longitude out of range: %v", lon)
	}
	if lat < -90 || lat > 90 {
		return 0, 0, errs.InvalidInputf("latitude out of range: %v", lat)
	}
	return lon, lat, nil
}
