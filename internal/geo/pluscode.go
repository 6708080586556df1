package geo

import (
	"math"
	"strconv"
	"strings"

	olc "github.com/google/open-location-code/go"
)

// DefaultPlusCodeLength gives roughly 3m x 3m precision.
const DefaultPlusCodeLength = 11

// PlusCode encodes a coordinate pair given as decimal strings. It returns
// "" when either coordinate is empty or not a finite number, or when length
// is not a valid code length.
func PlusCode(lat, lon string, length int) string {
	la, err := parseCoord(lat)
	if err != nil {
		return ""
	}
	lo, err := parseCoord(lon)
	if err != nil {
		return ""
	}
	if length < 2 || length > 15 || (length < 10 && length%2 == 1) {
		return ""
	}
	return olc.Encode(la, lo, length)
}

// FormatCoord renders a coordinate the way it is stored.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseCoord(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
