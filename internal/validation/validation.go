package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrLocationEmpty is returned when location is empty or whitespace-only after trim.
	ErrLocationEmpty = errors.New("location is required")

	// ErrLocationTooShort is returned when location length is below the minimum.
	ErrLocationTooShort = errors.New("location too short")

	// ErrLocationTooLong is returned when location length exceeds the maximum.
	ErrLocationTooLong = errors.New("location too long")

	// ErrLocationInvalidChars is returned when location contains disallowed characters.
	ErrLocationInvalidChars = errors.New("location contains invalid characters")

	// ErrCoordinatesOutOfRange is returned for a lat,lon pair outside [-90,90] x [-180,180].
	ErrCoordinatesOutOfRange = errors.New("coordinates out of range")

	// ErrInvalidDays is returned when a forecast day count is not an integer in range.
	ErrInvalidDays = errors.New("invalid days")
)

// ValidateLocation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to allowed characters: letters (Unicode), digits, space, comma, hyphen
// and period. A label that parses as a coordinate pair must be in range.
// Returns the trimmed string or an error suitable for 400 INVALID_LOCATION responses.
// Normalization (e.g. lowercase) is left to the service layer.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	if looksNumeric(s) {
		if _, _, ok := ParseCoordinates(s); !ok {
			return "", ErrCoordinatesOutOfRange
		}
	}
	return s, nil
}

// ParseCoordinates parses "lat,lon" (spaces allowed around either number). ok is
// false when s is not a pair of finite numbers within range.
func ParseCoordinates(s string) (lat, lon float64, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

// ValidateDays parses a forecast day count. Empty input yields def.
func ValidateDays(raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, ErrInvalidDays
	}
	return n, nil
}

// looksNumeric reports whether s has no letters, i.e. the caller meant coordinates.
func looksNumeric(s string) bool {
	for _, c := range s {
		if unicode.IsLetter(c) {
			return false
		}
	}
	return strings.Contains(s, ",")
}

// isAllowedLocationRune returns true for letters (Unicode), digits, space, comma, hyphen, period.
func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.':
		return true
	}
	return false
}
