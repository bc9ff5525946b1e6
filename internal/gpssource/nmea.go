package gpssource

import (
	"fmt"
	"strconv"
	"strings"
)

const knotsToMPS = 0.514444

// parseRMC parses a $GPRMC/$GNRMC sentence into a Position. It returns
// ErrNoFix if the sentence reports an invalid fix (status field != "A"),
// and an error if the sentence is malformed.
func parseRMC(sentence string) (Position, error) {
	parts := strings.Split(sentence, ",")
	if len(parts) < 9 {
		return Position{}, fmt.Errorf("gpssource: short RMC sentence: %q", sentence)
	}
	if parts[2] != "A" {
		return Position{}, ErrNoFix
	}

	lat, err := parseCoord(parts[3], parts[4])
	if err != nil {
		return Position{}, err
	}
	lon, err := parseCoord(parts[5], parts[6])
	if err != nil {
		return Position{}, err
	}

	speedKnots := 0.0
	if parts[7] != "" {
		speedKnots, err = strconv.ParseFloat(parts[7], 64)
		if err != nil {
			return Position{}, fmt.Errorf("gpssource: invalid speed field %q: %w", parts[7], err)
		}
	}

	heading := 0.0
	if parts[8] != "" {
		heading, err = strconv.ParseFloat(parts[8], 64)
		if err != nil {
			return Position{}, fmt.Errorf("gpssource: invalid heading field %q: %w", parts[8], err)
		}
	}

	return Position{
		Lat:     lat,
		Lon:     lon,
		Heading: heading,
		Speed:   speedKnots * knotsToMPS,
	}, nil
}

// parseCoord converts an NMEA DDDMM.MMMM coordinate and hemisphere letter
// into signed decimal degrees.
func parseCoord(value, hemisphere string) (float64, error) {
	if value == "" {
		return 0, nil
	}

	degreeDigits := 2
	if len(value) >= 10 {
		degreeDigits = 3
	}
	if len(value) < degreeDigits {
		return 0, fmt.Errorf("gpssource: invalid coordinate field %q", value)
	}

	degrees, err := strconv.ParseFloat(value[:degreeDigits], 64)
	if err != nil {
		return 0, fmt.Errorf("gpssource: invalid coordinate degrees %q: %w", value, err)
	}
	minutes, err := strconv.ParseFloat(value[degreeDigits:], 64)
	if err != nil {
		return 0, fmt.Errorf("gpssource: invalid coordinate minutes %q: %w", value, err)
	}

	result := degrees + minutes/60
	if hemisphere == "S" || hemisphere == "W" {
		result = -result
	}
	return result, nil
}

// isRMCSentence reports whether line is a recognised RMC talker sentence.
func isRMCSentence(line string) bool {
	return strings.HasPrefix(line, "$GPRMC") || strings.HasPrefix(line, "$GNRMC")
}
