package gps

import (
	"fmt"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string  `json:"time"`        // e.g. "12:34:56"
	Date       string  `json:"date"`        // e.g. "06/12/25"
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	Altitude   float64 `json:"alt_m"`       // metres above mean sea level, from GGA
	Satellites int64   `json:"satellites"`  // satellites in use, from GGA
	Quality    string  `json:"quality"`     // GGA fix quality, "0" is invalid
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	CourseDeg  float64 `json:"course_deg"`  // course over ground
	Validity   string  `json:"validity"`    // "A" (valid) / "V" (void), etc.
}

// HasAltitude reports whether the last GGA sentence carried a usable fix.
func (f Fix) HasAltitude() bool {
	return f.Quality != "" && f.Quality != nmea.Invalid
}

// Tracker accumulates RMC and GGA sentences into one Fix.
type Tracker struct {
	current Fix
}

// Feed parses one NMEA line. It reports whether the line updated the fix;
// non-NMEA lines and sentence types other than RMC and GGA are ignored.
func (t *Tracker) Feed(line string) (Fix, bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return t.current, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return t.current, false, fmt.Errorf("gps: %w", err)
	}

	switch m := sentence.(type) {
	case nmea.RMC:
		t.current.Time = m.Time.String()
		t.current.Date = m.Date.String()
		t.current.Latitude = m.Latitude
		t.current.Longitude = m.Longitude
		t.current.SpeedKnots = m.Speed
		t.current.CourseDeg = m.Course
		t.current.Validity = string(m.Validity)
	case nmea.GGA:
		t.current.Time = m.Time.String()
		t.current.Latitude = m.Latitude
		t.current.Longitude = m.Longitude
		t.current.Altitude = m.Altitude
		t.current.Satellites = m.NumSatellites
		t.current.Quality = m.FixQuality
	default:
		return t.current, false, nil
	}
	return t.current, true, nil
}

// Fix returns the accumulated fix.
func (t *Tracker) Fix() Fix { return t.current }

// ParseAltitude extracts the altitude from a single GGA sentence. ok is
// false for other sentence types and for GGA without a fix.
func ParseAltitude(line string) (alt float64, ok bool, err error) {
	var t Tracker
	fix, updated, err := t.Feed(line)
	if err != nil || !updated || !fix.HasAltitude() {
		return 0, false, err
	}
	return fix.Altitude, true, nil
}
