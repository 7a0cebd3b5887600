package port

import "time"

// SolarEvents answers sun-position questions for the configured location.
type SolarEvents interface {
	// Elevation is the sun elevation angle in degrees at the given instant.
	Elevation(at time.Time) float64
	// NextRising returns the next instant at or after the given one where the
	// sun rises through the given elevation angle. Returns false when the sun
	// never reaches that angle within the scan horizon.
	NextRising(after time.Time, elevationDeg float64) (time.Time, bool)
	// NextSetting returns the next instant at or after the given one where
	// the sun descends through the given elevation angle. Returns false when
	// the sun never crosses that angle within the scan horizon.
	NextSetting(after time.Time, elevationDeg float64) (time.Time, bool)
	// IsDaytime reports whether the sun is above the horizon.
	IsDaytime(at time.Time) bool
}
