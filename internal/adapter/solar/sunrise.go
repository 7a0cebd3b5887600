package solar

import (
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/port"

	sunrise "github.com/nathan-osman/go-sunrise"
)

// scan horizon for the next elevation crossing; covers polar edge cases
// where the sun stays below the trigger angle for days
const elevationScanDays = 8

// SunPosition answers sun elevation questions for a fixed location.
type SunPosition struct {
	Latitude  float64
	Longitude float64
}

func NewSunPosition(latitude, longitude float64) *SunPosition {
	return &SunPosition{Latitude: latitude, Longitude: longitude}
}

func (s *SunPosition) Elevation(at time.Time) float64 {
	return sunrise.Elevation(s.Latitude, s.Longitude, at)
}

func (s *SunPosition) NextRising(after time.Time, elevationDeg float64) (time.Time, bool) {
	for i := 0; i < elevationScanDays; i++ {
		day := after.AddDate(0, 0, i)
		morning, _ := sunrise.TimeOfElevation(s.Latitude, s.Longitude, elevationDeg,
			day.Year(), day.Month(), day.Day())
		if morning.IsZero() {
			continue
		}
		at := morning.In(after.Location())
		if !at.Before(after) {
			return at, true
		}
	}
	return time.Time{}, false
}

func (s *SunPosition) NextSetting(after time.Time, elevationDeg float64) (time.Time, bool) {
	for i := 0; i < elevationScanDays; i++ {
		day := after.AddDate(0, 0, i)
		_, evening := sunrise.TimeOfElevation(s.Latitude, s.Longitude, elevationDeg,
			day.Year(), day.Month(), day.Day())
		if evening.IsZero() {
			continue
		}
		at := evening.In(after.Location())
		if !at.Before(after) {
			return at, true
		}
	}
	return time.Time{}, false
}

func (s *SunPosition) IsDaytime(at time.Time) bool {
	return s.Elevation(at) > 0
}

// ensure interface compliance
var _ port.SolarEvents = (*SunPosition)(nil)
