package solar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Madrid
const (
	testLat = 40.4168
	testLon = -3.7038
)

func TestDaytimeDetection(t *testing.T) {

	require := require.New(t)

	sun := NewSunPosition(testLat, testLon)

	noon := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	require.True(sun.IsDaytime(noon))
	require.False(sun.IsDaytime(midnight))
	require.Greater(sun.Elevation(noon), 0.0)
	require.Less(sun.Elevation(midnight), 0.0)
}

func TestNextRisingThroughElevation(t *testing.T) {

	require := require.New(t)

	sun := NewSunPosition(testLat, testLon)

	midnight := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	at, ok := sun.NextRising(midnight, 10)
	require.True(ok)
	require.True(at.After(midnight))
	require.True(at.Before(midnight.Add(24*time.Hour)))
	// the sun must actually be near the requested angle at the returned time
	require.InDelta(10, sun.Elevation(at), 1.0)
}

func TestNextRisingAfterTodaysCrossing(t *testing.T) {

	require := require.New(t)

	sun := NewSunPosition(testLat, testLon)

	// past today's crossing the next one is tomorrow
	noon := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	at, ok := sun.NextRising(noon, 10)
	require.True(ok)
	require.True(at.After(noon.Add(12 * time.Hour)))
	require.True(at.Before(noon.Add(24 * time.Hour)))
}

func TestNextSettingThroughElevation(t *testing.T) {

	require := require.New(t)

	sun := NewSunPosition(testLat, testLon)

	noon := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	at, ok := sun.NextSetting(noon, 10)
	require.True(ok)
	require.True(at.After(noon))
	require.True(at.Before(noon.Add(12*time.Hour)))
	require.InDelta(10, sun.Elevation(at), 1.0)

	// the setting crossing comes after the next rising once today's is past
	rising, ok := sun.NextRising(at.Add(time.Minute), 10)
	require.True(ok)
	setting, ok := sun.NextSetting(at.Add(time.Minute), 10)
	require.True(ok)
	require.True(rising.Before(setting))
}

func TestNeverReachedElevation(t *testing.T) {

	require := require.New(t)

	sun := NewSunPosition(testLat, testLon)

	// the sun never climbs to 85 degrees in Madrid
	_, ok := sun.NextRising(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), 85)
	require.False(ok)
}
