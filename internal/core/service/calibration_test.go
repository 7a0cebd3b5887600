package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCalibrationMeasuresRate(t *testing.T) {

	require := require.New(t)

	cal := &ChargeSpeedCalibration{}
	start := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(cal.Begin(50, start))
	require.True(cal.Running())
	require.EqualValues(60, cal.TargetLimit())

	rate, err := cal.Finish(53, start.Add(30*time.Minute))
	require.NoError(err)
	require.InDelta(6, rate, 0.001)
	require.False(cal.Running())
}

func TestCalibrationRejectsHighSoC(t *testing.T) {

	require := require.New(t)

	cal := &ChargeSpeedCalibration{}
	err := cal.Begin(85, time.Now())
	require.ErrorIs(err, ErrCalibrationSoCTooHigh)
	require.False(cal.Running())
}

func TestCalibrationRejectsShortWindow(t *testing.T) {

	require := require.New(t)

	cal := &ChargeSpeedCalibration{}
	start := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(cal.Begin(50, start))
	_, err := cal.Finish(51, start.Add(2*time.Minute))
	require.ErrorIs(err, ErrCalibrationTooShort)
}

func TestCalibrationAcceptsBoundarySoC(t *testing.T) {

	require := require.New(t)

	cal := &ChargeSpeedCalibration{}
	require.NoError(cal.Begin(CALIBRATE_MAX_SOC, time.Now()))
	require.EqualValues(90, cal.TargetLimit())
}
