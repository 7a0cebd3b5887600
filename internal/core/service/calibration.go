package service

import (
	"errors"
	"time"
)

const (
	// calibration needs headroom to measure a steady charge rate
	CALIBRATE_MAX_SOC      = 80
	CALIBRATE_SOC_INCREASE = 10
	// below this sampled interval the rate estimate is too noisy
	CALIBRATE_MIN_DURATION = 10 * time.Minute
)

var (
	ErrCalibrationSoCTooHigh = errors.New("state of charge too high to calibrate")
	ErrCalibrationTooShort   = errors.New("calibration window too short")
	ErrCalibrationNotRunning = errors.New("calibration not running")
)

// ChargeSpeedCalibration measures the real charge rate in percent per hour
// from SoC samples taken during a full-rate session.
type ChargeSpeedCalibration struct {
	startSoC float64
	startAt  time.Time
	running  bool
}

// Begin starts a measurement. The session limit should be raised by
// TargetLimit's return value so the vehicle keeps charging while sampling.
func (c *ChargeSpeedCalibration) Begin(socPct float64, at time.Time) error {
	if socPct > CALIBRATE_MAX_SOC {
		return ErrCalibrationSoCTooHigh
	}
	c.startSoC = socPct
	c.startAt = at
	c.running = true
	return nil
}

// TargetLimit is the charge limit to hold during calibration.
func (c *ChargeSpeedCalibration) TargetLimit() uint {
	limit := uint(c.startSoC) + CALIBRATE_SOC_INCREASE
	if limit > 100 {
		limit = 100
	}
	return limit
}

func (c *ChargeSpeedCalibration) Running() bool {
	return c.running
}

// Finish computes the measured rate and stops the calibration.
func (c *ChargeSpeedCalibration) Finish(socPct float64, at time.Time) (float64, error) {
	if !c.running {
		return 0, ErrCalibrationNotRunning
	}
	c.running = false
	elapsed := at.Sub(c.startAt)
	if elapsed < CALIBRATE_MIN_DURATION {
		return 0, ErrCalibrationTooShort
	}
	gained := socPct - c.startSoC
	if gained <= 0 {
		return 0, ErrCalibrationTooShort
	}
	return gained / elapsed.Hours(), nil
}
