package service

import (
	"testing"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestColdStartUsesInitialCurrent(t *testing.T) {

	require := require.New(t)

	r := cc().Tick(domain.ChargeControlState{}, input(t0, 5000, 0, false))

	require.True(r.Changed)
	require.EqualValues(6, r.TargetCurrentAmps)
	require.False(r.Pause)
}

func TestIncreaseOneStepPerSettlePeriod(t *testing.T) {

	require := require.New(t)

	ctrl := cc()
	state := started(8, t0)

	// allocation supports 12 A but only one step is taken
	r := ctrl.Tick(state, input(t0.Add(ctrl.SettleDelay), 12*VOLTAGE, 0, false))
	require.True(r.Changed)
	require.EqualValues(9, r.TargetCurrentAmps)

	// within the settle period nothing moves
	r = ctrl.Tick(started(9, t0.Add(ctrl.SettleDelay)), input(t0.Add(ctrl.SettleDelay+time.Second), 12*VOLTAGE, 0, false))
	require.False(r.Changed)
	require.EqualValues(9, r.TargetCurrentAmps)
}

func TestRampToTargetOverTime(t *testing.T) {

	require := require.New(t)

	ctrl := cc()
	state := started(6, t0)
	now := t0

	count := 0
	for {
		now = now.Add(ctrl.SettleDelay)
		r := ctrl.Tick(state, input(now, 14*VOLTAGE, 0, false))
		require.False(r.Pause)
		if !r.Changed {
			break
		}
		require.EqualValues(state.CurrentAmps+1, r.TargetCurrentAmps, "increments move one amp at a time")
		state.CurrentAmps = r.TargetCurrentAmps
		state.LastChange = now
		count++
		require.LessOrEqual(count, 100, "possible infinite loop avoided")
	}
	require.EqualValues(14, state.CurrentAmps)
	require.EqualValues(8, count)
}

func TestDecreaseAppliesImmediately(t *testing.T) {

	require := require.New(t)

	ctrl := cc()

	// a cloud passes: allocation collapses, current drops in one tick even
	// inside the settle period
	r := ctrl.Tick(started(16, t0), input(t0.Add(2*time.Second), 7*VOLTAGE, 0, false))
	require.True(r.Changed)
	require.EqualValues(7, r.TargetCurrentAmps)
	require.False(r.Pause)
}

func TestBelowMinimumSignalsPause(t *testing.T) {

	require := require.New(t)

	ctrl := cc()

	r := ctrl.Tick(started(8, t0), input(t0.Add(time.Second), 2*VOLTAGE, 0, false))
	require.True(r.Pause)
	require.True(r.Changed)
	require.EqualValues(0, r.TargetCurrentAmps)
}

func TestResumeRestoresLastCurrent(t *testing.T) {

	require := require.New(t)

	ctrl := cc()

	// ramped to 10 A before the pause; the sun comes back with budget to
	// spare, so charging picks up right where it left off
	in := input(t0.Add(time.Second), 2400, 0, false)
	in.Paused = true
	r := ctrl.Tick(started(10, t0), in)
	require.True(r.Changed)
	require.EqualValues(10, r.TargetCurrentAmps)
	require.False(r.Pause)
}

func TestResumeClampedToNewBudget(t *testing.T) {

	require := require.New(t)

	ctrl := cc()

	// the budget after the pause only sustains 8 A
	in := input(t0.Add(time.Second), 1900, 0, false)
	in.Paused = true
	r := ctrl.Tick(started(14, t0), in)
	require.True(r.Changed)
	require.EqualValues(8, r.TargetCurrentAmps)

	// a floor above the last commanded current pulls the resume up
	in = input(t0.Add(time.Second), 0, 10, false)
	in.Paused = true
	r = ctrl.Tick(started(6, t0), in)
	require.True(r.Changed)
	require.EqualValues(10, r.TargetCurrentAmps)
}

func TestStayPausedIsNotAChange(t *testing.T) {

	require := require.New(t)

	ctrl := cc()

	in := input(t0.Add(time.Second), 800, 0, false)
	in.Paused = true
	r := ctrl.Tick(started(10, t0), in)
	require.True(r.Pause)
	require.False(r.Changed, "a paused charger staying paused needs no command")
	require.EqualValues(0, r.TargetCurrentAmps)
}

func TestDeadbandBiasAvoidsHunting(t *testing.T) {

	require := require.New(t)

	ctrl := cc()

	// 9.8 A worth of power rounds up through the bias window, 9.2 A does not
	r := ctrl.Tick(started(10, t0), input(t0.Add(time.Second), 9.8*VOLTAGE, 0, false))
	require.False(r.Changed)
	require.EqualValues(10, r.TargetCurrentAmps)

	r = ctrl.Tick(started(10, t0), input(t0.Add(time.Second), 9.2*VOLTAGE, 0, false))
	require.True(r.Changed)
	require.EqualValues(9, r.TargetCurrentAmps)
}

func TestFastChargePinsAtMax(t *testing.T) {

	require := require.New(t)

	ctrl := cc()

	r := ctrl.Tick(started(6, t0), input(t0.Add(time.Second), 0, 0, true))
	require.True(r.Changed)
	require.EqualValues(ctrl.MaxCurrent, r.TargetCurrentAmps)
	require.False(r.Pause)
}

func TestMinCurrentFloorForcesFullRate(t *testing.T) {

	require := require.New(t)

	ctrl := cc()

	// no surplus at night but the deadline floor keeps the charger at max
	r := ctrl.Tick(started(6, t0), input(t0.Add(time.Second), 0, ctrl.MaxCurrent, false))
	require.True(r.Changed)
	require.EqualValues(ctrl.MaxCurrent, r.TargetCurrentAmps)
	require.False(r.Pause, "floor overrides the pause signal")
}

func TestTargetClampedToMaxCurrent(t *testing.T) {

	require := require.New(t)

	ctrl := cc()
	state := started(ctrl.MaxCurrent, t0)

	r := ctrl.Tick(state, input(t0.Add(ctrl.SettleDelay), 50*VOLTAGE, 0, false))
	assert.False(t, r.Changed)
	require.EqualValues(ctrl.MaxCurrent, r.TargetCurrentAmps)
}

const VOLTAGE = 230.0

var t0 = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func cc() *SolarChargeControlLogic {
	return &SolarChargeControlLogic{
		MinCurrent:   6,
		MaxCurrent:   16,
		Voltage:      VOLTAGE,
		StartCurrent: 6,
		SettleDelay:  60 * time.Second,
		Logger:       zap.Must(zap.NewDevelopment()),
	}
}

func started(amps uint, lastChange time.Time) domain.ChargeControlState {
	return domain.ChargeControlState{
		CurrentAmps: amps,
		LastChange:  lastChange,
		Started:     true,
	}
}

func input(now time.Time, allocatedWatt float64, floor uint, fast bool) domain.ChargeControlInput {
	return domain.ChargeControlInput{
		Now:                now,
		AllocatedPowerWatt: allocatedWatt,
		MinCurrentFloor:    floor,
		FastCharge:         fast,
	}
}
