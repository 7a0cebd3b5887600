package service

import (
	"testing"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJustInTimeStart(t *testing.T) {

	require := require.New(t)

	// 50% -> 80% at 7.5%/h takes 4h: completion at 07:00 means start at 03:00
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) // Monday
	schedule := scheduleAllDays(80, ct(7))

	plan := planner().ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   now,
		SoC:                   soc(50),
		Schedule:              schedule,
		ChargeSpeedPctPerHour: 7.5,
	})

	require.NotNil(plan)
	assert.EqualValues(t, 80, plan.TargetLimitPct)
	require.Equal(time.Date(2026, 6, 15, 3, 0, 0, 0, time.UTC), plan.PlannedStart)
	require.Equal(time.Date(2026, 6, 15, 7, 0, 0, 0, time.UTC), plan.Deadline)
	require.InDelta(4, plan.RequiredHours, 0.001)
}

func TestPlannedStartClampedToNow(t *testing.T) {

	require := require.New(t)

	// too late to start on time: start immediately
	now := time.Date(2026, 6, 15, 5, 0, 0, 0, time.UTC)
	plan := planner().ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   now,
		SoC:                   soc(20),
		Schedule:              scheduleAllDays(80, ct(7)),
		ChargeSpeedPctPerHour: 7.5,
	})

	require.NotNil(plan)
	require.Equal(now, plan.PlannedStart)
}

func TestFullChargeGetsExtraMargin(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	plan := planner().ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   now,
		SoC:                   soc(90),
		Schedule:              scheduleAllDays(100, ct(7)),
		ChargeSpeedPctPerHour: 10,
	})

	require.NotNil(plan)
	// 1h of charge plus 1h taper margin
	require.InDelta(2, plan.RequiredHours, 0.001)
	require.Equal(time.Date(2026, 6, 15, 5, 0, 0, 0, time.UTC), plan.PlannedStart)
}

func TestDeadlineEntryKeepsItsOwnGoal(t *testing.T) {

	require := require.New(t)

	// Monday carries a completion time, so its goal stands even though
	// Tuesday wants more
	var schedule domain.WeeklySchedule
	schedule.SetEntry(time.Monday, entry(60, ct(7)))
	schedule.SetEntry(time.Tuesday, entry(80, ct(7)))

	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) // Monday
	plan := planner().ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   now,
		SoC:                   soc(50),
		Schedule:              schedule,
		ChargeSpeedPctPerHour: 7.5,
	})

	require.NotNil(plan)
	require.EqualValues(60, plan.TargetLimitPct)
}

func TestChargeMoreTodayWhenTomorrowNeedsMore(t *testing.T) {

	require := require.New(t)

	// Monday has no completion time and Tuesday wants 80: charge to 80
	// over Monday's window
	var schedule domain.WeeklySchedule
	schedule.SetEntry(time.Monday, entry(60, nil))
	schedule.SetEntry(time.Tuesday, entry(80, ct(7)))

	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) // Monday
	plan := planner().ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   now,
		SoC:                   soc(50),
		Schedule:              schedule,
		ChargeSpeedPctPerHour: 7.5,
	})

	require.NotNil(plan)
	require.EqualValues(80, plan.TargetLimitPct)
	require.False(plan.HasDeadline())
}

func TestReduceLimitDifferenceDampsFarGoals(t *testing.T) {

	require := require.New(t)

	// Thursday wants 100 but it is 3 days away: damped by 10 per day
	var schedule domain.WeeklySchedule
	schedule.SetEntry(time.Monday, entry(60, nil))
	schedule.SetEntry(time.Thursday, entry(100, ct(7)))

	p := planner()
	p.ReduceLimitDifference = true

	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) // Monday
	plan := p.ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   now,
		SoC:                   soc(50),
		Schedule:              schedule,
		ChargeSpeedPctPerHour: 7.5,
	})

	require.NotNil(plan)
	// 100 - 10*(3-1) = 80
	require.EqualValues(80, plan.TargetLimitPct)
}

func TestRainyWindowRaisesToWindowMax(t *testing.T) {

	require := require.New(t)

	from := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) // Monday
	to := time.Date(2026, 6, 16, 23, 0, 0, 0, time.UTC)

	p := planner()
	p.RainyFrom = &from
	p.RainyTo = &to

	// Tuesday falls inside the forecast window and carries the highest goal
	var schedule domain.WeeklySchedule
	schedule.SetEntry(time.Monday, entry(70, ct(7)))
	schedule.SetEntry(time.Tuesday, entry(90, ct(7)))

	plan := p.ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   from,
		SoC:                   soc(50),
		Schedule:              schedule,
		ChargeSpeedPctPerHour: 7.5,
	})

	require.NotNil(plan)
	require.EqualValues(90, plan.TargetLimitPct)
}

func TestUnknownSoCKeepsPreviousPlan(t *testing.T) {

	require := require.New(t)

	previous := &domain.DailyPlan{ChargerId: "ev", Day: "2026-06-15", TargetLimitPct: 80}
	plan := planner().ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		SoC:                   nil,
		Schedule:              scheduleAllDays(80, ct(7)),
		ChargeSpeedPctPerHour: 7.5,
		Previous:              previous,
	})

	require.Equal(previous, plan)
}

func TestPlanIsStableWithinGraceWindow(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	req := PlanRequest{
		ChargerId:             "ev",
		Now:                   now,
		SoC:                   soc(50),
		Schedule:              scheduleAllDays(80, ct(7)),
		ChargeSpeedPctPerHour: 7.5,
	}

	first := planner().ComputePlan(req)
	require.NotNil(first)

	// a slightly higher SoC ten minutes later moves the start inside the
	// grace window: the stored plan stands
	req.Now = now.Add(10 * time.Minute)
	req.SoC = soc(51)
	req.Previous = first

	second := planner().ComputePlan(req)
	require.Equal(first, second)
}

func TestNoEnabledEntryMeansNoPlan(t *testing.T) {

	require := require.New(t)

	plan := planner().ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		SoC:                   soc(50),
		Schedule:              domain.WeeklySchedule{},
		ChargeSpeedPctPerHour: 7.5,
	})

	require.Nil(plan)
}

func TestNotEnoughTime(t *testing.T) {

	require := require.New(t)

	p := planner()
	now := time.Date(2026, 6, 15, 3, 0, 0, 0, time.UTC)
	deadline := now.Add(2 * time.Hour)

	// 30% at 7.5%/h needs 4h but only 2h remain
	require.True(p.NotEnoughTime(now, deadline, 50, 80, 7.5, false))
	// 10% needs 80min, fits in 2h
	require.False(p.NotEnoughTime(now, deadline, 70, 80, 7.5, false))
	// nothing left to charge
	require.False(p.NotEnoughTime(now, deadline, 80, 80, 7.5, false))
}

func TestOffPeakStartTrigger(t *testing.T) {

	require := require.New(t)

	p := planner()
	p.OffPeak = domain.ClockTimePeriod{
		From: domain.ClockTime{Hour: 23},
		To:   domain.ClockTime{Hour: 7},
	}

	at, ok := p.NextStartTrigger(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))
	require.True(ok)
	require.Equal(time.Date(2026, 6, 15, 23, 0, 0, 0, time.UTC), at)

	// inside the window the trigger is immediate
	inside := time.Date(2026, 6, 15, 23, 30, 0, 0, time.UTC)
	at, ok = p.NextStartTrigger(inside)
	require.True(ok)
	require.Equal(inside, at)
}

func TestWindowPlanFromOffPeak(t *testing.T) {

	require := require.New(t)

	p := planner()
	p.OffPeak = domain.ClockTimePeriod{
		From: domain.ClockTime{Hour: 23},
		To:   domain.ClockTime{Hour: 7},
	}

	var schedule domain.WeeklySchedule
	schedule.SetEntry(time.Monday, entry(80, nil))

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) // Monday
	req := PlanRequest{
		ChargerId:             "ev",
		Now:                   now,
		SoC:                   soc(50),
		Schedule:              schedule,
		ChargeSpeedPctPerHour: 7.5,
	}

	plan := p.ComputePlan(req)
	require.NotNil(plan)
	require.False(plan.HasDeadline())
	require.Equal(time.Date(2026, 6, 15, 23, 0, 0, 0, time.UTC), plan.PlannedStart)
	require.NotNil(plan.PlannedEnd)
	require.Equal(time.Date(2026, 6, 16, 7, 0, 0, 0, time.UTC), *plan.PlannedEnd)
	require.True(plan.PlannedStart.Before(*plan.PlannedEnd))

	// recomputing a little later keeps the stored plan
	req.Now = now.Add(10 * time.Minute)
	req.SoC = soc(51)
	req.Previous = plan
	require.Equal(plan, p.ComputePlan(req))
}

func TestWindowPlanFollowsSunTriggers(t *testing.T) {

	require := require.New(t)

	rise := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	set := time.Date(2026, 6, 15, 19, 0, 0, 0, time.UTC)

	p := planner()
	p.Solar = fakeSolar{elevation: -10, rising: rise, setting: set}

	var schedule domain.WeeklySchedule
	schedule.SetEntry(time.Monday, entry(80, nil))

	plan := p.ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC), // Monday
		SoC:                   soc(50),
		Schedule:              schedule,
		ChargeSpeedPctPerHour: 7.5,
	})

	require.NotNil(plan)
	require.False(plan.HasDeadline())
	require.Equal(rise, plan.PlannedStart)
	require.NotNil(plan.PlannedEnd)
	require.Equal(set, *plan.PlannedEnd)
}

func TestWindowPlanStartsNowPastTheTrigger(t *testing.T) {

	require := require.New(t)

	set := time.Date(2026, 6, 15, 19, 0, 0, 0, time.UTC)

	p := planner()
	// the sun is already above the trigger angle
	p.Solar = fakeSolar{elevation: 25, rising: time.Date(2026, 6, 16, 10, 0, 0, 0, time.UTC), setting: set}

	var schedule domain.WeeklySchedule
	schedule.SetEntry(time.Monday, entry(80, nil))

	now := time.Date(2026, 6, 15, 13, 0, 0, 0, time.UTC) // Monday
	plan := p.ComputePlan(PlanRequest{
		ChargerId:             "ev",
		Now:                   now,
		SoC:                   soc(50),
		Schedule:              schedule,
		ChargeSpeedPctPerHour: 7.5,
	})

	require.NotNil(plan)
	require.Equal(now, plan.PlannedStart)
	require.NotNil(plan.PlannedEnd)
	require.Equal(set, *plan.PlannedEnd)
}

func planner() *SchedulePlanner {
	return &SchedulePlanner{
		ElevationTriggerDegrees: 10,
	}
}

func soc(value float64) *float64 {
	return &value
}

func ct(hour int) *domain.ClockTime {
	return &domain.ClockTime{Hour: hour}
}

func entry(limit uint, completion *domain.ClockTime) domain.ScheduleEntry {
	return domain.ScheduleEntry{
		Enabled:        true,
		TargetLimitPct: limit,
		Completion:     completion,
	}
}

func scheduleAllDays(limit uint, completion *domain.ClockTime) domain.WeeklySchedule {
	var schedule domain.WeeklySchedule
	for d := time.Sunday; d <= time.Saturday; d++ {
		schedule.SetEntry(d, entry(limit, completion))
	}
	return schedule
}

// fakeSolar answers sun questions with fixed instants.
type fakeSolar struct {
	elevation float64
	rising    time.Time
	setting   time.Time
}

func (f fakeSolar) Elevation(at time.Time) float64 {
	return f.elevation
}

func (f fakeSolar) NextRising(after time.Time, elevationDeg float64) (time.Time, bool) {
	return f.rising, !f.rising.IsZero()
}

func (f fakeSolar) NextSetting(after time.Time, elevationDeg float64) (time.Time, bool) {
	return f.setting, !f.setting.IsZero()
}

func (f fakeSolar) IsDaytime(at time.Time) bool {
	return f.elevation > 0
}
