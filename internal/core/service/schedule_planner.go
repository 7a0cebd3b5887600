package service

import (
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"

	"go.uber.org/zap"
)

const (
	// look-ahead horizon for the raise-today rule
	PLAN_LOOK_AHEAD_DAYS = 4
	// minimum raise when the higher goal is tomorrow
	MIN_CHARGE_LIMIT_DIFF = 5
	// per-day damping applied to goals further away
	MAX_CHARGE_LIMIT_DIFF = 10
	// extra time granted when charging to a full battery, where the charge
	// rate tapers off
	FULL_CHARGE_MARGIN = 1 * time.Hour
	// tolerance on planned start comparisons so clock drift does not force
	// a replan
	PLAN_GRACE_WINDOW = 30 * time.Minute
)

// SchedulePlanner computes just-in-time daily charge plans: start as late as
// possible while still reaching the target limit by the completion deadline.
type SchedulePlanner struct {
	ElevationTriggerDegrees float64
	OffPeak                 domain.ClockTimePeriod
	ReduceLimitDifference   bool
	RainyFrom               *time.Time
	RainyTo                 *time.Time
	Solar                   port.SolarEvents
	Logger                  *zap.Logger
}

// PlanRequest carries the inputs for one plan computation.
type PlanRequest struct {
	ChargerId             string
	Now                   time.Time
	SoC                   *float64
	Schedule              domain.WeeklySchedule
	ChargeSpeedPctPerHour float64
	Previous              *domain.DailyPlan
}

// ComputePlan returns the active daily plan. With unchanged inputs the
// previous plan is returned as is. An unknown SoC keeps the previous plan
// because the required charge time cannot be estimated. A today entry
// without a completion time yields a window plan instead of a just-in-time
// one: start and end follow the solar or off-peak triggers.
func (p *SchedulePlanner) ComputePlan(req PlanRequest) *domain.DailyPlan {
	if req.SoC == nil {
		if p.Logger != nil {
			p.Logger.Debug("planner: SoC unknown, keeping previous plan", zap.String("charger", req.ChargerId))
		}
		return req.Previous
	}
	if req.ChargeSpeedPctPerHour <= 0 {
		return req.Previous
	}

	today := req.Schedule.Entry(req.Now.Weekday())
	if today.Enabled && today.Completion == nil {
		return p.windowPlan(req, today)
	}

	entry, deadline, ok := req.Schedule.NextDeadline(req.Now, PLAN_LOOK_AHEAD_DAYS)
	if !ok {
		return nil
	}

	target := p.targetLimit(entry, deadline, req.Schedule)
	requiredHours := p.requiredHours(*req.SoC, target, req.ChargeSpeedPctPerHour)

	plannedStart := deadline.Add(-time.Duration(requiredHours * float64(time.Hour)))
	if plannedStart.Before(req.Now) {
		plannedStart = req.Now
	}

	plan := domain.DailyPlan{
		ChargerId:      req.ChargerId,
		Day:            deadline.Format(domain.PlanDayFormat),
		TargetLimitPct: target,
		Deadline:       deadline,
		PlannedStart:   plannedStart,
		RequiredHours:  requiredHours,
		ComputedAt:     req.Now,
	}
	return p.keepPreviousOr(req.Previous, plan)
}

// windowPlan charges over the day's surplus window: from the sun climbing
// through the elevation trigger (or the off-peak start) until the matching
// stop trigger. The plan has no deadline, so the session never draws from
// grid to make one.
func (p *SchedulePlanner) windowPlan(req PlanRequest, entry domain.ScheduleEntry) *domain.DailyPlan {
	target := p.targetLimit(entry, req.Now, req.Schedule)

	start := req.Now
	if p.Solar != nil && p.Solar.Elevation(req.Now) >= p.ElevationTriggerDegrees {
		// already inside the solar window
	} else if at, ok := p.NextStartTrigger(req.Now); ok {
		start = at
	}

	plan := domain.DailyPlan{
		ChargerId:      req.ChargerId,
		Day:            req.Now.Format(domain.PlanDayFormat),
		TargetLimitPct: target,
		PlannedStart:   start,
		RequiredHours:  p.requiredHours(*req.SoC, target, req.ChargeSpeedPctPerHour),
		ComputedAt:     req.Now,
	}
	if end, ok := p.NextStopTrigger(start); ok {
		plan.PlannedEnd = &end
	}
	return p.keepPreviousOr(req.Previous, plan)
}

// keepPreviousOr returns the stored plan when the goal is unchanged and the
// window only moved within the grace window, so clock drift does not force
// a replan.
func (p *SchedulePlanner) keepPreviousOr(previous *domain.DailyPlan, plan domain.DailyPlan) *domain.DailyPlan {
	if previous != nil && previous.SameGoal(plan) &&
		withinGraceWindow(plan.PlannedStart, previous.PlannedStart) &&
		sameEndWithinGrace(plan.PlannedEnd, previous.PlannedEnd) {
		return previous
	}
	return &plan
}

func withinGraceWindow(a, b time.Time) bool {
	drift := a.Sub(b)
	if drift < 0 {
		drift = -drift
	}
	return drift <= PLAN_GRACE_WINDOW
}

func sameEndWithinGrace(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return withinGraceWindow(*a, *b)
}

func (p *SchedulePlanner) requiredHours(soc float64, target uint, speedPctPerHour float64) float64 {
	requiredHours := (float64(target) - soc) / speedPctPerHour
	if requiredHours < 0 {
		requiredHours = 0
	}
	if requiredHours > 0 && target >= 100 {
		requiredHours += FULL_CHARGE_MARGIN.Hours()
	}
	return requiredHours
}

// targetLimit applies the raise-today rules on top of the day's own goal.
// The look-ahead raise only applies to entries without a completion time: a
// deadline entry states exactly how much charge that morning needs.
func (p *SchedulePlanner) targetLimit(entry domain.ScheduleEntry, day time.Time, schedule domain.WeeklySchedule) uint {
	target := entry.TargetLimitPct

	if entry.Completion == nil {
		if p.ReduceLimitDifference {
			// scan ahead and pull higher goals forward, damped by distance
			for i := 1; i <= PLAN_LOOK_AHEAD_DAYS; i++ {
				future := schedule.Entry(day.AddDate(0, 0, i).Weekday())
				if !future.Enabled {
					continue
				}
				candidate := int(future.TargetLimitPct) - MAX_CHARGE_LIMIT_DIFF*(i-1)
				if candidate-int(target) >= MIN_CHARGE_LIMIT_DIFF {
					target = uint(candidate)
				}
			}
		} else {
			// plain rule: never charge less today than tomorrow needs
			tomorrow := schedule.Entry(day.AddDate(0, 0, 1).Weekday())
			if tomorrow.Enabled && tomorrow.TargetLimitPct > target {
				target = tomorrow.TargetLimitPct
			}
		}
	}

	if p.rainy(day) {
		if max, ok := p.rainyWindowMaxLimit(schedule); ok && max > target {
			target = max
		}
	}
	if target > 100 {
		target = 100
	}
	return target
}

func (p *SchedulePlanner) rainy(day time.Time) bool {
	if p.RainyFrom == nil || p.RainyTo == nil {
		return false
	}
	return !day.Before(*p.RainyFrom) && !day.After(*p.RainyTo)
}

// rainyWindowMaxLimit returns the highest goal among the enabled entries
// whose day falls inside the forecast window. Weekdays repeat, so at most
// one week is scanned.
func (p *SchedulePlanner) rainyWindowMaxLimit(schedule domain.WeeklySchedule) (uint, bool) {
	var max uint
	found := false
	for i := 0; i < 7; i++ {
		day := p.RainyFrom.AddDate(0, 0, i)
		if day.After(*p.RainyTo) {
			break
		}
		entry := schedule.Entry(day.Weekday())
		if !entry.Enabled {
			continue
		}
		found = true
		if entry.TargetLimitPct > max {
			max = entry.TargetLimitPct
		}
	}
	return max, found
}

// NextStartTrigger returns the next instant a solar session may start: the
// sun rising through the elevation trigger, or the off-peak window start when
// no location is configured. ok=false means start immediately.
func (p *SchedulePlanner) NextStartTrigger(after time.Time) (time.Time, bool) {
	if p.Solar != nil {
		if at, ok := p.Solar.NextRising(after, p.ElevationTriggerDegrees); ok {
			return at, true
		}
	}
	if p.OffPeak.Defined() {
		if p.OffPeak.Contains(after) {
			return after, true
		}
		return p.OffPeak.NextStart(after), true
	}
	return time.Time{}, false
}

// NextStopTrigger returns the end of the charge window opening at the given
// instant: the sun descending through the elevation trigger, or the off-peak
// window end when no location is configured. ok=false means the window has
// no end.
func (p *SchedulePlanner) NextStopTrigger(after time.Time) (time.Time, bool) {
	if p.Solar != nil {
		if at, ok := p.Solar.NextSetting(after, p.ElevationTriggerDegrees); ok {
			return at, true
		}
	}
	if p.OffPeak.Defined() {
		return p.OffPeak.NextEnd(after), true
	}
	return time.Time{}, false
}

// NotEnoughTime reports whether the session must charge at full rate to make
// the deadline. At night solar surplus cannot appear, so a deadline session
// always runs at full rate. atMax adds one percent worth of charge time so
// the decision does not flap right at the boundary.
func (p *SchedulePlanner) NotEnoughTime(now time.Time, deadline time.Time, socPct, targetPct, speedPctPerHour float64, atMax bool) bool {
	if speedPctPerHour <= 0 {
		return false
	}
	remaining := (targetPct - socPct) / speedPctPerHour
	if remaining <= 0 {
		return false
	}
	if p.Solar != nil && !p.Solar.IsDaytime(now) {
		return true
	}
	if atMax {
		remaining += 1 / speedPctPerHour
	}
	available := deadline.Sub(now).Hours()
	return remaining >= available
}
