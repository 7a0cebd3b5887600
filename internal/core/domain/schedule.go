package domain

import (
	"fmt"
	"time"
)

const PlanDayFormat = "2006-01-02"

// ClockTime is a wall-clock time of day without a date.
type ClockTime struct {
	Hour   int `json:"hour" mapstructure:"hour"`
	Minute int `json:"minute" mapstructure:"minute"`
}

func (t ClockTime) OnDate(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

func (t ClockTime) Before(other ClockTime) bool {
	return t.Hour < other.Hour || (t.Hour == other.Hour && t.Minute < other.Minute)
}

func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ClockTimePeriod is a daily wall-clock window. From == To means disabled.
// A window with To before From spans midnight.
type ClockTimePeriod struct {
	From ClockTime `json:"from" mapstructure:"from"`
	To   ClockTime `json:"to" mapstructure:"to"`
}

func (p ClockTimePeriod) Defined() bool {
	return p.From != p.To
}

func (p ClockTimePeriod) SpansMidnight() bool {
	return p.To.Before(p.From)
}

func (p ClockTimePeriod) Contains(at time.Time) bool {
	if !p.Defined() {
		return false
	}
	from := p.From.OnDate(at)
	to := p.To.OnDate(at)
	if p.SpansMidnight() {
		return !at.Before(from) || at.Before(to)
	}
	return !at.Before(from) && at.Before(to)
}

// NextStart returns the first window start at or after the given instant.
func (p ClockTimePeriod) NextStart(after time.Time) time.Time {
	start := p.From.OnDate(after)
	if start.Before(after) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}

// NextEnd returns the first window end at or after the given instant.
func (p ClockTimePeriod) NextEnd(after time.Time) time.Time {
	end := p.To.OnDate(after)
	if end.Before(after) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

// ScheduleEntry is the charge goal for one weekday. Completion is the time
// of day by which the vehicle should be at TargetLimitPct; nil means the
// entry has no deadline and the charge runs over the day's solar or
// off-peak window instead.
type ScheduleEntry struct {
	Enabled        bool       `json:"enabled"`
	TargetLimitPct uint       `json:"target_limit_pct"`
	Completion     *ClockTime `json:"completion,omitempty"`
}

// WeeklySchedule holds one entry per weekday, indexed by time.Weekday.
type WeeklySchedule struct {
	Days [7]ScheduleEntry `json:"days"`
}

func (s WeeklySchedule) Entry(day time.Weekday) ScheduleEntry {
	return s.Days[int(day)]
}

func (s *WeeklySchedule) SetEntry(day time.Weekday, entry ScheduleEntry) {
	s.Days[int(day)] = entry
}

// NextDeadline returns the next enabled completion instant at or after now,
// scanning up to lookAheadDays days. Entries without a completion time have
// no deadline and are skipped. Returns false when no deadline is found.
func (s WeeklySchedule) NextDeadline(now time.Time, lookAheadDays int) (ScheduleEntry, time.Time, bool) {
	for i := 0; i <= lookAheadDays; i++ {
		day := now.AddDate(0, 0, i)
		entry := s.Entry(day.Weekday())
		if !entry.Enabled || entry.Completion == nil {
			continue
		}
		deadline := entry.Completion.OnDate(day)
		if deadline.After(now) {
			return entry, deadline, true
		}
	}
	return ScheduleEntry{}, time.Time{}, false
}

// DailyPlan is the computed charge plan for one charger and one local day.
// Recomputing with unchanged inputs yields the same plan. A plan is either
// deadline-driven (Deadline set, start computed just in time) or
// window-driven (zero Deadline, start and end follow the solar or off-peak
// window; PlannedEnd nil means the window has no end trigger).
type DailyPlan struct {
	ChargerId      string     `json:"charger_id"`
	Day            string     `json:"day"`
	TargetLimitPct uint       `json:"target_limit_pct"`
	Deadline       time.Time  `json:"deadline"`
	PlannedStart   time.Time  `json:"planned_start"`
	PlannedEnd     *time.Time `json:"planned_end,omitempty"`
	RequiredHours  float64    `json:"required_hours"`
	ComputedAt     time.Time  `json:"computed_at"`
}

func (p DailyPlan) HasDeadline() bool {
	return !p.Deadline.IsZero()
}

func (p DailyPlan) SameGoal(other DailyPlan) bool {
	return p.ChargerId == other.ChargerId &&
		p.Day == other.Day &&
		p.TargetLimitPct == other.TargetLimitPct &&
		p.Deadline.Equal(other.Deadline)
}
