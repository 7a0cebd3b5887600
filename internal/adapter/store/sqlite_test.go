package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestScheduleRoundTrip(t *testing.T) {

	require := require.New(t)

	s := openTestStore(t)

	// missing charger has no schedule
	sc, err := s.WeeklySchedule("car")
	require.NoError(err)
	require.Nil(sc)

	var schedule domain.WeeklySchedule
	schedule.SetEntry(time.Monday, domain.ScheduleEntry{
		Enabled:        true,
		TargetLimitPct: 80,
		Completion:     &domain.ClockTime{Hour: 7},
	})
	schedule.SetEntry(time.Saturday, domain.ScheduleEntry{
		Enabled:        true,
		TargetLimitPct: 60,
	})
	require.NoError(s.SaveWeeklySchedule("car", schedule))

	sc, err = s.WeeklySchedule("car")
	require.NoError(err)
	require.NotNil(sc)
	entry := sc.Entry(time.Monday)
	require.True(entry.Enabled)
	require.Equal(uint(80), entry.TargetLimitPct)
	require.NotNil(entry.Completion)
	require.Equal(7, entry.Completion.Hour)
	// an open-window entry keeps its missing completion time
	require.Nil(sc.Entry(time.Saturday).Completion)
}

func TestPlanOverwrite(t *testing.T) {

	require := require.New(t)

	s := openTestStore(t)

	start := time.Date(2026, 6, 15, 3, 0, 0, 0, time.UTC)
	plan := domain.DailyPlan{
		ChargerId:      "car",
		Day:            "2026-06-15",
		TargetLimitPct: 80,
		PlannedStart:   start,
		Deadline:       start.Add(4 * time.Hour),
	}
	require.NoError(s.SaveDailyPlan(plan))

	// same key, updated goal
	plan.TargetLimitPct = 100
	require.NoError(s.SaveDailyPlan(plan))

	got, err := s.DailyPlan("car", "2026-06-15")
	require.NoError(err)
	require.NotNil(got)
	require.Equal(uint(100), got.TargetLimitPct)
	require.True(got.PlannedStart.Equal(start))

	// other day is still empty
	got, err = s.DailyPlan("car", "2026-06-16")
	require.NoError(err)
	require.Nil(got)
}

func TestSessionSnapshotRoundTrip(t *testing.T) {

	require := require.New(t)

	s := openTestStore(t)

	startedAt := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	session := domain.ChargeSession{
		ChargerId: "car",
		State:     domain.SessionCharging,
		StartedBy: domain.StartedByUser,
		StartedAt: &startedAt,
	}
	require.NoError(s.SaveSessionSnapshot(session))

	got, err := s.SessionSnapshot("car")
	require.NoError(err)
	require.NotNil(got)
	require.Equal(domain.SessionCharging, got.State)
	require.Equal(domain.StartedByUser, got.StartedBy)
}

func TestChargeSpeedRoundTrip(t *testing.T) {

	require := require.New(t)

	s := openTestStore(t)

	speed, err := s.ChargeSpeed("car")
	require.NoError(err)
	require.Nil(speed)

	require.NoError(s.SaveChargeSpeed("car", 7.5))

	speed, err = s.ChargeSpeed("car")
	require.NoError(err)
	require.NotNil(speed)
	require.InDelta(7.5, *speed, 0.001)
}
