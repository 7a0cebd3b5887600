package port

import (
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
)

// Store persists schedules, plans and session snapshots across restarts.
// Lookups return (nil, nil) when no record exists.
type Store interface {
	WeeklySchedule(chargerId string) (*domain.WeeklySchedule, error)
	SaveWeeklySchedule(chargerId string, schedule domain.WeeklySchedule) error

	DailyPlan(chargerId string, day string) (*domain.DailyPlan, error)
	SaveDailyPlan(plan domain.DailyPlan) error

	SessionSnapshot(chargerId string) (*domain.ChargeSession, error)
	SaveSessionSnapshot(session domain.ChargeSession) error

	ChargeSpeed(chargerId string) (*float64, error)
	SaveChargeSpeed(chargerId string, pctPerHour float64) error

	Close() error
}
