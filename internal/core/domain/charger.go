package domain

import (
	"time"
)

// SessionState is the lifecycle state of a charge session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConnected
	SessionScheduled
	SessionCharging
	SessionPaused
	SessionCompleted
	SessionAborted
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnected:
		return "connected"
	case SessionScheduled:
		return "scheduled"
	case SessionCharging:
		return "charging"
	case SessionPaused:
		return "paused"
	case SessionCompleted:
		return "completed"
	case SessionAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ChargeMode selects the current source strategy while charging.
type ChargeMode int

const (
	ChargeModeSolar ChargeMode = iota
	ChargeModeFast
)

func (m ChargeMode) String() string {
	if m == ChargeModeFast {
		return "fast"
	}
	return "solar"
}

// StartedBy records what initiated the running session.
type StartedBy int

const (
	StartedByNone StartedBy = iota
	StartedByUser
	StartedBySchedule
	StartedBySunTrigger
	StartedByPlugIn
)

func (s StartedBy) String() string {
	switch s {
	case StartedByUser:
		return "user"
	case StartedBySchedule:
		return "schedule"
	case StartedBySunTrigger:
		return "sun_trigger"
	case StartedByPlugIn:
		return "plug_in"
	default:
		return "none"
	}
}

// ChargerState is a point-in-time snapshot read from a charger backend.
// SoC and ChargeLimit are nil when the vehicle does not report them.
type ChargerState struct {
	Connected       bool
	Charging        bool
	SoC             *float64
	ChargeLimitPct  *uint
	CurrentAmps     uint
	ChargePowerWatt float64
}

func (s ChargerState) KnownSoC() bool {
	return s.SoC != nil
}

// ChargeSession is the persisted view of a session. It survives restarts
// through snapshots so a mid-charge process restart resumes where it left off.
type ChargeSession struct {
	ChargerId          string       `json:"charger_id"`
	State              SessionState `json:"state"`
	Mode               ChargeMode   `json:"mode"`
	StartedBy          StartedBy    `json:"started_by"`
	TargetLimitPct     uint         `json:"target_limit_pct"`
	Deadline           *time.Time   `json:"deadline,omitempty"`
	PlannedStart       *time.Time   `json:"planned_start,omitempty"`
	PlannedEnd         *time.Time   `json:"planned_end,omitempty"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	EndedAt            *time.Time   `json:"ended_at,omitempty"`
	CurrentAmps        uint         `json:"current_amps"`
	AllocatedPowerWatt float64      `json:"allocated_power_watt"`
}

func (s ChargeSession) Active() bool {
	return s.State == SessionCharging || s.State == SessionPaused
}

func (s ChargeSession) Terminal() bool {
	return s.State == SessionCompleted || s.State == SessionAborted
}
