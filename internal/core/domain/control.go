package domain

import "time"

// ChargeControlState is the feedback-loop state carried between ticks.
type ChargeControlState struct {
	CurrentAmps uint
	LastChange  time.Time
	Started     bool
}

// ChargeControlInput is the measurement set for one control tick.
// MinCurrentFloor raises the effective minimum current (0 = no override);
// it is how deadline pressure forces grid charging at full rate. Paused
// tells the logic the charger is stopped, so a workable budget resumes at
// the last commanded current instead of stepping up from it.
type ChargeControlInput struct {
	Now                time.Time
	AllocatedPowerWatt float64
	MinCurrentFloor    uint
	FastCharge         bool
	Paused             bool
}

// ChargeControlTickResult is the decision for one control tick.
// Pause means the allocation cannot sustain the minimum workable current.
type ChargeControlTickResult struct {
	TargetCurrentAmps uint
	Changed           bool
	Pause             bool
}

// PowerRequest is one session's bid for surplus power.
type PowerRequest struct {
	ChargerId    string
	Weight       float64
	MaxPowerWatt float64
	FastCharge   bool
}
