package service

import (
	"math"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"

	"go.uber.org/zap"
)

const DEFAULT_DEADBAND_BIAS = 0.3

// SolarChargeControlLogic converts an allocated power budget into charger
// current commands. Increases move one amp per settle period so the meter
// reading stabilizes between steps. Decreases apply at once.
type SolarChargeControlLogic struct {
	MinCurrent   uint
	MaxCurrent   uint
	Voltage      float64
	StartCurrent uint
	SettleDelay  time.Duration
	DeadbandBias float64
	Logger       *zap.Logger
}

func (cfg *SolarChargeControlLogic) InitialCurrent() uint {
	return cfg.StartCurrent
}

func (cfg *SolarChargeControlLogic) EffectiveVoltage() float64 {
	return cfg.Voltage
}

func (cfg *SolarChargeControlLogic) Tick(state domain.ChargeControlState, in domain.ChargeControlInput) domain.ChargeControlTickResult {

	// fast charge pins the charger at max current
	if in.FastCharge {
		return domain.ChargeControlTickResult{
			TargetCurrentAmps: cfg.MaxCurrent,
			Changed:           state.CurrentAmps != cfg.MaxCurrent || in.Paused,
		}
	}

	minCurrent := cfg.MinCurrent
	if in.MinCurrentFloor > minCurrent {
		minCurrent = in.MinCurrentFloor
	}
	if minCurrent > cfg.MaxCurrent {
		minCurrent = cfg.MaxCurrent
	}

	// cold start: command a fixed low current and let the next meter
	// reading drive the loop
	if !state.Started {
		start := cfg.StartCurrent
		if start < minCurrent {
			start = minCurrent
		}
		if start > cfg.MaxCurrent {
			start = cfg.MaxCurrent
		}
		return domain.ChargeControlTickResult{
			TargetCurrentAmps: start,
			Changed:           true,
		}
	}

	// target current from the granted budget. The bias keeps the loop from
	// hunting when the allocation sits right at an amp boundary.
	oneAmpWatt := cfg.Voltage
	bias := cfg.DeadbandBias
	if bias <= 0 {
		bias = DEFAULT_DEADBAND_BIAS
	}
	target := uint(math.Max(0, math.Floor((in.AllocatedPowerWatt+bias*oneAmpWatt)/oneAmpWatt)))
	if target > cfg.MaxCurrent {
		target = cfg.MaxCurrent
	}

	if in.MinCurrentFloor == 0 && target < minCurrent {
		// the surplus cannot sustain the minimum workable current
		return domain.ChargeControlTickResult{
			TargetCurrentAmps: 0,
			Changed:           !in.Paused,
			Pause:             true,
		}
	}
	if target < minCurrent {
		target = minCurrent
	}

	if in.Paused {
		// resume at the last commanded current, clamped to the new budget
		resume := state.CurrentAmps
		if resume > target {
			resume = target
		}
		if resume < minCurrent {
			resume = minCurrent
		}
		return domain.ChargeControlTickResult{
			TargetCurrentAmps: resume,
			Changed:           true,
		}
	}

	if target < state.CurrentAmps {
		// decreases apply immediately and in full
		return domain.ChargeControlTickResult{
			TargetCurrentAmps: target,
			Changed:           true,
		}
	}
	if state.CurrentAmps < minCurrent {
		// below the effective minimum, correct in one jump
		return domain.ChargeControlTickResult{
			TargetCurrentAmps: minCurrent,
			Changed:           true,
		}
	}
	if target > state.CurrentAmps {
		if in.Now.Sub(state.LastChange) < cfg.SettleDelay {
			return domain.ChargeControlTickResult{
				TargetCurrentAmps: state.CurrentAmps,
			}
		}
		return domain.ChargeControlTickResult{
			TargetCurrentAmps: state.CurrentAmps + 1,
			Changed:           true,
		}
	}

	return domain.ChargeControlTickResult{
		TargetCurrentAmps: state.CurrentAmps,
	}
}

// ensure interface compliance
var _ port.ChargeControlLogic = (*SolarChargeControlLogic)(nil)
