package port

import (
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
)

type ChargeControlLogic interface {
	Tick(state domain.ChargeControlState, input domain.ChargeControlInput) domain.ChargeControlTickResult
	InitialCurrent() uint
	EffectiveVoltage() float64
}
