package port

import (
	"context"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
)

// ChargerAdapter abstracts one physical charger / vehicle pair.
// All calls may block on network IO and honor the context deadline.
type ChargerAdapter interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	State(ctx context.Context) (*domain.ChargerState, error)
	SetCurrent(ctx context.Context, amps uint) error
	StartCharge(ctx context.Context) error
	StopCharge(ctx context.Context) error
	SetChargeLimit(ctx context.Context, limitPct uint) error
	WakeUp(ctx context.Context) error
}
