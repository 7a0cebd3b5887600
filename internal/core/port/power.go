package port

import (
	"context"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
)

// PowerSource reads the net grid power flow. Negative values mean export.
type PowerSource interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	NetPower(ctx context.Context) (domain.PowerSample, error)
}
