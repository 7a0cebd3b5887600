package port

import (
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
)

// PowerAllocator splits the available grid surplus among charging sessions.
type PowerAllocator interface {
	Allocate(netPowerWatt float64, requests []domain.PowerRequest) map[string]float64
}
