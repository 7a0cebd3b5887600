package service

import (
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"
)

// WeightedPowerAllocator splits exported surplus proportionally to session
// weights. Fast-charge sessions are pinned at their maximum and do not take
// part in the proportional split.
type WeightedPowerAllocator struct {
	// FastChargeOffsetWatt caps a fast-charge grant at the measured surplus
	// plus this allowance, bounding how much grid power a fast charge may
	// draw. Zero or negative means uncapped.
	FastChargeOffsetWatt float64
}

// Allocate returns the granted watts per charger id. Net power follows the
// grid sign convention: negative = export. The sum of non-fast grants never
// exceeds the measured surplus.
func (a WeightedPowerAllocator) Allocate(netPowerWatt float64, requests []domain.PowerRequest) map[string]float64 {
	alloc := make(map[string]float64, len(requests))

	surplus := -netPowerWatt
	if surplus < 0 {
		surplus = 0
	}

	var pending []domain.PowerRequest
	for _, req := range requests {
		if req.FastCharge {
			// pinned at max, not part of the split
			grant := req.MaxPowerWatt
			if a.FastChargeOffsetWatt > 0 && grant > surplus+a.FastChargeOffsetWatt {
				grant = surplus + a.FastChargeOffsetWatt
			}
			alloc[req.ChargerId] = grant
			continue
		}
		if req.Weight <= 0 || req.MaxPowerWatt <= 0 {
			alloc[req.ChargerId] = 0
			continue
		}
		alloc[req.ChargerId] = 0
		pending = append(pending, req)
	}

	// iterative cap-and-redistribute: whenever a proportional share exceeds
	// a session's max, grant the max and re-split the remainder among the rest
	for surplus > 0 && len(pending) > 0 {
		var totalWeight float64
		for _, req := range pending {
			totalWeight += req.Weight
		}

		capped := false
		var next []domain.PowerRequest
		for _, req := range pending {
			share := surplus * req.Weight / totalWeight
			if share >= req.MaxPowerWatt {
				alloc[req.ChargerId] = req.MaxPowerWatt
				surplus -= req.MaxPowerWatt
				capped = true
			} else {
				next = append(next, req)
			}
		}
		if !capped {
			for _, req := range next {
				alloc[req.ChargerId] = surplus * req.Weight / totalWeight
			}
			break
		}
		pending = next
	}

	return alloc
}

// ensure interface compliance
var _ port.PowerAllocator = (*WeightedPowerAllocator)(nil)
