package service

import (
	"testing"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateProportionalToWeights(t *testing.T) {

	require := require.New(t)

	alloc := allocator.Allocate(-4000, []domain.PowerRequest{
		req("a", 1, 10000),
		req("b", 3, 10000),
	})

	require.Len(alloc, 2)
	assert.InDelta(t, 1000, alloc["a"], 0.001)
	assert.InDelta(t, 3000, alloc["b"], 0.001)
}

func TestAllocateNeverExceedsSurplus(t *testing.T) {

	require := require.New(t)

	cases := []float64{-100, -2500, -4000, -10000, -50000}
	for _, net := range cases {
		alloc := allocator.Allocate(net, []domain.PowerRequest{
			req("a", 1, 3000),
			req("b", 2, 7000),
			req("c", 5, 2000),
		})
		var total float64
		for _, w := range alloc {
			require.GreaterOrEqual(w, 0.0)
			total += w
		}
		require.LessOrEqual(total, -net+0.001, "total allocation must not exceed surplus")
	}
}

func TestAllocateCapAndRedistribute(t *testing.T) {

	require := require.New(t)

	// b saturates at 2000, the remainder re-splits onto a
	alloc := allocator.Allocate(-6000, []domain.PowerRequest{
		req("a", 1, 10000),
		req("b", 1, 2000),
	})

	require.InDelta(2000, alloc["b"], 0.001)
	require.InDelta(4000, alloc["a"], 0.001)
}

func TestAllocateNoSurplus(t *testing.T) {

	require := require.New(t)

	alloc := allocator.Allocate(1200, []domain.PowerRequest{
		req("a", 1, 3000),
		req("b", 2, 3000),
	})

	require.EqualValues(0, alloc["a"])
	require.EqualValues(0, alloc["b"])
}

func TestAllocateFastChargePinnedAtMax(t *testing.T) {

	require := require.New(t)

	requests := []domain.PowerRequest{
		req("a", 1, 3000),
		{ChargerId: "fast", Weight: 1, MaxPowerWatt: 7000, FastCharge: true},
	}

	// fast charger gets max even while importing
	alloc := allocator.Allocate(500, requests)
	require.EqualValues(7000, alloc["fast"])
	require.EqualValues(0, alloc["a"])

	// fast charger does not eat into the proportional split
	alloc = allocator.Allocate(-2000, requests)
	require.EqualValues(7000, alloc["fast"])
	require.InDelta(2000, alloc["a"], 0.001)
}

func TestAllocateFastChargeOffsetCapsGridDraw(t *testing.T) {

	require := require.New(t)

	capped := WeightedPowerAllocator{FastChargeOffsetWatt: 3000}
	requests := []domain.PowerRequest{
		{ChargerId: "fast", Weight: 1, MaxPowerWatt: 7000, FastCharge: true},
	}

	// no surplus: the grant is bounded by the grid allowance alone
	alloc := capped.Allocate(500, requests)
	require.InDelta(3000, alloc["fast"], 0.001)

	// 2 kW export: surplus plus allowance still sits below max
	alloc = capped.Allocate(-2000, requests)
	require.InDelta(5000, alloc["fast"], 0.001)

	// enough export: the charger max wins
	alloc = capped.Allocate(-10000, requests)
	require.InDelta(7000, alloc["fast"], 0.001)
}

func TestAllocateZeroWeightGetsNothing(t *testing.T) {

	require := require.New(t)

	alloc := allocator.Allocate(-3000, []domain.PowerRequest{
		req("a", 0, 3000),
		req("b", 2, 10000),
	})

	require.EqualValues(0, alloc["a"])
	require.InDelta(3000, alloc["b"], 0.001)
}

func req(id string, weight, maxWatt float64) domain.PowerRequest {
	return domain.PowerRequest{
		ChargerId:    id,
		Weight:       weight,
		MaxPowerWatt: maxWatt,
	}
}

var allocator = WeightedPowerAllocator{}
