package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChargeLimitBounds(t *testing.T) {

	require := require.New(t)

	var c ChargerConfig
	// unset bounds accept the full range
	require.EqualValues(100, c.ChargeLimitCeiling())
	require.True(c.ValidChargeLimit(0))
	require.True(c.ValidChargeLimit(100))
	require.False(c.ValidChargeLimit(101))

	c.MinChargeLimitPct = 50
	c.MaxChargeLimitPct = 90
	require.EqualValues(90, c.ChargeLimitCeiling())
	require.False(c.ValidChargeLimit(49))
	require.True(c.ValidChargeLimit(50))
	require.True(c.ValidChargeLimit(90))
	require.False(c.ValidChargeLimit(91))
}
