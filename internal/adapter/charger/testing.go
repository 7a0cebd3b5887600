package charger

import (
	"context"
	"sync"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"
)

// ScriptedCharger is an in-memory charger for tests. State is mutable from
// the test goroutine and commands are applied to it immediately.
type ScriptedCharger struct {
	mu    sync.Mutex
	state domain.ChargerState

	// forced errors, nil means success
	stateErr   error
	commandErr error

	startCalls  int
	stopCalls   int
	wakeUpCalls int
	limitCalls  []uint
	ampsCalls   []uint
}

func NewScriptedCharger() *ScriptedCharger {
	return &ScriptedCharger{}
}

func (c *ScriptedCharger) Open(ctx context.Context) error  { return nil }
func (c *ScriptedCharger) Close(ctx context.Context) error { return nil }

func (c *ScriptedCharger) State(ctx context.Context) (*domain.ChargerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stateErr != nil {
		return nil, c.stateErr
	}
	state := c.state
	return &state, nil
}

func (c *ScriptedCharger) SetCurrent(ctx context.Context, amps uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commandErr != nil {
		return c.commandErr
	}
	c.ampsCalls = append(c.ampsCalls, amps)
	c.state.CurrentAmps = amps
	return nil
}

func (c *ScriptedCharger) StartCharge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commandErr != nil {
		return c.commandErr
	}
	c.startCalls++
	c.state.Charging = true
	return nil
}

func (c *ScriptedCharger) StopCharge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commandErr != nil {
		return c.commandErr
	}
	c.stopCalls++
	c.state.Charging = false
	return nil
}

func (c *ScriptedCharger) SetChargeLimit(ctx context.Context, limitPct uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commandErr != nil {
		return c.commandErr
	}
	c.limitCalls = append(c.limitCalls, limitPct)
	limit := limitPct
	c.state.ChargeLimitPct = &limit
	return nil
}

func (c *ScriptedCharger) WakeUp(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commandErr != nil {
		return c.commandErr
	}
	c.wakeUpCalls++
	return nil
}

// test helpers

func (c *ScriptedCharger) SetState(state domain.ChargerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *ScriptedCharger) SetSoC(soc float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.SoC = &soc
}

func (c *ScriptedCharger) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Connected = connected
}

func (c *ScriptedCharger) SetStateError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateErr = err
}

func (c *ScriptedCharger) SetCommandError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commandErr = err
}

func (c *ScriptedCharger) CurrentState() domain.ChargerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ScriptedCharger) StartCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startCalls
}

func (c *ScriptedCharger) StopCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCalls
}

func (c *ScriptedCharger) WakeUpCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeUpCalls
}

func (c *ScriptedCharger) LimitCalls() []uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint(nil), c.limitCalls...)
}

func (c *ScriptedCharger) AmpsCalls() []uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint(nil), c.ampsCalls...)
}

// ensure interface compliance
var _ port.ChargerAdapter = (*ScriptedCharger)(nil)
