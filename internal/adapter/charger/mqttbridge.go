package charger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/config"
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	bridgeStateStaleAfter = 120 * time.Second
	bridgeOpTimeout       = 10 * time.Second
)

// bridgeState is the JSON document the charger bridge publishes on
// {bridge_topic}/state. SoC and charge limit are omitted when the vehicle
// does not report them.
type bridgeState struct {
	Connected       bool     `json:"connected"`
	Charging        bool     `json:"charging"`
	SoC             *float64 `json:"soc,omitempty"`
	ChargeLimitPct  *uint    `json:"charge_limit_pct,omitempty"`
	CurrentAmps     uint     `json:"current_amps"`
	ChargePowerWatt float64  `json:"charge_power_watt"`
}

// MQTTBridgeCharger drives a charger through an MQTT bridge: state arrives
// as retained JSON on {topic}/state, commands go out on {topic}/set/*.
type MQTTBridgeCharger struct {
	client pahomqtt.Client
	topic  string

	mu       sync.RWMutex
	state    domain.ChargerState
	stateAt  time.Time
	hasState bool
}

func NewMQTTBridgeCharger(cfg config.MQTTConfig, chargerCfg config.ChargerConfig) *MQTTBridgeCharger {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("solarcharge_%s_%d", chargerCfg.Id, rand.Intn(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)

	return &MQTTBridgeCharger{
		client: pahomqtt.NewClient(opts),
		topic:  chargerCfg.BridgeTopic,
	}
}

func (c *MQTTBridgeCharger) Open(ctx context.Context) error {
	token := c.client.Connect()
	if !token.WaitTimeout(bridgeOpTimeout) {
		return errors.New("MQTT connect timed out")
	}
	if token.Error() != nil {
		return token.Error()
	}
	sub := c.client.Subscribe(c.topic+"/state", 0, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		var st bridgeState
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			return
		}
		c.mu.Lock()
		c.state = domain.ChargerState{
			Connected:       st.Connected,
			Charging:        st.Charging,
			SoC:             st.SoC,
			ChargeLimitPct:  st.ChargeLimitPct,
			CurrentAmps:     st.CurrentAmps,
			ChargePowerWatt: st.ChargePowerWatt,
		}
		c.stateAt = time.Now()
		c.hasState = true
		c.mu.Unlock()
	})
	if !sub.WaitTimeout(bridgeOpTimeout) {
		return errors.New("MQTT subscribe timed out")
	}
	return sub.Error()
}

func (c *MQTTBridgeCharger) Close(ctx context.Context) error {
	c.client.Disconnect(500)
	return nil
}

// State returns the latest bridge report. A missing or stale report is an
// error so callers back off instead of acting on old data.
func (c *MQTTBridgeCharger) State(ctx context.Context) (*domain.ChargerState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasState {
		return nil, errors.New("no charger state received yet")
	}
	if time.Since(c.stateAt) > bridgeStateStaleAfter {
		return nil, errors.New("charger state is stale")
	}
	state := c.state
	return &state, nil
}

func (c *MQTTBridgeCharger) SetCurrent(ctx context.Context, amps uint) error {
	return c.publish("set/current", strconv.FormatUint(uint64(amps), 10))
}

func (c *MQTTBridgeCharger) StartCharge(ctx context.Context) error {
	return c.publish("set/charge", "on")
}

func (c *MQTTBridgeCharger) StopCharge(ctx context.Context) error {
	return c.publish("set/charge", "off")
}

func (c *MQTTBridgeCharger) SetChargeLimit(ctx context.Context, limitPct uint) error {
	return c.publish("set/limit", strconv.FormatUint(uint64(limitPct), 10))
}

func (c *MQTTBridgeCharger) WakeUp(ctx context.Context) error {
	return c.publish("set/wakeup", "1")
}

func (c *MQTTBridgeCharger) publish(suffix, payload string) error {
	token := c.client.Publish(fmt.Sprintf("%s/%s", c.topic, suffix), 0, false, payload)
	if !token.WaitTimeout(bridgeOpTimeout) {
		return errors.New("MQTT publish timed out")
	}
	return token.Error()
}

// ensure interface compliance
var _ port.ChargerAdapter = (*MQTTBridgeCharger)(nil)
