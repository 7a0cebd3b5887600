package powermeter

import (
	"context"
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

const mqttMeterStaleAfter = 60 * time.Second

// MQTTPowerSource reads net grid power from an MQTT topic publishing watts
// as a plain number. Positive = import, negative = export.
type MQTTPowerSource struct {
	client pahomqtt.Client
	topic  string

	mu     sync.RWMutex
	sample domain.PowerSample
	seen   bool
}

func NewMQTTPowerSource(cfg config.MQTTConfig, topic string) *MQTTPowerSource {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("solarcharge_meter_%d", rand.Intn(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)

	return &MQTTPowerSource{
		client: pahomqtt.NewClient(opts),
		topic:  topic,
	}
}

func (s *MQTTPowerSource) Open(ctx context.Context) error {
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("MQTT connect timed out")
	}
	if token.Error() != nil {
		return token.Error()
	}
	sub := s.client.Subscribe(s.topic, 0, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		watt, err := strconv.ParseFloat(string(msg.Payload()), 64)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.sample = domain.PowerSample{NetPowerWatt: watt, At: time.Now()}
		s.seen = true
		s.mu.Unlock()
	})
	if !sub.WaitTimeout(5 * time.Second) {
		return errors.New("MQTT subscribe timed out")
	}
	return sub.Error()
}

func (s *MQTTPowerSource) Close(ctx context.Context) error {
	s.client.Disconnect(500)
	return nil
}

// NetPower returns the latest retained sample. A missing or stale reading
// is an error so control ticks skip instead of acting on old data.
func (s *MQTTPowerSource) NetPower(ctx context.Context) (domain.PowerSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.seen {
		return domain.PowerSample{}, errors.New("no power reading received yet")
	}
	if time.Since(s.sample.At) > mqttMeterStaleAfter {
		return domain.PowerSample{}, errors.New("power reading is stale")
	}
	return s.sample, nil
}

// ensure interface compliance
var _ port.PowerSource = (*MQTTPowerSource)(nil)
