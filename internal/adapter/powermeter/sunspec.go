package powermeter

import (
	"context"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/config"
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"
	"github.com/berfenger/solarcharge2mqtt/pkg/sunspec"

	"go.uber.org/zap"
)

// SunSpecPowerSource reads net grid power from a SunSpec smart meter over
// Modbus TCP.
type SunSpecPowerSource struct {
	reader sunspec.ACMeterReader
}

func NewSunSpecPowerSource(reader sunspec.ACMeterReader) *SunSpecPowerSource {
	return &SunSpecPowerSource{reader: reader}
}

func CreateSunSpecPowerSource(cfg config.PowerMeterConfig, logger *zap.Logger) (*SunSpecPowerSource, error) {
	reader, err := sunspec.CreateACMeterIntSFModbusReader(cfg.Host, cfg.Port, uint8(cfg.MeterId),
		1*time.Second, logger, nil)
	if err != nil {
		return nil, err
	}
	return NewSunSpecPowerSource(reader), nil
}

func (s *SunSpecPowerSource) Open(ctx context.Context) error {
	return s.reader.Open()
}

func (s *SunSpecPowerSource) Close(ctx context.Context) error {
	return s.reader.Close()
}

func (s *SunSpecPowerSource) NetPower(ctx context.Context) (domain.PowerSample, error) {
	watt, err := s.reader.GetCurrentPowerFlowWatt()
	if err != nil {
		return domain.PowerSample{}, err
	}
	return domain.PowerSample{
		NetPowerWatt: watt,
		At:           time.Now(),
	}, nil
}

// ensure interface compliance
var _ port.PowerSource = (*SunSpecPowerSource)(nil)
