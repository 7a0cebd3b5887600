package util

import (
	"github.com/berfenger/solarcharge2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "solarcharge",
		},
		PowerMeter: config.PowerMeterConfig{
			Source:             config.POWER_SOURCE_SUNSPEC_MODBUS,
			Host:               "-.-.-.-",
			Port:               502,
			MeterId:            200,
			PollIntervalMillis: 2000,
		},
		Location: config.LocationConfig{
			Latitude:  40.4168,
			Longitude: -3.7038,
		},
		Control: config.ControlConfig{
			SettleDelaySeconds: 60,
			InitialCurrent:     6,
			DeadbandBias:       0.3,
		},
		Schedule: config.ScheduleConfig{
			ElevationTriggerDegrees: 10,
			OffPeakFrom:             "23:00",
			OffPeakTo:               "07:00",
		},
		Chargers: []config.ChargerConfig{
			{
				Id:                    "car",
				Name:                  "Test car",
				Backend:               config.CHARGER_BACKEND_MQTT,
				EffectiveVoltage:      230,
				MinCurrent:            6,
				MaxCurrent:            16,
				Weight:                1,
				ChargeSpeedPctPerHour: 7.5,
				PollIntervalMillis:    1000,
				BridgeTopic:           "testcar/bridge",
			},
		},
		Port: 8080,
	}
}
