package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	POWER_SOURCE_SUNSPEC_MODBUS = "sunspec_modbus"
	POWER_SOURCE_MQTT           = "mqtt"

	CHARGER_BACKEND_MQTT = "mqtt"
)

type Config struct {
	LogLevel   zapcore.Level
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	PowerMeter PowerMeterConfig `mapstructure:"power_meter"`
	Location   LocationConfig   `mapstructure:"location"`
	Control    ControlConfig    `mapstructure:"control"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Store      StoreConfig      `mapstructure:"store"`
	Chargers   []ChargerConfig  `mapstructure:"chargers"`
	Port       uint             `mapstructure:"port"`
	HttpLog    bool             `mapstructure:"http_log"`
}

type PowerMeterConfig struct {
	Source             string `mapstructure:"source"`
	Host               string `mapstructure:"host"`
	Port               uint   `mapstructure:"port"`
	MeterId            uint   `mapstructure:"meter_id"`
	Topic              string `mapstructure:"topic"`
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type LocationConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

func (c LocationConfig) Defined() bool {
	return c.Latitude != 0 || c.Longitude != 0
}

type ControlConfig struct {
	SettleDelaySeconds uint32  `mapstructure:"settle_delay_seconds"`
	InitialCurrent     uint    `mapstructure:"initial_current"`
	DeadbandBias       float64 `mapstructure:"deadband_bias"`
	// cap on grid power a fast charge may draw beyond the surplus,
	// 0 = uncapped
	FastChargePowerOffsetWatt float64 `mapstructure:"fast_charge_power_offset_watt"`
}

type ScheduleConfig struct {
	ElevationTriggerDegrees float64 `mapstructure:"elevation_trigger_degrees"`
	OffPeakFrom             string  `mapstructure:"off_peak_from"`
	OffPeakTo               string  `mapstructure:"off_peak_to"`
	ReduceLimitDifference   bool    `mapstructure:"reduce_limit_difference"`
	RainyFrom               string  `mapstructure:"rainy_from"`
	RainyTo                 string  `mapstructure:"rainy_to"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type ChargerConfig struct {
	Id                    string  `mapstructure:"id"`
	Name                  string  `mapstructure:"name"`
	Backend               string  `mapstructure:"backend"`
	EffectiveVoltage      float64 `mapstructure:"effective_voltage"`
	MinCurrent            uint    `mapstructure:"min_current"`
	MaxCurrent            uint    `mapstructure:"max_current"`
	Weight                float64 `mapstructure:"weight"`
	ChargeSpeedPctPerHour float64 `mapstructure:"charge_speed_pct_per_hour"`
	PollIntervalMillis    uint32  `mapstructure:"poll_interval_millis"`
	// accepted charge limit range; MaxChargeLimitPct 0 means 100
	MinChargeLimitPct uint `mapstructure:"min_charge_limit_pct"`
	MaxChargeLimitPct uint `mapstructure:"max_charge_limit_pct"`
	// MQTT bridge backend: topic prefix where the charger publishes its
	// state and listens for commands.
	BridgeTopic string `mapstructure:"bridge_topic"`
}

func (c ChargerConfig) MaxPowerWatt() float64 {
	return float64(c.MaxCurrent) * c.EffectiveVoltage
}

func (c ChargerConfig) MinPowerWatt() float64 {
	return float64(c.MinCurrent) * c.EffectiveVoltage
}

func (c ChargerConfig) ChargeLimitCeiling() uint {
	if c.MaxChargeLimitPct == 0 {
		return 100
	}
	return c.MaxChargeLimitPct
}

func (c ChargerConfig) ValidChargeLimit(pct uint) bool {
	return pct >= c.MinChargeLimitPct && pct <= c.ChargeLimitCeiling()
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// CheckChargerId validates a charger id. Ids appear as the first segment of
// per-charger entity ids, so underscores are not allowed.
func CheckChargerId(id string) (string, error) {
	lowerId := strings.ToLower(id)
	idRegexp := regexp.MustCompile("^[a-z0-9]+$")
	if !idRegexp.MatchString(lowerId) {
		return "", errors.New("invalid charger id. can only contain letters and numbers")
	}
	return lowerId, nil
}

// ParseClockTime parses a "HH:MM" wall-clock string.
func ParseClockTime(value string) (hour int, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// ParseRainyWindow parses the configured rainy forecast interval. Both ends
// empty means no window.
func ParseRainyWindow(from, to string) (*time.Time, *time.Time, error) {
	if from == "" && to == "" {
		return nil, nil, nil
	}
	f, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return nil, nil, err
	}
	t, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return nil, nil, err
	}
	if !t.After(f) {
		return nil, nil, errors.New("rainy window end must be after start")
	}
	return &f, &t, nil
}
