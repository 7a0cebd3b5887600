package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/solarcharge2mqtt/internal/config"
	. "github.com/berfenger/solarcharge2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge"

	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_POWER        = "power"
	DEVICE_CLASS_CURRENT      = "current"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
	INPUT_NUMBER_MODE_BOX     = "box"
	INPUT_NUMBER_MODE_SLIDER  = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("solarcharge_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Solarcharge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Solarcharge %s", md5HashShort(baseTopic)),
	}
}

func ChargerDevice(bridgeDevice Device, cfg config.ChargerConfig) Device {
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("Charger %s", cfg.Id)
	}
	return Device{
		Id:        fmt.Sprintf("sc_charger_%s", cfg.Id),
		Model:     "EV charger",
		Name:      name,
		ViaDevice: bridgeDevice.Id,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// bridge availability
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	// grid power flow
	sensors = append(sensors, GenericSensor{
		Device:            bridgeDevice,
		Id:                SENSOR_ID_GRID_POWER_FLOW,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid power flow",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:transmission-tower",
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_GRID_POWER_FLOW),
	})

	return sensors
}

func ChargerSensors(chargerDevice Device, chargerId string) []GenericSensor {

	var sensors []GenericSensor

	// session state
	sensors = append(sensors, GenericSensor{
		Device:     chargerDevice,
		Id:         ChargerEntityId(chargerId, SENSOR_SUFFIX_SESSION_STATE),
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Session state",
		Icon:       "mdi:ev-station",
		UniqueId:   uniqueId(chargerDevice.Id, SENSOR_SUFFIX_SESSION_STATE),
	})

	// commanded charge current
	sensors = append(sensors, GenericSensor{
		Device:            chargerDevice,
		Id:                ChargerEntityId(chargerId, SENSOR_SUFFIX_CHARGE_CURRENT),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Charge current",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		UniqueId:          uniqueId(chargerDevice.Id, SENSOR_SUFFIX_CHARGE_CURRENT),
	})

	// allocated surplus power
	sensors = append(sensors, GenericSensor{
		Device:            chargerDevice,
		Id:                ChargerEntityId(chargerId, SENSOR_SUFFIX_ALLOCATED_POWER),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Allocated power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:solar-power",
		UniqueId:          uniqueId(chargerDevice.Id, SENSOR_SUFFIX_ALLOCATED_POWER),
	})

	// planned start
	sensors = append(sensors, GenericSensor{
		Device:     chargerDevice,
		Id:         ChargerEntityId(chargerId, SENSOR_SUFFIX_PLANNED_START),
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Planned start",
		Icon:       "mdi:clock-start",
		UniqueId:   uniqueId(chargerDevice.Id, SENSOR_SUFFIX_PLANNED_START),
	})

	// calibrated charge speed
	sensors = append(sensors, GenericSensor{
		Device:            chargerDevice,
		Id:                ChargerEntityId(chargerId, SENSOR_SUFFIX_CHARGE_SPEED),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Charge speed",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "%/h",
		Icon:              "mdi:speedometer",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(chargerDevice.Id, SENSOR_SUFFIX_CHARGE_SPEED),
	})

	return sensors
}

func ChargerSwitches(chargerDevice Device, chargerId string) []GenericSwitch {

	var switches []GenericSwitch

	switches = append(switches, GenericSwitch{
		Device:   chargerDevice,
		Id:       ChargerEntityId(chargerId, SWITCH_SUFFIX_CHARGE),
		Name:     "Charge",
		UniqueId: uniqueId(chargerDevice.Id, SWITCH_SUFFIX_CHARGE),
		Icon:     "mdi:battery-charging",
	})
	switches = append(switches, GenericSwitch{
		Device:   chargerDevice,
		Id:       ChargerEntityId(chargerId, SWITCH_SUFFIX_FAST_CHARGE),
		Name:     "Fast charge",
		UniqueId: uniqueId(chargerDevice.Id, SWITCH_SUFFIX_FAST_CHARGE),
		Icon:     "mdi:flash",
	})
	switches = append(switches, GenericSwitch{
		Device:   chargerDevice,
		Id:       ChargerEntityId(chargerId, SWITCH_SUFFIX_SCHEDULE_ENABLE),
		Name:     "Schedule",
		UniqueId: uniqueId(chargerDevice.Id, SWITCH_SUFFIX_SCHEDULE_ENABLE),
		Icon:     "mdi:calendar-clock",
	})
	switches = append(switches, GenericSwitch{
		Device:   chargerDevice,
		Id:       ChargerEntityId(chargerId, SWITCH_SUFFIX_SUN_TRIGGER),
		Name:     "Sun trigger",
		UniqueId: uniqueId(chargerDevice.Id, SWITCH_SUFFIX_SUN_TRIGGER),
		Icon:     "mdi:weather-sunny",
	})
	switches = append(switches, GenericSwitch{
		Device:   chargerDevice,
		Id:       ChargerEntityId(chargerId, SWITCH_SUFFIX_CALIBRATE),
		Name:     "Calibrate charge speed",
		UniqueId: uniqueId(chargerDevice.Id, SWITCH_SUFFIX_CALIBRATE),
		Icon:     "mdi:tune",
	})

	return switches
}

func ChargerInputNumbers(chargerDevice Device, chargerId string, cfg config.ChargerConfig) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       chargerDevice,
		Id:           ChargerEntityId(chargerId, INPUT_NUMBER_SUFFIX_CHARGE_LIMIT),
		Name:         "Charge limit",
		UniqueId:     uniqueId(chargerDevice.Id, INPUT_NUMBER_SUFFIX_CHARGE_LIMIT),
		Icon:         "mdi:ticket-percent",
		Max:          100,
		Min:          0,
		Step:         5,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: 80,
	})
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       chargerDevice,
		Id:           ChargerEntityId(chargerId, INPUT_NUMBER_SUFFIX_MIN_CURRENT),
		Name:         "Min current",
		UniqueId:     uniqueId(chargerDevice.Id, INPUT_NUMBER_SUFFIX_MIN_CURRENT),
		Icon:         "mdi:current-ac",
		Max:          float64(cfg.MaxCurrent),
		Min:          0,
		Step:         1,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: float64(cfg.MinCurrent),
	})
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       chargerDevice,
		Id:           ChargerEntityId(chargerId, INPUT_NUMBER_SUFFIX_MAX_CURRENT),
		Name:         "Max current",
		UniqueId:     uniqueId(chargerDevice.Id, INPUT_NUMBER_SUFFIX_MAX_CURRENT),
		Icon:         "mdi:current-ac",
		Max:          float64(cfg.MaxCurrent),
		Min:          1,
		Step:         1,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: float64(cfg.MaxCurrent),
	})
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       chargerDevice,
		Id:           ChargerEntityId(chargerId, INPUT_NUMBER_SUFFIX_WEIGHT),
		Name:         "Allocation weight",
		UniqueId:     uniqueId(chargerDevice.Id, INPUT_NUMBER_SUFFIX_WEIGHT),
		Icon:         "mdi:scale-balance",
		Max:          10,
		Min:          0,
		Step:         0.5,
		Mode:         INPUT_NUMBER_MODE_SLIDER,
		InitialValue: cfg.Weight,
	})

	return inputNumbers
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
