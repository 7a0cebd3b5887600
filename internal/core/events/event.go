package events

import (
	"time"

	. "github.com/berfenger/solarcharge2mqtt/internal/core/domain"
)

func GridPowerToUpdateEvents(netPowerWatt float64) []any {
	var events []any

	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_GRID_POWER_FLOW,
		},
		Value:    netPowerWatt,
		Decimals: 2,
	})

	return events
}

func SessionStateUpdateEvent(chargerId string, state SessionState) any {
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: ChargerEntityId(chargerId, SENSOR_SUFFIX_SESSION_STATE),
		},
		Value: state.String(),
	}
}

func ChargeCurrentUpdateEvent(chargerId string, amps uint) any {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: ChargerEntityId(chargerId, SENSOR_SUFFIX_CHARGE_CURRENT),
		},
		Value:    float64(amps),
		Decimals: 0,
	}
}

func AllocatedPowerUpdateEvent(chargerId string, watts float64) any {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: ChargerEntityId(chargerId, SENSOR_SUFFIX_ALLOCATED_POWER),
		},
		Value:    watts,
		Decimals: 0,
	}
}

func PlannedStartUpdateEvent(chargerId string, plannedStart *time.Time) any {
	value := "none"
	if plannedStart != nil {
		value = plannedStart.Format(time.RFC3339)
	}
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: ChargerEntityId(chargerId, SENSOR_SUFFIX_PLANNED_START),
		},
		Value: value,
	}
}

func ChargeSpeedUpdateEvent(chargerId string, pctPerHour float64) any {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: ChargerEntityId(chargerId, SENSOR_SUFFIX_CHARGE_SPEED),
		},
		Value:    pctPerHour,
		Decimals: 2,
	}
}

func ChargeSwitchUpdateEvent(chargerId string, enabled bool) any {
	return chargerSwitchUpdateEvent(chargerId, SWITCH_SUFFIX_CHARGE, enabled)
}

func FastChargeSwitchUpdateEvent(chargerId string, enabled bool) any {
	return chargerSwitchUpdateEvent(chargerId, SWITCH_SUFFIX_FAST_CHARGE, enabled)
}

func ScheduleEnableSwitchUpdateEvent(chargerId string, enabled bool) any {
	return chargerSwitchUpdateEvent(chargerId, SWITCH_SUFFIX_SCHEDULE_ENABLE, enabled)
}

func SunTriggerSwitchUpdateEvent(chargerId string, enabled bool) any {
	return chargerSwitchUpdateEvent(chargerId, SWITCH_SUFFIX_SUN_TRIGGER, enabled)
}

func CalibrateSwitchUpdateEvent(chargerId string, enabled bool) any {
	return chargerSwitchUpdateEvent(chargerId, SWITCH_SUFFIX_CALIBRATE, enabled)
}

func ChargeLimitUpdateEvent(chargerId string, limitPct uint) any {
	return chargerNumberUpdateEvent(chargerId, INPUT_NUMBER_SUFFIX_CHARGE_LIMIT, float64(limitPct), 0)
}

func MinCurrentUpdateEvent(chargerId string, amps uint) any {
	return chargerNumberUpdateEvent(chargerId, INPUT_NUMBER_SUFFIX_MIN_CURRENT, float64(amps), 0)
}

func MaxCurrentUpdateEvent(chargerId string, amps uint) any {
	return chargerNumberUpdateEvent(chargerId, INPUT_NUMBER_SUFFIX_MAX_CURRENT, float64(amps), 0)
}

func WeightUpdateEvent(chargerId string, weight float64) any {
	return chargerNumberUpdateEvent(chargerId, INPUT_NUMBER_SUFFIX_WEIGHT, weight, 1)
}

func chargerSwitchUpdateEvent(chargerId, suffix string, enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: ChargerEntityId(chargerId, suffix),
		},
		Value: enabled,
	}
}

func chargerNumberUpdateEvent(chargerId, suffix string, value float64, decimals uint) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: ChargerEntityId(chargerId, suffix),
		},
		Value:    value,
		Decimals: decimals,
	}
}
