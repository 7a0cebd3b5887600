package events

import "fmt"

const (
	SENSOR_ID_GRID_POWER_FLOW = "grid_power_flow"

	SENSOR_SUFFIX_SESSION_STATE   = "session_state"
	SENSOR_SUFFIX_CHARGE_CURRENT  = "charge_current"
	SENSOR_SUFFIX_ALLOCATED_POWER = "allocated_power"
	SENSOR_SUFFIX_PLANNED_START   = "planned_start"
	SENSOR_SUFFIX_CHARGE_SPEED    = "charge_speed"

	SWITCH_SUFFIX_CHARGE          = "charge"
	SWITCH_SUFFIX_FAST_CHARGE     = "fast_charge"
	SWITCH_SUFFIX_SCHEDULE_ENABLE = "schedule_enable"
	SWITCH_SUFFIX_SUN_TRIGGER     = "sun_trigger"
	SWITCH_SUFFIX_CALIBRATE       = "calibrate"

	INPUT_NUMBER_SUFFIX_CHARGE_LIMIT = "charge_limit"
	INPUT_NUMBER_SUFFIX_MIN_CURRENT  = "min_current"
	INPUT_NUMBER_SUFFIX_MAX_CURRENT  = "max_current"
	INPUT_NUMBER_SUFFIX_WEIGHT       = "weight"
)

// ChargerEntityId builds the per-charger entity id used on MQTT topics.
func ChargerEntityId(chargerId, suffix string) string {
	return fmt.Sprintf("%s_%s", chargerId, suffix)
}

// ParseChargerEntityId splits an entity id back into charger id and suffix.
// Charger ids cannot contain underscores, so the first segment is the id.
func ParseChargerEntityId(entityId string) (chargerId string, suffix string, ok bool) {
	for i := 0; i < len(entityId); i++ {
		if entityId[i] == '_' {
			return entityId[:i], entityId[i+1:], true
		}
	}
	return "", "", false
}
