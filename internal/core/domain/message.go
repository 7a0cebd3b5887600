package domain

import (
	"fmt"
	"time"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_POWERFLOW    = "powerflow"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

func SessionActorId(chargerId string) string {
	return fmt.Sprintf("session_%s", chargerId)
}

func ChargerActorId(chargerId string) string {
	return fmt.Sprintf("charger_%s", chargerId)
}

// PowerSample is the latest net grid power reading. Negative values mean
// export to grid.
type PowerSample struct {
	NetPowerWatt float64
	At           time.Time
}

type GetNetPowerRequest struct {
	ActorRequestMixIn
}

type GetNetPowerResponse struct {
	ActorResponseMixIn
	Sample PowerSample
}

// Charger adapter messages

type ChargerStateRequest struct {
	ActorRequestMixIn
}

type ChargerStateResponse struct {
	ActorResponseMixIn
	State *ChargerState
}

type ChargerSetCurrentRequest struct {
	ActorRequestMixIn
	Amps uint
}

type ChargerSetCurrentResponse struct {
	ActorResponseMixIn
	Amps uint
}

type ChargerStartChargeRequest struct {
	ActorRequestMixIn
}

type ChargerStartChargeResponse struct {
	ActorResponseMixIn
}

type ChargerStopChargeRequest struct {
	ActorRequestMixIn
}

type ChargerStopChargeResponse struct {
	ActorResponseMixIn
}

type ChargerSetChargeLimitRequest struct {
	ActorRequestMixIn
	LimitPct uint
}

type ChargerSetChargeLimitResponse struct {
	ActorResponseMixIn
}

type ChargerWakeUpRequest struct {
	ActorRequestMixIn
}

type ChargerWakeUpResponse struct {
	ActorResponseMixIn
}

// Session <-> master messages

// AllocatedPower carries the power share granted to one session for the
// current control tick.
type AllocatedPower struct {
	Watts float64
	At    time.Time
}

// SessionStatus is pushed by a session actor to the master whenever its
// allocation-relevant state changes.
type SessionStatus struct {
	ChargerId    string
	State        SessionState
	Weight       float64
	MinPowerWatt float64
	MaxPowerWatt float64
	DrawWatt     float64
	FastCharge   bool
}

func (s SessionStatus) WantsPower() bool {
	return s.State == SessionCharging || s.State == SessionPaused
}

type RecomputePlanRequest struct {
	ActorRequestMixIn
}

type RecomputePlanResponse struct {
	ActorResponseMixIn
	Plan *DailyPlan
}

type GetSessionRequest struct {
	ActorRequestMixIn
	ChargerId string
}

type GetSessionResponse struct {
	ActorResponseMixIn
	Session ChargeSession
	Plan    *DailyPlan
}

type GetScheduleRequest struct {
	ActorRequestMixIn
	ChargerId string
}

type GetScheduleResponse struct {
	ActorResponseMixIn
	Schedule WeeklySchedule
}

type SetScheduleRequest struct {
	ActorRequestMixIn
	ChargerId string
	Schedule  WeeklySchedule
}

type SetScheduleResponse struct {
	ActorResponseMixIn
}

// MQTT actor messages

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health checks

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
