package domain

import "fmt"

// ChargerControlRequest

type ChargerControlRequest interface {
	ActorRequest
	ControlChargerId() string
	ChargerControlCommand() string
}

type ChargerControlRequestMixIn struct {
	ActorRequestMixIn
	ChargerId string
}

func (r ChargerControlRequestMixIn) ControlChargerId() string {
	return r.ChargerId
}

func (r ChargerControlRequestMixIn) ChargerControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// ChargerControlResponse

type ChargerControlResponse interface {
	ActorResponse
	ChargerControlResponse() string
}

type ChargerControlResponseMixIn struct {
	ActorResponseMixIn
}

func (r ChargerControlResponseMixIn) ChargerControlResponse() string {
	return fmt.Sprintf("%T", r)
}

// ChargerControl commands

type ChargerChargeRequest struct {
	ChargerControlRequestMixIn
	Enable bool
}

type ChargerChargeResponse struct {
	ChargerControlResponseMixIn
	Changed bool
}

type ChargerFastChargeRequest struct {
	ChargerControlRequestMixIn
	Enable bool
}

type ChargerFastChargeResponse struct {
	ChargerControlResponseMixIn
	Changed bool
}

type ChargerScheduleEnableRequest struct {
	ChargerControlRequestMixIn
	Enable bool
}

type ChargerScheduleEnableResponse struct {
	ChargerControlResponseMixIn
	Changed bool
}

type ChargerSunTriggerRequest struct {
	ChargerControlRequestMixIn
	Enable bool
}

type ChargerSunTriggerResponse struct {
	ChargerControlResponseMixIn
	Changed bool
}

type ChargerCalibrateRequest struct {
	ChargerControlRequestMixIn
	Enable bool
}

type ChargerCalibrateResponse struct {
	ChargerControlResponseMixIn
	Changed bool
}

type ChargerSetLimitRequest struct {
	ChargerControlRequestMixIn
	LimitPct uint
}

type ChargerSetLimitResponse struct {
	ChargerControlResponseMixIn
	LimitPct uint
}

type ChargerSetMinCurrentRequest struct {
	ChargerControlRequestMixIn
	Amps uint
}

type ChargerSetMinCurrentResponse struct {
	ChargerControlResponseMixIn
	Amps uint
}

type ChargerSetMaxCurrentRequest struct {
	ChargerControlRequestMixIn
	Amps uint
}

type ChargerSetMaxCurrentResponse struct {
	ChargerControlResponseMixIn
	Amps uint
}

type ChargerSetWeightRequest struct {
	ChargerControlRequestMixIn
	Weight float64
}

type ChargerSetWeightResponse struct {
	ChargerControlResponseMixIn
	Weight float64
}

// ensure interface compliance
var _ ChargerControlRequest = (*ChargerChargeRequest)(nil)
