package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/config"
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/events"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"
	"github.com/berfenger/solarcharge2mqtt/internal/core/service"
	. "github.com/berfenger/solarcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	// consecutive charger IO failures tolerated before aborting a session
	SESSION_MAX_FAILURES = 5

	chargerRequestTimeout = 12 * time.Second

	// failed charger commands are retried with exponentially growing delays
	commandRetryBaseDelay = 1 * time.Second
	commandRetryMaxDelay  = 30 * time.Second
)

// SessionActor owns the full charge lifecycle of one charger: plug detection,
// daily plan, just-in-time start, the solar control loop and calibration.
// Charger IO goes through the charger adapter actor, sensor updates go out on
// the event stream, and allocation state is pushed to the parent master.
type SessionActor struct {
	ActorWithStates
	scheduler *scheduler.TimerScheduler
	stash     *Stash

	cfg          config.ChargerConfig
	chargerActor *actor.PID
	eventStream  *eventstream.EventStream
	store        port.Store
	planner      *service.SchedulePlanner
	control      *service.SolarChargeControlLogic
	calibration  service.ChargeSpeedCalibration

	// runtime settings, adjustable over MQTT
	weight          float64
	scheduleEnabled bool
	sunTrigger      bool
	fastCharge      bool

	schedule    domain.WeeklySchedule
	plan        *domain.DailyPlan
	chargeSpeed float64

	session      domain.ChargeSession
	chargerState *domain.ChargerState
	controlState domain.ChargeControlState
	failures     uint

	cancelStart scheduler.CancelFunc

	logger *zap.Logger
}

type sessionPollTick struct {
}

type plannedStartTick struct {
	startedBy domain.StartedBy
}

type chargerCommandFailed struct {
	command any
	err     error
}

type chargerCommandRetry struct {
	command any
}

func NewSessionActor(cfg config.ChargerConfig, controlCfg config.ControlConfig, chargerActor *actor.PID,
	planner *service.SchedulePlanner, store port.Store, eventStream *eventstream.EventStream, logger *zap.Logger) *SessionActor {
	actorLogger := ActorLogger(domain.SessionActorId(cfg.Id), logger)
	act := &SessionActor{
		cfg:          cfg,
		chargerActor: chargerActor,
		eventStream:  eventStream,
		store:        store,
		planner:      planner,
		control: &service.SolarChargeControlLogic{
			MinCurrent:   cfg.MinCurrent,
			MaxCurrent:   cfg.MaxCurrent,
			Voltage:      cfg.EffectiveVoltage,
			StartCurrent: controlCfg.InitialCurrent,
			SettleDelay:  time.Duration(controlCfg.SettleDelaySeconds) * time.Second,
			DeadbandBias: controlCfg.DeadbandBias,
			Logger:       actorLogger,
		},
		weight:          cfg.Weight,
		scheduleEnabled: true,
		sunTrigger:      false,
		chargeSpeed:     cfg.ChargeSpeedPctPerHour,
		stash:           &Stash{},
		logger:          actorLogger,
		session: domain.ChargeSession{
			ChargerId: cfg.Id,
			State:     domain.SessionIdle,
		},
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(SessStartingState{
		actor: act,
	})
	return act
}

func (state *SessionActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type SessStartingState struct {
	ActorState
	actor *SessionActor
}

func (state SessStartingState) Name() string {
	return "starting"
}

func (state SessStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a := state.actor
		a.logger.Debug("session@starting started")

		a.scheduler = scheduler.NewTimerScheduler(ctx)

		// restore persisted state. failures here mean a broken store, which
		// the supervisor cannot fix by retrying forever
		if err := a.restoreFromStore(); err != nil {
			panic(err)
		}

		a.requestChargerState(ctx)
		a.Become(SessWaitingInfoState{
			actor: a,
		})
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("session@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Waiting first charger state

type SessWaitingInfoState struct {
	ActorState
	actor *SessionActor
}

func (state SessWaitingInfoState) Name() string {
	return "waitingInfo"
}

func (state SessWaitingInfoState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ChargerStateResponse:
		a := state.actor
		if msg.HasResponseError() {
			a.logger.Error("session@waitingInfo ChargerStateResponse error", zap.Error(msg.GetResponseError()))
			// treat an unreachable charger as disconnected and keep polling
			a.Become(SessIdleState{actor: a}.OnEnter(ctx))
			a.schedulePoll(ctx)
			a.stash.UnstashAll(ctx)
			return
		}
		a.logger.Debug("session@waitingInfo ChargerStateResponse")
		a.chargerState = msg.State

		restored := a.session
		switch {
		case restored.Active() && msg.State.Connected:
			// resume the interrupted session where it left off
			a.logger.Info("session@waitingInfo: resuming persisted session",
				zap.String("state", restored.State.String()))
			a.controlState = domain.ChargeControlState{
				CurrentAmps: msg.State.CurrentAmps,
				LastChange:  time.Now(),
				Started:     msg.State.Charging,
			}
			a.Become(SessChargingState{
				actor:  a,
				paused: restored.State == domain.SessionPaused || !msg.State.Charging,
			}.OnEnter(ctx))
			a.pushStatus(ctx)
		case msg.State.Connected:
			a.Become(SessConnectedState{actor: a}.OnEnter(ctx))
		default:
			a.Become(SessIdleState{actor: a}.OnEnter(ctx))
		}
		a.schedulePoll(ctx)
		a.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("session@waitingInfo: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state: no vehicle connected

type SessIdleState struct {
	ActorState
	actor *SessionActor
}

func (state SessIdleState) Name() string {
	return "idle"
}

func (state SessIdleState) OnEnter(ctx actor.Context) SessIdleState {
	state.actor.setSessionState(ctx, domain.SessionIdle, domain.StartedByNone)
	return state
}

func (state SessIdleState) Receive(ctx actor.Context) {
	a := state.actor
	if a.commonReceive(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case sessionPollTick:
		a.pollCharger(ctx)
	case domain.ChargerStateResponse:
		if !a.handlePollResponse(ctx, msg) {
			return
		}
		if msg.State.Connected {
			a.logger.Info("session@idle: vehicle connected")
			a.Become(SessConnectedState{actor: a}.OnEnter(ctx))
			// with scheduling off, plugging in starts the charge right away
			if !a.scheduleEnabled {
				a.startCharging(ctx, domain.StartedByPlugIn)
			}
		}
	case domain.RecomputePlanRequest:
		// without a vehicle the SoC is unknown, keep whatever plan we have
		ForRequest(msg).Respond(ctx, domain.RecomputePlanResponse{Plan: a.plan})
	case domain.ChargerControlRequest:
		a.handleControlRequest(ctx, state.Name(), msg)
	default:
		a.logger.Debug("session@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Connected state: vehicle plugged, no active goal yet

type SessConnectedState struct {
	ActorState
	actor *SessionActor
}

func (state SessConnectedState) Name() string {
	return "connected"
}

func (state SessConnectedState) OnEnter(ctx actor.Context) SessConnectedState {
	a := state.actor
	a.setSessionState(ctx, domain.SessionConnected, domain.StartedByNone)
	a.recomputePlan(ctx, time.Now())
	return state
}

func (state SessConnectedState) Receive(ctx actor.Context) {
	a := state.actor
	if a.commonReceive(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case sessionPollTick:
		a.pollCharger(ctx)
	case domain.ChargerStateResponse:
		if !a.handlePollResponse(ctx, msg) {
			return
		}
		if !msg.State.Connected {
			a.logger.Info("session@connected: vehicle disconnected")
			a.Become(SessIdleState{actor: a}.OnEnter(ctx))
			return
		}
		// arm the plan once a schedule goal and the SoC are known
		a.recomputePlan(ctx, time.Now())
		if a.scheduleEnabled && a.plan != nil {
			a.Become(SessScheduledState{actor: a}.OnEnter(ctx))
		}
	case domain.RecomputePlanRequest:
		a.recomputePlan(ctx, time.Now())
		ForRequest(msg).Respond(ctx, domain.RecomputePlanResponse{Plan: a.plan})
		if a.scheduleEnabled && a.plan != nil {
			a.Become(SessScheduledState{actor: a}.OnEnter(ctx))
		}
	case domain.ChargerControlRequest:
		switch cmd := msg.(type) {
		case domain.ChargerChargeRequest:
			a.logger.Sugar().Debugf("session@connected: cmd charge %t", cmd.Enable)
			ForRequest(msg).Respond(ctx, domain.ChargerChargeResponse{Changed: cmd.Enable})
			if cmd.Enable {
				a.startCharging(ctx, domain.StartedByUser)
			}
		case domain.ChargerScheduleEnableRequest:
			a.setScheduleEnabled(ctx, cmd.Enable)
			ForRequest(msg).Respond(ctx, domain.ChargerScheduleEnableResponse{Changed: true})
			if !cmd.Enable {
				a.startCharging(ctx, domain.StartedByPlugIn)
			}
		default:
			a.handleControlRequest(ctx, state.Name(), msg)
		}
	default:
		a.logger.Debug("session@connected: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Scheduled state: plan armed, waiting for the start trigger

type SessScheduledState struct {
	ActorState
	actor *SessionActor
}

func (state SessScheduledState) Name() string {
	return "scheduled"
}

func (state SessScheduledState) OnEnter(ctx actor.Context) SessScheduledState {
	a := state.actor
	a.setSessionState(ctx, domain.SessionScheduled, domain.StartedByNone)
	a.session.TargetLimitPct = a.plan.TargetLimitPct
	if a.plan.HasDeadline() {
		a.session.Deadline = &a.plan.Deadline
	} else {
		a.session.Deadline = nil
	}
	a.session.PlannedStart = &a.plan.PlannedStart
	a.session.PlannedEnd = a.plan.PlannedEnd
	a.persistSession()
	a.armStartTimer(ctx)
	return state
}

func (state SessScheduledState) Exit() {
	a := state.actor
	if a.cancelStart != nil {
		a.cancelStart()
		a.cancelStart = nil
	}
}

func (state SessScheduledState) Receive(ctx actor.Context) {
	a := state.actor
	if a.commonReceive(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case sessionPollTick:
		a.pollCharger(ctx)
	case domain.ChargerStateResponse:
		if !a.handlePollResponse(ctx, msg) {
			return
		}
		if !msg.State.Connected {
			a.logger.Info("session@scheduled: vehicle disconnected")
			state.Exit()
			a.Become(SessIdleState{actor: a}.OnEnter(ctx))
			return
		}
		if a.plan != nil && !time.Now().Before(a.plan.PlannedStart) {
			state.Exit()
			a.startCharging(ctx, domain.StartedBySchedule)
		}
	case plannedStartTick:
		a.logger.Info("session@scheduled: start trigger fired",
			zap.String("startedBy", msg.startedBy.String()))
		a.cancelStart = nil
		a.startCharging(ctx, msg.startedBy)
	case domain.RecomputePlanRequest:
		prev := a.plan
		a.recomputePlan(ctx, time.Now())
		ForRequest(msg).Respond(ctx, domain.RecomputePlanResponse{Plan: a.plan})
		if a.plan == nil {
			state.Exit()
			a.Become(SessConnectedState{actor: a}.OnEnter(ctx))
		} else if prev == nil || !prev.SameGoal(*a.plan) || !prev.PlannedStart.Equal(a.plan.PlannedStart) {
			state.Exit()
			a.Become(SessScheduledState{actor: a}.OnEnter(ctx))
		}
	case domain.ChargerControlRequest:
		switch cmd := msg.(type) {
		case domain.ChargerChargeRequest:
			a.logger.Sugar().Debugf("session@scheduled: cmd charge %t", cmd.Enable)
			ForRequest(msg).Respond(ctx, domain.ChargerChargeResponse{Changed: true})
			state.Exit()
			if cmd.Enable {
				a.startCharging(ctx, domain.StartedByUser)
			} else {
				a.Become(SessConnectedState{actor: a}.OnEnter(ctx))
			}
		case domain.ChargerScheduleEnableRequest:
			a.setScheduleEnabled(ctx, cmd.Enable)
			ForRequest(msg).Respond(ctx, domain.ChargerScheduleEnableResponse{Changed: true})
			if !cmd.Enable {
				state.Exit()
				a.startCharging(ctx, domain.StartedByPlugIn)
			}
		case domain.ChargerSunTriggerRequest:
			a.setSunTrigger(ctx, cmd.Enable)
			ForRequest(msg).Respond(ctx, domain.ChargerSunTriggerResponse{Changed: true})
			// re-arm with or without the sun trigger
			state.Exit()
			a.armStartTimer(ctx)
		default:
			a.handleControlRequest(ctx, state.Name(), msg)
		}
	default:
		a.logger.Debug("session@scheduled: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Charging state: active session, paused covers the no-surplus gaps

type SessChargingState struct {
	ActorState
	actor  *SessionActor
	paused bool
}

func (state SessChargingState) Name() string {
	if state.paused {
		return "paused"
	}
	return "charging"
}

func (state SessChargingState) OnEnter(ctx actor.Context) SessChargingState {
	a := state.actor
	if state.paused {
		a.setSessionState(ctx, domain.SessionPaused, a.session.StartedBy)
	} else {
		a.setSessionState(ctx, domain.SessionCharging, a.session.StartedBy)
	}
	return state
}

func (state SessChargingState) Receive(ctx actor.Context) {
	a := state.actor
	if a.commonReceive(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case sessionPollTick:
		a.pollCharger(ctx)
	case domain.ChargerStateResponse:
		if !a.handlePollResponse(ctx, msg) {
			return
		}
		state.evaluateCharger(ctx, msg.State)
	case domain.AllocatedPower:
		state.controlTick(ctx, msg)
	case domain.ChargerSetCurrentResponse, domain.ChargerStartChargeResponse,
		domain.ChargerStopChargeResponse, domain.ChargerSetChargeLimitResponse,
		domain.ChargerWakeUpResponse:
		a.failures = 0
	case domain.RecomputePlanRequest:
		// the running session keeps its goal, but answer with the active plan
		ForRequest(msg).Respond(ctx, domain.RecomputePlanResponse{Plan: a.plan})
	case domain.ChargerControlRequest:
		switch cmd := msg.(type) {
		case domain.ChargerChargeRequest:
			a.logger.Sugar().Debugf("session@%s: cmd charge %t", state.Name(), cmd.Enable)
			ForRequest(msg).Respond(ctx, domain.ChargerChargeResponse{Changed: !cmd.Enable})
			if !cmd.Enable {
				a.endSession(ctx, domain.SessionAborted)
			}
		case domain.ChargerFastChargeRequest:
			a.setFastCharge(ctx, cmd.Enable)
			ForRequest(msg).Respond(ctx, domain.ChargerFastChargeResponse{Changed: true})
		case domain.ChargerCalibrateRequest:
			state.handleCalibrate(ctx, cmd)
		default:
			a.handleControlRequest(ctx, state.Name(), msg)
		}
	default:
		a.logger.Debug("session@charging: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// evaluateCharger applies a fresh charger reading to the running session.
func (state SessChargingState) evaluateCharger(ctx actor.Context, st *domain.ChargerState) {
	a := state.actor

	if !st.Connected {
		a.logger.Info("session@charging: vehicle disconnected mid session")
		if a.targetReached(st) {
			a.endSession(ctx, domain.SessionCompleted)
		} else {
			a.endSession(ctx, domain.SessionAborted)
		}
		return
	}

	// calibration samples the SoC until its raised limit is hit
	if a.calibration.Running() && st.KnownSoC() && *st.SoC >= float64(a.calibration.TargetLimit()) {
		a.finishCalibration(ctx, *st.SoC)
	}

	// window sessions end when the window closes, whatever the SoC
	if a.session.PlannedEnd != nil && !time.Now().Before(*a.session.PlannedEnd) {
		a.logger.Info("session@charging: charge window ended")
		a.endSession(ctx, domain.SessionCompleted)
		return
	}

	if a.targetReached(st) {
		a.logger.Info("session@charging: target limit reached")
		a.endSession(ctx, domain.SessionCompleted)
	}
}

// controlTick runs one step of the feedback loop with the granted budget.
func (state SessChargingState) controlTick(ctx actor.Context, grant domain.AllocatedPower) {
	a := state.actor
	now := time.Now()

	a.session.AllocatedPowerWatt = grant.Watts
	a.publish(events.AllocatedPowerUpdateEvent(a.cfg.Id, grant.Watts))

	in := domain.ChargeControlInput{
		Now:                now,
		AllocatedPowerWatt: grant.Watts,
		MinCurrentFloor:    a.minCurrentFloor(now),
		FastCharge:         a.fastCharge || a.calibration.Running(),
		Paused:             state.paused,
	}
	res := a.control.Tick(a.controlState, in)
	if !res.Changed {
		return
	}

	if res.Pause {
		a.logger.Info("session@charging: pausing, no surplus for minimum current")
		a.sendChargerCommand(ctx, domain.ChargerStopChargeRequest{})
		// controlState keeps the last commanded amps so the resume picks up
		// where the pause left off
		a.controlState.LastChange = now
		a.session.CurrentAmps = 0
		a.publish(events.ChargeCurrentUpdateEvent(a.cfg.Id, 0))
		a.pushStatus(ctx)
		if !state.paused {
			a.Become(SessChargingState{actor: a, paused: true}.OnEnter(ctx))
		}
		return
	}

	if state.paused {
		a.logger.Info("session@charging: resuming")
		a.sendChargerCommand(ctx, domain.ChargerStartChargeRequest{})
	}
	a.logger.Sugar().Debugf("session@%s: set current %dA", state.Name(), res.TargetCurrentAmps)
	a.sendChargerCommand(ctx, domain.ChargerSetCurrentRequest{Amps: res.TargetCurrentAmps})
	a.controlState.CurrentAmps = res.TargetCurrentAmps
	a.controlState.LastChange = now
	a.controlState.Started = true
	a.session.CurrentAmps = res.TargetCurrentAmps
	a.persistSession()
	a.publish(events.ChargeCurrentUpdateEvent(a.cfg.Id, res.TargetCurrentAmps))
	a.pushStatus(ctx)
	if state.paused {
		a.Become(SessChargingState{actor: a, paused: false}.OnEnter(ctx))
	}
}

func (state SessChargingState) handleCalibrate(ctx actor.Context, cmd domain.ChargerCalibrateRequest) {
	a := state.actor
	if cmd.Enable {
		if a.calibration.Running() || a.chargerState == nil || !a.chargerState.KnownSoC() {
			ForRequest(cmd).Respond(ctx, domain.ChargerCalibrateResponse{Changed: false})
			return
		}
		if err := a.calibration.Begin(*a.chargerState.SoC, time.Now()); err != nil {
			a.logger.Warn("session@charging: calibration rejected", zap.Error(err))
			ForRequest(cmd).Respond(ctx, domain.ChargerCalibrateResponse{
				ChargerControlResponseMixIn: domain.ChargerControlResponseMixIn{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				},
			})
			a.publish(events.CalibrateSwitchUpdateEvent(a.cfg.Id, false))
			return
		}
		// raise the vehicle limit so it keeps charging while sampling
		a.sendChargerCommand(ctx, domain.ChargerSetChargeLimitRequest{LimitPct: a.calibration.TargetLimit()})
		a.publish(events.CalibrateSwitchUpdateEvent(a.cfg.Id, true))
		ForRequest(cmd).Respond(ctx, domain.ChargerCalibrateResponse{Changed: true})
		return
	}
	if a.calibration.Running() && a.chargerState != nil && a.chargerState.KnownSoC() {
		a.finishCalibration(ctx, *a.chargerState.SoC)
	}
	ForRequest(cmd).Respond(ctx, domain.ChargerCalibrateResponse{Changed: true})
}

// Common handlers

// commonReceive handles the messages every state answers the same way.
func (a *SessionActor) commonReceive(ctx actor.Context, stateName string) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		a.logger.Debug("session@" + stateName + ": ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.SessionActorId(a.cfg.Id),
			Healthy: true,
			State:   stateName,
		})
		return true
	case domain.GetSessionRequest:
		ForRequest(msg).Respond(ctx, domain.GetSessionResponse{
			Session: a.session,
			Plan:    a.plan,
		})
		return true
	case domain.GetScheduleRequest:
		ForRequest(msg).Respond(ctx, domain.GetScheduleResponse{Schedule: a.schedule})
		return true
	case domain.SetScheduleRequest:
		a.schedule = msg.Schedule
		if err := a.store.SaveWeeklySchedule(a.cfg.Id, a.schedule); err != nil {
			a.logger.Error("session: could not persist schedule", zap.Error(err))
			ForRequest(msg).Respond(ctx, domain.SetScheduleResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
			return true
		}
		ForRequest(msg).Respond(ctx, domain.SetScheduleResponse{})
		// a new schedule invalidates the current plan timing
		ctx.Send(ctx.Self(), domain.RecomputePlanRequest{})
		return true
	case chargerCommandFailed:
		a.commandFailed(ctx, msg.command, msg.err)
		return true
	case chargerCommandRetry:
		a.retryChargerCommand(ctx, msg.command)
		return true
	}
	return false
}

// handleControlRequest handles the settings commands valid in any state.
func (a *SessionActor) handleControlRequest(ctx actor.Context, stateName string, msg domain.ChargerControlRequest) {
	switch cmd := msg.(type) {
	case domain.ChargerChargeRequest:
		// no-op outside connected/scheduled/charging
		ForRequest(msg).Respond(ctx, domain.ChargerChargeResponse{Changed: false})
	case domain.ChargerFastChargeRequest:
		a.setFastCharge(ctx, cmd.Enable)
		ForRequest(msg).Respond(ctx, domain.ChargerFastChargeResponse{Changed: true})
	case domain.ChargerScheduleEnableRequest:
		a.setScheduleEnabled(ctx, cmd.Enable)
		ForRequest(msg).Respond(ctx, domain.ChargerScheduleEnableResponse{Changed: true})
	case domain.ChargerSunTriggerRequest:
		a.setSunTrigger(ctx, cmd.Enable)
		ForRequest(msg).Respond(ctx, domain.ChargerSunTriggerResponse{Changed: true})
	case domain.ChargerCalibrateRequest:
		// calibration only makes sense while charging
		ForRequest(msg).Respond(ctx, domain.ChargerCalibrateResponse{Changed: false})
		a.publish(events.CalibrateSwitchUpdateEvent(a.cfg.Id, false))
	case domain.ChargerSetLimitRequest:
		a.logger.Sugar().Debugf("session@%s: cmd setLimit %d", stateName, cmd.LimitPct)
		if !a.cfg.ValidChargeLimit(cmd.LimitPct) {
			err := fmt.Errorf("charge limit %d%% outside bounds [%d, %d]",
				cmd.LimitPct, a.cfg.MinChargeLimitPct, a.cfg.ChargeLimitCeiling())
			a.logger.Warn("session: charge limit rejected", zap.Error(err))
			a.publish(events.ChargeLimitUpdateEvent(a.cfg.Id, a.session.TargetLimitPct))
			ForRequest(msg).Respond(ctx, domain.ChargerSetLimitResponse{
				ChargerControlResponseMixIn: domain.ChargerControlResponseMixIn{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				},
			})
			return
		}
		a.session.TargetLimitPct = cmd.LimitPct
		a.persistSession()
		a.sendChargerCommand(ctx, domain.ChargerSetChargeLimitRequest{LimitPct: cmd.LimitPct})
		a.publish(events.ChargeLimitUpdateEvent(a.cfg.Id, cmd.LimitPct))
		ForRequest(msg).Respond(ctx, domain.ChargerSetLimitResponse{LimitPct: cmd.LimitPct})
	case domain.ChargerSetMinCurrentRequest:
		a.logger.Sugar().Debugf("session@%s: cmd setMinCurrent %d", stateName, cmd.Amps)
		a.control.MinCurrent = cmd.Amps
		a.publish(events.MinCurrentUpdateEvent(a.cfg.Id, cmd.Amps))
		a.pushStatus(ctx)
		ForRequest(msg).Respond(ctx, domain.ChargerSetMinCurrentResponse{Amps: cmd.Amps})
	case domain.ChargerSetMaxCurrentRequest:
		a.logger.Sugar().Debugf("session@%s: cmd setMaxCurrent %d", stateName, cmd.Amps)
		if cmd.Amps > a.cfg.MaxCurrent {
			cmd.Amps = a.cfg.MaxCurrent
		}
		a.control.MaxCurrent = cmd.Amps
		a.publish(events.MaxCurrentUpdateEvent(a.cfg.Id, cmd.Amps))
		a.pushStatus(ctx)
		ForRequest(msg).Respond(ctx, domain.ChargerSetMaxCurrentResponse{Amps: cmd.Amps})
	case domain.ChargerSetWeightRequest:
		a.logger.Sugar().Debugf("session@%s: cmd setWeight %f", stateName, cmd.Weight)
		a.weight = cmd.Weight
		a.publish(events.WeightUpdateEvent(a.cfg.Id, cmd.Weight))
		a.pushStatus(ctx)
		ForRequest(msg).Respond(ctx, domain.ChargerSetWeightResponse{Weight: cmd.Weight})
	default:
		a.logger.Debug("session: unhandled control request", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Actor helpers

func (a *SessionActor) restoreFromStore() error {
	schedule, err := a.store.WeeklySchedule(a.cfg.Id)
	if err != nil {
		return err
	}
	if schedule != nil {
		a.schedule = *schedule
	}
	plan, err := a.store.DailyPlan(a.cfg.Id, time.Now().Format(domain.PlanDayFormat))
	if err != nil {
		return err
	}
	a.plan = plan
	speed, err := a.store.ChargeSpeed(a.cfg.Id)
	if err != nil {
		return err
	}
	if speed != nil && *speed > 0 {
		a.chargeSpeed = *speed
	}
	session, err := a.store.SessionSnapshot(a.cfg.Id)
	if err != nil {
		return err
	}
	if session != nil {
		a.session = *session
	}
	return nil
}

func (a *SessionActor) schedulePoll(ctx actor.Context) {
	interval := time.Duration(a.cfg.PollIntervalMillis) * time.Millisecond
	if interval <= 0 {
		return
	}
	a.scheduler.RequestOnce(interval, ctx.Self(), sessionPollTick{})
}

func (a *SessionActor) pollCharger(ctx actor.Context) {
	a.logger.Debug("session: poll tick")
	a.requestChargerState(ctx)
	a.schedulePoll(ctx)
}

func (a *SessionActor) requestChargerState(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.chargerActor, domain.ChargerStateRequest{}, chargerRequestTimeout), func(err error) any {
		return domain.ChargerStateResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
}

// handlePollResponse updates the cached reading. false means the response
// carried an error and the caller should not act on it. Polls have their
// own cadence, so a failed poll counts but is never retried.
func (a *SessionActor) handlePollResponse(ctx actor.Context, msg domain.ChargerStateResponse) bool {
	if msg.HasResponseError() {
		a.commandFailed(ctx, nil, msg.GetResponseError())
		return false
	}
	a.failures = 0
	a.chargerState = msg.State
	return true
}

// commandFailed counts consecutive charger IO failures. A failed command is
// retried with bounded exponential backoff; a run of failures aborts the
// active session rather than leaving the charger in limbo.
func (a *SessionActor) commandFailed(ctx actor.Context, command any, err error) {
	a.failures++
	a.logger.Warn("session: charger IO failure", zap.Error(err), zap.Uint("consecutive", a.failures))
	if a.failures >= SESSION_MAX_FAILURES {
		if a.session.Active() {
			a.logger.Error("session: too many charger failures, aborting session")
			a.endSession(ctx, domain.SessionAborted)
		}
		return
	}
	if command == nil {
		return
	}
	delay := commandRetryBaseDelay << (a.failures - 1)
	if delay > commandRetryMaxDelay {
		delay = commandRetryMaxDelay
	}
	a.scheduler.RequestOnce(delay, ctx.Self(), chargerCommandRetry{command: command})
}

func (a *SessionActor) retryChargerCommand(ctx actor.Context, command any) {
	if !a.session.Active() {
		return
	}
	a.logger.Debug("session: retrying charger command", zap.String("type", fmt.Sprintf("%T", command)))
	a.sendChargerCommand(ctx, command)
}

// sendChargerCommand requests the charger adapter and pipes the outcome back
// to self: a typed response on success, a chargerCommandFailed carrying the
// original command otherwise.
func (a *SessionActor) sendChargerCommand(ctx actor.Context, cmd any) {
	ctx.ReenterAfter(ctx.RequestFuture(a.chargerActor, cmd, chargerRequestTimeout), func(res any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), chargerCommandFailed{command: cmd, err: err})
			return
		}
		if resp, ok := res.(domain.ActorResponse); ok && resp.HasResponseError() {
			ctx.Send(ctx.Self(), chargerCommandFailed{command: cmd, err: resp.GetResponseError()})
			return
		}
		ctx.Send(ctx.Self(), res)
	})
}

// startCharging opens a session and commands the charger to start at the
// initial current. The feedback loop takes over on the next allocation.
func (a *SessionActor) startCharging(ctx actor.Context, startedBy domain.StartedBy) {
	now := time.Now()
	target := a.session.TargetLimitPct
	if a.plan != nil && startedBy != domain.StartedByUser {
		target = a.plan.TargetLimitPct
	}
	if target == 0 {
		target = 100
	}

	a.session = domain.ChargeSession{
		ChargerId:      a.cfg.Id,
		State:          domain.SessionCharging,
		Mode:           a.chargeMode(),
		StartedBy:      startedBy,
		TargetLimitPct: target,
		StartedAt:      &now,
	}
	if a.plan != nil && startedBy != domain.StartedByUser {
		if a.plan.HasDeadline() {
			a.session.Deadline = &a.plan.Deadline
		}
		a.session.PlannedStart = &a.plan.PlannedStart
		a.session.PlannedEnd = a.plan.PlannedEnd
	}

	initial := a.control.InitialCurrent()
	a.sendChargerCommand(ctx, domain.ChargerWakeUpRequest{})
	a.sendChargerCommand(ctx, domain.ChargerSetChargeLimitRequest{LimitPct: target})
	a.sendChargerCommand(ctx, domain.ChargerSetCurrentRequest{Amps: initial})
	a.sendChargerCommand(ctx, domain.ChargerStartChargeRequest{})

	a.controlState = domain.ChargeControlState{
		CurrentAmps: initial,
		LastChange:  now,
		Started:     true,
	}
	a.session.CurrentAmps = initial

	a.logger.Info("session: charging started",
		zap.String("startedBy", startedBy.String()),
		zap.Uint("targetLimit", target))
	a.persistSession()
	a.publish(events.SessionStateUpdateEvent(a.cfg.Id, domain.SessionCharging))
	a.publish(events.ChargeCurrentUpdateEvent(a.cfg.Id, initial))
	a.publish(events.ChargeSwitchUpdateEvent(a.cfg.Id, true))
	a.pushStatus(ctx)
	a.Become(SessChargingState{actor: a}.OnEnter(ctx))
}

// endSession closes the active session and returns to connected or idle.
func (a *SessionActor) endSession(ctx actor.Context, result domain.SessionState) {
	now := time.Now()
	a.sendChargerCommand(ctx, domain.ChargerStopChargeRequest{})
	if a.calibration.Running() && a.chargerState != nil && a.chargerState.KnownSoC() {
		a.finishCalibration(ctx, *a.chargerState.SoC)
	}
	a.session.State = result
	a.session.EndedAt = &now
	a.session.CurrentAmps = 0
	a.controlState = domain.ChargeControlState{}
	a.persistSession()
	a.publish(events.SessionStateUpdateEvent(a.cfg.Id, result))
	a.publish(events.ChargeCurrentUpdateEvent(a.cfg.Id, 0))
	a.publish(events.ChargeSwitchUpdateEvent(a.cfg.Id, false))
	a.pushStatus(ctx)
	a.logger.Info("session: ended", zap.String("result", result.String()))

	if a.chargerState != nil && a.chargerState.Connected {
		a.Become(SessConnectedState{actor: a}.OnEnter(ctx))
	} else {
		a.Become(SessIdleState{actor: a}.OnEnter(ctx))
	}
}

func (a *SessionActor) finishCalibration(ctx actor.Context, soc float64) {
	rate, err := a.calibration.Finish(soc, time.Now())
	a.publish(events.CalibrateSwitchUpdateEvent(a.cfg.Id, false))
	if err != nil {
		a.logger.Warn("session: calibration discarded", zap.Error(err))
		return
	}
	a.chargeSpeed = rate
	if err := a.store.SaveChargeSpeed(a.cfg.Id, rate); err != nil {
		a.logger.Error("session: could not persist charge speed", zap.Error(err))
	}
	a.publish(events.ChargeSpeedUpdateEvent(a.cfg.Id, rate))
	a.logger.Sugar().Infof("session: calibrated charge speed %.2f%%/h", rate)
}

// recomputePlan refreshes the daily plan from the schedule and current SoC.
func (a *SessionActor) recomputePlan(ctx actor.Context, now time.Time) {
	plan := a.planner.ComputePlan(service.PlanRequest{
		ChargerId:             a.cfg.Id,
		Now:                   now,
		SoC:                   a.soc(),
		Schedule:              a.schedule,
		ChargeSpeedPctPerHour: a.chargeSpeed,
		Previous:              a.plan,
	})
	if plan != a.plan {
		a.plan = plan
		if plan != nil {
			if err := a.store.SaveDailyPlan(*plan); err != nil {
				a.logger.Error("session: could not persist plan", zap.Error(err))
			}
		}
	}
	if a.plan != nil {
		a.publish(events.PlannedStartUpdateEvent(a.cfg.Id, &a.plan.PlannedStart))
	} else {
		a.publish(events.PlannedStartUpdateEvent(a.cfg.Id, nil))
	}
}

// armStartTimer schedules the session start: just in time for the deadline,
// or earlier when the sun trigger fires first.
func (a *SessionActor) armStartTimer(ctx actor.Context) {
	if a.plan == nil {
		return
	}
	now := time.Now()
	startAt := a.plan.PlannedStart
	startedBy := domain.StartedBySchedule

	if a.sunTrigger {
		if at, ok := a.planner.NextStartTrigger(now); ok && at.Before(startAt) {
			startAt = at
			startedBy = domain.StartedBySunTrigger
		}
	}

	delay := startAt.Sub(now)
	if delay < 0 {
		delay = 0
	}
	a.logger.Sugar().Infof("session: start armed at %s (%s)", startAt.Format(time.RFC3339), startedBy)
	a.cancelStart = a.scheduler.RequestOnce(delay, ctx.Self(), plannedStartTick{startedBy: startedBy})
}

// minCurrentFloor returns the forced minimum current for the control loop.
// Deadline pressure or night time forces the full configured rate.
func (a *SessionActor) minCurrentFloor(now time.Time) uint {
	if a.session.Deadline == nil || a.chargerState == nil || !a.chargerState.KnownSoC() {
		return 0
	}
	atMax := a.controlState.CurrentAmps >= a.control.MaxCurrent
	if a.planner.NotEnoughTime(now, *a.session.Deadline, *a.chargerState.SoC,
		float64(a.session.TargetLimitPct), a.chargeSpeed, atMax) {
		return a.control.MaxCurrent
	}
	return 0
}

func (a *SessionActor) targetReached(st *domain.ChargerState) bool {
	if a.calibration.Running() {
		return false
	}
	return st.KnownSoC() && a.session.TargetLimitPct > 0 && *st.SoC >= float64(a.session.TargetLimitPct)
}

func (a *SessionActor) soc() *float64 {
	if a.chargerState == nil {
		return nil
	}
	return a.chargerState.SoC
}

func (a *SessionActor) chargeMode() domain.ChargeMode {
	if a.fastCharge {
		return domain.ChargeModeFast
	}
	return domain.ChargeModeSolar
}

func (a *SessionActor) setSessionState(ctx actor.Context, state domain.SessionState, startedBy domain.StartedBy) {
	if a.session.State == state {
		return
	}
	a.session.State = state
	a.session.StartedBy = startedBy
	if !a.session.Active() {
		a.session.CurrentAmps = 0
		a.session.AllocatedPowerWatt = 0
	}
	a.persistSession()
	a.publish(events.SessionStateUpdateEvent(a.cfg.Id, state))
	a.pushStatus(ctx)
}

func (a *SessionActor) setFastCharge(ctx actor.Context, enable bool) {
	a.fastCharge = enable
	a.session.Mode = a.chargeMode()
	a.publish(events.FastChargeSwitchUpdateEvent(a.cfg.Id, enable))
	a.pushStatus(ctx)
}

func (a *SessionActor) setScheduleEnabled(ctx actor.Context, enable bool) {
	a.scheduleEnabled = enable
	a.publish(events.ScheduleEnableSwitchUpdateEvent(a.cfg.Id, enable))
}

func (a *SessionActor) setSunTrigger(ctx actor.Context, enable bool) {
	a.sunTrigger = enable
	a.publish(events.SunTriggerSwitchUpdateEvent(a.cfg.Id, enable))
}

func (a *SessionActor) persistSession() {
	if err := a.store.SaveSessionSnapshot(a.session); err != nil {
		a.logger.Error("session: could not persist snapshot", zap.Error(err))
	}
}

func (a *SessionActor) publish(ev any) {
	a.eventStream.Publish(ev)
}

// pushStatus sends the allocation-relevant view of this session to the master.
func (a *SessionActor) pushStatus(ctx actor.Context) {
	if ctx.Parent() == nil {
		return
	}
	drawWatt := float64(0)
	if a.session.State == domain.SessionCharging {
		drawWatt = float64(a.controlState.CurrentAmps) * a.control.EffectiveVoltage()
	}
	ctx.Send(ctx.Parent(), domain.SessionStatus{
		ChargerId:    a.cfg.Id,
		State:        a.session.State,
		Weight:       a.weight,
		MinPowerWatt: float64(a.control.MinCurrent) * a.control.EffectiveVoltage(),
		MaxPowerWatt: float64(a.control.MaxCurrent) * a.control.EffectiveVoltage(),
		DrawWatt:     drawWatt,
		FastCharge:   a.fastCharge || a.calibration.Running(),
	})
}
