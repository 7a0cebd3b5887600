package actor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/solarcharge2mqtt/internal/adapter/actor"
	"github.com/berfenger/solarcharge2mqtt/internal/config"
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"
	"github.com/berfenger/solarcharge2mqtt/internal/core/service"
	. "github.com/berfenger/solarcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// plans roll over shortly after local midnight
const PLAN_RECOMPUTE_CRON = "0 5 0 * * *"

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type PowerSourceActorProvider func() *adactor.PowerSourceActor

type ChargerActorProvider func(config.ChargerConfig) *adactor.ChargerActor

// MasterOfPuppetsActor supervises the whole actor tree: IO actors for the
// meter, the MQTT broker and the chargers, one session actor per charger, and
// the power flow poller. It also runs the allocation step on every meter
// sample and routes MQTT commands to the owning session.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	powerSourceActor   *actor.PID
	mqttActor          *actor.PID
	powerFlowActor     *actor.PID
	chargerActors      map[string]*actor.PID
	sessionActors      map[string]*actor.PID
	sessionStatus      map[string]domain.SessionStatus

	store     port.Store
	planner   *service.SchedulePlanner
	allocator service.WeightedPowerAllocator

	powerSourceActorProvider PowerSourceActorProvider
	mqttActorProvider        MQTTActorProvider
	chargerActorProvider     ChargerActorProvider

	cronScheduler quartz.Scheduler
	cronCancel    context.CancelFunc

	logger *zap.Logger
}

type planRecomputeTick struct {
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	checksExpected int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, store port.Store, planner *service.SchedulePlanner,
	powerSourceActorProvider PowerSourceActorProvider, chargerActorProvider ChargerActorProvider,
	mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                   config,
		behavior:                 actor.NewBehavior(),
		stash:                    &Stash{},
		logger:                   ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:              &eventstream.EventStream{},
		store:                    store,
		planner:                  planner,
		powerSourceActorProvider: powerSourceActorProvider,
		chargerActorProvider:     chargerActorProvider,
		mqttActorProvider:        mqttActorProvider,
		chargerActors:            map[string]*actor.PID{},
		sessionActors:            map[string]*actor.PID{},
		sessionStatus:            map[string]domain.SessionStatus{},
		allocator: service.WeightedPowerAllocator{
			FastChargeOffsetWatt: config.Control.FastChargePowerOffsetWatt,
		},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset(state.expectedHealthChecks())

		// start PowerSource child
		powerSourceActorPID, err := state.startPowerSourceActor(ctx)
		if err != nil {
			panic(err)
		}
		state.powerSourceActor = powerSourceActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start one charger adapter and one session per configured charger
		for _, chargerCfg := range state.config.Chargers {
			chargerActorPID, err := state.startChargerActor(ctx, chargerCfg)
			if err != nil {
				panic(err)
			}
			state.chargerActors[chargerCfg.Id] = chargerActorPID

			sessionActorPID, err := state.startSessionActor(ctx, chargerCfg, chargerActorPID)
			if err != nil {
				panic(err)
			}
			state.sessionActors[chargerCfg.Id] = sessionActorPID
		}

		// start PowerFlow child
		powerFlowActorPID, err := state.startPowerFlowActor(ctx)
		if err != nil {
			panic(err)
		}
		state.powerFlowActor = powerFlowActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		if err := state.startPlanCron(ctx); err != nil {
			panic(err)
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.expectedHealthChecks())
		state.currentHealthCheck.respondTo = ctx.Sender()
		state.requestHealthCheck(ctx, state.powerSourceActor)
		state.requestHealthCheck(ctx, state.mqttActor)
		state.requestHealthCheck(ctx, state.powerFlowActor)
		for _, pid := range state.sessionActors {
			state.requestHealthCheck(ctx, pid)
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.PowerSample:
		state.allocate(ctx, msg)
	case domain.SessionStatus:
		state.logger.Debug("master@default SessionStatus",
			zap.String("charger", msg.ChargerId), zap.String("state", msg.State.String()))
		state.sessionStatus[msg.ChargerId] = msg
	case planRecomputeTick:
		state.logger.Debug("master@default planRecomputeTick")
		for _, pid := range state.sessionActors {
			ctx.Send(pid, domain.RecomputePlanRequest{})
		}
	case adactor.ParsedCommand:
		// redirect parsedCommand to the owning session actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err == nil && cmd != nil {
				if pcmd, ok := cmd.(domain.ChargerControlRequest); ok {
					if pid, ok := state.sessionActors[pcmd.ControlChargerId()]; ok {
						ctx.Send(pid, pcmd)
					}
				}
			}
		}
	case domain.GetSessionRequest:
		state.forwardToSession(ctx, msg.ChargerId, domain.GetSessionResponse{
			ActorResponseMixIn: unknownChargerError(msg.ChargerId),
		})
	case domain.GetScheduleRequest:
		state.forwardToSession(ctx, msg.ChargerId, domain.GetScheduleResponse{
			ActorResponseMixIn: unknownChargerError(msg.ChargerId),
		})
	case domain.SetScheduleRequest:
		state.forwardToSession(ctx, msg.ChargerId, domain.SetScheduleResponse{
			ActorResponseMixIn: unknownChargerError(msg.ChargerId),
		})
	case domain.ChargerControlRequest:
		state.forwardToSession(ctx, msg.ControlChargerId(), domain.ChargerChargeResponse{
			ChargerControlResponseMixIn: domain.ChargerControlResponseMixIn{
				ActorResponseMixIn: unknownChargerError(msg.ControlChargerId()),
			},
		})
	case *actor.Stopping:
		state.stopPlanCron()
	case *actor.Terminated:
		// if the power source fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, adactor.POWER_SOURCE_ACTOR_ID) {
			state.logger.Error("master@default power source terminated")
			panic(errors.New("power source terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// allocate splits the measured surplus among the sessions that want power.
// The sessions' own draw is added back first so the loop measures the surplus
// the chargers are already consuming.
func (state *MasterOfPuppetsActor) allocate(ctx actor.Context, sample domain.PowerSample) {
	var totalDraw float64
	var requests []domain.PowerRequest
	for _, status := range state.sessionStatus {
		totalDraw += status.DrawWatt
		if !status.WantsPower() {
			continue
		}
		requests = append(requests, domain.PowerRequest{
			ChargerId:    status.ChargerId,
			Weight:       status.Weight,
			MaxPowerWatt: status.MaxPowerWatt,
			FastCharge:   status.FastCharge,
		})
	}
	if len(requests) == 0 {
		return
	}

	baseNet := sample.NetPowerWatt - totalDraw
	grants := state.allocator.Allocate(baseNet, requests)
	state.logger.Debug("master@default allocate",
		zap.Float64("netWatt", sample.NetPowerWatt),
		zap.Float64("drawWatt", totalDraw),
		zap.Int("sessions", len(requests)))

	for chargerId, watts := range grants {
		if pid, ok := state.sessionActors[chargerId]; ok {
			ctx.Send(pid, domain.AllocatedPower{Watts: watts, At: sample.At})
		}
	}
}

func (state *MasterOfPuppetsActor) forwardToSession(ctx actor.Context, chargerId string, notFound domain.ActorResponse) {
	if pid, ok := state.sessionActors[chargerId]; ok {
		ctx.Forward(pid)
		return
	}
	if ctx.Sender() != nil {
		ctx.Respond(notFound)
	}
}

func (state *MasterOfPuppetsActor) requestHealthCheck(ctx actor.Context, pid *actor.PID) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      pid.Id,
			Healthy: false,
		}
	})
}

func (state *MasterOfPuppetsActor) expectedHealthChecks() int {
	return 3 + len(state.config.Chargers)
}

func (state *MasterOfPuppetsActor) startPowerSourceActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	powerSourceProps := actor.PropsFromProducer(func() actor.Actor {
		return state.powerSourceActorProvider()
	}, actor.WithSupervisor(supervisor))
	powerSourceActorPID, err := ctx.SpawnNamed(powerSourceProps, adactor.POWER_SOURCE_ACTOR_ID)
	if err != nil {
		return nil, err
	}

	return powerSourceActorPID, nil
}

func (state *MasterOfPuppetsActor) startChargerActor(ctx actor.Context, chargerCfg config.ChargerConfig) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	chargerProps := actor.PropsFromProducer(func() actor.Actor {
		return state.chargerActorProvider(chargerCfg)
	}, actor.WithSupervisor(supervisor))
	chargerActorPID, err := ctx.SpawnNamed(chargerProps, domain.ChargerActorId(chargerCfg.Id))
	if err != nil {
		return nil, err
	}

	return chargerActorPID, nil
}

func (state *MasterOfPuppetsActor) startSessionActor(ctx actor.Context, chargerCfg config.ChargerConfig, chargerActor *actor.PID) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	sessionProps := actor.PropsFromProducer(func() actor.Actor {
		return NewSessionActor(chargerCfg, state.config.Control, chargerActor, state.planner, state.store, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	sessionActorPID, err := ctx.SpawnNamed(sessionProps, domain.SessionActorId(chargerCfg.Id))
	if err != nil {
		return nil, err
	}

	return sessionActorPID, nil
}

func (state *MasterOfPuppetsActor) startPowerFlowActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewAllForOneStrategy(1, 10*time.Second, decider)

	powerFlowProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPowerFlowActor(&state.config, state.powerSourceActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	powerFlowActorPID, err := ctx.SpawnNamed(powerFlowProps, domain.ACTOR_ID_POWERFLOW)
	if err != nil {
		return nil, err
	}

	return powerFlowActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

// startPlanCron schedules the daily plan rollover through quartz. The job
// only pings the actor, the recompute happens inside the actor loop.
func (state *MasterOfPuppetsActor) startPlanCron(ctx actor.Context) error {
	sched := quartz.NewStdScheduler()
	trigger, err := quartz.NewCronTrigger(PLAN_RECOMPUTE_CRON)
	if err != nil {
		return err
	}

	system := ctx.ActorSystem()
	self := ctx.Self()
	recomputeJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		system.Root.Send(self, planRecomputeTick{})
		return true, nil
	})

	cronCtx, cancel := context.WithCancel(context.Background())
	sched.Start(cronCtx)
	if err := sched.ScheduleJob(quartz.NewJobDetail(recomputeJob, quartz.NewJobKey("planRecompute")), trigger); err != nil {
		cancel()
		return err
	}
	state.cronScheduler = sched
	state.cronCancel = cancel
	return nil
}

func (state *MasterOfPuppetsActor) stopPlanCron() {
	if state.cronScheduler != nil {
		state.cronScheduler.Stop()
		state.cronScheduler = nil
	}
	if state.cronCancel != nil {
		state.cronCancel()
		state.cronCancel = nil
	}
}

func unknownChargerError(chargerId string) domain.ActorResponseMixIn {
	return domain.ActorResponseMixIn{
		ResponseError: fmt.Errorf("unknown charger: %s", chargerId),
	}
}

func (state *healthCheckResult) reset(expected int) {
	state.healthy = map[string]bool{}
	state.checksReceived = 0
	state.checksExpected = expected
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.checksExpected
}

func (state *healthCheckResult) allHealthy() bool {
	if len(state.healthy) < state.checksExpected {
		return false
	}
	for _, ok := range state.healthy {
		if !ok {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
