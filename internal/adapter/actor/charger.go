package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"
	"github.com/berfenger/solarcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const chargerOpTimeout = 10 * time.Second

// ChargerActor serializes access to one charger backend. Commands run as
// background tasks so a slow backend never blocks the mailbox thread, and
// concurrent requests are stashed until the running one finishes.
type ChargerActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	chargerId string
	adapter   port.ChargerAdapter
	logger    *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewChargerActor(chargerId string, adapter port.ChargerAdapter, logger *zap.Logger) *ChargerActor {
	act := &ChargerActor{
		chargerId: chargerId,
		adapter:   adapter,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ChargerActorId(chargerId), logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ChargerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ChargerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("charger@starting started")
		if err := state.adapter.Open(context.Background()); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		_ = state.adapter.Close(context.Background())
	default:
		state.logger.Debug("charger@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ChargerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("charger@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ChargerActorId(state.chargerId),
			Healthy: true,
			State:   "idle",
		})
	case domain.ChargerStateRequest:
		state.logger.Debug("charger@default: ChargerStateRequest")
		runChargerTask(state, ctx, msg, func(opCtx context.Context) (*domain.ChargerStateResponse, error) {
			chState, err := state.adapter.State(opCtx)
			if err != nil {
				return nil, err
			}
			return &domain.ChargerStateResponse{State: chState}, nil
		}, func(err error) domain.ChargerStateResponse {
			return domain.ChargerStateResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
	case domain.ChargerSetCurrentRequest:
		state.logger.Debug("charger@default: ChargerSetCurrentRequest", zap.Uint("amps", msg.Amps))
		runChargerTask(state, ctx, msg, func(opCtx context.Context) (*domain.ChargerSetCurrentResponse, error) {
			if err := state.adapter.SetCurrent(opCtx, msg.Amps); err != nil {
				return nil, err
			}
			return &domain.ChargerSetCurrentResponse{Amps: msg.Amps}, nil
		}, func(err error) domain.ChargerSetCurrentResponse {
			return domain.ChargerSetCurrentResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
	case domain.ChargerStartChargeRequest:
		state.logger.Debug("charger@default: ChargerStartChargeRequest")
		runChargerTask(state, ctx, msg, func(opCtx context.Context) (*domain.ChargerStartChargeResponse, error) {
			if err := state.adapter.StartCharge(opCtx); err != nil {
				return nil, err
			}
			return &domain.ChargerStartChargeResponse{}, nil
		}, func(err error) domain.ChargerStartChargeResponse {
			return domain.ChargerStartChargeResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
	case domain.ChargerStopChargeRequest:
		state.logger.Debug("charger@default: ChargerStopChargeRequest")
		runChargerTask(state, ctx, msg, func(opCtx context.Context) (*domain.ChargerStopChargeResponse, error) {
			if err := state.adapter.StopCharge(opCtx); err != nil {
				return nil, err
			}
			return &domain.ChargerStopChargeResponse{}, nil
		}, func(err error) domain.ChargerStopChargeResponse {
			return domain.ChargerStopChargeResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
	case domain.ChargerSetChargeLimitRequest:
		state.logger.Debug("charger@default: ChargerSetChargeLimitRequest", zap.Uint("limit", msg.LimitPct))
		runChargerTask(state, ctx, msg, func(opCtx context.Context) (*domain.ChargerSetChargeLimitResponse, error) {
			if err := state.adapter.SetChargeLimit(opCtx, msg.LimitPct); err != nil {
				return nil, err
			}
			return &domain.ChargerSetChargeLimitResponse{}, nil
		}, func(err error) domain.ChargerSetChargeLimitResponse {
			return domain.ChargerSetChargeLimitResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
	case domain.ChargerWakeUpRequest:
		state.logger.Debug("charger@default: ChargerWakeUpRequest")
		runChargerTask(state, ctx, msg, func(opCtx context.Context) (*domain.ChargerWakeUpResponse, error) {
			if err := state.adapter.WakeUp(opCtx); err != nil {
				return nil, err
			}
			return &domain.ChargerWakeUpResponse{}, nil
		}, func(err error) domain.ChargerWakeUpResponse {
			return domain.ChargerWakeUpResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
	case *actor.Stopping:
		_ = state.adapter.Close(context.Background())
	default:
		state.logger.Debug("charger@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ChargerActor) WaitingIO(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("charger@waitingIO backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		_ = state.adapter.Close(context.Background())
	default:
		state.logger.Debug("charger@waitingIO stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func runChargerTask[T any](state *ChargerActor, ctx actor.Context, req domain.ActorRequest,
	fn func(context.Context) (*T, error), recover func(error) T) {
	sender := actorutil.ForRequest(req).ReplyTo(ctx)
	actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*T, error) {
		opCtx, cancel := context.WithTimeout(context.Background(), chargerOpTimeout)
		defer cancel()
		return fn(opCtx)
	}), mapTaskResult[T](sender)).Recover(func(err error) backgroundTaskResult {
		return backgroundTaskResult{
			message: recover(err),
			replyTo: sender,
		}
	}).WithTimeout(chargerOpTimeout + time.Second).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WaitingIO)
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
