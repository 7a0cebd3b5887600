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

const (
	POWER_SOURCE_ACTOR_ID = "powersource"

	powerSourceOpTimeout = 5 * time.Second
)

// PowerSourceActor owns the grid meter connection and answers net power
// queries. Reads run as background tasks with a stacked waiting state.
type PowerSourceActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	source   port.PowerSource
	logger   *zap.Logger
}

func NewPowerSourceActor(source port.PowerSource, logger *zap.Logger) *PowerSourceActor {
	act := &PowerSourceActor{
		source:   source,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(POWER_SOURCE_ACTOR_ID, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PowerSourceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PowerSourceActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("powersource@starting started")
		if err := state.source.Open(context.Background()); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		_ = state.source.Close(context.Background())
	default:
		state.logger.Debug("powersource@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PowerSourceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("powersource@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      POWER_SOURCE_ACTOR_ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetNetPowerRequest:
		state.logger.Debug("powersource@default: GetNetPowerRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.GetNetPowerResponse, error) {
			opCtx, cancel := context.WithTimeout(context.Background(), powerSourceOpTimeout)
			defer cancel()
			sample, err := state.source.NetPower(opCtx)
			if err != nil {
				return nil, err
			}
			return &domain.GetNetPowerResponse{Sample: sample}, nil
		}), mapTaskResult[domain.GetNetPowerResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetNetPowerResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				},
				replyTo: sender,
			}
		}).WithTimeout(powerSourceOpTimeout + time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingIO)
	case *actor.Stopping:
		_ = state.source.Close(context.Background())
	default:
		state.logger.Debug("powersource@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PowerSourceActor) WaitingIO(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("powersource@waitingIO backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		_ = state.source.Close(context.Background())
	default:
		state.logger.Debug("powersource@waitingIO stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}
