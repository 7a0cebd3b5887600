package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/config"
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/events"
	. "github.com/berfenger/solarcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// PowerFlowActor polls the grid meter and fans the readings out: sensor
// events to the event stream, the raw sample to the master for allocation.
type PowerFlowActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	powerSourceActor *actor.PID
	config           *config.Config
	eventStream      *eventstream.EventStream

	logger *zap.Logger
}

type powerFlowTick struct {
}

func NewPowerFlowActor(config *config.Config, powerSourceActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *PowerFlowActor {
	act := &PowerFlowActor{
		config:           config,
		powerSourceActor: powerSourceActor,
		behavior:         actor.NewBehavior(),
		stash:            &Stash{},
		logger:           ActorLogger(domain.ACTOR_ID_POWERFLOW, logger),
		eventStream:      eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PowerFlowActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PowerFlowActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("powerflow@starting started")

		if state.config.PowerMeter.PollIntervalMillis > 0 {
			state.scheduler = scheduler.NewTimerScheduler(ctx)
			state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), powerFlowTick{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("powerflow@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PowerFlowActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("powerflow@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POWERFLOW,
			Healthy: true,
			State:   "idle",
		})
	case powerFlowTick:
		state.logger.Debug("powerflow@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.powerSourceActor, domain.GetNetPowerRequest{}, 6*time.Second), func(err error) any {
			return domain.GetNetPowerResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})

		// schedule next tick
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), powerFlowTick{})
		state.behavior.BecomeStacked(state.WaitingPFReceive)
	default:
		state.logger.Debug("powerflow@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PowerFlowActor) WaitingPFReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetNetPowerResponse:
		if msg.HasResponseError() {
			state.logger.Error("powerflow@waiting GetNetPowerResponse error", zap.Error(msg.GetResponseError()))
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("powerflow@waiting GetNetPowerResponse",
			zap.Float64("watt", msg.Sample.NetPowerWatt))

		for _, ev := range events.GridPowerToUpdateEvents(msg.Sample.NetPowerWatt) {
			state.eventStream.Publish(ev)
		}
		if ctx.Parent() != nil {
			ctx.Send(ctx.Parent(), msg.Sample)
		}

		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("powerflow@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PowerFlowActor) pollInterval() time.Duration {
	return time.Duration(state.config.PowerMeter.PollIntervalMillis) * time.Millisecond
}
