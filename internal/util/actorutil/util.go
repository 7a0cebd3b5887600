package actorutil

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/events"
	"github.com/berfenger/solarcharge2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps an inbound MQTT command to a charger
// control request. Entity ids are "{chargerId}_{suffix}", so unknown or
// malformed ids map to nil without error.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	chargerId, suffix, ok := events.ParseChargerEntityId(cmd.DeviceId)
	if !ok {
		return nil, nil
	}
	mixIn := domain.ChargerControlRequestMixIn{ChargerId: chargerId}
	enable := cmd.Payload == mqtt.MQTT_PAYLOAD_ON

	switch suffix {
	case events.SWITCH_SUFFIX_CHARGE:
		return domain.ChargerChargeRequest{
			ChargerControlRequestMixIn: mixIn,
			Enable:                     enable,
		}, nil
	case events.SWITCH_SUFFIX_FAST_CHARGE:
		return domain.ChargerFastChargeRequest{
			ChargerControlRequestMixIn: mixIn,
			Enable:                     enable,
		}, nil
	case events.SWITCH_SUFFIX_SCHEDULE_ENABLE:
		return domain.ChargerScheduleEnableRequest{
			ChargerControlRequestMixIn: mixIn,
			Enable:                     enable,
		}, nil
	case events.SWITCH_SUFFIX_SUN_TRIGGER:
		return domain.ChargerSunTriggerRequest{
			ChargerControlRequestMixIn: mixIn,
			Enable:                     enable,
		}, nil
	case events.SWITCH_SUFFIX_CALIBRATE:
		return domain.ChargerCalibrateRequest{
			ChargerControlRequestMixIn: mixIn,
			Enable:                     enable,
		}, nil
	case events.INPUT_NUMBER_SUFFIX_CHARGE_LIMIT:
		value, err := strconv.ParseUint(cmd.Payload, 10, 8)
		if err != nil || value > 100 {
			return nil, err
		}
		return domain.ChargerSetLimitRequest{
			ChargerControlRequestMixIn: mixIn,
			LimitPct:                   uint(value),
		}, nil
	case events.INPUT_NUMBER_SUFFIX_MIN_CURRENT:
		value, err := strconv.ParseUint(cmd.Payload, 10, 8)
		if err != nil {
			return nil, err
		}
		return domain.ChargerSetMinCurrentRequest{
			ChargerControlRequestMixIn: mixIn,
			Amps:                       uint(value),
		}, nil
	case events.INPUT_NUMBER_SUFFIX_MAX_CURRENT:
		value, err := strconv.ParseUint(cmd.Payload, 10, 8)
		if err != nil {
			return nil, err
		}
		return domain.ChargerSetMaxCurrentRequest{
			ChargerControlRequestMixIn: mixIn,
			Amps:                       uint(value),
		}, nil
	case events.INPUT_NUMBER_SUFFIX_WEIGHT:
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil || value < 0 {
			return nil, err
		}
		return domain.ChargerSetWeightRequest{
			ChargerControlRequestMixIn: mixIn,
			Weight:                     value,
		}, nil
	}
	return nil, nil
}
