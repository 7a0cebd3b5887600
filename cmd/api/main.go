package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/solarcharge2mqtt/internal/adapter/actor"
	"github.com/berfenger/solarcharge2mqtt/internal/adapter/charger"
	"github.com/berfenger/solarcharge2mqtt/internal/adapter/powermeter"
	"github.com/berfenger/solarcharge2mqtt/internal/adapter/solar"
	"github.com/berfenger/solarcharge2mqtt/internal/adapter/store"
	"github.com/berfenger/solarcharge2mqtt/internal/config"
	"github.com/berfenger/solarcharge2mqtt/internal/core/actor"
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"
	"github.com/berfenger/solarcharge2mqtt/internal/core/service"
	"github.com/berfenger/solarcharge2mqtt/internal/server"
	"github.com/berfenger/solarcharge2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// persistent store for schedules, plans and session snapshots
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	planner, err := buildPlanner(cfg, logger)
	if err != nil {
		panic(err)
	}

	powerSourceProv, err := powerSourceActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, st, planner, powerSourceProv,
			chargerActorProvider(cfg, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SOLARCHARGE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SOLARCHARGE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("solarcharge")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	switch cfg.PowerMeter.Source {
	case config.POWER_SOURCE_SUNSPEC_MODBUS, config.POWER_SOURCE_MQTT:
	default:
		return nil, fmt.Errorf("config param power_meter.source must be one of %s, %s",
			config.POWER_SOURCE_SUNSPEC_MODBUS, config.POWER_SOURCE_MQTT)
	}
	if cfg.PowerMeter.PollIntervalMillis < 1000 {
		return nil, errors.New("config param power_meter.poll_interval_millis should be >= 1000")
	}
	if cfg.Control.InitialCurrent < 1 {
		return nil, errors.New("config param control.initial_current should be >= 1")
	}
	if cfg.Control.SettleDelaySeconds < 10 {
		return nil, errors.New("config param control.settle_delay_seconds should be >= 10")
	}

	if len(cfg.Chargers) == 0 {
		return nil, errors.New("at least one charger must be configured")
	}
	seen := map[string]bool{}
	for i := range cfg.Chargers {
		c := &cfg.Chargers[i]
		id, err := config.CheckChargerId(c.Id)
		if err != nil {
			return nil, fmt.Errorf("charger %q: %w", c.Id, err)
		}
		c.Id = id
		if seen[id] {
			return nil, fmt.Errorf("duplicate charger id %q", id)
		}
		seen[id] = true
		if c.Backend != config.CHARGER_BACKEND_MQTT {
			return nil, fmt.Errorf("charger %q: backend must be %s", c.Id, config.CHARGER_BACKEND_MQTT)
		}
		if c.BridgeTopic == "" {
			return nil, fmt.Errorf("charger %q: bridge_topic is required", c.Id)
		}
		if c.EffectiveVoltage <= 0 {
			c.EffectiveVoltage = 230
		}
		if c.MinCurrent == 0 {
			c.MinCurrent = 6
		}
		if c.MaxCurrent == 0 {
			c.MaxCurrent = 16
		}
		if c.MinCurrent > c.MaxCurrent {
			return nil, fmt.Errorf("charger %q: min_current must be <= max_current", c.Id)
		}
		if c.Weight <= 0 {
			c.Weight = 1
		}
		if c.ChargeSpeedPctPerHour <= 0 {
			c.ChargeSpeedPctPerHour = 10
		}
		if c.PollIntervalMillis < 500 {
			c.PollIntervalMillis = 5000
		}
		if c.MaxChargeLimitPct == 0 {
			c.MaxChargeLimitPct = 100
		}
		if c.MaxChargeLimitPct > 100 {
			return nil, fmt.Errorf("charger %q: max_charge_limit_pct must be <= 100", c.Id)
		}
		if c.MinChargeLimitPct > c.MaxChargeLimitPct {
			return nil, fmt.Errorf("charger %q: min_charge_limit_pct must be <= max_charge_limit_pct", c.Id)
		}
	}

	// validate schedule time windows
	if cfg.Schedule.OffPeakFrom != "" || cfg.Schedule.OffPeakTo != "" {
		if _, _, err := config.ParseClockTime(cfg.Schedule.OffPeakFrom); err != nil {
			return nil, fmt.Errorf("config param schedule.off_peak_from: %w", err)
		}
		if _, _, err := config.ParseClockTime(cfg.Schedule.OffPeakTo); err != nil {
			return nil, fmt.Errorf("config param schedule.off_peak_to: %w", err)
		}
	}
	if _, _, err := config.ParseRainyWindow(cfg.Schedule.RainyFrom, cfg.Schedule.RainyTo); err != nil {
		return nil, fmt.Errorf("config param schedule.rainy window: %w", err)
	}

	return &cfg, nil
}

func buildPlanner(cfg *config.Config, logger *zap.Logger) (*service.SchedulePlanner, error) {
	var offPeak domain.ClockTimePeriod
	if cfg.Schedule.OffPeakFrom != "" && cfg.Schedule.OffPeakTo != "" {
		fh, fm, err := config.ParseClockTime(cfg.Schedule.OffPeakFrom)
		if err != nil {
			return nil, err
		}
		th, tm, err := config.ParseClockTime(cfg.Schedule.OffPeakTo)
		if err != nil {
			return nil, err
		}
		offPeak = domain.ClockTimePeriod{
			From: domain.ClockTime{Hour: fh, Minute: fm},
			To:   domain.ClockTime{Hour: th, Minute: tm},
		}
	}

	rainyFrom, rainyTo, err := config.ParseRainyWindow(cfg.Schedule.RainyFrom, cfg.Schedule.RainyTo)
	if err != nil {
		return nil, err
	}

	var solarEvents port.SolarEvents
	if cfg.Location.Defined() {
		solarEvents = solar.NewSunPosition(cfg.Location.Latitude, cfg.Location.Longitude)
	}

	return &service.SchedulePlanner{
		ElevationTriggerDegrees: cfg.Schedule.ElevationTriggerDegrees,
		OffPeak:                 offPeak,
		ReduceLimitDifference:   cfg.Schedule.ReduceLimitDifference,
		RainyFrom:               rainyFrom,
		RainyTo:                 rainyTo,
		Solar:                   solarEvents,
		Logger:                  logger,
	}, nil
}

func powerSourceActorProvider(cfg *config.Config, logger *zap.Logger) (actor.PowerSourceActorProvider, error) {

	var source port.PowerSource
	switch cfg.PowerMeter.Source {
	case config.POWER_SOURCE_SUNSPEC_MODBUS:
		s, err := powermeter.CreateSunSpecPowerSource(cfg.PowerMeter, logger)
		if err != nil {
			return nil, err
		}
		source = s
	case config.POWER_SOURCE_MQTT:
		source = powermeter.NewMQTTPowerSource(cfg.MQTT, cfg.PowerMeter.Topic)
	}

	return func() *adactor.PowerSourceActor {
		return adactor.NewPowerSourceActor(source, logger)
	}, nil
}

func chargerActorProvider(cfg *config.Config, logger *zap.Logger) actor.ChargerActorProvider {
	return func(chargerCfg config.ChargerConfig) *adactor.ChargerActor {
		return adactor.NewChargerActor(chargerCfg.Id, charger.NewMQTTBridgeCharger(cfg.MQTT, chargerCfg), logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "solarcharge")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("power_meter.source", config.POWER_SOURCE_SUNSPEC_MODBUS)
	viper.SetDefault("power_meter.poll_interval_millis", 3000)
	viper.SetDefault("control.settle_delay_seconds", 60)
	viper.SetDefault("control.initial_current", 6)
	viper.SetDefault("control.deadband_bias", 0.3)
	viper.SetDefault("control.fast_charge_power_offset_watt", 0)
	viper.SetDefault("schedule.elevation_trigger_degrees", 10)
	viper.SetDefault("store.path", "solarcharge.db")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
