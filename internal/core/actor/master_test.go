package actor

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	adactor "github.com/berfenger/solarcharge2mqtt/internal/adapter/actor"
	"github.com/berfenger/solarcharge2mqtt/internal/adapter/charger"
	"github.com/berfenger/solarcharge2mqtt/internal/adapter/powermeter"
	"github.com/berfenger/solarcharge2mqtt/internal/adapter/store"
	"github.com/berfenger/solarcharge2mqtt/internal/config"
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/service"
	"github.com/berfenger/solarcharge2mqtt/internal/util"
	"github.com/berfenger/solarcharge2mqtt/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "master_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	planner := &service.SchedulePlanner{
		Logger: logger,
	}

	meter := sunspec.CreateTestACMeterReader(-4000)
	scripted := charger.NewScriptedCharger()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, st, planner, func() *adactor.PowerSourceActor {
			return adactor.NewPowerSourceActor(powermeter.NewSunSpecPowerSource(meter), logger)
		}, func(chargerCfg config.ChargerConfig) *adactor.ChargerActor {
			return adactor.NewChargerActor(chargerCfg.Id, scripted, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	// session requests are routed by charger id
	res, err = context.RequestFuture(pid, domain.GetSessionRequest{ChargerId: "car"}, 5*time.Second).Result()
	require.NoError(t, err)
	sessionResp, ok := res.(domain.GetSessionResponse)
	require.True(t, ok)
	require.False(t, sessionResp.HasResponseError())
	assert.Equal(t, "car", sessionResp.Session.ChargerId)
	assert.Equal(t, domain.SessionIdle, sessionResp.Session.State)

	// unknown charger ids are rejected
	res, err = context.RequestFuture(pid, domain.GetSessionRequest{ChargerId: "nope"}, 5*time.Second).Result()
	require.NoError(t, err)
	sessionResp, ok = res.(domain.GetSessionResponse)
	require.True(t, ok)
	assert.True(t, sessionResp.HasResponseError())

	context.Stop(pid)

	as.Shutdown()
}
