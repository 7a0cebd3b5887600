package actor

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/solarcharge2mqtt/internal/adapter/actor"
	"github.com/berfenger/solarcharge2mqtt/internal/adapter/charger"
	"github.com/berfenger/solarcharge2mqtt/internal/adapter/store"
	"github.com/berfenger/solarcharge2mqtt/internal/config"
	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/events"
	"github.com/berfenger/solarcharge2mqtt/internal/core/service"
	"github.com/berfenger/solarcharge2mqtt/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sessionTestRig struct {
	context  *actor.RootContext
	shutdown func()
	scripted *charger.ScriptedCharger
	pid      *actor.PID
	events   *eventstream.EventStream
}

// sessionRigSetup is handed to test tweaks before the actor spawns, so a
// test can adjust the config or pre-seed the store.
type sessionRigSetup struct {
	cfg     *config.Config
	planner *service.SchedulePlanner
	store   *store.SQLiteStore
}

func startSessionRig(t *testing.T, initial domain.ChargerState, tweaks ...func(*sessionRigSetup)) *sessionTestRig {
	cfg := util.LoadTestConfig()

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "session_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	planner := &service.SchedulePlanner{
		Logger: logger,
	}

	setup := &sessionRigSetup{cfg: &cfg, planner: planner, store: st}
	for _, tweak := range tweaks {
		tweak(setup)
	}
	chargerCfg := cfg.Chargers[0]

	as := actor.NewActorSystem()
	context := as.Root

	scripted := charger.NewScriptedCharger()
	scripted.SetState(initial)

	chargerProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewChargerActor(chargerCfg.Id, scripted, logger)
	})
	chargerPID := context.Spawn(chargerProps)

	es := &eventstream.EventStream{}
	sessionProps := actor.PropsFromProducer(func() actor.Actor {
		return NewSessionActor(chargerCfg, cfg.Control, chargerPID, setup.planner, st, es, logger)
	})
	pid := context.Spawn(sessionProps)

	return &sessionTestRig{
		context:  context,
		shutdown: as.Shutdown,
		scripted: scripted,
		pid:      pid,
		events:   es,
	}
}

func (rig *sessionTestRig) session(t *testing.T) domain.GetSessionResponse {
	res, err := rig.context.RequestFuture(rig.pid, domain.GetSessionRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetSessionResponse)
	require.True(t, ok)
	require.False(t, resp.HasResponseError())
	return resp
}

// sessionStateRecorder collects the session state values published on the
// event stream for one charger.
type sessionStateRecorder struct {
	mu     sync.Mutex
	values []string
}

func recordSessionStates(es *eventstream.EventStream, chargerId string) *sessionStateRecorder {
	rec := &sessionStateRecorder{}
	entityId := events.ChargerEntityId(chargerId, events.SENSOR_SUFFIX_SESSION_STATE)
	es.Subscribe(func(evt interface{}) {
		ev, ok := evt.(domain.TextSensorUpdateEvent)
		if !ok || ev.Id != entityId {
			return
		}
		rec.mu.Lock()
		rec.values = append(rec.values, ev.Value)
		rec.mu.Unlock()
	})
	return rec
}

func (r *sessionStateRecorder) saw(value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.values {
		if v == value {
			return true
		}
	}
	return false
}

func TestSessionChargePauseResume(t *testing.T) {

	soc := 50.0
	rig := startSessionRig(t, domain.ChargerState{
		Connected: true,
		SoC:       &soc,
	})
	defer rig.shutdown()

	time.Sleep(2 * time.Second)

	// plugged vehicle with no schedule stays connected
	resp := rig.session(t)
	assert.Equal(t, domain.SessionConnected, resp.Session.State)

	// user starts a charge
	res, err := rig.context.RequestFuture(rig.pid, domain.ChargerChargeRequest{
		ChargerControlRequestMixIn: domain.ChargerControlRequestMixIn{ChargerId: "car"},
		Enable:                     true,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	chargeResp, ok := res.(domain.ChargerChargeResponse)
	require.True(t, ok)
	assert.True(t, chargeResp.Changed)

	time.Sleep(1 * time.Second)

	resp = rig.session(t)
	assert.Equal(t, domain.SessionCharging, resp.Session.State)
	assert.Equal(t, domain.StartedByUser, resp.Session.StartedBy)
	assert.GreaterOrEqual(t, rig.scripted.StartCalls(), 1)
	require.NotEmpty(t, rig.scripted.AmpsCalls())
	assert.Equal(t, uint(6), rig.scripted.AmpsCalls()[0])

	// not enough surplus for the minimum current: pause
	rig.context.Send(rig.pid, domain.AllocatedPower{Watts: 800, At: time.Now()})
	time.Sleep(1 * time.Second)

	resp = rig.session(t)
	assert.Equal(t, domain.SessionPaused, resp.Session.State)
	assert.GreaterOrEqual(t, rig.scripted.StopCalls(), 1)

	// surplus back: resume at the last commanded current
	rig.context.Send(rig.pid, domain.AllocatedPower{Watts: 2000, At: time.Now()})
	time.Sleep(1 * time.Second)

	resp = rig.session(t)
	assert.Equal(t, domain.SessionCharging, resp.Session.State)
	assert.Equal(t, uint(6), resp.Session.CurrentAmps)
	assert.GreaterOrEqual(t, rig.scripted.StartCalls(), 2)

	// user stops the charge
	res, err = rig.context.RequestFuture(rig.pid, domain.ChargerChargeRequest{
		ChargerControlRequestMixIn: domain.ChargerControlRequestMixIn{ChargerId: "car"},
		Enable:                     false,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	chargeResp, ok = res.(domain.ChargerChargeResponse)
	require.True(t, ok)
	assert.True(t, chargeResp.Changed)

	time.Sleep(1 * time.Second)

	resp = rig.session(t)
	assert.Equal(t, domain.SessionConnected, resp.Session.State)
	assert.GreaterOrEqual(t, rig.scripted.StopCalls(), 2)

	rig.context.Stop(rig.pid)
	time.Sleep(500 * time.Millisecond)
}

func TestSessionResumeKeepsLastCurrent(t *testing.T) {

	soc := 50.0
	rig := startSessionRig(t, domain.ChargerState{
		Connected: true,
		SoC:       &soc,
	}, func(s *sessionRigSetup) {
		// start high so the resume level is distinguishable from the minimum
		s.cfg.Control.InitialCurrent = 10
	})
	defer rig.shutdown()

	time.Sleep(2 * time.Second)

	res, err := rig.context.RequestFuture(rig.pid, domain.ChargerChargeRequest{
		ChargerControlRequestMixIn: domain.ChargerControlRequestMixIn{ChargerId: "car"},
		Enable:                     true,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	chargeResp, ok := res.(domain.ChargerChargeResponse)
	require.True(t, ok)
	require.True(t, chargeResp.Changed)

	time.Sleep(1 * time.Second)

	resp := rig.session(t)
	require.Equal(t, domain.SessionCharging, resp.Session.State)
	require.Equal(t, uint(10), resp.Session.CurrentAmps)

	// a cloud kills the surplus
	rig.context.Send(rig.pid, domain.AllocatedPower{Watts: 800, At: time.Now()})
	time.Sleep(1 * time.Second)
	require.Equal(t, domain.SessionPaused, rig.session(t).Session.State)

	// budget back at 10 A worth: resume where the pause left off, not at
	// the minimum
	rig.context.Send(rig.pid, domain.AllocatedPower{Watts: 2400, At: time.Now()})
	time.Sleep(1 * time.Second)

	resp = rig.session(t)
	assert.Equal(t, domain.SessionCharging, resp.Session.State)
	assert.Equal(t, uint(10), resp.Session.CurrentAmps)

	// a second pause with a smaller budget afterwards clamps the resume
	rig.context.Send(rig.pid, domain.AllocatedPower{Watts: 800, At: time.Now()})
	time.Sleep(1 * time.Second)
	require.Equal(t, domain.SessionPaused, rig.session(t).Session.State)

	rig.context.Send(rig.pid, domain.AllocatedPower{Watts: 1900, At: time.Now()})
	time.Sleep(1 * time.Second)

	resp = rig.session(t)
	assert.Equal(t, domain.SessionCharging, resp.Session.State)
	assert.Equal(t, uint(8), resp.Session.CurrentAmps)

	rig.context.Stop(rig.pid)
	time.Sleep(500 * time.Millisecond)
}

func TestSessionPlugInStartsWhenScheduleDisabled(t *testing.T) {

	rig := startSessionRig(t, domain.ChargerState{
		Connected: false,
	})
	defer rig.shutdown()

	time.Sleep(2 * time.Second)
	require.Equal(t, domain.SessionIdle, rig.session(t).Session.State)

	// scheduling off: plugging in is the start trigger
	res, err := rig.context.RequestFuture(rig.pid, domain.ChargerScheduleEnableRequest{
		ChargerControlRequestMixIn: domain.ChargerControlRequestMixIn{ChargerId: "car"},
		Enable:                     false,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	_, ok := res.(domain.ChargerScheduleEnableResponse)
	require.True(t, ok)

	soc := 40.0
	rig.scripted.SetSoC(soc)
	rig.scripted.SetConnected(true)
	time.Sleep(2 * time.Second)

	resp := rig.session(t)
	assert.Equal(t, domain.SessionCharging, resp.Session.State)
	assert.Equal(t, domain.StartedByPlugIn, resp.Session.StartedBy)
	assert.GreaterOrEqual(t, rig.scripted.StartCalls(), 1)
	require.NotEmpty(t, rig.scripted.AmpsCalls())
	assert.Equal(t, uint(6), rig.scripted.AmpsCalls()[0])

	rig.context.Stop(rig.pid)
	time.Sleep(500 * time.Millisecond)
}

func TestSessionSchedulePlan(t *testing.T) {

	soc := 50.0
	rig := startSessionRig(t, domain.ChargerState{
		Connected: true,
		SoC:       &soc,
	})
	defer rig.shutdown()

	time.Sleep(2 * time.Second)

	// completion ~6h away, every day, target 80. At 7.5%/h and SoC 50 the
	// required time is 4h, so the planned start lands ~2h from now.
	completion := time.Now().Add(6 * time.Hour)
	entry := domain.ScheduleEntry{
		Enabled:        true,
		TargetLimitPct: 80,
		Completion:     &domain.ClockTime{Hour: completion.Hour(), Minute: completion.Minute()},
	}
	var schedule domain.WeeklySchedule
	for day := time.Sunday; day <= time.Saturday; day++ {
		schedule.SetEntry(day, entry)
	}

	res, err := rig.context.RequestFuture(rig.pid, domain.SetScheduleRequest{Schedule: schedule}, 2*time.Second).Result()
	require.NoError(t, err)
	setResp, ok := res.(domain.SetScheduleResponse)
	require.True(t, ok)
	require.False(t, setResp.HasResponseError())

	time.Sleep(1 * time.Second)

	resp := rig.session(t)
	assert.Equal(t, domain.SessionScheduled, resp.Session.State)
	require.NotNil(t, resp.Plan)
	assert.Equal(t, uint(80), resp.Plan.TargetLimitPct)
	assert.InDelta(t, 4.0, resp.Plan.RequiredHours, 0.1)
	require.True(t, resp.Plan.HasDeadline())

	// just-in-time: planned start = deadline - required time
	wantStart := resp.Plan.Deadline.Add(-4 * time.Hour)
	assert.WithinDuration(t, wantStart, resp.Plan.PlannedStart, 2*time.Minute)

	// disabling the schedule starts the plug-in charge right away
	res, err = rig.context.RequestFuture(rig.pid, domain.ChargerScheduleEnableRequest{
		ChargerControlRequestMixIn: domain.ChargerControlRequestMixIn{ChargerId: "car"},
		Enable:                     false,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	_, ok = res.(domain.ChargerScheduleEnableResponse)
	require.True(t, ok)

	time.Sleep(500 * time.Millisecond)

	resp = rig.session(t)
	assert.Equal(t, domain.SessionCharging, resp.Session.State)
	assert.Equal(t, domain.StartedByPlugIn, resp.Session.StartedBy)

	rig.context.Stop(rig.pid)
	time.Sleep(500 * time.Millisecond)
}

func TestSessionWindowEndCompletes(t *testing.T) {

	soc := 50.0
	rig := startSessionRig(t, domain.ChargerState{
		Connected:   true,
		Charging:    true,
		CurrentAmps: 8,
		SoC:         &soc,
	}, func(s *sessionRigSetup) {
		// a restored window session whose planned end has already passed
		startedAt := time.Now().Add(-2 * time.Hour)
		plannedEnd := time.Now().Add(-time.Minute)
		require.NoError(t, s.store.SaveSessionSnapshot(domain.ChargeSession{
			ChargerId:      "car",
			State:          domain.SessionCharging,
			StartedBy:      domain.StartedBySchedule,
			TargetLimitPct: 80,
			StartedAt:      &startedAt,
			PlannedEnd:     &plannedEnd,
		}))
	})
	defer rig.shutdown()

	rec := recordSessionStates(rig.events, "car")

	// the first poll after the restore notices the closed window
	time.Sleep(3 * time.Second)

	assert.True(t, rec.saw("completed"), "the expired window must complete the session")
	resp := rig.session(t)
	assert.Equal(t, domain.SessionConnected, resp.Session.State)
	assert.GreaterOrEqual(t, rig.scripted.StopCalls(), 1)

	rig.context.Stop(rig.pid)
	time.Sleep(500 * time.Millisecond)
}

func TestSessionAbortsAfterRepeatedFailures(t *testing.T) {

	soc := 50.0
	rig := startSessionRig(t, domain.ChargerState{
		Connected: true,
		SoC:       &soc,
	})
	defer rig.shutdown()

	time.Sleep(2 * time.Second)
	require.Equal(t, domain.SessionConnected, rig.session(t).Session.State)

	rec := recordSessionStates(rig.events, "car")

	// charger IO goes dark right before the user starts a charge
	ioErr := errors.New("charger io down")
	rig.scripted.SetCommandError(ioErr)
	rig.scripted.SetStateError(ioErr)

	res, err := rig.context.RequestFuture(rig.pid, domain.ChargerChargeRequest{
		ChargerControlRequestMixIn: domain.ChargerControlRequestMixIn{ChargerId: "car"},
		Enable:                     true,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	_, ok := res.(domain.ChargerChargeResponse)
	require.True(t, ok)

	// the start commands fail at once, the retries and failed polls push the
	// failure run over the limit
	time.Sleep(4 * time.Second)

	assert.True(t, rec.saw("aborted"), "a run of charger failures must abort the session")
	resp := rig.session(t)
	assert.NotEqual(t, domain.SessionCharging, resp.Session.State)
	assert.NotEqual(t, domain.SessionPaused, resp.Session.State)

	rig.context.Stop(rig.pid)
	time.Sleep(500 * time.Millisecond)
}

func TestSessionRejectsLimitOutsideBounds(t *testing.T) {

	soc := 50.0
	rig := startSessionRig(t, domain.ChargerState{
		Connected: true,
		SoC:       &soc,
	}, func(s *sessionRigSetup) {
		s.cfg.Chargers[0].MinChargeLimitPct = 50
		s.cfg.Chargers[0].MaxChargeLimitPct = 90
	})
	defer rig.shutdown()

	time.Sleep(2 * time.Second)

	res, err := rig.context.RequestFuture(rig.pid, domain.ChargerSetLimitRequest{
		ChargerControlRequestMixIn: domain.ChargerControlRequestMixIn{ChargerId: "car"},
		LimitPct:                   30,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.ChargerSetLimitResponse)
	require.True(t, ok)
	require.True(t, resp.HasResponseError())
	assert.Empty(t, rig.scripted.LimitCalls())

	// a limit inside the bounds goes through
	res, err = rig.context.RequestFuture(rig.pid, domain.ChargerSetLimitRequest{
		ChargerControlRequestMixIn: domain.ChargerControlRequestMixIn{ChargerId: "car"},
		LimitPct:                   80,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok = res.(domain.ChargerSetLimitResponse)
	require.True(t, ok)
	require.False(t, resp.HasResponseError())

	time.Sleep(500 * time.Millisecond)
	require.Equal(t, []uint{80}, rig.scripted.LimitCalls())

	rig.context.Stop(rig.pid)
	time.Sleep(500 * time.Millisecond)
}

func TestSessionDisconnectGoesIdle(t *testing.T) {

	rig := startSessionRig(t, domain.ChargerState{
		Connected: false,
	})
	defer rig.shutdown()

	time.Sleep(2 * time.Second)

	resp := rig.session(t)
	assert.Equal(t, domain.SessionIdle, resp.Session.State)

	// plug the vehicle in, the poll picks it up
	rig.scripted.SetConnected(true)
	time.Sleep(2 * time.Second)

	resp = rig.session(t)
	assert.Equal(t, domain.SessionConnected, resp.Session.State)

	rig.context.Stop(rig.pid)
	time.Sleep(500 * time.Millisecond)
}
