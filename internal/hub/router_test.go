package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/switchyard-hub/switchyard/internal/state"
)

type recordingRepo struct {
	saves []state.Document
	err   error
}

func (r *recordingRepo) Load(context.Context) (state.Document, error) {
	return state.Document{}, state.ErrNotFound
}

func (r *recordingRepo) Save(_ context.Context, doc state.Document) error {
	r.saves = append(r.saves, doc)
	return r.err
}

type recordingTelemetry struct {
	switches []string
	rssi     []float64
}

func (r *recordingTelemetry) WriteSwitchMetric(switchID string, on bool) {
	r.switches = append(r.switches, switchID)
}

func (r *recordingTelemetry) WriteSignalStrength(rssi float64) {
	r.rssi = append(r.rssi, rssi)
}

func TestToggleRejectedWhileHardwareOffline(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	other := h.Attach(nil)
	drain(t, app)
	drain(t, other)

	r.HandleMessage(app, envelope(t, MsgToggleSwitch, TogglePayload{SwitchID: "switch3", Value: true}))

	if store.Snapshot().Switches["switch3"] {
		t.Error("state mutated despite offline hardware")
	}
	types := frameTypes(drain(t, app))
	if len(types) != 2 || types[0] != MsgError || types[1] != MsgFullState {
		t.Errorf("sender frames = %v, want [ERROR FULL_STATE]", types)
	}
	if got := len(drain(t, other)); got != 0 {
		t.Errorf("rejection leaked %d frames to other clients", got)
	}
}

func TestToggleInterlockResyncsSenderOnly(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	hw := h.Attach(nil)
	drain(t, app)
	identifyHardware(t, r, hw, app)

	// switch1 is interlocked and its wall switch is off.
	r.HandleMessage(app, envelope(t, MsgToggleSwitch, TogglePayload{SwitchID: "switch1", Value: true}))

	if store.Snapshot().Switches["switch1"] {
		t.Error("interlocked switch turned on")
	}
	types := frameTypes(drain(t, app))
	if len(types) != 1 || types[0] != MsgFullState {
		t.Errorf("sender frames = %v, want [FULL_STATE]", types)
	}
	if got := len(drain(t, hw)); got != 0 {
		t.Errorf("interlock rejection reached hardware with %d frames", got)
	}
}

func TestToggleInterlockAllowsOff(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	hw := h.Attach(nil)
	drain(t, app)
	identifyHardware(t, r, hw, app)

	// OFF is always allowed, interlock or not.
	r.HandleMessage(app, envelope(t, MsgToggleSwitch, TogglePayload{SwitchID: "switch1", Value: false}))

	types := frameTypes(drain(t, app))
	if len(types) != 2 || types[0] != MsgCommand || types[1] != MsgStateChanged {
		t.Errorf("frames = %v, want [COMMAND STATE_CHANGED]", types)
	}
	if store.Snapshot().Switches["switch1"] {
		t.Error("switch left on")
	}
}

func TestToggleBroadcastsCommandThenState(t *testing.T) {
	h, r, store := newTestRig(t)
	repo := &recordingRepo{}
	tel := &recordingTelemetry{}
	r.SetRepository(repo)
	r.SetTelemetry(tel)

	app := h.Attach(nil)
	hw := h.Attach(nil)
	drain(t, app)
	identifyHardware(t, r, hw, app)
	repo.saves = nil

	r.HandleMessage(app, envelope(t, MsgToggleSwitch, TogglePayload{SwitchID: "switch3", Value: true}))

	if !store.Snapshot().Switches["switch3"] {
		t.Fatal("switch not applied")
	}

	for name, c := range map[string]*Client{"sender": app, "hardware": hw} {
		frames := drain(t, c)
		types := frameTypes(frames)
		if len(types) != 2 || types[0] != MsgCommand || types[1] != MsgStateChanged {
			t.Errorf("%s frames = %v, want [COMMAND STATE_CHANGED]", name, types)
			continue
		}
		var cmd toggleCommand
		if err := json.Unmarshal(frames[0].Data, &cmd); err != nil {
			t.Fatalf("decoding command: %v", err)
		}
		if cmd.Action != CommandToggle || cmd.SwitchID != "switch3" || !cmd.Value {
			t.Errorf("%s command = %+v", name, cmd)
		}
	}

	if len(repo.saves) != 1 || !repo.saves[0].Switches["switch3"] {
		t.Errorf("persistence saves = %d", len(repo.saves))
	}
	if len(tel.switches) != 1 || tel.switches[0] != "switch3" {
		t.Errorf("telemetry switches = %v", tel.switches)
	}
}

func TestPersistFailureDoesNotRejectIntent(t *testing.T) {
	h, r, store := newTestRig(t)
	r.SetRepository(&recordingRepo{err: errors.New("disk full")})

	app := h.Attach(nil)
	hw := h.Attach(nil)
	drain(t, app)
	identifyHardware(t, r, hw, app)

	r.HandleMessage(app, envelope(t, MsgToggleSwitch, TogglePayload{SwitchID: "switch4", Value: true}))

	if !store.Snapshot().Switches["switch4"] {
		t.Error("storage failure rolled back the in-memory mutation")
	}
	types := frameTypes(drain(t, app))
	if len(types) != 2 || types[0] != MsgCommand {
		t.Errorf("frames = %v, want command and state despite storage failure", types)
	}
}

func TestUpdateStatusExcludesSender(t *testing.T) {
	h, r, store := newTestRig(t)
	tel := &recordingTelemetry{}
	r.SetTelemetry(tel)

	app := h.Attach(nil)
	hw := h.Attach(nil)
	drain(t, app)
	identifyHardware(t, r, hw, app)

	rssi := -48
	r.HandleMessage(hw, envelope(t, MsgUpdateStatus, state.StatusReport{
		Physical: map[string]bool{"switch2": true},
		System:   &state.SystemPatch{SignalStrength: &rssi},
	}))

	if !store.PhysicalOn("switch2") {
		t.Error("physical position not merged")
	}
	if got := len(drain(t, hw)); got != 0 {
		t.Errorf("sender received its own status echo, %d frames", got)
	}
	types := frameTypes(drain(t, app))
	if len(types) != 1 || types[0] != MsgStateChanged {
		t.Errorf("app frames = %v, want [STATE_CHANGED]", types)
	}
	if len(tel.rssi) != 1 || tel.rssi[0] != -48 {
		t.Errorf("telemetry rssi = %v", tel.rssi)
	}
}

func TestHardwareDisconnectBroadcastsOffline(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	hw := h.Attach(nil)
	drain(t, app)
	identifyHardware(t, r, hw, app)

	h.Drop(hw)

	if store.HardwareOnline() {
		t.Fatal("hardware still online after disconnect")
	}
	frames := drain(t, app)
	if len(frames) != 1 || frames[0].Type != MsgStateChanged {
		t.Fatalf("app frames = %v, want [STATE_CHANGED]", frameTypes(frames))
	}
	var doc state.Document
	if err := json.Unmarshal(frames[0].Data, &doc); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if doc.HardwareOnline {
		t.Error("broadcast document still reports hardware online")
	}
}

func TestAppDisconnectIsSilent(t *testing.T) {
	h, _, _ := newTestRig(t)
	a := h.Attach(nil)
	b := h.Attach(nil)
	drain(t, a)
	drain(t, b)

	h.Drop(a)

	if got := len(drain(t, b)); got != 0 {
		t.Errorf("app disconnect produced %d frames", got)
	}
}

func TestSetScheduleBroadcastsStateThenSync(t *testing.T) {
	h, r, store := newTestRig(t)
	repo := &recordingRepo{}
	r.SetRepository(repo)
	app := h.Attach(nil)
	drain(t, app)

	r.HandleMessage(app, envelope(t, MsgSetSchedule, SchedulePayload{
		SwitchID: "switch2", Active: true, Time: "06:45", Action: state.ActionOn,
	}))

	sched := store.Snapshot().Schedules["switch2"]
	if !sched.Active || sched.Time != "06:45" {
		t.Fatalf("schedule not stored: %+v", sched)
	}

	frames := drain(t, app)
	types := frameTypes(frames)
	if len(types) != 2 || types[0] != MsgStateChanged || types[1] != MsgCommand {
		t.Fatalf("frames = %v, want [STATE_CHANGED COMMAND]", types)
	}
	var sync scheduleSyncCommand
	if err := json.Unmarshal(frames[1].Data, &sync); err != nil {
		t.Fatalf("decoding sync command: %v", err)
	}
	if sync.Action != CommandSyncSchedule || sync.Schedules["switch2"].Time != "06:45" {
		t.Errorf("sync command = %+v", sync)
	}
	if len(repo.saves) != 1 {
		t.Errorf("saves = %d, want 1", len(repo.saves))
	}
}

func TestSetScheduleRejectsInvalidTime(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	drain(t, app)

	r.HandleMessage(app, envelope(t, MsgSetSchedule, SchedulePayload{
		SwitchID: "switch2", Active: true, Time: "26:90", Action: state.ActionOn,
	}))

	if store.Snapshot().Schedules["switch2"].Active {
		t.Error("invalid schedule was stored")
	}
	if got := len(drain(t, app)); got != 0 {
		t.Errorf("invalid schedule produced %d frames", got)
	}
}

func TestSetTimerComputesEndFromMinutes(t *testing.T) {
	h, r, store := newTestRig(t)
	fixed := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	app := h.Attach(nil)
	drain(t, app)

	r.HandleMessage(app, envelope(t, MsgSetTimer, TimerPayload{
		SwitchID: "switch4", Active: true, Duration: 15, Action: state.ActionOff,
	}))

	timer := store.Snapshot().Timers["switch4"]
	if !timer.Active || !timer.EndAt.Equal(fixed.Add(15*time.Minute)) {
		t.Fatalf("timer = %+v, want end at %v", timer, fixed.Add(15*time.Minute))
	}

	types := frameTypes(drain(t, app))
	if len(types) != 2 || types[0] != MsgStateChanged || types[1] != MsgCommand {
		t.Errorf("frames = %v, want [STATE_CHANGED COMMAND]", types)
	}
}

func TestDeleteTask(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	drain(t, app)

	r.HandleMessage(app, envelope(t, MsgSetSchedule, SchedulePayload{
		SwitchID: "switch3", Active: true, Time: "22:00", Action: state.ActionOff,
	}))
	drain(t, app)

	r.HandleMessage(app, envelope(t, MsgDeleteTask, DeleteTaskPayload{SwitchID: "switch3", TaskType: TaskSchedule}))

	if store.Snapshot().Schedules["switch3"].Active {
		t.Error("schedule survived DELETE_TASK")
	}
	frames := drain(t, app)
	types := frameTypes(frames)
	if len(types) != 2 || types[0] != MsgCommand || types[1] != MsgStateChanged {
		t.Fatalf("frames = %v, want [COMMAND STATE_CHANGED]", types)
	}

	// Unknown task type is dropped without traffic.
	r.HandleMessage(app, envelope(t, MsgDeleteTask, DeleteTaskPayload{SwitchID: "switch3", TaskType: "alarm"}))
	if got := len(drain(t, app)); got != 0 {
		t.Errorf("unknown task type produced %d frames", got)
	}
}

func TestRenameBroadcasts(t *testing.T) {
	h, r, store := newTestRig(t)
	repo := &recordingRepo{}
	r.SetRepository(repo)
	app := h.Attach(nil)
	other := h.Attach(nil)
	drain(t, app)
	drain(t, other)

	r.HandleMessage(app, envelope(t, MsgRename, RenamePayload{ID: "name4", NewName: "Garden Pump"}))

	if store.Snapshot().Names["name4"] != "Garden Pump" {
		t.Error("rename not applied")
	}
	if types := frameTypes(drain(t, other)); len(types) != 1 || types[0] != MsgStateChanged {
		t.Errorf("other frames = %v, want [STATE_CHANGED]", types)
	}
	if len(repo.saves) != 1 {
		t.Errorf("saves = %d, want 1", len(repo.saves))
	}

	r.HandleMessage(app, envelope(t, MsgRename, RenamePayload{ID: "name9", NewName: "x"}))
	drain(t, app)
	if len(repo.saves) != 1 {
		t.Error("unknown label rename was persisted")
	}
}

func TestSystemUpdateGatedAndForwarded(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	drain(t, app)

	mode := 2
	r.HandleMessage(app, envelope(t, MsgSystemUpdate, state.SystemPatch{AmbientMode: &mode}))
	if types := frameTypes(drain(t, app)); len(types) != 2 || types[0] != MsgError {
		t.Fatalf("offline frames = %v, want [ERROR FULL_STATE]", types)
	}
	if store.Snapshot().System.AmbientMode != 0 {
		t.Fatal("system update applied while hardware offline")
	}

	hw := h.Attach(nil)
	identifyHardware(t, r, hw, app)

	r.HandleMessage(app, envelope(t, MsgSystemUpdate, state.SystemPatch{AmbientMode: &mode}))

	if store.Snapshot().System.AmbientMode != 2 {
		t.Error("system update not applied")
	}
	frames := drain(t, hw)
	types := frameTypes(frames)
	if len(types) != 2 || types[0] != MsgCommand || types[1] != MsgStateChanged {
		t.Fatalf("hardware frames = %v, want [COMMAND STATE_CHANGED]", types)
	}
	var cmd systemCommand
	if err := json.Unmarshal(frames[0].Data, &cmd); err != nil {
		t.Fatalf("decoding system command: %v", err)
	}
	if cmd.Action != CommandSystem || cmd.System.AmbientMode == nil || *cmd.System.AmbientMode != 2 {
		t.Errorf("system command = %+v", cmd)
	}
}

func TestToggleFromFacadeSkipsLivenessGate(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	drain(t, app)

	doc, err := r.Toggle("switch3", true)
	if err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if !doc.Switches["switch3"] || !store.Snapshot().Switches["switch3"] {
		t.Error("facade toggle not applied")
	}
	if types := frameTypes(drain(t, app)); len(types) != 2 || types[0] != MsgCommand {
		t.Errorf("frames = %v, want [COMMAND STATE_CHANGED]", types)
	}

	// Interlock still binds.
	if _, err := r.Toggle("switch1", true); !errors.Is(err, ErrInterlocked) {
		t.Errorf("interlocked toggle error = %v, want ErrInterlocked", err)
	}
	if _, err := r.Toggle("switch9", true); !errors.Is(err, state.ErrUnknownSwitch) {
		t.Errorf("unknown switch error = %v, want ErrUnknownSwitch", err)
	}
}

func TestMergeStatusFromBusReachesEveryone(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	hw := h.Attach(nil)
	drain(t, app)
	identifyHardware(t, r, hw, app)

	r.MergeStatus(state.StatusReport{Switches: map[string]bool{"switch2": true}})

	if !store.Snapshot().Switches["switch2"] {
		t.Error("bus status not merged")
	}
	for name, c := range map[string]*Client{"app": app, "hardware": hw} {
		if types := frameTypes(drain(t, c)); len(types) != 1 || types[0] != MsgStateChanged {
			t.Errorf("%s frames = %v, want [STATE_CHANGED]", name, types)
		}
	}
}

func TestUnknownMessageKindDropped(t *testing.T) {
	h, r, _ := newTestRig(t)
	app := h.Attach(nil)
	drain(t, app)

	r.HandleMessage(app, []byte(`{"type":"REBOOT_EVERYTHING","data":{}}`))
	r.HandleMessage(app, []byte(`not json at all`))

	if got := len(drain(t, app)); got != 0 {
		t.Errorf("junk input produced %d frames", got)
	}
	if h.ClientCount() != 1 {
		t.Error("junk input closed the connection")
	}
}

// stallingPublisher blocks inside PublishState until released, standing
// in for a broker that is slow to acknowledge a retained publish.
type stallingPublisher struct {
	entered chan struct{}
	release chan struct{}
	docs    []state.Document
}

func (p *stallingPublisher) PublishState(doc state.Document) {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.release
	p.docs = append(p.docs, doc)
}

func TestSlowPublisherDoesNotStallIntents(t *testing.T) {
	h, r, store := newTestRig(t)
	app := h.Attach(nil)
	hw := h.Attach(nil)
	drain(t, app)
	identifyHardware(t, r, hw, app)

	pub := &stallingPublisher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r.SetPublisher(pub)
	defer close(pub.release)

	r.HandleMessage(app, envelope(t, MsgToggleSwitch, TogglePayload{SwitchID: "switch3", Value: true}))
	select {
	case <-pub.entered:
	case <-time.After(time.Second):
		t.Fatal("publisher never received the snapshot")
	}

	// The publisher is wedged mid-publish. Further intents must still
	// apply and fan out without waiting on it.
	done := make(chan struct{})
	go func() {
		r.HandleMessage(app, envelope(t, MsgToggleSwitch, TogglePayload{SwitchID: "switch4", Value: true}))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second toggle stalled behind the publisher")
	}

	if !store.Snapshot().Switches["switch4"] {
		t.Error("second toggle not applied")
	}
	types := frameTypes(drain(t, app))
	if len(types) != 4 || types[2] != MsgCommand || types[3] != MsgStateChanged {
		t.Errorf("frames = %v, want two [COMMAND STATE_CHANGED] pairs", types)
	}
}
