package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/switchyard-hub/switchyard/internal/state"
)

// Telemetry is the optional metrics sink for switch and signal events.
type Telemetry interface {
	WriteSwitchMetric(switchID string, on bool)
	WriteSignalStrength(rssi float64)
}

// StatePublisher mirrors each state snapshot to an external bus.
type StatePublisher interface {
	PublishState(doc state.Document)
}

const persistTimeout = 5 * time.Second

// Router implements the Handler contract: it decodes inbound frames,
// applies them to the state store, persists durable intents and fans
// out the results.
//
// Its mutex serializes the mutate-then-broadcast sequence, so two
// concurrent intents can never interleave their broadcasts out of order
// with their mutations.
type Router struct {
	store  *state.Store
	hub    *Hub
	repo   state.Repository
	tel    Telemetry
	pub    StatePublisher
	logger Logger

	// Single-slot handoff to the publish drainer. Holds only the
	// newest snapshot; the retained mirror never needs stale ones.
	pubCh chan state.Document

	interlocked map[string]bool

	mu  sync.Mutex
	now func() time.Time
}

// NewRouter wires the router to the store and hub. Interlocked names
// the switches guarded by their physical wall switch.
func NewRouter(store *state.Store, h *Hub, interlocked []string, logger Logger) *Router {
	if logger == nil {
		logger = noopLogger{}
	}
	guard := make(map[string]bool, len(interlocked))
	for _, id := range interlocked {
		guard[id] = true
	}
	r := &Router{
		store:       store,
		hub:         h,
		logger:      logger,
		interlocked: guard,
		now:         time.Now,
	}
	h.SetHandler(r)
	return r
}

// SetRepository enables best-effort persistence of durable intents.
func (r *Router) SetRepository(repo state.Repository) { r.repo = repo }

// SetTelemetry enables metric writes on switch and signal events.
func (r *Router) SetTelemetry(tel Telemetry) { r.tel = tel }

// SetPublisher enables state mirroring to an external bus. Snapshots
// are handed to a background drainer, so a bus waiting on a broker
// acknowledgement never holds up an intent or the automation tick.
func (r *Router) SetPublisher(pub StatePublisher) {
	r.pubCh = make(chan state.Document, 1)
	r.pub = pub
	go r.publishLoop()
}

// HandleConnect greets a new connection with the full document.
func (r *Router) HandleConnect(c *Client) {
	r.sendFullState(c)
}

// HandleDisconnect flips hardware liveness off when the hardware
// controller drops, and tells every remaining client.
func (r *Router) HandleDisconnect(c *Client) {
	if c.Role() != RoleHardware {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	doc, changed := r.store.SetHardwareOnline(false)
	if !changed {
		return
	}
	r.logger.Warn("hardware controller disconnected", "client_id", c.ID())
	r.broadcastState(doc, "")
}

// HandleMessage dispatches one inbound frame. Malformed envelopes and
// unknown kinds are logged and dropped; the connection stays open.
func (r *Router) HandleMessage(c *Client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Warn("dropping malformed frame", "client_id", c.ID(), "error", err)
		return
	}

	switch env.Type {
	case MsgIdentify:
		r.handleIdentify(c, env)
	case MsgUpdateStatus:
		r.handleUpdateStatus(c, env.Data)
	case MsgToggleSwitch:
		r.handleToggle(c, env.Data)
	case MsgSetSchedule:
		r.handleSetSchedule(c, env.Data)
	case MsgSetTimer:
		r.handleSetTimer(c, env.Data)
	case MsgDeleteTask:
		r.handleDeleteTask(c, env.Data)
	case MsgRename:
		r.handleRename(c, env.Data)
	case MsgSystemUpdate:
		r.handleSystemUpdate(c, env.Data)
	default:
		r.logger.Warn("dropping unknown message kind", "client_id", c.ID(), "type", env.Type)
	}
}

func (r *Router) handleIdentify(c *Client, env Envelope) {
	var payload IdentifyPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			r.logger.Warn("dropping malformed IDENTIFY", "client_id", c.ID(), "error", err)
			return
		}
	}
	role := payload.Role
	if role == "" {
		role = env.Role
	}
	if role != RoleHardware {
		r.logger.Debug("app client identified", "client_id", c.ID())
		return
	}

	c.PromoteHardware()

	r.mu.Lock()
	defer r.mu.Unlock()
	if payload.Status != nil {
		r.store.MergeStatus(*payload.Status)
	}
	doc, changed := r.store.SetHardwareOnline(true)
	if changed {
		r.logger.Info("hardware controller online", "client_id", c.ID())
	}
	// Everyone gets the refreshed document so switch intents unlock at
	// the same moment on all apps.
	r.broadcastFullState(doc)
}

func (r *Router) handleUpdateStatus(c *Client, data []byte) {
	var rep state.StatusReport
	if err := json.Unmarshal(data, &rep); err != nil {
		r.logger.Warn("dropping malformed UPDATE_STATUS", "client_id", c.ID(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.store.MergeStatus(rep)
	r.broadcastState(doc, c.ID())
	r.persist(doc)

	if r.tel != nil && rep.System != nil && rep.System.SignalStrength != nil {
		r.tel.WriteSignalStrength(float64(*rep.System.SignalStrength))
	}
}

func (r *Router) handleToggle(c *Client, data []byte) {
	var payload TogglePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn("dropping malformed TOGGLE_SWITCH", "client_id", c.ID(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.store.HardwareOnline() {
		r.logger.Info("toggle rejected, hardware offline", "client_id", c.ID(), "switch", payload.SwitchID)
		r.sendError(c, "hardware controller is offline")
		r.sendFullState(c)
		return
	}
	if r.interlocked[payload.SwitchID] && payload.Value && !r.store.PhysicalOn(payload.SwitchID) {
		r.logger.Info("toggle rejected, physical interlock", "client_id", c.ID(), "switch", payload.SwitchID)
		r.sendFullState(c)
		return
	}

	doc, err := r.store.ApplySwitch(payload.SwitchID, payload.Value)
	if err != nil {
		r.logger.Warn("dropping toggle for unknown switch", "client_id", c.ID(), "switch", payload.SwitchID)
		return
	}

	r.broadcastCommand(toggleCommand{Action: CommandToggle, SwitchID: payload.SwitchID, Value: payload.Value})
	r.broadcastState(doc, "")
	r.persist(doc)

	if r.tel != nil {
		r.tel.WriteSwitchMetric(payload.SwitchID, payload.Value)
	}
}

func (r *Router) handleSetSchedule(c *Client, data []byte) {
	var payload SchedulePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn("dropping malformed SET_SCHEDULE", "client_id", c.ID(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.store.SetSchedule(payload.SwitchID, state.Schedule{
		Active: payload.Active,
		Time:   payload.Time,
		Action: payload.Action,
	})
	if err != nil {
		r.logger.Warn("dropping invalid SET_SCHEDULE", "client_id", c.ID(), "switch", payload.SwitchID, "error", err)
		return
	}

	r.broadcastState(doc, "")
	r.broadcastCommand(scheduleSyncCommand{Action: CommandSyncSchedule, Schedules: doc.Schedules})
	r.persist(doc)
}

func (r *Router) handleSetTimer(c *Client, data []byte) {
	var payload TimerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn("dropping malformed SET_TIMER", "client_id", c.ID(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	timer := state.Timer{Active: payload.Active, Action: payload.Action}
	if payload.Active {
		timer.EndAt = r.now().Add(time.Duration(payload.Duration) * time.Minute)
	}
	doc, err := r.store.SetTimer(payload.SwitchID, timer)
	if err != nil {
		r.logger.Warn("dropping invalid SET_TIMER", "client_id", c.ID(), "switch", payload.SwitchID, "error", err)
		return
	}

	r.broadcastState(doc, "")
	r.broadcastCommand(timerSyncCommand{Action: CommandSyncTimer, Timers: doc.Timers})
	r.persist(doc)
}

func (r *Router) handleDeleteTask(c *Client, data []byte) {
	var payload DeleteTaskPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn("dropping malformed DELETE_TASK", "client_id", c.ID(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		doc state.Document
		err error
	)
	switch payload.TaskType {
	case TaskSchedule:
		doc, err = r.store.ClearSchedule(payload.SwitchID)
	case TaskTimer:
		doc, err = r.store.ClearTimer(payload.SwitchID)
	default:
		r.logger.Warn("dropping DELETE_TASK with unknown task type", "client_id", c.ID(), "task_type", payload.TaskType)
		return
	}
	if err != nil {
		r.logger.Warn("dropping DELETE_TASK for unknown switch", "client_id", c.ID(), "switch", payload.SwitchID)
		return
	}

	if payload.TaskType == TaskSchedule {
		r.broadcastCommand(scheduleSyncCommand{Action: CommandSyncSchedule, Schedules: doc.Schedules})
	} else {
		r.broadcastCommand(timerSyncCommand{Action: CommandSyncTimer, Timers: doc.Timers})
	}
	r.broadcastState(doc, "")
	r.persist(doc)
}

func (r *Router) handleRename(c *Client, data []byte) {
	var payload RenamePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn("dropping malformed RENAME", "client_id", c.ID(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.store.Rename(payload.ID, payload.NewName)
	if err != nil {
		r.logger.Warn("dropping RENAME for unknown label", "client_id", c.ID(), "id", payload.ID)
		return
	}

	r.broadcastState(doc, "")
	r.persist(doc)
}

func (r *Router) handleSystemUpdate(c *Client, data []byte) {
	var patch state.SystemPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		r.logger.Warn("dropping malformed SYSTEM_UPDATE", "client_id", c.ID(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.store.HardwareOnline() {
		r.logger.Info("system update rejected, hardware offline", "client_id", c.ID())
		r.sendError(c, "hardware controller is offline")
		r.sendFullState(c)
		return
	}

	doc := r.store.MergeSystem(patch)
	r.broadcastCommand(systemCommand{Action: CommandSystem, System: patch})
	r.broadcastState(doc, "")
	r.persist(doc)

	if r.tel != nil && patch.SignalStrength != nil {
		r.tel.WriteSignalStrength(float64(*patch.SignalStrength))
	}
}

// Toggle applies a switch intent from outside the socket layer, such as
// the HTTP facade. The physical interlock still applies; the hardware
// liveness gate does not, so an operator can stage state while the
// controller reconnects.
func (r *Router) Toggle(switchID string, value bool) (state.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interlocked[switchID] && value && !r.store.PhysicalOn(switchID) {
		return state.Document{}, ErrInterlocked
	}
	doc, err := r.store.ApplySwitch(switchID, value)
	if err != nil {
		return state.Document{}, err
	}

	r.broadcastCommand(toggleCommand{Action: CommandToggle, SwitchID: switchID, Value: value})
	r.broadcastState(doc, "")
	r.persist(doc)

	if r.tel != nil {
		r.tel.WriteSwitchMetric(switchID, value)
	}
	return doc, nil
}

// MergeStatus applies a status report that arrived off-socket, such as
// over the MQTT fallback, and fans the merged document out to everyone.
func (r *Router) MergeStatus(rep state.StatusReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.store.MergeStatus(rep)
	r.broadcastState(doc, "")
	r.persist(doc)

	if r.tel != nil && rep.System != nil && rep.System.SignalStrength != nil {
		r.tel.WriteSignalStrength(float64(*rep.System.SignalStrength))
	}
}

// BroadcastToggle fans a TOGGLE command out to every connection
// without touching the logical state. Used by the automation engine for
// due schedules and timers: hardware applies the command and reports
// the resulting state back.
func (r *Router) BroadcastToggle(switchID string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastCommand(toggleCommand{Action: CommandToggle, SwitchID: switchID, Value: on})
}

// BroadcastSystem fans a SYSTEM command out to every connection.
func (r *Router) BroadcastSystem(patch state.SystemPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastCommand(systemCommand{Action: CommandSystem, System: patch})
}

// BroadcastState fans a state snapshot out to every connection.
func (r *Router) BroadcastState(doc state.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastState(doc, "")
}

func (r *Router) sendFullState(c *Client) {
	msg, err := marshalMessage(MsgFullState, r.store.Snapshot())
	if err != nil {
		r.logger.Error("encoding full state", "error", err)
		return
	}
	c.trySend(msg)
}

func (r *Router) sendError(c *Client, reason string) {
	msg, err := marshalMessage(MsgError, ErrorPayload{Message: reason})
	if err != nil {
		return
	}
	c.trySend(msg)
}

func (r *Router) broadcastFullState(doc state.Document) {
	msg, err := marshalMessage(MsgFullState, doc)
	if err != nil {
		r.logger.Error("encoding full state", "error", err)
		return
	}
	r.hub.Broadcast(msg, "")
	r.publish(doc)
}

func (r *Router) broadcastState(doc state.Document, excludeID string) {
	msg, err := marshalMessage(MsgStateChanged, doc)
	if err != nil {
		r.logger.Error("encoding state change", "error", err)
		return
	}
	r.hub.Broadcast(msg, excludeID)
	r.publish(doc)
}

func (r *Router) broadcastCommand(payload any) {
	msg, err := marshalMessage(MsgCommand, payload)
	if err != nil {
		r.logger.Error("encoding command", "error", err)
		return
	}
	r.hub.Broadcast(msg, "")
}

// persist writes the durable subset, best effort. A storage failure is
// logged and never surfaced to the peer whose intent triggered it.
func (r *Router) persist(doc state.Document) {
	if r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.repo.Save(ctx, doc); err != nil {
		r.logger.Error("persisting state document", "error", err)
	}
}

// publish queues a snapshot for the mirror without blocking. Callers
// hold the router mutex, so only one producer races the drainer: a
// pending older snapshot is dropped in favour of the new one.
func (r *Router) publish(doc state.Document) {
	if r.pub == nil {
		return
	}
	select {
	case r.pubCh <- doc:
		return
	default:
	}
	select {
	case <-r.pubCh:
	default:
	}
	select {
	case r.pubCh <- doc:
	default:
	}
}

// publishLoop drains queued snapshots for the process lifetime.
func (r *Router) publishLoop() {
	for doc := range r.pubCh {
		r.pub.PublishState(doc)
	}
}
