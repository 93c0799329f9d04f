package hub

import (
	"encoding/json"

	"github.com/switchyard-hub/switchyard/internal/state"
)

// Inbound message kinds. Anything outside this set is logged and dropped
// at the decode boundary.
const (
	MsgIdentify     = "IDENTIFY"
	MsgUpdateStatus = "UPDATE_STATUS"
	MsgToggleSwitch = "TOGGLE_SWITCH"
	MsgSetSchedule  = "SET_SCHEDULE"
	MsgSetTimer     = "SET_TIMER"
	MsgDeleteTask   = "DELETE_TASK"
	MsgRename       = "RENAME"
	MsgSystemUpdate = "SYSTEM_UPDATE"
)

// Outbound message kinds.
const (
	MsgFullState    = "FULL_STATE"
	MsgStateChanged = "STATE_CHANGED"
	MsgCommand      = "COMMAND"
	MsgError        = "ERROR"
)

// Command actions carried in COMMAND messages.
const (
	CommandToggle       = "TOGGLE"
	CommandSystem       = "SYSTEM"
	CommandSyncSchedule = "SYNC_SCHED"
	CommandSyncTimer    = "SYNC_TIMER"
)

// Task types accepted by DELETE_TASK.
const (
	TaskSchedule = "schedule"
	TaskTimer    = "timer"
)

// Envelope is the wire format for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Role string          `json:"role,omitempty"`
}

// IdentifyPayload declares a connection's role. A hardware controller
// may piggyback its current status report on the identification.
type IdentifyPayload struct {
	Role   string              `json:"role"`
	Status *state.StatusReport `json:"status,omitempty"`
}

// TogglePayload is a switch command intent.
type TogglePayload struct {
	SwitchID string `json:"switchId"`
	Value    bool   `json:"value"`
}

// SchedulePayload replaces a switch's daily schedule.
type SchedulePayload struct {
	SwitchID string       `json:"switchId"`
	Active   bool         `json:"active"`
	Time     string       `json:"time"`
	Action   state.Action `json:"action"`
}

// TimerPayload replaces a switch's one-shot timer. Duration is in
// minutes from now.
type TimerPayload struct {
	SwitchID string       `json:"switchId"`
	Active   bool         `json:"active"`
	Duration int          `json:"duration"`
	Action   state.Action `json:"action"`
}

// DeleteTaskPayload clears a schedule or timer.
type DeleteTaskPayload struct {
	SwitchID string `json:"switchId"`
	TaskType string `json:"taskType"`
}

// RenamePayload replaces a display label.
type RenamePayload struct {
	ID      string `json:"id"`
	NewName string `json:"newName"`
}

// ErrorPayload is sent to a single connection on policy rejection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// toggleCommand is the COMMAND payload re-issued to hardware for a
// switch toggle.
type toggleCommand struct {
	Action   string `json:"action"`
	SwitchID string `json:"switchId"`
	Value    bool   `json:"value"`
}

// scheduleSyncCommand tells hardware to refresh its schedule table.
type scheduleSyncCommand struct {
	Action    string                    `json:"action"`
	Schedules map[string]state.Schedule `json:"schedules"`
}

// timerSyncCommand tells hardware to refresh its timer table.
type timerSyncCommand struct {
	Action string                 `json:"action"`
	Timers map[string]state.Timer `json:"timers"`
}

// systemCommand forwards a system-settings update to hardware.
type systemCommand struct {
	Action string            `json:"action"`
	System state.SystemPatch `json:"system"`
}

// marshalMessage serializes an outbound envelope once, for delivery to
// any number of connections.
func marshalMessage(msgType string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}
