package state

import "time"

// DocumentKey is the single durable document key. Switchyard keeps one
// global state document per process.
const DocumentKey = "main_state"

// SwitchIDs is the closed set of switch identifiers. Unknown identifiers
// are rejected everywhere; new ones are never created at runtime.
var SwitchIDs = []string{"switch1", "switch2", "switch3", "switch4"}

// NameIDs is the closed set of display-label identifiers, one per switch.
var NameIDs = []string{"name1", "name2", "name3", "name4"}

// Action is the direction of a scheduled or timed switch command.
type Action string

// Valid actions.
const (
	ActionOn  Action = "ON"
	ActionOff Action = "OFF"
)

// Valid reports whether the action is a member of the closed set.
func (a Action) Valid() bool {
	return a == ActionOn || a == ActionOff
}

// On converts the action to the boolean switch value it commands.
func (a Action) On() bool {
	return a == ActionOn
}

// Schedule is a per-switch optional daily trigger. Setting a schedule
// replaces the prior value entirely; there is no merge.
type Schedule struct {
	Active bool   `json:"active"`
	Time   string `json:"time"` // "HH:MM" in the automation timezone
	Action Action `json:"action"`
}

// Timer is a per-switch optional one-shot trigger. It is durable at
// creation; once fired it is cleared and the cleared state rides the
// next best-effort persistence cycle.
type Timer struct {
	Active bool      `json:"active"`
	EndAt  time.Time `json:"endAt"`
	Action Action    `json:"action"`
}

// System holds the auxiliary mode and status fields.
//
// SavedAmbientMode remembers the ambient mode suppressed by the night
// protocol so the morning restore can bring it back.
type System struct {
	AmbientMode      int  `json:"ambientMode"`
	SavedAmbientMode int  `json:"savedAmbientMode"`
	SignalStrength   int  `json:"signalStrength"`
	Reboot           bool `json:"reboot"`
}

// Document is the canonical state document.
//
// Switches, Physical, Names, Schedules and Timers are keyed by the
// closed identifier sets above. Physical and HardwareOnline are runtime
// only: they are never persisted and reinitialise on process start.
type Document struct {
	Switches       map[string]bool     `json:"switches"`
	Physical       map[string]bool     `json:"physical"`
	Names          map[string]string   `json:"names"`
	Schedules      map[string]Schedule `json:"schedules"`
	Timers         map[string]Timer    `json:"timers"`
	System         System              `json:"system"`
	HardwareOnline bool                `json:"isHardwareOnline"`
}

// SystemPatch is a partial update to the system fields. Nil members are
// left untouched on merge.
type SystemPatch struct {
	AmbientMode    *int  `json:"ambientMode,omitempty"`
	SignalStrength *int  `json:"signalStrength,omitempty"`
	Reboot         *bool `json:"reboot,omitempty"`
}

// StatusReport is a partial state report, typically from hardware. Only
// present maps/fields are merged; unknown switch keys are dropped.
type StatusReport struct {
	Switches map[string]bool `json:"switches,omitempty"`
	Physical map[string]bool `json:"physical,omitempty"`
	System   *SystemPatch    `json:"system,omitempty"`
}

// DefaultDocument returns a document with every switch off, default
// labels, and no schedules or timers.
func DefaultDocument() Document {
	doc := Document{
		Switches:  make(map[string]bool, len(SwitchIDs)),
		Physical:  make(map[string]bool, len(SwitchIDs)),
		Names:     make(map[string]string, len(NameIDs)),
		Schedules: make(map[string]Schedule, len(SwitchIDs)),
		Timers:    make(map[string]Timer, len(SwitchIDs)),
	}
	for _, id := range SwitchIDs {
		doc.Switches[id] = false
		doc.Physical[id] = false
	}
	for i, id := range NameIDs {
		doc.Names[id] = SwitchIDs[i]
	}
	return doc
}

// Copy returns a deep copy of the document. Callers can safely modify
// the result without affecting the original.
func (d Document) Copy() Document {
	out := d
	out.Switches = copyBoolMap(d.Switches)
	out.Physical = copyBoolMap(d.Physical)
	out.Names = make(map[string]string, len(d.Names))
	for k, v := range d.Names {
		out.Names[k] = v
	}
	out.Schedules = make(map[string]Schedule, len(d.Schedules))
	for k, v := range d.Schedules {
		out.Schedules[k] = v
	}
	out.Timers = make(map[string]Timer, len(d.Timers))
	for k, v := range d.Timers {
		out.Timers[k] = v
	}
	return out
}

func copyBoolMap(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// KnownSwitch reports whether id belongs to the closed switch set.
func KnownSwitch(id string) bool {
	for _, s := range SwitchIDs {
		if s == id {
			return true
		}
	}
	return false
}

// KnownName reports whether id belongs to the closed name set.
func KnownName(id string) bool {
	for _, n := range NameIDs {
		if n == id {
			return true
		}
	}
	return false
}
