package state

import (
	"sync"
	"time"
)

// Store is the single canonical state instance for the process.
//
// All components read and mutate the document through its synchronized
// accessors. Reads return deep-copy snapshots, so a caller never
// observes a partially applied mutation and never holds an alias into
// the shared document. Each mutation is atomic with respect to
// snapshots.
type Store struct {
	mu  sync.RWMutex
	doc Document
}

// NewStore creates a store holding the default document. Hardware
// liveness always starts false regardless of what was persisted.
func NewStore() *Store {
	return &Store{doc: DefaultDocument()}
}

// RestoreDurable merges the durable subset of a loaded document into the
// store: names, switches, schedules, timers, and system settings.
// Physical positions and hardware liveness keep their defaults.
func (s *Store) RestoreDurable(loaded Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.doc.Switches {
		if v, ok := loaded.Switches[id]; ok {
			s.doc.Switches[id] = v
		}
	}
	for id := range s.doc.Names {
		if v, ok := loaded.Names[id]; ok && v != "" {
			s.doc.Names[id] = v
		}
	}
	for id, sched := range loaded.Schedules {
		if KnownSwitch(id) {
			s.doc.Schedules[id] = sched
		}
	}
	for id, timer := range loaded.Timers {
		if KnownSwitch(id) {
			s.doc.Timers[id] = timer
		}
	}
	s.doc.System = loaded.System
}

// Snapshot returns a deep copy of the whole document.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Copy()
}

// ApplySwitch sets a switch value. The application is atomic per switch.
func (s *Store) ApplySwitch(id string, on bool) (Document, error) {
	if !KnownSwitch(id) {
		return Document{}, ErrUnknownSwitch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Switches[id] = on
	return s.doc.Copy(), nil
}

// PhysicalOn reports the hardware-reported physical position of a switch.
// Unknown switches read as off.
func (s *Store) PhysicalOn(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Physical[id]
}

// MergeStatus merges a partial status report into the document. Unknown
// switch keys are dropped, never created.
func (s *Store) MergeStatus(rep StatusReport) Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, v := range rep.Switches {
		if KnownSwitch(id) {
			s.doc.Switches[id] = v
		}
	}
	for id, v := range rep.Physical {
		if KnownSwitch(id) {
			s.doc.Physical[id] = v
		}
	}
	if rep.System != nil {
		s.mergeSystemLocked(*rep.System)
	}
	return s.doc.Copy()
}

// MergeSystem merges a partial system update into the document.
func (s *Store) MergeSystem(patch SystemPatch) Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeSystemLocked(patch)
	return s.doc.Copy()
}

func (s *Store) mergeSystemLocked(patch SystemPatch) {
	if patch.AmbientMode != nil {
		s.doc.System.AmbientMode = *patch.AmbientMode
	}
	if patch.SignalStrength != nil {
		s.doc.System.SignalStrength = *patch.SignalStrength
	}
	if patch.Reboot != nil {
		s.doc.System.Reboot = *patch.Reboot
	}
}

// SetSchedule replaces the schedule for a switch. The previous value is
// discarded entirely.
func (s *Store) SetSchedule(id string, sched Schedule) (Document, error) {
	if !KnownSwitch(id) {
		return Document{}, ErrUnknownSwitch
	}
	if !sched.Action.Valid() {
		return Document{}, ErrInvalidAction
	}
	if _, err := time.Parse("15:04", sched.Time); err != nil {
		return Document{}, ErrInvalidTime
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Schedules[id] = sched
	return s.doc.Copy(), nil
}

// SetTimer replaces the timer for a switch.
func (s *Store) SetTimer(id string, timer Timer) (Document, error) {
	if !KnownSwitch(id) {
		return Document{}, ErrUnknownSwitch
	}
	if !timer.Action.Valid() {
		return Document{}, ErrInvalidAction
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Timers[id] = timer
	return s.doc.Copy(), nil
}

// ClearSchedule deactivates and nulls the schedule for a switch.
func (s *Store) ClearSchedule(id string) (Document, error) {
	if !KnownSwitch(id) {
		return Document{}, ErrUnknownSwitch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Schedules[id] = Schedule{}
	return s.doc.Copy(), nil
}

// ClearTimer deactivates and nulls the timer for a switch.
func (s *Store) ClearTimer(id string) (Document, error) {
	if !KnownSwitch(id) {
		return Document{}, ErrUnknownSwitch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Timers[id] = Timer{}
	return s.doc.Copy(), nil
}

// DeactivateTimer marks a fired timer inactive, keeping its other fields
// for diagnostics until the next SetTimer replaces them.
func (s *Store) DeactivateTimer(id string) (Document, error) {
	if !KnownSwitch(id) {
		return Document{}, ErrUnknownSwitch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.doc.Timers[id]
	t.Active = false
	s.doc.Timers[id] = t
	return s.doc.Copy(), nil
}

// Rename replaces a display label. Identifiers outside the closed name
// set are rejected; labels are never created dynamically.
func (s *Store) Rename(id, label string) (Document, error) {
	if !KnownName(id) {
		return Document{}, ErrUnknownName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Names[id] = label
	return s.doc.Copy(), nil
}

// SuppressAmbient implements the night protocol: it remembers the
// current ambient mode and forces it to zero. Returns false when the
// mode was already zero.
func (s *Store) SuppressAmbient() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.System.AmbientMode == 0 {
		return s.doc.Copy(), false
	}
	s.doc.System.SavedAmbientMode = s.doc.System.AmbientMode
	s.doc.System.AmbientMode = 0
	return s.doc.Copy(), true
}

// RestoreAmbient implements the morning restore: it brings back the
// remembered ambient mode if the current mode is still zero. Returns
// false when there is nothing to restore.
func (s *Store) RestoreAmbient() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.System.AmbientMode != 0 || s.doc.System.SavedAmbientMode == 0 {
		return s.doc.Copy(), false
	}
	s.doc.System.AmbientMode = s.doc.System.SavedAmbientMode
	s.doc.System.SavedAmbientMode = 0
	return s.doc.Copy(), true
}

// SetHardwareOnline flips the hardware liveness flag. It returns the
// snapshot and whether the flag actually changed, so callers broadcast
// only on real transitions.
func (s *Store) SetHardwareOnline(online bool) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.HardwareOnline == online {
		return s.doc.Copy(), false
	}
	s.doc.HardwareOnline = online
	return s.doc.Copy(), true
}

// HardwareOnline reports the current hardware liveness.
func (s *Store) HardwareOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.HardwareOnline
}
