package state

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultDocumentClosedSets(t *testing.T) {
	doc := DefaultDocument()

	if len(doc.Switches) != 4 || len(doc.Physical) != 4 || len(doc.Names) != 4 {
		t.Fatalf("default document has %d switches, %d physical, %d names; want 4 each",
			len(doc.Switches), len(doc.Physical), len(doc.Names))
	}
	for _, id := range SwitchIDs {
		if doc.Switches[id] {
			t.Errorf("switch %s defaults to on", id)
		}
	}
	if doc.HardwareOnline {
		t.Error("hardware liveness defaults to online")
	}
}

func TestApplySwitchRejectsUnknown(t *testing.T) {
	s := NewStore()

	if _, err := s.ApplySwitch("switch9", true); !errors.Is(err, ErrUnknownSwitch) {
		t.Errorf("ApplySwitch(switch9) error = %v, want ErrUnknownSwitch", err)
	}
	if _, ok := s.Snapshot().Switches["switch9"]; ok {
		t.Error("unknown switch was created")
	}
}

func TestApplySwitchMutatesAndSnapshots(t *testing.T) {
	s := NewStore()

	doc, err := s.ApplySwitch("switch2", true)
	if err != nil {
		t.Fatalf("ApplySwitch() error: %v", err)
	}
	if !doc.Switches["switch2"] {
		t.Error("returned snapshot does not reflect the mutation")
	}

	// Snapshot is a deep copy: mutating it must not leak into the store.
	doc.Switches["switch1"] = true
	doc.Names["name1"] = "mutated"
	if s.Snapshot().Switches["switch1"] {
		t.Error("snapshot mutation leaked into the store (switches)")
	}
	if s.Snapshot().Names["name1"] == "mutated" {
		t.Error("snapshot mutation leaked into the store (names)")
	}
}

func TestMergeStatusDropsUnknownKeys(t *testing.T) {
	s := NewStore()
	rssi := -61

	doc := s.MergeStatus(StatusReport{
		Switches: map[string]bool{"switch1": true, "bogus": true},
		Physical: map[string]bool{"switch2": true},
		System:   &SystemPatch{SignalStrength: &rssi},
	})

	if !doc.Switches["switch1"] {
		t.Error("switch1 not merged")
	}
	if _, ok := doc.Switches["bogus"]; ok {
		t.Error("unknown switch key created by merge")
	}
	if !doc.Physical["switch2"] {
		t.Error("physical position not merged")
	}
	if doc.System.SignalStrength != -61 {
		t.Errorf("SignalStrength = %d, want -61", doc.System.SignalStrength)
	}
	if doc.System.AmbientMode != 0 {
		t.Error("absent system field was modified")
	}
}

func TestSetScheduleValidation(t *testing.T) {
	s := NewStore()

	if _, err := s.SetSchedule("switch1", Schedule{Active: true, Time: "26:90", Action: ActionOn}); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("bad time error = %v, want ErrInvalidTime", err)
	}
	if _, err := s.SetSchedule("switch1", Schedule{Active: true, Time: "07:30", Action: "MAYBE"}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("bad action error = %v, want ErrInvalidAction", err)
	}
	if _, err := s.SetSchedule("switch7", Schedule{Active: true, Time: "07:30", Action: ActionOn}); !errors.Is(err, ErrUnknownSwitch) {
		t.Errorf("unknown switch error = %v, want ErrUnknownSwitch", err)
	}

	doc, err := s.SetSchedule("switch1", Schedule{Active: true, Time: "07:30", Action: ActionOn})
	if err != nil {
		t.Fatalf("SetSchedule() error: %v", err)
	}
	if got := doc.Schedules["switch1"]; !got.Active || got.Time != "07:30" {
		t.Errorf("schedule not stored: %+v", got)
	}
}

func TestSetScheduleReplacesEntirely(t *testing.T) {
	s := NewStore()
	if _, err := s.SetSchedule("switch3", Schedule{Active: true, Time: "07:30", Action: ActionOn}); err != nil {
		t.Fatal(err)
	}
	doc, err := s.SetSchedule("switch3", Schedule{Active: false, Time: "21:00", Action: ActionOff})
	if err != nil {
		t.Fatal(err)
	}
	got := doc.Schedules["switch3"]
	if got.Active || got.Time != "21:00" || got.Action != ActionOff {
		t.Errorf("schedule was merged, not replaced: %+v", got)
	}
}

func TestTimerLifecycle(t *testing.T) {
	s := NewStore()
	endAt := time.Now().Add(5 * time.Minute)

	if _, err := s.SetTimer("switch2", Timer{Active: true, EndAt: endAt, Action: ActionOn}); err != nil {
		t.Fatalf("SetTimer() error: %v", err)
	}

	doc, err := s.DeactivateTimer("switch2")
	if err != nil {
		t.Fatalf("DeactivateTimer() error: %v", err)
	}
	got := doc.Timers["switch2"]
	if got.Active {
		t.Error("timer still active after deactivation")
	}
	if !got.EndAt.Equal(endAt) {
		t.Error("deactivation cleared the end time")
	}

	doc, err = s.ClearTimer("switch2")
	if err != nil {
		t.Fatalf("ClearTimer() error: %v", err)
	}
	if !doc.Timers["switch2"].EndAt.IsZero() {
		t.Error("ClearTimer did not null the fields")
	}
}

func TestRenameIdempotent(t *testing.T) {
	s := NewStore()

	first, err := s.Rename("name2", "Porch Light")
	if err != nil {
		t.Fatalf("Rename() error: %v", err)
	}
	second, err := s.Rename("name2", "Porch Light")
	if err != nil {
		t.Fatalf("second Rename() error: %v", err)
	}
	if first.Names["name2"] != second.Names["name2"] {
		t.Error("repeated rename changed the result")
	}

	if _, err := s.Rename("name9", "x"); !errors.Is(err, ErrUnknownName) {
		t.Errorf("unknown name error = %v, want ErrUnknownName", err)
	}
}

func TestAmbientSuppressAndRestore(t *testing.T) {
	s := NewStore()
	mode := 2
	s.MergeSystem(SystemPatch{AmbientMode: &mode})

	doc, changed := s.SuppressAmbient()
	if !changed {
		t.Fatal("SuppressAmbient() reported no change")
	}
	if doc.System.AmbientMode != 0 || doc.System.SavedAmbientMode != 2 {
		t.Errorf("after suppress: mode=%d saved=%d, want 0/2",
			doc.System.AmbientMode, doc.System.SavedAmbientMode)
	}

	// Suppressing again is a no-op.
	if _, changed := s.SuppressAmbient(); changed {
		t.Error("second SuppressAmbient() reported a change")
	}

	doc, changed = s.RestoreAmbient()
	if !changed {
		t.Fatal("RestoreAmbient() reported no change")
	}
	if doc.System.AmbientMode != 2 || doc.System.SavedAmbientMode != 0 {
		t.Errorf("after restore: mode=%d saved=%d, want 2/0",
			doc.System.AmbientMode, doc.System.SavedAmbientMode)
	}

	// Nothing left to restore.
	if _, changed := s.RestoreAmbient(); changed {
		t.Error("second RestoreAmbient() reported a change")
	}
}

func TestSetHardwareOnlineReportsTransitions(t *testing.T) {
	s := NewStore()

	if _, changed := s.SetHardwareOnline(true); !changed {
		t.Error("false→true not reported as a change")
	}
	if _, changed := s.SetHardwareOnline(true); changed {
		t.Error("true→true reported as a change")
	}
	if _, changed := s.SetHardwareOnline(false); !changed {
		t.Error("true→false not reported as a change")
	}
}

func TestRestoreDurableKeepsRuntimeDefaults(t *testing.T) {
	s := NewStore()

	loaded := DefaultDocument()
	loaded.Switches["switch1"] = true
	loaded.Names["name1"] = "Heater"
	loaded.Physical["switch1"] = true // must be ignored
	loaded.HardwareOnline = true      // must be ignored
	loaded.System.AmbientMode = 3

	s.RestoreDurable(loaded)
	doc := s.Snapshot()

	if !doc.Switches["switch1"] || doc.Names["name1"] != "Heater" || doc.System.AmbientMode != 3 {
		t.Errorf("durable fields not restored: %+v", doc)
	}
	if doc.Physical["switch1"] {
		t.Error("physical position restored from durable storage")
	}
	if doc.HardwareOnline {
		t.Error("hardware liveness restored from durable storage")
	}
}
