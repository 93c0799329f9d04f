package hub

import "errors"

var (
	// ErrHardwareOffline rejects switch intents while no live hardware
	// controller is attached.
	ErrHardwareOffline = errors.New("hub: hardware controller offline")

	// ErrInterlocked rejects an ON intent for a protected switch whose
	// physical wall switch is off.
	ErrInterlocked = errors.New("hub: physical interlock engaged")
)
