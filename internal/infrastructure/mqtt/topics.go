package mqtt

import "fmt"

// Topic prefixes for the Switchyard MQTT surface.
//
// The hub keeps a small, flat hierarchy: a retained state document, an
// inbound status channel for the hardware controller's bus fallback,
// and a system status topic carrying the hub's own liveness.
const (
	// TopicPrefix is the base for all Switchyard topics.
	TopicPrefix = "switchyard"

	// TopicPrefixSystem is the base for hub system topics.
	TopicPrefixSystem = "switchyard/system"
)

// Topics provides builders for Switchyard MQTT topics. Using these
// helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// State returns the retained state-document topic. The full document is
// republished here after every change.
//
// Topic: switchyard/state
func (Topics) State() string {
	return fmt.Sprintf("%s/state", TopicPrefix)
}

// HardwareStatus returns the topic the hardware controller reports
// status on when its duplex connection is unavailable.
//
// Topic: switchyard/status
func (Topics) HardwareStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefix)
}

// SystemStatus returns the hub liveness topic. Online and graceful
// offline messages are published here; the LWT lands here on a crash.
//
// Topic: switchyard/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
