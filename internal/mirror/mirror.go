package mirror

import (
	"encoding/json"
	"fmt"

	"github.com/switchyard-hub/switchyard/internal/infrastructure/mqtt"
	"github.com/switchyard-hub/switchyard/internal/state"
)

// Logger is the narrow logging surface the mirror needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bus is the broker surface the mirror uses, satisfied by mqtt.Client.
type Bus interface {
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// StatusSink receives status reports that arrived over the bus instead
// of the duplex connection. Satisfied by hub.Router.
type StatusSink interface {
	MergeStatus(rep state.StatusReport)
}

// Mirror republishes each state snapshot to the retained state topic
// and feeds inbound hardware status reports from the bus into the hub.
// It gives external consumers a copy of the document and gives the
// hardware controller a fallback reporting path.
type Mirror struct {
	bus    Bus
	sink   StatusSink
	logger Logger
	qos    byte
	topics mqtt.Topics
}

// New wires the mirror. Start must be called to begin consuming status
// reports.
func New(bus Bus, sink StatusSink, qos byte, logger Logger) *Mirror {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Mirror{
		bus:    bus,
		sink:   sink,
		logger: logger,
		qos:    qos,
	}
}

// Start subscribes to the hardware status topic.
func (m *Mirror) Start() error {
	if err := m.bus.Subscribe(m.topics.HardwareStatus(), m.qos, m.handleStatus); err != nil {
		return fmt.Errorf("subscribing to hardware status: %w", err)
	}
	return nil
}

// handleStatus decodes a bus status report and merges it into the hub.
// Malformed payloads are dropped; the returned error is logged by the
// bus wrapper.
func (m *Mirror) handleStatus(topic string, payload []byte) error {
	var rep state.StatusReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		return fmt.Errorf("decoding status report: %w", err)
	}

	m.logger.Debug("status report received over bus", "topic", topic)
	m.sink.MergeStatus(rep)
	return nil
}

// PublishState mirrors a state snapshot to the retained state topic.
// Implements the hub's StatePublisher. The write waits for the broker
// acknowledgement, so the router calls it from its background publish
// drainer, never on an intent path. Failures are logged.
func (m *Mirror) PublishState(doc state.Document) {
	payload, err := json.Marshal(doc)
	if err != nil {
		m.logger.Error("encoding state for bus", "error", err)
		return
	}
	if err := m.bus.PublishRetained(m.topics.State(), payload); err != nil {
		m.logger.Warn("publishing state to bus", "error", err)
	}
}
