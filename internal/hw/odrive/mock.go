package odrive

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cjeanneret/ddh/internal/debug"
)

// WriteRecord is one property write seen by a MockController.
type WriteRecord struct {
	Prop  string
	Value float64
}

// MockController is an in-memory controller for development without hardware.
// Encoder positions follow setpoints instantly and requested states are
// entered immediately.
type MockController struct {
	mu     sync.Mutex
	props  map[string]float64
	writes []WriteRecord
	closed bool

	// ReadErr and WriteErr, when set, are returned by every call.
	ReadErr  error
	WriteErr error
}

// NewMockController returns a controller with both axes idle at position 0.
func NewMockController() *MockController {
	m := &MockController{props: make(map[string]float64)}
	for axis := 0; axis < 2; axis++ {
		p := fmt.Sprintf("axis%d.", axis)
		m.props[p+"encoder.pos_estimate"] = 0
		m.props[p+"controller.input_pos"] = 0
		m.props[p+"current_state"] = float64(AxisStateIdle)
		m.props[p+"requested_state"] = float64(AxisStateIdle)
		m.props[p+"controller.config.input_mode"] = 1
		m.props[p+"controller.config.pos_gain"] = 20
		m.props[p+"controller.config.vel_gain"] = 0.16
		m.props[p+"controller.config.input_filter_bandwidth"] = 2
	}
	return m
}

// Read returns the stored value of prop.
func (m *MockController) Read(prop string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	v, ok := m.props[prop]
	if !ok {
		return 0, fmt.Errorf("%w: %s: invalid property", ErrProtocol, prop)
	}
	return v, nil
}

// Write stores value and simulates the controller's reaction.
func (m *MockController) Write(prop string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if _, ok := m.props[prop]; !ok {
		return fmt.Errorf("%w: %s: invalid property", ErrProtocol, prop)
	}
	debug.Trace("mock odrive: %s = %g", prop, value)
	m.props[prop] = value
	m.writes = append(m.writes, WriteRecord{Prop: prop, Value: value})

	axis, field, _ := strings.Cut(prop, ".")
	switch field {
	case "controller.input_pos":
		m.props[axis+".encoder.pos_estimate"] = value
	case "requested_state":
		m.props[axis+".current_state"] = value
	}
	return nil
}

// Set seeds a property without recording it as a write.
func (m *MockController) Set(prop string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[prop] = value
}

// Writes returns a copy of every write accepted so far.
func (m *MockController) Writes() []WriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteRecord, len(m.writes))
	copy(out, m.writes)
	return out
}

// ResetWrites forgets the recorded writes.
func (m *MockController) ResetWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}

// Close marks the controller closed.
func (m *MockController) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
