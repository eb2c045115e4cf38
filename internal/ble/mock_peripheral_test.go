package ble

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/bikenav/internal/ble/protocol"
)

const (
	mockTX Endpoint = 11
	mockRX Endpoint = 12
)

// notification records one Notify call.
type notification struct {
	conn ConnHandle
	ep   Endpoint
	data []byte
}

// advertiseCall records one Advertise call.
type advertiseCall struct {
	interval time.Duration
	payload  []byte
	scanResp []byte
}

// mockPeripheral simulates the radio. Connections are tracked independently
// of the controller so tests can make the link layer and the controller
// disagree, as happens when a central drops mid-broadcast.
type mockPeripheral struct {
	mu      sync.Mutex
	handler func(Event)
	mac     net.HardwareAddr

	enableErr    error
	registerErr  error
	advertiseErr error

	linked     map[ConnHandle]bool
	values     map[Endpoint][]byte
	notifies   []notification
	advertises []advertiseCall
	// onNotify runs before each Notify is recorded (outside the lock).
	onNotify func(conn ConnHandle)
}

func newMockPeripheral() *mockPeripheral {
	return &mockPeripheral{
		mac:    net.HardwareAddr{0x28, 0xcd, 0xc1, 0x0a, 0xbc, 0xde},
		linked: make(map[ConnHandle]bool),
		values: make(map[Endpoint][]byte),
	}
}

func (m *mockPeripheral) Enable() error { return m.enableErr }

func (m *mockPeripheral) SetEventHandler(handler func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *mockPeripheral) RegisterService(ServiceDefinition) (Endpoint, Endpoint, error) {
	if m.registerErr != nil {
		return 0, 0, m.registerErr
	}
	return mockTX, mockRX, nil
}

func (m *mockPeripheral) HardwareAddr() (net.HardwareAddr, error) { return m.mac, nil }

func (m *mockPeripheral) Advertise(interval time.Duration, payload, scanResp []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advertiseErr != nil {
		return m.advertiseErr
	}
	m.advertises = append(m.advertises, advertiseCall{interval, bytes.Clone(payload), bytes.Clone(scanResp)})
	return nil
}

func (m *mockPeripheral) WriteValue(ep Endpoint, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[ep] = bytes.Clone(data)
	return nil
}

func (m *mockPeripheral) ReadValue(ep Endpoint) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.values[ep]), nil
}

func (m *mockPeripheral) Notify(conn ConnHandle, ep Endpoint, data []byte) error {
	m.mu.Lock()
	hook := m.onNotify
	m.mu.Unlock()
	if hook != nil {
		hook(conn)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.linked[conn] {
		return ErrNotConnected
	}
	m.notifies = append(m.notifies, notification{conn, ep, bytes.Clone(data)})
	return nil
}

func (m *mockPeripheral) emit(ev Event) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// SimulateConnect links a central and raises a connect event.
func (m *mockPeripheral) SimulateConnect(conn ConnHandle) {
	m.mu.Lock()
	m.linked[conn] = true
	m.mu.Unlock()
	m.emit(ConnectEvent{Conn: conn})
}

// SimulateDisconnect unlinks a central and raises a disconnect event.
func (m *mockPeripheral) SimulateDisconnect(conn ConnHandle) {
	m.mu.Lock()
	delete(m.linked, conn)
	m.mu.Unlock()
	m.emit(DisconnectEvent{Conn: conn})
}

// SimulateWrite stores data on ep and raises a write event.
func (m *mockPeripheral) SimulateWrite(conn ConnHandle, ep Endpoint, data []byte) {
	m.mu.Lock()
	m.values[ep] = bytes.Clone(data)
	m.mu.Unlock()
	m.emit(WriteEvent{Conn: conn, Endpoint: ep})
}

func (m *mockPeripheral) notifiedConns() []ConnHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ConnHandle
	for _, n := range m.notifies {
		out = append(out, n.conn)
	}
	return out
}

func (m *mockPeripheral) advertiseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.advertises)
}

func (m *mockPeripheral) lastAdvertise() advertiseCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advertises[len(m.advertises)-1]
}

// recordingSink collects delivered inbound messages.
type recordingSink struct {
	mu   sync.Mutex
	msgs []protocol.Inbound
	err  error
}

func (s *recordingSink) Deliver(msg protocol.Inbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSink) delivered() []protocol.Inbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Inbound(nil), s.msgs...)
}

// recordingStatus records indicator transitions.
type recordingStatus struct {
	mu     sync.Mutex
	states []bool
}

func (s *recordingStatus) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, connected)
}

func (s *recordingStatus) history() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.states...)
}

func TestMockPeripheralImplementsInterface(t *testing.T) {
	var _ Peripheral = (*mockPeripheral)(nil)
}

func TestMockNotifyUnlinked(t *testing.T) {
	m := newMockPeripheral()
	if err := m.Notify(1, mockTX, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Notify() on unlinked conn error = %v, want ErrNotConnected", err)
	}
}
