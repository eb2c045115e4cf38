package ble

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/chaz8081/bikenav/internal/ble/protocol"
)

// InboundSink receives parsed writes from the phone.
type InboundSink interface {
	Deliver(msg protocol.Inbound) error
}

// StatusIndicator mirrors the connection state on local hardware (an LED).
type StatusIndicator interface {
	SetConnected(connected bool)
}

// ControllerOptions configures the peripheral controller.
type ControllerOptions struct {
	Service           ServiceDefinition
	NamePrefix        string        // advertised name is "<prefix> <MAC>"
	AdvertiseInterval time.Duration // default 500ms
	LimitedDiscovery  bool
	ClassicBluetooth  bool
	Sink              InboundSink
	Status            StatusIndicator
}

// DefaultControllerOptions returns the Pico relay defaults: "Pico" prefix,
// Nordic UART service, 500ms advertising.
func DefaultControllerOptions() ControllerOptions {
	return ControllerOptions{
		Service:           DefaultService(),
		NamePrefix:        "Pico",
		AdvertiseInterval: 500 * time.Millisecond,
	}
}

// Controller owns the connection set and drives advertising, inbound
// dispatch and outbound coordinate notifications. Safe for concurrent use.
type Controller struct {
	p    Peripheral
	opts ControllerOptions

	tx, rx    Endpoint
	name      string
	serviceID []byte // primary service id in wire order

	mu          sync.Mutex
	conns       map[ConnHandle]struct{}
	advertising bool
}

// NewController activates the radio, registers the service, derives the
// device name from the hardware address and starts advertising. Errors
// wrapping ErrActivation or ErrRegistration are fatal.
func NewController(p Peripheral, opts ControllerOptions) (*Controller, error) {
	if opts.Service == (ServiceDefinition{}) {
		opts.Service = DefaultService()
	}
	if opts.NamePrefix == "" {
		opts.NamePrefix = "Pico"
	}
	if opts.AdvertiseInterval <= 0 {
		opts.AdvertiseInterval = 500 * time.Millisecond
	}

	serviceID, err := ServiceIDBytes(opts.Service.UUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistration, err)
	}

	c := &Controller{
		p:         p,
		opts:      opts,
		serviceID: serviceID,
		conns:     make(map[ConnHandle]struct{}),
	}

	if err := p.Enable(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrActivation, err)
	}

	c.tx, c.rx, err = p.RegisterService(opts.Service)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistration, err)
	}

	mac, err := p.HardwareAddr()
	if err != nil {
		return nil, fmt.Errorf("%w: read hardware address: %w", ErrActivation, err)
	}
	c.name = DeviceName(opts.NamePrefix, mac.String())
	slog.Info("[BLE] device name", "name", c.name)

	// Events are only accepted once the identity and endpoints are fixed.
	p.SetEventHandler(c.HandleEvent)

	if err := c.StartAdvertising(); err != nil {
		return nil, err
	}
	return c, nil
}

// DeviceName formats the advertised name: prefix, a space, then the
// colon-separated uppercase hardware address.
func DeviceName(prefix, mac string) string {
	return prefix + " " + strings.ToUpper(mac)
}

// ServiceIDBytes converts a service UUID string into advertising wire
// order: 2 bytes for a 16-bit id ("180d"), 16 little-endian bytes otherwise.
func ServiceIDBytes(s string) ([]byte, error) {
	if len(s) == 4 {
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("ble: parse 16-bit uuid %q: %w", s, err)
		}
		return []byte{byte(v), byte(v >> 8)}, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("ble: parse uuid %q: %w", s, err)
	}
	b := id[:]
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out, nil
}

// Identity returns the advertised device name.
func (c *Controller) Identity() string { return c.name }

// Endpoints returns the TX and RX endpoints captured at registration.
func (c *Controller) Endpoints() (tx, rx Endpoint) { return c.tx, c.rx }

// StartAdvertising rebuilds the advertising payload and (re)starts
// advertising. Calling it while already advertising is harmless.
func (c *Controller) StartAdvertising() error {
	payload, scanResp, err := c.advertisingPayloads()
	if err != nil {
		return err
	}
	if err := c.p.Advertise(c.opts.AdvertiseInterval, payload, scanResp); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	c.mu.Lock()
	c.advertising = true
	c.mu.Unlock()
	slog.Info("[BLE] advertising", "name", c.name)
	return nil
}

// advertisingPayloads builds name and service into one payload, moving the
// name to the scan response when both do not fit.
func (c *Controller) advertisingPayloads() (payload, scanResp []byte, err error) {
	ids := [][]byte{c.serviceID}
	payload, err = protocol.BuildAdvertisingPayload(c.name, ids, c.opts.LimitedDiscovery, c.opts.ClassicBluetooth)
	if err == nil {
		return payload, nil, nil
	}
	payload, err = protocol.BuildAdvertisingPayload("", ids, c.opts.LimitedDiscovery, c.opts.ClassicBluetooth)
	if err != nil {
		return nil, nil, fmt.Errorf("ble: build advertising payload: %w", err)
	}
	scanResp, err = protocol.BuildScanResponse(c.name)
	if err != nil {
		return nil, nil, fmt.Errorf("ble: build scan response: %w", err)
	}
	return payload, scanResp, nil
}

// HandleEvent is the single link-layer callback.
func (c *Controller) HandleEvent(ev Event) {
	switch ev := ev.(type) {
	case ConnectEvent:
		c.onConnect(ev.Conn)
	case DisconnectEvent:
		c.onDisconnect(ev.Conn)
	case WriteEvent:
		c.onWrite(ev.Conn, ev.Endpoint)
	default:
		slog.Warn("[BLE] unknown event", "event", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) onConnect(conn ConnHandle) {
	c.mu.Lock()
	c.conns[conn] = struct{}{}
	c.mu.Unlock()

	if c.opts.Status != nil {
		c.opts.Status.SetConnected(true)
	}
	slog.Info("[BLE] connected", "conn", conn)
}

func (c *Controller) onDisconnect(conn ConnHandle) {
	c.mu.Lock()
	_, known := c.conns[conn]
	delete(c.conns, conn)
	remaining := len(c.conns) > 0
	c.advertising = false
	c.mu.Unlock()

	if c.opts.Status != nil {
		c.opts.Status.SetConnected(remaining)
	}
	if known {
		slog.Info("[BLE] disconnected", "conn", conn)
	} else {
		slog.Warn("[BLE] disconnect for unknown connection", "conn", conn)
	}

	if err := c.StartAdvertising(); err != nil {
		slog.Error("[BLE] failed to restart advertising", "error", err)
	}
}

func (c *Controller) onWrite(conn ConnHandle, ep Endpoint) {
	if ep != c.rx {
		slog.Debug("[BLE] ignoring write to foreign endpoint", "conn", conn, "endpoint", ep)
		return
	}
	data, err := c.p.ReadValue(c.rx)
	if err != nil {
		slog.Warn("[BLE] failed to read RX value", "conn", conn, "error", err)
		return
	}

	msg := protocol.ParseInbound(data)
	if c.opts.Sink == nil {
		slog.Info("[BLE] received", "conn", conn, "message", fmt.Sprintf("%+v", msg))
		return
	}
	if err := c.opts.Sink.Deliver(msg); err != nil {
		slog.Warn("[BLE] failed to deliver inbound message", "conn", conn, "error", err)
	}
}

// SendCoordinate writes the encoded fix to the TX value and notifies every
// connected central. Failures on one connection do not stop delivery to the
// others and do not change the connection set; they are returned combined.
func (c *Controller) SendCoordinate(lat, lon float64) error {
	msg := protocol.EncodeCoordinate(lat, lon)

	var errs error
	if err := c.p.WriteValue(c.tx, msg); err != nil {
		slog.Warn("[BLE] failed to write TX value", "error", err)
		errs = multierr.Append(errs, fmt.Errorf("ble: write TX value: %w", err))
	}

	for _, conn := range c.Connections() {
		if err := c.p.Notify(conn, c.tx, msg); err != nil {
			slog.Warn("[BLE] notify failed", "conn", conn, "error", err)
			errs = multierr.Append(errs, &NotifyError{Conn: conn, Err: err})
		}
	}
	return errs
}

// Connections returns a sorted snapshot of the active connection handles.
func (c *Controller) Connections() []ConnHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConnHandle, 0, len(c.conns))
	for conn := range c.conns {
		out = append(out, conn)
	}
	slices.Sort(out)
	return out
}

// HasConnections reports whether at least one central is connected.
func (c *Controller) HasConnections() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns) > 0
}

// Advertising reports whether advertising was started after the last
// disconnect. It stays false after a failed restart until a later
// StartAdvertising succeeds; relay.Loop retries once per broadcast interval.
func (c *Controller) Advertising() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advertising
}
