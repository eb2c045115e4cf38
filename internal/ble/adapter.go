// Package ble implements the bikenav BLE peripheral: a single Nordic UART
// style service whose TX characteristic notifies the current position and
// whose RX characteristic receives navigation text from the phone.
package ble

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Nordic UART service UUIDs shared with the phone application.
const (
	ServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	TXCharUUID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e" // notify, peripheral -> phone
	RXCharUUID  = "6e400002-b5a3-f393-e0a9-e50e24dcca9e" // write, phone -> peripheral
)

// ConnHandle identifies a central connection as assigned by the link layer.
type ConnHandle uint16

// Endpoint identifies a characteristic value registered with the stack.
type Endpoint uint16

// ServiceDefinition describes the one GATT service the peripheral exposes.
type ServiceDefinition struct {
	UUID   string
	TXUUID string
	RXUUID string
}

// DefaultService returns the Nordic UART service definition.
func DefaultService() ServiceDefinition {
	return ServiceDefinition{UUID: ServiceUUID, TXUUID: TXCharUUID, RXUUID: RXCharUUID}
}

// Event is delivered by the Peripheral through the handler registered with
// SetEventHandler. It is one of ConnectEvent, DisconnectEvent or WriteEvent.
type Event interface {
	event()
}

// ConnectEvent reports a central connecting.
type ConnectEvent struct {
	Conn ConnHandle
}

// DisconnectEvent reports a central disconnecting.
type DisconnectEvent struct {
	Conn ConnHandle
}

// WriteEvent reports a central writing to a characteristic value.
type WriteEvent struct {
	Conn     ConnHandle
	Endpoint Endpoint
}

func (ConnectEvent) event()    {}
func (DisconnectEvent) event() {}
func (WriteEvent) event()      {}

// Peripheral abstracts the BLE radio in the peripheral role for testing.
type Peripheral interface {
	// Enable powers on the radio.
	Enable() error
	// SetEventHandler registers the single callback for link-layer events.
	SetEventHandler(handler func(Event))
	// RegisterService adds the service and returns its TX and RX endpoints.
	RegisterService(svc ServiceDefinition) (tx, rx Endpoint, err error)
	// HardwareAddr returns the radio's public address.
	HardwareAddr() (net.HardwareAddr, error)
	// Advertise (re)starts advertising with the given raw payloads.
	// scanResponse may be nil.
	Advertise(interval time.Duration, payload, scanResponse []byte) error
	// WriteValue replaces the locally readable value of an endpoint.
	WriteValue(ep Endpoint, data []byte) error
	// ReadValue returns the current value of an endpoint, e.g. after a write.
	ReadValue(ep Endpoint) ([]byte, error)
	// Notify pushes data on an endpoint to one connected central.
	Notify(conn ConnHandle, ep Endpoint, data []byte) error
}

var (
	// ErrActivation means the radio could not be enabled. Fatal.
	ErrActivation = errors.New("ble: radio activation failed")
	// ErrRegistration means the GATT service could not be registered. Fatal.
	ErrRegistration = errors.New("ble: service registration failed")
	// ErrNotConnected is returned by Peripheral.Notify for an unknown handle.
	ErrNotConnected = errors.New("ble: connection not active")
)

// NotifyError is a failed notification to one connection. It is never fatal.
type NotifyError struct {
	Conn ConnHandle
	Err  error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("ble: notify conn %d: %v", e.Conn, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// IsFatal reports whether err is one of the initialization failures that
// must abort startup.
func IsFatal(err error) bool {
	return errors.Is(err, ErrActivation) || errors.Is(err, ErrRegistration)
}
