// Package status mirrors the BLE connection state on local hardware.
package status

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Indicator shows whether at least one phone is connected. It matches
// ble.StatusIndicator.
type Indicator interface {
	SetConnected(connected bool)
}

// LEDIndicator drives a GPIO pin high while a phone is connected.
type LEDIndicator struct {
	mu  sync.Mutex
	pin gpio.PinOut
	on  bool
}

var _ Indicator = (*LEDIndicator)(nil)

// OpenLED initializes the host drivers and claims the named pin
// (e.g. "GPIO17"). The LED starts off.
func OpenLED(name string) (*LEDIndicator, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("status: periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("status: LED pin %q not found", name)
	}
	led, err := NewLEDIndicator(pin)
	if err != nil {
		return nil, err
	}
	slog.Info("[LED] ready", "pin", name)
	return led, nil
}

// NewLEDIndicator wraps an output pin and drives it low.
func NewLEDIndicator(pin gpio.PinOut) (*LEDIndicator, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("status: drive %s low: %w", pin, err)
	}
	return &LEDIndicator{pin: pin}, nil
}

// SetConnected switches the LED. Pin errors are logged, not returned.
func (l *LEDIndicator) SetConnected(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	level := gpio.Low
	if connected {
		level = gpio.High
	}
	if err := l.pin.Out(level); err != nil {
		slog.Warn("[LED] failed to set pin", "pin", l.pin.String(), "error", err)
		return
	}
	l.on = connected
}

// On reports the last level successfully written.
func (l *LEDIndicator) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Close turns the LED off and releases the pin.
func (l *LEDIndicator) Close() error {
	l.SetConnected(false)
	return l.pin.Halt()
}

// LogIndicator logs connection state changes. Used when no LED is wired.
type LogIndicator struct {
	mu    sync.Mutex
	known bool
	state bool
}

var _ Indicator = (*LogIndicator)(nil)

func (l *LogIndicator) SetConnected(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.known && l.state == connected {
		return
	}
	l.known, l.state = true, connected
	slog.Info("[LED] status", "connected", connected)
}

// Connected reports the last state seen.
func (l *LogIndicator) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
