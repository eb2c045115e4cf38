package status

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestLEDIndicator(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", Num: 17, L: gpio.High}
	led, err := NewLEDIndicator(pin)
	if err != nil {
		t.Fatalf("NewLEDIndicator() error = %v", err)
	}
	if pin.Read() != gpio.Low {
		t.Error("LED should start off")
	}

	led.SetConnected(true)
	if pin.Read() != gpio.High || !led.On() {
		t.Errorf("after connect: level = %v, On() = %v", pin.Read(), led.On())
	}

	led.SetConnected(false)
	if pin.Read() != gpio.Low || led.On() {
		t.Errorf("after disconnect: level = %v, On() = %v", pin.Read(), led.On())
	}

	led.SetConnected(true)
	if err := led.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if pin.Read() != gpio.Low {
		t.Error("Close() should turn the LED off")
	}
}

func TestLogIndicatorLogsChangesOnly(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	var ind LogIndicator
	ind.SetConnected(false)
	ind.SetConnected(true)
	ind.SetConnected(true)
	ind.SetConnected(false)

	if got := strings.Count(buf.String(), "[LED] status"); got != 3 {
		t.Errorf("logged %d status lines, want 3:\n%s", got, buf.String())
	}
	if ind.Connected() {
		t.Error("Connected() = true, want false")
	}
}
