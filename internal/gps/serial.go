package gps

import (
	"fmt"
	"log/slog"

	serial "github.com/jacobsa/go-serial/serial"
)

// SerialOptions configures the receiver UART.
type SerialOptions struct {
	Device string // e.g. /dev/serial0
	Baud   uint   // NEO-6M/7M default 9600
	Buffer int    // lines kept while the loop is busy
}

// OpenSerial opens the receiver UART and starts reading lines in the
// background.
func OpenSerial(opts SerialOptions) (*ReaderSource, error) {
	if opts.Baud == 0 {
		opts.Baud = 9600
	}
	port, err := serial.Open(serial.OpenOptions{
		PortName:        opts.Device,
		BaudRate:        opts.Baud,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("gps: open %s: %w", opts.Device, err)
	}
	slog.Info("[GPS] serial port opened", "device", opts.Device, "baud", opts.Baud)
	return NewReaderSource(port, opts.Buffer), nil
}
