package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chaz8081/bikenav/internal/ble/protocol"
	"github.com/chaz8081/bikenav/internal/gps"
)

// ConsoleSink prints navigation text and fixes for the rider display
// (a serial console or a terminal on the handlebar screen).
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// Compile-time interface satisfaction checks.
var (
	_ Sink         = (*ConsoleSink)(nil)
	_ FixPublisher = (*ConsoleSink)(nil)
)

// NewConsoleSink creates a ConsoleSink writing to w, or stdout when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

// Deliver prints one inbound message:
//
//	ON <current> | IN <distance> <turn> onto <next>
//	NAV: <text>        (NAV: prefix but not four fields)
//	Received: <text>   (anything else)
func (c *ConsoleSink) Deliver(msg protocol.Inbound) error {
	var line string
	switch m := msg.(type) {
	case protocol.NavInstruction:
		line = fmt.Sprintf("ON %s | IN %s %s onto %s", m.CurrentStreet, m.Distance, m.Turn, m.NextStreet)
	case protocol.RawText:
		if m.NavPrefixed {
			line = "NAV: " + m.Text
		} else {
			line = "Received: " + m.Text
		}
	default:
		return fmt.Errorf("output: unsupported message %T", msg)
	}
	return c.println(line)
}

// PublishFix prints "GPS: <lat>, <lon>" with six decimals.
func (c *ConsoleSink) PublishFix(fix gps.Fix) error {
	return c.println(fmt.Sprintf("GPS: %.6f, %.6f", fix.Latitude, fix.Longitude))
}

func (c *ConsoleSink) println(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.w, line); err != nil {
		return fmt.Errorf("output: console write: %w", err)
	}
	return nil
}
