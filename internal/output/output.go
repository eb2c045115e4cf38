// Package output delivers messages written by the phone and local position
// fixes to the rider-facing sinks: the console and, optionally, an MQTT broker.
package output

import (
	"go.uber.org/multierr"

	"github.com/chaz8081/bikenav/internal/ble/protocol"
	"github.com/chaz8081/bikenav/internal/gps"
)

// Sink receives parsed inbound messages. It matches ble.InboundSink.
type Sink interface {
	Deliver(msg protocol.Inbound) error
}

// FixPublisher receives decoded position fixes from the relay loop.
type FixPublisher interface {
	PublishFix(fix gps.Fix) error
}

// Multi fans a message out to several sinks and publishers.
type Multi struct {
	sinks      []Sink
	publishers []FixPublisher
}

// Compile-time interface satisfaction checks.
var (
	_ Sink         = (*Multi)(nil)
	_ FixPublisher = (*Multi)(nil)
)

// NewMulti creates a Multi delivering messages to sinks and fixes to
// publishers.
func NewMulti(sinks []Sink, publishers []FixPublisher) *Multi {
	return &Multi{sinks: sinks, publishers: publishers}
}

// Deliver hands msg to every sink. All sinks are tried; their errors are
// combined.
func (m *Multi) Deliver(msg protocol.Inbound) error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Deliver(msg))
	}
	return err
}

// PublishFix hands fix to every publisher.
func (m *Multi) PublishFix(fix gps.Fix) error {
	var err error
	for _, p := range m.publishers {
		err = multierr.Append(err, p.PublishFix(fix))
	}
	return err
}
