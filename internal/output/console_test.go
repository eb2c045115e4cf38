package output

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chaz8081/bikenav/internal/ble/protocol"
	"github.com/chaz8081/bikenav/internal/gps"
)

func TestConsoleSinkDeliver(t *testing.T) {
	tests := []struct {
		name string
		msg  protocol.Inbound
		want string
	}{
		{
			name: "instruction",
			msg:  protocol.ParseInbound([]byte("NAV:Main St|150m|left|Oak Ave")),
			want: "ON Main St | IN 150m left onto Oak Ave\n",
		},
		{
			name: "malformed nav",
			msg:  protocol.ParseInbound([]byte("NAV:garbage")),
			// The whole stripped input is echoed after the label.
			want: "NAV: NAV:garbage\n",
		},
		{
			name: "raw",
			msg:  protocol.ParseInbound([]byte("hello")),
			want: "Received: hello\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c := NewConsoleSink(&buf)
			if err := c.Deliver(tt.msg); err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestConsoleSinkPublishFix(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleSink(&buf)
	if err := c.PublishFix(gps.Fix{Latitude: 37.7749, Longitude: -122.4194}); err != nil {
		t.Fatalf("PublishFix() error = %v", err)
	}
	if want := "GPS: 37.774900, -122.419400\n"; buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestConsoleSinkWriteError(t *testing.T) {
	c := NewConsoleSink(failingWriter{})
	if err := c.Deliver(protocol.RawText{Text: "x"}); err == nil {
		t.Error("Deliver() should fail when the writer fails")
	}
}

// recordingSink records deliveries and fixes, optionally failing.
type recordingSink struct {
	msgs  []protocol.Inbound
	fixes []gps.Fix
	err   error
}

func (r *recordingSink) Deliver(msg protocol.Inbound) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingSink) PublishFix(fix gps.Fix) error {
	r.fixes = append(r.fixes, fix)
	return r.err
}

// deliverOnly has no PublishFix.
type deliverOnly struct{ n int }

func (d *deliverOnly) Deliver(protocol.Inbound) error { d.n++; return nil }

func TestMultiFansOut(t *testing.T) {
	a := &recordingSink{err: errors.New("a failed")}
	b := &recordingSink{}
	d := &deliverOnly{}
	m := NewMulti([]Sink{a, b, d}, []FixPublisher{a, b})

	err := m.Deliver(protocol.RawText{Text: "hi"})
	if err == nil || err.Error() != "a failed" {
		t.Errorf("Deliver() error = %v, want a failed", err)
	}
	if len(a.msgs) != 1 || len(b.msgs) != 1 || d.n != 1 {
		t.Errorf("deliveries = %d, %d, %d; want 1 each", len(a.msgs), len(b.msgs), d.n)
	}

	fix := gps.Fix{Latitude: 1, Longitude: 2}
	if err := m.PublishFix(fix); err == nil {
		t.Error("PublishFix() error = nil, want a failed")
	}
	if len(a.fixes) != 1 || len(b.fixes) != 1 || b.fixes[0] != fix {
		t.Errorf("fixes = %v, %v", a.fixes, b.fixes)
	}
}

func TestMultiEmpty(t *testing.T) {
	m := NewMulti(nil, nil)
	if err := m.Deliver(protocol.RawText{Text: "x"}); err != nil {
		t.Errorf("Deliver() error = %v", err)
	}
	if err := m.PublishFix(gps.Fix{}); err != nil {
		t.Errorf("PublishFix() error = %v", err)
	}
}
