package output

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chaz8081/bikenav/internal/ble/protocol"
	"github.com/chaz8081/bikenav/internal/gps"
)

// Topic suffixes under the configured prefix.
const (
	TopicNav = "nav"
	TopicRaw = "raw"
	TopicFix = "fix"
)

// Publisher is the subset of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker         string // e.g. tcp://localhost:1883
	ClientID       string
	TopicPrefix    string // e.g. bikenav
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// MQTTSink publishes inbound messages and fixes as JSON so other processes
// on the board (a dashboard, a logger) can follow the ride.
type MQTTSink struct {
	pub     Publisher
	client  mqtt.Client // nil when built from a bare Publisher
	prefix  string
	timeout time.Duration
}

// Compile-time interface satisfaction checks.
var (
	_ Sink         = (*MQTTSink)(nil)
	_ FixPublisher = (*MQTTSink)(nil)
)

// DialMQTT connects to the broker and returns a sink publishing through it.
func DialMQTT(opts MQTTOptions) (*MQTTSink, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("[MQTT] connection lost", "error", err)
		})

	client := mqtt.NewClient(clientOpts)
	if err := connect(client, opts.Broker, opts.ConnectTimeout); err != nil {
		return nil, err
	}
	slog.Info("[MQTT] connected", "broker", opts.Broker, "client_id", opts.ClientID)

	s := NewMQTTSink(client, opts.TopicPrefix, opts.PublishTimeout)
	s.client = client
	return s, nil
}

// connector is the subset of mqtt.Client used to establish the session.
type connector interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
}

// connect waits for the session. On timeout the pending attempt is
// abandoned so the client stops retrying in the background.
func connect(c connector, broker string, timeout time.Duration) error {
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		c.Disconnect(0)
		return fmt.Errorf("output: mqtt connect %s: timed out after %s", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("output: mqtt connect %s: %w", broker, err)
	}
	return nil
}

// NewMQTTSink creates a sink over an existing publisher. A zero timeout
// defaults to 2s.
func NewMQTTSink(pub Publisher, prefix string, timeout time.Duration) *MQTTSink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MQTTSink{pub: pub, prefix: strings.TrimSuffix(prefix, "/"), timeout: timeout}
}

// Topic returns the full topic for a suffix.
func (s *MQTTSink) Topic(suffix string) string {
	if s.prefix == "" {
		return suffix
	}
	return s.prefix + "/" + suffix
}

// Deliver publishes an instruction to <prefix>/nav and anything else to
// <prefix>/raw.
func (s *MQTTSink) Deliver(msg protocol.Inbound) error {
	switch m := msg.(type) {
	case protocol.NavInstruction:
		return s.publishJSON(TopicNav, false, m)
	case protocol.RawText:
		return s.publishJSON(TopicRaw, false, m)
	default:
		return fmt.Errorf("output: unsupported message %T", msg)
	}
}

// PublishFix publishes the fix to <prefix>/fix, retained so late
// subscribers see the current position.
func (s *MQTTSink) PublishFix(fix gps.Fix) error {
	return s.publishJSON(TopicFix, true, fix)
}

// Close disconnects from the broker when the sink owns the client.
func (s *MQTTSink) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

func (s *MQTTSink) publishJSON(suffix string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("output: marshal %s: %w", suffix, err)
	}
	topic := s.Topic(suffix)
	token := s.pub.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("output: publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("output: publish %s: %w", topic, err)
	}
	slog.Debug("[MQTT] published", "topic", topic, "bytes", len(payload))
	return nil
}
