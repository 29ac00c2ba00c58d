// Package notify publishes alerts to an MQTT broker and listens for
// acknowledgments coming back from remote clients.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

// DefaultTopic is the base topic alerts are published under.
const DefaultTopic = "kitchenwatch/alerts"

var (
	// ErrNotConnected is returned when publishing before Connect succeeded.
	ErrNotConnected = errors.New("mqtt not connected")
	// ErrTimeout is returned when the broker does not confirm in time.
	ErrTimeout = errors.New("mqtt operation timed out")
)

// MQTTConfig configures the MQTT notifier.
type MQTTConfig struct {
	// Broker is host:port or a full URL such as tcp://host:1883.
	Broker   string
	ClientID string
	// Topic is the base topic. Alerts go to Topic, state changes to
	// Topic/state and acknowledgments are read from Topic/ack.
	Topic string
	QoS   byte
	// Timeout bounds connect, publish and subscribe round trips.
	Timeout time.Duration
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	c.Topic = strings.TrimSuffix(c.Topic, "/")
	if c.ClientID == "" {
		c.ClientID = "kitchenwatch"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// brokerURL adds the tcp scheme when the broker is a bare host:port.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// client is the subset of mqtt.Client the notifier uses.
type client interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// StateMessage is published on Topic/state for acknowledgments and re-arms.
type StateMessage struct {
	ID    string    `json:"id"`
	State string    `json:"state"`
	Time  time.Time `json:"time"`
}

// MQTTNotifier implements alert.Notifier and alert.Listener over MQTT.
type MQTTNotifier struct {
	cfg    MQTTConfig
	ack    alert.AckFunc
	client client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTNotifier creates a notifier. ack is called for every message on
// the acknowledgment topic; it may be nil.
func NewMQTTNotifier(cfg MQTTConfig, ack alert.AckFunc) *MQTTNotifier {
	return &MQTTNotifier{cfg: cfg.withDefaults(), ack: ack}
}

// AckTopic returns the topic acknowledgments are read from.
func (n *MQTTNotifier) AckTopic() string { return n.cfg.Topic + "/ack" }

// StateTopic returns the topic state changes are published to.
func (n *MQTTNotifier) StateTopic() string { return n.cfg.Topic + "/state" }

// Connect establishes the broker connection and subscribes to the
// acknowledgment topic. The subscription is restored after reconnects.
func (n *MQTTNotifier) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(n.cfg.Broker))
	opts.SetClientID(n.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		n.setConnected(true)
		slog.Info("mqtt connection established", "broker", n.cfg.Broker, "client_id", n.cfg.ClientID)
		if err := n.subscribe(c); err != nil {
			slog.Warn("mqtt subscribe failed", "topic", n.AckTopic(), "err", err)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		n.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", n.cfg.Broker, "err", err)
	}

	slog.Info("connecting to mqtt broker", "broker", n.cfg.Broker)
	return n.connect(ctx, mqtt.NewClient(opts))
}

func (n *MQTTNotifier) connect(ctx context.Context, c client) error {
	n.client = c

	if err := wait(ctx, c.Connect(), n.cfg.Timeout); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	n.setConnected(true)
	return nil
}

func (n *MQTTNotifier) subscribe(c client) error {
	return wait(context.Background(), c.Subscribe(n.AckTopic(), n.cfg.QoS, n.handleAck), n.cfg.Timeout)
}

func (n *MQTTNotifier) handleAck(_ mqtt.Client, msg mqtt.Message) {
	slog.Info("acknowledgment received", "topic", msg.Topic(), "payload", string(msg.Payload()))
	if n.ack != nil {
		n.ack()
	}
}

// Notify publishes a as JSON to the base topic.
func (n *MQTTNotifier) Notify(ctx context.Context, a alert.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return n.publish(ctx, n.cfg.Topic, false, payload)
}

func (n *MQTTNotifier) OnAlert(alert.Alert, error) {}

func (n *MQTTNotifier) OnAcknowledge(id string, at time.Time) {
	n.publishState(id, alert.Acknowledged.String(), at)
}

func (n *MQTTNotifier) OnRearm(id string, at time.Time) {
	n.publishState(id, alert.Idle.String(), at)
}

// publishState sends a retained message so late subscribers see the latest state.
func (n *MQTTNotifier) publishState(id, state string, at time.Time) {
	payload, err := json.Marshal(StateMessage{ID: id, State: state, Time: at})
	if err != nil {
		return
	}
	if err := n.publish(context.Background(), n.StateTopic(), true, payload); err != nil {
		slog.Warn("failed to publish alert state", "alert", id, "state", state, "err", err)
	}
}

func (n *MQTTNotifier) publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	if !n.isConnected() {
		n.countError()
		return ErrNotConnected
	}

	if err := wait(ctx, n.client.Publish(topic, n.cfg.QoS, retained, payload), n.cfg.Timeout); err != nil {
		n.countError()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()

	slog.Debug("mqtt message published", "topic", topic, "qos", n.cfg.QoS, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection.
func (n *MQTTNotifier) Disconnect() {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	n.setConnected(false)
}

// Stats returns the number of published messages and failures.
func (n *MQTTNotifier) Stats() (published, failed uint64) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.published, n.errors
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *MQTTNotifier) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// wait blocks on tok until it completes, ctx ends or timeout elapses.
func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
