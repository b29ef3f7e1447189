package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Bridge republishes notifications to an external channel.
type Bridge interface {
	Name() string
	PublishUser(userID int64, msg Message) error
	PublishRole(role string, msg Message) error
	Close()
}

// Publisher is the subset of a paho client the bridge needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOptions configures the MQTT bridge.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// MQTTBridge publishes every notification as a JSON message, non-retained.
type MQTTBridge struct {
	client  Publisher
	prefix  string
	qos     byte
	timeout time.Duration
}

// DialMQTT connects to the broker and returns a ready bridge.
func DialMQTT(o MQTTOptions) (*MQTTBridge, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to broker: %v", token.Error())
	}
	return NewMQTTBridge(client, o.TopicPrefix, o.QoS), nil
}

// NewMQTTBridge wraps an already connected client.
func NewMQTTBridge(client Publisher, prefix string, qos byte) *MQTTBridge {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "inspections"
	}
	return &MQTTBridge{client: client, prefix: prefix, qos: qos, timeout: 2 * time.Second}
}

func (b *MQTTBridge) Name() string { return "mqtt" }

// UserTopic is <prefix>/users/<id>/<event>.
func (b *MQTTBridge) UserTopic(userID int64, event string) string {
	return fmt.Sprintf("%s/users/%d/%s", b.prefix, userID, event)
}

// RoleTopic is <prefix>/roles/<role>/<event>.
func (b *MQTTBridge) RoleTopic(role, event string) string {
	return fmt.Sprintf("%s/roles/%s/%s", b.prefix, role, event)
}

func (b *MQTTBridge) PublishUser(userID int64, msg Message) error {
	return b.publish(b.UserTopic(userID, msg.Event), msg)
}

func (b *MQTTBridge) PublishRole(role string, msg Message) error {
	return b.publish(b.RoleTopic(role, msg.Event), msg)
}

func (b *MQTTBridge) publish(topic string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Event, err)
	}
	token := b.client.Publish(topic, b.qos, false, body)
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message: %v", err)
	}
	return nil
}

// Close disconnects with a short quiesce period.
func (b *MQTTBridge) Close() { b.client.Disconnect(250) }
