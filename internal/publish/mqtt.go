package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/awaistahir/smart-heat/internal/engine"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

var ErrTimeout = errors.New("mqtt operation timed out")

// Config defines the connection parameters for the broker
type Config struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
}

// pahoClient is the subset of paho.Client the publisher needs
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher pushes schedules and heater state to the actuation side
type Publisher struct {
	client  pahoClient
	prefix  string
	qos     byte
	timeout time.Duration
}

// StateMessage is the retained payload on <prefix>/state
type StateMessage struct {
	On    bool      `json:"on"`
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// ScheduleMessage is the retained payload on <prefix>/schedule
type ScheduleMessage struct {
	Transitions []engine.Transition `json:"transitions"`
	Summary     engine.Summary      `json:"summary"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// New creates a publisher backed by a paho client; call Connect before use
func New(cfg Config) *Publisher {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logrus.WithError(err).Warn("mqtt connection lost")
	})

	return newPublisher(paho.NewClient(opts), cfg.TopicPrefix, cfg.QoS)
}

func newPublisher(client pahoClient, prefix string, qos byte) *Publisher {
	if prefix == "" {
		prefix = "smartheat"
	}
	return &Publisher{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		timeout: 5 * time.Second,
	}
}

// Connect waits for the broker connection
func (p *Publisher) Connect() error {
	return p.wait(p.client.Connect(), "connect")
}

// Close disconnects, letting in-flight messages drain
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// PublishSchedule sends the transitions and summary of a plan
func (p *Publisher) PublishSchedule(res *engine.Result, generatedAt time.Time) error {
	return p.publish("schedule", ScheduleMessage{
		Transitions: res.Transitions,
		Summary:     res.Summary,
		GeneratedAt: generatedAt,
	})
}

// PublishState sends the on/off state the heater should be in now
func (p *Publisher) PublishState(on bool, price float64, at time.Time) error {
	return p.publish("state", StateMessage{On: on, Price: price, At: at})
}

// Topic returns the full topic for a suffix
func (p *Publisher) Topic(suffix string) string {
	return p.prefix + "/" + suffix
}

func (p *Publisher) publish(suffix string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", suffix, err)
	}
	return p.wait(p.client.Publish(p.Topic(suffix), p.qos, true, payload), "publish "+p.Topic(suffix))
}

func (p *Publisher) wait(token paho.Token, op string) error {
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
