// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MQTTOptions configures an MQTT bus
type MQTTOptions struct {
	Broker    string
	ClientID  string
	Username  string
	Password  string
	Channel   string
	KeyPrefix string
	QoS       byte
	Timeout   time.Duration
}

// MQTT is a Bus over an MQTT broker.
//
// Commands are published on the channel topic. Keys are retained messages
// under KeyPrefix/<key>, mirrored into a local cache by a wildcard
// subscription; an empty retained payload deletes a key.
type MQTT struct {
	client  mqtt.Client
	opts    MQTTOptions
	subs    *fanout
	log     logrus.FieldLogger
	mu      sync.RWMutex
	cache   map[string]string
	timeout time.Duration
}

// NewMQTT connects to the broker and subscribes to the command and key topics
func NewMQTT(opts MQTTOptions, log logrus.FieldLogger) (*MQTT, error) {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "rooftop"
	}
	if opts.ClientID == "" {
		opts.ClientID = "rooftop-" + uuid.NewString()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	m := &MQTT{
		opts:    opts,
		subs:    newFanout(),
		log:     log,
		cache:   make(map[string]string),
		timeout: opts.Timeout,
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.Timeout).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	m.client = mqtt.NewClient(co)
	token := m.client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", opts.Broker, err)
	}

	log.WithField("broker", opts.Broker).Info("Connected to MQTT broker")
	return m, nil
}

// onConnect (re)establishes subscriptions after every connect
func (m *MQTT) onConnect(c mqtt.Client) {
	filters := map[string]byte{
		m.opts.Channel:          m.opts.QoS,
		m.opts.KeyPrefix + "/#": m.opts.QoS,
	}
	token := c.SubscribeMultiple(filters, m.handle)
	if token.WaitTimeout(m.timeout) && token.Error() != nil {
		m.log.WithError(token.Error()).Error("MQTT subscribe failed")
	}
}

func (m *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	if topic == m.opts.Channel {
		m.subs.deliver(string(msg.Payload()))
		return
	}

	key, ok := strings.CutPrefix(topic, m.opts.KeyPrefix+"/")
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(msg.Payload()) == 0 {
		delete(m.cache, key)
		return
	}
	m.cache[key] = string(msg.Payload())
}

func (m *MQTT) wait(ctx context.Context, token mqtt.Token, what string) error {
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return fmt.Errorf("%s: timed out", what)
	}
}

func (m *MQTT) Publish(ctx context.Context, msg string) error {
	return m.wait(ctx, m.client.Publish(m.opts.Channel, m.opts.QoS, false, msg), "publish "+msg)
}

func (m *MQTT) Subscribe(ctx context.Context) (<-chan string, error) {
	return m.subs.add(ctx)
}

func (m *MQTT) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.cache[key]
	return v, ok, nil
}

func (m *MQTT) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	m.cache[key] = value
	m.mu.Unlock()
	return m.wait(ctx, m.client.Publish(m.topic(key), m.opts.QoS, true, value), "set "+key)
}

func (m *MQTT) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
	return m.wait(ctx, m.client.Publish(m.topic(key), m.opts.QoS, true, []byte{}), "delete "+key)
}

func (m *MQTT) Close() error {
	m.subs.close()
	m.client.Disconnect(250)
	return nil
}

func (m *MQTT) topic(key string) string {
	return m.opts.KeyPrefix + "/" + key
}
