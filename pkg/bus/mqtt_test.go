// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

// message is an inbound MQTT message as the client library hands it over
type message struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 0 }
func (m *message) Retained() bool    { return m.retained }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}

// newUnconnectedMQTT builds an MQTT bus without a client, for exercising the
// inbound message handling
func newUnconnectedMQTT() *MQTT {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &MQTT{
		opts:  MQTTOptions{Channel: DefaultChannel, KeyPrefix: "rooftop"},
		subs:  newFanout(),
		log:   log,
		cache: make(map[string]string),
	}
}

// ============================================================
// MQTT Bus Tests
// ============================================================

func TestMQTT_RetainedKeys(t *testing.T) {
	ctx := context.Background()
	m := newUnconnectedMQTT()

	if got := m.topic("pico_door0_status"); got != "rooftop/pico_door0_status" {
		t.Errorf("Unexpected key topic %q", got)
	}

	m.handle(nil, &message{topic: "rooftop/pico_door0_status", payload: []byte("3"), retained: true})
	v, ok, err := m.Get(ctx, "pico_door0_status")
	if err != nil || !ok || v != "3" {
		t.Fatalf("Get = (%q, %v, %v), want (\"3\", true, nil)", v, ok, err)
	}

	m.handle(nil, &message{topic: "rooftop/pico_door0_status", payload: []byte("1"), retained: true})
	if v, _, _ := m.Get(ctx, "pico_door0_status"); v != "1" {
		t.Errorf("Expected updated value 1, got %q", v)
	}

	// an empty retained payload deletes the key
	m.handle(nil, &message{topic: "rooftop/pico_door0_status", retained: true})
	if _, ok, _ := m.Get(ctx, "pico_door0_status"); ok {
		t.Error("Expected key to be deleted by empty payload")
	}
}

func TestMQTT_ForeignTopicsIgnored(t *testing.T) {
	ctx := context.Background()
	m := newUnconnectedMQTT()

	m.handle(nil, &message{topic: "other/pico_monitor", payload: []byte("7")})
	m.handle(nil, &message{topic: "rooftopx/pico_monitor", payload: []byte("7")})

	if _, ok, _ := m.Get(ctx, "pico_monitor"); ok {
		t.Error("Key from a foreign topic reached the cache")
	}
	if len(m.cache) != 0 {
		t.Errorf("Expected empty cache, got %v", m.cache)
	}
}

func TestMQTT_CommandsFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newUnconnectedMQTT()

	ch1, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	ch2, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	m.handle(nil, &message{topic: DefaultChannel, payload: []byte("pico_door1_pwm_40")})

	for _, ch := range []<-chan string{ch1, ch2} {
		if got := receive(t, ch); got != "pico_door1_pwm_40" {
			t.Errorf("Expected command, got %q", got)
		}
	}
	if _, ok, _ := m.Get(ctx, "pico_door1_pwm_40"); ok {
		t.Error("Command was cached as a key")
	}
}
