// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	log := logrus.New()
	log.SetOutput(io.Discard)

	r, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr()}, log)
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, mr
}

// ============================================================
// Redis Bus Tests
// ============================================================

func TestRedis_KeyValue(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	if _, ok, err := r.Get(ctx, "pico_door0_status"); err != nil || ok {
		t.Fatalf("Expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := r.Set(ctx, "pico_door0_status", "3"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, _ := mr.Get("pico_door0_status"); got != "3" {
		t.Errorf("Server holds %q, want 3", got)
	}

	mr.Set("pico_monitor", "42")
	v, ok, err := r.Get(ctx, "pico_monitor")
	if err != nil || !ok || v != "42" {
		t.Errorf("Get returned %q ok=%v err=%v", v, ok, err)
	}

	if err := r.Delete(ctx, "pico_monitor"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("pico_monitor") {
		t.Error("Key still present after delete")
	}
}

func TestRedis_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r, _ := newTestRedis(t)

	ch, err := r.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := r.Publish(ctx, "pico_led_On"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := receive(t, ch); got != "pico_led_On" {
		t.Errorf("Expected pico_led_On, got %q", got)
	}
}

func TestRedis_DefaultChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r, mr := newTestRedis(t)

	ch, err := r.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// A publish from another client on the well-known channel arrives
	if n := mr.Publish(DefaultChannel, "pico_temperature"); n != 1 {
		t.Fatalf("Expected 1 subscriber on %s, got %d", DefaultChannel, n)
	}
	if got := receive(t, ch); got != "pico_temperature" {
		t.Errorf("Expected pico_temperature, got %q", got)
	}
}

func TestRedis_ConnectFailure(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedis(context.Background(), RedisOptions{Addr: addr}, log); err == nil {
		t.Error("Expected connection error")
	}
}
