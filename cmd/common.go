// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/driver"
	"github.com/Thermoquad/rooftop/pkg/indi"
	"github.com/Thermoquad/rooftop/pkg/metrics"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openBus connects to the configured bus backend
func openBus(ctx context.Context) (bus.Bus, error) {
	switch cfg.Bus.Backend {
	case "redis":
		return bus.NewRedis(ctx, bus.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Channel:  cfg.Bus.Channel,
		}, log)
	case "mqtt":
		return bus.NewMQTT(bus.MQTTOptions{
			Broker:    cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Channel:   cfg.Bus.Channel,
			KeyPrefix: cfg.MQTT.KeyPrefix,
			QoS:       1,
		}, log)
	case "memory":
		return bus.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Bus.Backend)
	}
}

// startMetrics serves the metrics endpoint when enabled
func startMetrics(ctx context.Context) {
	if !cfg.Metrics.Enabled {
		return
	}
	metrics.Serve(ctx, cfg.Metrics.Addr, log)
}

// runDriver runs a device driver on stdin/stdout until ctx is done
func runDriver(ctx context.Context, props []indi.Property, tasks []driver.Task) error {
	rt := driver.New(os.Stdin, os.Stdout, log, driver.Options{
		QueueSize:      cfg.Driver.QueueSize,
		MaxMessageSize: cfg.Driver.MaxMessageSize,
	})
	rt.Register(props...)
	rt.AddTask(tasks...)
	return rt.Run(ctx)
}
