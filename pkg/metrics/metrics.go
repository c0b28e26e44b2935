// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics holds the Prometheus instruments shared by the drivers and
// the serial bridge, and the HTTP endpoint that exposes them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// Device protocol
	MessagesParsed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rooftop_indi_messages_parsed_total",
		Help: "Inbound protocol messages parsed",
	})

	MessagesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rooftop_indi_messages_dropped_total",
		Help: "Inbound data discarded as malformed or oversized",
	})

	OutboundSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rooftop_indi_outbound_sent_total",
		Help: "Outbound protocol messages written",
	})

	OutboundDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rooftop_indi_outbound_dropped_total",
		Help: "Outbound messages evicted from a full queue",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rooftop_indi_outbound_queue_depth",
		Help: "Outbound messages waiting to be written",
	})

	// Bus
	BusPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rooftop_bus_publishes_total",
			Help: "Commands published on the bus",
		},
		[]string{"result"},
	)

	// Serial
	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rooftop_frames_received_total",
			Help: "Frames received from the microcontroller",
		},
		[]string{"command"},
	)

	FramesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rooftop_frames_sent_total",
		Help: "Frames written to the microcontroller",
	})

	FrameResyncs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rooftop_frame_resyncs_total",
		Help: "Terminator mismatches that forced a resync",
	})

	CommandsIgnored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rooftop_commands_ignored_total",
		Help: "Bus commands with no frame encoding",
	})

	// Devices
	DoorPWM = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rooftop_door_pwm_ratio",
			Help: "Last pwm ratio sent to each door motor",
		},
		[]string{"door"},
	)

	DoorFailsafe = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rooftop_door_failsafe_stops_total",
			Help: "Door motions stopped by the maximum running time",
		},
		[]string{"door"},
	)

	Temperature = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rooftop_temperature_kelvin",
		Help: "Last temperature reported by the microcontroller",
	})

	PicoAlive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rooftop_pico_alive",
		Help: "1 when the microcontroller answers the monitor echo",
	})

	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rooftop_goroutines",
		Help: "Current goroutine count",
	})
)

var registerOnce sync.Once

// Register adds every instrument to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			MessagesParsed,
			MessagesDropped,
			OutboundSent,
			OutboundDropped,
			QueueDepth,
			BusPublishes,
			FramesReceived,
			FramesSent,
			FrameResyncs,
			CommandsIgnored,
			DoorPWM,
			DoorFailsafe,
			Temperature,
			PicoAlive,
			GoroutineCount,
		)
	})
}

// Handler returns the mux serving /metrics and /health
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Serve registers the instruments and serves them on addr until ctx is done
func Serve(ctx context.Context, addr string, log logrus.FieldLogger) {
	Register()

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				GoroutineCount.Set(float64(runtime.NumGoroutine()))
			}
		}
	}()

	log.WithField("addr", addr).Info("Metrics server started")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server error")
		}
	}()
}
