// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package netmon implements the Network Monitor device, a keep-alive text
// the client can watch to detect a broken connection.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/indi"
)

// DeviceName is the protocol device served by this package
const DeviceName = "Network Monitor"

// DefaultInterval is the heartbeat period
const DefaultInterval = 10 * time.Second

// HeartbeatMessage accompanies every heartbeat update
const HeartbeatMessage = "Sent every 10 seconds, an older timestamp indicates connection failure"

// Options configures the heartbeat
type Options struct {
	Device   string
	Interval time.Duration
	Clock    func() time.Time
}

// Heartbeat is the TenSecondHeartbeat text vector
type Heartbeat struct {
	mu       sync.Mutex
	device   string
	interval time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
	last     time.Time
}

// NewHeartbeat creates the heartbeat vector
func NewHeartbeat(log logrus.FieldLogger, opts Options) *Heartbeat {
	if opts.Device == "" {
		opts.Device = DeviceName
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Heartbeat{
		device:   opts.Device,
		interval: opts.Interval,
		now:      opts.Clock,
		log:      log.WithField("device", opts.Device),
	}
}

func (h *Heartbeat) vector(t time.Time) *indi.Vector {
	return &indi.Vector{
		Kind:      indi.TextKind,
		Device:    h.device,
		Name:      "TenSecondHeartbeat",
		Label:     "Ten second keep-alive",
		Group:     "Status",
		State:     indi.Ok,
		Perm:      indi.ReadOnly,
		Timestamp: t,
		Elements: []indi.Element{{
			Name:  "KeepAlive",
			Label: "Message",
			Value: indi.Timestamp(t) + ": Keep-alive message from " + h.device,
		}},
	}
}

func (h *Heartbeat) OnQuery(q *indi.Message) [][]byte {
	if !indi.Matches(q, h.device, "TenSecondHeartbeat") {
		return nil
	}
	return [][]byte{h.vector(h.now()).Def()}
}

// OnCommand ignores commands, the text is read only
func (h *Heartbeat) OnCommand(m *indi.Message) [][]byte {
	return nil
}

// Beat returns the next heartbeat update
func (h *Heartbeat) Beat() []byte {
	t := h.now()
	h.mu.Lock()
	h.last = t
	h.mu.Unlock()

	v := h.vector(t)
	v.Message = HeartbeatMessage
	return v.Set(v.Elements...)
}

// Last returns the time of the last heartbeat sent
func (h *Heartbeat) Last() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Run sends a heartbeat every interval until ctx is done
func (h *Heartbeat) Run(ctx context.Context, out indi.Sink) error {
	h.log.WithField("interval", h.interval).Debug("Heartbeat started")
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			out.Send(h.Beat())
		}
	}
}
