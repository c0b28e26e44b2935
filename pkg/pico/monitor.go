// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pico

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/indi"
	"github.com/Thermoquad/rooftop/pkg/metrics"
	"github.com/Thermoquad/rooftop/pkg/picoframe"
)

// Notices sent when the echo starts or stops arriving
const (
	NoticeAlive = "Pico operational"
	NoticeDead  = "Cannot access pico, operations via the pico board may not be valid"
)

// maxCount is the first value of the echo counter that wraps to zero
const maxCount = 255

// Monitor is the MONITOR light, lit while the microcontroller echoes the
// counter sent to it
type Monitor struct {
	mu     sync.Mutex
	device string
	count  int
	alive  bool
	bus    bus.Bus
	log    logrus.FieldLogger
	now    func() time.Time
	timing Timing
}

// NewMonitor creates the monitor, initially reporting the pico alive
func NewMonitor(b bus.Bus, log logrus.FieldLogger, opts Options) *Monitor {
	opts = opts.withDefaults()
	metrics.PicoAlive.Set(1)
	return &Monitor{
		device: opts.Device,
		alive:  true,
		bus:    b,
		log:    log.WithField("property", "MONITOR"),
		now:    opts.Clock,
		timing: opts.Timing,
	}
}

// Alive reports the result of the last echo check
func (m *Monitor) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

// Ping advances the counter and asks the microcontroller to echo it
func (m *Monitor) Ping(ctx context.Context) int {
	m.mu.Lock()
	m.count++
	if m.count == maxCount {
		m.count = 0
	}
	count := m.count
	m.mu.Unlock()

	publish(ctx, m.bus, m.log, picoframe.MonitorCommand(count))
	return count
}

// Check compares the echoed value with the last count sent. When the result
// differs from the previous check it returns a notice followed by the
// updated light.
func (m *Monitor) Check(ctx context.Context) [][]byte {
	echo, ok, err := m.bus.Get(ctx, picoframe.KeyMonitor)
	if err != nil {
		m.log.WithError(err).Warn("Failed to read monitor echo")
		ok = false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alive := false
	if ok {
		n, err := strconv.Atoi(echo)
		alive = err == nil && n == m.count
	}
	if alive == m.alive {
		return nil
	}
	m.alive = alive

	now := m.now()
	v := m.vector()
	v.Timestamp = now
	var notice []byte
	if alive {
		metrics.PicoAlive.Set(1)
		m.log.Info("Pico echo restored")
		notice = indi.Notice("", NoticeAlive, now)
		v.Message = "Communicating with pico OK"
	} else {
		metrics.PicoAlive.Set(0)
		m.log.Warn("Pico echo lost")
		notice = indi.Notice("", NoticeDead, now)
		v.Message = "Communicating with pico has failed"
	}
	return [][]byte{notice, v.Set(v.Elements...)}
}

func (m *Monitor) vector() *indi.Vector {
	state := indi.Ok
	if !m.alive {
		state = indi.Alert
	}
	return &indi.Vector{
		Kind:      indi.LightKind,
		Device:    m.device,
		Name:      "MONITOR",
		Label:     "REMPICO01 Status",
		Group:     "Status",
		State:     state,
		Timestamp: m.now(),
		Elements: []indi.Element{
			{Name: "PICOALIVE", Label: "Monitor echo from pico 01", Value: string(state)},
		},
	}
}

func (m *Monitor) OnQuery(q *indi.Message) [][]byte {
	if !indi.Matches(q, m.device, "MONITOR") {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return [][]byte{m.vector().Def()}
}

// OnCommand ignores commands, the light is read only
func (m *Monitor) OnCommand(msg *indi.Message) [][]byte {
	return nil
}

// Run pings the microcontroller every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, out indi.Sink) error {
	for {
		if err := sleep(ctx, m.timing.MonitorInterval); err != nil {
			return err
		}
		m.Ping(ctx)
		if err := sleep(ctx, m.timing.MonitorWait); err != nil {
			return err
		}
		for _, doc := range m.Check(ctx) {
			out.Send(doc)
		}
	}
}
