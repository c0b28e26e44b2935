// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package driver runs a device driver: it reads protocol messages from the
// client, dispatches them to the registered properties, runs the periodic
// device tasks, and writes every reply through one ordered outbound queue.
package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/indi"
	"github.com/Thermoquad/rooftop/pkg/metrics"
)

// Task is a periodic device activity. Run blocks until ctx is done.
type Task interface {
	Run(ctx context.Context, out indi.Sink) error
}

// TaskFunc adapts a function to Task
type TaskFunc func(ctx context.Context, out indi.Sink) error

// Run calls f(ctx, out)
func (f TaskFunc) Run(ctx context.Context, out indi.Sink) error {
	return f(ctx, out)
}

// Options configures a Runtime
type Options struct {
	QueueSize      int
	MaxMessageSize int
}

// Runtime owns the reader, the writer and the device tasks of one driver
type Runtime struct {
	in    io.Reader
	out   io.Writer
	log   logrus.FieldLogger
	queue *Queue
	frame *indi.FrameReader
	props []indi.Property
	tasks []Task
}

// New creates a runtime reading from in and writing to out
func New(in io.Reader, out io.Writer, log logrus.FieldLogger, opts Options) *Runtime {
	r := &Runtime{
		in:    in,
		out:   out,
		log:   log,
		queue: NewQueue(opts.QueueSize),
	}

	r.queue.OnDrop = func(doc []byte) {
		metrics.OutboundDropped.Inc()
		log.WithField("dropped", r.queue.Dropped()).Warn("Outbound queue full, dropped oldest message")
	}

	r.frame = indi.NewFrameReader(r.Dispatch)
	r.frame.SetMaxSize(opts.MaxMessageSize)
	r.frame.OnDrop = func(reason error) {
		metrics.MessagesDropped.Inc()
		log.WithError(reason).Debug("Discarded inbound data")
	}

	return r
}

// Register adds properties to receive queries and commands
func (r *Runtime) Register(props ...indi.Property) {
	r.props = append(r.props, props...)
}

// AddTask adds periodic tasks started by Run
func (r *Runtime) AddTask(tasks ...Task) {
	r.tasks = append(r.tasks, tasks...)
}

// Queue returns the outbound queue
func (r *Runtime) Queue() *Queue {
	return r.queue
}

// Send enqueues an outbound document
func (r *Runtime) Send(doc []byte) {
	if len(doc) == 0 {
		return
	}
	r.queue.Push(doc)
	metrics.QueueDepth.Set(float64(r.queue.Len()))
}

// Dispatch routes one inbound message to the registered properties
func (r *Runtime) Dispatch(m *indi.Message) {
	metrics.MessagesParsed.Inc()

	if m.Tag == indi.TagGetProperties {
		if v, _ := m.Attr("version"); v != indi.ProtocolVersion {
			r.log.WithField("version", v).Debug("Ignoring getProperties for unsupported version")
			return
		}
		for _, p := range r.props {
			r.sendAll(p.OnQuery(m))
		}
		return
	}

	for _, p := range r.props {
		r.sendAll(p.OnCommand(m))
	}
}

func (r *Runtime) sendAll(docs [][]byte) {
	for _, doc := range docs {
		r.Send(doc)
	}
}

// Run starts the writer and the tasks, then reads until the input closes or
// ctx is done. Queued messages are flushed before Run returns.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writerWG sync.WaitGroup
	writerErr := make(chan error, 1)
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		writerErr <- r.writer(ctx)
	}()

	var taskWG sync.WaitGroup
	for _, t := range r.tasks {
		taskWG.Add(1)
		go func(t Task) {
			defer taskWG.Done()
			if err := t.Run(ctx, r); err != nil && !errors.Is(err, context.Canceled) {
				r.log.WithError(err).Error("Task stopped")
			}
		}(t)
	}

	readerErr := make(chan error, 1)
	go func() {
		readerErr <- r.reader()
	}()

	var err error
	select {
	case err = <-readerErr:
		if err == nil {
			r.log.Info("Input closed")
		}
	case err = <-writerErr:
		writerErr <- err
	case <-ctx.Done():
	}

	cancel()
	taskWG.Wait()
	writerWG.Wait()

	if werr := <-writerErr; werr != nil && err == nil {
		err = werr
	}
	return err
}

// reader feeds the input to the frame reader until EOF
func (r *Runtime) reader() error {
	br := bufio.NewReader(r.in)
	for {
		chunk, err := br.ReadSlice('>')
		if len(chunk) > 0 {
			r.frame.Feed(chunk)
		}
		if err == nil || errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read input: %w", err)
	}
}

// writer is the single consumer of the outbound queue
func (r *Runtime) writer(ctx context.Context) error {
	for {
		doc, err := r.queue.Pop(ctx)
		if err != nil {
			return r.flush()
		}
		if err := r.write(doc); err != nil {
			return err
		}
	}
}

// flush writes whatever is still queued
func (r *Runtime) flush() error {
	for {
		doc, ok := r.queue.TryPop()
		if !ok {
			return nil
		}
		if err := r.write(doc); err != nil {
			return err
		}
	}
}

func (r *Runtime) write(doc []byte) error {
	line := make([]byte, 0, len(doc)+1)
	line = append(line, doc...)
	line = append(line, '\n')
	if _, err := r.out.Write(line); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	metrics.OutboundSent.Inc()
	metrics.QueueDepth.Set(float64(r.queue.Len()))
	return nil
}
