// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/indi"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// syncBuffer is a bytes.Buffer safe for concurrent use
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// echoProperty answers queries with its name and commands with the child count
type echoProperty struct {
	device, name string
}

func (e *echoProperty) OnQuery(q *indi.Message) [][]byte {
	if !indi.Matches(q, e.device, e.name) {
		return nil
	}
	return [][]byte{[]byte("<def " + e.name + "/>")}
}

func (e *echoProperty) OnCommand(m *indi.Message) [][]byte {
	if !m.IsFor(indi.TagNewSwitchVector, e.device, e.name) {
		return nil
	}
	return [][]byte{[]byte(fmt.Sprintf("<set %s %d/>", e.name, len(m.Children)))}
}

// ============================================================
// Queue Tests
// ============================================================

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 5; i++ {
		q.Push([]byte{byte(i)})
	}
	for i := 0; i < 5; i++ {
		doc, ok := q.TryPop()
		if !ok || doc[0] != byte(i) {
			t.Fatalf("Expected %d, got %v ok=%v", i, doc, ok)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("Expected empty queue")
	}
}

func TestQueue_DropOldest(t *testing.T) {
	q := NewQueue(3)
	var evicted [][]byte
	q.OnDrop = func(doc []byte) { evicted = append(evicted, doc) }

	for i := 0; i < 5; i++ {
		dropped := q.Push([]byte{byte(i)})
		if dropped != (i >= 3) {
			t.Errorf("Push %d: dropped=%v", i, dropped)
		}
	}

	if q.Len() != 3 || q.Dropped() != 2 {
		t.Fatalf("Expected len 3 dropped 2, got len %d dropped %d", q.Len(), q.Dropped())
	}
	if len(evicted) != 2 || evicted[0][0] != 0 || evicted[1][0] != 1 {
		t.Errorf("Unexpected evictions %v", evicted)
	}
	for want := byte(2); want < 5; want++ {
		doc, _ := q.TryPop()
		if doc[0] != want {
			t.Errorf("Expected %d, got %d", want, doc[0])
		}
	}
}

func TestQueue_DefaultSize(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < DefaultQueueSize+1; i++ {
		q.Push([]byte("x"))
	}
	if q.Len() != DefaultQueueSize {
		t.Errorf("Expected %d entries, got %d", DefaultQueueSize, q.Len())
	}
}

func TestQueue_PopWaits(t *testing.T) {
	q := NewQueue(4)
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push([]byte("late"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	doc, err := q.Pop(ctx)
	if err != nil || string(doc) != "late" {
		t.Fatalf("Expected late, got %q err=%v", doc, err)
	}
}

func TestQueue_PopCancelled(t *testing.T) {
	q := NewQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// ============================================================
// Runtime Tests
// ============================================================

func runToEOF(t *testing.T, rt *Runtime) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRuntime_QueryBroadcast(t *testing.T) {
	in := strings.NewReader(`<getProperties version="1.7"/>`)
	out := &syncBuffer{}
	rt := New(in, out, testLogger(), Options{})
	rt.Register(&echoProperty{"Roll off door", "LEFT_DOOR"}, &echoProperty{"Roll off door", "RIGHT_DOOR"})

	runToEOF(t, rt)

	want := "<def LEFT_DOOR/>\n<def RIGHT_DOOR/>\n"
	if out.String() != want {
		t.Errorf("Output %q, want %q", out.String(), want)
	}
}

func TestRuntime_QueryFiltered(t *testing.T) {
	in := strings.NewReader(`<getProperties version="1.7" device="Roll off door" name="RIGHT_DOOR"/>`)
	out := &syncBuffer{}
	rt := New(in, out, testLogger(), Options{})
	rt.Register(&echoProperty{"Roll off door", "LEFT_DOOR"}, &echoProperty{"Roll off door", "RIGHT_DOOR"})

	runToEOF(t, rt)

	if out.String() != "<def RIGHT_DOOR/>\n" {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestRuntime_WrongVersionIgnored(t *testing.T) {
	in := strings.NewReader(`<getProperties version="1.6"/><getProperties/>`)
	out := &syncBuffer{}
	rt := New(in, out, testLogger(), Options{})
	rt.Register(&echoProperty{"d", "n"})

	runToEOF(t, rt)

	if out.String() != "" {
		t.Errorf("Expected no output, got %q", out.String())
	}
}

func TestRuntime_CommandAndNoise(t *testing.T) {
	in := strings.NewReader(`garbage> <newSwitchVector device="d" name="n"><oneSwitch name="A">On</oneSwitch>` +
		`<oneSwitch name="B">Off</oneSwitch></newSwitchVector> <newSwitchVector device="other" name="n"></newSwitchVector>`)
	out := &syncBuffer{}
	rt := New(in, out, testLogger(), Options{})
	rt.Register(&echoProperty{"d", "n"})

	runToEOF(t, rt)

	if out.String() != "<set n 2/>\n" {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestRuntime_TasksSendInOrder(t *testing.T) {
	pr, pw := io.Pipe()
	out := &syncBuffer{}
	rt := New(pr, out, testLogger(), Options{})

	sent := make(chan struct{})
	rt.AddTask(TaskFunc(func(ctx context.Context, sink indi.Sink) error {
		for i := 0; i < 10; i++ {
			sink.Send([]byte(fmt.Sprintf("<m%d/>", i)))
		}
		close(sent)
		<-ctx.Done()
		return ctx.Err()
	}))

	go func() {
		<-sent
		pw.Close()
	}()

	runToEOF(t, rt)

	var want strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&want, "<m%d/>\n", i)
	}
	if out.String() != want.String() {
		t.Errorf("Output %q, want %q", out.String(), want.String())
	}
}

func TestRuntime_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	out := &syncBuffer{}
	rt := New(pr, out, testLogger(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	rt.Send([]byte("<x/>"))
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if out.String() != "<x/>\n" {
		t.Errorf("Unexpected output %q", out.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestRuntime_WriteErrorStopsRun(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	rt := New(pr, failingWriter{}, testLogger(), Options{})
	rt.Send([]byte("<x/>"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rt.Run(ctx); err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("Expected write error, got %v", err)
	}
}

func TestRuntime_SmallReaderBuffer(t *testing.T) {
	// A message with no '>' for longer than the bufio buffer still arrives
	long := strings.Repeat("x", 5000)
	in := strings.NewReader(`<newSwitchVector device="d" name="n"><oneSwitch name="` + long + `">On</oneSwitch></newSwitchVector>`)
	out := &syncBuffer{}
	rt := New(in, out, testLogger(), Options{})
	rt.Register(&echoProperty{"d", "n"})

	runToEOF(t, rt)

	if out.String() != "<set n 1/>\n" {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestRuntime_OversizedMessageRecovers(t *testing.T) {
	oversized := `<newSwitchVector device="d" name="n">` +
		strings.Repeat(`<oneSwitch name="s">On</oneSwitch>`, 40) +
		`</newSwitchVector>`
	in := strings.NewReader(oversized + `<newSwitchVector device="d" name="n"><oneSwitch name="s">On</oneSwitch></newSwitchVector>`)
	out := &syncBuffer{}
	rt := New(in, out, testLogger(), Options{MaxMessageSize: 256})
	rt.Register(&echoProperty{"d", "n"})

	runToEOF(t, rt)

	if out.String() != "<set n 1/>\n" {
		t.Errorf("Unexpected output %q", out.String())
	}
}
