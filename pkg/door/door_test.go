// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package door

import (
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/indi"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 21, 22, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(seconds float64, from time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = from.Add(time.Duration(seconds * float64(time.Second)))
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	bus   *bus.Memory
	clock *fakeClock
	dev   *Device
	opts  Options
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	b := bus.NewMemory()
	t.Cleanup(func() { b.Close() })
	clock := newFakeClock()
	opts.Clock = clock.Now
	return &fixture{bus: b, clock: clock, dev: NewDevice(b, testLogger(), opts), opts: opts}
}

func mustParse(t *testing.T, doc []byte) *indi.Message {
	t.Helper()
	m, err := indi.ParseMessage(doc)
	if err != nil {
		t.Fatalf("Output does not parse: %v\n%s", err, doc)
	}
	return m
}

func newNumber(device, name string, values map[string]string) *indi.Message {
	m := &indi.Message{
		Tag:   indi.TagNewNumberVector,
		Attrs: map[string]string{"device": device, "name": name},
	}
	for _, def := range (Quartic{}).Params() {
		if v, ok := values[def.Name]; ok {
			m.Children = append(m.Children, indi.Child{Tag: "oneNumber", Name: def.Name, Text: v})
		}
	}
	return m
}

// ============================================================
// Speed Curve Tests
// ============================================================

func TestRatio_Bounds(t *testing.T) {
	cases := [][2]float64{{4, 8}, {1, 2}, {0, 10}, {30, 60}, {59, 60}}
	for _, c := range cases {
		fast, duration := c[0], c[1]
		for t10 := 0; t10 <= int(duration*10)+20; t10++ {
			tt := float64(t10) / 10
			r := Ratio(tt, fast, duration)
			if r < 0 || r > 1 {
				t.Fatalf("Ratio(%v, %v, %v) = %v out of [0,1]", tt, fast, duration, r)
			}
		}
		if r := Ratio(0, fast, duration); r != 0 {
			t.Errorf("Ratio(0, %v, %v) = %v, want 0", fast, duration, r)
		}

		accelEnd := (duration - fast) / 2
		decelStart := duration - accelEnd
		if r := Ratio((accelEnd+decelStart)/2, fast, duration); r != 1 {
			t.Errorf("Ratio at cruise midpoint for (%v, %v) = %v, want 1", fast, duration, r)
		}
	}
}

func TestRatio_Degenerate(t *testing.T) {
	if r := Ratio(3, 8, 8); r != 1 {
		t.Errorf("fast >= duration should run flat out, got %v", r)
	}
	if r := Ratio(8, 8, 8); r != 0 {
		t.Errorf("t >= duration should stop, got %v", r)
	}
}

func TestQuartic_Example(t *testing.T) {
	p := []int{4, 8, 10, 95, 5}
	tests := []struct {
		t    float64
		want int
	}{
		{0, 0},
		{4, 95},
		{8, 5},
		{9, 5},
	}
	for _, tt := range tests {
		if got := int((Quartic{}).PWM(p, tt.t, false)); got != tt.want {
			t.Errorf("PWM(t=%v) = %d, want %d", tt.t, got, tt.want)
		}
	}
	if got := (Quartic{}).MaxRunningTime(p); got != 10 {
		t.Errorf("MaxRunningTime = %v, want 10", got)
	}
}

func TestQuartic_SlowLimitsSpeed(t *testing.T) {
	p := []int{4, 8, 10, 95, 5}
	for t10 := 0; t10 < 80; t10++ {
		if pwm := (Quartic{}).PWM(p, float64(t10)/10, true); pwm > 6 {
			t.Fatalf("Slow PWM %v exceeds minimum+1", pwm)
		}
	}
}

func TestFuzzQuartic_Monotonic(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		duration := 2 + rng.Intn(60)
		fast := 1 + rng.Intn(duration-1)
		maximum := 2 + rng.Intn(94)
		minimum := 1 + rng.Intn(min(50, maximum-1))
		p := []int{fast, duration, duration + 1, maximum, minimum}
		if msg := (Quartic{}).Validate(p); msg != "" {
			t.Fatalf("Round %d: generated invalid params %v: %s", round, p, msg)
		}

		half := float64(duration) / 2
		steps := 200
		prev := -1
		decelerating := false
		for i := 0; i < steps; i++ {
			tt := float64(duration) * float64(i) / float64(steps)
			pwm := int(Quartic{}.PWM(p, tt, false))
			if pwm > maximum {
				t.Fatalf("Round %d %v: pwm %d above maximum at t=%v", round, p, pwm, tt)
			}
			if tt < half {
				if pwm < prev {
					t.Fatalf("Round %d %v: pwm fell %d -> %d during acceleration at t=%v", round, p, prev, pwm, tt)
				}
				prev = pwm
				continue
			}
			if pwm < minimum {
				t.Fatalf("Round %d %v: pwm %d below minimum at t=%v", round, p, pwm, tt)
			}
			if decelerating && pwm > prev {
				t.Fatalf("Round %d %v: pwm rose %d -> %d during deceleration at t=%v", round, p, prev, pwm, tt)
			}
			decelerating = true
			prev = pwm
		}
	}
}

func TestTable_Shape(t *testing.T) {
	p := (Table{}).Defaults()
	if got := (Table{}).MaxRunningTime(p); got != 10 {
		t.Fatalf("MaxRunningTime = %v, want 10", got)
	}

	tests := []struct {
		t    float64
		want float64
	}{
		{0, 0},
		{1, 0.5 * 95},
		{2, 95},
		{5, 95},
		{6, 95},
		{7, (95-5)*0.5 + 5},
		{8, 5},
		{9.5, 5},
		{10, 0},
	}
	for _, tt := range tests {
		if got := (Table{}).PWM(p, tt.t, false); got != tt.want {
			t.Errorf("PWM(t=%v) = %v, want %v", tt.t, got, tt.want)
		}
	}

	prev := -1.0
	for t100 := 0; t100 < 600; t100++ {
		pwm := (Table{}).PWM(p, float64(t100)/100, false)
		if pwm < prev {
			t.Fatalf("Acceleration not monotonic at t=%v", float64(t100)/100)
		}
		prev = pwm
	}
	for t100 := 600; t100 < 1000; t100++ {
		pwm := (Table{}).PWM(p, float64(t100)/100, false)
		if pwm > prev || pwm < 5 {
			t.Fatalf("Deceleration not monotonic or below floor at t=%v: %v", float64(t100)/100, pwm)
		}
		prev = pwm
	}
}

func TestNewProfile(t *testing.T) {
	for name, want := range map[string]string{"": "quartic", "Quartic": "quartic", "table": "table"} {
		p, err := NewProfile(name)
		if err != nil || p.Name() != want {
			t.Errorf("NewProfile(%q) = %v, %v", name, p, err)
		}
	}
	if _, err := NewProfile("linear"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

// ============================================================
// Validation Tests
// ============================================================

func TestQuartic_ValidateOrder(t *testing.T) {
	tests := []struct {
		name string
		p    []int
		want string
	}{
		{"defaults", []int{4, 8, 10, 95, 5}, ""},
		{"fast not shorter", []int{8, 8, 10, 95, 5}, MsgFastDuration},
		{"fast wins over pwm", []int{9, 8, 10, 5, 95}, MsgFastDuration},
		{"running time", []int{4, 10, 10, 95, 5}, MsgMaxRunningTime},
		{"equal pwm", []int{4, 8, 10, 50, 50}, MsgMaxAboveMin},
		{"max above 95", []int{4, 8, 10, 96, 5}, MsgMaxLimit},
		{"min above 50", []int{4, 8, 10, 95, 51}, MsgMinLimit},
		{"min zero", []int{4, 8, 10, 95, 0}, MsgMinFloor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Quartic{}).Validate(tt.p); got != tt.want {
				t.Errorf("Validate(%v) = %q, want %q", tt.p, got, tt.want)
			}
		})
	}
}

func TestTable_Validate(t *testing.T) {
	if got := (Table{}).Validate([]int{2, 0, 2, 2, 95, 5}); got != MsgDurations {
		t.Errorf("Expected duration error, got %q", got)
	}
	if got := (Table{}).Validate([]int{2, 4, 2, 2, 40, 40}); got != MsgMaxAboveMin {
		t.Errorf("Expected pwm error, got %q", got)
	}
}

// ============================================================
// Door Motion Tests
// ============================================================

func TestDoor_Example(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	d := f.dev.Left
	start := f.clock.Now()

	if !d.StartDoor(ctx, Open, false) {
		t.Fatal("StartDoor refused on an idle door")
	}
	if got := f.bus.Published(); !reflect.DeepEqual(got, []string{"pico_door0_direction_1"}) {
		t.Fatalf("Unexpected publishes %v", got)
	}
	f.bus.ResetPublished()

	d.Update(ctx)
	if d.PWM() != 0 {
		t.Errorf("PWM at t=0 = %d, want 0", d.PWM())
	}

	f.clock.Set(4, start)
	d.Update(ctx)
	f.clock.Set(8, start)
	d.Update(ctx)
	f.clock.Set(10, start)
	d.Update(ctx)
	d.Update(ctx)
	f.clock.Set(20, start)
	d.Update(ctx)

	want := []string{"pico_door0_pwm_95", "pico_door0_pwm_5", "pico_door0_pwm_0"}
	if got := f.bus.Published(); !reflect.DeepEqual(got, want) {
		t.Errorf("Publishes %v, want %v", got, want)
	}
	if d.State().Moving {
		t.Error("Door still moving after maximum running time")
	}
}

func TestDoor_StartWhileMovingIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	d := f.dev.Right

	d.StartDoor(ctx, Close, false)
	before := d.State()
	f.bus.ResetPublished()

	if d.StartDoor(ctx, Open, false) {
		t.Error("StartDoor accepted while moving")
	}
	if d.State() != before {
		t.Errorf("State changed from %+v to %+v", before, d.State())
	}
	if got := f.bus.Published(); len(got) != 0 {
		t.Errorf("Unexpected publishes %v", got)
	}
}

func TestDoor_FailsafeOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	d := f.dev.Left

	d.StartDoor(ctx, Close, false)
	f.clock.Advance(11 * time.Second)
	f.bus.ResetPublished()

	for i := 0; i < 5; i++ {
		d.Update(ctx)
		f.clock.Advance(DefaultTick)
	}

	if got := f.bus.Published(); !reflect.DeepEqual(got, []string{"pico_door0_pwm_0"}) {
		t.Errorf("Expected a single stop, got %v", got)
	}

	// A new motion may start after the cutoff
	if !d.StartDoor(ctx, Open, false) {
		t.Error("Door did not restart after fail-safe stop")
	}
}

func TestDoor_LimitSwitchStops(t *testing.T) {
	tests := []struct {
		name string
		dir  Direction
		code string
		stop bool
	}{
		{"open limit while opening", Open, "1", true},
		{"closed limit while closing", Close, "3", true},
		{"open limit while closing", Close, "1", false},
		{"fault", Open, "6", true},
		{"opening", Open, "2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, Options{})
			d := f.dev.Left

			d.StartDoor(ctx, tt.dir, false)
			f.clock.Advance(3 * time.Second)
			f.bus.Set(ctx, "pico_door0_status", tt.code)
			f.bus.ResetPublished()
			d.Update(ctx)

			stopped := !d.State().Moving
			if stopped != tt.stop {
				t.Fatalf("Stopped = %v, want %v", stopped, tt.stop)
			}
			pub := f.bus.Published()
			if tt.stop && !reflect.DeepEqual(pub, []string{"pico_door0_pwm_0"}) {
				t.Errorf("Expected stop command, got %v", pub)
			}
		})
	}
}

func TestDoor_IdleFollowsLimitSwitch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	d := f.dev.Left

	if d.State().Direction != Open {
		t.Fatal("Default direction should be open")
	}
	f.bus.Set(ctx, "pico_door0_status", "3")
	d.Update(ctx)
	if d.State().Direction != Close {
		t.Error("Closed limit switch should set direction to close")
	}
	f.bus.Set(ctx, "pico_door0_status", "5")
	d.Update(ctx)
	if d.State().Direction != Close {
		t.Error("Stopped between limits should keep the direction")
	}
}

func TestDevice_HomeIsSlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	start := f.clock.Now()
	f.dev.Home(ctx)

	for t10 := 0; t10 < 100; t10++ {
		f.clock.Set(float64(t10)/10, start)
		f.dev.Left.Update(ctx)
		if pwm := f.dev.Left.PWM(); pwm > 6 {
			t.Fatalf("Homing pwm %d exceeds minimum+1", pwm)
		}
	}
	if !strings.Contains(strings.Join(f.bus.Published(), " "), "pico_door1_direction_0") {
		t.Error("Right door not homed")
	}
}

// ============================================================
// Number Vector Tests
// ============================================================

func TestDoor_RejectEqualPWM(t *testing.T) {
	f := newFixture(t, Options{})
	d := f.dev.Left
	before := d.Params()

	out := d.OnCommand(newNumber(DeviceName, "LEFT_DOOR", map[string]string{"MAXIMUM": "50", "MINIMUM": "50"}))
	if len(out) != 1 {
		t.Fatalf("Expected one reply, got %d", len(out))
	}
	m := mustParse(t, out[0])
	if m.Tag != "setNumberVector" || m.Attrs["state"] != "Alert" || m.Attrs["message"] != MsgMaxAboveMin {
		t.Errorf("Unexpected reply %s", out[0])
	}
	if len(m.Children) != 0 {
		t.Errorf("Rejected reply should carry no elements: %s", out[0])
	}
	if !reflect.DeepEqual(d.Params(), before) {
		t.Errorf("Params changed to %v", d.Params())
	}
}

func TestDoor_AcceptChangedOnly(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, Options{ParamDir: dir})
	d := f.dev.Left

	out := d.OnCommand(newNumber(DeviceName, "LEFT_DOOR", map[string]string{"DURATION": "8", "MAXIMUM": "80.0"}))
	m := mustParse(t, out[0])
	if m.Attrs["state"] != "Ok" || m.Attrs["message"] != MsgParameters {
		t.Errorf("Unexpected reply %s", out[0])
	}
	if len(m.Children) != 1 || m.Children[0].Name != "MAXIMUM" || m.Children[0].Text != "80" {
		t.Errorf("Expected only MAXIMUM=80, got %+v", m.Children)
	}

	data, err := os.ReadFile(filepath.Join(dir, "LEFT_DOOR"))
	if err != nil {
		t.Fatalf("Parameter file not written: %v", err)
	}
	if string(data) != "4\n8\n10\n80\n5\n" {
		t.Errorf("Unexpected file contents %q", data)
	}

	// A fresh door picks the saved values up
	reloaded := NewDoor(0, f.bus, testLogger(), Options{ParamDir: dir})
	if !reflect.DeepEqual(reloaded.Params(), []int{4, 8, 10, 80, 5}) {
		t.Errorf("Reloaded params %v", reloaded.Params())
	}
}

func TestDoor_NoChangeReplyOk(t *testing.T) {
	f := newFixture(t, Options{})
	out := f.dev.Right.OnCommand(newNumber(DeviceName, "RIGHT_DOOR", map[string]string{"MINIMUM": " 5 "}))
	m := mustParse(t, out[0])
	if m.Attrs["state"] != "Ok" || len(m.Children) != 0 {
		t.Errorf("Unexpected reply %s", out[0])
	}
}

func TestDoor_NotWholeNumber(t *testing.T) {
	for _, text := range []string{"fast", "80.9", "-0.5", "NaN", ""} {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t, Options{})
			before := f.dev.Left.Params()
			out := f.dev.Left.OnCommand(newNumber(DeviceName, "LEFT_DOOR", map[string]string{"MAXIMUM": text}))
			m := mustParse(t, out[0])
			if m.Attrs["state"] != "Alert" || m.Attrs["message"] != MsgWholeNumbers {
				t.Errorf("Unexpected reply %s", out[0])
			}
			if !reflect.DeepEqual(f.dev.Left.Params(), before) {
				t.Errorf("Params changed to %v", f.dev.Left.Params())
			}
		})
	}
}

func TestParseWhole(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"80", 80, true},
		{" 80.0 ", 80, true},
		{"-3", -3, true},
		{"1e2", 100, true},
		{"80.9", 0, false},
		{"0.1", 0, false},
		{"fast", 0, false},
		{"Inf", 0, false},
		{"3e10", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseWhole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseWhole(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDoor_IgnoresOtherVectors(t *testing.T) {
	f := newFixture(t, Options{})
	d := f.dev.Left
	for _, m := range []*indi.Message{
		newNumber(DeviceName, "RIGHT_DOOR", map[string]string{"MINIMUM": "6"}),
		newNumber("Rempico01", "LEFT_DOOR", map[string]string{"MINIMUM": "6"}),
		{Tag: indi.TagNewSwitchVector, Attrs: map[string]string{"device": DeviceName, "name": "LEFT_DOOR"}},
	} {
		if out := d.OnCommand(m); out != nil {
			t.Errorf("Unexpected reply %s", out[0])
		}
	}
}

func TestDoor_Def(t *testing.T) {
	f := newFixture(t, Options{})
	q := &indi.Message{Tag: indi.TagGetProperties, Attrs: map[string]string{"version": "1.7"}}
	out := f.dev.Right.OnQuery(q)
	m := mustParse(t, out[0])
	if m.Tag != "defNumberVector" || m.Attrs["name"] != "RIGHT_DOOR" || m.Attrs["group"] != "Right door" {
		t.Errorf("Unexpected definition %s", out[0])
	}
	if len(m.Children) != 5 || m.Children[2].Name != "MAX_RUNNING_TIME" || m.Children[2].Text != "10" {
		t.Errorf("Unexpected elements %+v", m.Children)
	}
}

func TestDoor_TableProfileVector(t *testing.T) {
	f := newFixture(t, Options{Profile: Table{}})
	q := &indi.Message{Tag: indi.TagGetProperties, Attrs: map[string]string{"version": "1.7"}}
	m := mustParse(t, f.dev.Left.OnQuery(q)[0])
	if len(m.Children) != 6 || m.Children[0].Name != "ACC_DURATION" {
		t.Errorf("Unexpected table elements %+v", m.Children)
	}
}

// ============================================================
// Parameter File Tests
// ============================================================

func TestParamFile_Fallbacks(t *testing.T) {
	dir := t.TempDir()
	pf := NewParamFile(dir, "LEFT_DOOR", 5)

	if _, ok := pf.Load(); ok {
		t.Error("Missing file should not load")
	}

	os.WriteFile(pf.Path, []byte("1\n2\n3\n"), 0o644)
	if _, ok := pf.Load(); ok {
		t.Error("Wrong line count should not load")
	}

	os.WriteFile(pf.Path, []byte("1\n2\nx\n4\n5\n"), 0o644)
	if _, ok := pf.Load(); ok {
		t.Error("Non-integer should not load")
	}

	if err := pf.Save([]int{3, 9, 12, 90, 10}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	p, ok := pf.Load()
	if !ok || !reflect.DeepEqual(p, []int{3, 9, 12, 90, 10}) {
		t.Errorf("Load after save = %v, %v", p, ok)
	}
}

func TestNewDoor_InvalidSavedParamsIgnored(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "LEFT_DOOR"), []byte("9\n8\n10\n95\n5\n"), 0o644)

	d := NewDoor(0, bus.NewMemory(), testLogger(), Options{ParamDir: dir})
	if !reflect.DeepEqual(d.Params(), (Quartic{}).Defaults()) {
		t.Errorf("Expected defaults, got %v", d.Params())
	}
}
