// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package door

import (
	"fmt"
	"math"
	"strings"
)

// Validation messages reported to the client
const (
	MsgFastDuration   = "High speed duration must be shorter than the duration of travel"
	MsgMaxRunningTime = "The maximum running time must be longer than the duration of travel"
	MsgMaxAboveMin    = "The maximum pwm must be greater than the minimum"
	MsgMaxLimit       = "The maximum pwm is 95 max"
	MsgMinLimit       = "The minimum pwm is 50 max"
	MsgMinFloor       = "The minimum pwm is 1"
	MsgDurations      = "Durations must be at least one second"
	MsgWholeNumbers   = "Door parameters must be whole numbers"
	MsgParameters     = "Door motion durations and motor PWM ratio can be set here."
)

// PWM limits accepted for the motor
const (
	PWMMaximumLimit = 95
	PWMMinimumLimit = 50
	PWMMinimumFloor = 1
)

// ParamDef describes one tuning parameter as a number element
type ParamDef struct {
	Name  string
	Label string
	Min   int
	Max   int
}

// Profile generates the motor speed over the course of one door motion.
// Parameters are passed in the order of Params.
type Profile interface {
	// Name identifies the profile in configuration
	Name() string
	// Params describes the tuning parameters
	Params() []ParamDef
	// Defaults returns the default parameter values
	Defaults() []int
	// Validate returns the reason p is unacceptable, or ""
	Validate(p []int) string
	// MaxRunningTime is the fail-safe cutoff in seconds
	MaxRunningTime(p []int) float64
	// PWM returns the motor pwm ratio t seconds into a motion. When slow is
	// set the top speed is limited to one above the minimum.
	PWM(p []int, t float64, slow bool) float64
}

// NewProfile returns the profile with the given name
func NewProfile(name string) (Profile, error) {
	switch strings.ToLower(name) {
	case "", "quartic":
		return Quartic{}, nil
	case "table":
		return Table{}, nil
	}
	return nil, fmt.Errorf("unknown speed profile %q (want quartic or table)", name)
}

func validatePWM(maximum, minimum int) string {
	switch {
	case minimum >= maximum:
		return MsgMaxAboveMin
	case maximum > PWMMaximumLimit:
		return MsgMaxLimit
	case minimum > PWMMinimumLimit:
		return MsgMinLimit
	case minimum < PWMMinimumFloor:
		return MsgMinFloor
	}
	return ""
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// ============================================================
// Quartic profile
// ============================================================

// Quartic parameter indices
const (
	QFastDuration = iota
	QDuration
	QMaxRunningTime
	QMaximum
	QMinimum
)

// Quartic eases in and out along a fitted quartic curve, holding top speed
// for the fast duration in between.
type Quartic struct{}

func (Quartic) Name() string { return "quartic" }

func (Quartic) Params() []ParamDef {
	return []ParamDef{
		{"FAST_DURATION", "Duration of maximum speed (seconds)", 1, 238},
		{"DURATION", "Duration of travel between limit switches (seconds)", 2, 239},
		{"MAX_RUNNING_TIME", "Maximum running time to cut out if limit switches fail (seconds)", 3, 240},
		{"MAXIMUM", "High speed pwm ratio (percentage)", 2, 95},
		{"MINIMUM", "Low speed pwm ratio (percentage)", 1, 50},
	}
}

func (Quartic) Defaults() []int {
	return []int{4, 8, 10, 95, 5}
}

func (Quartic) Validate(p []int) string {
	if p[QFastDuration] >= p[QDuration] {
		return MsgFastDuration
	}
	if p[QDuration] >= p[QMaxRunningTime] {
		return MsgMaxRunningTime
	}
	return validatePWM(p[QMaximum], p[QMinimum])
}

func (Quartic) MaxRunningTime(p []int) float64 {
	return float64(p[QMaxRunningTime])
}

// PWM ramps from 0 to the maximum over the first half of the travel
// duration, and from the maximum down to the minimum over the second half
func (Quartic) PWM(p []int, t float64, slow bool) float64 {
	minimum := float64(p[QMinimum])
	maxRatio := float64(p[QMaximum])
	if slow {
		maxRatio = minimum + 1
	}

	duration := float64(p[QDuration])
	r := Ratio(t, float64(p[QFastDuration]), duration)
	if t < duration/2 {
		return r * maxRatio
	}
	return (maxRatio-minimum)*r + minimum
}

// Ratio returns the speed ratio in [0, 1] at time t of a motion lasting
// duration, of which fastDuration is spent at full speed
func Ratio(t, fastDuration, duration float64) float64 {
	if t >= duration {
		return 0
	}
	if fastDuration >= duration {
		return 1
	}
	accel := (duration - fastDuration) / 2
	scale := curveRamp / accel
	return curve(t*scale, duration*scale)
}

// curveRamp is the length of the ramps of curve
const curveRamp = 8.0

// Quartic fit of a 0 to 1 ease-in over t in [0, 8], mirrored over [12, 20]
const (
	qa = -0.0540937
	qb = 0.330319
	qc = -0.0383795
	qd = 0.00218635
	qe = -5.46589e-05
)

// curve evaluates the fitted ramp at t for a motion of the given duration,
// where duration is at least twice curveRamp
func curve(t, duration float64) float64 {
	if t >= duration {
		return 0
	}

	half := duration / 2
	if t <= half {
		if t > curveRamp {
			return 1
		}
	} else {
		if duration-t > curveRamp {
			return 1
		}
		t = 20 - (duration - t)
	}

	y := qa + qb*t + qc*t*t + qd*t*t*t + qe*t*t*t*t
	y = math.Max(0, math.Min(1, y))
	return round(y, 2)
}

// ============================================================
// Table profile
// ============================================================

// Table parameter indices
const (
	TAccDuration = iota
	TFastDuration
	TDecDuration
	TSlowDuration
	TMaximum
	TMinimum
)

// accelTable is the eight segment acceleration curve from 0 to 1
var accelTable = [9]float64{0.0, 0.05, 0.15, 0.3, 0.5, 0.7, 0.85, 0.95, 1.0}

// Table accelerates along a piecewise linear table, runs at top speed,
// decelerates along the mirrored table to the minimum and then creeps at the
// minimum until the limit switch is reached.
type Table struct{}

func (Table) Name() string { return "table" }

func (Table) Params() []ParamDef {
	return []ParamDef{
		{"ACC_DURATION", "Duration of acceleration (seconds)", 1, 20},
		{"FAST_DURATION", "Duration of maximum speed (seconds)", 1, 30},
		{"DEC_DURATION", "Duration of deceleration (seconds)", 1, 20},
		{"SLOW_DURATION", "Duration of low speed after deceleration (seconds)", 1, 30},
		{"MAXIMUM", "High speed pwm ratio (percentage)", 2, 95},
		{"MINIMUM", "Low speed pwm ratio (percentage)", 1, 50},
	}
}

func (Table) Defaults() []int {
	return []int{2, 4, 2, 2, 95, 5}
}

func (Table) Validate(p []int) string {
	for _, d := range p[TAccDuration : TSlowDuration+1] {
		if d < 1 {
			return MsgDurations
		}
	}
	return validatePWM(p[TMaximum], p[TMinimum])
}

func (Table) MaxRunningTime(p []int) float64 {
	return float64(p[TAccDuration] + p[TFastDuration] + p[TDecDuration] + p[TSlowDuration])
}

func (Table) PWM(p []int, t float64, slow bool) float64 {
	low := float64(p[TMinimum])
	fast := float64(p[TMaximum])
	if slow {
		fast = low + 1
	}
	return tableCurve(t,
		float64(p[TAccDuration]),
		float64(p[TFastDuration]),
		float64(p[TDecDuration]),
		float64(p[TSlowDuration]),
		fast, low)
}

func tableCurve(t, accT, fastT, decT, slowT, fast, slow float64) float64 {
	duration := accT + fastT + decT
	if t >= duration+slowT {
		return 0
	}
	if t >= duration {
		return slow
	}
	if t >= accT && t <= accT+fastT {
		return fast
	}

	if t <= accT {
		y := interpolate(t * curveRamp / accT)
		return round(y*fast, 3)
	}

	// deceleration mirrors acceleration, counting back from the end
	s := duration - t
	if s >= decT {
		return fast
	}
	y := interpolate(s * curveRamp / decT)
	return round((fast-slow)*y+slow, 3)
}

// interpolate evaluates accelTable at x in [0, 8)
func interpolate(x float64) float64 {
	lo := int(x)
	if lo >= len(accelTable)-1 {
		return accelTable[len(accelTable)-1]
	}
	diff := accelTable[lo+1] - accelTable[lo]
	y := diff*(x-float64(lo)) + accelTable[lo]
	return math.Max(0, y)
}
