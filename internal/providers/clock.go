package providers

import (
	"math/rand"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// FakeClock is a manually advanced Clock for tests. Sleep advances the
// clock instead of blocking.
type FakeClock struct {
	Current time.Time
}

func (f *FakeClock) Now() time.Time { return f.Current }

func (f *FakeClock) Sleep(d time.Duration) { f.Current = f.Current.Add(d) }

// Advance moves the fake clock forward.
func (f *FakeClock) Advance(d time.Duration) { f.Current = f.Current.Add(d) }

// Rand abstracts randomness for deterministic tests.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// RealRand delegates to math/rand's global source.
type RealRand struct{}

func (RealRand) Float64() float64 { return rand.Float64() }
func (RealRand) Intn(n int) int   { return rand.Intn(n) }

// FixedRand returns a constant fraction; Intn scales it.
type FixedRand struct {
	Value float64
}

func (f FixedRand) Float64() float64 { return f.Value }
func (f FixedRand) Intn(n int) int   { return int(f.Value * float64(n)) }
