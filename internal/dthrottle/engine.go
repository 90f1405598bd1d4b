package dthrottle

import "context"

// Engine serializes every access to a Throttle onto a single goroutine -
// the "event loop" spec.md §5 describes. The Throttle itself holds no
// locks and makes no attempt at thread safety; Engine is the one place in
// this repository where concurrent callers (per-connection readers, the
// heartbeat ticker, gossip delivery, the admin HTTP handlers) hand work
// across a goroutine boundary to the goroutine that actually owns the
// state, via a channel of closures rather than a mutex.
//
// This has no direct analogue in throttleapp.h/.cpp, which runs
// everything on one native thread already (a single FLEventLoop); Engine
// is the idiomatic Go way of reproducing that guarantee when the rest of
// the program (net/http handlers, the connection dispatcher) is
// naturally multi-goroutine.
type Engine struct {
	throttle *Throttle
	clock    Clock
	switches *Switches
	commands chan func()
}

// NewEngine constructs an Engine around an already-configured Throttle.
func NewEngine(throttle *Throttle, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		throttle: throttle,
		clock:    clock,
		switches: &Switches{},
		commands: make(chan func()),
	}
}

// Switches returns the engine's live feature flags, for the admin HTTP
// surface and the heartbeat loop to read and flip.
func (e *Engine) Switches() *Switches {
	return e.switches
}

// Run is the event loop: it executes queued commands one at a time until
// ctx is done. Exactly one goroutine must call Run for the lifetime of
// the Engine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.commands:
			cmd()
		}
	}
}

// submit runs fn on the event-loop goroutine and blocks until it
// completes. It is the only synchronization primitive Engine needs.
func (e *Engine) submit(fn func()) {
	done := make(chan struct{})
	e.commands <- func() {
		fn()
		close(done)
	}
	<-done
}

// CheckRequest admits or rejects tag at the current time. When the
// never-throttle switch is on, every tag is admitted without consulting
// the Throttle at all - matching throttleapp.cpp's check_request, which
// short-circuits before calling into Throttle::check_request.
func (e *Engine) CheckRequest(tag string) bool {
	if e.switches.NeverThrottle() {
		return true
	}
	var ok bool
	e.submit(func() {
		ok = e.throttle.CheckRequest(tag, e.clock.Now())
	})
	return ok
}

// MakeReport produces a report of local hits since the previous call, at
// the current time.
func (e *Engine) MakeReport() map[string]int {
	var report map[string]int
	e.submit(func() {
		report = e.throttle.MakeReport(e.clock.Now())
	})
	return report
}

// ReceiveReport ingests a peer's report at the current time.
func (e *Engine) ReceiveReport(hits map[string]int) {
	e.submit(func() {
		e.throttle.ReceiveReport(hits, e.clock.Now())
	})
}

// AddRule installs a prefix rule.
func (e *Engine) AddRule(prefix string, p Parameters) {
	e.submit(func() {
		e.throttle.AddRule(prefix, p)
	})
}

// Whitelist installs a whitelist rule for a prefix.
func (e *Engine) Whitelist(prefix string) {
	e.submit(func() {
		e.throttle.Whitelist(prefix)
	})
}

// DumpState returns a diagnostic snapshot of all tracked records.
func (e *Engine) DumpState() map[string]UsageSnapshot {
	var snapshot map[string]UsageSnapshot
	e.submit(func() {
		snapshot = e.throttle.DumpState()
	})
	return snapshot
}
