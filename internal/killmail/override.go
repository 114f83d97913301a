package killmail

import (
	"sync"
	"time"
)

// OverrideState is the Validation Override's single-shot state, per
// spec.md §4.8.
type OverrideState int

const (
	OverrideDisabled OverrideState = iota
	OverrideArmedSystem
	OverrideArmedCharacter
)

func (s OverrideState) String() string {
	switch s {
	case OverrideArmedSystem:
		return "armed_system"
	case OverrideArmedCharacter:
		return "armed_character"
	default:
		return "disabled"
	}
}

// Override is the operator control that forces the next killmail through
// the filter stage as a system- or character-notification, regardless of
// tracked-entity membership. It auto-expires after ttl and is consumed on
// first use, whichever happens first.
type Override struct {
	mu       sync.Mutex
	state    OverrideState
	expireAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewOverride builds an Override that decays to Disabled after ttl
// (spec.md default 5 minutes).
func NewOverride(ttl time.Duration) *Override {
	return &Override{ttl: ttl, now: time.Now}
}

// ArmSystem arms the override for the system-notification path. Satisfies
// telemetry.OverrideArmer for the admin POST /debug/override route.
func (o *Override) ArmSystem() { o.Arm(OverrideArmedSystem) }

// ArmCharacter arms the override for the character-notification path.
func (o *Override) ArmCharacter() { o.Arm(OverrideArmedCharacter) }

// Arm transitions to state (ArmedSystem or ArmedCharacter), starting the
// auto-expire timer. Passing OverrideDisabled is a no-op.
func (o *Override) Arm(state OverrideState) {
	if state == OverrideDisabled {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state
	o.expireAt = o.now().Add(o.ttl)
}

// State reports the current state without consuming it, decaying to
// Disabled first if the TTL has elapsed.
func (o *Override) State() OverrideState {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireIfDue()
	return o.state
}

// ConsumeIfArmed returns the armed state (if any) and resets to Disabled as
// a side effect — a single read-and-clear, matching the "consumed on first
// use" semantics.
func (o *Override) ConsumeIfArmed() OverrideState {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireIfDue()
	state := o.state
	o.state = OverrideDisabled
	return state
}

func (o *Override) expireIfDue() {
	if o.state != OverrideDisabled && !o.expireAt.IsZero() && o.now().After(o.expireAt) {
		o.state = OverrideDisabled
	}
}
