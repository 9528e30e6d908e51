package netatmo

import (
	"sync"
	"time"
)

// DefaultResetDelay matches the door-release relay: a tripped switch reads
// "on" for two seconds and then falls back to "off".
const DefaultResetDelay = 2 * time.Second

// Switchboard tracks the momentary on-state of each door switch. Opening a
// door trips its switch; the switchboard resets it after the configured
// delay. The upstream API has no readable door state, so this is purely
// presentation-layer bookkeeping.
type Switchboard struct {
	resetDelay time.Duration

	mu     sync.Mutex
	on     map[string]bool
	timers map[string]*time.Timer
	trips  map[string]uint64

	onChange func(moduleID string, on bool)
}

func NewSwitchboard(resetDelay time.Duration) *Switchboard {
	if resetDelay <= 0 {
		resetDelay = DefaultResetDelay
	}
	return &Switchboard{
		resetDelay: resetDelay,
		on:         make(map[string]bool),
		timers:     make(map[string]*time.Timer),
		trips:      make(map[string]uint64),
	}
}

// OnChange registers a callback invoked outside the switchboard lock
// whenever a switch flips. Only one callback is held.
func (s *Switchboard) OnChange(fn func(moduleID string, on bool)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Trip flips the switch on and schedules the reset. Re-tripping an already
// on switch restarts the timer.
func (s *Switchboard) Trip(moduleID string) {
	s.mu.Lock()
	s.on[moduleID] = true
	// Stop can miss a timer that is already firing; the trip counter lets
	// that stale reset recognize it lost the race and bail out.
	s.trips[moduleID]++
	trip := s.trips[moduleID]
	if timer, ok := s.timers[moduleID]; ok {
		timer.Stop()
	}
	s.timers[moduleID] = time.AfterFunc(s.resetDelay, func() {
		s.reset(moduleID, trip)
	})
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(moduleID, true)
	}
}

// IsOn reports whether the switch currently reads on.
func (s *Switchboard) IsOn(moduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on[moduleID]
}

func (s *Switchboard) reset(moduleID string, trip uint64) {
	s.mu.Lock()
	if trip != s.trips[moduleID] {
		// A later trip owns the switch now.
		s.mu.Unlock()
		return
	}
	delete(s.timers, moduleID)
	if !s.on[moduleID] {
		s.mu.Unlock()
		return
	}
	s.on[moduleID] = false
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(moduleID, false)
	}
}
