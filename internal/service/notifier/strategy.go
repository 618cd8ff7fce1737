package notifier

import (
	"fmt"
	"time"

	"camcontrol/internal/config"
)

// State is what the microcontroller has been told about the target.
type State int

const (
	Quiet State = iota
	Alert
)

func (s State) String() string {
	if s == Alert {
		return "alert"
	}
	return "quiet"
}

func stateOf(present bool) State {
	if present {
		return Alert
	}
	return Quiet
}

var (
	msgRedOn  = []byte("RED:1\n")
	msgRedOff = []byte("RED:0\n")
	msgKeep   = []byte("K")
)

// Strategy turns the per-frame presence signal into device messages.
// Step returns the stored state after this frame and the message to send, if any.
type Strategy interface {
	Name() string
	Step(present bool, now time.Time) (State, []byte)
}

// NewStrategy picks the strategy named by NOTIFY_STRATEGY.
func NewStrategy(cfg *config.Config) (Strategy, error) {
	switch cfg.NotifyStrategy {
	case config.StrategyStateChange, "":
		return NewStateChange(), nil
	case config.StrategyKeepAlive:
		return NewKeepAlive(cfg.KeepAliveInterval), nil
	default:
		return nil, fmt.Errorf("unknown notify strategy %q", cfg.NotifyStrategy)
	}
}

// StateChange sends RED:1 / RED:0 once per transition. It starts quiet.
type StateChange struct {
	state State
}

func NewStateChange() *StateChange {
	return &StateChange{state: Quiet}
}

func (s *StateChange) Name() string { return config.StrategyStateChange }

func (s *StateChange) Step(present bool, _ time.Time) (State, []byte) {
	next := stateOf(present)
	if next == s.state {
		return s.state, nil
	}
	s.state = next
	if next == Alert {
		return next, msgRedOn
	}
	return next, msgRedOff
}

// KeepAlive sends K while the target is visible: immediately when it appears,
// then whenever more than interval has passed since the last K. It never sends
// on absence; the controller falls back to quiet on its own timeout.
type KeepAlive struct {
	interval time.Duration
	state    State
	lastSent time.Time
}

func NewKeepAlive(interval time.Duration) *KeepAlive {
	if interval <= 0 {
		interval = time.Second
	}
	return &KeepAlive{interval: interval, state: Quiet}
}

func (k *KeepAlive) Name() string { return config.StrategyKeepAlive }

func (k *KeepAlive) Step(present bool, now time.Time) (State, []byte) {
	if !present {
		k.state = Quiet
		return Quiet, nil
	}
	if k.state == Quiet || now.Sub(k.lastSent) > k.interval {
		k.state = Alert
		k.lastSent = now
		return Alert, msgKeep
	}
	return Alert, nil
}
