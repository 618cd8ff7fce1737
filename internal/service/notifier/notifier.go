package notifier

import (
	"time"

	"camcontrol/internal/device/serial"
	"camcontrol/internal/logger"
	"camcontrol/internal/metrics"
)

// Decision describes what one Observe call did.
type Decision struct {
	Transition bool  // state differs from the previous frame
	State      State // state after this frame
	Message    string
	Sent       bool // Message reached the link without error
}

// Notifier applies a Strategy to the presence signal and writes the resulting
// messages to the microcontroller. Write failures are logged and counted but
// never returned: the stored state has already moved on.
type Notifier struct {
	strategy Strategy
	link     serial.Writer
	logger   *logger.Logger
	metrics  *metrics.Metrics
	state    State
}

func NewNotifier(strategy Strategy, link serial.Writer, logger *logger.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{
		strategy: strategy,
		link:     link,
		logger:   logger,
		metrics:  m,
		state:    Quiet,
	}
}

// Observe is called once per frame from the capture loop.
func (n *Notifier) Observe(present bool, now time.Time) Decision {
	next, msg := n.strategy.Step(present, now)

	d := Decision{
		Transition: next != n.state,
		State:      next,
		Message:    string(msg),
	}
	n.state = next

	if d.Transition {
		n.metrics.Transitions.Add(1)
		n.metrics.SetAlert(next == Alert)
		n.logger.Info("Target %s", next)
	}

	if msg == nil {
		return d
	}

	if err := n.link.Write(msg); err != nil {
		n.metrics.SerialErrors.Add(1)
		n.logger.Error("Failed to send %q to controller: %v", msg, err)
		return d
	}

	n.metrics.MessagesSent.Add(1)
	n.logger.Debug("Sent %q to controller", msg)
	d.Sent = true
	return d
}

// Strategy returns the active strategy name.
func (n *Notifier) Strategy() string {
	return n.strategy.Name()
}
