package notify

import (
	"context"

	"latera/internal/logging"
	"latera/internal/metrics"
	"latera/internal/throttle"
)

// Notifier gates a Channel behind a throttle.
type Notifier struct {
	channel  Channel
	throttle *throttle.Throttle
	logger   *logging.Logger
	registry *metrics.Registry
}

func NewNotifier(channel Channel, limiter *throttle.Throttle, logger *logging.Logger, registry *metrics.Registry) *Notifier {
	if limiter == nil {
		limiter = throttle.New(throttle.DefaultPolicy, nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if registry == nil {
		registry = metrics.Default
	}
	return &Notifier{
		channel:  channel,
		throttle: limiter,
		logger:   logger.For("notify"),
		registry: registry,
	}
}

// FileAdded shows a notification for fileName unless the throttle suppresses
// it. It reports whether a notification fired.
func (n *Notifier) FileAdded(ctx context.Context, fileName string) (bool, error) {
	if !n.throttle.Allow(TypeFileAdded) {
		n.registry.IncNotificationSuppressed()
		n.logger.Debug("notification suppressed", map[string]string{"file_name": fileName})
		return false, nil
	}
	if err := n.channel.ShowFileAdded(ctx, fileName); err != nil {
		n.registry.IncNotificationFailed()
		return false, err
	}
	n.registry.IncNotificationFired()
	return true, nil
}

func (n *Notifier) ThrottleStats() throttle.Stats {
	return n.throttle.Stats()
}
