package services

import (
	"context"
	"time"

	"meetinglight/models"

	"go.uber.org/zap"
)

// notifyTimeout bounds each delivery so one slow sink cannot hold up the
// events queued behind it.
var notifyTimeout = 10 * time.Second

// Notifier delivers user-facing connection status messages
type Notifier interface {
	Name() string
	NotifyConnection(ctx context.Context, event models.ConnectionStatusEvent) error
}

// StateNotifier is implemented by notifiers that also want every device
// state change.
type StateNotifier interface {
	NotifyState(ctx context.Context, host string, event models.StateChangeEvent) error
}

// notifyConnection fans one event out to every notifier. Failures are
// logged and do not stop delivery to the rest.
func notifyConnection(notifiers []Notifier, event models.ConnectionStatusEvent, logger *zap.Logger) {
	for _, n := range notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		err := n.NotifyConnection(ctx, event)
		cancel()
		if err != nil {
			logger.Warn("Failed to deliver connection notification",
				zap.String("notifier", n.Name()),
				zap.Bool("connected", event.Connected),
				zap.Error(err))
		}
	}
}

func notifyState(notifiers []Notifier, host string, event models.StateChangeEvent, logger *zap.Logger) {
	for _, n := range notifiers {
		sn, ok := n.(StateNotifier)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		err := sn.NotifyState(ctx, host, event)
		cancel()
		if err != nil {
			logger.Warn("Failed to deliver state notification",
				zap.String("notifier", n.Name()),
				zap.String("capability", string(event.Capability)),
				zap.Error(err))
		}
	}
}
