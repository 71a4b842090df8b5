package services

import (
	"context"
	"fmt"
	"sync"

	"meetinglight/models"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	notificationsBus   = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications"

	notificationAppName = "HA-MeetingLight"
	// Milliseconds the notification stays on screen.
	notificationExpireMs = int32(5000)
)

// notifyFunc performs one org.freedesktop.Notifications.Notify call and
// returns the server-assigned notification id.
type notifyFunc func(ctx context.Context, args ...any) (uint32, error)

// DesktopNotifier shows connection status on the session bus notification
// server. Each notification replaces the previous one.
type DesktopNotifier struct {
	conn   *dbus.Conn
	notify notifyFunc
	logger *zap.Logger

	mu     sync.Mutex
	lastID uint32
}

// NewDesktopNotifier opens a private session bus connection
func NewDesktopNotifier(logger *zap.Logger) (*DesktopNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	obj := conn.Object(notificationsBus, notificationsPath)
	notify := func(ctx context.Context, args ...any) (uint32, error) {
		var id uint32
		err := obj.CallWithContext(ctx, notificationsIface+".Notify", 0, args...).Store(&id)
		return id, err
	}

	d := newDesktopNotifier(notify, logger)
	d.conn = conn
	return d, nil
}

func newDesktopNotifier(notify notifyFunc, logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{
		notify: notify,
		logger: logger,
	}
}

func (d *DesktopNotifier) Name() string {
	return "desktop"
}

func (d *DesktopNotifier) NotifyConnection(ctx context.Context, event models.ConnectionStatusEvent) error {
	icon := "network-offline"
	if event.Connected {
		icon = "network-idle"
	}

	d.mu.Lock()
	replaces := d.lastID
	d.mu.Unlock()

	// Notify(app_name, replaces_id, app_icon, summary, body, actions, hints, expire_timeout)
	id, err := d.notify(ctx,
		notificationAppName,
		replaces,
		icon,
		notificationAppName,
		event.Message,
		[]string{},
		map[string]dbus.Variant{},
		notificationExpireMs)
	if err != nil {
		return fmt.Errorf("send desktop notification: %w", err)
	}

	d.mu.Lock()
	d.lastID = id
	d.mu.Unlock()

	d.logger.Debug("Desktop notification shown",
		zap.Uint32("notification_id", id),
		zap.Bool("connected", event.Connected))
	return nil
}

func (d *DesktopNotifier) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
