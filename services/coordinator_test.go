package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"meetinglight/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type coordinatorFixture struct {
	source    *scriptedSource
	transport *fakeTransport
	monitor   *DeviceActivityMonitor
	broker    *BrokerConnectionManager
	notifier  *recordingNotifier
	coord     *Coordinator
}

func newCoordinatorFixture(source *scriptedSource, transport *fakeTransport, retryDelay time.Duration) *coordinatorFixture {
	logger := zap.NewNop()
	f := &coordinatorFixture{
		source:    source,
		transport: transport,
		monitor:   NewDeviceActivityMonitor(source, 10*time.Millisecond, logger),
		broker:    NewBrokerConnectionManager(transport, "DESK01", logger, WithRetryDelay(retryDelay)),
		notifier:  &recordingNotifier{},
	}
	f.coord = NewCoordinator(f.monitor, f.broker, []Notifier{f.notifier}, logger)
	f.coord.flushDelay = 0
	return f
}

// states returns the state publishes in order, formatted as topic=payload
func (f *coordinatorFixture) states() []string {
	var out []string
	for _, p := range f.transport.published() {
		if strings.HasPrefix(p.Topic, stateTopicPrefix+"/") {
			out = append(out, p.Topic+"="+string(p.Payload))
		}
	}
	return out
}

func (f *coordinatorFixture) lastState(capability models.Capability) string {
	topic := StateTopic("DESK01", capability)
	last := ""
	for _, s := range f.states() {
		if strings.HasPrefix(s, topic+"=") {
			last = strings.TrimPrefix(s, topic+"=")
		}
	}
	return last
}

func TestCoordinator_StartPublishesBaseline(t *testing.T) {
	source := newScriptedSource().script(models.Webcam, true)
	f := newCoordinatorFixture(source, newFakeTransport(nil), time.Hour)
	defer f.coord.Shutdown(context.Background())

	require.NoError(t, f.coord.Start(context.Background()))

	assert.GreaterOrEqual(t, len(f.states()), 2)
	assert.Equal(t, "on", f.lastState(models.Webcam))
	assert.Equal(t, "off", f.lastState(models.Microphone))

	require.Eventually(t, func() bool {
		return len(f.notifier.connectionFlags()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []bool{true}, f.notifier.connectionFlags())
}

func TestCoordinator_PublishesStateChanges(t *testing.T) {
	source := newScriptedSource().script(models.Microphone, false, false, true)
	f := newCoordinatorFixture(source, newFakeTransport(nil), time.Hour)
	defer f.coord.Shutdown(context.Background())

	require.NoError(t, f.coord.Start(context.Background()))

	require.Eventually(t, func() bool {
		return f.lastState(models.Microphone) == "on"
	}, time.Second, time.Millisecond)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.states, 1)
	assert.Equal(t, models.Microphone, f.notifier.states[0].Capability)
	assert.True(t, f.notifier.states[0].Active)
}

func TestCoordinator_ResyncOnReconnect(t *testing.T) {
	source := newScriptedSource().script(models.Webcam, true)
	transport := newFakeTransport(nil, nil)
	f := newCoordinatorFixture(source, transport, 10*time.Millisecond)
	defer f.coord.Shutdown(context.Background())

	require.NoError(t, f.coord.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(f.notifier.connectionFlags()) == 1
	}, time.Second, time.Millisecond)
	settle()
	before := len(f.states())

	transport.drop()

	require.Eventually(t, func() bool {
		return len(f.notifier.connectionFlags()) == 3
	}, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return len(f.states()) >= before+2
	}, time.Second, time.Millisecond)

	assert.Equal(t, []bool{true, false, true}, f.notifier.connectionFlags())
	assert.Equal(t, "on", f.lastState(models.Webcam))
	assert.Equal(t, "off", f.lastState(models.Microphone))
}

func TestCoordinator_ShutdownTurnsSensorsOff(t *testing.T) {
	source := newScriptedSource().
		script(models.Webcam, true).
		script(models.Microphone, true)
	transport := newFakeTransport(nil)
	f := newCoordinatorFixture(source, transport, time.Hour)

	require.NoError(t, f.coord.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(f.notifier.connectionFlags()) == 1
	}, time.Second, time.Millisecond)
	f.coord.Shutdown(context.Background())

	states := f.states()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, []string{
		"HA-MeetingLight/DESK01/webcam=off",
		"HA-MeetingLight/DESK01/microphone=off",
	}, states[len(states)-2:])
	assert.Equal(t, 1, transport.disconnects)
	assert.Equal(t, models.Disconnected, f.broker.Status())

	// Monitor is stopped, so it can be started again.
	require.NoError(t, f.monitor.Start(context.Background()))
	f.monitor.Stop()
}

func TestCoordinator_ShutdownWhileDisconnected(t *testing.T) {
	transport := newFakeTransport(errBrokerDown)
	f := newCoordinatorFixture(newScriptedSource(), transport, time.Hour)

	require.NoError(t, f.coord.Start(context.Background()))
	f.coord.Shutdown(context.Background())

	assert.Empty(t, f.states())
	assert.Zero(t, transport.disconnects)
}

func TestCoordinator_ShutdownHonorsDeadline(t *testing.T) {
	f := newCoordinatorFixture(newScriptedSource(), newFakeTransport(nil), time.Hour)
	f.coord.flushDelay = time.Hour

	require.NoError(t, f.coord.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.coord.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown ignored its deadline")
	}
}

func TestCoordinator_StartFailsWhenMonitorRunning(t *testing.T) {
	f := newCoordinatorFixture(newScriptedSource(), newFakeTransport(nil), time.Hour)
	require.NoError(t, f.monitor.Start(context.Background()))
	defer f.monitor.Stop()

	err := f.coord.Start(context.Background())
	assert.ErrorIs(t, err, ErrMonitorRunning)
	assert.Empty(t, f.transport.attemptTimes(), "no connection attempt after a failed start")
}

func TestCoordinator_Status(t *testing.T) {
	source := newScriptedSource().script(models.Microphone, true)
	f := newCoordinatorFixture(source, newFakeTransport(nil), time.Hour)
	defer f.coord.Shutdown(context.Background())

	require.NoError(t, f.coord.Start(context.Background()))

	assert.Equal(t, models.AgentStatus{
		Host:       "DESK01",
		Connection: "connected",
		Webcam:     false,
		Microphone: true,
		Icon:       IconMicrophone,
	}, f.coord.Status())
}

func TestIcon(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		webcam     bool
		microphone bool
		want       string
	}{
		{"disconnected wins", false, true, true, IconDisconnected},
		{"webcam over microphone", true, true, true, IconWebcam},
		{"webcam only", true, true, false, IconWebcam},
		{"microphone only", true, false, true, IconMicrophone},
		{"idle", true, false, false, IconIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Icon(tt.connected, tt.webcam, tt.microphone))
		})
	}
}
