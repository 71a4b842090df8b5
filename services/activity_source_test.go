package services

import (
	"errors"
	"testing"

	"meetinglight/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKey is an in-memory consent store node.
type fakeKey struct {
	children map[string]*fakeKey
	order    []string
	stop     *int64
	valueErr error
	openErr  error
	listErr  error
	closed   int
}

func newFakeKey() *fakeKey {
	return &fakeKey{children: map[string]*fakeKey{}}
}

func (k *fakeKey) child(name string, child *fakeKey) *fakeKey {
	k.children[name] = child
	k.order = append(k.order, name)
	return k
}

func entryWithStop(stop int64) *fakeKey {
	k := newFakeKey()
	k.stop = &stop
	return k
}

func (k *fakeKey) SubKeyNames() ([]string, error) {
	if k.listErr != nil {
		return nil, k.listErr
	}
	return k.order, nil
}

func (k *fakeKey) OpenSubKey(name string) (consentKey, error) {
	child, ok := k.children[name]
	if !ok {
		return nil, errors.New("no such key")
	}
	if child.openErr != nil {
		return nil, child.openErr
	}
	return child, nil
}

func (k *fakeKey) LastUsedTimeStop() (int64, error) {
	if k.valueErr != nil {
		return 0, k.valueErr
	}
	if k.stop == nil {
		return 0, errValueNotFound
	}
	return *k.stop, nil
}

func (k *fakeKey) Close() error {
	k.closed++
	return nil
}

func TestScanConsentStore_EntryRules(t *testing.T) {
	tests := []struct {
		name  string
		entry *fakeKey
		want  bool
	}{
		{"no usage timestamp", newFakeKey(), false},
		{"still in use sentinel", entryWithStop(-1), true},
		{"zero stop time", entryWithStop(0), true},
		{"stopped in the past", entryWithStop(12345), false},
		{"unreadable value", &fakeKey{children: map[string]*fakeKey{}, valueErr: errors.New("unexpected key value type")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newFakeKey().child("Microsoft.WindowsCamera_8wekyb3d8bbwe", tt.entry)

			active, err := scanConsentStore(root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, active)
		})
	}
}

func TestScanConsentStore_NonPackagedNamespace(t *testing.T) {
	nonPackaged := newFakeKey().
		child(`C:#Program Files#Zoom#bin#Zoom.exe`, entryWithStop(-1))
	root := newFakeKey().
		child("Microsoft.WindowsCamera_8wekyb3d8bbwe", entryWithStop(133500000000000000)).
		child(nonPackagedKey, nonPackaged)

	active, err := scanConsentStore(root)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, 1, nonPackaged.closed)
}

func TestScanConsentStore_EntryFailuresDoNotAbortScan(t *testing.T) {
	broken := newFakeKey()
	broken.openErr = errors.New("access denied")

	root := newFakeKey().
		child("Broken.App", broken).
		child("Unreadable.App", &fakeKey{children: map[string]*fakeKey{}, valueErr: errors.New("io error")}).
		child("Teams.App", entryWithStop(-1))

	active, err := scanConsentStore(root)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestScanConsentStore_NothingInUse(t *testing.T) {
	root := newFakeKey().
		child("A", entryWithStop(1)).
		child("B", newFakeKey()).
		child(nonPackagedKey, newFakeKey().child("C", entryWithStop(99)))

	active, err := scanConsentStore(root)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestScanConsentStore_RootEnumerationFails(t *testing.T) {
	root := newFakeKey()
	root.listErr = errors.New("registry unavailable")

	active, err := scanConsentStore(root)
	assert.Error(t, err)
	assert.False(t, active)
}

func TestMatchesDevice(t *testing.T) {
	tests := []struct {
		capability models.Capability
		path       string
		want       bool
	}{
		{models.Webcam, "/dev/video0", true},
		{models.Webcam, "/dev/video12", true},
		{models.Webcam, "/dev/snd/pcmC0D0c", false},
		{models.Microphone, "/dev/snd/pcmC0D0c", true},
		{models.Microphone, "/dev/snd/pcmC1D3c", true},
		{models.Microphone, "/dev/snd/pcmC0D0p", false},
		{models.Microphone, "/dev/snd/controlC0", false},
		{models.Webcam, "/home/user/video0", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.capability)+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesDevice(tt.capability, tt.path))
		})
	}
}
