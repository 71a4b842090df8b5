package services

import (
	"context"
	"errors"
	"path"
	"strings"

	"meetinglight/models"
)

// ActivitySource reports whether a capability is currently in use by any
// application. Implementations hold no memory between calls.
type ActivitySource interface {
	Active(ctx context.Context, capability models.Capability) (bool, error)
}

// ActivitySourceFunc adapts a plain function to ActivitySource
type ActivitySourceFunc func(ctx context.Context, capability models.Capability) (bool, error)

func (f ActivitySourceFunc) Active(ctx context.Context, capability models.Capability) (bool, error) {
	return f(ctx, capability)
}

const (
	consentStorePath = `SOFTWARE\Microsoft\Windows\CurrentVersion\CapabilityAccessManager\ConsentStore`
	nonPackagedKey   = "NonPackaged"
	lastUsedStopName = "LastUsedTimeStop"
)

var errValueNotFound = errors.New("value not found")

// consentKey is one node of the per-user capability consent store. Package
// applications register directly below the capability key; desktop
// applications register below its NonPackaged child.
type consentKey interface {
	SubKeyNames() ([]string, error)
	OpenSubKey(name string) (consentKey, error)
	// LastUsedTimeStop returns errValueNotFound when the entry has no stop
	// time recorded.
	LastUsedTimeStop() (int64, error)
	Close() error
}

// scanConsentStore reports whether any application entry below root is
// still using the capability. Only a failure to enumerate root itself is
// returned; failures on individual entries count as not in use.
func scanConsentStore(root consentKey) (bool, error) {
	names, err := root.SubKeyNames()
	if err != nil {
		return false, err
	}

	for _, name := range names {
		if name == nonPackagedKey {
			if scanNonPackaged(root) {
				return true, nil
			}
			continue
		}
		if entryActive(root, name) {
			return true, nil
		}
	}
	return false, nil
}

func scanNonPackaged(root consentKey) bool {
	nonPackaged, err := root.OpenSubKey(nonPackagedKey)
	if err != nil {
		return false
	}
	defer nonPackaged.Close()

	names, err := nonPackaged.SubKeyNames()
	if err != nil {
		return false
	}
	for _, name := range names {
		if entryActive(nonPackaged, name) {
			return true
		}
	}
	return false
}

// entryActive applies the in-use rule to a single application entry: a
// stop time that is zero or negative means the application has not
// released the device yet.
func entryActive(parent consentKey, name string) bool {
	entry, err := parent.OpenSubKey(name)
	if err != nil {
		return false
	}
	defer entry.Close()

	stop, err := entry.LastUsedTimeStop()
	if err != nil {
		return false
	}
	return stop <= 0
}

// devicePatterns lists the device node globs that indicate a capability is
// held open on systems without a consent store.
var devicePatterns = map[models.Capability][]string{
	models.Webcam:     {"/dev/video*"},
	models.Microphone: {"/dev/snd/pcmC*D*c"},
}

// matchesDevice reports whether an open file path is a device node for the
// capability.
func matchesDevice(capability models.Capability, devicePath string) bool {
	if !strings.HasPrefix(devicePath, "/dev/") {
		return false
	}
	for _, pattern := range devicePatterns[capability] {
		if ok, _ := path.Match(pattern, devicePath); ok {
			return true
		}
	}
	return false
}
