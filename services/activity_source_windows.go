//go:build windows

package services

import (
	"context"
	"errors"
	"fmt"

	"meetinglight/models"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/registry"
)

// ConsentStoreSource reads the current user's capability consent store,
// where Windows records per-application device usage times.
type ConsentStoreSource struct {
	logger *zap.Logger
}

// NewActivitySource returns the consent store reader for this platform
func NewActivitySource(logger *zap.Logger) ActivitySource {
	return &ConsentStoreSource{logger: logger}
}

func (s *ConsentStoreSource) Active(_ context.Context, capability models.Capability) (bool, error) {
	path := consentStorePath + `\` + string(capability)

	key, err := registry.OpenKey(registry.CURRENT_USER, path, registry.ENUMERATE_SUB_KEYS|registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open %s consent store: %w", capability, err)
	}

	root := registryKey{key: key}
	defer root.Close()

	active, err := scanConsentStore(root)
	if err != nil {
		return false, fmt.Errorf("failed to scan %s consent store: %w", capability, err)
	}
	return active, nil
}

// registryKey adapts a registry handle to consentKey
type registryKey struct {
	key registry.Key
}

func (k registryKey) SubKeyNames() ([]string, error) {
	return k.key.ReadSubKeyNames(-1)
}

func (k registryKey) OpenSubKey(name string) (consentKey, error) {
	sub, err := registry.OpenKey(k.key, name, registry.ENUMERATE_SUB_KEYS|registry.QUERY_VALUE)
	if err != nil {
		return nil, err
	}
	return registryKey{key: sub}, nil
}

func (k registryKey) LastUsedTimeStop() (int64, error) {
	value, _, err := k.key.GetIntegerValue(lastUsedStopName)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return 0, errValueNotFound
		}
		// Includes registry.ErrUnexpectedType; the entry then counts as not in use.
		return 0, err
	}
	// QWORD FILETIME values are stored unsigned; reinterpret so that the
	// in-use sentinel compares as non-positive.
	return int64(value), nil
}

func (k registryKey) Close() error {
	return k.key.Close()
}
