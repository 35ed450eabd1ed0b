package gcp

import (
	"fmt"
	"net/url"
	"strings"
)

// StorageMode selects real GCS or a fake-gcs-server emulator.
type StorageMode string

const (
	StorageModeGCS      StorageMode = "gcs"
	StorageModeEmulator StorageMode = "gcs_emulator"
)

// StorageSettings is the resolved object storage target.
type StorageSettings struct {
	Mode         StorageMode
	EmulatorHost string
	// Implicit is set when no mode was configured and the emulator host picked it.
	Implicit bool
}

func (s StorageSettings) Emulated() bool { return s.Mode == StorageModeEmulator }

// Reasons carried by StorageConfigError.
const (
	ReasonInvalidMode         = "invalid_mode"
	ReasonMissingEmulatorHost = "missing_emulator_host"
	ReasonInvalidEmulatorHost = "invalid_emulator_host"
)

type StorageConfigError struct {
	Reason string
	Value  string
	Cause  error
}

func (e *StorageConfigError) Error() string {
	switch e.Reason {
	case ReasonInvalidMode:
		return fmt.Sprintf("OBJECT_STORAGE_MODE %q is not one of %q, %q", e.Value, StorageModeGCS, StorageModeEmulator)
	case ReasonMissingEmulatorHost:
		return "OBJECT_STORAGE_MODE gcs_emulator needs STORAGE_EMULATOR_HOST"
	case ReasonInvalidEmulatorHost:
		return fmt.Sprintf("STORAGE_EMULATOR_HOST %q is not an absolute URL", e.Value)
	}
	return "object storage config: " + e.Reason
}

func (e *StorageConfigError) Unwrap() error { return e.Cause }

// ParseStorageSettings resolves mode and emulator host. A blank mode with an
// emulator host selects the emulator, which is how local compose files set it up.
func ParseStorageSettings(mode, emulatorHost string) (StorageSettings, error) {
	s := StorageSettings{EmulatorHost: strings.TrimRight(strings.TrimSpace(emulatorHost), "/")}
	switch m := StorageMode(strings.ToLower(strings.TrimSpace(mode))); m {
	case "":
		s.Mode = StorageModeGCS
		if s.EmulatorHost != "" {
			s.Mode, s.Implicit = StorageModeEmulator, true
		}
	case StorageModeGCS, StorageModeEmulator:
		s.Mode = m
	default:
		return s, &StorageConfigError{Reason: ReasonInvalidMode, Value: strings.TrimSpace(mode)}
	}
	return s, s.validate()
}

func (s StorageSettings) validate() error {
	switch s.Mode {
	case StorageModeGCS:
		return nil
	case StorageModeEmulator:
	default:
		return &StorageConfigError{Reason: ReasonInvalidMode, Value: string(s.Mode)}
	}
	if s.EmulatorHost == "" {
		return &StorageConfigError{Reason: ReasonMissingEmulatorHost}
	}
	if u, err := url.Parse(s.EmulatorHost); err != nil || u.Scheme == "" || u.Host == "" {
		return &StorageConfigError{Reason: ReasonInvalidEmulatorHost, Value: s.EmulatorHost, Cause: err}
	}
	return nil
}
