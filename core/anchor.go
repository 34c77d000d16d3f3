package core

import (
	"bytes"
	"fmt"
)

const (
	// MaxDevicesPerAnchor bounds the device list. The web frontend limits
	// authentication devices further so recovery devices always have a slot.
	MaxDevicesPerAnchor = 10

	// VariableFieldsLimit bounds the cumulative size of all variable length
	// device fields of one anchor, so the device list always fits the
	// anchor's storage slot.
	VariableFieldsLimit = 2348

	maxAliasLen        = 64
	maxPubkeyLen       = 300
	maxCredentialIDLen = 200
	maxOriginLen       = 50
)

// DevicePurpose says what a device credential is used for.
type DevicePurpose string

const (
	PurposeAuthentication DevicePurpose = "authentication"
	PurposeRecovery       DevicePurpose = "recovery"
)

// DeviceKeyType identifies the kind of credential behind a device key.
type DeviceKeyType string

const (
	KeyTypeUnknown        DeviceKeyType = "unknown"
	KeyTypePlatform       DeviceKeyType = "platform"
	KeyTypeCrossPlatform  DeviceKeyType = "cross_platform"
	KeyTypeSeedPhrase     DeviceKeyType = "seed_phrase"
	KeyTypeBrowserStorage DeviceKeyType = "browser_storage_key"
)

// Device is one credential registered to an anchor.
type Device struct {
	Pubkey       []byte
	Alias        string
	CredentialID []byte
	Purpose      DevicePurpose
	KeyType      DeviceKeyType
	Protected    bool
	Origin       Origin
	LastUsage    Timestamp
}

// VariableFieldsLen is the storage weight of the device's variable length
// fields, counted against VariableFieldsLimit.
func (d Device) VariableFieldsLen() int {
	return len(d.Alias) + len(d.Pubkey) + len(d.CredentialID) + len(d.Origin)
}

// Anchor is a registered identity and the devices allowed to open it.
type Anchor struct {
	Number  AnchorNumber
	Devices []Device
}

// Device returns the registered device with the given public key.
func (a *Anchor) Device(pubkey []byte) (Device, bool) {
	if i, ok := a.deviceIndex(pubkey); ok {
		return a.Devices[i], true
	}
	return Device{}, false
}

// AddDevice registers a new device on the anchor.
func (a *Anchor) AddDevice(d Device) error {
	if _, ok := a.deviceIndex(d.Pubkey); ok {
		return ErrDeviceExists
	}
	if err := checkDevice(d); err != nil {
		return err
	}

	devices := make([]Device, 0, len(a.Devices)+1)
	devices = append(devices, a.Devices...)
	devices = append(devices, d)
	if err := checkAnchorLimits(devices); err != nil {
		return err
	}

	a.Devices = devices
	return nil
}

// UpdateDevice replaces the device keyed by d.Pubkey. Protected devices only
// accept mutations authenticated by their own key, carried in authenticated.
func (a *Anchor) UpdateDevice(authenticated []byte, d Device) error {
	i, ok := a.deviceIndex(d.Pubkey)
	if !ok {
		return ErrDeviceNotFound
	}
	if err := checkDevice(d); err != nil {
		return err
	}
	if err := checkMutationAllowed(a.Devices[i], authenticated); err != nil {
		return err
	}

	devices := make([]Device, len(a.Devices))
	copy(devices, a.Devices)
	devices[i] = d
	if err := checkAnchorLimits(devices); err != nil {
		return err
	}

	a.Devices = devices
	return nil
}

// RemoveDevice unregisters the device with the given public key.
//
// Anchor limits are deliberately not rechecked here: an anchor stored before
// a limit was introduced may violate it, and removing devices must stay the
// path back to conformance.
func (a *Anchor) RemoveDevice(authenticated, pubkey []byte) error {
	i, ok := a.deviceIndex(pubkey)
	if !ok {
		return ErrDeviceNotFound
	}
	if err := checkMutationAllowed(a.Devices[i], authenticated); err != nil {
		return err
	}

	a.Devices = append(a.Devices[:i:i], a.Devices[i+1:]...)
	return nil
}

func (a *Anchor) deviceIndex(pubkey []byte) (int, bool) {
	for i, d := range a.Devices {
		if bytes.Equal(d.Pubkey, pubkey) {
			return i, true
		}
	}
	return 0, false
}

func checkMutationAllowed(d Device, authenticated []byte) error {
	if !d.Protected {
		return nil
	}
	if !bytes.Equal(authenticated, d.Pubkey) {
		return ErrDeviceProtected
	}
	return nil
}

func checkDevice(d Device) error {
	if n := len(d.Alias); n > maxAliasLen {
		return fmt.Errorf("%w: alias is %d bytes, limit %d", ErrFieldTooLong, n, maxAliasLen)
	}
	if n := len(d.Pubkey); n > maxPubkeyLen {
		return fmt.Errorf("%w: pubkey is %d bytes, limit %d", ErrFieldTooLong, n, maxPubkeyLen)
	}
	if n := len(d.CredentialID); n > maxCredentialIDLen {
		return fmt.Errorf("%w: credential id is %d bytes, limit %d", ErrFieldTooLong, n, maxCredentialIDLen)
	}
	if n := len(d.Origin); n > maxOriginLen {
		return fmt.Errorf("%w: origin is %d bytes, limit %d", ErrFieldTooLong, n, maxOriginLen)
	}
	if d.Protected && d.KeyType != KeyTypeSeedPhrase {
		return ErrInvalidProtection
	}
	return nil
}

func checkAnchorLimits(devices []Device) error {
	if len(devices) > MaxDevicesPerAnchor {
		return ErrTooManyDevices
	}

	size := 0
	phrases := 0
	for _, d := range devices {
		size += d.VariableFieldsLen()
		if d.KeyType == KeyTypeSeedPhrase {
			phrases++
		}
	}
	if size > VariableFieldsLimit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrDeviceBudgetExceeded, size, VariableFieldsLimit)
	}
	if phrases > 1 {
		return ErrDuplicateRecoveryPhrase
	}

	return nil
}
