package core

import "errors"

var (
	ErrPrepareRejected   = errors.New("signing authority rejected the delegation")
	ErrDelegationTimeout = errors.New("signed delegation was not ready in time")

	ErrSessionExpired   = errors.New("session has expired")
	ErrInvalidSession   = errors.New("invalid session")
	ErrInvalidSignature = errors.New("invalid signature")

	ErrUnknownAnchor = errors.New("unknown anchor")
	ErrAnchorExists  = errors.New("anchor already registered")

	ErrDeviceNotFound          = errors.New("device not found")
	ErrDeviceExists            = errors.New("device already registered")
	ErrTooManyDevices          = errors.New("anchor device limit reached")
	ErrDeviceBudgetExceeded    = errors.New("cumulative device data over limit")
	ErrFieldTooLong            = errors.New("device field over limit")
	ErrDuplicateRecoveryPhrase = errors.New("anchor already has a recovery phrase")
	ErrInvalidProtection       = errors.New("only recovery phrases can be protected")
	ErrDeviceProtected         = errors.New("device is protected")

	ErrRateLimited = errors.New("too many registration attempts")
)
