package core

import "time"

// DeviceSession is an authenticated device's claim to an anchor, established
// by the device ceremony and carried as a bearer token afterwards.
type DeviceSession struct {
	ID        string       // unique session identifier
	Anchor    AnchorNumber // anchor the device belongs to
	DeviceKey []byte       // public key of the authenticated device
	IssuedAt  time.Time    // when the session was created
	ExpiresAt time.Time    // when the session stops being accepted
}

// PendingSignature is the authority's record of one scheduled delegation
// signature between the prepare call and certification.
type PendingSignature struct {
	UserKey     UserKey
	SessionKey  SessionKey
	Expiration  Timestamp
	Signature   []byte
	CertifiedAt Timestamp // instant the signature becomes retrievable
}
