package ports

import "github.com/keyward/vouch/core"

// SessionCodec converts between device sessions and their bearer tokens.
type SessionCodec interface {
	SessionToToken(session *core.DeviceSession) (string, error)
	TokenToSession(token string) (*core.DeviceSession, error)
}
