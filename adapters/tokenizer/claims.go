package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with device session ones
type SessionClaims struct {
	jwt.RegisteredClaims
	DeviceKey string `json:"dev"` // hex encoded public key of the device
}
