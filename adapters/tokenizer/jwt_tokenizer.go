package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/ports"
)

const AudienceSession = "vouch:session"

// JWTCodec implements the SessionCodec interface using JWT
type JWTCodec struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTCodec creates a new JWT session codec
func NewJWTCodec(signKey *ecdsa.PrivateKey) ports.SessionCodec {
	return &JWTCodec{signKey: signKey}
}

// SessionToToken converts a DeviceSession to a JWT token
func (j *JWTCodec) SessionToToken(session *core.DeviceSession) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(session.Anchor), 10),
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		DeviceKey: hexutil.Encode(session.DeviceKey),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, nil
}

// TokenToSession converts a JWT token back to a DeviceSession
func (j *JWTCodec) TokenToSession(tokenStr string) (*core.DeviceSession, error) {
	// Parse token with custom claims
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceSession))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSession, err)
	}

	// Validate token
	if !token.Valid {
		return nil, core.ErrInvalidSession
	}

	// Extract claims
	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", core.ErrInvalidSession)
	}

	anchor, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed anchor claim", core.ErrInvalidSession)
	}
	deviceKey, err := hexutil.Decode(claims.DeviceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed device key claim", core.ErrInvalidSession)
	}

	// Create session from claims
	session := &core.DeviceSession{
		ID:        claims.ID,
		Anchor:    core.AnchorNumber(anchor),
		DeviceKey: deviceKey,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	return session, nil
}
