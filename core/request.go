package core

// NewSigningRequest resolves the effective origin for req and pins it
// together with the session key and requested lifetime. The whole exchange
// works off the pinned value; the origin is never recomputed per attempt.
func NewSigningRequest(req AuthorizationRequest) SigningRequest {
	return SigningRequest{
		Origin:     EffectiveOrigin(req.DerivationOrigin, req.RequestOrigin),
		SessionKey: req.SessionKey,
		MaxTTL:     req.MaxTTL,
	}
}
