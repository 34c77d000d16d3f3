package service

import (
	"context"
	"log/slog"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/ports"
)

// AuthorizeService is the externally facing authorization flow: it takes a
// relying application's request from the transport, drives the delegation
// exchange for the authenticated anchor and hands the outcome back.
type AuthorizeService struct {
	delegations *DelegationService
	events      ports.EventPublisher
	logger      *slog.Logger
}

// NewAuthorizeService creates the authorization flow.
func NewAuthorizeService(delegations *DelegationService, events ports.EventPublisher, logger *slog.Logger) *AuthorizeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizeService{
		delegations: delegations,
		events:      events,
		logger:      logger,
	}
}

// Authorize resolves the request's effective origin exactly once, pins it
// for the whole exchange and returns the issued delegation. The request is
// spent either way; a failed exchange is restarted as a new request.
func (s *AuthorizeService) Authorize(ctx context.Context, session *core.DeviceSession, req core.AuthorizationRequest) (core.IssuedDelegation, error) {
	signing := core.NewSigningRequest(req)

	issued, err := s.delegations.Fetch(ctx, session.Anchor, signing)
	if err != nil {
		s.logger.Warn("authorization failed",
			"anchor", uint64(session.Anchor),
			"origin", string(signing.Origin),
			"error", err,
		)
		return core.IssuedDelegation{}, err
	}

	// Log but don't fail the exchange, the delegation is already issued.
	if s.events != nil {
		if err := s.events.PublishDelegationIssued(ctx, session.Anchor, signing.Origin, issued.SignedDelegation.Delegation.Expiration); err != nil {
			s.logger.Warn("failed to publish issuance event", "error", err)
		}
	}

	return issued, nil
}
