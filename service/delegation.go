package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/internal/metrics"
	"github.com/keyward/vouch/internal/retry"
	"github.com/keyward/vouch/ports"
)

// DelegationService runs the two-phase delegation exchange: one prepare call
// committing scope and expiry, then polls until the signing authority has
// certified the signature.
type DelegationService struct {
	authority ports.SigningAuthority
	policy    retry.Policy
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewDelegationService creates the exchange driver. Logger and meter may be
// nil; the policy's attempt budget falls back to retry.DefaultAttempts.
func NewDelegationService(authority ports.SigningAuthority, policy retry.Policy, logger *slog.Logger, m *metrics.Metrics) *DelegationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DelegationService{
		authority: authority,
		policy:    policy,
		logger:    logger,
		metrics:   m,
	}
}

// Fetch runs one delegation exchange for the pinned request. The prepare
// call happens exactly once; every poll after it reuses the identical
// origin, session key and returned expiration, so the authority always finds
// the matching pending signature. A prepare failure is structural and never
// retried; polls run until certification or until the attempt budget ends.
func (s *DelegationService) Fetch(ctx context.Context, anchor core.AnchorNumber, request core.SigningRequest) (core.IssuedDelegation, error) {
	prepared, err := s.authority.PrepareDelegation(ctx, anchor, request.Origin, request.SessionKey, request.MaxTTL)
	if err != nil {
		s.metrics.DelegationFailed("prepare_rejected")
		return core.IssuedDelegation{}, fmt.Errorf("%w: %v", core.ErrPrepareRejected, err)
	}
	s.metrics.DelegationPrepared()

	s.logger.Debug("delegation prepared",
		"anchor", uint64(anchor),
		"origin", string(request.Origin),
		"expiration", prepared.Expiration.Time(),
	)

	var signed core.SignedDelegation
	err = s.policy.Run(ctx, func(ctx context.Context, attempt int) (bool, error) {
		s.metrics.PollAttempt()

		got, ready, err := s.authority.GetDelegation(ctx, anchor, request.Origin, request.SessionKey, prepared.Expiration)
		if err != nil {
			return false, err
		}
		if !ready {
			return false, nil
		}

		signed = got
		return true, nil
	})
	if err != nil {
		// An abandoned flow is not a protocol failure.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return core.IssuedDelegation{}, err
		}
		s.metrics.DelegationFailed("timeout")
		return core.IssuedDelegation{}, fmt.Errorf("%w: %v", core.ErrDelegationTimeout, err)
	}

	// Pubkey, expiration and signature are copied verbatim from the
	// authority's response. Targets stays unset, delegations issued here are
	// never scoped to a target set.
	issued := core.IssuedDelegation{
		UserKey: prepared.UserKey,
		SignedDelegation: core.SignedDelegation{
			Delegation: core.Delegation{
				Pubkey:     signed.Delegation.Pubkey,
				Expiration: signed.Delegation.Expiration,
			},
			Signature: signed.Signature,
		},
	}

	s.metrics.DelegationIssued()
	return issued, nil
}
