package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"
	"golang.org/x/time/rate"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/internal/metrics"
	"github.com/keyward/vouch/ports"
)

// DefaultSessionTTL is how long a device session stays valid.
const DefaultSessionTTL = 30 * time.Minute

// AnchorService manages the anchor ledger and the device sessions bound to
// it. The device ceremony proving possession of a key happens upstream; this
// service trusts the keys it is handed.
type AnchorService struct {
	registry ports.AnchorRegistry
	codec    ports.SessionCodec
	events   ports.EventPublisher
	limiter  *rate.Limiter
	clock    abtime.AbstractTime
	logger   *slog.Logger
	metrics  *metrics.Metrics

	sessionTTL time.Duration
}

// NewAnchorService creates the ledger service. The limiter bounds anchor
// registration and may be nil; clock, logger and meter may be nil too.
func NewAnchorService(registry ports.AnchorRegistry, codec ports.SessionCodec, events ports.EventPublisher, limiter *rate.Limiter, clock abtime.AbstractTime, logger *slog.Logger, m *metrics.Metrics) *AnchorService {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnchorService{
		registry:   registry,
		codec:      codec,
		events:     events,
		limiter:    limiter,
		clock:      clock,
		logger:     logger,
		metrics:    m,
		sessionTTL: DefaultSessionTTL,
	}
}

// Register allocates a fresh anchor for an authenticated device and opens
// the first session on it.
func (s *AnchorService) Register(ctx context.Context, device core.Device) (core.Anchor, string, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return core.Anchor{}, "", core.ErrRateLimited
	}

	anchor, err := s.registry.Register(ctx, device)
	if err != nil {
		return core.Anchor{}, "", fmt.Errorf("failed to register anchor: %w", err)
	}

	token, err := s.openSession(anchor.Number, device.Pubkey)
	if err != nil {
		return core.Anchor{}, "", err
	}

	s.metrics.AnchorOperation("register")
	s.publishAnchorOperation(ctx, anchor.Number, "register", device.Pubkey)

	return anchor, token, nil
}

// Login opens a session for a device already registered on the anchor.
func (s *AnchorService) Login(ctx context.Context, number core.AnchorNumber, deviceKey []byte) (string, error) {
	anchor, err := s.registry.Anchor(ctx, number)
	if err != nil {
		return "", err
	}

	device, ok := anchor.Device(deviceKey)
	if !ok {
		return "", core.ErrDeviceNotFound
	}

	// Best effort usage stamp; a failed save must not block the login.
	device.LastUsage = core.TimestampOf(s.clock.Now())
	if err := anchor.UpdateDevice(deviceKey, device); err == nil {
		if err := s.registry.Save(ctx, anchor); err != nil {
			s.logger.Warn("failed to record device usage", "anchor", uint64(number), "error", err)
		}
	}

	return s.openSession(anchor.Number, deviceKey)
}

// ValidateSession checks a bearer token and returns the session it carries.
func (s *AnchorService) ValidateSession(ctx context.Context, token string) (*core.DeviceSession, error) {
	session, err := s.codec.TokenToSession(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	if s.clock.Now().After(session.ExpiresAt) {
		return nil, core.ErrSessionExpired
	}

	return session, nil
}

// Info returns the session's anchor. A session only ever sees the anchor it
// is bound to.
func (s *AnchorService) Info(ctx context.Context, session *core.DeviceSession, number core.AnchorNumber) (core.Anchor, error) {
	if session.Anchor != number {
		return core.Anchor{}, core.ErrInvalidSession
	}
	return s.registry.Anchor(ctx, number)
}

// AddDevice registers another device on the session's anchor.
func (s *AnchorService) AddDevice(ctx context.Context, session *core.DeviceSession, device core.Device) error {
	anchor, err := s.registry.Anchor(ctx, session.Anchor)
	if err != nil {
		return err
	}

	if err := anchor.AddDevice(device); err != nil {
		return err
	}
	if err := s.registry.Save(ctx, anchor); err != nil {
		return fmt.Errorf("failed to save anchor: %w", err)
	}

	s.metrics.AnchorOperation("add_device")
	s.publishAnchorOperation(ctx, anchor.Number, "add_device", device.Pubkey)
	return nil
}

// UpdateDevice replaces a device on the session's anchor. Mutations of a
// protected device must come from a session on that same device.
func (s *AnchorService) UpdateDevice(ctx context.Context, session *core.DeviceSession, device core.Device) error {
	anchor, err := s.registry.Anchor(ctx, session.Anchor)
	if err != nil {
		return err
	}

	if err := anchor.UpdateDevice(session.DeviceKey, device); err != nil {
		return err
	}
	if err := s.registry.Save(ctx, anchor); err != nil {
		return fmt.Errorf("failed to save anchor: %w", err)
	}

	s.metrics.AnchorOperation("update_device")
	s.publishAnchorOperation(ctx, anchor.Number, "update_device", device.Pubkey)
	return nil
}

// RemoveDevice unregisters a device from the session's anchor.
func (s *AnchorService) RemoveDevice(ctx context.Context, session *core.DeviceSession, deviceKey []byte) error {
	anchor, err := s.registry.Anchor(ctx, session.Anchor)
	if err != nil {
		return err
	}

	if err := anchor.RemoveDevice(session.DeviceKey, deviceKey); err != nil {
		return err
	}
	if err := s.registry.Save(ctx, anchor); err != nil {
		return fmt.Errorf("failed to save anchor: %w", err)
	}

	s.metrics.AnchorOperation("remove_device")
	s.publishAnchorOperation(ctx, anchor.Number, "remove_device", deviceKey)
	return nil
}

func (s *AnchorService) openSession(anchor core.AnchorNumber, deviceKey []byte) (string, error) {
	now := s.clock.Now()
	session := &core.DeviceSession{
		ID:        uuid.New().String(),
		Anchor:    anchor,
		DeviceKey: deviceKey,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	token, err := s.codec.SessionToToken(session)
	if err != nil {
		return "", fmt.Errorf("failed to create session token: %w", err)
	}

	return token, nil
}

func (s *AnchorService) publishAnchorOperation(ctx context.Context, anchor core.AnchorNumber, operation string, deviceKey []byte) {
	if s.events == nil {
		return
	}
	// Log but keep going, the ledger change is already durable.
	if err := s.events.PublishAnchorOperation(ctx, anchor, operation, deviceKey); err != nil {
		s.logger.Warn("failed to publish anchor operation", "operation", operation, "error", err)
	}
}
