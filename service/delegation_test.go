package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/internal/retry"
)

type prepareCall struct {
	anchor     core.AnchorNumber
	origin     core.Origin
	sessionKey string
	maxTTL     time.Duration
}

type pollCall struct {
	anchor     core.AnchorNumber
	origin     core.Origin
	sessionKey string
	expiration core.Timestamp
}

// scriptedAuthority answers not-ready a fixed number of times and records
// every call it sees.
type scriptedAuthority struct {
	prepared   core.PreparedDelegation
	prepareErr error
	signed     core.SignedDelegation
	readyAfter int // polls answered not-ready before the signature appears
	pollErr    error

	prepareCalls []prepareCall
	pollCalls    []pollCall
	pollNotify   chan struct{}
}

func (a *scriptedAuthority) PrepareDelegation(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, sessionKey core.SessionKey, maxTTL time.Duration) (core.PreparedDelegation, error) {
	a.prepareCalls = append(a.prepareCalls, prepareCall{anchor, origin, string(sessionKey), maxTTL})
	if a.prepareErr != nil {
		return core.PreparedDelegation{}, a.prepareErr
	}
	return a.prepared, nil
}

func (a *scriptedAuthority) GetDelegation(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, sessionKey core.SessionKey, expiration core.Timestamp) (core.SignedDelegation, bool, error) {
	a.pollCalls = append(a.pollCalls, pollCall{anchor, origin, string(sessionKey), expiration})
	if a.pollNotify != nil {
		a.pollNotify <- struct{}{}
	}
	if a.pollErr != nil {
		return core.SignedDelegation{}, false, a.pollErr
	}
	if len(a.pollCalls) <= a.readyAfter {
		return core.SignedDelegation{}, false, nil
	}
	return a.signed, true, nil
}

// recordingClock fires every delay immediately and keeps the schedule.
type recordingClock struct {
	delays []time.Duration
}

func (c *recordingClock) After(d time.Duration, id int) <-chan time.Time {
	c.delays = append(c.delays, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// stuckClock never fires.
type stuckClock struct{}

func (stuckClock) After(time.Duration, int) <-chan time.Time {
	return make(chan time.Time)
}

type issuedEvent struct {
	anchor     core.AnchorNumber
	origin     core.Origin
	expiration core.Timestamp
}

type anchorOpEvent struct {
	anchor    core.AnchorNumber
	operation string
	deviceKey []byte
}

type recordingPublisher struct {
	err       error
	issued    []issuedEvent
	anchorOps []anchorOpEvent
}

func (p *recordingPublisher) PublishDelegationIssued(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, expiration core.Timestamp) error {
	p.issued = append(p.issued, issuedEvent{anchor, origin, expiration})
	return p.err
}

func (p *recordingPublisher) PublishAnchorOperation(ctx context.Context, anchor core.AnchorNumber, operation string, deviceKey []byte) error {
	p.anchorOps = append(p.anchorOps, anchorOpEvent{anchor, operation, deviceKey})
	return p.err
}

func testAuthority(readyAfter int) *scriptedAuthority {
	sessionKey := core.SessionKey{0xAA, 0xBB}
	expiration := core.Timestamp(1_700_000_000_000_000_000)
	return &scriptedAuthority{
		prepared: core.PreparedDelegation{
			UserKey:    core.UserKey{0x01, 0x02, 0x03},
			Expiration: expiration,
		},
		signed: core.SignedDelegation{
			Delegation: core.Delegation{
				Pubkey:     sessionKey,
				Expiration: expiration,
			},
			Signature: []byte{0xFE, 0xED},
		},
		readyAfter: readyAfter,
	}
}

func TestFetchSucceedsWhenEventuallyReady(t *testing.T) {
	authority := testAuthority(2)
	clock := &recordingClock{}
	svc := NewDelegationService(authority, retry.Policy{Attempts: 5, BaseInterval: time.Second, Clock: clock}, nil, nil)

	request := core.SigningRequest{
		Origin:     "https://abc123.ic0.app",
		SessionKey: core.SessionKey{0xAA, 0xBB},
		MaxTTL:     30 * time.Minute,
	}

	issued, err := svc.Fetch(context.Background(), 10000, request)
	require.NoError(t, err)

	// Two not-ready replies then the signature: exactly three polls.
	assert.Len(t, authority.pollCalls, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.delays)

	// The returned fields mirror the authority's response exactly.
	assert.Equal(t, core.UserKey{0x01, 0x02, 0x03}, issued.UserKey)
	assert.Equal(t, authority.signed.Delegation.Pubkey, issued.SignedDelegation.Delegation.Pubkey)
	assert.Equal(t, authority.prepared.Expiration, issued.SignedDelegation.Delegation.Expiration)
	assert.Equal(t, authority.signed.Signature, issued.SignedDelegation.Signature)
	assert.Nil(t, issued.SignedDelegation.Delegation.Targets)
}

func TestFetchUsesIdenticalArgumentsAcrossPhases(t *testing.T) {
	authority := testAuthority(3)
	svc := NewDelegationService(authority, retry.Policy{Attempts: 5, Clock: &recordingClock{}}, nil, nil)

	request := core.SigningRequest{
		Origin:     "https://abc123.ic0.app",
		SessionKey: core.SessionKey{0xAA, 0xBB},
	}

	_, err := svc.Fetch(context.Background(), 10000, request)
	require.NoError(t, err)

	require.Len(t, authority.prepareCalls, 1)
	prep := authority.prepareCalls[0]

	require.Len(t, authority.pollCalls, 4)
	for _, poll := range authority.pollCalls {
		assert.Equal(t, prep.origin, poll.origin)
		assert.Equal(t, prep.sessionKey, poll.sessionKey)
		assert.Equal(t, prep.anchor, poll.anchor)
		assert.Equal(t, authority.prepared.Expiration, poll.expiration)
	}
}

func TestFetchPrepareRejectedIsFatal(t *testing.T) {
	authority := testAuthority(0)
	authority.prepareErr = errors.New("unknown anchor")
	svc := NewDelegationService(authority, retry.Policy{Attempts: 5, Clock: &recordingClock{}}, nil, nil)

	_, err := svc.Fetch(context.Background(), 99, core.SigningRequest{Origin: "https://app.ic0.app"})

	require.ErrorIs(t, err, core.ErrPrepareRejected)
	assert.Empty(t, authority.pollCalls)
}

func TestFetchTimesOutAfterBudget(t *testing.T) {
	authority := testAuthority(100)
	clock := &recordingClock{}
	svc := NewDelegationService(authority, retry.Policy{Attempts: 5, BaseInterval: time.Second, Clock: clock}, nil, nil)

	_, err := svc.Fetch(context.Background(), 10000, core.SigningRequest{Origin: "https://app.ic0.app"})

	require.ErrorIs(t, err, core.ErrDelegationTimeout)
	assert.Len(t, authority.pollCalls, 5)
	assert.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		3 * time.Second,
		4 * time.Second,
	}, clock.delays)
}

func TestFetchPollErrorsConsumeBudget(t *testing.T) {
	authority := testAuthority(0)
	authority.pollErr = errors.New("connection refused")
	svc := NewDelegationService(authority, retry.Policy{Attempts: 5, Clock: &recordingClock{}}, nil, nil)

	_, err := svc.Fetch(context.Background(), 10000, core.SigningRequest{Origin: "https://app.ic0.app"})

	require.ErrorIs(t, err, core.ErrDelegationTimeout)
	assert.Len(t, authority.pollCalls, 5)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFetchProducesNothingBeforeReady(t *testing.T) {
	authority := testAuthority(100)
	authority.pollNotify = make(chan struct{}, 8)
	svc := NewDelegationService(authority, retry.Policy{Attempts: 5, BaseInterval: time.Second, Clock: stuckClock{}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Fetch(ctx, 10000, core.SigningRequest{Origin: "https://app.ic0.app"})
		done <- err
	}()

	// The first poll ran and the authority was not ready: the flow must stay
	// suspended rather than return early.
	<-authority.pollNotify
	select {
	case <-done:
		t.Fatal("fetch returned before the authority was ready")
	default:
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestAuthorizeConcreteScenario(t *testing.T) {
	sessionKey := core.SessionKey{0xAA, 0xBB}
	expiration := core.TimestampOf(time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC))

	authority := &scriptedAuthority{
		prepared: core.PreparedDelegation{
			UserKey:    core.UserKey{0x01, 0x02, 0x03},
			Expiration: expiration,
		},
		signed: core.SignedDelegation{
			Delegation: core.Delegation{
				Pubkey:     sessionKey,
				Expiration: expiration,
			},
			Signature: []byte{0xFE, 0xED},
		},
		readyAfter: 1,
	}
	clock := &recordingClock{}
	publisher := &recordingPublisher{}

	delegations := NewDelegationService(authority, retry.Policy{Attempts: 5, BaseInterval: time.Second, Clock: clock}, nil, nil)
	svc := NewAuthorizeService(delegations, publisher, nil)

	session := &core.DeviceSession{Anchor: 10000, DeviceKey: []byte{0x11}}
	issued, err := svc.Authorize(context.Background(), session, core.AuthorizationRequest{
		SessionKey:    sessionKey,
		RequestOrigin: "https://abc123.icp0.io",
		MaxTTL:        30 * time.Minute,
	})
	require.NoError(t, err)

	// The legacy origin is canonicalized once and pinned everywhere.
	require.Len(t, authority.prepareCalls, 1)
	assert.Equal(t, core.Origin("https://abc123.ic0.app"), authority.prepareCalls[0].origin)
	assert.Equal(t, 30*time.Minute, authority.prepareCalls[0].maxTTL)
	require.Len(t, authority.pollCalls, 2)
	for _, poll := range authority.pollCalls {
		assert.Equal(t, core.Origin("https://abc123.ic0.app"), poll.origin)
	}
	assert.Equal(t, []time.Duration{time.Second}, clock.delays)

	assert.Equal(t, core.UserKey{0x01, 0x02, 0x03}, issued.UserKey)
	assert.Equal(t, sessionKey, issued.SignedDelegation.Delegation.Pubkey)
	assert.Equal(t, expiration, issued.SignedDelegation.Delegation.Expiration)
	assert.Equal(t, []byte{0xFE, 0xED}, issued.SignedDelegation.Signature)
	assert.Nil(t, issued.SignedDelegation.Delegation.Targets)

	require.Len(t, publisher.issued, 1)
	assert.Equal(t, issuedEvent{10000, "https://abc123.ic0.app", expiration}, publisher.issued[0])
}

func TestAuthorizePublishFailureDoesNotFail(t *testing.T) {
	authority := testAuthority(0)
	publisher := &recordingPublisher{err: errors.New("broker down")}

	delegations := NewDelegationService(authority, retry.Policy{Attempts: 5, Clock: &recordingClock{}}, nil, nil)
	svc := NewAuthorizeService(delegations, publisher, nil)

	session := &core.DeviceSession{Anchor: 10000}
	issued, err := svc.Authorize(context.Background(), session, core.AuthorizationRequest{
		SessionKey:    core.SessionKey{0xAA, 0xBB},
		RequestOrigin: "https://app.example.com",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, issued.SignedDelegation.Signature)
}

func TestAuthorizeSurfacesFetchFailure(t *testing.T) {
	authority := testAuthority(0)
	authority.prepareErr = errors.New("unauthorized")
	publisher := &recordingPublisher{}

	delegations := NewDelegationService(authority, retry.Policy{Attempts: 5, Clock: &recordingClock{}}, nil, nil)
	svc := NewAuthorizeService(delegations, publisher, nil)

	_, err := svc.Authorize(context.Background(), &core.DeviceSession{Anchor: 10000}, core.AuthorizationRequest{
		RequestOrigin: "https://app.example.com",
	})

	require.ErrorIs(t, err, core.ErrPrepareRejected)
	assert.Empty(t, publisher.issued)
}
