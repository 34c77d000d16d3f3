package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/internal/origins"
	"github.com/keyward/vouch/ports"
	"github.com/keyward/vouch/service"
)

// Handlers contains HTTP handlers for the provider endpoints
type Handlers struct {
	anchors   *service.AnchorService
	authorize *service.AuthorizeService
	authority ports.SigningAuthority
	tracker   *origins.Tracker
}

// NewHandlers creates new provider handlers
func NewHandlers(anchors *service.AnchorService, authorize *service.AuthorizeService, authority ports.SigningAuthority, tracker *origins.Tracker) *Handlers {
	return &Handlers{
		anchors:   anchors,
		authorize: authorize,
		authority: authority,
		tracker:   tracker,
	}
}

// devicePayload is the wire form of a ledger device
type devicePayload struct {
	Pubkey       hexutil.Bytes `json:"pubkey" binding:"required"`
	Alias        string        `json:"alias"`
	CredentialID hexutil.Bytes `json:"credential_id,omitempty"`
	Purpose      string        `json:"purpose" binding:"required,oneof=authentication recovery"`
	KeyType      string        `json:"key_type" binding:"required,oneof=unknown platform cross_platform seed_phrase browser_storage_key"`
	Protected    bool          `json:"protected"`
	Origin       string        `json:"origin,omitempty"`
	LastUsageNS  uint64        `json:"last_usage_ns,omitempty"`
}

func (p devicePayload) toDevice() core.Device {
	return core.Device{
		Pubkey:       p.Pubkey,
		Alias:        p.Alias,
		CredentialID: p.CredentialID,
		Purpose:      core.DevicePurpose(p.Purpose),
		KeyType:      core.DeviceKeyType(p.KeyType),
		Protected:    p.Protected,
		Origin:       core.Origin(p.Origin),
		LastUsage:    core.Timestamp(p.LastUsageNS),
	}
}

func devicePayloadFrom(d core.Device) devicePayload {
	return devicePayload{
		Pubkey:       hexutil.Bytes(d.Pubkey),
		Alias:        d.Alias,
		CredentialID: hexutil.Bytes(d.CredentialID),
		Purpose:      string(d.Purpose),
		KeyType:      string(d.KeyType),
		Protected:    d.Protected,
		Origin:       string(d.Origin),
		LastUsageNS:  uint64(d.LastUsage),
	}
}

// Register handles anchor registration
func (h *Handlers) Register(c *gin.Context) {
	var req devicePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	anchor, token, err := h.anchors.Register(c.Request.Context(), req.toDevice())
	if err != nil {
		status, msg := anchorErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"anchor":        uint64(anchor.Number),
		"session_token": token,
		"token_type":    "Bearer",
	})
}

// Login opens a session for an already registered device
func (h *Handlers) Login(c *gin.Context) {
	number, ok := anchorParam(c)
	if !ok {
		return
	}

	var req struct {
		DeviceKey hexutil.Bytes `json:"device_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, err := h.anchors.Login(c.Request.Context(), number, req.DeviceKey)
	if err != nil {
		status, msg := anchorErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_token": token,
		"token_type":    "Bearer",
	})
}

// Authorize runs one delegation exchange for the authenticated device
func (h *Handlers) Authorize(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	var req struct {
		SessionKey       hexutil.Bytes `json:"session_key" binding:"required"`
		RequestOrigin    string        `json:"request_origin" binding:"required"`
		DerivationOrigin string        `json:"derivation_origin,omitempty"`
		MaxTTLNS         uint64        `json:"max_ttl_ns,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	issued, err := h.authorize.Authorize(c.Request.Context(), session, core.AuthorizationRequest{
		SessionKey:       core.SessionKey(req.SessionKey),
		RequestOrigin:    core.Origin(req.RequestOrigin),
		DerivationOrigin: core.Origin(req.DerivationOrigin),
		MaxTTL:           time.Duration(req.MaxTTLNS),
	})
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Authorization failed"

		// Map specific errors to appropriate status codes
		switch {
		case errors.Is(err, core.ErrPrepareRejected):
			statusCode = http.StatusBadRequest
			errorMsg = "Signing authority rejected the delegation"
		case errors.Is(err, core.ErrDelegationTimeout):
			statusCode = http.StatusGatewayTimeout
			errorMsg = "Signed delegation was not ready in time"
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_key": hexutil.Bytes(issued.UserKey),
		"delegation": gin.H{
			"pubkey":        hexutil.Bytes(issued.SignedDelegation.Delegation.Pubkey),
			"expiration_ns": uint64(issued.SignedDelegation.Delegation.Expiration),
		},
		"signature": hexutil.Bytes(issued.SignedDelegation.Signature),
	})
}

// PrepareDelegation serves phase one of the authority API
func (h *Handlers) PrepareDelegation(c *gin.Context) {
	var req struct {
		Anchor     uint64        `json:"anchor" binding:"required"`
		Origin     string        `json:"origin" binding:"required"`
		SessionKey hexutil.Bytes `json:"session_key" binding:"required"`
		MaxTTLNS   uint64        `json:"max_ttl_ns"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	prepared, err := h.authority.PrepareDelegation(
		c.Request.Context(),
		core.AnchorNumber(req.Anchor),
		core.Origin(req.Origin),
		core.SessionKey(req.SessionKey),
		time.Duration(req.MaxTTLNS),
	)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, core.ErrUnknownAnchor) {
			statusCode = http.StatusNotFound
		}
		c.JSON(statusCode, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_key":      hexutil.Bytes(prepared.UserKey),
		"expiration_ns": uint64(prepared.Expiration),
	})
}

// GetDelegation serves phase two of the authority API
func (h *Handlers) GetDelegation(c *gin.Context) {
	var req struct {
		Anchor       uint64        `json:"anchor" binding:"required"`
		Origin       string        `json:"origin" binding:"required"`
		SessionKey   hexutil.Bytes `json:"session_key" binding:"required"`
		ExpirationNS uint64        `json:"expiration_ns" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	signed, ready, err := h.authority.GetDelegation(
		c.Request.Context(),
		core.AnchorNumber(req.Anchor),
		core.Origin(req.Origin),
		core.SessionKey(req.SessionKey),
		core.Timestamp(req.ExpirationNS),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Certification still in flight
	if !ready {
		c.Status(http.StatusAccepted)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pubkey":        hexutil.Bytes(signed.Delegation.Pubkey),
		"expiration_ns": uint64(signed.Delegation.Expiration),
		"signature":     hexutil.Bytes(signed.Signature),
	})
}

// Info returns the anchor's device ledger
func (h *Handlers) Info(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}
	number, ok := anchorParam(c)
	if !ok {
		return
	}

	anchor, err := h.anchors.Info(c.Request.Context(), session, number)
	if err != nil {
		status, msg := anchorErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	devices := make([]devicePayload, 0, len(anchor.Devices))
	for _, d := range anchor.Devices {
		devices = append(devices, devicePayloadFrom(d))
	}

	c.JSON(http.StatusOK, gin.H{
		"anchor":  uint64(anchor.Number),
		"devices": devices,
	})
}

// AddDevice registers a new device on the session's anchor
func (h *Handlers) AddDevice(c *gin.Context) {
	session, ok := h.scopedSession(c)
	if !ok {
		return
	}

	var req devicePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.anchors.AddDevice(c.Request.Context(), session, req.toDevice()); err != nil {
		status, msg := anchorErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Device added"})
}

// UpdateDevice replaces a device on the session's anchor
func (h *Handlers) UpdateDevice(c *gin.Context) {
	session, ok := h.scopedSession(c)
	if !ok {
		return
	}

	var req devicePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.anchors.UpdateDevice(c.Request.Context(), session, req.toDevice()); err != nil {
		status, msg := anchorErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device updated"})
}

// RemoveDevice unregisters a device from the session's anchor
func (h *Handlers) RemoveDevice(c *gin.Context) {
	session, ok := h.scopedSession(c)
	if !ok {
		return
	}

	var req struct {
		Pubkey hexutil.Bytes `json:"pubkey" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.anchors.RemoveDevice(c.Request.Context(), session, req.Pubkey); err != nil {
		status, msg := anchorErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device removed"})
}

// Stats reports the most recently seen delegation origins
func (h *Handlers) Stats(c *gin.Context) {
	latest := []core.Origin{}
	if h.tracker != nil {
		latest = h.tracker.Origins()
	}

	c.JSON(http.StatusOK, gin.H{
		"latest_delegation_origins": latest,
	})
}

// Healthz reports process liveness
func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// scopedSession returns the middleware session after checking that it owns
// the anchor named in the path.
func (h *Handlers) scopedSession(c *gin.Context) (*core.DeviceSession, bool) {
	session := sessionFromContext(c)
	if session == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return nil, false
	}
	number, ok := anchorParam(c)
	if !ok {
		return nil, false
	}
	if number != session.Anchor {
		c.JSON(http.StatusForbidden, gin.H{"error": "Session does not own this anchor"})
		return nil, false
	}
	return session, true
}

func anchorParam(c *gin.Context) (core.AnchorNumber, bool) {
	number, err := strconv.ParseUint(c.Param("anchor"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid anchor number"})
		return 0, false
	}
	return core.AnchorNumber(number), true
}

// anchorErrorStatus maps ledger errors onto HTTP statuses
func anchorErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many registrations"
	case errors.Is(err, core.ErrUnknownAnchor):
		return http.StatusNotFound, "Unknown anchor"
	case errors.Is(err, core.ErrDeviceNotFound):
		return http.StatusNotFound, "Device not found"
	case errors.Is(err, core.ErrDeviceExists):
		return http.StatusConflict, "Device already registered"
	case errors.Is(err, core.ErrDeviceProtected):
		return http.StatusForbidden, "Device is protected"
	case errors.Is(err, core.ErrInvalidSession):
		return http.StatusForbidden, "Session does not own this anchor"
	case errors.Is(err, core.ErrTooManyDevices),
		errors.Is(err, core.ErrDeviceBudgetExceeded),
		errors.Is(err, core.ErrFieldTooLong),
		errors.Is(err, core.ErrDuplicateRecoveryPhrase),
		errors.Is(err, core.ErrInvalidProtection):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
