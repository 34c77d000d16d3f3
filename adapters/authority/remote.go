package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/keyward/vouch/core"
)

// DefaultRequestTimeout bounds individual calls to a remote authority.
const DefaultRequestTimeout = 10 * time.Second

// Remote is a SigningAuthority client for a delegation authority hosted by
// another vouchd instance.
type Remote struct {
	baseURL string
	client  *http.Client
}

// NewRemote creates a new remote signing authority client
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type prepareRequest struct {
	Anchor     uint64        `json:"anchor"`
	Origin     string        `json:"origin"`
	SessionKey hexutil.Bytes `json:"session_key"`
	MaxTTLNS   uint64        `json:"max_ttl_ns,omitempty"`
}

type prepareResponse struct {
	UserKey      hexutil.Bytes `json:"user_key"`
	ExpirationNS uint64        `json:"expiration_ns"`
}

type getRequest struct {
	Anchor       uint64        `json:"anchor"`
	Origin       string        `json:"origin"`
	SessionKey   hexutil.Bytes `json:"session_key"`
	ExpirationNS uint64        `json:"expiration_ns"`
}

type getResponse struct {
	Pubkey       hexutil.Bytes `json:"pubkey"`
	ExpirationNS uint64        `json:"expiration_ns"`
	Signature    hexutil.Bytes `json:"signature"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// PrepareDelegation asks the remote authority to schedule a signature
func (r *Remote) PrepareDelegation(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, sessionKey core.SessionKey, maxTTL time.Duration) (core.PreparedDelegation, error) {
	payload := prepareRequest{
		Anchor:     uint64(anchor),
		Origin:     string(origin),
		SessionKey: hexutil.Bytes(sessionKey),
	}
	if maxTTL > 0 {
		payload.MaxTTLNS = uint64(maxTTL.Nanoseconds())
	}

	var out prepareResponse
	status, err := r.postJSON(ctx, "/v1/delegation/prepare", payload, &out)
	if err != nil {
		return core.PreparedDelegation{}, err
	}
	if status != http.StatusOK {
		return core.PreparedDelegation{}, fmt.Errorf("prepare returned status %d", status)
	}

	return core.PreparedDelegation{
		UserKey:    core.UserKey(out.UserKey),
		Expiration: core.Timestamp(out.ExpirationNS),
	}, nil
}

// GetDelegation polls the remote authority for the certified delegation
func (r *Remote) GetDelegation(ctx context.Context, anchor core.AnchorNumber, origin core.Origin, sessionKey core.SessionKey, expiration core.Timestamp) (core.SignedDelegation, bool, error) {
	payload := getRequest{
		Anchor:       uint64(anchor),
		Origin:       string(origin),
		SessionKey:   hexutil.Bytes(sessionKey),
		ExpirationNS: uint64(expiration),
	}

	var out getResponse
	status, err := r.postJSON(ctx, "/v1/delegation/get", payload, &out)
	if err != nil {
		return core.SignedDelegation{}, false, err
	}

	switch status {
	case http.StatusOK:
		signed := core.SignedDelegation{
			Delegation: core.Delegation{
				Pubkey:     core.SessionKey(out.Pubkey),
				Expiration: core.Timestamp(out.ExpirationNS),
			},
			Signature: out.Signature,
		}
		return signed, true, nil
	case http.StatusAccepted:
		// Certification still in flight
		return core.SignedDelegation{}, false, nil
	default:
		return core.SignedDelegation{}, false, fmt.Errorf("get returned status %d", status)
	}
}

// postJSON sends one request and decodes the body into out on 200 responses.
// Accepted responses pass through, anything else folds the server's error
// message into the returned error.
func (r *Remote) postJSON(ctx context.Context, path string, in, out any) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to reach signing authority: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return resp.StatusCode, nil
	case http.StatusAccepted:
		return resp.StatusCode, nil
	default:
		var remote errorResponse
		if json.Unmarshal(data, &remote) == nil && remote.Error != "" {
			return resp.StatusCode, fmt.Errorf("signing authority refused: %s", remote.Error)
		}
		return resp.StatusCode, fmt.Errorf("signing authority returned status %d", resp.StatusCode)
	}
}
