package registry

import (
	"context"
	"sync"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/ports"
)

// FirstAnchorNumber is where the ledger starts handing out anchors.
const FirstAnchorNumber core.AnchorNumber = 10000

// Memory is an in-memory implementation of the AnchorRegistry interface
type Memory struct {
	anchors map[core.AnchorNumber]core.Anchor
	next    core.AnchorNumber
	mu      sync.RWMutex
}

// NewMemory creates a new in-memory anchor registry
func NewMemory() ports.AnchorRegistry {
	return &Memory{
		anchors: make(map[core.AnchorNumber]core.Anchor),
		next:    FirstAnchorNumber,
	}
}

// Register allocates the next anchor number and stores the first device
func (r *Memory) Register(ctx context.Context, device core.Device) (core.Anchor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	anchor := core.Anchor{Number: r.next}
	if err := anchor.AddDevice(device); err != nil {
		return core.Anchor{}, err
	}

	r.anchors[anchor.Number] = cloneAnchor(anchor)
	r.next++

	return anchor, nil
}

// Anchor loads an anchor by number
func (r *Memory) Anchor(ctx context.Context, number core.AnchorNumber) (core.Anchor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	anchor, exists := r.anchors[number]
	if !exists {
		return core.Anchor{}, core.ErrUnknownAnchor
	}

	return cloneAnchor(anchor), nil
}

// Save overwrites the device list of an already registered anchor
func (r *Memory) Save(ctx context.Context, anchor core.Anchor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.anchors[anchor.Number]; !exists {
		return core.ErrUnknownAnchor
	}

	r.anchors[anchor.Number] = cloneAnchor(anchor)

	return nil
}

func cloneAnchor(anchor core.Anchor) core.Anchor {
	devices := make([]core.Device, len(anchor.Devices))
	copy(devices, anchor.Devices)
	return core.Anchor{Number: anchor.Number, Devices: devices}
}
