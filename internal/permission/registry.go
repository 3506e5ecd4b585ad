package permission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/capsale/internal/ir"
)

// ErrInvalidGrant is returned by Apply for a malformed entry.
var ErrInvalidGrant = errors.New("invalid permission grant")

type grantKey struct {
	where      ir.Address
	who        ir.Address
	capability ir.Capability
}

// MemoryRegistry is an in-process capability registry.
// Grant and Revoke are idempotent.
type MemoryRegistry struct {
	mu     sync.RWMutex
	grants map[grantKey]struct{}
	logger *slog.Logger
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry(logger *slog.Logger) *MemoryRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryRegistry{
		grants: make(map[grantKey]struct{}),
		logger: logger,
	}
}

// Grant gives who the capability on where.
func (r *MemoryRegistry) Grant(where, who ir.Address, capability ir.Capability) {
	r.mu.Lock()
	r.grants[grantKey{where, who, capability}] = struct{}{}
	r.mu.Unlock()
}

// Revoke removes who's capability on where, if present.
func (r *MemoryRegistry) Revoke(where, who ir.Address, capability ir.Capability) {
	r.mu.Lock()
	delete(r.grants, grantKey{where, who, capability})
	r.mu.Unlock()
}

// Check reports whether caller holds capability on resource.
func (r *MemoryRegistry) Check(_ context.Context, caller, resource ir.Address, capability ir.Capability) bool {
	r.mu.RLock()
	_, ok := r.grants[grantKey{resource, caller, capability}]
	r.mu.RUnlock()
	return ok
}

// Apply validates every entry and then applies them in order. If any entry
// is invalid nothing is applied.
func (r *MemoryRegistry) Apply(_ context.Context, grants []ir.PermissionGrant) error {
	for i, g := range grants {
		if err := validateGrant(g); err != nil {
			return fmt.Errorf("grant %d: %w", i, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range grants {
		key := grantKey{g.Where, g.Who, g.Capability}
		if g.Op == ir.OpGrant {
			r.grants[key] = struct{}{}
		} else {
			delete(r.grants, key)
		}
		r.logger.Debug("permission applied", "change", g.String())
	}
	return nil
}

// Grants lists every held capability as OpGrant entries, sorted by
// where, who, capability.
func (r *MemoryRegistry) Grants() []ir.PermissionGrant {
	r.mu.RLock()
	out := make([]ir.PermissionGrant, 0, len(r.grants))
	for k := range r.grants {
		out = append(out, ir.PermissionGrant{Op: ir.OpGrant, Where: k.where, Who: k.who, Capability: k.capability})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Where[:], out[j].Where[:]); c != 0 {
			return c < 0
		}
		if c := bytes.Compare(out[i].Who[:], out[j].Who[:]); c != 0 {
			return c < 0
		}
		return out[i].Capability < out[j].Capability
	})
	return out
}

func validateGrant(g ir.PermissionGrant) error {
	switch {
	case g.Op != ir.OpGrant && g.Op != ir.OpRevoke:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidGrant, g.Op)
	case g.Where.IsZero():
		return fmt.Errorf("%w: zero resource", ErrInvalidGrant)
	case g.Who.IsZero():
		return fmt.Errorf("%w: zero grantee", ErrInvalidGrant)
	case g.Capability == "":
		return fmt.Errorf("%w: empty capability", ErrInvalidGrant)
	}
	return nil
}
