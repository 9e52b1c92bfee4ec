package state

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotOwner     = errors.New("registry: caller does not own policy")
	ErrAlreadyOwned = errors.New("registry: policy already minted")
)

// OwnershipRegistry tracks the transferable claim on each policy's payout.
// Settlement pays whoever holds the policy at settle time, not the buyer.
type OwnershipRegistry struct {
	owners map[uuid.UUID]uuid.UUID // policy id -> current owner
}

func NewOwnershipRegistry() *OwnershipRegistry {
	return &OwnershipRegistry{owners: make(map[uuid.UUID]uuid.UUID)}
}

// Mint assigns initial ownership at issuance.
func (r *OwnershipRegistry) Mint(policyID, owner uuid.UUID) error {
	if _, ok := r.owners[policyID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyOwned, policyID)
	}
	r.owners[policyID] = owner
	return nil
}

// OwnerOf returns the current holder.
func (r *OwnershipRegistry) OwnerOf(policyID uuid.UUID) (uuid.UUID, bool) {
	owner, ok := r.owners[policyID]
	return owner, ok
}

// Transfer moves the policy from caller to recipient. The caller must be
// the current owner.
func (r *OwnershipRegistry) Transfer(policyID, caller, recipient uuid.UUID) error {
	owner, ok := r.owners[policyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, policyID)
	}
	if owner != caller {
		return fmt.Errorf("%w: %s holds %s", ErrNotOwner, owner, policyID)
	}
	r.owners[policyID] = recipient
	return nil
}

// Snapshot returns a serializable owner map.
func (r *OwnershipRegistry) Snapshot() map[uuid.UUID]uuid.UUID {
	out := make(map[uuid.UUID]uuid.UUID, len(r.owners))
	for k, v := range r.owners {
		out[k] = v
	}
	return out
}

// RestoreRegistry rebuilds a registry from a snapshot map.
func RestoreRegistry(owners map[uuid.UUID]uuid.UUID) *OwnershipRegistry {
	r := NewOwnershipRegistry()
	for k, v := range owners {
		r.owners[k] = v
	}
	return r
}
