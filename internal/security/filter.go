package security

import (
	"errors"
	"fmt"
	"log"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// ErrInconsistent is reported when a result set contains a record the
// filter cannot vouch for. The whole set is withheld.
var ErrInconsistent = errors.New("inconsistent result set")

// Filter decides visibility from the policy lattice.
type Filter struct {
	lattice map[types.SecurityLevel]map[types.SecurityLevel]bool
}

// NewFilter builds a filter from a validated policy.
func NewFilter(policy *config.Policy) (*Filter, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: policy is nil", config.ErrConfigValidation)
	}
	lattice := make(map[types.SecurityLevel]map[types.SecurityLevel]bool, len(policy.Lattice))
	for _, caller := range types.AllSecurityLevels {
		visible, ok := policy.Lattice[caller]
		if !ok {
			return nil, fmt.Errorf("%w: lattice missing caller level %s", config.ErrConfigValidation, caller)
		}
		row := make(map[types.SecurityLevel]bool, len(visible))
		for _, lvl := range visible {
			row[lvl] = true
		}
		lattice[caller] = row
	}
	return &Filter{lattice: lattice}, nil
}

// VisibleLevels returns the record levels a caller may observe, in
// AllSecurityLevels order.
func (f *Filter) VisibleLevels(caller types.MemoryContext) []types.SecurityLevel {
	row := f.lattice[caller.SecurityLevel]
	var out []types.SecurityLevel
	for _, lvl := range types.AllSecurityLevels {
		if row[lvl] {
			out = append(out, lvl)
		}
	}
	return out
}

// AllowedScopes returns the scope keys a caller may read. Levels whose scope
// cannot be formed from the caller's IDs are skipped. An invalid caller, or
// one without channel identity, gets no scopes.
func (f *Filter) AllowedScopes(caller types.MemoryContext) []string {
	if !caller.SecurityLevel.IsValid() || caller.ChannelID == "" {
		return nil
	}
	var scopes []string
	for _, lvl := range f.VisibleLevels(caller) {
		if (lvl == types.SecurityPrivateChannel || lvl == types.SecurityPublicChannel) && caller.ServerID == "" {
			continue
		}
		scopes = append(scopes, types.ScopeKeyFor(lvl, caller.ServerID, caller.ChannelID))
	}
	return scopes
}

// Allows reports whether a single record is visible to caller.
func (f *Filter) Allows(record *types.MemoryRecord, caller types.MemoryContext) bool {
	return f.check([]*types.MemoryRecord{record}, caller) == nil
}

// Apply returns the records visible to caller. If any record is not, or its
// stored scope disagrees with its own context, nothing is returned.
func (f *Filter) Apply(records []*types.MemoryRecord, caller types.MemoryContext) []*types.MemoryRecord {
	if len(records) == 0 {
		return nil
	}
	if err := f.check(records, caller); err != nil {
		log.Printf("security: withholding %d results: %v", len(records), err)
		return nil
	}
	return records
}

func (f *Filter) check(records []*types.MemoryRecord, caller types.MemoryContext) error {
	allowed := make(map[string]bool)
	for _, scope := range f.AllowedScopes(caller) {
		allowed[scope] = true
	}
	if len(allowed) == 0 {
		return fmt.Errorf("%w: caller level %q grants no scopes", ErrInconsistent, caller.SecurityLevel)
	}
	visible := f.lattice[caller.SecurityLevel]
	for _, r := range records {
		if r == nil {
			return fmt.Errorf("%w: nil record", ErrInconsistent)
		}
		if !r.SecurityLevel.IsValid() {
			return fmt.Errorf("%w: record %s has unknown level %q", ErrInconsistent, r.ID, r.SecurityLevel)
		}
		if r.ScopeKey != types.ScopeKeyFor(r.SecurityLevel, r.ServerID, r.ChannelID) {
			return fmt.Errorf("%w: record %s scope %q does not match its context", ErrInconsistent, r.ID, r.ScopeKey)
		}
		if !visible[r.SecurityLevel] || !allowed[r.ScopeKey] {
			return fmt.Errorf("%w: record %s (%s) is not visible to %s", ErrInconsistent, r.ID, r.ScopeKey, caller.SecurityLevel)
		}
	}
	return nil
}
