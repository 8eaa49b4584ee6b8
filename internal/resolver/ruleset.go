package resolver

import (
	"context"
	"sort"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
)

// Known rule sets.
var (
	StandardNormalization = NormalizationRuleSet{ID: "OpenGamma", TopicSuffix: ""}
	NoNormalization       = NormalizationRuleSet{ID: "No Normalization", TopicSuffix: ".Raw"}
)

// RegistryRuleSetResolver resolves rule set ids against registered sets.
type RegistryRuleSetResolver struct {
	mu   sync.RWMutex
	sets map[string]NormalizationRuleSet
}

// NewRegistryRuleSetResolver registers sets; with none it registers the
// standard and no normalization sets.
func NewRegistryRuleSetResolver(sets ...NormalizationRuleSet) *RegistryRuleSetResolver {
	if len(sets) == 0 {
		sets = []NormalizationRuleSet{StandardNormalization, NoNormalization}
	}
	r := &RegistryRuleSetResolver{sets: make(map[string]NormalizationRuleSet, len(sets))}
	for _, set := range sets {
		r.sets[set.ID] = set
	}
	return r
}

// Register adds or replaces a rule set.
func (r *RegistryRuleSetResolver) Register(set NormalizationRuleSet) {
	r.mu.Lock()
	r.sets[set.ID] = set
	r.mu.Unlock()
}

// IDs returns the registered ids in sorted order.
func (r *RegistryRuleSetResolver) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sets))
	for id := range r.sets {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *RegistryRuleSetResolver) Resolve(_ context.Context, id string) (NormalizationRuleSet, error) {
	r.mu.RLock()
	set, ok := r.sets[id]
	r.mu.RUnlock()
	if !ok {
		return NormalizationRuleSet{}, errors.Wrapf(exception.ErrResolveNotFound, "rule set: %q", id)
	}
	return set, nil
}

func (r *RegistryRuleSetResolver) ResolveAll(ctx context.Context, ids []string) map[string]*NormalizationRuleSet {
	return ResolveEach(ctx, r.Resolve, ids)
}
