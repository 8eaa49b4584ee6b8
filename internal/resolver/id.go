package resolver

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/logs"
)

// DefaultSchemePreference orders schemes from most to least preferred.
var DefaultSchemePreference = []string{SchemeInternal, SchemeBloomberg, SchemeTicker, SchemeISIN, SchemeCUSIP, SchemeSEDOL}

// SchemePreferenceIDResolver picks the bundle identifier of the most
// preferred scheme. With no preference it picks the first identifier.
type SchemePreferenceIDResolver struct {
	Schemes []string
}

func (r SchemePreferenceIDResolver) Resolve(_ context.Context, bundle IdentifierBundle) (ExternalID, error) {
	ids := bundle.IDs()
	if len(ids) == 0 {
		return ExternalID{}, errors.Wrap(exception.ErrResolveNotFound, "empty bundle")
	}
	if len(r.Schemes) == 0 {
		return ids[0], nil
	}
	for _, scheme := range r.Schemes {
		for _, id := range ids {
			if id.Scheme == scheme {
				return id, nil
			}
		}
	}
	return ExternalID{}, errors.Wrapf(exception.ErrResolveNotFound, "no preferred scheme in %s", bundle)
}

func (r SchemePreferenceIDResolver) ResolveAll(ctx context.Context, bundles []IdentifierBundle) map[IdentifierBundle]*ExternalID {
	return ResolveEach(ctx, r.Resolve, bundles)
}

// IDStore maps external identifiers to canonical ones.
type IDStore interface {
	// Canonical returns the canonical identifier of every known input.
	Canonical(ctx context.Context, ids []ExternalID) (map[ExternalID]ExternalID, error)
}

// StoreIDResolver resolves bundles through an IDStore with one lookup per
// bulk call. A bundle resolves to the canonical id of its first known
// identifier.
type StoreIDResolver struct {
	store IDStore
}

// NewStoreIDResolver returns a resolver over store.
func NewStoreIDResolver(store IDStore) (*StoreIDResolver, error) {
	if store == nil {
		return nil, exception.ErrResolveNilDelegate
	}
	return &StoreIDResolver{store: store}, nil
}

func (r *StoreIDResolver) Resolve(ctx context.Context, bundle IdentifierBundle) (ExternalID, error) {
	return resolveOne(ctx, bundle, r.ResolveAll, func(b IdentifierBundle) error {
		return errors.Wrapf(exception.ErrResolveNotFound, "canonical id of %s", b)
	})
}

func (r *StoreIDResolver) ResolveAll(ctx context.Context, bundles []IdentifierBundle) map[IdentifierBundle]*ExternalID {
	result := make(map[IdentifierBundle]*ExternalID, len(bundles))
	var lookup []ExternalID
	seen := make(map[ExternalID]struct{})
	for _, b := range bundles {
		result[b] = nil
		for _, id := range b.IDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			lookup = append(lookup, id)
		}
	}
	if len(lookup) == 0 {
		return result
	}

	canonical, err := r.store.Canonical(ctx, lookup)
	if err != nil {
		logs.Errorf("lookup canonical ids, count: %d, err: %+v", len(lookup), err)
		return result
	}
	for b := range result {
		for _, id := range b.IDs() {
			if c, ok := canonical[id]; ok {
				c := c
				result[b] = &c
				break
			}
		}
	}
	return result
}
