package resolver

import (
	"context"
	"fmt"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/obs"
	"github.com/yanun0323/livedata/pkg/cache"
	"github.com/yanun0323/livedata/pkg/exception"
	"golang.org/x/sync/singleflight"
)

// CachingOption configures a Caching resolver.
type CachingOption[A comparable] struct {
	// Name labels cache metrics.
	Name string
	// KeyFn renders inputs for collapsing concurrent misses. fmt.Sprint
	// is used when nil.
	KeyFn   func(A) string
	Metrics *obs.Metrics
}

// Caching decorates any resolver with a cache. Failures are cached as nil
// like successes; only inputs missing from the cache reach the delegate.
type Caching[A comparable, B any] struct {
	delegate Resolver[A, B]
	cache    cache.Cache[A, *B]
	opt      CachingOption[A]
	group    singleflight.Group
}

// NewCaching wraps delegate with c.
func NewCaching[A comparable, B any](delegate Resolver[A, B], c cache.Cache[A, *B], opt ...CachingOption[A]) (*Caching[A, B], error) {
	if delegate == nil {
		return nil, exception.ErrResolveNilDelegate
	}
	if c == nil {
		return nil, exception.ErrResolveNilCache
	}

	r := &Caching[A, B]{delegate: delegate, cache: c}
	if len(opt) > 0 {
		r.opt = opt[0]
	}
	if r.opt.KeyFn == nil {
		r.opt.KeyFn = func(a A) string { return fmt.Sprint(a) }
	}
	if r.opt.Name == "" {
		r.opt.Name = "resolver"
	}
	return r, nil
}

func (r *Caching[A, B]) Resolve(ctx context.Context, a A) (B, error) {
	var zero B
	if b, ok := r.lookup(ctx, a); ok {
		if b == nil {
			return zero, r.notFound(a)
		}
		return *b, nil
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	// The flight ignores cancellation; each joiner waits on its own ctx.
	flight := context.WithoutCancel(ctx)
	ch := r.group.DoChan(r.opt.KeyFn(a), func() (interface{}, error) {
		if b, ok := r.cache.Get(flight, a); ok {
			return b, nil
		}
		b, err := r.delegate.Resolve(flight, a)
		if err != nil {
			r.cache.Put(flight, a, nil)
			return (*B)(nil), nil
		}
		r.cache.Put(flight, a, &b)
		return &b, nil
	})

	var v interface{}
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v = res.Val
	}

	b := v.(*B)
	if b == nil {
		return zero, r.notFound(a)
	}
	return *b, nil
}

func (r *Caching[A, B]) ResolveAll(ctx context.Context, as []A) map[A]*B {
	result := make(map[A]*B, len(as))
	var misses []A
	for _, a := range as {
		if _, seen := result[a]; seen {
			continue
		}
		b, ok := r.lookup(ctx, a)
		if ok {
			result[a] = clone(b)
			continue
		}
		result[a] = nil
		misses = append(misses, a)
	}
	if len(misses) == 0 {
		return result
	}

	fetched := r.delegate.ResolveAll(ctx, misses)
	canceled := ctx.Err() != nil
	for _, a := range misses {
		b := fetched[a]
		result[a] = clone(b)
		if b == nil && canceled {
			continue
		}
		r.cache.Put(ctx, a, clone(b))
	}
	return result
}

func (r *Caching[A, B]) lookup(ctx context.Context, a A) (*B, bool) {
	b, ok := r.cache.Get(ctx, a)
	r.opt.Metrics.ObserveCache(r.opt.Name, ok)
	return b, ok
}

func (r *Caching[A, B]) notFound(a A) error {
	return errors.Wrapf(exception.ErrResolveNotFound, "%s: %s", r.opt.Name, r.opt.KeyFn(a))
}

func clone[B any](b *B) *B {
	if b == nil {
		return nil
	}
	cp := *b
	return &cp
}
