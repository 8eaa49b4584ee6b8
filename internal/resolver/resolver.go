package resolver

import "context"

// Resolver maps A to B.
//
// Resolve reports a failure as an error wrapping exception.ErrResolveNotFound.
// ResolveAll never fails: it returns one entry per distinct input, nil for
// the inputs that could not be resolved.
type Resolver[A comparable, B any] interface {
	Resolve(ctx context.Context, a A) (B, error)
	ResolveAll(ctx context.Context, as []A) map[A]*B
}

type (
	IDResolver                        = Resolver[IdentifierBundle, ExternalID]
	RuleSetResolver                   = Resolver[string, NormalizationRuleSet]
	TopicNameResolver                 = Resolver[TopicNameRequest, string]
	DistributionSpecificationResolver = Resolver[LiveDataSpecification, DistributionSpecification]
)

// ResolveEach derives the bulk form from single resolves.
func ResolveEach[A comparable, B any](ctx context.Context, resolve func(context.Context, A) (B, error), as []A) map[A]*B {
	result := make(map[A]*B, len(as))
	for _, a := range as {
		if _, done := result[a]; done {
			continue
		}
		b, err := resolve(ctx, a)
		if err != nil {
			result[a] = nil
			continue
		}
		result[a] = &b
	}
	return result
}

// Func adapts a single resolve function to a Resolver.
type Func[A comparable, B any] func(ctx context.Context, a A) (B, error)

func (f Func[A, B]) Resolve(ctx context.Context, a A) (B, error) {
	return f(ctx, a)
}

func (f Func[A, B]) ResolveAll(ctx context.Context, as []A) map[A]*B {
	return ResolveEach(ctx, f.Resolve, as)
}

// resolveOne runs a single input through a bulk resolve.
func resolveOne[A comparable, B any](ctx context.Context, a A, all func(context.Context, []A) map[A]*B, notFound func(A) error) (B, error) {
	if b := all(ctx, []A{a})[a]; b != nil {
		return *b, nil
	}
	var zero B
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, notFound(a)
}
