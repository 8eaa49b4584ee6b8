package resolver

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/logs"
)

// Default composes the identifier, rule set and topic name resolvers while
// keeping calls to them few: one bulk identifier call, one rule set resolve
// per specification, one bulk topic name call over deduplicated requests.
type Default struct {
	ids    IDResolver
	rules  RuleSetResolver
	topics TopicNameResolver
}

// NewDefault composes the three collaborators.
func NewDefault(ids IDResolver, rules RuleSetResolver, topics TopicNameResolver) (*Default, error) {
	if ids == nil || rules == nil || topics == nil {
		return nil, exception.ErrResolveNilDelegate
	}
	return &Default{ids: ids, rules: rules, topics: topics}, nil
}

func (r *Default) Resolve(ctx context.Context, spec LiveDataSpecification) (DistributionSpecification, error) {
	return resolveOne(ctx, spec, r.ResolveAll, specNotFound)
}

func (r *Default) ResolveAll(ctx context.Context, specs []LiveDataSpecification) map[LiveDataSpecification]*DistributionSpecification {
	result := make(map[LiveDataSpecification]*DistributionSpecification, len(specs))
	if len(specs) == 0 {
		return result
	}

	bundles := make([]IdentifierBundle, 0, len(specs))
	seenBundle := make(map[IdentifierBundle]struct{}, len(specs))
	for _, spec := range specs {
		if _, ok := seenBundle[spec.Bundle]; ok {
			continue
		}
		seenBundle[spec.Bundle] = struct{}{}
		bundles = append(bundles, spec.Bundle)
	}
	ids := r.ids.ResolveAll(ctx, bundles)

	requests := make(map[LiveDataSpecification]TopicNameRequest, len(specs))
	var distinct []TopicNameRequest
	seenRequest := make(map[TopicNameRequest]struct{}, len(specs))
	for _, spec := range specs {
		if _, done := result[spec]; done {
			continue
		}
		result[spec] = nil

		// rule sets are resolved one by one
		ruleSet, err := r.rules.Resolve(ctx, spec.RuleSetID)
		if err != nil {
			logs.Debugf("rule set %q of %s not resolved, err: %+v", spec.RuleSetID, spec, err)
			continue
		}
		id := ids[spec.Bundle]
		if id == nil {
			continue
		}

		req := TopicNameRequest{ID: *id, RuleSet: ruleSet}
		requests[spec] = req
		if _, ok := seenRequest[req]; !ok {
			seenRequest[req] = struct{}{}
			distinct = append(distinct, req)
		}
	}
	if len(distinct) == 0 {
		return result
	}

	topics := r.topics.ResolveAll(ctx, distinct)
	for spec, req := range requests {
		topic := topics[req]
		if topic == nil {
			continue
		}
		result[spec] = &DistributionSpecification{
			ID:        req.ID,
			RuleSet:   req.RuleSet,
			TopicName: *topic,
		}
	}
	return result
}

func specNotFound(spec LiveDataSpecification) error {
	return errors.Wrapf(exception.ErrResolveNotFound, "distribution specification of %s", spec)
}

// Naive resolves every request to its first identifier with no
// normalization, publishing on a topic named after that identifier.
type Naive struct{}

func (Naive) Resolve(_ context.Context, spec LiveDataSpecification) (DistributionSpecification, error) {
	ids := spec.Bundle.IDs()
	if len(ids) == 0 {
		return DistributionSpecification{}, specNotFound(spec)
	}
	return DistributionSpecification{
		ID:        ids[0],
		RuleSet:   NoNormalization,
		TopicName: ids[0].Value,
	}, nil
}

func (n Naive) ResolveAll(ctx context.Context, specs []LiveDataSpecification) map[LiveDataSpecification]*DistributionSpecification {
	return ResolveEach(ctx, n.Resolve, specs)
}

// Fixed answers from a static table.
type Fixed struct {
	table map[LiveDataSpecification]DistributionSpecification
}

// NewFixed copies table.
func NewFixed(table map[LiveDataSpecification]DistributionSpecification) *Fixed {
	cp := make(map[LiveDataSpecification]DistributionSpecification, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &Fixed{table: cp}
}

func (f *Fixed) Resolve(_ context.Context, spec LiveDataSpecification) (DistributionSpecification, error) {
	if d, ok := f.table[spec]; ok {
		return d, nil
	}
	return DistributionSpecification{}, specNotFound(spec)
}

func (f *Fixed) ResolveAll(ctx context.Context, specs []LiveDataSpecification) map[LiveDataSpecification]*DistributionSpecification {
	return ResolveEach(ctx, f.Resolve, specs)
}
