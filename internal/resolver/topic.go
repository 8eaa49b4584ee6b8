package resolver

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
)

// DefaultTopicPrefix starts every generated topic name.
const DefaultTopicPrefix = "LiveData"

// SchemeTopicNameResolver names topics <prefix>.<scheme>.<value><suffix>,
// the suffix coming from the rule set.
type SchemeTopicNameResolver struct {
	Prefix string
}

func (r SchemeTopicNameResolver) Resolve(_ context.Context, req TopicNameRequest) (string, error) {
	if req.ID.Scheme == "" || req.ID.Value == "" {
		return "", errors.Wrapf(exception.ErrResolveNotFound, "topic name of %s", req.ID)
	}
	prefix := r.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "." + req.ID.Scheme + "." + req.ID.Value + req.RuleSet.TopicSuffix, nil
}

func (r SchemeTopicNameResolver) ResolveAll(ctx context.Context, reqs []TopicNameRequest) map[TopicNameRequest]*string {
	return ResolveEach(ctx, r.Resolve, reqs)
}
