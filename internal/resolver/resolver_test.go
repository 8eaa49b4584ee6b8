package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/cache"
	"github.com/yanun0323/livedata/pkg/exception"
)

var (
	aaplTicker = NewExternalID(SchemeTicker, "AAPL")
	aaplISIN   = NewExternalID(SchemeISIN, "US0378331005")
	msftTicker = NewExternalID(SchemeTicker, "MSFT")
	unknownID  = NewExternalID("UNKNOWN", "X")
)

type countingIDs struct {
	inner    IDResolver
	single   atomic.Int32
	bulk     atomic.Int32
	bulkSize atomic.Int32
}

func (c *countingIDs) Resolve(ctx context.Context, b IdentifierBundle) (ExternalID, error) {
	c.single.Add(1)
	return c.inner.Resolve(ctx, b)
}

func (c *countingIDs) ResolveAll(ctx context.Context, bs []IdentifierBundle) map[IdentifierBundle]*ExternalID {
	c.bulk.Add(1)
	c.bulkSize.Add(int32(len(bs)))
	return c.inner.ResolveAll(ctx, bs)
}

type countingRules struct {
	inner  RuleSetResolver
	single atomic.Int32
}

func (c *countingRules) Resolve(ctx context.Context, id string) (NormalizationRuleSet, error) {
	c.single.Add(1)
	return c.inner.Resolve(ctx, id)
}

func (c *countingRules) ResolveAll(ctx context.Context, ids []string) map[string]*NormalizationRuleSet {
	return c.inner.ResolveAll(ctx, ids)
}

type countingTopics struct {
	inner    TopicNameResolver
	bulk     atomic.Int32
	requests []TopicNameRequest
	mu       sync.Mutex
}

func (c *countingTopics) Resolve(ctx context.Context, req TopicNameRequest) (string, error) {
	return c.inner.Resolve(ctx, req)
}

func (c *countingTopics) ResolveAll(ctx context.Context, reqs []TopicNameRequest) map[TopicNameRequest]*string {
	c.bulk.Add(1)
	c.mu.Lock()
	c.requests = append(c.requests, reqs...)
	c.mu.Unlock()
	return c.inner.ResolveAll(ctx, reqs)
}

func newCountingDefault(t *testing.T) (*Default, *countingIDs, *countingRules, *countingTopics) {
	t.Helper()
	ids := &countingIDs{inner: SchemePreferenceIDResolver{Schemes: []string{SchemeTicker}}}
	rules := &countingRules{inner: NewRegistryRuleSetResolver()}
	topics := &countingTopics{inner: SchemeTopicNameResolver{}}
	r, err := NewDefault(ids, rules, topics)
	require.NoError(t, err)
	return r, ids, rules, topics
}

func testSpecs() []LiveDataSpecification {
	return []LiveDataSpecification{
		NewLiveDataSpecification(StandardNormalization.ID, aaplTicker, aaplISIN),
		NewLiveDataSpecification(StandardNormalization.ID, aaplISIN, aaplTicker),
		NewLiveDataSpecification(NoNormalization.ID, aaplTicker),
		NewLiveDataSpecification(StandardNormalization.ID, msftTicker),
		NewLiveDataSpecification("Unknown Rules", msftTicker),
		NewLiveDataSpecification(StandardNormalization.ID, unknownID),
		NewLiveDataSpecification(StandardNormalization.ID),
	}
}

// requireEquivalent checks that a singleton bulk call matches the single call.
func requireEquivalent[A comparable, B any](t *testing.T, r Resolver[A, B], inputs []A) {
	t.Helper()
	ctx := context.Background()
	for _, a := range inputs {
		single, err := r.Resolve(ctx, a)
		bulk := r.ResolveAll(ctx, []A{a})
		require.Len(t, bulk, 1)
		got, ok := bulk[a]
		require.True(t, ok)
		if err != nil {
			require.ErrorIs(t, err, exception.ErrResolveNotFound, "%v", a)
			require.Nil(t, got, "%v", a)
			continue
		}
		require.NotNil(t, got, "%v", a)
		require.Equal(t, single, *got)
	}
}

func TestBatchSingleEquivalence(t *testing.T) {
	def, _, _, _ := newCountingDefault(t)
	specs := testSpecs()

	fixed := NewFixed(map[LiveDataSpecification]DistributionSpecification{
		specs[0]: {ID: aaplTicker, RuleSet: StandardNormalization, TopicName: "AAPL"},
	})
	caching, err := NewCaching[LiveDataSpecification, DistributionSpecification](def, cache.NewUnbounded[LiveDataSpecification, *DistributionSpecification]())
	require.NoError(t, err)

	requireEquivalent[LiveDataSpecification, DistributionSpecification](t, def, specs)
	requireEquivalent[LiveDataSpecification, DistributionSpecification](t, Naive{}, specs)
	requireEquivalent[LiveDataSpecification, DistributionSpecification](t, fixed, specs)
	requireEquivalent[LiveDataSpecification, DistributionSpecification](t, caching, specs)

	bundles := []IdentifierBundle{NewBundle(aaplTicker), NewBundle(unknownID), NewBundle()}
	requireEquivalent[IdentifierBundle, ExternalID](t, SchemePreferenceIDResolver{Schemes: []string{SchemeTicker}}, bundles)
	requireEquivalent[string, NormalizationRuleSet](t, NewRegistryRuleSetResolver(), []string{"OpenGamma", "No Normalization", "nope"})
	requireEquivalent[TopicNameRequest, string](t, SchemeTopicNameResolver{}, []TopicNameRequest{
		{ID: aaplTicker, RuleSet: StandardNormalization},
		{},
	})

	store := &fakeIDStore{canonical: map[ExternalID]ExternalID{aaplTicker: NewExternalID(SchemeInternal, "1")}}
	storeIDs, err := NewStoreIDResolver(store)
	require.NoError(t, err)
	requireEquivalent[IdentifierBundle, ExternalID](t, storeIDs, bundles)
}

func TestDefaultResolveAll(t *testing.T) {
	r, ids, rules, topics := newCountingDefault(t)
	specs := testSpecs()

	result := r.ResolveAll(context.Background(), specs)
	require.Len(t, result, len(specs)-1, "equal bundles in different order collapse")

	want := &DistributionSpecification{ID: aaplTicker, RuleSet: StandardNormalization, TopicName: "LiveData.TICKER.AAPL"}
	require.Equal(t, want, result[specs[0]])
	require.Equal(t, want, result[specs[1]])
	require.Equal(t, &DistributionSpecification{ID: aaplTicker, RuleSet: NoNormalization, TopicName: "LiveData.TICKER.AAPL.Raw"}, result[specs[2]])
	require.Equal(t, "LiveData.TICKER.MSFT", result[specs[3]].TopicName)
	require.Nil(t, result[specs[4]])
	require.Nil(t, result[specs[5]])
	require.Nil(t, result[specs[6]])

	require.Equal(t, int32(1), ids.bulk.Load())
	require.Equal(t, int32(0), ids.single.Load())
	require.Equal(t, int32(5), ids.bulkSize.Load(), "distinct bundles")
	require.Equal(t, int32(len(specs)-1), rules.single.Load(), "one rule resolve per distinct spec")
	require.Equal(t, int32(1), topics.bulk.Load())
	require.ElementsMatch(t, []TopicNameRequest{
		{ID: aaplTicker, RuleSet: StandardNormalization},
		{ID: aaplTicker, RuleSet: NoNormalization},
		{ID: msftTicker, RuleSet: StandardNormalization},
	}, topics.requests)
}

func TestDefaultEmptyInput(t *testing.T) {
	r, ids, _, topics := newCountingDefault(t)
	require.Empty(t, r.ResolveAll(context.Background(), nil))
	require.Equal(t, int32(0), ids.bulk.Load())
	require.Equal(t, int32(0), topics.bulk.Load())
}

func TestDefaultDeterministic(t *testing.T) {
	r, _, _, _ := newCountingDefault(t)
	spec := NewLiveDataSpecification(StandardNormalization.ID, aaplISIN, aaplTicker)
	same := NewLiveDataSpecification(StandardNormalization.ID, aaplTicker, aaplISIN)
	require.Equal(t, spec, same)

	a, err := r.Resolve(context.Background(), spec)
	require.NoError(t, err)
	batch := r.ResolveAll(context.Background(), append(testSpecs(), same))
	require.Equal(t, a, *batch[same])
}

func TestNewDefaultValidation(t *testing.T) {
	_, err := NewDefault(nil, NewRegistryRuleSetResolver(), SchemeTopicNameResolver{})
	require.ErrorIs(t, err, exception.ErrResolveNilDelegate)
}

type countingSpecs struct {
	inner  DistributionSpecificationResolver
	single atomic.Int32
	bulk   atomic.Int32
	seen   []LiveDataSpecification
	mu     sync.Mutex
	gate   chan struct{}
}

func (c *countingSpecs) Resolve(ctx context.Context, s LiveDataSpecification) (DistributionSpecification, error) {
	c.single.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return c.inner.Resolve(ctx, s)
}

func (c *countingSpecs) ResolveAll(ctx context.Context, ss []LiveDataSpecification) map[LiveDataSpecification]*DistributionSpecification {
	c.bulk.Add(1)
	c.mu.Lock()
	c.seen = append(c.seen, ss...)
	c.mu.Unlock()
	return c.inner.ResolveAll(ctx, ss)
}

func newCachingSpecs(t *testing.T) (*Caching[LiveDataSpecification, DistributionSpecification], *countingSpecs) {
	t.Helper()
	def, _, _, _ := newCountingDefault(t)
	delegate := &countingSpecs{inner: def}
	c, err := cache.NewLRU[LiveDataSpecification, *DistributionSpecification](16)
	require.NoError(t, err)
	r, err := NewCaching[LiveDataSpecification, DistributionSpecification](delegate, c, CachingOption[LiveDataSpecification]{
		Name:  "distribution",
		KeyFn: LiveDataSpecification.Key,
	})
	require.NoError(t, err)
	return r, delegate
}

func TestCachingTransparency(t *testing.T) {
	r, delegate := newCachingSpecs(t)
	ctx := context.Background()
	spec := testSpecs()[0]

	first, err := r.Resolve(ctx, spec)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, spec)
	require.NoError(t, err)
	require.Equal(t, first, second)

	bulk := r.ResolveAll(ctx, []LiveDataSpecification{spec})
	require.Equal(t, first, *bulk[spec])
	require.Equal(t, int32(1), delegate.single.Load())
	require.Equal(t, int32(0), delegate.bulk.Load())
}

func TestCachingBulkSendsOnlyMisses(t *testing.T) {
	r, delegate := newCachingSpecs(t)
	ctx := context.Background()
	specs := testSpecs()

	_, err := r.Resolve(ctx, specs[0])
	require.NoError(t, err)

	result := r.ResolveAll(ctx, specs)
	require.Len(t, result, len(specs)-1)
	require.Equal(t, int32(1), delegate.bulk.Load())
	require.NotContains(t, delegate.seen, specs[0])
	require.Len(t, delegate.seen, len(specs)-2)

	again := r.ResolveAll(ctx, specs)
	require.Equal(t, result, again)
	require.Equal(t, int32(1), delegate.bulk.Load())
}

func TestCachingCachesFailures(t *testing.T) {
	r, delegate := newCachingSpecs(t)
	ctx := context.Background()
	spec := NewLiveDataSpecification("Unknown Rules", msftTicker)

	_, err := r.Resolve(ctx, spec)
	require.ErrorIs(t, err, exception.ErrResolveNotFound)
	_, err = r.Resolve(ctx, spec)
	require.ErrorIs(t, err, exception.ErrResolveNotFound)
	require.Nil(t, r.ResolveAll(ctx, []LiveDataSpecification{spec})[spec])
	require.Equal(t, int32(1), delegate.single.Load())
	require.Equal(t, int32(0), delegate.bulk.Load())
}

func TestCachingCollapsesConcurrentMisses(t *testing.T) {
	r, delegate := newCachingSpecs(t)
	delegate.gate = make(chan struct{})
	spec := testSpecs()[0]

	const callers = 8
	var wg sync.WaitGroup
	results := make([]DistributionSpecification, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), spec)
		}(i)
	}

	require.Eventually(t, func() bool { return delegate.single.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(delegate.gate)
	wg.Wait()

	require.Equal(t, int32(1), delegate.single.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}
}

func TestCachingJoinerKeepsOwnContext(t *testing.T) {
	r, delegate := newCachingSpecs(t)
	delegate.gate = make(chan struct{})
	spec := testSpecs()[0]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, spec)
		first <- err
	}()
	require.Eventually(t, func() bool { return delegate.single.Load() == 1 }, time.Second, time.Millisecond)

	type outcome struct {
		v   DistributionSpecification
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		v, err := r.Resolve(context.Background(), spec)
		second <- outcome{v: v, err: err}
	}()

	require.ErrorIs(t, <-first, context.DeadlineExceeded)
	time.Sleep(20 * time.Millisecond)
	close(delegate.gate)

	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, "LiveData.TICKER.AAPL", got.v.TopicName)
	require.Equal(t, int32(1), delegate.single.Load())

	cached, err := r.Resolve(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, got.v, cached)
	require.Equal(t, int32(1), delegate.single.Load())
}

func TestCachingDoesNotCacheCanceled(t *testing.T) {
	delegate := Func[string, string](func(ctx context.Context, s string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return s + "!", nil
	})
	c := cache.NewUnbounded[string, *string]()
	r, err := NewCaching[string, string](delegate, c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Resolve(ctx, "a")
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, r.ResolveAll(ctx, []string{"b"})["b"])
	require.Equal(t, 0, c.Len())

	v, err := r.Resolve(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, "a!", v)
}

func TestNewCachingValidation(t *testing.T) {
	_, err := NewCaching[string, string](nil, cache.NewUnbounded[string, *string]())
	require.ErrorIs(t, err, exception.ErrResolveNilDelegate)
	_, err = NewCaching[string, string](Func[string, string](nil), nil)
	require.ErrorIs(t, err, exception.ErrResolveNilCache)
}

type fakeIDStore struct {
	canonical map[ExternalID]ExternalID
	calls     atomic.Int32
	err       error
}

func (f *fakeIDStore) Canonical(_ context.Context, ids []ExternalID) (map[ExternalID]ExternalID, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	result := make(map[ExternalID]ExternalID)
	for _, id := range ids {
		if c, ok := f.canonical[id]; ok {
			result[id] = c
		}
	}
	return result, nil
}

func TestStoreIDResolver(t *testing.T) {
	uid := NewExternalID(SchemeInternal, "1")
	store := &fakeIDStore{canonical: map[ExternalID]ExternalID{aaplISIN: uid}}
	r, err := NewStoreIDResolver(store)
	require.NoError(t, err)

	a := NewBundle(aaplTicker, aaplISIN)
	b := NewBundle(msftTicker)
	result := r.ResolveAll(context.Background(), []IdentifierBundle{a, b})
	require.Equal(t, int32(1), store.calls.Load())
	require.Equal(t, &uid, result[a])
	require.Nil(t, result[b])

	store.err = errors.New("db down")
	result = r.ResolveAll(context.Background(), []IdentifierBundle{a})
	require.Nil(t, result[a])
}

func TestSchemePreference(t *testing.T) {
	r := SchemePreferenceIDResolver{Schemes: []string{SchemeISIN, SchemeTicker}}
	id, err := r.Resolve(context.Background(), NewBundle(aaplTicker, aaplISIN))
	require.NoError(t, err)
	require.Equal(t, aaplISIN, id)

	id, err = SchemePreferenceIDResolver{}.Resolve(context.Background(), NewBundle(aaplTicker, aaplISIN))
	require.NoError(t, err)
	require.Equal(t, aaplISIN, id, "first in canonical order")
}

func TestBundle(t *testing.T) {
	a := NewBundle(aaplTicker, aaplISIN, aaplTicker)
	b := NewBundle(aaplISIN, aaplTicker)
	require.Equal(t, a, b)
	require.Equal(t, 2, a.Len())
	require.Equal(t, []ExternalID{aaplISIN, aaplTicker}, a.IDs())
	require.Equal(t, "[ISIN~US0378331005, TICKER~AAPL]", a.String())

	got, ok := a.Get(SchemeTicker)
	require.True(t, ok)
	require.Equal(t, aaplTicker, got)

	require.Equal(t, 0, NewBundle().Len())
	require.Nil(t, NewBundle().IDs())

	parsed, err := ParseBundle("TICKER~AAPL, ISIN~US0378331005")
	require.NoError(t, err)
	require.Equal(t, a, parsed)

	_, err = ParseBundle(" , ")
	require.ErrorIs(t, err, exception.ErrResolveEmptyBundle)
	_, err = ParseBundle("AAPL")
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestSpecificationKeyDistinct(t *testing.T) {
	pair := NewLiveDataSpecification(StandardNormalization.ID, NewExternalID("A", "x"), NewExternalID("B", "y"))
	single := NewLiveDataSpecification(StandardNormalization.ID, NewExternalID("A", "x,B~y"))
	require.NotEqual(t, pair, single)
	require.NotEqual(t, pair.Key(), single.Key())

	reordered := NewLiveDataSpecification(StandardNormalization.ID, NewExternalID("B", "y"), NewExternalID("A", "x"))
	require.Equal(t, pair.Key(), reordered.Key())
	require.Equal(t, `"OpenGamma"|"A"~"x","B"~"y"`, pair.Key())
}
