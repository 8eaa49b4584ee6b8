package resolver

import (
	"sort"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
)

const (
	idSeparator     = "~"
	bundleSeparator = "\x1f"
)

// Well known identifier schemes.
const (
	SchemeTicker    = "TICKER"
	SchemeISIN      = "ISIN"
	SchemeCUSIP     = "CUSIP"
	SchemeSEDOL     = "SEDOL"
	SchemeBloomberg = "BLOOMBERG_TICKER"
	SchemeInternal  = "LIVEDATA_UID"
)

// ExternalID is an identifier within a scheme, such as ISIN~US0378331005.
type ExternalID struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// NewExternalID returns the identifier value in scheme.
func NewExternalID(scheme, value string) ExternalID {
	return ExternalID{Scheme: scheme, Value: value}
}

// ParseExternalID parses the "scheme~value" form.
func ParseExternalID(s string) (ExternalID, error) {
	scheme, value, ok := strings.Cut(s, idSeparator)
	if !ok || scheme == "" || value == "" {
		return ExternalID{}, errors.Wrapf(exception.ErrInvalidArgument, "external id: %q", s)
	}
	return ExternalID{Scheme: scheme, Value: value}, nil
}

func (id ExternalID) String() string {
	return id.Scheme + idSeparator + id.Value
}

// IsZero reports whether id is empty.
func (id ExternalID) IsZero() bool {
	return id.Scheme == "" && id.Value == ""
}

// IdentifierBundle is an immutable set of identifiers of one instrument.
// Bundles holding the same identifiers compare equal with ==.
type IdentifierBundle struct {
	canonical string
}

// NewBundle builds a bundle; order and duplicates do not matter.
func NewBundle(ids ...ExternalID) IdentifierBundle {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		parts = append(parts, id.String())
	}
	sort.Strings(parts)

	uniq := parts[:0]
	for _, p := range parts {
		if len(uniq) > 0 && uniq[len(uniq)-1] == p {
			continue
		}
		uniq = append(uniq, p)
	}
	return IdentifierBundle{canonical: strings.Join(uniq, bundleSeparator)}
}

// ParseBundle parses comma separated "scheme~value" identifiers.
func ParseBundle(s string) (IdentifierBundle, error) {
	var ids []ExternalID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := ParseExternalID(part)
		if err != nil {
			return IdentifierBundle{}, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return IdentifierBundle{}, exception.ErrResolveEmptyBundle
	}
	return NewBundle(ids...), nil
}

// IDs returns the identifiers sorted by their string form.
func (b IdentifierBundle) IDs() []ExternalID {
	if b.canonical == "" {
		return nil
	}
	parts := strings.Split(b.canonical, bundleSeparator)
	ids := make([]ExternalID, 0, len(parts))
	for _, p := range parts {
		scheme, value, _ := strings.Cut(p, idSeparator)
		ids = append(ids, ExternalID{Scheme: scheme, Value: value})
	}
	return ids
}

// Len returns the number of identifiers.
func (b IdentifierBundle) Len() int {
	if b.canonical == "" {
		return 0
	}
	return strings.Count(b.canonical, bundleSeparator) + 1
}

// Get returns the first identifier of scheme.
func (b IdentifierBundle) Get(scheme string) (ExternalID, bool) {
	for _, id := range b.IDs() {
		if id.Scheme == scheme {
			return id, true
		}
	}
	return ExternalID{}, false
}

func (b IdentifierBundle) String() string {
	return "[" + strings.ReplaceAll(b.canonical, bundleSeparator, ", ") + "]"
}

// NormalizationRuleSet names the transformation applied before distribution.
// Only its identity matters here.
type NormalizationRuleSet struct {
	ID          string `json:"id"`
	TopicSuffix string `json:"topicSuffix"`
}

// LiveDataSpecification is what a client asks for.
type LiveDataSpecification struct {
	Bundle    IdentifierBundle
	RuleSetID string
}

// NewLiveDataSpecification returns a request for ids normalized by ruleSetID.
func NewLiveDataSpecification(ruleSetID string, ids ...ExternalID) LiveDataSpecification {
	return LiveDataSpecification{Bundle: NewBundle(ids...), RuleSetID: ruleSetID}
}

// Key renders the specification as a stable string. Parts are quoted, so
// distinct specifications never share a key.
func (s LiveDataSpecification) Key() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(s.RuleSetID))
	b.WriteByte('|')
	for i, id := range s.Bundle.IDs() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(id.Scheme))
		b.WriteString(idSeparator)
		b.WriteString(strconv.Quote(id.Value))
	}
	return b.String()
}

func (s LiveDataSpecification) String() string {
	return "LiveDataSpecification{" + s.RuleSetID + ", " + s.Bundle.String() + "}"
}

// DistributionSpecification is the resolved, canonical form of a request.
type DistributionSpecification struct {
	ID        ExternalID           `json:"id"`
	RuleSet   NormalizationRuleSet `json:"ruleSet"`
	TopicName string               `json:"topicName"`
}

// TopicNameRequest is the dedup key of topic name resolution.
type TopicNameRequest struct {
	ID      ExternalID
	RuleSet NormalizationRuleSet
}
