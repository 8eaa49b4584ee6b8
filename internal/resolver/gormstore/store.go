package gormstore

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/resolver"
	"github.com/yanun0323/livedata/pkg/exception"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Identifier maps one external identifier to its canonical identifier.
type Identifier struct {
	Scheme          string `gorm:"primaryKey;size:64"`
	Value           string `gorm:"primaryKey;size:128"`
	CanonicalScheme string `gorm:"size:64;not null"`
	CanonicalValue  string `gorm:"size:128;not null;index"`
}

func (Identifier) TableName() string {
	return "live_data_identifiers"
}

func (i Identifier) external() resolver.ExternalID {
	return resolver.NewExternalID(i.Scheme, i.Value)
}

func (i Identifier) canonical() resolver.ExternalID {
	return resolver.NewExternalID(i.CanonicalScheme, i.CanonicalValue)
}

// IDStore is a postgres backed resolver.IDStore.
type IDStore struct {
	db *gorm.DB
}

var _ resolver.IDStore = (*IDStore)(nil)

// New returns a store over db.
func New(db *gorm.DB) (*IDStore, error) {
	if db == nil {
		return nil, exception.ErrNilInstance
	}
	return &IDStore{db: db}, nil
}

// Migrate creates the identifier table.
func (s *IDStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Identifier{}); err != nil {
		return errors.Wrap(err, "migrate identifiers")
	}
	return nil
}

// Canonical looks up all ids with a single query.
func (s *IDStore) Canonical(ctx context.Context, ids []resolver.ExternalID) (map[resolver.ExternalID]resolver.ExternalID, error) {
	if len(ids) == 0 {
		return map[resolver.ExternalID]resolver.ExternalID{}, nil
	}

	var rows []Identifier
	if err := s.db.WithContext(ctx).
		Where("(scheme, value) IN ?", tuples(ids)).
		Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "find identifiers, count: %d", len(ids))
	}
	return canonicalMap(rows), nil
}

// Link maps every id to canonical, replacing existing mappings.
func (s *IDStore) Link(ctx context.Context, canonical resolver.ExternalID, ids ...resolver.ExternalID) error {
	rows := rowsOf(canonical, ids)
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scheme"}, {Name: "value"}},
		DoUpdates: clause.AssignmentColumns([]string{"canonical_scheme", "canonical_value"}),
	}).Create(&rows).Error
	if err != nil {
		return errors.Wrapf(err, "link identifiers to %s", canonical)
	}
	return nil
}

func tuples(ids []resolver.ExternalID) [][]interface{} {
	result := make([][]interface{}, 0, len(ids))
	for _, id := range ids {
		result = append(result, []interface{}{id.Scheme, id.Value})
	}
	return result
}

func canonicalMap(rows []Identifier) map[resolver.ExternalID]resolver.ExternalID {
	result := make(map[resolver.ExternalID]resolver.ExternalID, len(rows))
	for _, row := range rows {
		result[row.external()] = row.canonical()
	}
	return result
}

// rowsOf always links canonical to itself.
func rowsOf(canonical resolver.ExternalID, ids []resolver.ExternalID) []Identifier {
	if canonical.IsZero() {
		return nil
	}
	seen := map[resolver.ExternalID]struct{}{canonical: {}}
	rows := []Identifier{{
		Scheme:          canonical.Scheme,
		Value:           canonical.Value,
		CanonicalScheme: canonical.Scheme,
		CanonicalValue:  canonical.Value,
	}}
	for _, id := range ids {
		if _, ok := seen[id]; ok || id.IsZero() {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, Identifier{
			Scheme:          id.Scheme,
			Value:           id.Value,
			CanonicalScheme: canonical.Scheme,
			CanonicalValue:  canonical.Value,
		})
	}
	return rows
}
