package gormstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yanun0323/livedata/internal/resolver"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type statement struct {
	sql  string
	vars []interface{}
}

// dryRunStore builds SQL against the postgres dialect without a server and
// records every statement.
func dryRunStore(t *testing.T) (*IDStore, *[]statement) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=livedata dbname=livedata sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	var captured []statement
	capture := func(tx *gorm.DB) {
		captured = append(captured, statement{sql: tx.Statement.SQL.String(), vars: tx.Statement.Vars})
	}
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture_query", capture))
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:capture_create", capture))

	store, err := New(db)
	require.NoError(t, err)
	return store, &captured
}

func TestRowsOf(t *testing.T) {
	canonical := resolver.NewExternalID(resolver.SchemeInternal, "1")
	isin := resolver.NewExternalID(resolver.SchemeISIN, "US0378331005")
	rows := rowsOf(canonical, []resolver.ExternalID{isin, isin, canonical, {}})

	require.Len(t, rows, 2)
	require.Equal(t, canonical, rows[0].external())
	require.Equal(t, canonical, rows[0].canonical())
	require.Equal(t, isin, rows[1].external())
	require.Equal(t, canonical, rows[1].canonical())

	require.Nil(t, rowsOf(resolver.ExternalID{}, []resolver.ExternalID{isin}))
}

func TestCanonicalMap(t *testing.T) {
	rows := []Identifier{
		{Scheme: "ISIN", Value: "X", CanonicalScheme: "LIVEDATA_UID", CanonicalValue: "1"},
		{Scheme: "TICKER", Value: "AAPL", CanonicalScheme: "LIVEDATA_UID", CanonicalValue: "1"},
	}
	m := canonicalMap(rows)
	require.Len(t, m, 2)
	require.Equal(t, resolver.NewExternalID("LIVEDATA_UID", "1"), m[resolver.NewExternalID("TICKER", "AAPL")])
}

func TestTuples(t *testing.T) {
	got := tuples([]resolver.ExternalID{resolver.NewExternalID("A", "1"), resolver.NewExternalID("B", "2")})
	require.Equal(t, [][]interface{}{{"A", "1"}, {"B", "2"}}, got)
}

func TestNewNilDB(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Equal(t, "live_data_identifiers", Identifier{}.TableName())
}

func TestCanonicalSingleQuery(t *testing.T) {
	store, captured := dryRunStore(t)
	ids := []resolver.ExternalID{
		resolver.NewExternalID(resolver.SchemeTicker, "AAPL"),
		resolver.NewExternalID(resolver.SchemeISIN, "US0378331005"),
	}

	m, err := store.Canonical(context.Background(), ids)
	require.NoError(t, err)
	require.Empty(t, m)

	require.Len(t, *captured, 1)
	stmt := (*captured)[0]
	require.Contains(t, stmt.sql, `FROM "live_data_identifiers"`)
	require.Contains(t, stmt.sql, `WHERE (scheme, value) IN (($1,$2),($3,$4))`)
	require.Equal(t, []interface{}{"TICKER", "AAPL", "ISIN", "US0378331005"}, stmt.vars)

	m, err = store.Canonical(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, m)
	require.Len(t, *captured, 1)
}

func TestLinkUpserts(t *testing.T) {
	store, captured := dryRunStore(t)
	canonical := resolver.NewExternalID(resolver.SchemeInternal, "1")
	ticker := resolver.NewExternalID(resolver.SchemeTicker, "AAPL")

	require.NoError(t, store.Link(context.Background(), canonical, ticker))

	require.Len(t, *captured, 1)
	stmt := (*captured)[0]
	require.Contains(t, stmt.sql, `INSERT INTO "live_data_identifiers" ("scheme","value","canonical_scheme","canonical_value") VALUES ($1,$2,$3,$4),($5,$6,$7,$8)`)
	require.Contains(t, stmt.sql, `ON CONFLICT ("scheme","value") DO UPDATE SET`)
	require.Contains(t, stmt.sql, `"canonical_scheme"="excluded"."canonical_scheme"`)
	require.Contains(t, stmt.sql, `"canonical_value"="excluded"."canonical_value"`)
	require.Equal(t, []interface{}{
		"LIVEDATA_UID", "1", "LIVEDATA_UID", "1",
		"TICKER", "AAPL", "LIVEDATA_UID", "1",
	}, stmt.vars)

	require.NoError(t, store.Link(context.Background(), resolver.ExternalID{}, ticker))
	require.Len(t, *captured, 1)
}
