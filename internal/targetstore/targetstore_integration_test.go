//go:build integration

package targetstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/dropkiller/catalog-migration/internal/types"
)

// schema is the minimal subset of the target database this package
// talks to, enough to exercise every Store method that uses the target
// database against a real MySQL-protocol server. The legacy
// product_history table read by the history methods is not created.
const schema = `
CREATE TABLE countries (id VARCHAR(64) PRIMARY KEY, code VARCHAR(8) NOT NULL UNIQUE);
CREATE TABLE platform_countries (id VARCHAR(64) PRIMARY KEY, platform_id VARCHAR(64) NOT NULL, country_id VARCHAR(64) NOT NULL, UNIQUE(platform_id, country_id));
CREATE TABLE base_categories (id VARCHAR(64) PRIMARY KEY, name VARCHAR(255) NOT NULL);
CREATE TABLE platform_category_overrides (id VARCHAR(64) PRIMARY KEY, platform_id VARCHAR(64) NOT NULL, name VARCHAR(255) NOT NULL, base_category_id VARCHAR(64) NOT NULL);
CREATE TABLE providers (id VARCHAR(64) PRIMARY KEY, name VARCHAR(255), external_id VARCHAR(255), verified BOOLEAN, platform_country_id VARCHAR(64), created_at DATETIME, updated_at DATETIME);
CREATE TABLE products (id VARCHAR(64) PRIMARY KEY, external_id VARCHAR(255), name VARCHAR(255), description TEXT,
	price DOUBLE, sale_price DOUBLE, suggested_price DOUBLE,
	total_sold_units BIGINT, sold_units_last_7_days BIGINT, sold_units_last_30_days BIGINT,
	total_billing DOUBLE, billing_last_7_days DOUBLE, billing_last_30_days DOUBLE,
	stock BIGINT, variations_amount BIGINT, score DOUBLE, status VARCHAR(16),
	platform_country_id VARCHAR(64), provider_id VARCHAR(64), base_category_id VARCHAR(64),
	created_at DATETIME, updated_at DATETIME);
CREATE TABLE histories (id VARCHAR(64) PRIMARY KEY, date VARCHAR(10), product_id VARCHAR(64),
	stock BIGINT, sale_price DOUBLE, sold_units BIGINT,
	sold_units_last_7_days BIGINT, sold_units_last_30_days BIGINT, total_sold_units BIGINT,
	billing_last_7_days DOUBLE, billing_last_30_days DOUBLE, total_billing DOUBLE, suggested_price DOUBLE);
CREATE TABLE multimedia (id VARCHAR(64) PRIMARY KEY, product_id VARCHAR(64), url TEXT, original_url TEXT,
	type VARCHAR(16), extracted BOOLEAN, created_at DATETIME, updated_at DATETIME);
`

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("catalog"),
		mysql.WithUsername("catalog"),
		mysql.WithPassword("catalog"),
		mysql.WithScripts(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range splitStatements(schema) {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	return New(db, db)
}

func splitStatements(schema string) []string {
	var out []string
	start := 0
	for i, r := range schema {
		if r == ';' {
			stmt := schema[start:i]
			start = i + 1
			if len(stmt) > 0 {
				out = append(out, stmt)
			}
		}
	}
	return out
}

func TestStoreProviderRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := &types.Provider{
		ID: "prov-1", Name: "Acme", ExternalID: "ext-1", Verified: true,
		PlatformCountryID: "pc-1", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, p))

	got, err := store.Get(ctx, "prov-1")
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name)

	byName, err := store.FindByNameAndExternalID(ctx, "acme", "ext-1")
	require.NoError(t, err)
	require.Equal(t, p.ID, byName.ID)
}

func TestStoreProductUpsertPreservesCreatedAt(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	created := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	p := &types.Product{
		ID: "prod-1", ExternalID: "ext-1", Name: "Widget", Status: types.StatusActive,
		PlatformCountryID: "pc-1", ProviderID: "prov-1", BaseCategoryID: "cat-1",
		CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, store.Insert(ctx, p))

	p.Name = "Widget v2"
	p.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Update(ctx, p))

	got, err := store.GetByID(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, "Widget v2", got.Name)
	require.WithinDuration(t, created, got.CreatedAt, time.Second)
}
