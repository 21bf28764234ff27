// Command migrate creates the docvault tables and indexes for the current
// environment's table prefix. Idempotent: every statement is IF NOT EXISTS.
package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"docvault/internal/config"
	"docvault/internal/repository/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	createNodes := `
		CREATE TABLE IF NOT EXISTS ` + tables.Nodes + ` (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			parent_id TEXT REFERENCES ` + tables.Nodes + `(id) ON DELETE CASCADE,
			path TEXT[] NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('folder', 'document')),
			title TEXT NOT NULL,
			slug TEXT NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (tenant_id, parent_id, slug)
		)
	`
	if _, err := pool.Exec(ctx, createNodes); err != nil {
		log.Fatalf("Failed to create nodes table: %v", err)
	}

	createRevisions := `
		CREATE TABLE IF NOT EXISTS ` + tables.Revisions + ` (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES ` + tables.Nodes + `(id) ON DELETE CASCADE,
			revision_no BIGINT NOT NULL,
			ciphertext BYTEA NOT NULL,
			dek_ciphertext BYTEA NOT NULL,
			kek_version BIGINT NOT NULL,
			nonce_base BYTEA NOT NULL,
			checksum TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (document_id, revision_no)
		)
	`
	if _, err := pool.Exec(ctx, createRevisions); err != nil {
		log.Fatalf("Failed to create revisions table: %v", err)
	}

	createMetadata := `
		CREATE TABLE IF NOT EXISTS ` + tables.Metadata + ` (
			document_id TEXT PRIMARY KEY REFERENCES ` + tables.Nodes + `(id) ON DELETE CASCADE,
			tags TEXT[] NOT NULL DEFAULT '{}',
			is_published BOOLEAN NOT NULL DEFAULT FALSE,
			version BIGINT NOT NULL DEFAULT 1,
			last_indexed_at TIMESTAMPTZ
		)
	`
	if _, err := pool.Exec(ctx, createMetadata); err != nil {
		log.Fatalf("Failed to create metadata table: %v", err)
	}

	createTenantKeys := `
		CREATE TABLE IF NOT EXISTS ` + tables.TenantKeys + ` (
			tenant_id TEXT PRIMARY KEY,
			kek_ciphertext BYTEA NOT NULL,
			kek_version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			rotated_at TIMESTAMPTZ
		)
	`
	if _, err := pool.Exec(ctx, createTenantKeys); err != nil {
		log.Fatalf("Failed to create tenant keys table: %v", err)
	}

	createTenantKeyVersions := `
		CREATE TABLE IF NOT EXISTS ` + tables.TenantKeyVersions + ` (
			tenant_id TEXT NOT NULL,
			kek_version BIGINT NOT NULL,
			kek_ciphertext BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tenant_id, kek_version)
		)
	`
	if _, err := pool.Exec(ctx, createTenantKeyVersions); err != nil {
		log.Fatalf("Failed to create tenant key versions table: %v", err)
	}

	indexes := []string{
		// UNIQUE (tenant_id, parent_id, slug) does not cover tenant roots:
		// NULL parent_id rows never collide under a plain unique constraint.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_` + cfg.TablePrefix + `nodes_root_slug ON ` + tables.Nodes + `(tenant_id, slug) WHERE parent_id IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_` + cfg.TablePrefix + `nodes_tenant_parent ON ` + tables.Nodes + `(tenant_id, parent_id)`,
		// Subtree queries test id = ANY(path).
		`CREATE INDEX IF NOT EXISTS idx_` + cfg.TablePrefix + `nodes_path ON ` + tables.Nodes + ` USING GIN (path)`,
		// The rotation worker scans by kek_version.
		`CREATE INDEX IF NOT EXISTS idx_` + cfg.TablePrefix + `revisions_kek_version ON ` + tables.Revisions + `(kek_version)`,
		`CREATE INDEX IF NOT EXISTS idx_` + cfg.TablePrefix + `revisions_document ON ` + tables.Revisions + `(document_id, revision_no DESC)`,
	}
	for _, indexSQL := range indexes {
		if _, err := pool.Exec(ctx, indexSQL); err != nil {
			log.Fatalf("Failed to create index: %v", err)
		}
	}

	log.Printf("docvault schema ready (prefix %q)", cfg.TablePrefix)
}
