package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docvault/internal/domain"
	"docvault/internal/domain/models"
	"docvault/internal/domain/repositories"
)

// PostgresNodeRepository implements the NodeRepository interface
type PostgresNodeRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(config *RepositoryConfig) repositories.NodeRepository {
	return &PostgresNodeRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const nodeColumns = "id, tenant_id, parent_id, path, kind, title, slug, version, created_at, updated_at"

func scanNode(row pgx.Row) (*models.Node, error) {
	var n models.Node
	err := row.Scan(
		&n.ID,
		&n.TenantID,
		&n.ParentID,
		&n.Path,
		&n.Kind,
		&n.Title,
		&n.Slug,
		&n.Version,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Create inserts a new node
func (r *PostgresNodeRepository) Create(ctx context.Context, node *models.Node) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, tenant_id, parent_id, path, kind, title, slug, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, r.tables.Nodes)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		node.ID,
		node.TenantID,
		node.ParentID,
		node.Path,
		node.Kind,
		node.Title,
		node.Slug,
		node.Version,
		node.CreatedAt,
		node.UpdatedAt,
	).Scan(&node.CreatedAt, &node.UpdatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("a node with slug %q already exists in this location", node.Slug),
				ResourceType: "node",
				ResourceID:   node.ID,
			}
		}
		if IsPgCheckViolationError(err) {
			return fmt.Errorf("%w: node kind %q is not valid", domain.ErrValidation, node.Kind)
		}
		return fmt.Errorf("create node: %w", err)
	}

	return nil
}

// GetByID retrieves a node by ID
func (r *PostgresNodeRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Node, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE tenant_id = $1 AND id = $2
	`, nodeColumns, r.tables.Nodes)

	executor := GetExecutor(ctx, r.pool)
	node, err := scanNode(executor.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("node %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

// ListChildren returns direct children ordered by slug
func (r *PostgresNodeRepository) ListChildren(ctx context.Context, tenantID string, parentID *string) ([]models.Node, error) {
	var query string
	var args []interface{}

	if parentID != nil {
		query = fmt.Sprintf(`
			SELECT %s FROM %s
			WHERE tenant_id = $1 AND parent_id = $2
			ORDER BY slug
		`, nodeColumns, r.tables.Nodes)
		args = []interface{}{tenantID, *parentID}
	} else {
		query = fmt.Sprintf(`
			SELECT %s FROM %s
			WHERE tenant_id = $1 AND parent_id IS NULL
			ORDER BY slug
		`, nodeColumns, r.tables.Nodes)
		args = []interface{}{tenantID}
	}

	return r.queryNodes(ctx, query, args...)
}

// ListSubtree returns the node and all descendants via the path prefix test,
// ordered so parents sort before their children.
func (r *PostgresNodeRepository) ListSubtree(ctx context.Context, tenantID, rootID string) ([]models.Node, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE tenant_id = $1 AND $2 = ANY(path)
		ORDER BY array_length(path, 1), slug
	`, nodeColumns, r.tables.Nodes)

	return r.queryNodes(ctx, query, tenantID, rootID)
}

func (r *PostgresNodeRepository) queryNodes(ctx context.Context, query string, args ...interface{}) ([]models.Node, error) {
	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, *node)
	}
	return nodes, rows.Err()
}

// SlugExists reports whether a sibling already uses slug
func (r *PostgresNodeRepository) SlugExists(ctx context.Context, tenantID string, parentID *string, slug, excludeID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE tenant_id = $1 AND slug = $2`, r.tables.Nodes)
	args := []interface{}{tenantID, slug}

	if parentID != nil {
		args = append(args, *parentID)
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	} else {
		query += " AND parent_id IS NULL"
	}
	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}
	query += ")"

	var exists bool
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// UpdateTitle renames a node in place with a version check
func (r *PostgresNodeRepository) UpdateTitle(ctx context.Context, tenantID, id, title, slug string, expectedVersion int64) (*models.Node, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $1, slug = $2, version = version + 1, updated_at = now()
		WHERE tenant_id = $3 AND id = $4 AND version = $5
		RETURNING %s
	`, r.tables.Nodes, nodeColumns)

	executor := GetExecutor(ctx, r.pool)
	node, err := scanNode(executor.QueryRow(ctx, query, title, slug, tenantID, id, expectedVersion))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, r.classifyVersionMiss(ctx, tenantID, id, expectedVersion)
		}
		if IsPgDuplicateError(err) {
			return nil, &domain.ConflictError{
				Message:      fmt.Sprintf("a node with slug %q already exists in this location", slug),
				ResourceType: "node",
				ResourceID:   id,
			}
		}
		return nil, fmt.Errorf("rename node: %w", err)
	}
	return node, nil
}

// Move reparents the node and rewrites every descendant path. Requires a
// transaction in the context: the advisory lock is transaction-scoped and
// the two updates must commit together.
func (r *PostgresNodeRepository) Move(ctx context.Context, tenantID, id string, newParentID *string, newPath []string, slug string, expectedVersion int64) (*models.Node, error) {
	executor := GetExecutor(ctx, r.pool)

	// Exclusive tenant+subtree lock for the duration of the rewrite.
	// Concurrent moves under the same subtree serialize here; readers are
	// unaffected and see the pre- or post-move paths, never a mix.
	lockQuery := `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	if _, err := executor.Exec(ctx, lockQuery, tenantID+":"+id); err != nil {
		return nil, fmt.Errorf("acquire subtree lock: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET parent_id = $1, path = $2, slug = $3, version = version + 1, updated_at = now()
		WHERE tenant_id = $4 AND id = $5 AND version = $6
		RETURNING %s
	`, r.tables.Nodes, nodeColumns)

	node, err := scanNode(executor.QueryRow(ctx, query, newParentID, newPath, slug, tenantID, id, expectedVersion))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, r.classifyVersionMiss(ctx, tenantID, id, expectedVersion)
		}
		if IsPgDuplicateError(err) {
			return nil, &domain.ConflictError{
				Message:      fmt.Sprintf("a node with slug %q already exists in this location", slug),
				ResourceType: "node",
				ResourceID:   id,
			}
		}
		return nil, fmt.Errorf("move node: %w", err)
	}

	// Re-derive every descendant path top-down: new prefix plus the suffix
	// below the moved node. One statement, all-or-nothing.
	rewrite := fmt.Sprintf(`
		UPDATE %s
		SET path = $1::text[] || path[array_position(path, $2) + 1:], updated_at = now()
		WHERE tenant_id = $3 AND $2 = ANY(path) AND id <> $2
	`, r.tables.Nodes)

	if _, err := executor.Exec(ctx, rewrite, newPath, id, tenantID); err != nil {
		return nil, fmt.Errorf("rewrite descendant paths: %w", err)
	}

	return node, nil
}

// CompareAndBumpVersion increments the version iff it matches expectedVersion
func (r *PostgresNodeRepository) CompareAndBumpVersion(ctx context.Context, tenantID, id string, expectedVersion int64) (*models.Node, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND version = $3
		RETURNING %s
	`, r.tables.Nodes, nodeColumns)

	executor := GetExecutor(ctx, r.pool)
	node, err := scanNode(executor.QueryRow(ctx, query, tenantID, id, expectedVersion))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, r.classifyVersionMiss(ctx, tenantID, id, expectedVersion)
		}
		return nil, fmt.Errorf("bump node version: %w", err)
	}
	return node, nil
}

// Delete removes a single node with a version check
func (r *PostgresNodeRepository) Delete(ctx context.Context, tenantID, id string, expectedVersion int64) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE tenant_id = $1 AND id = $2 AND version = $3
	`, r.tables.Nodes)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, tenantID, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyVersionMiss(ctx, tenantID, id, expectedVersion)
	}
	return nil
}

// DeleteDescendants removes every node strictly below rootID
func (r *PostgresNodeRepository) DeleteDescendants(ctx context.Context, tenantID, rootID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE tenant_id = $1 AND $2 = ANY(path) AND id <> $2
	`, r.tables.Nodes)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, tenantID, rootID); err != nil {
		return fmt.Errorf("delete descendants: %w", err)
	}
	return nil
}

// HasChildren reports whether the node has at least one direct child
func (r *PostgresNodeRepository) HasChildren(ctx context.Context, tenantID, id string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE tenant_id = $1 AND parent_id = $2)
	`, r.tables.Nodes)

	var exists bool
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, tenantID, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check children: %w", err)
	}
	return exists, nil
}

// classifyVersionMiss distinguishes a stale version from a missing row after
// a conditional update matched nothing.
func (r *PostgresNodeRepository) classifyVersionMiss(ctx context.Context, tenantID, id string, expectedVersion int64) error {
	if _, err := r.GetByID(ctx, tenantID, id); err != nil {
		return err
	}
	return &domain.VersionConflictError{
		ResourceType: "node",
		ResourceID:   id,
		Expected:     expectedVersion,
	}
}
