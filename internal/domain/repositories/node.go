package repositories

import (
	"context"

	"docvault/internal/domain/models"
)

// NodeRepository persists the materialized-path document tree.
//
// All methods are tenant-scoped. Mutations that take expectedVersion follow
// the optimistic-lock contract: they update only when the stored version
// matches, and implementations must let callers distinguish a stale version
// from a missing row.
type NodeRepository interface {
	// Create inserts a new node. Returns a ConflictError when a sibling
	// with the same slug already exists.
	Create(ctx context.Context, node *models.Node) error

	// GetByID fetches a single node.
	GetByID(ctx context.Context, tenantID, id string) (*models.Node, error)

	// ListChildren returns the direct children of parentID (nil = tenant
	// roots), ordered by slug.
	ListChildren(ctx context.Context, tenantID string, parentID *string) ([]models.Node, error)

	// ListSubtree returns every node whose path contains rootID, including
	// the root itself, ordered by path so parents sort before children.
	ListSubtree(ctx context.Context, tenantID, rootID string) ([]models.Node, error)

	// SlugExists reports whether a sibling under parentID already uses slug.
	// excludeID is ignored when empty; pass the node's own id on rename.
	SlugExists(ctx context.Context, tenantID string, parentID *string, slug, excludeID string) (bool, error)

	// UpdateTitle renames a node in place. Path is id-based so a rename
	// never rewrites the subtree.
	UpdateTitle(ctx context.Context, tenantID, id, title, slug string, expectedVersion int64) (*models.Node, error)

	// Move reparents a node and atomically rewrites the paths of every
	// descendant. Implementations must hold a tenant+subtree-scoped
	// exclusive lock for the duration of the rewrite.
	Move(ctx context.Context, tenantID, id string, newParentID *string, newPath []string, slug string, expectedVersion int64) (*models.Node, error)

	// CompareAndBumpVersion increments a node's version iff it currently
	// equals expectedVersion. This is the write-side half of the
	// optimistic-lock contract used by revision appends.
	CompareAndBumpVersion(ctx context.Context, tenantID, id string, expectedVersion int64) (*models.Node, error)

	// Delete removes a single node with a version check.
	Delete(ctx context.Context, tenantID, id string, expectedVersion int64) error

	// DeleteDescendants removes every node strictly below rootID.
	DeleteDescendants(ctx context.Context, tenantID, rootID string) error

	// HasChildren reports whether the node has at least one direct child.
	HasChildren(ctx context.Context, tenantID, id string) (bool, error)
}
