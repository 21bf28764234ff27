package services

import (
	"context"

	"docvault/internal/domain/models"
)

// TreeService handles hierarchy business logic
type TreeService interface {
	// CreateNode creates a folder or document placeholder under a parent
	// (nil parent = tenant root), deriving a sibling-unique slug.
	CreateNode(ctx context.Context, req *CreateNodeRequest) (*models.Node, error)

	// GetNode retrieves a single node.
	GetNode(ctx context.Context, tenantID, id string) (*models.Node, error)

	// Rename re-titles a node. Paths are id-based, so renames never touch
	// the subtree.
	Rename(ctx context.Context, tenantID, id, newTitle string, expectedVersion int64) (*models.Node, error)

	// Move reparents a node, atomically rewriting descendant paths. Fails
	// with the cycle sentinel when the target is the node or one of its
	// descendants.
	Move(ctx context.Context, tenantID, id string, newParentID *string, expectedVersion int64) (*models.Node, error)

	// ListChildren lists direct children of a parent (nil = tenant roots).
	ListChildren(ctx context.Context, tenantID string, parentID *string) ([]models.Node, error)

	// ListSubtree lists a node and all of its descendants.
	ListSubtree(ctx context.Context, tenantID, rootID string) ([]models.Node, error)

	// Delete removes a node. Without cascade it fails on non-empty
	// folders; with cascade it removes every descendant and their
	// revisions.
	Delete(ctx context.Context, tenantID, id string, expectedVersion int64, cascade bool) error

	// GetMetadata fetches a document's mutable side-table entry.
	GetMetadata(ctx context.Context, tenantID, documentID string) (*models.Metadata, error)

	// UpdateMetadata mutates tags/publish state under the metadata's own
	// version counter. Never creates a content revision.
	UpdateMetadata(ctx context.Context, req *UpdateMetadataRequest) (*models.Metadata, error)
}

// CreateNodeRequest represents a node creation request
type CreateNodeRequest struct {
	TenantID string          `json:"tenant_id"`
	ParentID *string         `json:"parent_id,omitempty"` // nil = tenant root
	Kind     models.NodeKind `json:"kind"`
	Title    string          `json:"title"`
}

// UpdateMetadataRequest represents a metadata update request
type UpdateMetadataRequest struct {
	TenantID        string   `json:"tenant_id"`
	DocumentID      string   `json:"document_id"`
	Tags            []string `json:"tags"`
	IsPublished     bool     `json:"is_published"`
	ExpectedVersion int64    `json:"expected_version"`
}
