package models

import (
	"slices"
	"time"
)

// NodeKind discriminates folders from documents.
type NodeKind string

const (
	NodeKindFolder   NodeKind = "folder"
	NodeKindDocument NodeKind = "document"
)

// Node is a folder or document placeholder in the tenant tree.
//
// Path is the materialized ancestor-id list, terminating with the node's own
// id. Subtree membership is a prefix test on Path, never a live traversal,
// so moves cannot introduce cycles: paths are always re-derived top-down
// from the new parent.
type Node struct {
	ID        string     `json:"id" db:"id"`
	TenantID  string     `json:"tenant_id" db:"tenant_id"`
	ParentID  *string    `json:"parent_id" db:"parent_id"` // NULL = tenant root
	Path      []string   `json:"path" db:"path"`
	Kind      NodeKind   `json:"kind" db:"kind"`
	Title     string     `json:"title" db:"title"`
	Slug      string     `json:"slug" db:"slug"` // url-safe, unique among siblings
	Version   int64      `json:"version" db:"version"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// IsRoot reports whether the node sits at the tenant root.
func (n *Node) IsRoot() bool { return n.ParentID == nil }

// HasAncestor reports whether id appears in the node's ancestor chain
// (including the node itself).
func (n *Node) HasAncestor(id string) bool { return slices.Contains(n.Path, id) }
