package docs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docvault/internal/audit"
	"docvault/internal/config"
	"docvault/internal/domain"
	"docvault/internal/domain/models"
	"docvault/internal/domain/repositories"
	"docvault/internal/domain/services"
)

type treeService struct {
	nodeRepo     repositories.NodeRepository
	revisionRepo repositories.RevisionRepository
	metadataRepo repositories.MetadataRepository
	txManager    repositories.TransactionManager
	auditSink    audit.Sink
	logger       *slog.Logger
}

// NewTreeService creates a new tree service
func NewTreeService(
	nodeRepo repositories.NodeRepository,
	revisionRepo repositories.RevisionRepository,
	metadataRepo repositories.MetadataRepository,
	txManager repositories.TransactionManager,
	auditSink audit.Sink,
	logger *slog.Logger,
) services.TreeService {
	return &treeService{
		nodeRepo:     nodeRepo,
		revisionRepo: revisionRepo,
		metadataRepo: metadataRepo,
		txManager:    txManager,
		auditSink:    auditSink,
		logger:       logger,
	}
}

// CreateNode creates a folder or document placeholder
func (s *treeService) CreateNode(ctx context.Context, req *services.CreateNodeRequest) (*models.Node, error) {
	if err := validateCreateNode(req); err != nil {
		return nil, err
	}

	var node *models.Node
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var parentPath []string
		if req.ParentID != nil {
			parent, err := s.nodeRepo.GetByID(txCtx, req.TenantID, *req.ParentID)
			if err != nil {
				return err
			}
			if parent.Kind != models.NodeKindFolder {
				return fmt.Errorf("%w: parent %s is not a folder", domain.ErrValidation, parent.ID)
			}
			parentPath = parent.Path
		}

		slug, err := s.deriveSlug(txCtx, req.TenantID, req.ParentID, req.Title, "")
		if err != nil {
			return err
		}

		id := uuid.New().String()
		now := time.Now().UTC()
		node = &models.Node{
			ID:        id,
			TenantID:  req.TenantID,
			ParentID:  req.ParentID,
			Path:      append(append([]string{}, parentPath...), id),
			Kind:      req.Kind,
			Title:     req.Title,
			Slug:      slug,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.nodeRepo.Create(txCtx, node); err != nil {
			return err
		}

		if req.Kind == models.NodeKindDocument {
			return s.metadataRepo.Create(txCtx, &models.Metadata{
				DocumentID: id,
				Tags:       []string{},
				Version:    1,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("node created",
		"tenant_id", node.TenantID,
		"node_id", node.ID,
		"kind", node.Kind,
		"slug", node.Slug,
	)
	return node, nil
}

// GetNode retrieves a single node
func (s *treeService) GetNode(ctx context.Context, tenantID, id string) (*models.Node, error) {
	return s.nodeRepo.GetByID(ctx, tenantID, id)
}

// Rename re-titles a node, re-deriving its slug. O(1): the id-based path
// never changes on rename.
func (s *treeService) Rename(ctx context.Context, tenantID, id, newTitle string, expectedVersion int64) (*models.Node, error) {
	if err := validateTitle(newTitle); err != nil {
		return nil, err
	}

	var node *models.Node
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		current, err := s.nodeRepo.GetByID(txCtx, tenantID, id)
		if err != nil {
			return err
		}

		slug, err := s.deriveSlug(txCtx, tenantID, current.ParentID, newTitle, id)
		if err != nil {
			return err
		}

		node, err = s.nodeRepo.UpdateTitle(txCtx, tenantID, id, newTitle, slug, expectedVersion)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Move reparents a node and rewrites descendant paths atomically
func (s *treeService) Move(ctx context.Context, tenantID, id string, newParentID *string, expectedVersion int64) (*models.Node, error) {
	var node *models.Node
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		current, err := s.nodeRepo.GetByID(txCtx, tenantID, id)
		if err != nil {
			return err
		}

		var newPath []string
		if newParentID != nil {
			if *newParentID == id {
				return fmt.Errorf("node %s: %w", id, domain.ErrCycleRejected)
			}
			parent, err := s.nodeRepo.GetByID(txCtx, tenantID, *newParentID)
			if err != nil {
				return err
			}
			if parent.Kind != models.NodeKindFolder {
				return fmt.Errorf("%w: parent %s is not a folder", domain.ErrValidation, parent.ID)
			}
			// Path-prefix cycle test: the target may not sit inside the
			// moving subtree.
			if parent.HasAncestor(id) {
				return fmt.Errorf("node %s: %w", id, domain.ErrCycleRejected)
			}
			newPath = append(append([]string{}, parent.Path...), id)
		} else {
			newPath = []string{id}
		}

		slug, err := s.deriveSlug(txCtx, tenantID, newParentID, current.Title, id)
		if err != nil {
			return err
		}

		node, err = s.nodeRepo.Move(txCtx, tenantID, id, newParentID, newPath, slug, expectedVersion)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("node moved", "tenant_id", tenantID, "node_id", id)
	return node, nil
}

// ListChildren lists direct children (nil parent = tenant roots)
func (s *treeService) ListChildren(ctx context.Context, tenantID string, parentID *string) ([]models.Node, error) {
	if parentID != nil {
		if _, err := s.nodeRepo.GetByID(ctx, tenantID, *parentID); err != nil {
			return nil, err
		}
	}
	return s.nodeRepo.ListChildren(ctx, tenantID, parentID)
}

// ListSubtree lists a node and all descendants
func (s *treeService) ListSubtree(ctx context.Context, tenantID, rootID string) ([]models.Node, error) {
	if _, err := s.nodeRepo.GetByID(ctx, tenantID, rootID); err != nil {
		return nil, err
	}
	return s.nodeRepo.ListSubtree(ctx, tenantID, rootID)
}

// Delete removes a node, optionally cascading through its subtree
func (s *treeService) Delete(ctx context.Context, tenantID, id string, expectedVersion int64, cascade bool) error {
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		node, err := s.nodeRepo.GetByID(txCtx, tenantID, id)
		if err != nil {
			return err
		}

		hasChildren, err := s.nodeRepo.HasChildren(txCtx, tenantID, id)
		if err != nil {
			return err
		}
		if hasChildren && !cascade {
			return fmt.Errorf("node %s: %w", id, domain.ErrNotEmpty)
		}

		subtree, err := s.nodeRepo.ListSubtree(txCtx, tenantID, id)
		if err != nil {
			return err
		}
		var docIDs []string
		for _, n := range subtree {
			if n.Kind == models.NodeKindDocument {
				docIDs = append(docIDs, n.ID)
			}
		}

		// Version check on the root fails the whole transaction before any
		// descendant is touched.
		if err := s.nodeRepo.Delete(txCtx, tenantID, id, expectedVersion); err != nil {
			return err
		}
		if err := s.revisionRepo.DeleteByDocuments(txCtx, docIDs); err != nil {
			return err
		}
		if err := s.metadataRepo.DeleteByDocuments(txCtx, docIDs); err != nil {
			return err
		}
		if hasChildren {
			if err := s.nodeRepo.DeleteDescendants(txCtx, tenantID, id); err != nil {
				return err
			}
		}

		s.auditSink.Emit(txCtx, models.AuditEvent{
			TenantID: tenantID,
			Action:   models.AuditActionNodeDeleted,
			TargetID: id,
			Payload: map[string]any{
				"kind":        node.Kind,
				"cascade":     cascade,
				"descendants": len(subtree) - 1,
			},
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("node deleted", "tenant_id", tenantID, "node_id", id, "cascade", cascade)
	return nil
}

// GetMetadata fetches a document's side-table entry
func (s *treeService) GetMetadata(ctx context.Context, tenantID, documentID string) (*models.Metadata, error) {
	if _, err := s.requireDocument(ctx, tenantID, documentID); err != nil {
		return nil, err
	}
	return s.metadataRepo.Get(ctx, documentID)
}

// UpdateMetadata mutates tags/publish state under the metadata version counter
func (s *treeService) UpdateMetadata(ctx context.Context, req *services.UpdateMetadataRequest) (*models.Metadata, error) {
	if err := validateUpdateMetadata(req); err != nil {
		return nil, err
	}
	if _, err := s.requireDocument(ctx, req.TenantID, req.DocumentID); err != nil {
		return nil, err
	}
	return s.metadataRepo.Update(ctx, req.DocumentID, req.Tags, req.IsPublished, req.ExpectedVersion)
}

func (s *treeService) requireDocument(ctx context.Context, tenantID, documentID string) (*models.Node, error) {
	node, err := s.nodeRepo.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if node.Kind != models.NodeKindDocument {
		return nil, fmt.Errorf("%w: node %s is not a document", domain.ErrValidation, documentID)
	}
	return node, nil
}

// deriveSlug resolves sibling collisions by suffixing, bounded by
// MaxSlugAttempts.
func (s *treeService) deriveSlug(ctx context.Context, tenantID string, parentID *string, title, excludeID string) (string, error) {
	base := slugify(title)
	slug := base
	for attempt := 2; ; attempt++ {
		exists, err := s.nodeRepo.SlugExists(ctx, tenantID, parentID, slug, excludeID)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		if attempt > config.MaxSlugAttempts {
			return "", &domain.ConflictError{
				Message:      fmt.Sprintf("could not derive a unique slug for %q", title),
				ResourceType: "node",
			}
		}
		slug = fmt.Sprintf("%s-%d", base, attempt)
	}
}
