package docs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docvault/internal/domain"
	"docvault/internal/domain/models"
	"docvault/internal/domain/repositories"
	"docvault/internal/keys"
)

// In-memory repository fakes implementing the repository contracts,
// including the optimistic-lock semantics the services depend on.

type fakeNodeRepo struct {
	mu    sync.Mutex
	nodes map[string]*models.Node // id -> node
}

func newFakeNodeRepo() *fakeNodeRepo {
	return &fakeNodeRepo{nodes: map[string]*models.Node{}}
}

func (r *fakeNodeRepo) get(tenantID, id string) (*models.Node, error) {
	n, ok := r.nodes[id]
	if !ok || n.TenantID != tenantID {
		return nil, fmt.Errorf("node %s: %w", id, domain.ErrNotFound)
	}
	return n, nil
}

func copyNode(n *models.Node) *models.Node {
	cp := *n
	cp.Path = append([]string{}, n.Path...)
	return &cp
}

func (r *fakeNodeRepo) Create(ctx context.Context, node *models.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.nodes {
		if existing.TenantID == node.TenantID && sameParent(existing.ParentID, node.ParentID) && existing.Slug == node.Slug {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("slug %q already exists", node.Slug),
				ResourceType: "node",
				ResourceID:   existing.ID,
			}
		}
	}
	r.nodes[node.ID] = copyNode(node)
	return nil
}

func (r *fakeNodeRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.get(tenantID, id)
	if err != nil {
		return nil, err
	}
	return copyNode(n), nil
}

func (r *fakeNodeRepo) ListChildren(ctx context.Context, tenantID string, parentID *string) ([]models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Node
	for _, n := range r.nodes {
		if n.TenantID == tenantID && sameParent(n.ParentID, parentID) {
			out = append(out, *copyNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *fakeNodeRepo) ListSubtree(ctx context.Context, tenantID, rootID string) ([]models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Node
	for _, n := range r.nodes {
		if n.TenantID == tenantID && n.HasAncestor(rootID) {
			out = append(out, *copyNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i].Path) < len(out[j].Path) })
	return out, nil
}

func (r *fakeNodeRepo) SlugExists(ctx context.Context, tenantID string, parentID *string, slug, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.nodes {
		if n.TenantID == tenantID && sameParent(n.ParentID, parentID) && n.Slug == slug && n.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeNodeRepo) UpdateTitle(ctx context.Context, tenantID, id, title, slug string, expectedVersion int64) (*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.get(tenantID, id)
	if err != nil {
		return nil, err
	}
	if n.Version != expectedVersion {
		return nil, &domain.VersionConflictError{ResourceType: "node", ResourceID: id, Expected: expectedVersion}
	}
	n.Title = title
	n.Slug = slug
	n.Version++
	n.UpdatedAt = time.Now().UTC()
	return copyNode(n), nil
}

func (r *fakeNodeRepo) Move(ctx context.Context, tenantID, id string, newParentID *string, newPath []string, slug string, expectedVersion int64) (*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.get(tenantID, id)
	if err != nil {
		return nil, err
	}
	if n.Version != expectedVersion {
		return nil, &domain.VersionConflictError{ResourceType: "node", ResourceID: id, Expected: expectedVersion}
	}
	oldDepth := len(n.Path)
	n.ParentID = newParentID
	n.Path = append([]string{}, newPath...)
	n.Slug = slug
	n.Version++
	n.UpdatedAt = time.Now().UTC()

	// Rewrite descendant paths: new prefix + suffix below the moved node.
	for _, d := range r.nodes {
		if d.TenantID == tenantID && d.ID != id && d.HasAncestor(id) {
			suffix := d.Path[oldDepth:]
			d.Path = append(append([]string{}, newPath...), suffix...)
		}
	}
	return copyNode(n), nil
}

func (r *fakeNodeRepo) CompareAndBumpVersion(ctx context.Context, tenantID, id string, expectedVersion int64) (*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.get(tenantID, id)
	if err != nil {
		return nil, err
	}
	if n.Version != expectedVersion {
		return nil, &domain.VersionConflictError{ResourceType: "node", ResourceID: id, Expected: expectedVersion}
	}
	n.Version++
	n.UpdatedAt = time.Now().UTC()
	return copyNode(n), nil
}

func (r *fakeNodeRepo) Delete(ctx context.Context, tenantID, id string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.get(tenantID, id)
	if err != nil {
		return err
	}
	if n.Version != expectedVersion {
		return &domain.VersionConflictError{ResourceType: "node", ResourceID: id, Expected: expectedVersion}
	}
	delete(r.nodes, id)
	return nil
}

func (r *fakeNodeRepo) DeleteDescendants(ctx context.Context, tenantID, rootID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, n := range r.nodes {
		if n.TenantID == tenantID && n.ID != rootID && n.HasAncestor(rootID) {
			delete(r.nodes, id)
		}
	}
	return nil
}

func (r *fakeNodeRepo) HasChildren(ctx context.Context, tenantID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.nodes {
		if n.TenantID == tenantID && n.ParentID != nil && *n.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type fakeRevisionRepo struct {
	mu        sync.Mutex
	revisions map[string][]*models.Revision // documentID -> ascending by revision_no
}

func newFakeRevisionRepo() *fakeRevisionRepo {
	return &fakeRevisionRepo{revisions: map[string][]*models.Revision{}}
}

func (r *fakeRevisionRepo) Insert(ctx context.Context, rev *models.Revision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	revs := r.revisions[rev.DocumentID]
	rev.RevisionNo = int64(len(revs)) + 1
	cp := *rev
	r.revisions[rev.DocumentID] = append(revs, &cp)
	return nil
}

func (r *fakeRevisionRepo) GetByNo(ctx context.Context, documentID string, revisionNo int64) (*models.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rev := range r.revisions[documentID] {
		if rev.RevisionNo == revisionNo {
			cp := *rev
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("revision %d of %s: %w", revisionNo, documentID, domain.ErrNotFound)
}

func (r *fakeRevisionRepo) GetLatest(ctx context.Context, documentID string) (*models.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	revs := r.revisions[documentID]
	if len(revs) == 0 {
		return nil, fmt.Errorf("revisions of %s: %w", documentID, domain.ErrNotFound)
	}
	cp := *revs[len(revs)-1]
	return &cp, nil
}

func (r *fakeRevisionRepo) List(ctx context.Context, documentID string) ([]models.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	revs := r.revisions[documentID]
	out := make([]models.Revision, 0, len(revs))
	for i := len(revs) - 1; i >= 0; i-- {
		cp := *revs[i]
		cp.Ciphertext = nil
		cp.DEKCiphertext = nil
		cp.NonceBase = nil
		out = append(out, cp)
	}
	return out, nil
}

func (r *fakeRevisionRepo) ListStale(ctx context.Context, tenantID string, activeVersion int64, limit int) ([]repositories.StaleRevision, error) {
	return nil, nil
}

func (r *fakeRevisionRepo) UpdateWrappedDEK(ctx context.Context, id string, oldVersion int64, dekCiphertext []byte, newVersion int64) (bool, error) {
	return false, nil
}

func (r *fakeRevisionRepo) DeleteByDocuments(ctx context.Context, documentIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range documentIDs {
		delete(r.revisions, id)
	}
	return nil
}

func (r *fakeRevisionRepo) count(documentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.revisions[documentID])
}

// corruptChecksum overwrites the stored checksum of one revision,
// simulating storage-layer corruption of the column.
func (r *fakeRevisionRepo) corruptChecksum(documentID string, revisionNo int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rev := range r.revisions[documentID] {
		if rev.RevisionNo == revisionNo {
			rev.Checksum = "deadbeef"
		}
	}
}

// corruptCiphertext flips a byte in the middle of a stored ciphertext.
func (r *fakeRevisionRepo) corruptCiphertext(documentID string, revisionNo int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rev := range r.revisions[documentID] {
		if rev.RevisionNo == revisionNo {
			rev.Ciphertext[len(rev.Ciphertext)/2] ^= 0xff
		}
	}
}

type fakeMetadataRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Metadata
}

func newFakeMetadataRepo() *fakeMetadataRepo {
	return &fakeMetadataRepo{rows: map[string]*models.Metadata{}}
}

func (r *fakeMetadataRepo) Create(ctx context.Context, md *models.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *md
	r.rows[md.DocumentID] = &cp
	return nil
}

func (r *fakeMetadataRepo) Get(ctx context.Context, documentID string) (*models.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	md, ok := r.rows[documentID]
	if !ok {
		return nil, fmt.Errorf("metadata %s: %w", documentID, domain.ErrNotFound)
	}
	cp := *md
	return &cp, nil
}

func (r *fakeMetadataRepo) Update(ctx context.Context, documentID string, tags []string, isPublished bool, expectedVersion int64) (*models.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	md, ok := r.rows[documentID]
	if !ok {
		return nil, fmt.Errorf("metadata %s: %w", documentID, domain.ErrNotFound)
	}
	if md.Version != expectedVersion {
		return nil, &domain.VersionConflictError{ResourceType: "metadata", ResourceID: documentID, Expected: expectedVersion}
	}
	md.Tags = append([]string{}, tags...)
	md.IsPublished = isPublished
	md.Version++
	cp := *md
	return &cp, nil
}

func (r *fakeMetadataRepo) DeleteByDocuments(ctx context.Context, documentIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range documentIDs {
		delete(r.rows, id)
	}
	return nil
}

type passthroughTxManager struct{}

func (passthroughTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (s *recordingSink) Emit(ctx context.Context, ev models.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Action
	}
	return out
}

// fakeKeyProvider hands out stable per-version KEKs. Raw keys are copied on
// every call because services wipe them after use.
type fakeKeyProvider struct {
	mu      sync.Mutex
	keks    map[int64][]byte
	active  int64
	failErr error // returned from every lookup when set
}

func newFakeKeyProvider() *fakeKeyProvider {
	p := &fakeKeyProvider{keks: map[int64][]byte{}}
	p.bump()
	return p
}

func (p *fakeKeyProvider) bump() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active++
	kek := make([]byte, 32)
	kek[0] = byte(p.active)
	kek[31] = byte(p.active)
	p.keks[p.active] = kek
	return p.active
}

func (p *fakeKeyProvider) kekCopy(version int64) (*keys.KEK, error) {
	raw, ok := p.keks[version]
	if !ok {
		return nil, fmt.Errorf("kek version %d: %w", version, domain.ErrNotFound)
	}
	return &keys.KEK{Raw: append([]byte{}, raw...), Version: version}, nil
}

func (p *fakeKeyProvider) ActiveKEK(ctx context.Context, tenantID string) (*keys.KEK, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return nil, p.failErr
	}
	return p.kekCopy(p.active)
}

func (p *fakeKeyProvider) KEKByVersion(ctx context.Context, tenantID string, version int64) (*keys.KEK, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return nil, p.failErr
	}
	return p.kekCopy(version)
}

func (p *fakeKeyProvider) Rotate(ctx context.Context, tenantID string) (int64, error) {
	return p.bump(), nil
}

func (p *fakeKeyProvider) EnsureTenant(ctx context.Context, tenantID string) error { return nil }
