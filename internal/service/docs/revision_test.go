package docs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"docvault/internal/crypto/envelope"
	"docvault/internal/domain"
	"docvault/internal/domain/models"
	"docvault/internal/domain/services"
)

type revisionFixture struct {
	*treeFixture
	svc  services.RevisionService
	keks *fakeKeyProvider
}

func newRevisionFixture(t *testing.T) *revisionFixture {
	t.Helper()
	tf := newTreeFixture(t)
	keks := newFakeKeyProvider()
	svc := NewRevisionService(tf.nodes, tf.revs, passthroughTxManager{}, keks, envelope.New(64), tf.sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &revisionFixture{treeFixture: tf, svc: svc, keks: keks}
}

func (f *revisionFixture) mustAppend(t *testing.T, tenantID, documentID string, expectedVersion int64, content string) *models.Revision {
	t.Helper()
	rev, err := f.svc.AppendRevision(context.Background(), &services.AppendRevisionRequest{
		TenantID:        tenantID,
		DocumentID:      documentID,
		ExpectedVersion: expectedVersion,
		Content:         strings.NewReader(content),
		ContentType:     "text/markdown",
		CreatedBy:       "user-1",
	})
	if err != nil {
		t.Fatalf("AppendRevision() error = %v", err)
	}
	return rev
}

func (f *revisionFixture) mustRead(t *testing.T, tenantID, documentID string, revisionNo int64) (string, *models.Revision) {
	t.Helper()
	r, rev, err := f.svc.GetRevision(context.Background(), tenantID, documentID, revisionNo)
	if err != nil {
		t.Fatalf("GetRevision() error = %v", err)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return string(content), rev
}

func TestAppendAndReadRevision(t *testing.T) {
	f := newRevisionFixture(t)
	folder := f.mustCreate(t, "acme", nil, models.NodeKindFolder, "Matters")
	doc := f.mustCreate(t, "acme", &folder.ID, models.NodeKindDocument, "intake.md")

	rev := f.mustAppend(t, "acme", doc.ID, 1, "hello")
	if rev.RevisionNo != 1 {
		t.Errorf("revision_no = %d, want 1", rev.RevisionNo)
	}
	if rev.SizeBytes != 5 {
		t.Errorf("size_bytes = %d, want 5", rev.SizeBytes)
	}
	if rev.KEKVersion != 1 {
		t.Errorf("kek_version = %d, want 1", rev.KEKVersion)
	}
	if rev.Ciphertext != nil || rev.DEKCiphertext != nil {
		t.Error("returned metadata carries key or content material")
	}

	node, err := f.treeFixture.svc.GetNode(context.Background(), "acme", doc.ID)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if node.Version != 2 {
		t.Errorf("node version after append = %d, want 2", node.Version)
	}

	got, meta := f.mustRead(t, "acme", doc.ID, 1)
	if got != "hello" {
		t.Errorf("GetRevision() content = %q, want %q", got, "hello")
	}
	if meta.RevisionNo != 1 {
		t.Errorf("GetRevision() revision_no = %d, want 1", meta.RevisionNo)
	}
}

func TestAppendStaleVersionConflict(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "intake.md")
	f.mustAppend(t, "acme", doc.ID, 1, "hello")

	// A second writer holding the original version loses.
	_, err := f.svc.AppendRevision(context.Background(), &services.AppendRevisionRequest{
		TenantID:        "acme",
		DocumentID:      doc.ID,
		ExpectedVersion: 1,
		Content:         strings.NewReader("rival"),
	})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("AppendRevision() stale error = %v, want ErrVersionConflict", err)
	}
	// The loser persisted nothing.
	if n := f.revs.count(doc.ID); n != 1 {
		t.Errorf("revision count after conflict = %d, want 1", n)
	}
	// Winner's content is intact.
	if got, _ := f.mustRead(t, "acme", doc.ID, 0); got != "hello" {
		t.Errorf("latest content = %q, want %q", got, "hello")
	}
}

func TestRevisionNumbersGapless(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "x")

	for i := int64(1); i <= 4; i++ {
		rev := f.mustAppend(t, "acme", doc.ID, i, strings.Repeat("v", int(i)))
		if rev.RevisionNo != i {
			t.Errorf("revision_no = %d, want %d", rev.RevisionNo, i)
		}
	}

	list, err := f.svc.ListRevisions(context.Background(), "acme", doc.ID)
	if err != nil {
		t.Fatalf("ListRevisions() error = %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("ListRevisions() = %d revisions, want 4", len(list))
	}
	for i, rev := range list {
		if want := int64(4 - i); rev.RevisionNo != want {
			t.Errorf("list[%d].RevisionNo = %d, want %d", i, rev.RevisionNo, want)
		}
		if rev.Ciphertext != nil {
			t.Error("listing leaked ciphertext")
		}
	}
}

func TestGetRevisionLatest(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "x")
	f.mustAppend(t, "acme", doc.ID, 1, "one")
	f.mustAppend(t, "acme", doc.ID, 2, "two")

	got, meta := f.mustRead(t, "acme", doc.ID, 0)
	if got != "two" || meta.RevisionNo != 2 {
		t.Errorf("latest = %q rev %d, want %q rev 2", got, meta.RevisionNo, "two")
	}

	// Historical revision stays readable.
	got, _ = f.mustRead(t, "acme", doc.ID, 1)
	if got != "one" {
		t.Errorf("revision 1 = %q, want %q", got, "one")
	}
}

func TestGetRevisionMissing(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "x")

	if _, _, err := f.svc.GetRevision(context.Background(), "acme", doc.ID, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetRevision() on empty document error = %v, want ErrNotFound", err)
	}
}

func TestAppendToFolderRejected(t *testing.T) {
	f := newRevisionFixture(t)
	folder := f.mustCreate(t, "acme", nil, models.NodeKindFolder, "F")

	_, err := f.svc.AppendRevision(context.Background(), &services.AppendRevisionRequest{
		TenantID:        "acme",
		DocumentID:      folder.ID,
		ExpectedVersion: 1,
		Content:         strings.NewReader("x"),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("AppendRevision() to folder error = %v, want ErrValidation", err)
	}
}

func TestGetRevisionTenantScoped(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "x")
	f.mustAppend(t, "acme", doc.ID, 1, "secret")

	if _, _, err := f.svc.GetRevision(context.Background(), "rival", doc.ID, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetRevision() across tenants error = %v, want ErrNotFound", err)
	}
}

func TestGetRevisionTamperedCiphertext(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "x")
	f.mustAppend(t, "acme", doc.ID, 1, strings.Repeat("payload ", 40))
	f.revs.corruptCiphertext(doc.ID, 1)

	r, _, err := f.svc.GetRevision(context.Background(), "acme", doc.ID, 1)
	if err != nil {
		t.Fatalf("GetRevision() error = %v", err)
	}
	if _, err := io.ReadAll(r); !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("ReadAll() error = %v, want ErrAuthentication", err)
	}

	actions := f.sink.actions()
	if len(actions) == 0 || actions[len(actions)-1] != models.AuditActionAuthFailed {
		t.Errorf("audit actions = %v, want trailing %s", actions, models.AuditActionAuthFailed)
	}
}

func TestGetRevisionCorruptedChecksum(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "x")
	f.mustAppend(t, "acme", doc.ID, 1, "hello")
	f.revs.corruptChecksum(doc.ID, 1)

	r, _, err := f.svc.GetRevision(context.Background(), "acme", doc.ID, 1)
	if err != nil {
		t.Fatalf("GetRevision() error = %v", err)
	}
	if _, err := io.ReadAll(r); !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("ReadAll() error = %v, want ErrIntegrity", err)
	}

	actions := f.sink.actions()
	if len(actions) == 0 || actions[len(actions)-1] != models.AuditActionChecksumFailed {
		t.Errorf("audit actions = %v, want trailing %s", actions, models.AuditActionChecksumFailed)
	}
}

func TestGetRevisionUnwrapFailure(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "x")
	f.mustAppend(t, "acme", doc.ID, 1, "hello")

	// Swap the KEK bytes for version 1 so the stored wrapped DEK no longer
	// unwraps.
	f.keks.keks[1] = bytes.Repeat([]byte{0xEE}, 32)

	_, _, err := f.svc.GetRevision(context.Background(), "acme", doc.ID, 1)
	if !errors.Is(err, domain.ErrUnwrap) {
		t.Fatalf("GetRevision() error = %v, want ErrUnwrap", err)
	}

	actions := f.sink.actions()
	if len(actions) == 0 || actions[len(actions)-1] != models.AuditActionUnwrapFailed {
		t.Errorf("audit actions = %v, want trailing %s", actions, models.AuditActionUnwrapFailed)
	}
}

func TestAppendMultiChunkContent(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "big")

	// Well past the fixture's 64-byte chunk size.
	content := strings.Repeat("0123456789abcdef", 1024)
	rev := f.mustAppend(t, "acme", doc.ID, 1, content)
	if rev.SizeBytes != int64(len(content)) {
		t.Errorf("size_bytes = %d, want %d", rev.SizeBytes, len(content))
	}

	got, _ := f.mustRead(t, "acme", doc.ID, 1)
	if got != content {
		t.Errorf("round-tripped %d bytes, want %d matching bytes", len(got), len(content))
	}
}

func TestAppendKeyProviderDown(t *testing.T) {
	f := newRevisionFixture(t)
	doc := f.mustCreate(t, "acme", nil, models.NodeKindDocument, "x")
	f.keks.failErr = &domain.KeyProviderUnavailableError{Backend: "test", Err: errors.New("down")}

	_, err := f.svc.AppendRevision(context.Background(), &services.AppendRevisionRequest{
		TenantID:        "acme",
		DocumentID:      doc.ID,
		ExpectedVersion: 1,
		Content:         strings.NewReader("x"),
	})
	if !errors.Is(err, domain.ErrKeyProviderUnavailable) {
		t.Errorf("AppendRevision() error = %v, want ErrKeyProviderUnavailable", err)
	}
	if n := f.revs.count(doc.ID); n != 0 {
		t.Errorf("revision count = %d, want 0", n)
	}
}
