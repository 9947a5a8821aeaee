package document

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/repository/memory"
)

// --- Mocks ---

type mockPoints struct {
	deleted []uint64
	err     error
}

func (m *mockPoints) Delete(_ context.Context, id uint64) error {
	m.deleted = append(m.deleted, id)
	return m.err
}

type failingRepo struct {
	*memory.Documents
	getErr error
}

func (f *failingRepo) Get(context.Context, string) (domdoc.Document, error) {
	return domdoc.Document{}, f.getErr
}

func newService(t *testing.T) (*Service, *memory.Documents, *mockPoints) {
	t.Helper()
	docs, err := memory.NewDocuments()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = docs.Close() })
	pts := &mockPoints{}
	return New(docs, pts, zap.NewNop()), docs, pts
}

func attrs(name string) domdoc.Attributes {
	return domdoc.Attributes{Name: name, Width: 640, Height: 480}
}

// --- Tests ---

func TestIngest_CreatesUnprocessed(t *testing.T) {
	svc, _, _ := newService(t)

	doc, created, err := svc.Ingest(context.Background(), []byte("jpeg"), attrs("a.jpg"), []string{"dog"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if doc.ID() != domdoc.ContentID([]byte("jpeg")) {
		t.Errorf("id not derived from content")
	}
	got, err := svc.Get(context.Background(), doc.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Processed() {
		t.Error("ingested document must be unprocessed")
	}
}

func TestIngest_IdenticalBytesNoop(t *testing.T) {
	svc, docs, _ := newService(t)
	ctx := context.Background()

	first, _, err := svc.Ingest(ctx, []byte("same"), attrs("first.jpg"), nil)
	if err != nil {
		t.Fatal(err)
	}
	emb := first.WithEmbedding("described", []float32{1})
	if _, err := docs.Upsert(ctx, &emb); err != nil {
		t.Fatal(err)
	}

	again, created, err := svc.Ingest(ctx, []byte("same"), attrs("renamed.jpg"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected created=false for identical bytes")
	}
	if again.Name() != "first.jpg" || again.Description() != "described" {
		t.Error("existing document must be returned unchanged")
	}
}

func TestIngest_Validation(t *testing.T) {
	svc, _, _ := newService(t)
	_, _, err := svc.Ingest(context.Background(), nil, attrs("a.jpg"), nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestIngest_LookupError(t *testing.T) {
	docs, _ := memory.NewDocuments()
	defer docs.Close()
	svc := New(&failingRepo{Documents: docs, getErr: domain.ErrStore}, &mockPoints{}, zap.NewNop())

	_, _, err := svc.Ingest(context.Background(), []byte("x"), attrs("a.jpg"), nil)
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDelete_RemovesDocumentThenPoint(t *testing.T) {
	svc, _, pts := newService(t)
	ctx := context.Background()
	doc, _, _ := svc.Ingest(ctx, []byte("x"), attrs("a.jpg"), nil)

	if err := svc.Delete(ctx, doc.ID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts.deleted) != 1 || pts.deleted[0] != doc.PointID() {
		t.Errorf("deleted points = %v, want [%d]", pts.deleted, doc.PointID())
	}
	if _, err := svc.Get(ctx, doc.ID()); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Error("document still present")
	}
}

func TestDelete_PointFailureTolerated(t *testing.T) {
	svc, _, pts := newService(t)
	pts.err = domain.ErrStore
	ctx := context.Background()
	doc, _, _ := svc.Ingest(ctx, []byte("x"), attrs("a.jpg"), nil)

	if err := svc.Delete(ctx, doc.ID()); err != nil {
		t.Fatalf("point failure must not fail delete: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	svc, _, pts := newService(t)
	err := svc.Delete(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if len(pts.deleted) != 0 {
		t.Error("point must not be touched when the document is missing")
	}
}

func TestList_Pages(t *testing.T) {
	svc, _, _ := newService(t)
	svc.WithPagination(2, 2)
	ctx := context.Background()
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		if _, _, err := svc.Ingest(ctx, []byte(c), attrs(c+".jpg"), nil); err != nil {
			t.Fatal(err)
		}
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		docs, next, err := svc.List(ctx, cursor, 10)
		if err != nil {
			t.Fatal(err)
		}
		pages++
		for _, d := range docs {
			if seen[d.ID()] {
				t.Fatalf("document %s listed twice", d.ShortID())
			}
			seen[d.ID()] = true
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(seen) != 5 || pages != 3 {
		t.Errorf("seen %d docs over %d pages, want 5 over 3", len(seen), pages)
	}
}

func TestSuggest(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	for i, n := range []string{"IMG_1.jpg", "IMG_2.jpg", "DSC_1.jpg"} {
		if _, _, err := svc.Ingest(ctx, []byte{byte(i)}, attrs(n), nil); err != nil {
			t.Fatal(err)
		}
	}

	names, err := svc.Suggest(ctx, "IMG", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Errorf("names = %v, want the two IMG_ files", names)
	}
}
