package memory

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/kailas-cloud/imgdex/internal/domain"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
)

func newDoc(t *testing.T, content, name, city string, objects ...string) domdoc.Document {
	t.Helper()
	doc, err := domdoc.New([]byte(content), domdoc.Attributes{
		Name:       name,
		Width:      1024,
		Height:     768,
		CapturedAt: time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC),
		Place:      domdoc.Place{City: city},
	}, objects)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func newStore(t *testing.T) *Documents {
	t.Helper()
	s, err := NewDocuments()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDocuments_UpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	doc := newDoc(t, "a", "beach.jpg", "Nice", "sea")

	created, err := s.Upsert(ctx, &doc)
	if err != nil || !created {
		t.Fatalf("created=%v err=%v", created, err)
	}
	created, err = s.Upsert(ctx, &doc)
	if err != nil || created {
		t.Fatalf("second upsert created=%v err=%v", created, err)
	}

	got, err := s.Get(ctx, doc.ID())
	if err != nil || got.Name() != "beach.jpg" {
		t.Fatalf("get = %v %v", got.Name(), err)
	}

	if err := s.Delete(ctx, doc.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, doc.ID()); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := s.Delete(ctx, doc.ID()); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound on second delete, got %v", err)
	}
}

func TestDocuments_QueryTextAndFilters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	beach := newDoc(t, "a", "beach.jpg", "Nice", "sea", "umbrella")
	beach = beach.WithEmbedding("a sunny beach with umbrellas", []float32{1})
	city := newDoc(t, "b", "street.jpg", "Paris", "car")
	city = city.WithEmbedding("a busy street near the beach road", []float32{1})
	for _, d := range []domdoc.Document{beach, city} {
		if _, err := s.Upsert(ctx, &d); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := s.Query(ctx, "beach", filter.Expression{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Score < hits[1].Score {
		t.Fatalf("hits = %+v", hits)
	}

	cond, _ := filter.NewMatch(filter.FieldPlace, "paris")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)
	hits, err = s.Query(ctx, "beach", expr, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != city.ID() {
		t.Fatalf("filtered hits = %+v", hits)
	}

	hits, err = s.Query(ctx, "", expr, 10)
	if err != nil || len(hits) != 1 || hits[0].Score != 1 {
		t.Fatalf("browse hits = %+v err=%v", hits, err)
	}
}

func TestDocuments_Selections(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	pending := newDoc(t, "p", "p.jpg", "")
	embedded := newDoc(t, "e", "e.jpg", "")
	embedded = embedded.WithEmbedding("d", []float32{1})
	done := newDoc(t, "d", "d.jpg", "")
	done = done.WithEmbedding("d", []float32{1})
	done, _ = done.MarkProcessed(time.Now())
	for _, d := range []domdoc.Document{pending, embedded, done} {
		if _, err := s.Upsert(ctx, &d); err != nil {
			t.Fatal(err)
		}
	}

	unprocessed, _ := s.FindUnprocessed(ctx, 10)
	want := []string{pending.ID(), embedded.ID()}
	slices.Sort(want)
	if !slices.Equal(unprocessed, want) {
		t.Errorf("unprocessed = %v", unprocessed)
	}
	missing, _ := s.FindMissingEmbeddings(ctx, 10)
	if !slices.Equal(missing, []string{pending.ID()}) {
		t.Errorf("missing = %v", missing)
	}
	cands, _ := s.FindSyncCandidates(ctx, 10)
	want = []string{embedded.ID(), done.ID()}
	slices.Sort(want)
	if !slices.Equal(cands, want) {
		t.Errorf("candidates = %v", cands)
	}

	c, _ := s.Counts(ctx)
	if c.Total != 3 || c.Processed != 1 || c.WithEmbedding != 2 || c.NeedsSync != 1 {
		t.Errorf("counts = %+v", c)
	}
}

func TestDocuments_Suggest(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i, name := range []string{"IMG_2.jpg", "IMG_1.jpg", "DSC_1.jpg"} {
		d := newDoc(t, string(rune('a'+i)), name, "")
		if _, err := s.Upsert(ctx, &d); err != nil {
			t.Fatal(err)
		}
	}
	dup := newDoc(t, "z", "IMG_1.jpg", "")
	if _, err := s.Upsert(ctx, &dup); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Suggest(ctx, "img", 5)
	if !slices.Equal(got, []string{"IMG_1.jpg", "IMG_2.jpg"}) {
		t.Errorf("got %v", got)
	}
}

func TestVectors_SearchOrderAndThreshold(t *testing.T) {
	ctx := context.Background()
	v := NewVectors(2)
	points := []domvec.Point{
		{ID: 3, Vector: []float32{1, 0}, Payload: domvec.Payload{Objects: []string{"dog"}}},
		{ID: 1, Vector: []float32{1, 0}, Payload: domvec.Payload{Objects: []string{"cat"}}},
		{ID: 2, Vector: []float32{0, 1}},
	}
	for i := range points {
		if err := v.Upsert(ctx, &points[i]); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := v.Search(ctx, []float32{1, 0}, filter.Expression{}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].ID != 1 || hits[1].ID != 3 {
		t.Fatalf("hits = %+v", hits)
	}

	cond, _ := filter.NewMatch(filter.FieldObjects, "dog")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)
	hits, _ = v.Search(ctx, []float32{1, 0}, expr, 10, 0)
	if len(hits) != 1 || hits[0].ID != 3 {
		t.Fatalf("filtered hits = %+v", hits)
	}
}

func TestVectors_DimensionsAndList(t *testing.T) {
	ctx := context.Background()
	v := NewVectors(2)
	bad := domvec.Point{ID: 1, Vector: []float32{1}}
	if err := v.Upsert(ctx, &bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	for _, id := range []uint64{9, 4} {
		p := domvec.Point{ID: id, Vector: []float32{1, 1}, Payload: domvec.Payload{ShortID: "s"}}
		if err := v.Upsert(ctx, &p); err != nil {
			t.Fatal(err)
		}
	}
	refs, _ := v.ListPoints(ctx)
	if len(refs) != 2 || refs[0].ID != 4 {
		t.Fatalf("refs = %+v", refs)
	}
	_ = v.Delete(ctx, 4)
	if n, _ := v.Count(ctx); n != 1 {
		t.Fatalf("count = %d", n)
	}
}
