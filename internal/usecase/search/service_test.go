package search

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/imgdex/internal/domain"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	"github.com/kailas-cloud/imgdex/internal/domain/search/mode"
	"github.com/kailas-cloud/imgdex/internal/domain/search/request"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
	"github.com/kailas-cloud/imgdex/internal/repository/memory"
)

// --- Mocks ---

type mockDocs struct {
	hits        []domdoc.Hit
	queryErr    error
	docs        []domdoc.Document
	getErr      error
	queryCalled bool
}

func (m *mockDocs) Query(context.Context, string, filter.Expression, int) ([]domdoc.Hit, error) {
	m.queryCalled = true
	return m.hits, m.queryErr
}

func (m *mockDocs) GetMany(_ context.Context, ids []string) ([]domdoc.Document, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domdoc.Document
	for _, d := range m.docs {
		if want[d.ID()] {
			out = append(out, d)
		}
	}
	return out, nil
}

type mockVectors struct {
	hits   []domvec.Hit
	err    error
	called bool
}

func (m *mockVectors) Search(context.Context, []float32, filter.Expression, int, float64) ([]domvec.Hit, error) {
	m.called = true
	return m.hits, m.err
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	return m.vec, m.err
}

func testDoc(t *testing.T, name string, captured time.Time, objects ...string) domdoc.Document {
	t.Helper()
	d, err := domdoc.New([]byte(name), domdoc.Attributes{Name: name, CapturedAt: captured, Width: 800, Height: 600}, objects)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func vhit(d domdoc.Document, score float64) domvec.Hit {
	return domvec.Hit{ID: d.PointID(), Score: score, Payload: domvec.Payload{DocID: d.ID(), ShortID: d.ShortID()}}
}

func newRequest(t *testing.T, m mode.Mode, limit int, c filter.Criteria) *request.Request {
	t.Helper()
	r, err := request.New("dog park", m, limit, 0, c)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return &r
}

func mustNew(t *testing.T, docs DocumentStore, vecs VectorIndex, emb Embedder, opts Options, log *zap.Logger) *Service {
	t.Helper()
	svc, err := New(docs, vecs, emb, opts, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

// --- Tests ---

func TestSearch_LexicalNormalizesByMax(t *testing.T) {
	a := testDoc(t, "a.jpg", time.Time{})
	b := testDoc(t, "b.jpg", time.Time{})
	docs := &mockDocs{hits: []domdoc.Hit{{ID: a.ID(), Score: 8}, {ID: b.ID(), Score: 2}}, docs: []domdoc.Document{a, b}}
	vecs := &mockVectors{}
	svc := mustNew(t, docs, vecs, &mockEmbedder{}, Options{}, zap.NewNop())

	res, err := svc.Search(context.Background(), newRequest(t, mode.Lexical, 10, filter.Criteria{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 2 || res[0].ID() != a.ID() {
		t.Fatalf("unexpected results: %d", len(res))
	}
	if res[0].Score() != 1 || res[1].Score() != 0.25 {
		t.Errorf("scores = %v, %v; want 1, 0.25", res[0].Score(), res[1].Score())
	}
	if vecs.called {
		t.Error("vector index must not be queried in lexical mode")
	}
	if res[0].VectorScore() != nil {
		t.Error("vector sub-score must be absent")
	}
}

func TestSearch_HybridWeights(t *testing.T) {
	both := testDoc(t, "both.jpg", time.Time{})
	vecOnly := testDoc(t, "vec.jpg", time.Time{})
	textOnly := testDoc(t, "text.jpg", time.Time{})

	docs := &mockDocs{
		hits: []domdoc.Hit{{ID: both.ID(), Score: 4}, {ID: textOnly.ID(), Score: 2}},
		docs: []domdoc.Document{both, vecOnly, textOnly},
	}
	vecs := &mockVectors{hits: []domvec.Hit{vhit(both, 0.8), vhit(vecOnly, 0.6)}}
	svc := mustNew(t, docs, vecs, &mockEmbedder{vec: []float32{1}}, Options{}, zap.NewNop())

	res, err := svc.Search(context.Background(), newRequest(t, mode.Hybrid, 10, filter.Criteria{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("len = %d, want 3", len(res))
	}

	want := map[string]float64{
		both.ID():     0.7*0.8 + 0.3*1,
		vecOnly.ID():  0.6,
		textOnly.ID(): 0.5,
	}
	for _, r := range res {
		if math.Abs(r.Score()-want[r.ID()]) > 1e-9 {
			doc := r.Document()
			t.Errorf("score(%s) = %v, want %v", doc.Name(), r.Score(), want[r.ID()])
		}
	}
	if res[0].ID() != both.ID() || res[2].ID() != textOnly.ID() {
		t.Error("results not ordered by combined score")
	}
}

func TestSearch_HybridZeroVectorMatches(t *testing.T) {
	a := testDoc(t, "a.jpg", time.Time{})
	docs := &mockDocs{hits: []domdoc.Hit{{ID: a.ID(), Score: 3}}, docs: []domdoc.Document{a}}
	svc := mustNew(t, docs, &mockVectors{}, &mockEmbedder{vec: []float32{1}}, Options{}, zap.NewNop())

	res, err := svc.Search(context.Background(), newRequest(t, mode.Hybrid, 5, filter.Criteria{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 1 || res[0].VectorScore() != nil || res[0].LexicalScore() == nil {
		t.Fatal("expected lexical-only result without vector sub-score")
	}
	if res[0].Score() != 1 {
		t.Errorf("score = %v, want raw lexical 1", res[0].Score())
	}
}

func TestSearch_TieBreaks(t *testing.T) {
	older := testDoc(t, "older.jpg", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := testDoc(t, "newer.jpg", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	x := testDoc(t, "x.jpg", time.Time{})
	y := testDoc(t, "y.jpg", time.Time{})

	docs := &mockDocs{docs: []domdoc.Document{older, newer, x, y}}
	vecs := &mockVectors{hits: []domvec.Hit{vhit(x, 0.5), vhit(older, 0.5), vhit(y, 0.5), vhit(newer, 0.5)}}
	svc := mustNew(t, docs, vecs, &mockEmbedder{vec: []float32{1}}, Options{}, zap.NewNop())

	res, err := svc.Search(context.Background(), newRequest(t, mode.Vector, 10, filter.Criteria{}))
	if err != nil {
		t.Fatal(err)
	}
	if res[0].ID() != newer.ID() || res[1].ID() != older.ID() {
		t.Fatal("newer capture time must win ties")
	}
	lo, hi := x.ID(), y.ID()
	if hi < lo {
		lo, hi = hi, lo
	}
	if res[2].ID() != lo || res[3].ID() != hi {
		t.Error("equal capture times must order by id")
	}
}

func TestSearch_PostFilterBeforeLimit(t *testing.T) {
	dog := testDoc(t, "dog.jpg", time.Time{}, "dog")
	cat := testDoc(t, "cat.jpg", time.Time{}, "cat")
	docs := &mockDocs{
		// the store ignored the filter; the engine must still drop cat
		hits: []domdoc.Hit{{ID: cat.ID(), Score: 9}, {ID: dog.ID(), Score: 1}},
		docs: []domdoc.Document{dog, cat},
	}
	svc := mustNew(t, docs, &mockVectors{}, &mockEmbedder{}, Options{}, zap.NewNop())

	res, err := svc.Search(context.Background(), newRequest(t, mode.Lexical, 1, filter.Criteria{Objects: []string{"dog"}}))
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ID() != dog.ID() {
		t.Fatal("post-filter must run before truncation")
	}
}

func TestSearch_NearRadius(t *testing.T) {
	at := func(name string, lat, lon float64) domdoc.Document {
		d, err := domdoc.New([]byte(name), domdoc.Attributes{Name: name, Geo: &domdoc.GeoPoint{Lat: lat, Lon: lon}}, nil)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}
	lisbon := at("lisbon.jpg", 38.7223, -9.1393)
	porto := at("porto.jpg", 41.1579, -8.6291)
	nowhere := testDoc(t, "nowhere.jpg", time.Time{})
	docs := &mockDocs{
		hits: []domdoc.Hit{{ID: porto.ID(), Score: 5}, {ID: nowhere.ID(), Score: 4}, {ID: lisbon.ID(), Score: 1}},
		docs: []domdoc.Document{lisbon, porto, nowhere},
	}
	svc := mustNew(t, docs, &mockVectors{}, &mockEmbedder{}, Options{}, zap.NewNop())

	near := &filter.Near{Lat: 38.7369, Lon: -9.1427, RadiusMeters: 10_000}
	res, err := svc.Search(context.Background(), newRequest(t, mode.Lexical, 10, filter.Criteria{Near: near}))
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ID() != lisbon.ID() {
		t.Fatalf("got %d results, want only the Lisbon photo", len(res))
	}
}

func TestSearch_StageErrors(t *testing.T) {
	a := testDoc(t, "a.jpg", time.Time{})
	tests := []struct {
		name      string
		docs      *mockDocs
		vecs      *mockVectors
		emb       *mockEmbedder
		m         mode.Mode
		wantStage Stage
		wantErr   error
	}{
		{
			name: "lexical store down", m: mode.Lexical, wantStage: StageLexicalLookup, wantErr: domain.ErrStore,
			docs: &mockDocs{queryErr: domain.ErrStore}, vecs: &mockVectors{}, emb: &mockEmbedder{},
		},
		{
			name: "embedding failed", m: mode.Vector, wantStage: StageVectorLookup, wantErr: domain.ErrEmbedding,
			docs: &mockDocs{}, vecs: &mockVectors{}, emb: &mockEmbedder{err: domain.ErrEmbedding},
		},
		{
			name: "vector index down", m: mode.Hybrid, wantStage: StageVectorLookup, wantErr: domain.ErrStore,
			docs: &mockDocs{}, vecs: &mockVectors{err: domain.ErrStore}, emb: &mockEmbedder{vec: []float32{1}},
		},
		{
			name: "load failed", m: mode.Lexical, wantStage: StageMerging, wantErr: domain.ErrStore,
			docs: &mockDocs{hits: []domdoc.Hit{{ID: a.ID(), Score: 1}}, getErr: domain.ErrStore},
			vecs: &mockVectors{},
			emb:  &mockEmbedder{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := mustNew(t, tt.docs, tt.vecs, tt.emb, Options{}, zap.NewNop())
			_, err := svc.Search(context.Background(), newRequest(t, tt.m, 5, filter.Criteria{}))
			var se *StageError
			if !errors.As(err, &se) {
				t.Fatalf("expected StageError, got %v", err)
			}
			if se.Stage != tt.wantStage {
				t.Errorf("stage = %s, want %s", se.Stage, tt.wantStage)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSearch_EmptyCorpus(t *testing.T) {
	docs, err := memory.NewDocuments()
	if err != nil {
		t.Fatal(err)
	}
	defer docs.Close()
	svc := mustNew(t, docs, memory.NewVectors(2), &mockEmbedder{vec: []float32{1, 0}}, Options{}, zap.NewNop())

	res, err := svc.Search(context.Background(), newRequest(t, mode.Hybrid, 10, filter.Criteria{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || len(res) != 0 {
		t.Errorf("expected empty non-nil list, got %v", res)
	}
}

func TestSearch_DeterministicOverMemoryBackends(t *testing.T) {
	ctx := context.Background()
	docs, err := memory.NewDocuments()
	if err != nil {
		t.Fatal(err)
	}
	defer docs.Close()
	vecs := memory.NewVectors(2)

	for i, name := range []string{"dog park.jpg", "dog beach.jpg", "cat sofa.jpg", "park bench.jpg"} {
		d := testDoc(t, name, time.Date(2022, 1, i+1, 0, 0, 0, 0, time.UTC))
		emb := d.WithEmbedding("photo of "+name, []float32{1, float32(i)})
		if _, err := docs.Upsert(ctx, &emb); err != nil {
			t.Fatal(err)
		}
		p, _ := emb.Point()
		if err := vecs.Upsert(ctx, &p); err != nil {
			t.Fatal(err)
		}
	}
	svc := mustNew(t, docs, vecs, &mockEmbedder{vec: []float32{1, 1}}, Options{}, zap.NewNop())

	var first []string
	for range 5 {
		res, err := svc.Search(ctx, newRequest(t, mode.Hybrid, 3, filter.Criteria{}))
		if err != nil {
			t.Fatal(err)
		}
		got := make([]string, len(res))
		for i := range res {
			got[i] = res[i].ID()
		}
		if first == nil {
			first = got
			continue
		}
		if len(got) != len(first) {
			t.Fatalf("run returned %d results, first run %d", len(got), len(first))
		}
		for i := range got {
			if got[i] != first[i] {
				t.Fatal("hybrid ordering is not deterministic")
			}
		}
	}
	if len(first) != 3 {
		t.Errorf("len = %d, want limit 3", len(first))
	}
}

func TestRequest_LimitMustBePositive(t *testing.T) {
	_, err := request.New("dog", mode.Hybrid, 0, 0, filter.Criteria{})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func loggedStages(logs *observer.ObservedLogs) []string {
	var stages []string
	for _, e := range logs.All() {
		if st, ok := e.ContextMap()["stage"].(string); ok {
			stages = append(stages, st)
		}
	}
	return stages
}

func TestSearch_LogsStages(t *testing.T) {
	a := testDoc(t, "a.jpg", time.Time{})
	core, logs := observer.New(zapcore.DebugLevel)
	docs := &mockDocs{hits: []domdoc.Hit{{ID: a.ID(), Score: 1}}, docs: []domdoc.Document{a}}
	svc := mustNew(t, docs, &mockVectors{}, &mockEmbedder{}, Options{}, zap.New(core))

	if _, err := svc.Search(context.Background(), newRequest(t, mode.Lexical, 5, filter.Criteria{})); err != nil {
		t.Fatal(err)
	}
	want := []string{string(StageReceived), string(StageRanked), string(StageReturned)}
	if got := loggedStages(logs); !slices.Equal(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
}

func TestSearch_LogsFailedStage(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	docs := &mockDocs{queryErr: domain.ErrStore}
	svc := mustNew(t, docs, &mockVectors{}, &mockEmbedder{}, Options{}, zap.New(core))

	if _, err := svc.Search(context.Background(), newRequest(t, mode.Lexical, 5, filter.Criteria{})); err == nil {
		t.Fatal("expected error")
	}
	failed := logs.FilterMessage("Search failed").All()
	if len(failed) != 1 {
		t.Fatalf("got %d failure logs, want 1", len(failed))
	}
	fields := failed[0].ContextMap()
	if fields["stage"] != string(StageFailed) || fields["failed_stage"] != string(StageLexicalLookup) {
		t.Errorf("failure fields = %v", fields)
	}
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name string
		w    Weights
		ok   bool
	}{
		{"defaults", Weights{Vector: 0.7, Text: 0.3}, true},
		{"vector only", Weights{Vector: 1}, true},
		{"text only", Weights{Text: 1}, true},
		{"zero", Weights{}, false},
		{"sum above one", Weights{Vector: 1, Text: 1}, false},
		{"sum below one", Weights{Vector: 0.2, Text: 0.2}, false},
		{"negative", Weights{Vector: 1.5, Text: -0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(tt.w)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestNew_RejectsWeightsOutsideUnitSum(t *testing.T) {
	_, err := New(&mockDocs{}, &mockVectors{}, &mockEmbedder{}, Options{Weights: Weights{Vector: 1, Text: 1}}, zap.NewNop())
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSearch_HybridScoresStayInUnitRange(t *testing.T) {
	ctx := context.Background()
	docs, err := memory.NewDocuments()
	if err != nil {
		t.Fatal(err)
	}
	defer docs.Close()
	vecs := memory.NewVectors(2)

	d := testDoc(t, "dog park.jpg", time.Time{})
	emb := d.WithEmbedding("dog park", []float32{1, 0})
	if _, err := docs.Upsert(ctx, &emb); err != nil {
		t.Fatal(err)
	}
	p, _ := emb.Point()
	if err := vecs.Upsert(ctx, &p); err != nil {
		t.Fatal(err)
	}

	svc := mustNew(t, docs, vecs, &mockEmbedder{vec: []float32{1, 0}}, Options{Weights: Weights{Vector: 0.5, Text: 0.5}}, zap.NewNop())
	res, err := svc.Search(ctx, newRequest(t, mode.Hybrid, 5, filter.Criteria{}))
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Fatalf("len = %d, want 1", len(res))
	}
	if s := res[0].Score(); s < 0 || s > 1+1e-9 {
		t.Errorf("hybrid score %v outside [0,1]", s)
	}
}
