package redis

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/imgdex/internal/db"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
)

// --- index.go ---

func TestCreateIndex_SortableJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var got []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			got = cmd
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	def := db.NewIndex("imgdex:doc:idx").
		OnJSON().
		Prefix("imgdex:doc:").
		TagAs("$.id", "id").Sortable().
		MustBuild()

	if err := NewStoreForTest(c).CreateIndex(context.Background(), def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "FT.CREATE imgdex:doc:idx ON JSON PREFIX 1 imgdex:doc: SCHEMA $.id AS id TAG SORTABLE"
	if strings.Join(got, " ") != want {
		t.Errorf("command = %q\nwant      %q", strings.Join(got, " "), want)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.Result(mock.RedisError("Index already exists")))

	def := db.NewIndex("idx").Tag("x").MustBuild()
	err := NewStoreForTest(c).CreateIndex(context.Background(), def)
	if !errors.Is(err, db.ErrIndexExists) {
		t.Fatalf("expected ErrIndexExists, got %v", err)
	}
}

func TestIndexExists_Unknown(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "imgdex:vec:idx")).
		Return(mock.Result(mock.RedisError("Unknown index name")))

	ok, err := NewStoreForTest(c).IndexExists(context.Background(), "imgdex:vec:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected index to be reported missing")
	}
}

// --- search.go ---

func TestSearchKNN_ScoresAndArgs(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var got []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			got = cmd
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("imgdex:vec:1"),
			mock.RedisArray(
				mock.RedisString("__vector_score"), mock.RedisString("0.1"),
				mock.RedisString("short_id"), mock.RedisString("aaaa"),
			),
			mock.RedisString("imgdex:vec:2"),
			mock.RedisArray(
				mock.RedisString("__vector_score"), mock.RedisString("1.4"),
				mock.RedisString("short_id"), mock.RedisString("bbbb"),
			),
		)))

	cond, _ := filter.NewMatch("objects", "dog")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	res, err := NewStoreForTest(c).SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:    "imgdex:vec:idx",
		Filters:      expr,
		Vector:       []float32{0.1, 0.2},
		K:            5,
		ReturnFields: []string{"short_id"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[2] != "(@objects:{dog})=>[KNN 5 @vector $BLOB]" {
		t.Errorf("query = %q", got[2])
	}
	if !slices.Contains(got, "__vector_score") || !slices.Contains(got, "SORTBY") {
		t.Errorf("expected score field and SORTBY in %v", got)
	}
	if s := res.Entries[0].Score; s < 0.89 || s > 0.91 {
		t.Errorf("score[0] = %f, want ~0.9", s)
	}
	if res.Entries[1].Score != 0 {
		t.Errorf("negative similarity must clamp to 0, got %f", res.Entries[1].Score)
	}
	if _, ok := res.Entries[0].Fields["__vector_score"]; ok {
		t.Error("__vector_score must be stripped from fields")
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	if _, err := s.SearchKNN(ctx, &db.KNNQuery{Vector: []float32{0.1}, K: 10}); err == nil {
		t.Error("expected error for empty index name")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", K: 10}); err == nil {
		t.Error("expected error for empty vector")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1}}); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestSearchText(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "@name|description:(dog|beach)"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("imgdex:doc:abc"),
			mock.RedisString("3.5"),
			mock.RedisArray(mock.RedisString("name"), mock.RedisString("beach.jpg")),
		)))

	res, err := NewStoreForTest(c).SearchText(context.Background(), &db.TextQuery{
		IndexName: "imgdex:doc:idx",
		Query:     "dog beach",
		Fields:    []string{"name", "description"},
		TopK:      10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Score != 3.5 {
		t.Fatalf("unexpected entries: %+v", res.Entries)
	}
}

func TestSearchText_EmptyQueryScoresOne(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "*"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("imgdex:doc:abc"),
			mock.RedisString("0"),
			mock.RedisArray(),
		)))

	res, err := NewStoreForTest(c).SearchText(context.Background(), &db.TextQuery{IndexName: "idx", TopK: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Entries[0].Score != 1 {
		t.Errorf("score = %f, want 1", res.Entries[0].Score)
	}
}

func TestBuildTextQuery(t *testing.T) {
	cond, _ := filter.NewMatch("place", "madrid")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	tests := []struct {
		name string
		q    db.TextQuery
		want string
	}{
		{"all fields", db.TextQuery{Query: "red car"}, "(red|car)"},
		{"escaped", db.TextQuery{Query: "e-mail @home"}, `(e\-mail|\@home)`},
		{"filter only", db.TextQuery{Filters: expr}, "@place:{madrid}"},
		{"filter and text", db.TextQuery{Query: "dog", Fields: []string{"name"}, Filters: expr}, "@place:{madrid} @name:(dog)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildTextQuery(&tt.q); got != tt.want {
				t.Errorf("buildTextQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchList_Sorted(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match(
			"FT.SEARCH", "imgdex:doc:idx", "@processed:{false}",
			"RETURN", "1", "id",
			"SORTBY", "id", "ASC",
			"LIMIT", "0", "50", "DIALECT", "2",
		)).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("imgdex:doc:a"),
			mock.RedisArray(mock.RedisString("id"), mock.RedisString("a")),
		)))

	res, err := NewStoreForTest(c).SearchList(context.Background(), &db.ListQuery{
		IndexName: "imgdex:doc:idx",
		Query:     "@processed:{false}",
		Limit:     50,
		Fields:    []string{"id"},
		SortBy:    "id",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Entries[0].Fields["id"] != "a" {
		t.Errorf("unexpected entries: %+v", res.Entries)
	}
}

func TestSearchCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "idx", "*", "LIMIT", "0", "0", "DIALECT", "2")).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(42))))

	n, err := NewStoreForTest(c).SearchCount(context.Background(), "idx", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("count = %d, want 42", n)
	}
}

func TestSearch_ErrorIsDBError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().Do(gomock.Any(), gomock.Any()).Return(mock.ErrorResult(context.DeadlineExceeded))

	_, err := NewStoreForTest(c).SearchCount(context.Background(), "idx", "*")
	if !isDBError(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped db.Error, got %v", err)
	}
}

// --- filter building ---

func TestBuildFilter(t *testing.T) {
	place, _ := filter.NewMatch("place", "gran via")
	gte := 1000.0
	rng, _ := filter.NewRangeFilter(filter.Inclusive(&gte), nil)
	width, _ := filter.NewRange("width", rng)
	draft, _ := filter.NewMatch("processed", "false")

	expr, _ := filter.NewExpression(
		[]filter.Condition{place, width}, nil, []filter.Condition{draft},
	)

	got := buildFilter(expr)
	want := `@place:{gran\ via} @width:[1000 +inf] -@processed:{false}`
	if got != want {
		t.Errorf("buildFilter() = %q, want %q", got, want)
	}
	if buildFilter(filter.Expression{}) != "" {
		t.Error("empty expression must produce empty filter")
	}
}

func TestVectorToBytes(t *testing.T) {
	if b := vectorToBytes([]float32{1, 2, 3}); len(b) != 12 {
		t.Fatalf("expected 12 bytes, got %d", len(b))
	}
}
