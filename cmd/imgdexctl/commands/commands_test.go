package commands

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const memoryConfig = `
http:
  port: 8080
database:
  driver: memory
vector:
  dimensions: 4
models:
  description:
    provider: anthropic
    model: claude-haiku
    base_url: http://127.0.0.1:1
  embedding:
    model: nomic-embed-text
    base_url: http://127.0.0.1:1
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imgdex.yaml")
	if err := os.WriteFile(path, []byte(memoryConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIngest_DirectoryAndDuplicates(t *testing.T) {
	cfg := writeConfig(t)
	dir := t.TempDir()
	a := writePNG(t, dir, "beach.png", 3, 2)
	writePNG(t, dir, "forest.png", 5, 5)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	// The directory yields both images; the explicit path repeats one of them.
	out, err := execute(t, "--config", cfg, "--json", "ingest", dir, a, "--objects", "Sea")
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}

	var got batchOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.Succeeded != 2 || got.Skipped != 1 || got.Failed != 0 {
		t.Errorf("got %+v, want 2 succeeded, 1 skipped", got)
	}
}

func TestIngest_NoImages(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "--config", writeConfig(t), "ingest", dir)
	if err == nil || !strings.Contains(err.Error(), "no image files") {
		t.Errorf("err = %v", err)
	}
}

func TestReadItem_Dimensions(t *testing.T) {
	path := writePNG(t, t.TempDir(), "a.png", 7, 4)
	captured, _ := parseDate("2024-06-01")

	item, err := readItem(path, &ingestOptions{city: "Lisbon", geo: []float64{38.72, -9.14}}, &captured)
	if err != nil {
		t.Fatal(err)
	}
	attrs := item.Attributes
	if attrs.Width != 7 || attrs.Height != 4 {
		t.Errorf("dimensions = %dx%d", attrs.Width, attrs.Height)
	}
	if attrs.Name != "a.png" || !filepath.IsAbs(attrs.Path) {
		t.Errorf("name/path = %q/%q", attrs.Name, attrs.Path)
	}
	if attrs.Geo == nil || attrs.Geo.Lat != 38.72 {
		t.Errorf("geo = %+v", attrs.Geo)
	}
	if !attrs.CapturedAt.Equal(captured) || attrs.Place.City != "Lisbon" {
		t.Errorf("attrs = %+v", attrs)
	}
}

func TestStats_EmptyCorpus(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "total: 0") || !strings.Contains(out, "completeness: 0") {
		t.Errorf("unexpected YAML:\n%s", out)
	}
}

func TestSearch_RejectsBeforeWiring(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown mode", []string{"search", "dog", "--mode", "fuzzy"}},
		{"vector without text", []string{"search", "--mode", "vector"}},
		{"bad date", []string{"search", "dog", "--after", "yesterday"}},
		{"zero limit", []string{"search", "dog", "--limit", "0"}},
		{"near needs two values", []string{"search", "dog", "--near", "38.7"}},
		{"near out of range", []string{"search", "dog", "--near", "95,0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A missing config would fail wiring, so an error here comes from validation.
			args := append([]string{"--config", "/nonexistent.yaml"}, tt.args...)
			_, err := execute(t, args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if strings.Contains(err.Error(), "nonexistent") {
				t.Errorf("request was not validated before loading config: %v", err)
			}
		})
	}
}

func TestSearch_LexicalEmpty(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "--json", "search", "beach", "--mode", "lexical")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var got searchOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Items == nil || got.Total != 0 {
		t.Errorf("got %+v, want empty non-nil list", got)
	}
}

func TestDelete_UnknownID(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "--json", "delete", "missing")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	var got batchOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Failed != 1 || got.Items[0].Error == "" {
		t.Errorf("got %+v", got)
	}
}

func TestParseDate(t *testing.T) {
	if _, err := parseDate("2024-01-02"); err != nil {
		t.Error(err)
	}
	if _, err := parseDate("2024-01-02T10:00:00Z"); err != nil {
		t.Error(err)
	}
	if _, err := parseDate("02/01/2024"); err == nil {
		t.Error("expected error")
	}
}
