package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/supportqa/internal/corpus"
	"github.com/kalambet/supportqa/internal/storage"
)

type mockEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.texts = append(m.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func openEntryStore(t *testing.T) *corpus.SQLiteStore {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return corpus.NewSQLiteStore(s.DB())
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want []string
	}{
		{"packs paragraphs", "Para one.\n\nPara two.", 1200, []string{"Para one.\n\nPara two."}},
		{"splits at budget", "Para one.\n\nPara two.", 12, []string{"Para one.", "Para two."}},
		{"collapses whitespace", "Has   200\n stitches.\n \n\nNext", 1200, []string{"Has 200 stitches.\n\nNext"}},
		{"long paragraph split at words", "aaa bbb ccc ddd", 7, []string{"aaa bbb", "ccc ddd"}},
		{"oversized word kept whole", "abcdefghij", 4, []string{"abcdefghij"}},
		{"blank", "  \n\n  ", 100, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Chunk(tt.text, tt.size); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Chunk = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunk_RespectsSize(t *testing.T) {
	text := strings.Repeat("The DY-CS3000 has an automatic needle threader. ", 100)
	for _, c := range Chunk(text, DefaultChunkSize) {
		if len(c) > DefaultChunkSize {
			t.Errorf("chunk of %d bytes exceeds %d", len(c), DefaultChunkSize)
		}
	}
}

func TestExtract_HTML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.html", `<html><head><title>Manual</title><style>p{color:red}</style>
<script>var tracking = 1;</script></head>
<body><nav>Home | Shop</nav><h1>DY-CS3000</h1><p>Has   200
 stitches.</p><ul><li>Free arm</li><li>LED light</li></ul></body></html>`)

	text, err := Extract(filepath.Join(dir, "page.html"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"DY-CS3000", "Has 200 stitches.", "Free arm", "LED light"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q: %q", want, text)
		}
	}
	for _, absent := range []string{"tracking", "color:red", "Shop"} {
		if strings.Contains(text, absent) {
			t.Errorf("text contains %q", absent)
		}
	}
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.docx", "binary")
	writeFile(t, dir, "broken.pdf", "this is not a pdf")

	if _, err := Extract(filepath.Join(dir, "notes.docx")); !errors.Is(err, ErrUnsupported) {
		t.Errorf("docx: err = %v, want ErrUnsupported", err)
	}
	if _, err := Extract(filepath.Join(dir, "broken.pdf")); err == nil {
		t.Error("broken pdf: expected error")
	}
	if _, err := Extract(filepath.Join(dir, "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing: err = %v, want os.ErrNotExist", err)
	}
}

func TestSupported(t *testing.T) {
	for path, want := range map[string]bool{
		"a.txt": true, "b.MD": true, "c.html": true, "d.htm": true, "e.pdf": true,
		"f.docx": false, "g": false, "h.json": false,
	} {
		if got := Supported(path); got != want {
			t.Errorf("Supported(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "The DY-CS3000 has 200 stitches.\n\nIt weighs 6 kg.")
	writeFile(t, dir, "manuals/b.md", "# Overlock\n\nThe DY-OL40 uses four threads.")
	writeFile(t, dir, "logo.png", "png")
	writeFile(t, dir, "broken.pdf", "not a pdf")

	store := openEntryStore(t)
	emb := &mockEmbedder{}
	rep, err := NewBuilder(emb, store, Options{ChunkSize: 40}).Build(context.Background(), dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if rep.Files != 2 || rep.Skipped != 1 || rep.Failed != 1 {
		t.Errorf("report = files %d skipped %d failed %d", rep.Files, rep.Skipped, rep.Failed)
	}
	if len(rep.Entries) != len(emb.texts) || len(rep.Entries) < 3 {
		t.Fatalf("entries = %d, embedded = %d", len(rep.Entries), len(emb.texts))
	}
	if rep.Entries[0].Metadata[MetadataSourceKey] != "a.txt" {
		t.Errorf("first source = %q", rep.Entries[0].Metadata[MetadataSourceKey])
	}
	last := rep.Entries[len(rep.Entries)-1]
	if last.Metadata[MetadataSourceKey] != "manuals/b.md" {
		t.Errorf("last source = %q", last.Metadata[MetadataSourceKey])
	}

	stored, err := store.ExportAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(rep.Entries) {
		t.Fatalf("stored %d entries, want %d", len(stored), len(rep.Entries))
	}
	if stored[0].RawText != rep.Entries[0].RawText || len(stored[0].Embedding) != 2 {
		t.Errorf("stored[0] = %+v", stored[0])
	}
}

func TestBuild_Replace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "The DY-CS3000 has 200 stitches.")
	store := openEntryStore(t)
	ctx := context.Background()

	for range 2 {
		if _, err := NewBuilder(&mockEmbedder{}, store, Options{Replace: true}).Build(ctx, dir); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count = %d after two replacing builds, want 1", n)
	}

	if _, err := NewBuilder(&mockEmbedder{}, store, Options{}).Build(ctx, dir); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("Count = %d after appending build, want 2", n)
	}
}

func TestBuild_EmbedFailureStoresNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "The DY-CS3000 has 200 stitches.")
	store := openEntryStore(t)

	_, err := NewBuilder(&mockEmbedder{err: errors.New("backend down")}, store, Options{}).Build(context.Background(), dir)
	if err == nil {
		t.Fatal("expected error")
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestBuild_NoText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", "   ")

	if _, err := NewBuilder(&mockEmbedder{}, nil, Options{}).Build(context.Background(), dir); err == nil {
		t.Error("expected error for a directory without text")
	}
}
