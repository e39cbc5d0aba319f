package entity

import (
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/kalambet/supportqa/internal/corpus"
)

func testEntries() []corpus.Entry {
	return corpus.New("test", []corpus.Entry{
		{ID: "e1", RawText: "The DY-CS3000 computerised sewing machine has 200 stitches."},
		{ID: "e2", RawText: "Overlocker FS-200.5 supports 4 threads (see ES_150 for 3 threads)."},
		{ID: "e3", RawText: "Pro model X2+ ships with an mp3 guide and a 2 year warranty."},
		{ID: "e4", RawText: "Embroidery unit", Metadata: map[string]string{"model": "QX 9, QX-10"}},
		{ID: "e5", RawText: "Nothing model-like here at all."},
	}).Entries()
}

func tokenSet(ents []Entity) []string {
	out := make([]string, len(ents))
	for i, e := range ents {
		out[i] = e.Token
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"DY_CS3000", "dy-cs3000"},
		{"(DY-CS3000)", "dy-cs3000"},
		{"DY CS  3000", "dy-cs-3000"},
		{"--x1--", "x1"},
		{"A\u2013B2", "a-b2"},
		{"Model#X5!", "modelx5"},
		{"FS-200.5", "fs-200.5"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVariants(t *testing.T) {
	got := Variants("dy-cs3000")
	want := []string{"dy cs3000", "dy-cs3000", "dycs3000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Variants = %q, want %q", got, want)
	}

	got = Variants("x1.5+")
	want = []string{"x1 5", "x1.5", "x1.5+", "x15+"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Variants = %q, want %q", got, want)
	}
}

func TestFilterAccept(t *testing.T) {
	f := NewFilter([]string{"DY"})
	tests := []struct {
		tok                string
		ok, wantBorderline bool
	}{
		{"dy-cs3000", true, false},
		{"cs3000", true, false},
		{"dy5x", true, false},
		{"mp3", true, true},
		{"fs-200.5", true, false},
		{"abc", false, false},
		{"3000", false, false},
		{"a1", false, false},
		{"dyx", false, false},
		{"thisisaveryveryverylongtoken123", false, false},
	}
	for _, tt := range tests {
		ok, borderline := f.Accept(tt.tok)
		if ok != tt.ok || borderline != tt.wantBorderline {
			t.Errorf("Accept(%q) = (%v, %v), want (%v, %v)", tt.tok, ok, borderline, tt.ok, tt.wantBorderline)
		}
	}
}

func TestBuild_Catalogue(t *testing.T) {
	ix := Build(testEntries(), NewFilter(nil))

	for _, tok := range []string{"dy-cs3000", "fs-200.5", "es-150", "x2+", "mp3", "qx-9", "qx-10"} {
		if !slices.Contains(ix.Tokens(), tok) {
			t.Errorf("token %q missing from %v", tok, ix.Tokens())
		}
	}
	if slices.Contains(ix.Tokens(), "model-like") {
		t.Error("digitless token accepted")
	}
	if !slices.Contains(ix.Aliases("es-150"), "es_150") {
		t.Errorf("surface form missing from aliases: %v", ix.Aliases("es-150"))
	}
	if !reflect.DeepEqual(ix.Borderline(), []string{"mp3"}) {
		t.Errorf("Borderline = %v, want [mp3]", ix.Borderline())
	}
}

func TestBuild_EveryTokenAliasesItself(t *testing.T) {
	ix := Build(testEntries(), NewFilter(nil))
	for _, tok := range ix.Tokens() {
		if !slices.Contains(ix.Aliases(tok), tok) {
			t.Errorf("aliases of %q do not include itself: %v", tok, ix.Aliases(tok))
		}
	}
}

func TestBuild_Idempotent(t *testing.T) {
	entries := testEntries()
	a := Build(entries, NewFilter([]string{"dy"}))
	b := Build(entries, NewFilter([]string{"dy"}))
	if !reflect.DeepEqual(a.Tokens(), b.Tokens()) {
		t.Errorf("tokens differ: %v vs %v", a.Tokens(), b.Tokens())
	}
	if !reflect.DeepEqual(a.aliases, b.aliases) {
		t.Error("alias maps differ between builds")
	}
}

func TestExtract_AliasClosure(t *testing.T) {
	ix := Build(testEntries(), NewFilter(nil))
	for _, tok := range ix.Tokens() {
		for _, alias := range ix.Aliases(tok) {
			got := tokenSet(ix.Extract(alias, nil))
			if !slices.Contains(got, tok) {
				t.Errorf("Extract(%q) = %v, want it to contain %q", alias, got, tok)
			}
		}
	}
}

func TestExtract_UnseenToken(t *testing.T) {
	ix := Build(testEntries(), NewFilter(nil))
	ents := ix.Extract("cs3000 price", nil)
	if len(ents) != 1 || ents[0].Token != "cs3000" {
		t.Fatalf("Extract = %+v, want [cs3000]", ents)
	}
	if !reflect.DeepEqual(ents[0].Aliases, []string{"cs3000"}) {
		t.Errorf("aliases = %v", ents[0].Aliases)
	}
}

func TestExtract_VariantSpelling(t *testing.T) {
	ix := Build(testEntries(), NewFilter(nil))
	got := tokenSet(ix.Extract("is the DYCS3000 manual available", nil))
	if !slices.Contains(got, "dy-cs3000") {
		t.Errorf("Extract = %v, want dy-cs3000", got)
	}
}

func TestExtract_UsesHistory(t *testing.T) {
	ix := Build(testEntries(), NewFilter(nil))
	got := tokenSet(ix.Extract("what about its price?", []string{"tell me about the DY-CS3000"}))
	if !slices.Contains(got, "dy-cs3000") {
		t.Errorf("Extract = %v, want dy-cs3000 from history", got)
	}
}

func TestExtract_Nothing(t *testing.T) {
	ix := Build(testEntries(), NewFilter(nil))
	if got := ix.Extract("hello there", nil); len(got) != 0 {
		t.Errorf("Extract = %+v, want none", got)
	}
	if got := ix.Extract("", nil); got != nil {
		t.Errorf("Extract(empty) = %+v, want nil", got)
	}
}

func TestIndexer_BuildsOnceUnderConcurrency(t *testing.T) {
	c := corpus.New("test", testEntries())
	ixr := NewIndexer(c, NewFilter(nil))

	const n = 32
	results := make([]*Index, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ixr.Index()
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent first calls produced different indexes")
		}
	}
	if results[0].Len() == 0 {
		t.Error("index is empty")
	}
}

func TestIndexer_NilCorpus(t *testing.T) {
	ixr := NewIndexer(nil, NewFilter(nil))
	if ixr.Index().Len() != 0 {
		t.Error("expected empty index for nil corpus")
	}
}
