package chunker

import (
	"reflect"
	"testing"
)

func TestSplitHeadings(t *testing.T) {
	content := "intro line\n\n# First\nbody one\n\n## Second\nbody two\n"
	chunks := Split("notes", "notes/a.md", content)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Heading != "" || chunks[0].Content != "intro line" {
		t.Fatalf("preamble chunk wrong: %+v", chunks[0])
	}
	if chunks[1].Heading != "First" {
		t.Fatalf("expected heading First, got %q", chunks[1].Heading)
	}
	if chunks[2].Heading != "Second" {
		t.Fatalf("expected heading Second, got %q", chunks[2].Heading)
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Fatalf("chunk %d has index %d", i, ch.ChunkIndex)
		}
	}
}

func TestSplitEmptyAndBlank(t *testing.T) {
	if got := Split("notes", "notes/a.md", ""); got != nil {
		t.Fatalf("empty doc should yield no chunks, got %d", len(got))
	}
	if got := Split("notes", "notes/a.md", "\n\n   \n"); got != nil {
		t.Fatalf("blank doc should yield no chunks, got %d", len(got))
	}
}

func TestSplitNoHeadings(t *testing.T) {
	chunks := Split("notes", "notes/a.md", "just a plain note\nwith two lines")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Heading != "" {
		t.Fatalf("expected empty heading, got %q", chunks[0].Heading)
	}
}

func TestSplitIgnoresHashWithoutSpace(t *testing.T) {
	chunks := Split("notes", "notes/a.md", "#tag not a heading\n# Real\nbody")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].Heading != "Real" {
		t.Fatalf("expected Real, got %q", chunks[1].Heading)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":      "hello world",
		"  Multi   spaces  ": "multi spaces",
		"CamelCase_and-dash": "camelcase and dash",
		"":                   "",
		"...":                "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Deploy the v2 Search-Engine!")
	want := []string{"deploy", "the", "v2", "search", "engine"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	if Tokenize("  !! ") != nil {
		t.Fatal("expected nil tokens for punctuation-only input")
	}
}
