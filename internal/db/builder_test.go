package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_ChunkSchema(t *testing.T) {
	idx, err := NewIndex("ragchat:kb_main:idx").
		Prefix("ragchat:kb_main:").
		Text("__content").
		Tag("source").
		Numeric("chunk").
		VectorHNSW("__vector", "vector", 1024, DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(idx.Fields) != 4 {
		t.Fatalf("fields count = %d, want 4", len(idx.Fields))
	}
	vf := idx.VectorField()
	if vf == nil {
		t.Fatal("expected vector field")
	}
	if vf.Alias != "vector" || vf.VectorDim != 1024 || vf.VectorAlgo != VectorHNSW {
		t.Errorf("unexpected vector field: %+v", vf)
	}
	if vf.VectorDistance != DistanceCosine {
		t.Errorf("distance = %q, want COSINE", vf.VectorDistance)
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *IndexBuilder
	}{
		{"empty name", NewIndex("").Tag("a")},
		{"invalid name", NewIndex("bad name").Tag("a")},
		{"no fields", NewIndex("idx")},
		{"zero dim", NewIndex("idx").VectorHNSW("v", "", 0, DistanceCosine, 0, 0)},
		{"duplicate", NewIndex("idx").Tag("a").Numeric("a")},
		{"duplicate alias", NewIndex("idx").Tag("vector").VectorHNSW("__vector", "vector", 4, DistanceCosine, 0, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.b.Build(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIndexBuilder_BuildReturnsCopy(t *testing.T) {
	b := NewIndex("idx").Tag("a")
	first, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.Tag("b")
	if len(first.Fields) != 1 {
		t.Errorf("built definition changed after further builder calls: %d fields", len(first.Fields))
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx, err := NewIndex("idx").Prefix("p:").Tag("source").VectorHNSW("__vector", "vector", 3, DistanceCosine, 0, 0).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := idx.String()
	for _, want := range []string{"FT.CREATE idx ON HASH", "PREFIX p:", "source TAG", "__vector AS vector VECTOR HNSW DIM 3"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ragchat:kb_main:idx", true},
		{"a-b_c", true},
		{"", false},
		{"has space", false},
		{"semi;colon", false},
	}
	for _, tc := range tests {
		if got := IsValidIdentifier(tc.in); got != tc.want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
