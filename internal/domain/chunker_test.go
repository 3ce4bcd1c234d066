package domain

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestSplitTokens_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t "} {
		if got := SplitTokens(in, 800, 100); len(got) != 0 {
			t.Errorf("SplitTokens(%q) = %v, want no chunks", in, got)
		}
	}
}

func TestSplitTokens_ShortTextSingleChunk(t *testing.T) {
	got := SplitTokens("  hello \n\n world\tagain ", 800, 100)
	want := []string{"hello world again"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSplitTokens_ExactlySize(t *testing.T) {
	got := SplitTokens(words(800), 800, 100)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
}

func TestSplitTokens_Windows(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		size    int
		overlap int
		want    []string
	}{
		{
			name: "overlapping",
			n:    5, size: 3, overlap: 1,
			want: []string{"w0 w1 w2", "w2 w3 w4"},
		},
		{
			name: "short tail",
			n:    6, size: 3, overlap: 1,
			want: []string{"w0 w1 w2", "w2 w3 w4", "w4 w5"},
		},
		{
			name: "no overlap",
			n:    4, size: 2, overlap: 0,
			want: []string{"w0 w1", "w2 w3"},
		},
		{
			name: "overlap not smaller than size advances by one",
			n:    4, size: 2, overlap: 5,
			want: []string{"w0 w1", "w1 w2", "w2 w3"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitTokens(words(tc.n), tc.size, tc.overlap)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSplitTokens_DefaultPolicy(t *testing.T) {
	// 1000 tokens at 800/100: windows start at 0 and 700.
	got := SplitTokens(words(1000), DefaultChunkSize, DefaultChunkOverlap)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	first := strings.Fields(got[0])
	second := strings.Fields(got[1])
	if len(first) != 800 {
		t.Errorf("first chunk has %d tokens, want 800", len(first))
	}
	if len(second) != 300 {
		t.Errorf("second chunk has %d tokens, want 300", len(second))
	}
	if second[0] != "w700" {
		t.Errorf("second chunk starts at %q, want w700", second[0])
	}
	if second[len(second)-1] != "w999" {
		t.Errorf("second chunk ends at %q, want w999", second[len(second)-1])
	}
}

func TestSplitTokens_CoversEveryToken(t *testing.T) {
	text := words(2345)
	chunks := SplitTokens(text, 800, 100)

	seen := make(map[string]bool)
	for _, c := range chunks {
		toks := strings.Fields(c)
		if len(toks) > 800 {
			t.Errorf("chunk has %d tokens, exceeds size", len(toks))
		}
		for _, tok := range toks {
			seen[tok] = true
		}
	}
	for _, tok := range strings.Fields(text) {
		if !seen[tok] {
			t.Fatalf("token %s missing from chunks", tok)
		}
	}
}

func TestSplitTokens_NonPositiveSize(t *testing.T) {
	got := SplitTokens("a b", 0, 0)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
