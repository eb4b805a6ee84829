// ABOUTME: Tests for the feature-hashing embedder and vector helpers
// ABOUTME: Verifies determinism, normalisation and that shared words raise similarity

package embedding

import (
	"context"
	"math"
	"testing"
)

func TestNewHashEmbedder(t *testing.T) {
	if _, err := NewHashEmbedder(0); err == nil {
		t.Error("NewHashEmbedder(0) should fail")
	}

	h, err := NewHashEmbedder(64)
	if err != nil {
		t.Fatalf("NewHashEmbedder() error = %v", err)
	}
	if h.ModelID() != "hash:64" {
		t.Errorf("ModelID() = %q, want hash:64", h.ModelID())
	}
	if h.Dimension() != 64 {
		t.Errorf("Dimension() = %d, want 64", h.Dimension())
	}
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	h, _ := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := h.Embed(ctx, "Tomatoes need six hours of sun")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, _ := h.Embed(ctx, "Tomatoes need six hours of sun")

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedder_UnitLength(t *testing.T) {
	h, _ := NewHashEmbedder(32)
	vec, _ := h.Embed(context.Background(), "unit length please")

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("squared norm = %v, want 1", sum)
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	h, _ := NewHashEmbedder(16)
	vec, err := h.Embed(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 16 {
		t.Fatalf("len = %d, want 16", len(vec))
	}
	for _, x := range vec {
		if x != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestHashEmbedder_SimilarityOrdering(t *testing.T) {
	h, _ := NewHashEmbedder(512)
	ctx := context.Background()

	query, _ := h.Embed(ctx, "how much sun do tomatoes need")
	related, _ := h.Embed(ctx, "tomatoes need full sun for most of the day")
	unrelated, _ := h.Embed(ctx, "the quarterly budget review is on friday")

	if Cosine(query, related) <= Cosine(query, unrelated) {
		t.Errorf("related score %v should exceed unrelated score %v",
			Cosine(query, related), Cosine(query, unrelated))
	}
}

func TestHashEmbedder_EmbedManyOrder(t *testing.T) {
	h, _ := NewHashEmbedder(64)
	ctx := context.Background()
	texts := []string{"alpha", "beta", "gamma"}

	many, err := h.EmbedMany(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedMany() error = %v", err)
	}
	for i, text := range texts {
		one, _ := h.Embed(ctx, text)
		if Cosine(one, many[i]) < 0.9999 {
			t.Errorf("EmbedMany()[%d] does not match Embed(%q)", i, text)
		}
	}
}

func TestHashEmbedder_CanceledContext(t *testing.T) {
	h, _ := NewHashEmbedder(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.Embed(ctx, "anything"); err == nil {
		t.Error("Embed() with canceled context should fail")
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"v2 API", []string{"v2", "api"}},
		{"今天好", []string{"今", "天", "好"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := Tokenize(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestCosineAndL2(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	if got := Cosine(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("Cosine(a, a) = %v, want 1", got)
	}
	if got := Cosine(a, b); got != 0 {
		t.Errorf("Cosine(a, b) = %v, want 0", got)
	}
	if got := Cosine(a, []float32{0, 0}); got != 0 {
		t.Errorf("Cosine with zero vector = %v, want 0", got)
	}
	if got := SquaredL2(a, b); got != 2 {
		t.Errorf("SquaredL2(a, b) = %v, want 2", got)
	}
}
