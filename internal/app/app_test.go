// ABOUTME: Tests for pipeline assembly from configuration
// ABOUTME: Uses the hash embedder and a canned generator so no network is needed
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/llm"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/rag"
)

type cannedGenerator struct {
	answer string
}

func (g *cannedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	return g.answer, nil
}

func (g *cannedGenerator) Stream(ctx context.Context, prompt string) (llm.DeltaStream, error) {
	return &cannedStream{parts: strings.Fields(g.answer)}, nil
}

type cannedStream struct {
	parts []string
}

func (s *cannedStream) Recv() (string, error) {
	if len(s.parts) == 0 {
		return "", io.EOF
	}
	p := s.parts[0]
	s.parts = s.parts[1:]
	return p + " ", nil
}

func (s *cannedStream) Close() error { return nil }

func hashConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Embedder = config.EmbedderHash
	cfg.HashDimension = 256
	cfg.IndexDir = filepath.Join(t.TempDir(), "index")
	cfg.ChunkSize = 120
	cfg.ChunkOverlap = 12
	cfg.ChunkTolerance = 40
	return cfg
}

func TestNew_HashWithoutGenerator(t *testing.T) {
	cfg := hashConfig(t)

	a, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Embedder.ModelID() != "hash:256" {
		t.Errorf("ModelID = %s, want hash:256", a.Embedder.ModelID())
	}
	if a.Index.Len() != 0 {
		t.Errorf("Len = %d, want empty index", a.Index.Len())
	}
	if _, err := a.Answerer(); !errors.Is(err, ErrNoGenerator) {
		t.Errorf("Answerer() error = %v, want ErrNoGenerator", err)
	}
}

func TestNew_OpenAIRequiresCredentials(t *testing.T) {
	cfg := hashConfig(t)
	cfg.Embedder = config.EmbedderOpenAI
	cfg.OpenAIKey = ""
	cfg.BaseURL = ""

	if _, err := New(cfg, Options{}); err == nil {
		t.Error("expected error without OpenAI credentials")
	}
}

func TestNew_RefusesNonIndexDirectory(t *testing.T) {
	cfg := hashConfig(t)
	cfg.IndexDir = filepath.Join(t.TempDir(), "mydocs")
	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		t.Fatal(err)
	}
	notes := filepath.Join(cfg.IndexDir, "notes.txt")
	if err := os.WriteFile(notes, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := New(cfg, Options{}); !errors.Is(err, models.ErrIndexCorrupt) {
		t.Errorf("New() error = %v, want IndexCorrupt", err)
	}
	if _, err := os.Stat(notes); err != nil {
		t.Errorf("existing file was touched: %v", err)
	}
}

func TestApp_IngestPersistReload(t *testing.T) {
	cfg := hashConfig(t)
	gen := &cannedGenerator{answer: "Tomatoes need full sun."}

	a, err := New(cfg, Options{Generator: gen})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	docs := filepath.Join(t.TempDir(), "docs")
	if err := os.MkdirAll(docs, 0o755); err != nil {
		t.Fatal(err)
	}
	text := "Tomatoes need full sun and regular watering. Basil grows well next to tomatoes.\n\n" +
		"Compost improves heavy clay soil. Mulch keeps roots cool in summer."
	if err := os.WriteFile(filepath.Join(docs, "garden.md"), []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := a.Ingester.IngestDir(context.Background(), docs)
	if err != nil {
		t.Fatalf("IngestDir() error = %v", err)
	}
	if len(report.Ingested) != 1 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if err := a.Persist(); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	reopened, err := New(cfg, Options{Generator: gen})
	if err != nil {
		t.Fatalf("New() after persist error = %v", err)
	}
	if reopened.Index.Len() != a.Index.Len() {
		t.Errorf("reloaded Len = %d, want %d", reopened.Index.Len(), a.Index.Len())
	}

	orch, err := reopened.Answerer()
	if err != nil {
		t.Fatalf("Answerer() error = %v", err)
	}
	ans, err := orch.Answer(context.Background(), rag.Query{Text: "how much sun do tomatoes need"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if ans.Text != gen.answer {
		t.Errorf("Text = %q, want %q", ans.Text, gen.answer)
	}
	if len(ans.Sources) == 0 {
		t.Error("expected sources for a grounded answer")
	}
}

func TestNew_ModelMismatch(t *testing.T) {
	cfg := hashConfig(t)
	a, err := New(cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Ingester.IngestDocument(context.Background(), models.Document{SourceID: "s1", RawText: "some text to index"}); err != nil {
		t.Fatal(err)
	}
	if err := a.Persist(); err != nil {
		t.Fatal(err)
	}

	cfg.HashDimension = 128
	_, err = New(cfg, Options{})
	if !errors.Is(err, models.ErrDimensionOrModelMismatch) {
		t.Errorf("New() error = %v, want dimension mismatch", err)
	}
}

func TestPersona(t *testing.T) {
	cfg := config.Default()

	p, err := Persona(cfg)
	if err != nil || p.Name != "general" {
		t.Errorf("Persona() = %v, %v; want general", p.Name, err)
	}

	cfg.Persona = "campus"
	if p, _ := Persona(cfg); p.Name != "campus" {
		t.Errorf("Persona() = %s, want campus", p.Name)
	}

	cfg.SystemPrompt = "Answer in one sentence."
	p, err = Persona(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p.Grounded != cfg.SystemPrompt || p.General != cfg.SystemPrompt {
		t.Errorf("custom prompt not applied: %+v", p)
	}

	cfg.SystemPrompt = ""
	cfg.Persona = "astrology"
	if _, err := Persona(cfg); err == nil {
		t.Error("expected error for unknown persona")
	}
}
