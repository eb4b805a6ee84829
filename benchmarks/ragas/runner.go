// ABOUTME: Test runner for RAGAS benchmarks - executes scenarios and collects results
// ABOUTME: Builds a fresh in-memory index per scenario, retrieves, answers and scores

package ragas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/harper/docrag/internal/core"
	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/index"
	"github.com/harper/docrag/internal/ingest"
	"github.com/harper/docrag/internal/llm"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/rag"
	"github.com/harper/docrag/internal/retrieval"
)

// BenchmarkDimension is the hash embedder size used for scenario indexes
const BenchmarkDimension = 512

// BenchmarkRunner executes RAGAS benchmark tests
type BenchmarkRunner struct {
	generator llm.Generator
	metrics   *MetricsCalculator
	verbose   bool
	out       io.Writer
}

// NewBenchmarkRunner creates a runner. With a nil generator the response is
// the retrieved context itself, which scores retrieval alone.
func NewBenchmarkRunner(generator llm.Generator, verbose bool, out io.Writer) *BenchmarkRunner {
	if out == nil {
		out = io.Discard
	}
	return &BenchmarkRunner{
		generator: generator,
		metrics:   NewMetricsCalculator(),
		verbose:   verbose,
		out:       out,
	}
}

// RunTest executes a single benchmark test
func (r *BenchmarkRunner) RunTest(ctx context.Context, scenario TestScenario) (TestResult, error) {
	if r.verbose {
		fmt.Fprintf(r.out, "\n========================================\n")
		fmt.Fprintf(r.out, "RUNNING: %s\n", scenario.Name)
		fmt.Fprintf(r.out, "========================================\n")
		fmt.Fprintf(r.out, "Description: %s\n\n", scenario.Description)
	}

	embedder, err := embedding.NewHashEmbedder(BenchmarkDimension)
	if err != nil {
		return TestResult{}, err
	}
	idx, err := index.New(index.Config{
		ModelID:   embedder.ModelID(),
		Dimension: embedder.Dimension(),
		Metric:    index.MetricCosine,
	})
	if err != nil {
		return TestResult{}, fmt.Errorf("failed to create index: %w", err)
	}
	ingester, err := ingest.NewIngester(core.NewDefaultSegmenter(), embedder, idx, nil, ingest.Options{})
	if err != nil {
		return TestResult{}, err
	}

	if err := r.setupTest(ctx, ingester, scenario); err != nil {
		return TestResult{}, fmt.Errorf("setup failed: %w", err)
	}

	engine := retrieval.NewEngine(embedder, idx, retrieval.Options{})
	finalResponse, retrieved, err := r.answer(ctx, engine, scenario)
	if err != nil {
		return TestResult{}, fmt.Errorf("query failed: %w", err)
	}

	if r.verbose {
		fmt.Fprintf(r.out, "Query: %s\n", scenario.Query)
		for _, sc := range retrieved {
			fmt.Fprintf(r.out, "  [%.3f] %s\n", sc.Score, preview(strings.Join(strings.Fields(sc.Chunk.Text), " "), 80))
		}
		fmt.Fprintf(r.out, "Response: %s\n", preview(finalResponse, 150))
	}

	result := r.metrics.EvaluateTest(scenario, finalResponse, retrieved.Texts())

	if r.verbose {
		fmt.Fprintf(r.out, "\n========================================\n")
		fmt.Fprintf(r.out, "RESULTS: %s\n", scenario.Name)
		fmt.Fprintf(r.out, "========================================\n")
		fmt.Fprintf(r.out, "Faithfulness: %.2f\n", result.FaithfulnessScore)
		fmt.Fprintf(r.out, "Context Recall: %.2f\n", result.ContextRecallScore)
		fmt.Fprintf(r.out, "Overall Score: %.2f\n", result.OverallScore)
		fmt.Fprintf(r.out, "Status: %s\n", result.Status)
		fmt.Fprintf(r.out, "========================================\n\n")
	}

	return result, nil
}

// setupTest ingests the scenario documents, then applies updates and deletes
func (r *BenchmarkRunner) setupTest(ctx context.Context, ingester *ingest.Ingester, scenario TestScenario) error {
	ingestAll := func(docs []Document) error {
		for _, doc := range docs {
			res, err := ingester.IngestDocument(ctx, models.Document{SourceID: doc.Name, RawText: doc.Text})
			if err != nil {
				return fmt.Errorf("ingest %s: %w", doc.Name, err)
			}
			if r.verbose {
				fmt.Fprintf(r.out, "✓ %s: %d chunk(s), %d replaced\n", doc.Name, res.Chunks, res.Removed)
			}
		}
		return nil
	}

	if err := ingestAll(scenario.Documents); err != nil {
		return err
	}
	if err := ingestAll(scenario.Updates); err != nil {
		return err
	}
	for _, name := range scenario.Deletes {
		n, err := ingester.RemoveSource(name)
		if err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
		if r.verbose {
			fmt.Fprintf(r.out, "✓ %s: removed %d chunk(s)\n", name, n)
		}
	}
	return nil
}

// answer retrieves context and produces the response to score
func (r *BenchmarkRunner) answer(ctx context.Context, engine *retrieval.Engine, scenario TestScenario) (string, models.RetrievalResult, error) {
	topK := scenario.TopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}

	if r.generator == nil {
		retrieved, err := engine.Retrieve(ctx, scenario.Query, topK, scenario.ScoreFloor)
		if err != nil {
			return "", nil, err
		}
		return strings.Join(retrieved.Texts(), "\n"), retrieved, nil
	}

	orchestrator := rag.NewOrchestrator(engine, r.generator, rag.Options{
		TopK:       topK,
		ScoreFloor: scenario.ScoreFloor,
	})
	ans, err := orchestrator.Answer(ctx, rag.Query{Text: scenario.Query})
	if err != nil {
		return "", nil, err
	}
	return ans.Text, ans.Sources, nil
}

// RunAllTests executes all benchmark tests
func (r *BenchmarkRunner) RunAllTests(ctx context.Context) ([]TestResult, error) {
	scenarios := AllScenarios()
	results := make([]TestResult, 0, len(scenarios))

	for _, scenario := range scenarios {
		result, err := r.RunTest(ctx, scenario)
		if err != nil {
			return nil, fmt.Errorf("test %s failed: %w", scenario.ID, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// Summary is the exported results document
type Summary struct {
	Timestamp  string       `json:"timestamp"`
	TotalTests int          `json:"total_tests"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Results    []TestResult `json:"results"`
}

// Summarize counts passes and failures
func Summarize(results []TestResult) Summary {
	summary := Summary{
		Timestamp:  time.Now().Format(time.RFC3339),
		TotalTests: len(results),
		Results:    results,
	}
	for _, result := range results {
		if result.Status == "PASS" {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// ExportResults exports test results to JSON
func (r *BenchmarkRunner) ExportResults(results []TestResult, outputPath string) error {
	jsonData, err := json.MarshalIndent(Summarize(results), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	fmt.Fprintf(r.out, "✓ Results exported to: %s\n", outputPath)
	return nil
}
