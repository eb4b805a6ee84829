// ABOUTME: Command-line benchmark runner for RAGAS tests
// ABOUTME: Executes retrieval and answer benchmarks and outputs JSON results

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/harper/docrag/benchmarks/ragas"
	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/llm"
	"github.com/joho/godotenv"
)

func main() {
	// Command-line flags
	testID := flag.String("test", "", "Run specific test ("+scenarioIDs()+"). If empty, runs all tests.")
	outputPath := flag.String("output", "benchmark_results.json", "Output path for JSON results")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	generate := flag.Bool("generate", false, "Answer with the configured chat model instead of scoring retrieved context directly")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found (continuing anyway): %v", err)
	}

	var generator llm.Generator
	if *generate {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		// Scenario indexes always use the local embedder; only the chat model is remote
		cfg.Embedder = config.EmbedderHash
		_, generator, err = app.Providers(cfg, log.Default())
		if err != nil {
			log.Fatalf("Failed to create chat client: %v", err)
		}
		if generator == nil {
			log.Fatal("OPENAI_API_KEY or OPENAI_BASE_URL is required for -generate")
		}
	}

	// Print header
	fmt.Println("========================================")
	fmt.Println("docrag RAGAS Benchmarks")
	fmt.Println("========================================")
	fmt.Println()

	runner := ragas.NewBenchmarkRunner(generator, *verbose, os.Stdout)
	ctx := context.Background()

	// Run tests
	var results []ragas.TestResult
	var err error

	if *testID == "" {
		fmt.Println("Running all RAGAS benchmark tests...")
		fmt.Println()

		results, err = runner.RunAllTests(ctx)
		if err != nil {
			log.Fatalf("Benchmark failed: %v", err)
		}
	} else {
		scenario, ok := ragas.ScenarioByID(strings.ToLower(*testID))
		if !ok {
			log.Fatalf("Unknown test ID: %s (valid options: %s)", *testID, scenarioIDs())
		}

		fmt.Printf("Running test: %s\n\n", scenario.Name)

		result, err := runner.RunTest(ctx, scenario)
		if err != nil {
			log.Fatalf("Test failed: %v", err)
		}

		results = []ragas.TestResult{result}
	}

	// Print summary
	fmt.Println("\n========================================")
	fmt.Println("BENCHMARK SUMMARY")
	fmt.Println("========================================")

	summary := ragas.Summarize(results)
	for _, result := range results {
		fmt.Printf("\n%s: %s\n", result.TestID, result.TestName)
		fmt.Printf("  Faithfulness: %.2f\n", result.FaithfulnessScore)
		fmt.Printf("  Context Recall: %.2f\n", result.ContextRecallScore)
		fmt.Printf("  Overall: %.2f\n", result.OverallScore)
		fmt.Printf("  Status: %s\n", result.Status)
	}

	fmt.Println("\n========================================")
	fmt.Printf("Total Tests: %d\n", summary.TotalTests)
	fmt.Printf("Passed: %d\n", summary.Passed)
	fmt.Printf("Failed: %d\n", summary.Failed)
	fmt.Println("========================================")

	// Export results
	if err := runner.ExportResults(results, *outputPath); err != nil {
		log.Fatalf("Failed to export results: %v", err)
	}

	// Exit with error code if any tests failed
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func scenarioIDs() string {
	var ids []string
	for _, s := range ragas.AllScenarios() {
		ids = append(ids, s.ID)
	}
	return strings.Join(ids, ", ")
}
