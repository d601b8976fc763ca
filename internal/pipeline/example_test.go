package pipeline_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"facturas/internal/config"
	"facturas/internal/pipeline"
)

// Example demonstrates basic usage of the processing pipeline.
func Example() {
	// Load .env and configuration (usually done in main):
	//
	// if err := godotenv.Load(); err != nil {
	//     log.Printf("Warning: Could not load .env file: %v", err)
	// }
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context with timeout for the whole run
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	// OCR engines come up from the environment, in trust order
	sources, err := pipeline.BuildSources(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to configure OCR sources: %v", err)
	}

	// The refinement backend is optional; without OPENAI_API_KEY the
	// pipeline runs pattern extraction only
	backend, err := pipeline.BuildBackend(cfg)
	if err != nil {
		log.Fatalf("Failed to configure refinement backend: %v", err)
	}

	pipe, err := pipeline.New(cfg, sources, backend)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	// Open the scanned invoice
	file, err := os.Open("factura.pdf")
	if err != nil {
		log.Fatalf("Failed to open document: %v", err)
	}
	defer file.Close()

	// Process returns a complete record in every case; problems land in
	// the validation report rather than as errors
	record, report := pipe.Process(ctx, "factura.pdf", file)

	fmt.Printf("Invoice %v from %v\n", record.Field("invoice_number"), record.Field("vendor_name"))
	fmt.Printf("Total: %v (confidence %.2f)\n", record.Field("total_amount"), record.Metadata.Confidence)
	fmt.Printf("Validation passed: %v (%d errors, %d warnings)\n",
		report.Passed, len(report.Errors), len(report.Warnings))
}

// ExampleQueue demonstrates batch processing on the worker pool.
func ExampleQueue() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	sources, err := pipeline.BuildSources(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to configure OCR sources: %v", err)
	}
	pipe, err := pipeline.New(cfg, sources, nil)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	queue := pipeline.NewQueue(pipe,
		pipeline.WithWorkers(cfg.BatchConcurrency),
		pipeline.WithJobTimeout(3*time.Minute),
	)

	// Enqueue documents, then stop intake and drain
	go func() {
		for _, path := range []string{"factura1.pdf", "factura2.pdf"} {
			queue.Enqueue(pipeline.Job{Path: path})
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		queue.Shutdown(shutdownCtx)
	}()

	for result := range queue.Results() {
		if result.Err != nil {
			log.Printf("Could not read %s: %v", result.Path, result.Err)
			continue
		}
		fmt.Printf("%s: passed=%v\n", result.Path, result.Report.Passed)
	}
}
