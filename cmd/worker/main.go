// The worker binary runs the batch processing service: it consumes
// batch-item jobs from the queue and drives each one through the
// orchestrator.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/batch"
	"github.com/ledgerline/ledgerline/internal/blob"
	"github.com/ledgerline/ledgerline/internal/categorize"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/extract"
	"github.com/ledgerline/ledgerline/internal/jobs"
	"github.com/ledgerline/ledgerline/internal/jobs/inmemory"
	"github.com/ledgerline/ledgerline/internal/llm"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/mapping"
	"github.com/ledgerline/ledgerline/internal/processor"
	"github.com/ledgerline/ledgerline/internal/store"
	bqstore "github.com/ledgerline/ledgerline/internal/store/bigquery"
	"github.com/ledgerline/ledgerline/internal/store/memory"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router, err := buildRouter(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build provider router")
	}
	extractor := extract.NewEngine(router)

	stores, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build stores")
	}
	defer cleanup()

	if cfg.CategorySeedFile != "" {
		if err := categorize.SeedFromFile(ctx, stores.categories, cfg.CategorySeedFile); err != nil {
			log.Fatal().Err(err).Str("file", cfg.CategorySeedFile).Msg("Failed to seed categories")
		}
		log.Info().Str("file", cfg.CategorySeedFile).Msg("Seeded system categories")
	}

	fetcher, err := buildFetcher(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build blob fetcher")
	}

	categorizer := categorize.NewEngine(stores.categories, extractor, log)
	registry := processor.NewRegistry(map[string]processor.DocumentProcessor{
		batch.ImportReceipts: processor.NewReceiptProcessor(fetcher, extractor, categorizer, processor.JurisdictionCanada, log),
		batch.ImportInvoices: processor.NewInvoiceProcessor(fetcher, extractor, categorizer, processor.JurisdictionCanada, log),
	})

	orchestrator := batch.NewOrchestrator(
		stores.batches, stores.documents, stores.activity,
		registry, mapping.NewEngine(extractor), categorizer, fetcher, log,
		batch.Options{WorkerCount: cfg.Worker.WorkerCount, MaxRetries: cfg.Worker.MaxRetries},
	)

	queue := inmemory.NewQueue(cfg.Worker.QueueBuffer, cfg.Worker.WorkerCount)

	handler := func(ctx context.Context, job *jobs.Job) error {
		result := orchestrator.ProcessItem(ctx, job.Payload)
		if result.Success {
			return nil
		}
		// Deterministic failures are terminal in the store; returning nil
		// keeps the queue from redelivering them.
		switch result.ErrorCode {
		case batch.CodeExtractionValidation, batch.CodeMappingDetection, batch.CodeBatchCancelled:
			return nil
		}
		// Requeue the item so the redelivery passes the state gate.
		if _, err := stores.batches.TransitionItem(ctx, result.BatchItemID, store.ItemFailed, store.ItemQueued); err != nil {
			return err
		}
		return errFromResult(result)
	}

	if err := queue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().
		Int("workers", cfg.Worker.WorkerCount).
		Strs("providers", router.Providers()).
		Msg("Worker service started, waiting for jobs")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	log.Info().Msg("Worker service exited")
}

// buildRouter registers the configured providers in fallback order.
// Providers without an API key are skipped, not errors.
func buildRouter(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*llm.Router, error) {
	var providers []llm.Provider
	for _, name := range cfg.Providers.Order {
		switch name {
		case llm.ProviderGemini:
			if cfg.Providers.GeminiAPIKey == "" {
				log.Warn().Msg("Gemini API key not set, skipping provider")
				continue
			}
			p, err := llm.NewGeminiProvider(ctx, cfg.Providers.GeminiAPIKey, cfg.Providers.GeminiModel)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case llm.ProviderOpenAI:
			if cfg.Providers.OpenAIAPIKey == "" {
				log.Warn().Msg("OpenAI API key not set, skipping provider")
				continue
			}
			p, err := llm.NewOpenAIProvider(cfg.Providers.OpenAIAPIKey, cfg.Providers.OpenAIModel)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		}
	}
	return llm.NewRouter(log, providers...), nil
}

type storeSet struct {
	categories store.CategoryStore
	batches    store.BatchStore
	activity   store.ActivityStore
	documents  store.DocumentStore
}

// buildStores wires BigQuery when a project is configured and falls back
// to the in-memory store otherwise.
func buildStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storeSet, func(), error) {
	if cfg.Store.ProjectID == "" {
		log.Warn().Msg("GCP_PROJECT_ID not set, using in-memory store")
		mem := memory.New()
		return &storeSet{categories: mem, batches: mem, activity: mem, documents: mem}, func() {}, nil
	}

	client, err := bq.NewClient(ctx, cfg.Store.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	s := bqstore.New(client, cfg.Store.Dataset)
	cleanup := func() { _ = client.Close() }
	return &storeSet{categories: s, batches: s, activity: s, documents: s}, cleanup, nil
}

func buildFetcher(ctx context.Context, cfg *config.Config) (blob.Fetcher, error) {
	httpFetcher := blob.NewHTTPFetcher()
	if cfg.Store.ProjectID == "" {
		return blob.NewMux(nil, httpFetcher), nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return blob.NewMux(blob.NewGCSFetcher(client), httpFetcher), nil
}

type resultError struct{ result batch.JobResult }

func (e resultError) Error() string {
	return e.result.ErrorCode + ": " + e.result.Error
}

func errFromResult(result batch.JobResult) error {
	return resultError{result: result}
}
