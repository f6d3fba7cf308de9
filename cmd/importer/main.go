// The importer binary submits one batch from the command line and runs
// it to completion in-process: useful for local imports and smoke runs
// without the worker service.
package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/batch"
	"github.com/ledgerline/ledgerline/internal/blob"
	"github.com/ledgerline/ledgerline/internal/categorize"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/extract"
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

	userID := flag.String("user", "", "user ID the import belongs to")
	importType := flag.String("type", batch.ImportMixed, "import type: receipts, invoices, bank_statements or mixed")
	sourceFormat := flag.String("source-format", "", "statement type hint: bank_account or credit_card")
	flag.Parse()

	files := flag.Args()
	if *userID == "" || len(files) == 0 {
		log.Fatal().Msg("Usage: importer --user <id> [--type receipts] <url>...")
	}
	switch *importType {
	case batch.ImportReceipts, batch.ImportInvoices, batch.ImportBankStatements, batch.ImportMixed:
	default:
		log.Fatal().Str("type", *importType).Msg("Unknown import type")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	orchestrator, batches, cleanup, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	defer cleanup()

	payloads, err := submitBatch(ctx, batches, *userID, *importType, *sourceFormat, files)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to submit batch")
	}

	log.Info().
		Str("batch_id", payloads[0].BatchID).
		Int("items", len(payloads)).
		Msg("Starting batch")

	summary := orchestrator.ProcessBatch(ctx, payloads)

	fmt.Printf("Batch %s: %s\n", summary.BatchID, summary.Status)
	fmt.Printf("  total:      %d\n", summary.Total)
	fmt.Printf("  successful: %d\n", summary.Successful)
	fmt.Printf("  failed:     %d\n", summary.Failed)
	fmt.Printf("  duplicate:  %d\n", summary.Duplicate)
}

// submitBatch creates the batch and its queued items, one per file, and
// returns the job payloads in submission order.
func submitBatch(ctx context.Context, batches store.BatchStore, userID, importType, sourceFormat string, files []string) ([]batch.JobPayload, error) {
	b := &store.Batch{ID: uuid.NewString(), UserID: userID, CreatedAt: time.Now()}
	if err := batches.CreateBatch(ctx, b); err != nil {
		return nil, err
	}

	payloads := make([]batch.JobPayload, 0, len(files))
	for i, fileURL := range files {
		fileName := filepath.Base(fileURL)
		item := &store.BatchItem{
			ID:           uuid.NewString(),
			BatchID:      b.ID,
			UserID:       userID,
			FileURL:      fileURL,
			FileName:     fileName,
			FileFormat:   strings.TrimPrefix(filepath.Ext(fileName), "."),
			ImportType:   importType,
			SourceFormat: sourceFormat,
			Order:        i,
			Status:       store.ItemQueued,
		}
		if err := batches.CreateItem(ctx, item); err != nil {
			return nil, err
		}
		payloads = append(payloads, batch.JobPayload{
			BatchID:      b.ID,
			BatchItemID:  item.ID,
			FileURL:      fileURL,
			FileName:     fileName,
			FileFormat:   item.FileFormat,
			UserID:       userID,
			ImportType:   importType,
			SourceFormat: sourceFormat,
			Order:        i,
		})
	}
	return payloads, nil
}

func buildPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*batch.Orchestrator, store.BatchStore, func(), error) {
	var providers []llm.Provider
	for _, name := range cfg.Providers.Order {
		switch name {
		case llm.ProviderGemini:
			if cfg.Providers.GeminiAPIKey == "" {
				continue
			}
			p, err := llm.NewGeminiProvider(ctx, cfg.Providers.GeminiAPIKey, cfg.Providers.GeminiModel)
			if err != nil {
				return nil, nil, nil, err
			}
			providers = append(providers, p)
		case llm.ProviderOpenAI:
			if cfg.Providers.OpenAIAPIKey == "" {
				continue
			}
			p, err := llm.NewOpenAIProvider(cfg.Providers.OpenAIAPIKey, cfg.Providers.OpenAIModel)
			if err != nil {
				return nil, nil, nil, err
			}
			providers = append(providers, p)
		}
	}
	extractor := extract.NewEngine(llm.NewRouter(log, providers...))

	var (
		categories store.CategoryStore
		batches    store.BatchStore
		activity   store.ActivityStore
		documents  store.DocumentStore
		cleanup    = func() {}
	)
	if cfg.Store.ProjectID == "" {
		mem := memory.New()
		categories, batches, activity, documents = mem, mem, mem, mem
	} else {
		client, err := bq.NewClient(ctx, cfg.Store.ProjectID)
		if err != nil {
			return nil, nil, nil, err
		}
		s := bqstore.New(client, cfg.Store.Dataset)
		categories, batches, activity, documents = s, s, s, s
		cleanup = func() { _ = client.Close() }
	}

	if cfg.CategorySeedFile != "" {
		if err := categorize.SeedFromFile(ctx, categories, cfg.CategorySeedFile); err != nil {
			cleanup()
			return nil, nil, nil, err
		}
	}

	httpFetcher := blob.NewHTTPFetcher()
	var fetcher blob.Fetcher = blob.NewMux(nil, httpFetcher)
	if cfg.Store.ProjectID != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		fetcher = blob.NewMux(blob.NewGCSFetcher(client), httpFetcher)
	}

	categorizer := categorize.NewEngine(categories, extractor, log)
	registry := processor.NewRegistry(map[string]processor.DocumentProcessor{
		batch.ImportReceipts: processor.NewReceiptProcessor(fetcher, extractor, categorizer, processor.JurisdictionCanada, log),
		batch.ImportInvoices: processor.NewInvoiceProcessor(fetcher, extractor, categorizer, processor.JurisdictionCanada, log),
	})

	orchestrator := batch.NewOrchestrator(
		batches, documents, activity,
		registry, mapping.NewEngine(extractor), categorizer, fetcher, log,
		batch.Options{WorkerCount: cfg.Worker.WorkerCount, MaxRetries: cfg.Worker.MaxRetries},
	)
	return orchestrator, batches, cleanup, nil
}
