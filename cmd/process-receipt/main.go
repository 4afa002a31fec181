package main

import (
	"context"
	"flag"
	"time"

	"github.com/raseedhq/raseed-backend/internal/config"
	infraFS "github.com/raseedhq/raseed-backend/internal/infra/firestore"
	"github.com/raseedhq/raseed-backend/internal/logger"
	"github.com/raseedhq/raseed-backend/internal/pipeline"
	"github.com/raseedhq/raseed-backend/internal/vision"
)

// process-receipt runs the extraction pipeline once for a single receipt.
// Useful for reprocessing a receipt that failed, without going through the
// API.
func main() {
	var (
		receiptID = flag.String("id", "", "receipt document ID to process")
		timeout   = flag.Duration("timeout", 5*time.Minute, "overall processing timeout")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.NewWithLevel(cfg.Logger.Level)

	if *receiptID == "" {
		log.Fatal().Msg("-id is required")
	}
	if cfg.Google.ProjectID == "" {
		log.Fatal().Msg("GOOGLE_PROJECT_ID is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := infraFS.NewStore(ctx, cfg.Google.ProjectID, cfg.Google.ReceiptsCollection)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Firestore store")
	}
	defer store.Close()

	extractor, err := vision.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	proc := pipeline.New(store, extractor, log)

	data, err := proc.Process(ctx, *receiptID)
	if err != nil {
		log.Fatal().Err(err).Str("receipt_id", *receiptID).Msg("Processing failed")
	}

	log.Info().
		Str("receipt_id", *receiptID).
		Float64("confidence", data.ConfidenceScore).
		Msg("Receipt processed")
}
