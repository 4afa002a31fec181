package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raseedhq/raseed-backend/internal/api/handlers"
	"github.com/raseedhq/raseed-backend/internal/api/middleware"
	"github.com/raseedhq/raseed-backend/internal/blobstore"
	"github.com/raseedhq/raseed-backend/internal/config"
	infraFS "github.com/raseedhq/raseed-backend/internal/infra/firestore"
	"github.com/raseedhq/raseed-backend/internal/jobs"
	"github.com/raseedhq/raseed-backend/internal/jobs/inmemory"
	"github.com/raseedhq/raseed-backend/internal/logger"
	"github.com/raseedhq/raseed-backend/internal/pipeline"
	"github.com/raseedhq/raseed-backend/internal/receipt"
	"github.com/raseedhq/raseed-backend/internal/vision"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithLevel(cfg.Logger.Level)

	ctx := context.Background()

	// Firestore and GCS are optional: without them the API runs in demo
	// mode so the frontend can be developed against it.
	var store receipt.Store
	var fsStore *infraFS.Store
	if cfg.Google.ProjectID != "" {
		var err error
		fsStore, err = infraFS.NewStore(ctx, cfg.Google.ProjectID, cfg.Google.ReceiptsCollection)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Firestore store")
		}
		defer fsStore.Close()
		store = fsStore
	} else {
		log.Warn().Msg("No GOOGLE_PROJECT_ID configured - running in demo mode")
	}

	var blobs blobstore.Store
	var gcs *blobstore.GCSStore
	if cfg.Google.StorageBucket != "" {
		var err error
		gcs, err = blobstore.NewGCSStore(ctx, cfg.Google.StorageBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS store")
		}
		defer gcs.Close()
		blobs = gcs
	} else {
		log.Warn().Msg("No STORAGE_BUCKET configured - uploads will not be persisted")
	}

	extractor, err := vision.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	if !extractor.Available() {
		log.Warn().Msg("No GEMINI_API_KEY configured - receipt extraction disabled")
	}

	var proc *pipeline.Pipeline
	if store != nil {
		proc = pipeline.New(store, extractor, log)
	}

	// Job infrastructure for async processing
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.QueueSize, cfg.Jobs.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job *jobs.ProcessReceiptJob) error {
		if proc == nil {
			return pipeline.ErrUnavailable
		}

		log.Info().
			Str("job_id", job.JobID).
			Str("receipt_id", job.ReceiptID).
			Msg("Processing receipt job")

		if _, err := proc.Process(ctx, job.ReceiptID); err != nil {
			log.Error().
				Err(err).
				Str("job_id", job.JobID).
				Str("receipt_id", job.ReceiptID).
				Msg("Receipt processing failed")
			return err
		}

		log.Info().
			Str("job_id", job.JobID).
			Str("receipt_id", job.ReceiptID).
			Msg("Receipt processing completed")
		return nil
	}

	go func() {
		log.Info().Int("workers", cfg.Jobs.Workers).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job workers stopped with error")
		}
	}()

	// Handlers
	var processor handlers.Processor
	if proc != nil {
		processor = proc
	}
	receiptsHandler := handlers.NewReceiptsHandler(
		store, blobs, processor, jobQueue, jobStore,
		handlers.UploadLimits{
			MaxFileSize:      cfg.Uploads.MaxFileSize,
			AllowedFileTypes: cfg.Uploads.AllowedFileTypes,
		},
		log,
	)
	healthHandler := handlers.NewHealthHandler(store != nil)

	// Router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/upload-receipt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			receiptsHandler.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			receiptsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/receipts/")
		if rest == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Receipt ID is required")
			return
		}

		receiptID, action, _ := strings.Cut(rest, "/")
		switch {
		case action == "" && r.Method == http.MethodGet:
			receiptsHandler.Get(w, r, receiptID)
		case action == "process" && r.Method == http.MethodPost:
			receiptsHandler.Process(w, r, receiptID)
		case action == "process-async" && r.Method == http.MethodPost:
			receiptsHandler.ProcessAsync(w, r, receiptID)
		case action == "processing-status" && r.Method == http.MethodGet:
			receiptsHandler.ProcessingStatus(w, r, receiptID)
		case action == "":
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		receiptsHandler.GetJob(w, r, jobID)
	})

	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		healthHandler.Root(w, r)
	})

	// Middleware chain
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
