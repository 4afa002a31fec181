package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/raseedhq/raseed-backend/internal/api/middleware"
	"github.com/raseedhq/raseed-backend/internal/blobstore"
	"github.com/raseedhq/raseed-backend/internal/jobs"
	"github.com/raseedhq/raseed-backend/internal/pipeline"
	"github.com/raseedhq/raseed-backend/internal/receipt"
)

// Processor runs the extraction pipeline for one receipt.
type Processor interface {
	Process(ctx context.Context, receiptID string) (*receipt.ExtractedData, error)
}

// UploadLimits is the upload validation configuration.
type UploadLimits struct {
	MaxFileSize      int64
	AllowedFileTypes []string
}

// ReceiptsHandler handles all receipt endpoints. A nil store or blob store
// puts the handler in demo mode: uploads return placeholder identifiers and
// nothing is persisted.
type ReceiptsHandler struct {
	store     receipt.Store
	blobs     blobstore.Store
	processor Processor
	publisher jobs.Publisher
	jobStore  jobs.JobStore
	limits    UploadLimits
	validate  *validator.Validate
	log       zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler with its collaborators
// injected.
func NewReceiptsHandler(
	store receipt.Store,
	blobs blobstore.Store,
	processor Processor,
	publisher jobs.Publisher,
	jobStore jobs.JobStore,
	limits UploadLimits,
	log zerolog.Logger,
) *ReceiptsHandler {
	return &ReceiptsHandler{
		store:     store,
		blobs:     blobs,
		processor: processor,
		publisher: publisher,
		jobStore:  jobStore,
		limits:    limits,
		validate:  validator.New(),
		log:       log,
	}
}

func (h *ReceiptsHandler) demoMode() bool {
	return h.store == nil || h.blobs == nil
}

// Upload handles POST /api/upload-receipt
func (h *ReceiptsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Reject oversized bodies before spooling the whole upload. The slack
	// covers multipart framing overhead; the exact per-file cap is checked
	// below.
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxFileSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !h.allowedType(contentType) {
		middleware.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid file type. Allowed types: %s", strings.Join(h.limits.AllowedFileTypes, ", ")))
		return
	}

	if header.Size > h.limits.MaxFileSize {
		middleware.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("File size must be less than %dMB", h.limits.MaxFileSize/(1024*1024)))
		return
	}

	objectName := blobstore.ObjectName(header.Filename, time.Now().UTC())

	if h.demoMode() {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"receipt_id":   "demo_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8],
			"download_url": "https://demo.storage.local/" + objectName,
			"metadata": map[string]interface{}{
				"filename": header.Filename,
				"size":     header.Size,
				"type":     contentType,
			},
			"message": "Demo mode - storage not configured",
		})
		return
	}

	downloadURL, err := h.blobs.Upload(ctx, objectName, contentType, file)
	if err != nil {
		h.log.Error().Err(err).Str("object", objectName).Msg("Storage upload failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Upload failed: "+err.Error())
		return
	}

	rec := receipt.New(receipt.FileMetadata{
		OriginalFilename: header.Filename,
		StoredFilename:   objectName,
		FileSize:         header.Size,
		ContentType:      contentType,
		UploadDate:       time.Now().UTC(),
	}, downloadURL)

	receiptID, err := h.store.Create(ctx, rec)
	if err != nil {
		// The blob write already succeeded; a failed record create leaves
		// an unreferenced blob behind.
		h.log.Error().Err(err).Str("object", objectName).Msg("Failed to create receipt record")
		middleware.WriteError(w, http.StatusInternalServerError, "Database save failed: "+err.Error())
		return
	}

	h.log.Info().
		Str("receipt_id", receiptID).
		Str("object", objectName).
		Int64("bytes", header.Size).
		Msg("Receipt uploaded")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"receipt_id":   receiptID,
		"download_url": downloadURL,
		"metadata": map[string]interface{}{
			"filename": header.Filename,
			"size":     header.Size,
			"type":     contentType,
		},
	})
}

func (h *ReceiptsHandler) allowedType(contentType string) bool {
	for _, t := range h.limits.AllowedFileTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// listQuery carries the validated pagination parameters.
type listQuery struct {
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`
}

// List handles GET /api/receipts
func (h *ReceiptsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := listQuery{Limit: 10, Offset: 0}
	query := r.URL.Query()

	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		q.Limit = n
	}
	if s := query.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		q.Offset = n
	}

	if err := h.validate.Struct(q); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "limit must be in [1,100] and offset must be >= 0")
		return
	}

	receipts := []*receipt.Receipt{}
	if !h.demoMode() {
		var err error
		receipts, err = h.store.List(ctx, q.Limit, q.Offset)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to list receipts")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch receipts: "+err.Error())
			return
		}
		if receipts == nil {
			receipts = []*receipt.Receipt{}
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"total":    len(receipts),
		"limit":    q.Limit,
		"offset":   q.Offset,
	})
}

// Get handles GET /api/receipts/{id}
func (h *ReceiptsHandler) Get(w http.ResponseWriter, r *http.Request, receiptID string) {
	ctx := r.Context()

	if h.demoMode() {
		middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
		return
	}

	rec, err := h.store.Get(ctx, receiptID)
	if err != nil {
		if errors.Is(err, receipt.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
			return
		}
		h.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Failed to fetch receipt")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch receipt: "+err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, rec)
}

// Process handles POST /api/receipts/{id}/process
func (h *ReceiptsHandler) Process(w http.ResponseWriter, r *http.Request, receiptID string) {
	ctx := r.Context()

	if h.demoMode() || h.processor == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "AI processing service is not available")
		return
	}

	data, err := h.processor.Process(ctx, receiptID)
	if err != nil {
		h.writeProcessError(w, receiptID, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"extracted_data":   data,
		"confidence_score": data.ConfidenceScore,
	})
}

func (h *ReceiptsHandler) writeProcessError(w http.ResponseWriter, receiptID string, err error) {
	var perr *pipeline.ParseError

	switch {
	case errors.Is(err, receipt.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
	case errors.Is(err, pipeline.ErrUnavailable):
		middleware.WriteError(w, http.StatusServiceUnavailable, "AI processing service is not available")
	case errors.Is(err, pipeline.ErrAlreadyProcessing):
		middleware.WriteError(w, http.StatusConflict, "Receipt is already being processed")
	case errors.As(err, &perr):
		middleware.WriteError(w, http.StatusUnprocessableEntity, pipeline.ParseFailureMessage)
	default:
		h.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Receipt processing failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Processing failed: "+err.Error())
	}
}

// ProcessAsync handles POST /api/receipts/{id}/process-async
func (h *ReceiptsHandler) ProcessAsync(w http.ResponseWriter, r *http.Request, receiptID string) {
	ctx := r.Context()

	if h.demoMode() {
		middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
		return
	}

	if _, err := h.store.Get(ctx, receiptID); err != nil {
		if errors.Is(err, receipt.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch receipt: "+err.Error())
		return
	}

	job := &jobs.ProcessReceiptJob{ReceiptID: receiptID}
	if err := h.publisher.PublishProcessReceipt(ctx, job); err != nil {
		h.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Failed to enqueue processing job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue processing job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("receipt_id", receiptID).Msg("Processing job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"receipt_id": receiptID,
		"status":     string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *ReceiptsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ProcessingStatus handles GET /api/receipts/{id}/processing-status
func (h *ReceiptsHandler) ProcessingStatus(w http.ResponseWriter, r *http.Request, receiptID string) {
	ctx := r.Context()

	if h.demoMode() {
		middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
		return
	}

	rec, err := h.store.Get(ctx, receiptID)
	if err != nil {
		if errors.Is(err, receipt.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch receipt: "+err.Error())
		return
	}

	var confidence *float64
	if rec.ExtractedData != nil {
		confidence = &rec.ExtractedData.ConfidenceScore
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":             rec.Status,
		"has_extracted_data": rec.ExtractedData != nil,
		"processing_error":   rec.ProcessingError,
		"confidence_score":   confidence,
		"updated_at":         rec.UpdatedAt,
	})
}

// HealthHandler reports liveness and store connectivity.
type HealthHandler struct {
	storeInitialized bool
}

// NewHealthHandler creates a health handler. storeInitialized reflects
// whether the Firestore/GCS clients were constructed at startup.
func NewHealthHandler(storeInitialized bool) *HealthHandler {
	return &HealthHandler{storeInitialized: storeInitialized}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "healthy",
		"firebase_initialized": h.storeInitialized,
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
	})
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Raseed receipts API is running",
		"version": "1.0.0",
	})
}
