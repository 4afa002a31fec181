package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/raseedhq/raseed-backend/internal/jobs"
	"github.com/raseedhq/raseed-backend/internal/pipeline"
	"github.com/raseedhq/raseed-backend/internal/receipt"
)

type fakeStore struct {
	receipts  map[string]*receipt.Receipt
	nextID    int
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{receipts: make(map[string]*receipt.Receipt)}
}

func (s *fakeStore) Create(ctx context.Context, r *receipt.Receipt) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.nextID++
	id := fmt.Sprintf("rcpt-%d", s.nextID)
	r.ID = id
	s.receipts[id] = r
	return id, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*receipt.Receipt, error) {
	r, ok := s.receipts[id]
	if !ok {
		return nil, receipt.ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) Update(ctx context.Context, id string, u receipt.Update) error {
	r, ok := s.receipts[id]
	if !ok {
		return receipt.ErrNotFound
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.ExtractedData != nil {
		r.ExtractedData = u.ExtractedData
	}
	if u.ProcessingError != nil {
		r.ProcessingError = *u.ProcessingError
	}
	return nil
}

func (s *fakeStore) List(ctx context.Context, limit, offset int) ([]*receipt.Receipt, error) {
	out := []*receipt.Receipt{}
	for _, r := range s.receipts {
		out = append(out, r)
	}
	if offset >= len(out) {
		return []*receipt.Receipt{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeBlobs struct {
	uploadErr error
	uploaded  map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{uploaded: make(map[string][]byte)}
}

func (b *fakeBlobs) Upload(ctx context.Context, objectName, contentType string, body io.Reader) (string, error) {
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.uploaded[objectName] = data
	return "https://storage.googleapis.com/test-bucket/" + objectName, nil
}

func (b *fakeBlobs) Download(ctx context.Context, objectName string) ([]byte, error) {
	data, ok := b.uploaded[objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeProcessor struct {
	data *receipt.ExtractedData
	err  error
}

func (p *fakeProcessor) Process(ctx context.Context, receiptID string) (*receipt.ExtractedData, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.data, nil
}

type fakePublisher struct {
	published []*jobs.ProcessReceiptJob
	err       error
}

func (p *fakePublisher) PublishProcessReceipt(ctx context.Context, job *jobs.ProcessReceiptJob) error {
	if p.err != nil {
		return p.err
	}
	job.JobID = fmt.Sprintf("job-%d", len(p.published)+1)
	job.Status = jobs.JobStatusPending
	job.CreatedAt = time.Now().UTC()
	p.published = append(p.published, job)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeJobStore struct {
	jobs map[string]*jobs.ProcessReceiptJob
}

func (s *fakeJobStore) SaveJob(ctx context.Context, job *jobs.ProcessReceiptJob) error {
	s.jobs[job.JobID] = job
	return nil
}

func (s *fakeJobStore) GetJob(ctx context.Context, jobID string) (*jobs.ProcessReceiptJob, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found")
	}
	return job, nil
}

func (s *fakeJobStore) ListJobs(ctx context.Context, f jobs.JobFilter) ([]*jobs.ProcessReceiptJob, error) {
	out := []*jobs.ProcessReceiptJob{}
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func testLimits() UploadLimits {
	return UploadLimits{
		MaxFileSize:      10 * 1024 * 1024,
		AllowedFileTypes: []string{"image/jpeg", "image/png", "image/webp"},
	}
}

func newTestHandler(store *fakeStore, blobs *fakeBlobs, proc *fakeProcessor) *ReceiptsHandler {
	return NewReceiptsHandler(store, blobs, proc, &fakePublisher{},
		&fakeJobStore{jobs: map[string]*jobs.ProcessReceiptJob{}}, testLimits(), zerolog.Nop())
}

func multipartBody(t *testing.T, fieldName, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fieldName, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestUploadSuccess(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	h := newTestHandler(store, blobs, &fakeProcessor{})

	buf, ct := multipartBody(t, "file", "receipt.png", "image/png", []byte("fake png bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-receipt", buf)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	id, _ := body["receipt_id"].(string)
	if id == "" {
		t.Fatal("missing receipt_id")
	}
	rec, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("stored receipt not found: %v", err)
	}
	if rec.Status != receipt.StatusUploaded {
		t.Errorf("status = %q, want %q", rec.Status, receipt.StatusUploaded)
	}
	if !strings.HasPrefix(rec.FileMetadata.StoredFilename, "receipts/") {
		t.Errorf("stored filename %q missing receipts/ prefix", rec.FileMetadata.StoredFilename)
	}
	if len(blobs.uploaded) != 1 {
		t.Errorf("uploaded objects = %d, want 1", len(blobs.uploaded))
	}
}

func TestUploadNoFile(t *testing.T) {
	h := newTestHandler(newFakeStore(), newFakeBlobs(), &fakeProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/upload-receipt", strings.NewReader(""))
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	h := newTestHandler(newFakeStore(), newFakeBlobs(), &fakeProcessor{})

	buf, ct := multipartBody(t, "file", "notes.txt", "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-receipt", buf)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	body := decodeBody(t, rr)
	if detail, _ := body["detail"].(string); !strings.Contains(detail, "Invalid file type") {
		t.Errorf("detail = %q, want file type message", detail)
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	h := newTestHandler(store, blobs, &fakeProcessor{})
	h.limits.MaxFileSize = 16

	buf, ct := multipartBody(t, "file", "big.png", "image/png", bytes.Repeat([]byte("x"), 64))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-receipt", buf)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if len(blobs.uploaded) != 0 {
		t.Errorf("oversized file reached storage")
	}
}

func TestUploadDemoMode(t *testing.T) {
	h := NewReceiptsHandler(nil, nil, &fakeProcessor{}, &fakePublisher{}, &fakeJobStore{jobs: map[string]*jobs.ProcessReceiptJob{}}, testLimits(), zerolog.Nop())

	buf, ct := multipartBody(t, "file", "receipt.jpg", "image/jpeg", []byte("jpeg bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-receipt", buf)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody(t, rr)
	id, _ := body["receipt_id"].(string)
	if !strings.HasPrefix(id, "demo_") {
		t.Errorf("receipt_id = %q, want demo_ prefix", id)
	}
}

func TestListDefaults(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 3; i++ {
		rec := receipt.New(receipt.FileMetadata{OriginalFilename: fmt.Sprintf("r%d.png", i)}, "url")
		if _, err := store.Create(context.Background(), rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	h := newTestHandler(store, newFakeBlobs(), &fakeProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/api/receipts", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody(t, rr)
	if body["total"].(float64) != 3 {
		t.Errorf("total = %v, want 3", body["total"])
	}
	if body["limit"].(float64) != 10 {
		t.Errorf("limit = %v, want 10", body["limit"])
	}
	if body["offset"].(float64) != 0 {
		t.Errorf("offset = %v, want 0", body["offset"])
	}
}

func TestListRejectsBadPagination(t *testing.T) {
	h := newTestHandler(newFakeStore(), newFakeBlobs(), &fakeProcessor{})

	cases := []string{
		"/api/receipts?limit=0",
		"/api/receipts?limit=101",
		"/api/receipts?limit=abc",
		"/api/receipts?offset=-1",
	}
	for _, url := range cases {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rr := httptest.NewRecorder()
		h.List(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", url, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	h := newTestHandler(newFakeStore(), newFakeBlobs(), &fakeProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/api/receipts/missing", nil)
	rr := httptest.NewRecorder()
	h.Get(rr, req, "missing")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	body := decodeBody(t, rr)
	if body["detail"] != "Receipt not found" {
		t.Errorf("detail = %v, want %q", body["detail"], "Receipt not found")
	}
}

func TestGetSuccess(t *testing.T) {
	store := newFakeStore()
	rec := receipt.New(receipt.FileMetadata{OriginalFilename: "r.png"}, "url")
	id, _ := store.Create(context.Background(), rec)
	h := newTestHandler(store, newFakeBlobs(), &fakeProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/api/receipts/"+id, nil)
	rr := httptest.NewRecorder()
	h.Get(rr, req, id)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var got receipt.Receipt
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != id {
		t.Errorf("id = %q, want %q", got.ID, id)
	}
}

func TestProcessSuccess(t *testing.T) {
	merchant := "Corner Cafe"
	proc := &fakeProcessor{data: &receipt.ExtractedData{
		MerchantName:    &merchant,
		Currency:        "USD",
		ConfidenceScore: 0.9,
	}}
	h := newTestHandler(newFakeStore(), newFakeBlobs(), proc)

	req := httptest.NewRequest(http.MethodPost, "/api/receipts/r1/process", nil)
	rr := httptest.NewRecorder()
	h.Process(rr, req, "r1")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody(t, rr)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["confidence_score"].(float64) != 0.9 {
		t.Errorf("confidence_score = %v, want 0.9", body["confidence_score"])
	}
}

func TestProcessErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", fmt.Errorf("fetch receipt: %w", receipt.ErrNotFound), http.StatusNotFound},
		{"unavailable", pipeline.ErrUnavailable, http.StatusServiceUnavailable},
		{"already processing", pipeline.ErrAlreadyProcessing, http.StatusConflict},
		{"parse failure", &pipeline.ParseError{Raw: "not json", Err: errors.New("no JSON object found")}, http.StatusUnprocessableEntity},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(newFakeStore(), newFakeBlobs(), &fakeProcessor{err: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/api/receipts/r1/process", nil)
			rr := httptest.NewRecorder()
			h.Process(rr, req, "r1")

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}

func TestProcessAsync(t *testing.T) {
	store := newFakeStore()
	rec := receipt.New(receipt.FileMetadata{OriginalFilename: "r.png"}, "url")
	id, _ := store.Create(context.Background(), rec)
	h := newTestHandler(store, newFakeBlobs(), &fakeProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/receipts/"+id+"/process-async", nil)
	rr := httptest.NewRecorder()
	h.ProcessAsync(rr, req, id)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["job_id"] == "" {
		t.Error("missing job_id")
	}
	if body["receipt_id"] != id {
		t.Errorf("receipt_id = %v, want %q", body["receipt_id"], id)
	}
}

func TestProcessAsyncUnknownReceipt(t *testing.T) {
	h := newTestHandler(newFakeStore(), newFakeBlobs(), &fakeProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/receipts/missing/process-async", nil)
	rr := httptest.NewRecorder()
	h.ProcessAsync(rr, req, "missing")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestGetJob(t *testing.T) {
	js := &fakeJobStore{jobs: map[string]*jobs.ProcessReceiptJob{
		"job-1": {JobID: "job-1", ReceiptID: "r1", Status: jobs.JobStatusCompleted},
	}}
	h := newTestHandler(newFakeStore(), newFakeBlobs(), &fakeProcessor{})
	h.jobStore = js

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	rr := httptest.NewRecorder()
	h.GetJob(rr, req, "job-1")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody(t, rr)
	if body["status"] != string(jobs.JobStatusCompleted) {
		t.Errorf("status = %v, want %q", body["status"], jobs.JobStatusCompleted)
	}

	rr = httptest.NewRecorder()
	h.GetJob(rr, req, "job-2")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestProcessingStatus(t *testing.T) {
	store := newFakeStore()
	rec := receipt.New(receipt.FileMetadata{OriginalFilename: "r.png"}, "url")
	id, _ := store.Create(context.Background(), rec)
	rec.Status = receipt.StatusProcessed
	rec.ExtractedData = &receipt.ExtractedData{Currency: "USD", ConfidenceScore: 0.8}

	h := newTestHandler(store, newFakeBlobs(), &fakeProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/api/receipts/"+id+"/processing-status", nil)
	rr := httptest.NewRecorder()
	h.ProcessingStatus(rr, req, id)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody(t, rr)
	if body["status"] != string(receipt.StatusProcessed) {
		t.Errorf("status = %v, want %q", body["status"], receipt.StatusProcessed)
	}
	if body["has_extracted_data"] != true {
		t.Errorf("has_extracted_data = %v, want true", body["has_extracted_data"])
	}
	if body["confidence_score"].(float64) != 0.8 {
		t.Errorf("confidence_score = %v, want 0.8", body["confidence_score"])
	}
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.Health(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeBody(t, rr)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["firebase_initialized"] != true {
		t.Errorf("firebase_initialized = %v, want true", body["firebase_initialized"])
	}
}
