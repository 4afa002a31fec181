package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/raseedhq/raseed-backend/internal/receipt"
)

// ParseFailureMessage is stored as the receipt's processing_error when the
// model answered but its output could not be parsed.
const ParseFailureMessage = "AI extraction failed - could not extract data from image"

// fetchTimeout bounds the image download from the blob store URL.
const fetchTimeout = 30 * time.Second

// Extractor turns an image into the model's raw text response.
type Extractor interface {
	Available() bool
	Extract(ctx context.Context, prompt string, imageBytes []byte, mimeType string) (string, error)
}

// Pipeline orchestrates one extraction run: fetch image, prompt the model,
// parse the response, persist the result. Whatever happens after the receipt
// enters processing, it is left in a terminal status (processed or error)
// by the time Process returns.
type Pipeline struct {
	store      receipt.Store
	extractor  Extractor
	httpClient *http.Client
	log        zerolog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightLock
}

// inflightLock serializes runs for one receipt. refs counts the holders and
// waiters so the map entry can be dropped once the last one releases it.
type inflightLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a pipeline with its collaborators injected. The HTTP client
// used for image fetches carries the 30-second timeout.
func New(store receipt.Store, extractor Extractor, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		extractor:  extractor,
		httpClient: &http.Client{Timeout: fetchTimeout},
		log:        log,
		inflight:   make(map[string]*inflightLock),
	}
}

// Process runs the extraction pipeline for one receipt and returns the
// extracted record. Concurrent calls for the same identifier are serialized.
//
// Failure outcomes are typed: receipt.ErrNotFound (unknown identifier),
// ErrUnavailable (no extractor configured, receipt untouched),
// ErrAlreadyProcessing (another run owns the receipt), *ParseError (model
// output unparseable, receipt marked error); anything else marks the receipt
// error with the failure text.
func (p *Pipeline) Process(ctx context.Context, receiptID string) (*receipt.ExtractedData, error) {
	lock := p.acquire(receiptID)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		p.release(receiptID, lock)
	}()

	rec, err := p.store.Get(ctx, receiptID)
	if err != nil {
		return nil, err
	}

	if !p.extractor.Available() {
		return nil, ErrUnavailable
	}

	if rec.Status == receipt.StatusProcessing {
		return nil, ErrAlreadyProcessing
	}
	next, err := rec.Status.Transition(receipt.StatusProcessing)
	if err != nil {
		return nil, err
	}

	// Persist processing before any external call so concurrent status
	// reads reflect the in-flight run. A receipt only carries
	// processing_error while in the error state, so a reprocess clears
	// any message left by a previous failed run.
	cleared := ""
	if err := p.store.Update(ctx, receiptID, receipt.Update{
		Status:          &next,
		ProcessingError: &cleared,
	}); err != nil {
		return nil, fmt.Errorf("mark receipt processing: %w", err)
	}

	data, err := p.run(ctx, rec)
	if err != nil {
		msg := err.Error()
		var perr *ParseError
		if errors.As(err, &perr) {
			msg = ParseFailureMessage
			p.log.Warn().
				Str("receipt_id", receiptID).
				Str("raw_response", perr.Fallback.RawText).
				Msg("Model output was not parseable JSON")
		}
		p.markError(ctx, receiptID, msg)
		return nil, err
	}

	processed := receipt.StatusProcessed
	if err := p.store.Update(ctx, receiptID, receipt.Update{
		Status:          &processed,
		ExtractedData:   data,
		ProcessingError: &cleared,
	}); err != nil {
		p.markError(ctx, receiptID, err.Error())
		return nil, fmt.Errorf("persist extracted data: %w", err)
	}

	p.log.Info().
		Str("receipt_id", receiptID).
		Float64("confidence", data.ConfidenceScore).
		Int("items", len(data.Items)).
		Msg("Receipt processed")

	return data, nil
}

// run executes the external steps: fetch, normalize, extract, clean, parse.
func (p *Pipeline) run(ctx context.Context, rec *receipt.Receipt) (*receipt.ExtractedData, error) {
	imageBytes, err := p.fetchImage(ctx, rec.DownloadURL)
	if err != nil {
		return nil, err
	}

	normalized, mimeType, err := normalizeImage(imageBytes)
	if err != nil {
		return nil, err
	}

	rawResponse, err := p.extractor.Extract(ctx, ExtractionPrompt, normalized, mimeType)
	if err != nil {
		return nil, fmt.Errorf("model extraction: %w", err)
	}

	cleaned, err := CleanModelJSON(rawResponse)
	if err != nil {
		return nil, &ParseError{Raw: rawResponse, Fallback: FallbackData(rawResponse), Err: err}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, &ParseError{Raw: rawResponse, Fallback: FallbackData(rawResponse), Err: err}
	}

	return mapExtractedData(parsed), nil
}

// fetchImage downloads the stored blob with a bounded timeout. A non-2xx
// response fails extraction; there is no automatic retry.
func (p *Pipeline) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}

	return data, nil
}

// markError moves the receipt to the error terminal state. Best effort: a
// failed status write is logged but does not mask the original failure.
func (p *Pipeline) markError(ctx context.Context, receiptID, message string) {
	status := receipt.StatusError
	err := p.store.Update(ctx, receiptID, receipt.Update{
		Status:          &status,
		ProcessingError: &message,
	})
	if err != nil {
		p.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Failed to mark receipt as error")
	}
}

// acquire returns the per-identifier lock, creating it on first use, and
// registers the caller as a holder.
func (p *Pipeline) acquire(receiptID string) *inflightLock {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.inflight[receiptID]
	if !ok {
		lock = &inflightLock{}
		p.inflight[receiptID] = lock
	}
	lock.refs++
	return lock
}

// release drops one holder and evicts the map entry once nobody is left
// holding or waiting on it.
func (p *Pipeline) release(receiptID string, lock *inflightLock) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(p.inflight, receiptID)
	}
}
