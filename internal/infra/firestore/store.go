package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/raseedhq/raseed-backend/internal/receipt"
)

// Store is the Firestore implementation of receipt.Store. One document per
// receipt, keyed by the Firestore-assigned document ID, in a named
// collection. It holds a shared client to avoid creating a new connection
// for each operation.
type Store struct {
	client     *firestore.Client
	collection string
}

// NewStore creates a receipt store for the given project and collection.
// Application Default Credentials must be configured.
func NewStore(ctx context.Context, projectID, collection string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating firestore client: %w", err)
	}
	return &Store{client: client, collection: collection}, nil
}

// Close closes the Firestore client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Create persists a new receipt document and returns its assigned ID.
func (s *Store) Create(ctx context.Context, r *receipt.Receipt) (string, error) {
	ref, _, err := s.client.Collection(s.collection).Add(ctx, r)
	if err != nil {
		return "", fmt.Errorf("Create: adding receipt document: %w", err)
	}
	return ref.ID, nil
}

// Get returns the receipt with the given document ID.
func (s *Store) Get(ctx context.Context, id string) (*receipt.Receipt, error) {
	doc, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, receipt.ErrNotFound
		}
		return nil, fmt.Errorf("Get: fetching receipt %s: %w", id, err)
	}

	var r receipt.Receipt
	if err := doc.DataTo(&r); err != nil {
		return nil, fmt.Errorf("Get: decoding receipt %s: %w", id, err)
	}
	r.ID = doc.Ref.ID
	return &r, nil
}

// Update applies a partial update; updated_at is refreshed on every call.
func (s *Store) Update(ctx context.Context, id string, upd receipt.Update) error {
	updates := []firestore.Update{
		{Path: "updated_at", Value: time.Now().UTC()},
	}
	if upd.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*upd.Status)})
	}
	if upd.ExtractedData != nil {
		updates = append(updates, firestore.Update{Path: "extracted_data", Value: upd.ExtractedData})
	}
	if upd.ProcessingError != nil {
		updates = append(updates, firestore.Update{Path: "processing_error", Value: *upd.ProcessingError})
	}

	_, err := s.client.Collection(s.collection).Doc(id).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return receipt.ErrNotFound
		}
		return fmt.Errorf("Update: updating receipt %s: %w", id, err)
	}
	return nil
}

// List returns up to limit receipts ordered by created_at descending.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*receipt.Receipt, error) {
	it := s.client.Collection(s.collection).
		OrderBy("created_at", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer it.Stop()

	var receipts []*receipt.Receipt
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: iterating receipts: %w", err)
		}

		var r receipt.Receipt
		if err := doc.DataTo(&r); err != nil {
			return nil, fmt.Errorf("List: decoding receipt %s: %w", doc.Ref.ID, err)
		}
		r.ID = doc.Ref.ID
		receipts = append(receipts, &r)
	}

	return receipts, nil
}

var _ receipt.Store = (*Store)(nil)
