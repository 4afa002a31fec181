package receipt

import (
	"time"
)

// FileMetadata describes the originally uploaded file. It is written once at
// upload time and never mutated afterwards.
type FileMetadata struct {
	OriginalFilename string    `json:"original_filename" firestore:"original_filename"`
	StoredFilename   string    `json:"stored_filename" firestore:"stored_filename"`
	FileSize         int64     `json:"file_size" firestore:"file_size"`
	ContentType      string    `json:"content_type" firestore:"content_type"`
	UploadDate       time.Time `json:"upload_date" firestore:"upload_date"`
}

// ExtractedItem is a single line item the model read off the receipt.
type ExtractedItem struct {
	Name       string   `json:"name" firestore:"name"`
	Quantity   float64  `json:"quantity" firestore:"quantity"`
	UnitPrice  *float64 `json:"unit_price" firestore:"unit_price"`
	TotalPrice *float64 `json:"total_price" firestore:"total_price"`
	Category   *string  `json:"category" firestore:"category"`
}

// ExtractedData is the model's interpretation of one receipt image. Every
// scalar is optional because the model may omit any field. A new ExtractedData
// wholly replaces any prior value on the receipt; values are never merged.
type ExtractedData struct {
	MerchantName    *string         `json:"merchant_name" firestore:"merchant_name"`
	MerchantAddress *string         `json:"merchant_address" firestore:"merchant_address"`
	ReceiptDate     *string         `json:"receipt_date" firestore:"receipt_date"`
	ReceiptTime     *string         `json:"receipt_time" firestore:"receipt_time"`
	ReceiptNumber   *string         `json:"receipt_number" firestore:"receipt_number"`
	PaymentMethod   *string         `json:"payment_method" firestore:"payment_method"`
	Currency        string          `json:"currency" firestore:"currency"`
	Items           []ExtractedItem `json:"items" firestore:"items"`
	Subtotal        *float64        `json:"subtotal" firestore:"subtotal"`
	TaxAmount       *float64        `json:"tax_amount" firestore:"tax_amount"`
	TotalAmount     *float64        `json:"total_amount" firestore:"total_amount"`
	ConfidenceScore float64         `json:"confidence_score" firestore:"confidence_score"`
	RawText         string          `json:"raw_text" firestore:"raw_text"`
}

// Receipt is one uploaded purchase-proof record and its processing lifecycle.
type Receipt struct {
	ID              string         `json:"id" firestore:"-"`
	FileMetadata    FileMetadata   `json:"file_metadata" firestore:"file_metadata"`
	DownloadURL     string         `json:"download_url" firestore:"download_url"`
	Status          Status         `json:"status" firestore:"status"`
	ExtractedData   *ExtractedData `json:"extracted_data" firestore:"extracted_data"`
	ProcessingError string         `json:"processing_error,omitempty" firestore:"processing_error"`
	CreatedAt       time.Time      `json:"created_at" firestore:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" firestore:"updated_at"`
}

// New builds a fresh receipt in the uploaded state.
func New(meta FileMetadata, downloadURL string) *Receipt {
	now := time.Now().UTC()
	return &Receipt{
		FileMetadata: meta,
		DownloadURL:  downloadURL,
		Status:       StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
