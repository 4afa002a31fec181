package pipeline

import (
	"github.com/raseedhq/raseed-backend/internal/receipt"
)

const (
	// DefaultCurrency is used when the model omits the currency code.
	DefaultCurrency = "USD"
	// DefaultConfidence is used when the model omits its confidence score.
	DefaultConfidence = 0.5
	// FallbackConfidence is the fixed score of a fallback record.
	FallbackConfidence = 0.1
	// FallbackRawTextLimit bounds how much raw model output a fallback
	// record keeps for debugging.
	FallbackRawTextLimit = 500
)

// mapExtractedData converts the decoded model JSON into an ExtractedData
// record. Missing keys become nil; quantity defaults to 1, currency to USD,
// confidence to 0.5. The confidence score is clamped into [0,1].
func mapExtractedData(data map[string]interface{}) *receipt.ExtractedData {
	// Always an array, never null, even when the model omits items.
	items := []receipt.ExtractedItem{}
	if rawItems, ok := data["items"].([]interface{}); ok {
		for _, ri := range rawItems {
			itemData, ok := ri.(map[string]interface{})
			if !ok {
				continue
			}
			item := receipt.ExtractedItem{
				Name:       stringOr(itemData, "name", "Unknown Item"),
				Quantity:   floatOr(itemData, "quantity", 1),
				UnitPrice:  optFloat(itemData, "unit_price"),
				TotalPrice: optFloat(itemData, "total_price"),
				Category:   optString(itemData, "category"),
			}
			items = append(items, item)
		}
	}

	return &receipt.ExtractedData{
		MerchantName:    optString(data, "merchant_name"),
		MerchantAddress: optString(data, "merchant_address"),
		ReceiptDate:     optString(data, "receipt_date"),
		ReceiptTime:     optString(data, "receipt_time"),
		ReceiptNumber:   optString(data, "receipt_number"),
		PaymentMethod:   optString(data, "payment_method"),
		Currency:        stringOr(data, "currency", DefaultCurrency),
		Items:           items,
		Subtotal:        optFloat(data, "subtotal"),
		TaxAmount:       optFloat(data, "tax_amount"),
		TotalAmount:     optFloat(data, "total_amount"),
		ConfidenceScore: clampConfidence(floatOr(data, "confidence_score", DefaultConfidence)),
		RawText:         stringOr(data, "raw_text", ""),
	}
}

// FallbackData builds the low-confidence placeholder record used when the
// model's response cannot be parsed as JSON. It keeps the first 500
// characters of the raw output for debugging.
func FallbackData(rawResponse string) *receipt.ExtractedData {
	merchant := "Unknown Merchant"
	// The limit counts characters, not bytes, so multibyte runes are never
	// split mid-sequence.
	if runes := []rune(rawResponse); len(runes) > FallbackRawTextLimit {
		rawResponse = string(runes[:FallbackRawTextLimit])
	}
	return &receipt.ExtractedData{
		MerchantName:    &merchant,
		Currency:        DefaultCurrency,
		Items:           []receipt.ExtractedItem{},
		ConfidenceScore: FallbackConfidence,
		RawText:         rawResponse,
	}
}

func clampConfidence(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func optString(data map[string]interface{}, key string) *string {
	if v, ok := data[key].(string); ok {
		return &v
	}
	return nil
}

func stringOr(data map[string]interface{}, key, fallback string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return fallback
}

func optFloat(data map[string]interface{}, key string) *float64 {
	if v, ok := data[key].(float64); ok {
		return &v
	}
	return nil
}

func floatOr(data map[string]interface{}, key string, fallback float64) float64 {
	if v, ok := data[key].(float64); ok {
		return v
	}
	return fallback
}
