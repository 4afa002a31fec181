package pipeline

// PromptVersion identifies the extraction prompt revision. Bump it whenever
// the prompt text changes so stored results can be traced to a prompt.
const PromptVersion = "v1"

// ExtractionPrompt instructs the model to return only one JSON object with a
// fixed key set. Dates are YYYY-MM-DD, times HH:MM, prices plain decimals.
const ExtractionPrompt = `You are an expert receipt data extractor. Analyze this receipt image and extract the following information in JSON format.

Return ONLY a valid JSON object with this exact structure:

{
    "merchant_name": "string - name of the store/restaurant",
    "merchant_address": "string - full address if visible",
    "receipt_date": "string - date in YYYY-MM-DD format",
    "receipt_time": "string - time in HH:MM format",
    "receipt_number": "string - receipt/transaction number",
    "payment_method": "string - cash, card, etc.",
    "currency": "string - currency code (USD, EUR, etc.)",
    "items": [
        {
            "name": "string - item name",
            "quantity": number - quantity (default 1),
            "unit_price": number - price per unit,
            "total_price": number - total for this item,
            "category": "string - food, household, etc."
        }
    ],
    "subtotal": number - subtotal before tax,
    "tax_amount": number - tax amount,
    "total_amount": number - final total,
    "confidence_score": number - your confidence (0.0 to 1.0),
    "raw_text": "string - any additional text you see"
}

Rules:
1. Extract ALL visible items with their prices
2. Use null for missing fields
3. Calculate confidence based on image clarity
4. Include partial data even if some fields are unclear
5. For prices, use decimal numbers (e.g., 12.99, not "$12.99")
6. Guess reasonable categories for items
7. Return only the JSON, no additional text`
