package scanning

import "context"

// ReceiptData holds the bill fields read off a receipt image
type ReceiptData struct {
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Date   string  `json:"date"` // YYYY-MM-DD, empty when unreadable
	Amount float64 `json:"amount"`
	VAT    float64 `json:"vat"`
}

// Scanner reads a receipt and suggests bill fields
type Scanner interface {
	// ScanReceipt analyzes a receipt image or PDF
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Close releases the scanner's resources
	Close() error
}
