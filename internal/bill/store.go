package bill

import "context"

// Store is the persistence boundary the pages consume.
type Store interface {
	Bills() BillsResource
}

// ScopedStore is a Store that can narrow listings to one submitter.
type ScopedStore interface {
	Store
	// ForEmail returns a Store whose List only yields bills submitted by email.
	ForEmail(email string) Store
}

// BillsResource is the CRUD surface over bills
type BillsResource interface {
	// List returns the bills visible in this scope, in store order.
	List(ctx context.Context) ([]Bill, error)

	// Create stores a receipt and the draft bill that references it.
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)

	// Update replaces the bill named by req.Selector with the JSON in req.Data.
	Update(ctx context.Context, req UpdateRequest) error
}

// CreateRequest carries an uploaded receipt
type CreateRequest struct {
	Email       string
	FileName    string
	ContentType string
	Data        []byte
}

// Suggestion holds bill fields read off a receipt. Zero values mean unknown.
type Suggestion struct {
	Name   string  `json:"name,omitempty"`
	Type   string  `json:"type,omitempty"`
	Date   string  `json:"date,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	VAT    float64 `json:"vat,omitempty"`
}

// CreateResult is returned once the receipt is stored.
type CreateResult struct {
	FileURL    string      `json:"fileUrl"`
	Key        string      `json:"key"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
}

// UpdateRequest carries a JSON-encoded bill and the id it replaces.
type UpdateRequest struct {
	Data     string
	Selector string
}
