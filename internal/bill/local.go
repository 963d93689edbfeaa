package bill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/zombor/billed/internal/scanning"
)

// IDGenerator generates unique bill IDs
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

// LocalStore implements ScopedStore over a DB and a receipt Storage. The
// scanner is optional; when set, uploads come back with field suggestions.
type LocalStore struct {
	db          DB
	storage     Storage
	scanner     scanning.Scanner
	idGenerator IDGenerator
	email       string
}

// NewLocalStore creates an unscoped store. scanner may be nil.
func NewLocalStore(db DB, storage Storage, scanner scanning.Scanner) *LocalStore {
	return NewLocalStoreWithDeps(db, storage, scanner, uuidGenerator{})
}

// NewLocalStoreWithDeps creates a store with a custom ID generator for testing
func NewLocalStoreWithDeps(db DB, storage Storage, scanner scanning.Scanner, idGen IDGenerator) *LocalStore {
	return &LocalStore{
		db:          db,
		storage:     storage,
		scanner:     scanner,
		idGenerator: idGen,
	}
}

// Bills implements Store
func (s *LocalStore) Bills() BillsResource {
	return s
}

// ForEmail implements ScopedStore
func (s *LocalStore) ForEmail(email string) Store {
	scoped := *s
	scoped.email = email
	return &scoped
}

// Storage returns the receipt storage backing the store
func (s *LocalStore) Storage() Storage {
	return s.storage
}

// List returns bills in insertion order, limited to the scope's email if any
func (s *LocalStore) List(_ context.Context) ([]Bill, error) {
	stored, err := s.db.ListBills()
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}

	bills := make([]Bill, 0, len(stored))
	for _, b := range stored {
		if s.email != "" && b.Email != s.email {
			continue
		}
		bills = append(bills, *b)
	}
	return bills, nil
}

// Create saves the receipt and a pending draft bill pointing at it
func (s *LocalStore) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("creating bill: empty receipt")
	}
	email := req.Email
	if email == "" {
		email = s.email
	}

	id := s.idGenerator.Generate()
	data, contentType, fileName := req.Data, req.ContentType, sanitizeFilename(req.FileName)
	if scanning.NeedsConversion(data, contentType) {
		converted, err := scanning.ToPNG(data, contentType)
		if err != nil {
			return nil, fmt.Errorf("converting receipt: %w", err)
		}
		data, contentType = converted, scanning.PNG
		fileName = strings.TrimSuffix(fileName, filepath.Ext(fileName)) + ".png"
	}

	key, err := s.storage.Save(ctx, fmt.Sprintf("%s_%s", id, fileName), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	draft := &Bill{
		ID:       id,
		Email:    email,
		Pct:      DefaultPct,
		FileURL:  s.storage.URL(key),
		FileName: fileName,
		Status:   StatusPending,
	}
	if err := s.db.SaveBill(draft); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			slog.Warn("Failed to delete orphaned receipt", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}

	return &CreateResult{
		FileURL:    draft.FileURL,
		Key:        id,
		Suggestion: s.suggest(ctx, data, contentType),
	}, nil
}

// suggest scans the receipt. A failing scan only loses the suggestion.
func (s *LocalStore) suggest(ctx context.Context, data []byte, contentType string) *Suggestion {
	if s.scanner == nil {
		return nil
	}
	receipt, err := s.scanner.ScanReceipt(ctx, data, contentType)
	if err != nil {
		slog.Warn("Failed to scan receipt", "content_type", contentType, "file_size", len(data), "error", err)
		return nil
	}

	suggestion := &Suggestion{
		Name:   receipt.Name,
		Date:   receipt.Date,
		Amount: math.Round(receipt.Amount),
		VAT:    receipt.VAT,
	}
	if KnownType(receipt.Type) {
		suggestion.Type = receipt.Type
	}
	return suggestion
}

// Update replaces the selected bill. The id, submitter and receipt of the
// stored bill are kept, and a submitter in the data only fills an empty one.
// The status must follow Status.CanTransitionTo.
func (s *LocalStore) Update(_ context.Context, req UpdateRequest) error {
	if req.Selector == "" {
		return fmt.Errorf("updating bill: empty selector")
	}

	var next Bill
	if err := json.Unmarshal([]byte(req.Data), &next); err != nil {
		return fmt.Errorf("decoding bill: %w", err)
	}

	current, err := s.db.GetBill(req.Selector)
	if err != nil {
		return fmt.Errorf("getting bill %s: %w", req.Selector, err)
	}
	if s.email != "" && current.Email != s.email {
		return fmt.Errorf("getting bill %s: %w", req.Selector, ErrNotFound)
	}
	if !current.Status.CanTransitionTo(next.Status) {
		return fmt.Errorf("%w: %s to %q", ErrTransition, current.Status, next.Status)
	}

	next.ID = current.ID
	if current.Email != "" || next.Email == "" {
		next.Email = current.Email
	}
	if next.FileURL == "" {
		next.FileURL = current.FileURL
		next.FileName = current.FileName
	}

	if err := s.db.SaveBill(&next); err != nil {
		return fmt.Errorf("saving bill %s: %w", req.Selector, err)
	}
	return nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename keeps letters, digits, spaces, hyphens and underscores,
// and caps the base name at 50 characters.
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	return base + ext
}
