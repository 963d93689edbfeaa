package pages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/views"
)

var (
	// ErrUnsupportedFile is returned for receipts that are not images or PDFs.
	ErrUnsupportedFile = errors.New("unsupported receipt file")

	// ErrNoStore is returned when a write is attempted without a store.
	ErrNoStore = errors.New("no store configured")
)

var acceptedContentTypes = []string{
	"image/jpg",
	"image/jpeg",
	"image/png",
	"image/heic",
	"image/heif",
	"application/pdf",
}

// Upload is a receipt picked in the file input
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Draft is the uploaded receipt awaiting the rest of the form
type Draft struct {
	Key        string           `json:"key"`
	FileURL    string           `json:"fileUrl"`
	FileName   string           `json:"fileName"`
	Suggestion *bill.Suggestion `json:"suggestion,omitempty"`
}

// Form holds the submitted field values as typed
type Form struct {
	Type       string
	Name       string
	Date       string
	Amount     string
	VAT        string
	Pct        string
	Commentary string
}

// Violations maps form fields to what is wrong with them
type Violations map[string]string

func (v Violations) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

// NewBill drives the bill submission form
type NewBill struct {
	Deps
}

// NewNewBill creates the controller
func NewNewBill(d Deps) *NewBill {
	return &NewBill{Deps: d}
}

// HandleChangeFile uploads the receipt and keeps the resulting draft in the
// session until the form is submitted.
func (n *NewBill) HandleChangeFile(ctx context.Context, u Upload) (*Draft, error) {
	contentType := strings.ToLower(strings.TrimSpace(u.ContentType))
	if !slices.Contains(acceptedContentTypes, contentType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, u.ContentType)
	}
	user, err := CurrentUser(n.Session)
	if err != nil {
		return nil, err
	}
	if n.Store == nil {
		return nil, ErrNoStore
	}

	result, err := n.Store.Bills().Create(ctx, bill.CreateRequest{
		Email:       user.Email,
		FileName:    u.Name,
		ContentType: contentType,
		Data:        u.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("uploading receipt: %w", err)
	}

	draft := &Draft{
		Key:        result.Key,
		FileURL:    result.FileURL,
		FileName:   u.Name,
		Suggestion: result.Suggestion,
	}
	data, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("encoding draft: %w", err)
	}
	n.Session.Set(KeyNewBill, string(data))
	return draft, nil
}

// Draft returns the uploaded receipt, if any
func (n *NewBill) Draft() (*Draft, bool) {
	if n.Session == nil {
		return nil, false
	}
	raw, ok := n.Session.Get(KeyNewBill)
	if !ok {
		return nil, false
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil || d.Key == "" {
		return nil, false
	}
	return &d, true
}

// Validate checks f against the uploaded draft
func (n *NewBill) Validate(f Form) Violations {
	v := Violations{}
	if !bill.KnownType(f.Type) {
		v["type"] = "Type de dépense inconnu"
	}
	if strings.TrimSpace(f.Name) == "" {
		v["name"] = "Nom de la dépense requis"
	}
	if _, err := bill.VerifyDate(f.Date); err != nil {
		v["date"] = "Date invalide"
	}
	if amount, ok := parseLeadingInt(f.Amount); !ok || amount <= 0 {
		v["amount"] = "Le montant doit être positif"
	}
	if _, ok := n.Draft(); !ok {
		v["file"] = "Justificatif manquant"
	}
	return v
}

// HandleSubmit saves the form onto the draft bill and returns to the bills
// list. The update is awaited so the list shows the new bill.
func (n *NewBill) HandleSubmit(ctx context.Context, f Form) error {
	user, err := CurrentUser(n.Session)
	if err != nil {
		return err
	}
	if v := n.Validate(f); len(v) > 0 {
		return v
	}
	draft, _ := n.Draft()

	amount, _ := parseLeadingInt(f.Amount)
	pct, ok := parseLeadingInt(f.Pct)
	if !ok || pct == 0 {
		pct = bill.DefaultPct
	}

	b := bill.Bill{
		ID:         draft.Key,
		Email:      user.Email,
		Type:       f.Type,
		Name:       f.Name,
		Amount:     amount,
		Date:       f.Date,
		VAT:        f.VAT,
		Pct:        bill.Pct(pct),
		Commentary: f.Commentary,
		FileURL:    draft.FileURL,
		FileName:   draft.FileName,
		Status:     bill.StatusPending,
	}

	if n.Store != nil {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encoding bill: %w", err)
		}
		if err := n.Store.Bills().Update(ctx, bill.UpdateRequest{Data: string(data), Selector: b.ID}); err != nil {
			return fmt.Errorf("saving bill: %w", err)
		}
	}

	n.Session.Delete(KeyNewBill)
	n.navigate(RouteBills)
	return nil
}

// Props lays out the form, prefilled from the scan suggestion when the
// user has not typed anything yet.
func (n *NewBill) Props(f Form, err error) views.NewBillProps {
	props := views.NewBillProps{Types: bill.Types, Err: err}
	if user, uerr := CurrentUser(n.Session); uerr == nil {
		props.User = user
	}

	var v Violations
	if errors.As(err, &v) {
		props.Violations = v
		props.Err = nil
	}

	draft, ok := n.Draft()
	if ok {
		props.FileURL = draft.FileURL
		props.FileName = draft.FileName
		if f == (Form{}) && draft.Suggestion != nil {
			f = suggestedForm(draft.Suggestion)
		}
	}
	props.Form = views.NewBillForm(f)
	return props
}

func suggestedForm(s *bill.Suggestion) Form {
	f := Form{Type: s.Type, Name: s.Name, Date: s.Date}
	if s.Amount > 0 {
		f.Amount = fmt.Sprintf("%.0f", s.Amount)
	}
	if s.VAT > 0 {
		f.VAT = fmt.Sprintf("%.2f", s.VAT)
	}
	return f
}

// parseLeadingInt reads the integer at the start of s, ignoring whatever
// follows it, so "348.50" is 348. Values outside int are rejected.
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if s != "" && (s[0] == '-' || s[0] == '+') {
		end = 1
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
