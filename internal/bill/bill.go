package bill

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// DefaultPct is the VAT percentage applied when a bill carries none.
const DefaultPct = 20

var (
	// ErrNotFound is returned when no bill matches a selector.
	ErrNotFound = errors.New("bill not found")

	// ErrTransition is returned when a status change is not allowed.
	ErrTransition = errors.New("status transition not allowed")
)

// Status is the review state of a bill
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRefused  Status = "refused"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRefused:
		return true
	}
	return false
}

// CanTransitionTo reports whether a bill in status s may move to next.
// Accepted and refused are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() {
		return false
	}
	if s == next || s == "" {
		return true
	}
	return s == StatusPending
}

// Pct is a VAT percentage. Decoding never fails: a missing, null or
// non-integer value becomes DefaultPct.
type Pct int

// UnmarshalJSON accepts JSON numbers and numeric strings.
func (p *Pct) UnmarshalJSON(data []byte) error {
	*p = DefaultPct
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n json.Number
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	} else {
		n = json.Number(data)
	}

	if v, err := strconv.Atoi(n.String()); err == nil {
		*p = Pct(v)
	}
	return nil
}

// Bill is one expense claim as stored
type Bill struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Amount       int    `json:"amount"`
	Date         string `json:"date"` // ISO 8601, as entered
	VAT          string `json:"vat"`
	Pct          Pct    `json:"pct"`
	Commentary   string `json:"commentary"`
	CommentAdmin string `json:"commentAdmin"`
	FileURL      string `json:"fileUrl"`
	FileName     string `json:"fileName"`
	Status       Status `json:"status"`
}

// UnmarshalJSON decodes a bill, defaulting Pct when the field is absent.
func (b *Bill) UnmarshalJSON(data []byte) error {
	type plain Bill
	p := plain{Pct: DefaultPct}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = Bill(p)
	return nil
}

// Types lists the expense categories a bill may carry.
var Types = []string{
	"Transports",
	"Restaurants et bars",
	"Hôtel et logement",
	"Services en ligne",
	"IT et électronique",
	"Equipement et matériel",
	"Fournitures de bureau",
}

// KnownType reports whether t is one of Types.
func KnownType(t string) bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// User types stored in the session
const (
	UserEmployee = "Employee"
	UserAdmin    = "Admin"
)

// User is the identity persisted client-side under the "user" key.
type User struct {
	Type     string `json:"type"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Status   string `json:"status"`
}

// IsAdmin reports whether the user reviews bills.
func (u User) IsAdmin() bool {
	return u.Type == UserAdmin
}
