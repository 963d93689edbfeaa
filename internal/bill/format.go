package bill

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrUnknownStatus = errors.New("unknown status")
)

// InvalidDateError reports a date string that does not parse to a calendar date.
type InvalidDateError struct {
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date: %q", e.Value)
}

func (e *InvalidDateError) Is(target error) bool {
	return target == ErrInvalidDate
}

// UnknownStatusError reports a status outside pending, accepted and refused.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("statut inconnu: %s", e.Status)
}

func (e *UnknownStatusError) Is(target error) bool {
	return target == ErrUnknownStatus
}

// dateLayouts are tried in order by VerifyDate
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// frenchMonths holds the abbreviated month names without the trailing dot.
var frenchMonths = [12]string{
	"janv", "févr", "mars", "avr", "mai", "juin",
	"juil", "août", "sept", "oct", "nov", "déc",
}

// VerifyDate parses s and fails with *InvalidDateError when it is not a date.
func VerifyDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &InvalidDateError{Value: s}
}

// FormatDate renders s as "D Mon. YY", e.g. "4 Avr. 04".
func FormatDate(s string) (string, error) {
	t, err := VerifyDate(s)
	if err != nil {
		return "", err
	}
	// Casers keep state, so one is built per call.
	month := cases.Title(language.French).String(frenchMonths[t.Month()-1])
	return fmt.Sprintf("%d %s. %02d", t.Day(), month, t.Year()%100), nil
}

// FormatStatus maps a stored status to its French label.
func FormatStatus(s Status) (string, error) {
	switch s {
	case StatusPending:
		return "En attente", nil
	case StatusAccepted:
		return "Accepté", nil
	case StatusRefused:
		return "Refusé", nil
	default:
		return "", &UnknownStatusError{Status: string(s)}
	}
}

// Record is a bill prepared for display. Bill carries the display values and
// Raw the stored ones. When Err is set, formatting failed and Bill equals Raw.
type Record struct {
	Bill
	Raw Bill  `json:"-"`
	Err error `json:"-"`
}

// Formatted reports whether the record carries display values.
func (r Record) Formatted() bool {
	return r.Err == nil
}

// Format applies FormatDate and FormatStatus to b. It never drops the bill.
func Format(b Bill) Record {
	date, err := FormatDate(b.Date)
	if err != nil {
		return Record{Bill: b, Raw: b, Err: err}
	}
	status, err := FormatStatus(b.Status)
	if err != nil {
		return Record{Bill: b, Raw: b, Err: err}
	}

	display := b
	display.Date = date
	display.Status = Status(status)
	return Record{Bill: display, Raw: b}
}
