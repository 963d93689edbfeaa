package pages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zombor/billed/internal/bill"
)

// Bills drives the employee bills page
type Bills struct {
	Deps
}

// NewBills creates the controller
func NewBills(d Deps) *Bills {
	return &Bills{Deps: d}
}

// HandleClickNewBill opens the new bill form
func (b *Bills) HandleClickNewBill() {
	b.navigate(RouteNewBill)
}

// HandleClickIconEye shows the receipt named by the icon's data-bill-url.
func (b *Bills) HandleClickIconEye(icon Attrs) {
	openReceipt(b.Modal, icon)
}

// GetBills lists the bills of the current scope formatted for display. A
// record that cannot be formatted is logged and returned unchanged, so the
// result always matches the store listing in length and order. Without a
// store it returns nil.
func (b *Bills) GetBills(ctx context.Context) ([]bill.Record, error) {
	if b.Store == nil {
		return nil, nil
	}

	raw, err := b.scoped().Bills().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}

	records := make([]bill.Record, 0, len(raw))
	for _, r := range raw {
		record := bill.Format(r)
		if record.Err != nil {
			slog.Error("Error formatting bill", "error", record.Err, "for", r)
			b.Metrics.FormatFailed(record.Err)
		}
		records = append(records, record)
	}
	b.Metrics.BillsListed("bills", len(records))
	return records, nil
}

// scoped narrows the store to the signed-in employee when it can.
func (b *Bills) scoped() bill.Store {
	scopable, ok := b.Store.(bill.ScopedStore)
	if !ok {
		return b.Store
	}
	user, err := CurrentUser(b.Session)
	if err != nil || user.IsAdmin() {
		return b.Store
	}
	return scopable.ForEmail(user.Email)
}
