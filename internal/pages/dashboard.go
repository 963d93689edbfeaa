package pages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/views"
)

// ErrUnknownGroup is returned for a status group index outside 1..3.
var ErrUnknownGroup = errors.New("unknown status group")

type group struct {
	status bill.Status
	title  string
}

// groups are the dashboard sections, addressed by index 1..3.
var groups = [3]group{
	{bill.StatusPending, "En attente"},
	{bill.StatusAccepted, "Validé"},
	{bill.StatusRefused, "Refusé"},
}

// DashboardState is what the dashboard remembers between requests.
type DashboardState struct {
	Open     [3]bool `json:"open"`
	Selected string  `json:"selected,omitempty"`
}

// Encode serialises the state for the session
func (s DashboardState) Encode() string {
	data, _ := json.Marshal(s)
	return string(data)
}

// DecodeDashboardState reads an encoded state. Anything unreadable is the
// zero state, with every group collapsed.
func DecodeDashboardState(raw string) DashboardState {
	var s DashboardState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return DashboardState{}
	}
	return s
}

// Dashboard drives the admin review page
type Dashboard struct {
	Deps
	state DashboardState
	own   sync.WaitGroup
}

// NewDashboard creates the controller, restoring its state from the session.
func NewDashboard(d Deps) *Dashboard {
	dash := &Dashboard{Deps: d}
	if d.Session != nil {
		if raw, ok := d.Session.Get(KeyDashboard); ok {
			dash.state = DecodeDashboardState(raw)
		}
	}
	return dash
}

// State returns the current expand and selection state
func (d *Dashboard) State() DashboardState {
	return d.state
}

// FilteredBills keeps the bills in status, in input order. Bills from test
// accounts are dropped unless the signed-in user is a test account.
func (d *Dashboard) FilteredBills(bills []bill.Bill, status bill.Status) []bill.Bill {
	hideTests := true
	if user, err := CurrentUser(d.Session); err == nil && d.isTestAccount(user.Email) {
		hideTests = false
	}

	filtered := make([]bill.Bill, 0, len(bills))
	for _, b := range bills {
		if b.Status != status {
			continue
		}
		if hideTests && d.isTestAccount(b.Email) {
			continue
		}
		filtered = append(filtered, b)
	}
	return filtered
}

func (d *Dashboard) isTestAccount(email string) bool {
	patterns := d.TestAccounts
	if patterns == nil {
		patterns = DefaultTestAccounts
	}
	email = strings.ToLower(email)
	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		if pattern == email {
			return true
		}
		if ok, err := path.Match(pattern, email); err == nil && ok {
			return true
		}
	}
	return false
}

// Cards renders the dashboard cards for bills
func (d *Dashboard) Cards(bills []bill.Bill) template.HTML {
	return views.Cards(bills)
}

// GetBillsAllUsers returns the raw listing of every bill. Formatting is
// left to rendering. Without a store it returns nil.
func (d *Dashboard) GetBillsAllUsers(ctx context.Context) ([]bill.Bill, error) {
	if d.Store == nil {
		return nil, nil
	}
	bills, err := d.Store.Bills().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	d.Metrics.BillsListed("dashboard", len(bills))
	return bills, nil
}

// HandleClickIconEye shows the receipt of the selected bill
func (d *Dashboard) HandleClickIconEye(icon Attrs) {
	openReceipt(d.Modal, icon)
}

// HandleShowTickets toggles status group index (1 pending, 2 accepted,
// 3 refused). It returns the group's bills when the group is now open and
// nil when it closed.
func (d *Dashboard) HandleShowTickets(bills []bill.Bill, index int) ([]bill.Bill, error) {
	if index < 1 || index > len(groups) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGroup, index)
	}
	open := !d.state.Open[index-1]
	d.state.Open[index-1] = open
	d.saveState()

	if !open {
		return nil, nil
	}
	return d.FilteredBills(bills, groups[index-1].status), nil
}

// HandleEditTicket selects b for review, or deselects it when it already
// is. It reports whether b is now selected.
func (d *Dashboard) HandleEditTicket(b bill.Bill) bool {
	if d.state.Selected == b.ID {
		d.state.Selected = ""
	} else {
		d.state.Selected = b.ID
	}
	d.saveState()
	return d.state.Selected != ""
}

// HandleAcceptSubmit accepts b and returns to the dashboard
func (d *Dashboard) HandleAcceptSubmit(ctx context.Context, b bill.Bill) {
	d.decide(ctx, b, bill.StatusAccepted)
}

// HandleRefuseSubmit refuses b and returns to the dashboard
func (d *Dashboard) HandleRefuseSubmit(ctx context.Context, b bill.Bill) {
	d.decide(ctx, b, bill.StatusRefused)
}

// decide clears the admin comment. Unless AwaitUpdates is set, navigation
// happens before the update settles; see Wait.
func (d *Dashboard) decide(ctx context.Context, b bill.Bill, status bill.Status) {
	updated := b
	updated.Status = status
	updated.CommentAdmin = ""
	d.Metrics.Decision(status)

	if d.state.Selected == b.ID {
		d.state.Selected = ""
		d.saveState()
	}

	if d.AwaitUpdates {
		d.UpdateBill(ctx, updated)
	} else {
		wg := d.pending()
		wg.Add(1)
		go func(ctx context.Context) {
			defer wg.Done()
			d.UpdateBill(ctx, updated)
		}(context.WithoutCancel(ctx))
	}
	d.navigate(RouteDashboard)
}

// UpdateBill persists b. Failures are logged and reported to the Notifier,
// never returned.
func (d *Dashboard) UpdateBill(ctx context.Context, b bill.Bill) {
	if d.Store == nil {
		return
	}

	data, err := json.Marshal(b)
	if err == nil {
		err = d.Store.Bills().Update(ctx, bill.UpdateRequest{Data: string(data), Selector: b.ID})
	}
	if err != nil {
		slog.Error("Error updating bill", "id", b.ID, "error", err)
		d.Metrics.UpdateFailed()
		if d.Notifier != nil {
			d.Notifier.UpdateFailed(b, err)
		}
	}
}

// Wait blocks until updates started by this controller have settled.
func (d *Dashboard) Wait() {
	d.pending().Wait()
}

func (d *Dashboard) pending() *sync.WaitGroup {
	if d.Pending != nil {
		return d.Pending
	}
	return &d.own
}

func (d *Dashboard) saveState() {
	if d.Session != nil {
		d.Session.Set(KeyDashboard, d.state.Encode())
	}
}

// Props lays out the dashboard for bills
func (d *Dashboard) Props(bills []bill.Bill) views.DashboardProps {
	props := views.DashboardProps{Groups: make([]views.Group, 0, len(groups))}
	if user, err := CurrentUser(d.Session); err == nil {
		props.User = user
	}

	for i, g := range groups {
		filtered := d.FilteredBills(bills, g.status)
		section := views.Group{
			Index: i + 1,
			Title: g.title,
			Count: len(filtered),
			Open:  d.state.Open[i],
		}
		if section.Open {
			section.Cards = d.Cards(filtered)
		}
		props.Groups = append(props.Groups, section)
	}

	for _, b := range bills {
		if b.ID != "" && b.ID == d.state.Selected {
			selected := b
			props.Selected = &selected
			break
		}
	}
	return props
}
