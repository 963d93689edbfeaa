// Package pages holds the controllers behind the bill pages. Controllers are
// built per request from Deps and never cache bills between requests.
package pages

import (
	"sync"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/metrics"
)

// Routes
const (
	RouteLogin     = "/"
	RouteBills     = "/bills"
	RouteNewBill   = "/bills/new"
	RouteDashboard = "/dashboard"
)

// Navigator moves the user to one of the routes
type Navigator func(route string)

// Notifier is told about updates that failed after the user moved on.
type Notifier interface {
	UpdateFailed(b bill.Bill, err error)
}

// DefaultTestAccounts are the seed accounts hidden from real admins.
var DefaultTestAccounts = []string{"employee@test.tld"}

// Deps are the collaborators shared by every controller. Store may be nil,
// in which case reads return nothing and writes are skipped.
type Deps struct {
	Navigate Navigator
	Store    bill.Store
	Session  Session
	Modal    Modal
	Metrics  *metrics.Recorder
	Notifier Notifier

	// Pending tracks updates running after navigation. Nil gives each
	// controller its own group.
	Pending *sync.WaitGroup

	// TestAccounts are exact addresses or path.Match patterns. Nil means
	// DefaultTestAccounts.
	TestAccounts []string

	// AwaitUpdates makes accept and refuse persist before navigating.
	AwaitUpdates bool
}

func (d Deps) navigate(route string) {
	if d.Navigate != nil {
		d.Navigate(route)
	}
}
