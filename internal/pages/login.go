package pages

import (
	"strings"

	"github.com/zombor/billed/internal/bill"
)

// Login records the declared identity. There is no password check.
type Login struct {
	Deps
}

// NewLogin creates the controller
func NewLogin(d Deps) *Login {
	return &Login{Deps: d}
}

// HandleSubmit stores u as the current user and opens their home page.
func (l *Login) HandleSubmit(u bill.User) error {
	v := Violations{}
	email := strings.TrimSpace(u.Email)
	if email == "" {
		v["email"] = "Email requis"
	}
	if u.Type != bill.UserEmployee && u.Type != bill.UserAdmin {
		v["type"] = "Type d'utilisateur inconnu"
	}
	if len(v) > 0 {
		return v
	}

	l.Session.Clear()
	user := bill.User{Type: u.Type, Email: email, Status: "connected"}
	if err := SetUser(l.Session, user); err != nil {
		return err
	}

	if user.IsAdmin() {
		l.navigate(RouteDashboard)
	} else {
		l.navigate(RouteBills)
	}
	return nil
}

// Logout ends the session
type Logout struct {
	Deps
}

// NewLogout creates the controller
func NewLogout(d Deps) *Logout {
	return &Logout{Deps: d}
}

// HandleClick forgets the user and returns to the login page
func (l *Logout) HandleClick() {
	if l.Session != nil {
		l.Session.Clear()
	}
	l.navigate(RouteLogin)
}
