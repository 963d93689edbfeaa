package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/pages"
	"github.com/zombor/billed/internal/views"
)

// pageRequest is one page request: its session, modal and navigator.
type pageRequest struct {
	w         http.ResponseWriter
	r         *http.Request
	session   *cookieSession
	modal     *pages.ModalState
	user      bill.User
	signedIn  bool
	navigated bool
	deps      pages.Deps
}

// page builds fresh controller dependencies for every request
func (s *Server) page(fn func(*pageRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := &pageRequest{
			w:       w,
			r:       r,
			session: loadSession(r, s.cfg.SecureCookies),
			modal:   &pages.ModalState{},
		}
		if user, err := pages.CurrentUser(p.session); err == nil {
			p.user, p.signedIn = user, true
		}

		p.deps = pages.Deps{
			Navigate:     p.navigate,
			Store:        s.cfg.Pages,
			Session:      p.session,
			Modal:        p.modal,
			Metrics:      s.cfg.Metrics,
			Notifier:     adminNotifier{board: s.notices, email: p.user.Email},
			Pending:      &s.pending,
			TestAccounts: s.cfg.TestAccounts,
			AwaitUpdates: s.cfg.AwaitUpdates,
		}
		fn(p)
	}
}

// navigate answers with a 303 to route
func (p *pageRequest) navigate(route string) {
	if p.navigated {
		return
	}
	p.navigated = true
	if err := p.session.flush(p.w); err != nil {
		slog.Error("Error saving session", "error", err)
	}
	http.Redirect(p.w, p.r, route, http.StatusSeeOther)
}

// render buffers a view so a failing template yields a clean 500
func (p *pageRequest) render(code int, view func(io.Writer) error) {
	var buf bytes.Buffer
	if err := view(&buf); err != nil {
		slog.Error("Error rendering page", "path", p.r.URL.Path, "error", err)
		http.Error(p.w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := p.session.flush(p.w); err != nil {
		slog.Error("Error saving session", "error", err)
	}
	p.w.Header().Set("Content-Type", "text/html; charset=utf-8")
	p.w.WriteHeader(code)
	p.w.Write(buf.Bytes())
}

// requireUser sends anonymous visitors to the login page
func (p *pageRequest) requireUser() bool {
	if !p.signedIn {
		p.navigate(pages.RouteLogin)
		return false
	}
	return true
}

// requireAdmin sends employees to their bills
func (p *pageRequest) requireAdmin() bool {
	if !p.requireUser() {
		return false
	}
	if !p.user.IsAdmin() {
		p.navigate(pages.RouteBills)
		return false
	}
	return true
}

func (s *Server) handleLoginPage(p *pageRequest) {
	p.render(http.StatusOK, func(w io.Writer) error {
		return views.RenderLogin(w, views.LoginProps{})
	})
}

func (s *Server) handleLogin(p *pageRequest) {
	user := bill.User{
		Type:     p.r.FormValue("type"),
		Email:    p.r.FormValue("email"),
		Password: p.r.FormValue("password"),
	}
	if err := pages.NewLogin(p.deps).HandleSubmit(user); err != nil {
		p.render(http.StatusBadRequest, func(w io.Writer) error {
			return views.RenderLogin(w, views.LoginProps{Err: err})
		})
	}
}

func (s *Server) handleLogout(p *pageRequest) {
	pages.NewLogout(p.deps).HandleClick()
}

func (s *Server) handleBillsPage(p *pageRequest) {
	if !p.requireUser() {
		return
	}
	c := pages.NewBills(p.deps)
	if preview := p.r.URL.Query().Get("preview"); preview != "" {
		c.HandleClickIconEye(pages.Attrs{"data-bill-url": preview})
	}

	records, err := c.GetBills(p.r.Context())
	if err != nil {
		slog.Error("Error getting bills", "error", err)
	}
	p.render(http.StatusOK, func(w io.Writer) error {
		return views.RenderBills(w, views.BillsProps{
			Data:     records,
			Err:      err,
			ModalURL: p.modal.URL(),
			User:     p.user,
		})
	})
}

func (s *Server) handleClickNewBill(p *pageRequest) {
	if !p.requireUser() {
		return
	}
	pages.NewBills(p.deps).HandleClickNewBill()
}

func (s *Server) handleNewBillPage(p *pageRequest) {
	if !p.requireUser() {
		return
	}
	props := pages.NewNewBill(p.deps).Props(pages.Form{}, nil)
	p.render(http.StatusOK, func(w io.Writer) error {
		return views.RenderNewBill(w, props)
	})
}

func (s *Server) handleChangeFile(p *pageRequest) {
	if !p.requireUser() {
		return
	}
	c := pages.NewNewBill(p.deps)

	up, err := readUpload(p.w, p.r)
	if err == nil {
		_, err = c.HandleChangeFile(p.r.Context(), pages.Upload{
			Name:        up.Name,
			ContentType: up.ContentType,
			Data:        up.Data,
		})
	}
	if err != nil {
		slog.Error("Error uploading receipt", "error", err)
		p.render(http.StatusBadRequest, func(w io.Writer) error {
			return views.RenderNewBill(w, c.Props(pages.Form{}, err))
		})
		return
	}
	p.navigate(pages.RouteNewBill)
}

func (s *Server) handleSubmitBill(p *pageRequest) {
	if !p.requireUser() {
		return
	}
	c := pages.NewNewBill(p.deps)
	form := pages.Form{
		Type:       p.r.FormValue("type"),
		Name:       p.r.FormValue("name"),
		Date:       p.r.FormValue("date"),
		Amount:     p.r.FormValue("amount"),
		VAT:        p.r.FormValue("vat"),
		Pct:        p.r.FormValue("pct"),
		Commentary: p.r.FormValue("commentary"),
	}

	if err := c.HandleSubmit(p.r.Context(), form); err != nil {
		code := http.StatusUnprocessableEntity
		var v pages.Violations
		if !errors.As(err, &v) {
			slog.Error("Error submitting bill", "error", err)
			code = http.StatusBadGateway
		}
		p.render(code, func(w io.Writer) error {
			return views.RenderNewBill(w, c.Props(form, err))
		})
	}
}

func (s *Server) handleDashboardPage(p *pageRequest) {
	if !p.requireAdmin() {
		return
	}
	c := pages.NewDashboard(p.deps)
	if preview := p.r.URL.Query().Get("preview"); preview != "" {
		c.HandleClickIconEye(pages.Attrs{"data-bill-url": preview})
	}

	bills, err := c.GetBillsAllUsers(p.r.Context())
	if err != nil {
		slog.Error("Error getting bills", "error", err)
		p.render(http.StatusOK, func(w io.Writer) error {
			return views.RenderDashboard(w, views.DashboardProps{Err: err, User: p.user})
		})
		return
	}

	props := c.Props(bills)
	props.ModalURL = p.modal.URL()
	props.Notices = s.notices.take(p.user.Email)
	p.render(http.StatusOK, func(w io.Writer) error {
		return views.RenderDashboard(w, props)
	})
}

func (s *Server) handleShowTickets(p *pageRequest) {
	if !p.requireAdmin() {
		return
	}
	index, err := strconv.Atoi(p.r.PathValue("index"))
	if err == nil {
		_, err = pages.NewDashboard(p.deps).HandleShowTickets(nil, index)
	}
	if err != nil {
		http.Error(p.w, "Unknown status group", http.StatusNotFound)
		return
	}
	p.navigate(pages.RouteDashboard)
}

func (s *Server) handleEditTicket(p *pageRequest) {
	if !p.requireAdmin() {
		return
	}
	pages.NewDashboard(p.deps).HandleEditTicket(bill.Bill{ID: p.r.PathValue("id")})
	p.navigate(pages.RouteDashboard)
}

func (s *Server) handleDecision(p *pageRequest) {
	if !p.requireAdmin() {
		return
	}
	c := pages.NewDashboard(p.deps)
	bills, err := c.GetBillsAllUsers(p.r.Context())
	if err != nil {
		slog.Error("Error getting bills", "error", err)
		p.render(http.StatusBadGateway, func(w io.Writer) error {
			return views.RenderError(w, err)
		})
		return
	}

	id := p.r.PathValue("id")
	var target *bill.Bill
	for i := range bills {
		if bills[i].ID == id {
			target = &bills[i]
			break
		}
	}
	if target == nil {
		http.Error(p.w, "Bill not found", http.StatusNotFound)
		return
	}

	switch bill.Status(p.r.FormValue("decision")) {
	case bill.StatusAccepted:
		c.HandleAcceptSubmit(p.r.Context(), *target)
	case bill.StatusRefused:
		c.HandleRefuseSubmit(p.r.Context(), *target)
	default:
		http.Error(p.w, "Unknown decision", http.StatusBadRequest)
	}
}
