// Package views renders the bill pages with html/template.
package views

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/zombor/billed/internal/bill"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"formatDate":  displayDate,
	"statusLabel": statusLabel,
	"firstName":   func(email string) string { first, _ := CardName(email); return first },
	"lastName":    func(email string) string { _, last := CardName(email); return last },
}).ParseFS(templateFS, "templates/*.html"))

// BillsProps feeds the employee bills page
type BillsProps struct {
	Data     []bill.Record
	Loading  bool
	Err      error
	ModalURL string
	User     bill.User
}

// Group is one status section of the dashboard
type Group struct {
	Index int
	Title string
	Count int
	Open  bool
	Cards template.HTML
}

// DashboardProps feeds the admin dashboard
type DashboardProps struct {
	Groups   []Group
	Selected *bill.Bill
	Notices  []string
	Loading  bool
	Err      error
	ModalURL string
	User     bill.User
}

// NewBillForm holds the raw values of the new bill form
type NewBillForm struct {
	Type       string
	Name       string
	Date       string
	Amount     string
	VAT        string
	Pct        string
	Commentary string
}

// NewBillProps feeds the new bill page. An empty FileURL shows the upload step.
type NewBillProps struct {
	Types      []string
	FileURL    string
	FileName   string
	Form       NewBillForm
	Violations map[string]string
	Err        error
	User       bill.User
}

// LoginProps feeds the login page
type LoginProps struct {
	Err error
}

type page struct {
	Title string
	User  bill.User
	Body  any
}

// RenderBills writes the bills page, or the loading or error page.
func RenderBills(w io.Writer, p BillsProps) error {
	switch {
	case p.Loading:
		return RenderLoading(w)
	case p.Err != nil:
		return RenderError(w, p.Err)
	}
	p.Data = SortRecords(p.Data)
	return render(w, "bills", "Mes notes de frais", p.User, p)
}

// RenderDashboard writes the dashboard, or the loading or error page.
func RenderDashboard(w io.Writer, p DashboardProps) error {
	switch {
	case p.Loading:
		return RenderLoading(w)
	case p.Err != nil:
		return RenderError(w, p.Err)
	}
	return render(w, "dashboard", "Validations", p.User, p)
}

// RenderNewBill writes the new bill form
func RenderNewBill(w io.Writer, p NewBillProps) error {
	if p.Types == nil {
		p.Types = bill.Types
	}
	return render(w, "newbill", "Envoyer une note de frais", p.User, p)
}

// RenderLogin writes the login page
func RenderLogin(w io.Writer, p LoginProps) error {
	return render(w, "login", "Billed", bill.User{}, p)
}

// RenderLoading writes the placeholder shown while bills are fetched
func RenderLoading(w io.Writer) error {
	return render(w, "loading", "Billed", bill.User{}, nil)
}

// RenderError writes the error page
func RenderError(w io.Writer, err error) error {
	return render(w, "error", "Erreur", bill.User{}, err.Error())
}

func render(w io.Writer, name, title string, user bill.User, body any) error {
	return templates.ExecuteTemplate(w, name, page{Title: title, User: user, Body: body})
}

// Cards renders one dashboard card per bill, most recent first.
func Cards(bills []bill.Bill) template.HTML {
	if len(bills) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "cards", SortBills(bills)); err != nil {
		slog.Error("Error rendering cards", "error", err)
		return ""
	}
	return template.HTML(buf.String())
}

// CardName derives the first and last name from an email such as
// "cedric.hiely@billed.com". Without a dot the whole local part is the last name.
func CardName(email string) (first, last string) {
	local, _, _ := strings.Cut(email, "@")
	if f, l, ok := strings.Cut(local, "."); ok {
		return f, l
	}
	return "", local
}

// SortRecords orders records by their stored date, most recent first.
// Records with an unparseable date go last; ties keep their order.
func SortRecords(records []bill.Record) []bill.Record {
	return sortByDate(records, func(r bill.Record) string { return r.Raw.Date })
}

// SortBills orders bills like SortRecords
func SortBills(bills []bill.Bill) []bill.Bill {
	return sortByDate(bills, func(b bill.Bill) string { return b.Date })
}

func sortByDate[T any](items []T, date func(T) string) []T {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		ta, errA := bill.VerifyDate(date(a))
		tb, errB := bill.VerifyDate(date(b))
		switch {
		case errA != nil && errB != nil:
			return 0
		case errA != nil:
			return 1
		case errB != nil:
			return -1
		}
		return tb.Compare(ta)
	})
	return sorted
}

func displayDate(s string) string {
	formatted, err := bill.FormatDate(s)
	if err != nil {
		return s
	}
	return formatted
}

func statusLabel(s bill.Status) string {
	label, err := bill.FormatStatus(s)
	if err != nil {
		return string(s)
	}
	return label
}
