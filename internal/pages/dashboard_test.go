package pages

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/metrics"
)

var _ = Describe("Dashboard", func() {
	var (
		ctx      context.Context
		store    *fakeStore
		nav      *navigator
		session  *MemorySession
		notifier *fakeNotifier
		deps     Deps
		fixture  []bill.Bill
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &fakeStore{}
		nav = &navigator{}
		session = NewMemorySession()
		notifier = &fakeNotifier{}
		deps = Deps{Navigate: nav.Navigate, Store: store, Session: session, Notifier: notifier}
		signIn(session, bill.UserAdmin, "admin@billed.com")

		fixture = []bill.Bill{
			{ID: "47qAXb6fIm2zOKkLzMro", Email: "a@a", Date: "2004-04-04", Status: bill.StatusPending},
			{ID: "BeKy5Mo4jkmdfPGYpTxZ", Email: "a@a", Date: "2001-01-01", Status: bill.StatusRefused},
			{ID: "UIUZtnPQvnbFnB0ozvJh", Email: "a@a", Date: "2003-03-03", Status: bill.StatusAccepted},
			{ID: "qcCK3SzECmaZAGRrHjaC", Email: "a@a", Date: "2002-02-02", Status: bill.StatusRefused},
		}
	})

	Describe("FilteredBills", func() {
		It("should count bills per status", func() {
			d := NewDashboard(deps)
			Expect(d.FilteredBills(fixture, bill.StatusPending)).To(HaveLen(1))
			Expect(d.FilteredBills(fixture, bill.StatusAccepted)).To(HaveLen(1))
			Expect(d.FilteredBills(fixture, bill.StatusRefused)).To(HaveLen(2))
		})

		It("should keep real users' bills in input order", func() {
			signIn(session, bill.UserAdmin, "user@test.com")
			data := []bill.Bill{
				{ID: "1", Email: "user@test.com", Status: bill.StatusPending},
				{ID: "2", Email: "cedric.hiely@billed.com", Status: bill.StatusPending},
				{ID: "3", Email: "user2@test.com", Status: bill.StatusAccepted},
			}
			filtered := NewDashboard(deps).FilteredBills(data, bill.StatusPending)
			Expect(filtered).To(Equal([]bill.Bill{data[0], data[1]}))
		})

		It("should hide test accounts from a real admin", func() {
			data := []bill.Bill{
				{ID: "1", Email: "employee@test.tld", Status: bill.StatusPending},
				{ID: "2", Email: "cedric.hiely@billed.com", Status: bill.StatusPending},
			}
			filtered := NewDashboard(deps).FilteredBills(data, bill.StatusPending)
			Expect(filtered).To(HaveLen(1))
			Expect(filtered[0].ID).To(Equal("2"))
		})

		It("should show test accounts to a test admin", func() {
			signIn(session, bill.UserAdmin, "employee@test.tld")
			data := []bill.Bill{
				{ID: "1", Email: "employee@test.tld", Status: bill.StatusPending},
				{ID: "2", Email: "cedric.hiely@billed.com", Status: bill.StatusPending},
			}
			Expect(NewDashboard(deps).FilteredBills(data, bill.StatusPending)).To(HaveLen(2))
		})

		It("should match glob patterns", func() {
			deps.TestAccounts = []string{"*@test.tld", "qa.*@billed.com"}
			data := []bill.Bill{
				{ID: "1", Email: "anyone@test.tld", Status: bill.StatusPending},
				{ID: "2", Email: "qa.bot@billed.com", Status: bill.StatusPending},
				{ID: "3", Email: "cedric.hiely@billed.com", Status: bill.StatusPending},
			}
			filtered := NewDashboard(deps).FilteredBills(data, bill.StatusPending)
			Expect(filtered).To(HaveLen(1))
			Expect(filtered[0].ID).To(Equal("3"))
		})

		It("should hide nothing with an empty pattern list", func() {
			deps.TestAccounts = []string{}
			data := []bill.Bill{{ID: "1", Email: "employee@test.tld", Status: bill.StatusPending}}
			Expect(NewDashboard(deps).FilteredBills(data, bill.StatusPending)).To(HaveLen(1))
		})
	})

	Describe("Cards", func() {
		It("should render no card for no bills", func() {
			Expect(NewDashboard(deps).Cards([]bill.Bill{})).To(BeEmpty())
		})

		It("should render a card per bill", func() {
			html := string(NewDashboard(deps).Cards(fixture))
			for _, b := range fixture {
				Expect(html).To(ContainSubstring("open-bill" + b.ID))
			}
		})
	})

	Describe("GetBillsAllUsers", func() {
		It("should return the raw listing", func() {
			store.bills = fixture
			bills, err := NewDashboard(deps).GetBillsAllUsers(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).To(Equal(fixture))
			Expect(store.scope).To(BeEmpty())
		})

		It("should return nil without a store", func() {
			deps.Store = nil
			bills, err := NewDashboard(deps).GetBillsAllUsers(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).To(BeNil())
		})

		It("should propagate listing failures", func() {
			store.listErr = errors.New("Erreur 500")
			_, err := NewDashboard(deps).GetBillsAllUsers(ctx)
			Expect(err).To(MatchError(ContainSubstring("Erreur 500")))
		})
	})

	Describe("HandleShowTickets", func() {
		It("should open and close a group", func() {
			d := NewDashboard(deps)
			bills, err := d.HandleShowTickets(fixture, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).To(HaveLen(2))
			Expect(d.State().Open).To(Equal([3]bool{false, false, true}))

			bills, err = d.HandleShowTickets(fixture, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).To(BeNil())
			Expect(d.State()).To(Equal(DashboardState{}))
		})

		It("should keep the state in the session", func() {
			_, err := NewDashboard(deps).HandleShowTickets(fixture, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(NewDashboard(deps).State().Open[0]).To(BeTrue())
		})

		It("should reject unknown groups", func() {
			d := NewDashboard(deps)
			_, err := d.HandleShowTickets(fixture, 0)
			Expect(err).To(MatchError(ErrUnknownGroup))
			_, err = d.HandleShowTickets(fixture, 4)
			Expect(err).To(MatchError(ErrUnknownGroup))
			Expect(d.State()).To(Equal(DashboardState{}))
		})
	})

	Describe("HandleEditTicket", func() {
		It("should select and deselect a bill", func() {
			d := NewDashboard(deps)
			Expect(d.HandleEditTicket(fixture[0])).To(BeTrue())
			Expect(d.State().Selected).To(Equal(fixture[0].ID))
			Expect(d.HandleEditTicket(fixture[1])).To(BeTrue())
			Expect(d.State().Selected).To(Equal(fixture[1].ID))
			Expect(d.HandleEditTicket(fixture[1])).To(BeFalse())
			Expect(d.State().Selected).To(BeEmpty())
		})
	})

	Describe("decisions", func() {
		var pending bill.Bill

		BeforeEach(func() {
			pending = fixture[0]
			pending.CommentAdmin = "a revoir"
		})

		It("should accept the bill once and return to the dashboard", func() {
			d := NewDashboard(deps)
			d.HandleAcceptSubmit(ctx, pending)
			d.Wait()

			expected := pending
			expected.Status = bill.StatusAccepted
			expected.CommentAdmin = ""
			Expect(store.updated()).To(Equal([]bill.Bill{expected}))
			Expect(store.updates[0].Selector).To(Equal(pending.ID))
			Expect(nav.Routes()).To(Equal([]string{RouteDashboard}))
		})

		It("should refuse the bill once and return to the dashboard", func() {
			d := NewDashboard(deps)
			d.HandleRefuseSubmit(ctx, pending)
			d.Wait()

			expected := pending
			expected.Status = bill.StatusRefused
			expected.CommentAdmin = ""
			Expect(store.updated()).To(Equal([]bill.Bill{expected}))
			Expect(nav.Routes()).To(Equal([]string{RouteDashboard}))
		})

		It("should close the decided bill", func() {
			d := NewDashboard(deps)
			d.HandleEditTicket(pending)
			d.HandleAcceptSubmit(ctx, pending)
			d.Wait()
			Expect(d.State().Selected).To(BeEmpty())
		})

		It("should finish the update after a cancelled request", func() {
			reqCtx, cancel := context.WithCancel(ctx)
			d := NewDashboard(deps)
			d.HandleAcceptSubmit(reqCtx, pending)
			cancel()
			d.Wait()
			Expect(store.updated()).To(HaveLen(1))
		})

		It("should track updates on a shared wait group", func() {
			var wg sync.WaitGroup
			deps.Pending = &wg
			NewDashboard(deps).HandleRefuseSubmit(ctx, pending)
			wg.Wait()
			Expect(store.updated()).To(HaveLen(1))
		})

		It("should persist before navigating when asked to", func() {
			deps.AwaitUpdates = true
			deps.Navigate = func(route string) {
				Expect(store.updated()).To(HaveLen(1))
				nav.Navigate(route)
			}
			NewDashboard(deps).HandleAcceptSubmit(ctx, pending)
			Expect(nav.Routes()).To(Equal([]string{RouteDashboard}))
		})

		It("should still navigate when the update fails", func() {
			store.updateErr = bill.ErrTransition
			rec := metrics.New()
			deps.Metrics = rec
			d := NewDashboard(deps)
			d.HandleAcceptSubmit(ctx, pending)
			d.Wait()

			Expect(nav.Routes()).To(Equal([]string{RouteDashboard}))
			failures := notifier.Failures()
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].bill.ID).To(Equal(pending.ID))
			Expect(failures[0].err).To(MatchError(bill.ErrTransition))

			w := httptest.NewRecorder()
			rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			Expect(w.Body.String()).To(ContainSubstring("billed_bill_update_failures_total 1"))
		})
	})

	Describe("UpdateBill", func() {
		It("should do nothing without a store", func() {
			deps.Store = nil
			Expect(func() { NewDashboard(deps).UpdateBill(ctx, fixture[0]) }).NotTo(Panic())
		})
	})

	Describe("Props", func() {
		It("should lay out the three groups with the selected bill", func() {
			d := NewDashboard(deps)
			_, err := d.HandleShowTickets(fixture, 1)
			Expect(err).NotTo(HaveOccurred())
			d.HandleEditTicket(fixture[0])

			props := d.Props(fixture)
			Expect(props.Groups).To(HaveLen(3))
			Expect(props.Groups[0].Count).To(Equal(1))
			Expect(props.Groups[0].Open).To(BeTrue())
			Expect(string(props.Groups[0].Cards)).To(ContainSubstring("open-bill" + fixture[0].ID))
			Expect(props.Groups[2].Count).To(Equal(2))
			Expect(props.Groups[2].Cards).To(BeEmpty())
			Expect(props.Selected).NotTo(BeNil())
			Expect(props.Selected.ID).To(Equal(fixture[0].ID))
			Expect(props.User.Email).To(Equal("admin@billed.com"))
		})
	})

	Describe("DashboardState", func() {
		It("should survive encoding", func() {
			s := DashboardState{Open: [3]bool{true, false, true}, Selected: "x"}
			Expect(DecodeDashboardState(s.Encode())).To(Equal(s))
		})

		It("should fall back to the zero state", func() {
			Expect(DecodeDashboardState("{")).To(Equal(DashboardState{}))
		})
	})
})

var _ = Describe("Dashboard receipts", func() {
	It("should open the modal on the receipt", func() {
		modal := &ModalState{}
		NewDashboard(Deps{Modal: modal}).HandleClickIconEye(Attrs{"data-bill-url": "https://files.test/r.png"})
		Expect(modal.URL()).To(Equal("https://files.test/r.png"))
		modal.Close()
		Expect(modal.URL()).To(BeEmpty())
	})
})
