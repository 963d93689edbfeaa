package server

import (
	"context"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/pages"
)

var _ = Describe("Pages", func() {
	var (
		f       *fixture
		browser *http.Client
	)

	BeforeEach(func() {
		f = newFixture(nil)
		browser = f.browser()
		f.seed(
			bill.Bill{ID: "a1", Email: "a@a", Name: "encore", Amount: 400, Date: "2004-04-04", Status: bill.StatusPending, FileURL: "/files/a1.png"},
			bill.Bill{ID: "a2", Email: "a@a", Name: "corrompue", Amount: 100, Date: "invalid-date", Status: bill.StatusRefused},
			bill.Bill{ID: "b1", Email: "cedric.hiely@billed.com", Name: "hotel", Amount: 200, Date: "2003-03-03", Status: bill.StatusPending},
			bill.Bill{ID: "t1", Email: "employee@test.tld", Name: "seed", Amount: 1, Date: "2002-02-02", Status: bill.StatusPending},
		)
	})

	AfterEach(func() {
		f.Close()
	})

	Describe("login", func() {
		It("should render the login page", func() {
			resp, err := browser.Get(f.ts.URL + "/")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body(resp)).To(ContainSubstring(`data-testid="form-employee"`))
		})

		It("should send anonymous visitors to the login page", func() {
			resp, err := browser.Get(f.ts.URL + pages.RouteBills)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteLogin))
			resp.Body.Close()
		})

		It("should reject an incomplete form", func() {
			resp := login(browser, f.ts.URL, "Guest", "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body(resp)).To(ContainSubstring(`data-testid="login-error"`))
		})

		It("should log out", func() {
			login(browser, f.ts.URL, bill.UserEmployee, "a@a").Body.Close()
			resp, err := browser.PostForm(f.ts.URL+"/logout", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteLogin))
			resp.Body.Close()

			resp, err = browser.Get(f.ts.URL + pages.RouteBills)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteLogin))
			resp.Body.Close()
		})
	})

	Describe("employee", func() {
		BeforeEach(func() {
			resp := login(browser, f.ts.URL, bill.UserEmployee, "a@a")
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteBills))
			resp.Body.Close()
		})

		It("should list only the employee's bills, formatted when possible", func() {
			resp, err := browser.Get(f.ts.URL + pages.RouteBills)
			Expect(err).NotTo(HaveOccurred())
			html := body(resp)
			Expect(html).To(ContainSubstring("encore"))
			Expect(html).To(ContainSubstring("4 Avr. 04"))
			Expect(html).To(ContainSubstring("corrompue"))
			Expect(html).To(ContainSubstring("invalid-date"))
			Expect(html).NotTo(ContainSubstring("hotel"))
		})

		It("should open the receipt preview", func() {
			resp, err := browser.Get(f.ts.URL + "/bills?preview=" + url.QueryEscape("/files/a1.png"))
			Expect(err).NotTo(HaveOccurred())
			html := body(resp)
			Expect(html).To(ContainSubstring(`data-testid="modaleFile"`))
			Expect(html).To(ContainSubstring(`src="/files/a1.png"`))
		})

		It("should open the new bill form", func() {
			resp, err := browser.PostForm(f.ts.URL+pages.RouteBills, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteNewBill))
			Expect(body(resp)).To(ContainSubstring(`data-testid="form-new-bill"`))
		})

		It("should be kept out of the dashboard", func() {
			resp, err := browser.Get(f.ts.URL + pages.RouteDashboard)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteBills))
			resp.Body.Close()
		})

		It("should submit a new bill", func() {
			buf, ct := multipartBody(nil, "facture.png", "image/png", []byte("png-bytes"))
			resp, err := browser.Post(f.ts.URL+"/bills/new/file", ct, buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteNewBill))
			Expect(body(resp)).To(ContainSubstring(`data-testid="file-preview"`))

			resp, err = browser.PostForm(f.ts.URL+pages.RouteNewBill, url.Values{
				"type":   {"Transports"},
				"name":   {"Vol Paris Londres"},
				"date":   {"2022-02-21"},
				"amount": {"348"},
				"vat":    {"70"},
				"pct":    {""},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteBills))
			html := body(resp)
			Expect(html).To(ContainSubstring("Vol Paris Londres"))
			Expect(html).To(ContainSubstring("21 Févr. 22"))

			bills, err := f.store.ForEmail("a@a").Bills().List(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).To(HaveLen(3))
			created := bills[2]
			Expect(created.Amount).To(Equal(348))
			Expect(created.Pct).To(Equal(bill.Pct(20)))
			Expect(created.Status).To(Equal(bill.StatusPending))
			Expect(created.FileName).To(Equal("facture.png"))
		})

		It("should refuse unsupported receipts", func() {
			buf, ct := multipartBody(nil, "notes.txt", "text/plain", []byte("hello"))
			resp, err := browser.Post(f.ts.URL+"/bills/new/file", ct, buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body(resp)).To(ContainSubstring(`data-testid="newbill-error"`))
		})

		It("should show violations on an invalid form", func() {
			resp, err := browser.PostForm(f.ts.URL+pages.RouteNewBill, url.Values{
				"type":   {"Transports"},
				"name":   {"Vol"},
				"date":   {"pas une date"},
				"amount": {"0"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			html := body(resp)
			Expect(html).To(ContainSubstring("Date invalide"))
			Expect(html).To(ContainSubstring("Justificatif manquant"))
			Expect(html).To(ContainSubstring(`value="Vol"`))
		})
	})

	Describe("admin", func() {
		BeforeEach(func() {
			resp := login(browser, f.ts.URL, bill.UserAdmin, "admin@billed.com")
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteDashboard))
			resp.Body.Close()
		})

		It("should count bills per status without test accounts", func() {
			resp, err := browser.Get(f.ts.URL + pages.RouteDashboard)
			Expect(err).NotTo(HaveOccurred())
			html := body(resp)
			Expect(html).To(ContainSubstring("En attente (2)"))
			Expect(html).To(ContainSubstring("Validé (0)"))
			Expect(html).To(ContainSubstring("Refusé (1)"))
			Expect(html).NotTo(ContainSubstring("open-bill"))
		})

		It("should toggle a status group", func() {
			resp, err := browser.PostForm(f.ts.URL+"/dashboard/tickets/1", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteDashboard))
			html := body(resp)
			Expect(html).To(ContainSubstring(`data-testid="open-bill` + "a1" + `"`))
			Expect(html).To(ContainSubstring(`data-testid="open-bill` + "b1" + `"`))
			Expect(html).NotTo(ContainSubstring(`data-testid="open-billt1"`))

			resp, err = browser.PostForm(f.ts.URL+"/dashboard/tickets/1", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(body(resp)).NotTo(ContainSubstring("open-bill"))
		})

		It("should answer 404 for an unknown group", func() {
			resp, err := browser.PostForm(f.ts.URL+"/dashboard/tickets/9", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("should show the decision form of the selected bill", func() {
			resp, err := browser.PostForm(f.ts.URL+"/dashboard/bills/b1/edit", nil)
			Expect(err).NotTo(HaveOccurred())
			html := body(resp)
			Expect(html).To(ContainSubstring(`data-testid="dashboard-form"`))
			Expect(html).To(ContainSubstring("hotel"))
		})

		It("should accept a bill", func() {
			resp, err := browser.PostForm(f.ts.URL+"/dashboard/bills/b1/decision", url.Values{"decision": {"accepted"}, "commentAdmin": {"ok"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteDashboard))
			Expect(body(resp)).To(ContainSubstring("Validé (1)"))

			stored, err := f.db.GetBill("b1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(bill.StatusAccepted))
			Expect(stored.CommentAdmin).To(BeEmpty())
		})

		It("should refuse a bill", func() {
			resp, err := browser.PostForm(f.ts.URL+"/dashboard/bills/a1/decision", url.Values{"decision": {"refused"}})
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			stored, err := f.db.GetBill("a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(bill.StatusRefused))
		})

		It("should report a rejected decision on the dashboard", func() {
			resp, err := browser.PostForm(f.ts.URL+"/dashboard/bills/a2/decision", url.Values{"decision": {"accepted"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(body(resp)).To(ContainSubstring("corrompue n&#39;a pas pu être enregistrée"))

			resp, err = browser.Get(f.ts.URL + pages.RouteDashboard)
			Expect(err).NotTo(HaveOccurred())
			Expect(body(resp)).NotTo(ContainSubstring("pas pu être enregistrée"))
		})

		It("should answer 404 for an unknown bill", func() {
			resp, err := browser.PostForm(f.ts.URL+"/dashboard/bills/zz/decision", url.Values{"decision": {"accepted"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("should reject an unknown decision", func() {
			resp, err := browser.PostForm(f.ts.URL+"/dashboard/bills/b1/decision", url.Values{"decision": {"maybe"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("fire-and-forget decisions", func() {
		BeforeEach(func() {
			f.Close()
			f = newFixture(func(cfg *Config) { cfg.AwaitUpdates = false })
			browser = f.browser()
			f.seed(bill.Bill{ID: "b1", Email: "cedric.hiely@billed.com", Date: "2003-03-03", Status: bill.StatusPending})
			login(browser, f.ts.URL, bill.UserAdmin, "admin@billed.com").Body.Close()
		})

		It("should persist once pending updates are drained", func() {
			resp, err := browser.PostForm(f.ts.URL+"/dashboard/bills/b1/decision", url.Values{"decision": {"refused"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.URL.Path).To(Equal(pages.RouteDashboard))
			resp.Body.Close()

			f.server.Wait()
			stored, err := f.db.GetBill("b1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(bill.StatusRefused))
		})
	})
})
