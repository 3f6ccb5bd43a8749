package invoice

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-tracker/internal/pdftext"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

// multipartBody builds a multipart form with one file and plain fields
func multipartBody(field, filename string, data []byte, values map[string]string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	}
	for k, v := range values {
		Expect(writer.WriteField(k, v)).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		categorize  *mockCategorizer
		model       *stubModel
		accounts    Accounts
		server      *Server
		ghttpServer *ghttp.Server
		now         time.Time
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		categorize = &mockCategorizer{category: scanning.Category{Label: "Food"}}
		model = &stubModel{response: adlerReceiptJSON}
		accounts = nil
		now = time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
	})

	JustBeforeEach(func() {
		pipeline := Pipeline{
			Text:        pdftext.Native{},
			Categorizer: categorize,
			Receipts:    scanning.NewReceiptExtractor(model, time.Second),
		}
		service := NewServiceWithDeps(db, storage, pipeline, Options{FormDir: GinkgoT().TempDir()},
			&fixedIDGenerator{ids: []string{"inv-1"}}, &fixedTimeSource{now: now})
		server = NewServerWithMux(service, accounts, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		for i := 0; i < 4; i++ {
			ghttpServer.AppendHandlers(server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	post := func(path, contentType string, body io.Reader) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	postJSON := func(path string, v any) *http.Response {
		data, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		return post(path, "application/json", bytes.NewReader(data))
	}

	Describe("POST /api/bewirtungsbeleg", func() {
		It("returns a form carrying the receipt fields", func() {
			body, contentType := multipartBody("file", "adler.pdf",
				samplePDF("Restaurant Adler, 12.03.2024, Total 45,90 EUR"), nil)
			resp := post("/api/bewirtungsbeleg", contentType, body)
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="adler_form.pdf"`))

			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			text, err := pdftext.Native{}.Extract(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(ContainSubstring("Adler"))
			Expect(text).To(ContainSubstring("45,90"))
		})

		It("rejects requests without a file", func() {
			body, contentType := multipartBody("", "", nil, map[string]string{"note": "x"})
			resp := post("/api/bewirtungsbeleg", contentType, body)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			var payload map[string]string
			decodeBody(resp, &payload)
			Expect(payload["error"]).To(Equal("Invalid file upload"))
		})

		It("answers an opaque 500 for unreadable PDFs", func() {
			body, contentType := multipartBody("file", "a.pdf", []byte("not a pdf"), nil)
			resp := post("/api/bewirtungsbeleg", contentType, body)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			var payload map[string]string
			decodeBody(resp, &payload)
			Expect(payload["error"]).To(Equal("Failed to generate form"))
		})
	})

	Describe("POST /api/extract-text", func() {
		It("returns the text layer", func() {
			body, contentType := multipartBody("file", "a.pdf", samplePDF("Total 45,90 EUR"), nil)
			resp := post("/api/extract-text", contentType, body)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var payload map[string]string
			decodeBody(resp, &payload)
			Expect(payload["text"]).To(ContainSubstring("45,90"))
		})
	})

	Describe("POST /api/categorize", func() {
		When("the model fails", func() {
			BeforeEach(func() {
				categorize.category = scanning.Category{Label: scanning.FallbackCategory, Fallback: true}
			})

			It("still answers with the fallback category", func() {
				resp := postJSON("/api/categorize", map[string]string{"text": "Hotel Berlin"})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var payload map[string]any
				decodeBody(resp, &payload)
				Expect(payload).To(Equal(map[string]any{"category": "Other", "fallback": true}))
			})
		})

		It("rejects missing text", func() {
			resp := postJSON("/api/categorize", map[string]string{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("POST /api/process", func() {
		It("returns category and text", func() {
			body, contentType := multipartBody("file", "a.pdf", samplePDF("Hotel Berlin"), nil)
			resp := post("/api/process", contentType, body)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var payload map[string]string
			decodeBody(resp, &payload)
			Expect(payload["category"]).To(Equal("Food"))
			Expect(payload["text"]).To(ContainSubstring("Hotel Berlin"))
		})
	})

	Describe("POST /api/upload", func() {
		It("stores the file and reports its name", func() {
			body, contentType := multipartBody("file", "hotel.pdf", samplePDF("Hotel Berlin"), nil)
			resp := post("/api/upload", contentType, body)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var payload map[string]string
			decodeBody(resp, &payload)
			Expect(payload["filename"]).To(Equal("inv-1_hotel.pdf"))
			Expect(storage.files).To(HaveKey("inv-1_hotel.pdf"))
		})
	})

	Describe("POST /api/download-url", func() {
		var remote *ghttp.Server

		BeforeEach(func() {
			remote = ghttp.NewServer()
		})

		AfterEach(func() {
			remote.Close()
		})

		It("answers 415 for non-PDF content", func() {
			remote.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html></html>",
				http.Header{"Content-Type": {"text/html"}}))

			resp := postJSON("/api/download-url", map[string]string{"url": remote.URL() + "/page"})
			Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
			var payload map[string]string
			decodeBody(resp, &payload)
			Expect(payload["error"]).To(Equal("Not a PDF: text/html"))
		})

		It("processes a remote PDF", func() {
			remote.AppendHandlers(ghttp.RespondWith(http.StatusOK, samplePDF("Taxi Munich"),
				http.Header{"Content-Type": {"application/pdf"}}))

			resp := postJSON("/api/download-url", map[string]string{"url": remote.URL() + "/invoice.pdf"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var payload map[string]string
			decodeBody(resp, &payload)
			Expect(payload["text"]).To(ContainSubstring("Taxi Munich"))
			Expect(payload["category"]).To(Equal("Food"))
		})

		It("rejects a missing url", func() {
			resp := postJSON("/api/download-url", map[string]string{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("GET /api/gmail-scan", func() {
		It("answers 503 without a mailbox", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/gmail-scan")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			resp.Body.Close()
		})
	})

	Describe("invoices", func() {
		createForm := func() (*bytes.Buffer, string) {
			return multipartBody("pdf", "adler.pdf", []byte("%PDF-1.4"), map[string]string{
				"amount":       "45.90",
				"tipAmount":    "",
				"date":         "2024-03-12",
				"reason":       "Client dinner",
				"category":     "Meals and Entertainment",
				"participants": "Anna, Ben,",
				"city":         "Munich",
			})
		}

		It("creates an invoice from a form", func() {
			body, contentType := createForm()
			resp := post("/api/invoices", contentType, body)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var inv Invoice
			decodeBody(resp, &inv)
			Expect(inv.ID).To(Equal("inv-1"))
			Expect(inv.UserID).To(Equal(AnonymousUser.ID))
			Expect(inv.Participants).To(Equal([]string{"Anna", "Ben"}))
			Expect(inv.Location).To(Equal(&Location{City: "Munich"}))
			Expect(inv.PDFURL).To(Equal("http://files.test/files/inv-1_adler.pdf"))
		})

		It("rejects a non-numeric amount", func() {
			body, contentType := multipartBody("pdf", "a.pdf", []byte("%PDF-1.4"), map[string]string{
				"amount": "lots", "date": "2024-03-12", "category": "Travel",
			})
			resp := post("/api/invoices", contentType, body)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			var payload map[string]string
			decodeBody(resp, &payload)
			Expect(payload["error"]).To(Equal("Amount must be a number"))
		})

		When("the invoice belongs to someone else", func() {
			BeforeEach(func() {
				db.invoices["inv-9"] = newTestInvoice("inv-9", "bob", now)
			})

			It("answers 404 to a status update", func() {
				resp := postJSON("/api/invoices/inv-9/status", map[string]string{"status": "approved"})
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
				Expect(db.invoices["inv-9"].Status).To(Equal(StatusPending))
			})

			It("answers 404 to a lookup", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/invoices/inv-9")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})

		When("the invoice is owned by the caller", func() {
			BeforeEach(func() {
				db.invoices["inv-1"] = newTestInvoice("inv-1", AnonymousUser.ID, now)
			})

			It("approves it once", func() {
				resp := postJSON("/api/invoices/inv-1/status", map[string]string{"status": "approved"})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var inv Invoice
				decodeBody(resp, &inv)
				Expect(inv.Status).To(Equal(StatusApproved))

				resp = postJSON("/api/invoices/inv-1/status", map[string]string{"status": "rejected"})
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
				resp.Body.Close()
			})

			It("edits it with a JSON body", func() {
				data := `{"amount": "12.50", "tip_amount": 1, "date": "2024-03-14", "category": "Travel", "participants": ["Anna"]}`
				req, err := http.NewRequest(http.MethodPut, ghttpServer.URL()+"/api/invoices/inv-1", strings.NewReader(data))
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", "application/json")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var inv Invoice
				decodeBody(resp, &inv)
				Expect(inv.Amount.String()).To(Equal("12.5"))
				Expect(inv.Category).To(Equal("Travel"))
			})

			It("lists it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var invoices []Invoice
				decodeBody(resp, &invoices)
				Expect(invoices).To(HaveLen(1))
			})

			It("serves its PDF", func() {
				storage.files["inv-1_invoice.pdf"] = []byte("%PDF-stored")
				resp, err := http.Get(ghttpServer.URL() + "/api/invoices/inv-1/file")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			})
		})
	})

	Describe("GET /api/dashboard", func() {
		It("returns the aggregates", func() {
			db.invoices["inv-1"] = newTestInvoice("inv-1", AnonymousUser.ID, now)
			resp, err := http.Get(ghttpServer.URL() + "/api/dashboard")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var payload map[string]any
			decodeBody(resp, &payload)
			Expect(payload["total_invoices"]).To(BeNumerically("==", 1))
			Expect(payload["monthly"]).To(HaveLen(6))
		})
	})

	Describe("GET /api/export.xlsx", func() {
		It("returns a spreadsheet", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/export.xlsx")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("invoices.xlsx"))
		})
	})

	Describe("GET /files/{name}", func() {
		getFile := func(name string) *http.Response {
			resp, err := http.Get(ghttpServer.URL() + "/files/" + name)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("serves files of the user's invoices", func() {
			db.invoices["inv-1"] = newTestInvoice("inv-1", AnonymousUser.ID, now)
			storage.files["inv-1_invoice.pdf"] = []byte("%PDF-1.4 data")
			resp := getFile("inv-1_invoice.pdf")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
		})

		It("answers 404 for files of someone else's invoice", func() {
			db.invoices["inv-2"] = newTestInvoice("inv-2", "mallory", now)
			storage.files["inv-2_invoice.pdf"] = []byte("%PDF-1.4 data")
			resp := getFile("inv-2_invoice.pdf")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("answers 404 for stored files without an invoice", func() {
			storage.files["a.pdf"] = []byte("%PDF-1.4 data")
			resp := getFile("a.pdf")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("answers 404 for missing files", func() {
			resp, err := http.Get(ghttpServer.URL() + "/files/missing.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			accounts = Accounts{"alice": {Username: "alice", Password: "secret", Email: "alice@example.com"}}
			db.invoices["inv-1"] = newTestInvoice("inv-1", "alice", now)
		})

		get := func(user, password string) *http.Response {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/invoices/inv-1", nil)
			Expect(err).NotTo(HaveOccurred())
			if user != "" {
				req.SetBasicAuth(user, password)
			}
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("rejects requests without credentials", func() {
			resp := get("", "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("rejects a wrong password", func() {
			resp := get("alice", "nope")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("acts as the authenticated user", func() {
			resp := get("alice", "secret")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("answers preflight requests without credentials", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})
})

var _ = Describe("ParseAccounts", func() {
	It("parses users with optional emails", func() {
		accounts, err := ParseAccounts("alice:secret:alice@example.com, bob:pw")
		Expect(err).NotTo(HaveOccurred())
		Expect(accounts).To(HaveLen(2))
		Expect(accounts["alice"].Email).To(Equal("alice@example.com"))
		Expect(accounts["bob"].Password).To(Equal("pw"))
	})

	It("rejects entries without a password", func() {
		_, err := ParseAccounts("alice")
		Expect(err).To(HaveOccurred())
	})

	It("returns no accounts for an empty list", func() {
		accounts, err := ParseAccounts("")
		Expect(err).NotTo(HaveOccurred())
		Expect(accounts).To(BeEmpty())
	})
})
