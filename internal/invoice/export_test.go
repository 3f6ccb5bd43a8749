package invoice

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("ExportXLSX", func() {
	var (
		db      *mockDB
		service *Service
	)

	BeforeEach(func() {
		db = newMockDB()
		inv := newTestInvoice("inv-1", "alice", time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC))
		inv.Location = &Location{Name: "Restaurant Adler", City: "Munich"}
		db.invoices["inv-1"] = inv
		db.invoices["inv-2"] = newTestInvoice("inv-2", "bob", time.Now())
		service = NewServiceWithDeps(db, newMockStorage(), Pipeline{}, Options{},
			&fixedIDGenerator{ids: []string{"x"}}, &fixedTimeSource{now: time.Now()})
	})

	It("writes one row per invoice of the user", func() {
		data, err := service.ExportXLSX(context.Background(), User{ID: "alice"})
		Expect(err).NotTo(HaveOccurred())

		f, err := excelize.OpenReader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		rows, err := f.GetRows(exportSheet)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0]).To(Equal(exportHeaders))
		Expect(rows[1][0]).To(Equal("2024-03-12"))
		Expect(rows[1][1]).To(Equal("Meals and Entertainment"))
		Expect(rows[1][3]).To(Equal("45.9"))
		Expect(rows[1][5]).To(Equal("Anna, Ben"))
		Expect(rows[1][6]).To(Equal("Restaurant Adler, Munich"))
		Expect(rows[1][9]).To(Equal("http://files.test/files/inv-1_invoice.pdf"))
	})

	It("propagates database errors", func() {
		db.listErr = context.DeadlineExceeded
		_, err := service.ExportXLSX(context.Background(), User{ID: "alice"})
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})
})
