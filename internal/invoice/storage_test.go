package invoice

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir, "http://localhost:8080/")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			savedName string
			err       error
		)

		BeforeEach(func() {
			filename = "invoice.pdf"
		})

		JustBeforeEach(func() {
			savedName, err = storage.Save(filename, []byte("%PDF-1.4"))
		})

		It("writes the file under the base path", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(savedName).To(Equal("invoice.pdf"))
			data, readErr := os.ReadFile(filepath.Join(tmpDir, "invoice.pdf"))
			Expect(readErr).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("%PDF-1.4"))
		})

		When("the name tries to leave the base path", func() {
			BeforeEach(func() {
				filename = "../../etc/passwd"
			})

			It("keeps the file inside the base path", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedName).To(Equal("passwd"))
				Expect(filepath.Join(tmpDir, "passwd")).To(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		It("returns saved content", func() {
			_, err := storage.Save("a.pdf", []byte("content"))
			Expect(err).NotTo(HaveOccurred())
			data, err := storage.Get("a.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("content"))
		})

		It("reports missing files", func() {
			_, err := storage.Get("missing.pdf")
			Expect(err).To(MatchError(ErrFileNotFound))
		})
	})

	Describe("Delete", func() {
		It("removes the file", func() {
			_, err := storage.Save("a.pdf", []byte("content"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete("a.pdf")).To(Succeed())
			Expect(filepath.Join(tmpDir, "a.pdf")).NotTo(BeAnExistingFile())
		})
	})

	Describe("PublicURL", func() {
		It("builds a url under /files", func() {
			Expect(storage.PublicURL("inv 1.pdf")).To(Equal("http://localhost:8080/files/inv%201.pdf"))
		})
	})
})
