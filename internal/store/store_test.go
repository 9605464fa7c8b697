package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Store Suite")
}

var _ = Describe("Store", func() {
	var (
		db  *Store
		err error
	)

	newReceipt := func(provider string, cost float64, date time.Time) receipt.Receipt {
		return receipt.Receipt{
			Provider: provider,
			Date:     date,
			Location: "Westfield Parramatta, NSW, 2150",
			Cost:     cost,
			Currency: "AUD",
		}
	}

	BeforeEach(func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")
		db, err = Open(dbPath, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("Save", func() {
		var r receipt.Receipt

		BeforeEach(func() {
			r = newReceipt("Chargefox", 18.50, time.Now().Add(-24*time.Hour))
		})

		When("the receipt is valid and new", func() {
			It("should save it", func() {
				Expect(db.Save(r, receipt.SourceEmail, 0.10)).To(BeTrue())
				Expect(db.IsDuplicate(r, receipt.SourceEmail)).To(BeTrue())
			})
		})

		When("the same receipt is saved twice", func() {
			It("should reject the second save", func() {
				Expect(db.Save(r, receipt.SourceEmail, 0.10)).To(BeTrue())
				Expect(db.Save(r, receipt.SourceEmail, 0.10)).To(BeFalse())

				records, exportErr := db.ExportAll()
				Expect(exportErr).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
			})
		})

		When("the same session arrives from a different source", func() {
			It("should save both", func() {
				Expect(db.Save(r, receipt.SourceEmail, 0.10)).To(BeTrue())
				Expect(db.Save(r, receipt.SourceTeslaPDF, 0.10)).To(BeTrue())
			})
		})

		When("the receipt fails validation", func() {
			It("should reject an unidentified provider", func() {
				r.Provider = "Unknown"
				Expect(db.Save(r, receipt.SourceEmail, 0.10)).To(BeFalse())
			})

			It("should reject a cost at the minimum", func() {
				r.Cost = 0.10
				Expect(db.Save(r, receipt.SourceEmail, 0.10)).To(BeFalse())
			})

			It("should persist nothing", func() {
				r.Location = ""
				db.Save(r, receipt.SourceEmail, 0.10)
				records, exportErr := db.ExportAll()
				Expect(exportErr).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})
	})

	Describe("Statistics", func() {
		When("the store is empty", func() {
			It("should return zeroes without dividing by zero", func() {
				stats := db.Statistics()
				Expect(stats.TotalSessions).To(BeZero())
				Expect(stats.AverageCostPerKWh).To(BeZero())
				Expect(stats.TopProvider).To(BeEmpty())
			})
		})

		When("receipts span sources and time windows", func() {
			BeforeEach(func() {
				recent := newReceipt("Chargefox", 20.00, time.Now().Add(-48*time.Hour))
				recent.EnergyKWh = 40.0
				Expect(db.Save(recent, receipt.SourceEmail, 0.10)).To(BeTrue())

				home := newReceipt("EVCC (Home)", 2.50, time.Now().Add(-24*time.Hour))
				home.EnergyKWh = 10.0
				home.Location = "Home Charging (Garage)"
				Expect(db.Save(home, receipt.SourceEVCC, 0.10)).To(BeTrue())

				old := newReceipt("Chargefox", 15.00, time.Now().AddDate(0, 0, -60))
				old.EnergyKWh = 30.0
				Expect(db.Save(old, receipt.SourceEmail, 0.10)).To(BeTrue())
			})

			It("should count every session in the totals", func() {
				stats := db.Statistics()
				Expect(stats.TotalSessions).To(Equal(3))
				Expect(stats.TotalCost).To(BeNumerically("~", 37.50, 0.001))
				Expect(stats.TotalEnergy).To(BeNumerically("~", 80.0, 0.001))
			})

			It("should restrict monthly figures to the trailing 30 days", func() {
				stats := db.Statistics()
				Expect(stats.MonthlySessions).To(Equal(2))
				Expect(stats.MonthlyCost).To(BeNumerically("~", 22.50, 0.001))
			})

			It("should split home and public charging", func() {
				stats := db.Statistics()
				Expect(stats.HomeMonthlySessions).To(Equal(1))
				Expect(stats.HomeMonthlyCost).To(BeNumerically("~", 2.50, 0.001))
				Expect(stats.PublicMonthlySessions).To(Equal(1))
				Expect(stats.PublicMonthlyCost).To(BeNumerically("~", 20.00, 0.001))
			})

			It("should report the most recent session", func() {
				stats := db.Statistics()
				Expect(stats.LastSessionProvider).To(Equal("EVCC (Home)"))
				Expect(stats.LastSessionCost).To(BeNumerically("~", 2.50, 0.001))
			})

			It("should pick the most frequent provider", func() {
				stats := db.Statistics()
				Expect(stats.TopProvider).To(Equal("Chargefox"))
			})

			It("should average cost over energy", func() {
				stats := db.Statistics()
				Expect(stats.AverageCostPerKWh).To(BeNumerically("~", 37.50/80.0, 0.001))
			})
		})
	})

	Describe("ExportAll", func() {
		It("should return receipts most recent first", func() {
			older := newReceipt("Chargefox", 10.00, time.Now().AddDate(0, 0, -10))
			newer := newReceipt("Ampol", 12.00, time.Now().AddDate(0, 0, -1))
			Expect(db.Save(older, receipt.SourceEmail, 0.10)).To(BeTrue())
			Expect(db.Save(newer, receipt.SourceEmail, 0.10)).To(BeTrue())

			records, exportErr := db.ExportAll()
			Expect(exportErr).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].Provider).To(Equal("Ampol"))
			Expect(records[1].Provider).To(Equal("Chargefox"))
		})
	})

	Describe("processed markers", func() {
		It("should track emails, sessions and PDFs independently", func() {
			Expect(db.IsEmailProcessed("abc")).To(BeFalse())
			Expect(db.MarkEmailProcessed("abc", "Your receipt")).To(Succeed())
			Expect(db.IsEmailProcessed("abc")).To(BeTrue())

			Expect(db.IsSessionProcessed("abc")).To(BeFalse())
			Expect(db.MarkSessionProcessed("abc", `{"id":1}`)).To(Succeed())
			Expect(db.IsSessionProcessed("abc")).To(BeTrue())

			Expect(db.IsPDFProcessed("abc")).To(BeFalse())
			Expect(db.MarkPDFProcessed("abc", "invoice.pdf")).To(Succeed())
			Expect(db.IsPDFProcessed("abc")).To(BeTrue())
		})

		It("should tolerate marking the same input twice", func() {
			Expect(db.MarkEmailProcessed("abc", "first")).To(Succeed())
			Expect(db.MarkEmailProcessed("abc", "second")).To(Succeed())
			Expect(db.IsEmailProcessed("abc")).To(BeTrue())
		})
	})

	Describe("RepairDates", func() {
		correct := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)

		reExtract := func(raw string) (time.Time, bool) {
			if strings.Contains(raw, "2024-03-15") {
				return correct, true
			}
			return time.Time{}, false
		}

		It("should rewrite rows whose raw text yields a different date", func() {
			wrong := newReceipt("Chargefox", 18.50, time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local))
			wrong.RawData = "EV charging on 2024-03-15\nTotal: $18.50"
			Expect(db.Save(wrong, receipt.SourceEmail, 0.10)).To(BeTrue())

			n, err := db.RepairDates(reExtract)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			records, err := db.ExportAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Date.Equal(correct)).To(BeTrue())

			fixed := wrong
			fixed.Date = correct
			Expect(db.IsDuplicate(fixed, receipt.SourceEmail)).To(BeTrue())
			Expect(db.IsDuplicate(wrong, receipt.SourceEmail)).To(BeFalse())
		})

		It("should leave rows without raw text or with matching dates alone", func() {
			bare := newReceipt("Ampol", 12.00, time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local))
			Expect(db.Save(bare, receipt.SourceEmail, 0.10)).To(BeTrue())

			already := newReceipt("Chargefox", 18.50, correct)
			already.RawData = "EV charging on 2024-03-15"
			Expect(db.Save(already, receipt.SourceEmail, 0.10)).To(BeTrue())

			n, err := db.RepairDates(reExtract)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("should collapse a correction into an existing row", func() {
			right := newReceipt("Chargefox", 18.50, correct)
			Expect(db.Save(right, receipt.SourceEmail, 0.10)).To(BeTrue())

			wrong := newReceipt("Chargefox", 18.50, time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local))
			wrong.RawData = "EV charging on 2024-03-15"
			Expect(db.Save(wrong, receipt.SourceEmail, 0.10)).To(BeTrue())

			n, err := db.RepairDates(reExtract)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			records, err := db.ExportAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})
	})

	Describe("ClearAll", func() {
		It("should wipe every table and report the counts", func() {
			r := newReceipt("Chargefox", 18.50, time.Now())
			Expect(db.Save(r, receipt.SourceEmail, 0.10)).To(BeTrue())
			Expect(db.MarkEmailProcessed("e1", "subject")).To(Succeed())
			Expect(db.MarkSessionProcessed("s1", "{}")).To(Succeed())
			Expect(db.MarkPDFProcessed("p1", "a.pdf")).To(Succeed())

			result, clearErr := db.ClearAll()
			Expect(clearErr).NotTo(HaveOccurred())
			Expect(result.Receipts).To(Equal(1))
			Expect(result.Emails).To(Equal(1))
			Expect(result.Sessions).To(Equal(1))
			Expect(result.PDFs).To(Equal(1))

			Expect(db.IsDuplicate(r, receipt.SourceEmail)).To(BeFalse())
			Expect(db.IsEmailProcessed("e1")).To(BeFalse())
			records, exportErr := db.ExportAll()
			Expect(exportErr).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())

			stats := db.Statistics()
			Expect(stats.TotalSessions).To(BeZero())
			Expect(stats.TotalCost).To(BeZero())
			Expect(stats.LastSessionProvider).To(BeEmpty())
			Expect(stats.LastSessionDate.IsZero()).To(BeTrue())
		})
	})

	Describe("Open", func() {
		It("should reopen an existing database", func() {
			r := newReceipt("Chargefox", 18.50, time.Now())
			Expect(db.Save(r, receipt.SourceEmail, 0.10)).To(BeTrue())

			path := db.db.Path()
			Expect(db.Close()).To(Succeed())

			reopened, openErr := Open(path, nil)
			Expect(openErr).NotTo(HaveOccurred())
			defer reopened.Close()
			Expect(reopened.IsDuplicate(r, receipt.SourceEmail)).To(BeTrue())
		})
	})
})
