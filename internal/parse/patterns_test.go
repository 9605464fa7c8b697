package parse

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Shared extraction tables", func() {
	Describe("ExtractCost", func() {
		It("should prefer labeled totals over bare amounts", func() {
			cost, ok := ExtractCost("Booking fee $1.00\nTotal Amount: $18.50")
			Expect(ok).To(BeTrue())
			Expect(cost).To(Equal(18.50))
		})

		It("should read AUD-suffixed amounts", func() {
			cost, ok := ExtractCost("You were charged 12.85 AUD")
			Expect(ok).To(BeTrue())
			Expect(cost).To(Equal(12.85))
		})

		It("should report failure when no amount exists", func() {
			_, ok := ExtractCost("Thanks for charging")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ExtractEnergy", func() {
		It("should read a kWh figure", func() {
			energy, ok := ExtractEnergy("Energy Delivered: 32.5 kWh")
			Expect(ok).To(BeTrue())
			Expect(energy).To(Equal(32.5))
		})

		It("should reject implausibly large values", func() {
			_, ok := ExtractEnergy("meter reading 20154 kWh")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ExtractLocation", func() {
		It("should read a labeled location line", func() {
			loc, ok := ExtractLocation("Location: Westfield Parramatta, NSW, 2150\nnext line")
			Expect(ok).To(BeTrue())
			Expect(loc).To(Equal("Westfield Parramatta, NSW, 2150"))
		})

		It("should discard matches too short to be a site", func() {
			_, ok := ExtractLocation("Site: A1")
			Expect(ok).To(BeFalse())
		})

		It("should cap overlong matches", func() {
			long := "Location: " + strings.Repeat("x", 300)
			loc, ok := ExtractLocation(long)
			Expect(ok).To(BeTrue())
			Expect(len(loc)).To(Equal(200))
		})
	})

	Describe("ExtractDuration", func() {
		It("should read clock-style durations", func() {
			d, ok := ExtractDuration("Duration: 00:38:12")
			Expect(ok).To(BeTrue())
			Expect(d).To(Equal("00:38:12"))
		})

		It("should join hour and minute groups", func() {
			d, ok := ExtractDuration("Charged for 1 hours 25 minutes")
			Expect(ok).To(BeTrue())
			Expect(d).To(Equal("1h 25m"))
		})
	})
})
