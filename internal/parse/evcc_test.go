package parse

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

var _ = Describe("EVCC parser", func() {
	var (
		parser   Parser
		session  string
		receipts []receipt.Receipt
		err      error
	)

	BeforeEach(func() {
		parser = NewEVCC("AUD", 0.25)
		session = `{
			"id": 412,
			"chargedEnergy": 10.0,
			"created": "2024-05-01T18:00:00+10:00",
			"finished": "2024-05-01T21:30:00+10:00",
			"chargeDuration": 5400000000000,
			"loadpoint": "Garage",
			"vehicle": "Model 3",
			"solarPercentage": 62.5
		}`
	})

	JustBeforeEach(func() {
		in := Input{Source: receipt.SourceEVCC, SessionJSON: []byte(session)}
		receipts, err = parser.Parse(in)
	})

	When("the session reports no price", func() {
		It("should derive the cost from the home rate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].Cost).To(Equal(2.50))
		})

		It("should build the home-charging receipt", func() {
			r := receipts[0]
			Expect(r.Provider).To(Equal("EVCC (Home)"))
			Expect(r.Location).To(Equal("Home Charging (Garage) - Model 3"))
			Expect(r.EnergyKWh).To(Equal(10.0))
			Expect(r.SessionDuration).To(Equal("1h 30m"))
			Expect(r.SessionID).To(Equal("412"))
			Expect(r.EmailSubject).To(Equal("EVCC Home Charging Session #412 (Solar: 62.5%)"))
		})

		It("should prefer the finish time", func() {
			finished, _ := time.Parse(time.RFC3339, "2024-05-01T21:30:00+10:00")
			Expect(receipts[0].Date.Equal(finished)).To(BeTrue())
		})
	})

	When("the session reports its own price", func() {
		BeforeEach(func() {
			session = `{"id": 7, "chargedEnergy": 12.0, "price": 3.10, "pricePerKWh": 0.2583,
				"created": "2024-05-02T08:00:00+10:00"}`
		})

		It("should use the reported price", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts[0].Cost).To(Equal(3.10))
		})

		It("should note the unit price in the subject", func() {
			Expect(receipts[0].EmailSubject).To(Equal("EVCC Home Charging Session #7 @$0.2583/kWh"))
		})
	})

	When("the session delivered no energy", func() {
		BeforeEach(func() {
			session = `{"id": 9, "chargedEnergy": 0, "created": "2024-05-02T08:00:00+10:00"}`
		})

		It("should fail with a parse error", func() {
			var parseErr *ParseError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Field).To(Equal("charged energy"))
		})
	})

	When("the session is still in progress", func() {
		BeforeEach(func() {
			session = `{"id": 10, "chargedEnergy": 5.0,
				"created": "2024-05-02T08:00:00+10:00",
				"finished": "0001-01-01T00:00:00Z"}`
		})

		It("should fall back to the start time", func() {
			Expect(err).NotTo(HaveOccurred())
			created, _ := time.Parse(time.RFC3339, "2024-05-02T08:00:00+10:00")
			Expect(receipts[0].Date.Equal(created)).To(BeTrue())
		})
	})

	When("the session has no usable timestamp", func() {
		BeforeEach(func() {
			session = `{"id": 11, "chargedEnergy": 5.0}`
		})

		It("should fail with a parse error", func() {
			var parseErr *ParseError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Field).To(Equal("timestamp"))
		})
	})

	When("the payload is not valid JSON", func() {
		BeforeEach(func() {
			session = `{not json`
		})

		It("should return a decode error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("decoding evcc session"))
		})
	})
})
