package parse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

const teslaInvoiceText = `Tesla Supercharging
Invoice Number: INV123456
Invoice date 2024/03/15
Charging Location:
Tesla Supercharger Sydney Olympic Park
1 Showground Rd
Sydney NSW 2127
45.200 kWh
0.52 /kWh
Total Amount (AUD) 24.10
`

var _ = Describe("Tesla parser", func() {
	var (
		parser   Parser
		in       Input
		receipts []receipt.Receipt
		err      error
	)

	BeforeEach(func() {
		extract := func(data []byte) (string, error) {
			return string(data), nil
		}
		parser = NewTesla("AUD", extract)
	})

	JustBeforeEach(func() {
		receipts, err = parser.Parse(in)
	})

	When("parsing a single PDF invoice", func() {
		BeforeEach(func() {
			in = Input{
				Source:  receipt.SourceTeslaPDF,
				Subject: "invoice.pdf",
				Attachments: []Attachment{
					{Filename: "invoice.pdf", Data: []byte(teslaInvoiceText)},
				},
			}
		})

		It("should extract one receipt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(1))
			r := receipts[0]
			Expect(r.Provider).To(Equal("Tesla"))
			Expect(r.Cost).To(Equal(24.10))
			Expect(r.EnergyKWh).To(Equal(45.2))
			Expect(r.Location).To(ContainSubstring("Tesla Supercharger Sydney Olympic Park"))
			Expect(r.Date.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local))).To(BeTrue())
		})

		It("should compose the synthetic subject from invoice number and unit price", func() {
			Expect(receipts[0].EmailSubject).To(Equal("Tesla Supercharging Receipt - INV123456 @$0.52/kWh"))
		})
	})

	When("an email carries several invoices", func() {
		BeforeEach(func() {
			second := teslaInvoiceText
			second = strings.ReplaceAll(second, "INV123456", "INV999999")
			second = strings.ReplaceAll(second, "2024/03/15", "2024/04/02")
			in = Input{
				Source:  receipt.SourceEmail,
				Sender:  "noreply@tesla.com",
				Subject: "Your Supercharging invoices",
				Attachments: []Attachment{
					{Filename: "a.pdf", Data: []byte(teslaInvoiceText)},
					{Filename: "b.pdf", Data: []byte(second)},
					{Filename: "terms.txt", Data: []byte("not an invoice")},
				},
			}
		})

		It("should yield one receipt per PDF", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(2))
			Expect(receipts[0].Date.Month()).To(Equal(time.March))
			Expect(receipts[1].Date.Month()).To(Equal(time.April))
		})

		It("should record the origin email in the raw data", func() {
			Expect(receipts[0].RawData).To(HavePrefix("From: noreply@tesla.com"))
			Expect(receipts[0].RawData).To(ContainSubstring("PDF: a.pdf"))
		})
	})

	When("one invoice in a bundle is malformed", func() {
		BeforeEach(func() {
			dateless := strings.ReplaceAll(teslaInvoiceText, "Invoice date 2024/03/15", "")
			in = Input{
				Source:  receipt.SourceEmail,
				Sender:  "noreply@tesla.com",
				Subject: "Your Supercharging invoices",
				Attachments: []Attachment{
					{Filename: "good.pdf", Data: []byte(teslaInvoiceText)},
					{Filename: "bad.pdf", Data: []byte(dateless)},
				},
			}
		})

		It("should return the good receipt alongside the failure", func() {
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].Cost).To(Equal(24.10))

			var parseErr *ParseError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Field).To(Equal("date"))
		})
	})

	When("the invoice has no date", func() {
		BeforeEach(func() {
			in = Input{
				Source:  receipt.SourceTeslaPDF,
				Subject: "invoice.pdf",
				Attachments: []Attachment{
					{Filename: "invoice.pdf", Data: []byte("Total Amount (AUD) 24.10")},
				},
			}
		})

		It("should fail with a parse error naming the field", func() {
			var parseErr *ParseError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Field).To(Equal("date"))
		})
	})

	When("the input has neither attachments nor text", func() {
		BeforeEach(func() {
			in = Input{Source: receipt.SourceTeslaPDF, Subject: "empty"}
		})

		It("should fail with a parse error", func() {
			var parseErr *ParseError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Field).To(Equal("pdf attachment"))
		})
	})

	When("the PDF extractor fails on every attachment", func() {
		BeforeEach(func() {
			parser = NewTesla("AUD", func([]byte) (string, error) {
				return "", fmt.Errorf("corrupt file")
			})
			in = Input{
				Source: receipt.SourceTeslaPDF,
				Attachments: []Attachment{
					{Filename: "bad.pdf", Data: []byte("x")},
				},
			}
		})

		It("should fail with a parse error", func() {
			var parseErr *ParseError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Field).To(Equal("pdf text"))
		})
	})
})
