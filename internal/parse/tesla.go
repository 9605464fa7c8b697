package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

// teslaParser handles Tesla Supercharging invoices. Tesla delivers fixed
// layout PDFs, one session per document, and a single email can carry
// several of them, so one input may yield several receipts.
type teslaParser struct {
	currency   string
	extractPDF func([]byte) (string, error)
}

// NewTesla builds the Tesla invoice parser. extractPDF turns PDF bytes into
// page-concatenated text; it may be nil when inputs always arrive with the
// text already extracted.
func NewTesla(currency string, extractPDF func([]byte) (string, error)) Parser {
	return &teslaParser{currency: currency, extractPDF: extractPDF}
}

var (
	teslaInvoiceNumberRE = regexp.MustCompile(`(?i)Invoice\s+Number[:\s#]*([A-Z0-9]+)`)
	teslaDateRE          = regexp.MustCompile(`(?i)(?:Invoice\s+date|Date\s+of\s+Event)[^\n\d]*(\d{4}/\d{2}/\d{2})`)
	teslaAnyDateRE       = regexp.MustCompile(`(\d{4}/\d{2}/\d{2})`)
	teslaLocationRE      = regexp.MustCompile(`(?i)Charging\s+Location[:\s]*\n?\s*([^\n]+)\n\s*([^\n]+)(?:\n\s*([^\n]+))?`)
	teslaCostFallbacks   = compileAll(
		`Total\s+Amount\s+\([A-Z]{3}\)\s+([0-9]+\.[0-9]{2})`,
		`Total\s+Amount[:\s]*\$?([0-9]+\.[0-9]{2})`,
		`Total[:\s]*\$?([0-9]+\.[0-9]{2})\s*AUD`,
		`Total[:\s]*([0-9]+\.[0-9]{2})`,
	)
	teslaEnergyRE    = compileAll(`([0-9]+\.[0-9]+)\s*kWh`)
	teslaUnitPriceRE = regexp.MustCompile(`(?i)([0-9]+\.[0-9]+)\s*/\s*kWh`)
)

func (p *teslaParser) Provider() string { return "Tesla" }

func (p *teslaParser) CanParse(in Input) bool {
	if in.Source == receipt.SourceTeslaPDF {
		return true
	}
	if in.Source != receipt.SourceEmail {
		return false
	}
	sender := strings.ToLower(in.Sender)
	subject := strings.ToLower(in.Subject)
	fromTesla := strings.Contains(sender, "tesla.com") && strings.Contains(subject, "supercharg")
	forwarded := strings.Contains(subject, "tesla charging") && len(in.Attachments) > 0
	return fromTesla || forwarded
}

func (p *teslaParser) Parse(in Input) ([]receipt.Receipt, error) {
	var receipts []receipt.Receipt
	var firstErr error

	texts, err := p.collectTexts(in)
	if err != nil {
		return nil, err
	}

	for _, doc := range texts {
		r, err := p.parseInvoice(doc.text, doc.name, in)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		receipts = append(receipts, r)
	}

	if len(receipts) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, &ParseError{Provider: "Tesla", Subject: in.Subject, Field: "invoice text"}
	}
	// partial success: hand back the good invoices along with the first
	// per-document failure so the malformed one still shows in reports
	return receipts, firstErr
}

type teslaDoc struct {
	name string
	text string
}

func (p *teslaParser) collectTexts(in Input) ([]teslaDoc, error) {
	if len(in.Attachments) == 0 {
		if strings.TrimSpace(in.Text) == "" {
			return nil, &ParseError{Provider: "Tesla", Subject: in.Subject, Field: "pdf attachment"}
		}
		return []teslaDoc{{name: in.Subject, text: in.Text}}, nil
	}

	if p.extractPDF == nil {
		return nil, fmt.Errorf("tesla parser: no pdf extractor configured")
	}

	var docs []teslaDoc
	for _, att := range in.Attachments {
		if !strings.HasSuffix(strings.ToLower(att.Filename), ".pdf") {
			continue
		}
		text, err := p.extractPDF(att.Data)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, teslaDoc{name: att.Filename, text: text})
	}
	if len(docs) == 0 {
		return nil, &ParseError{Provider: "Tesla", Subject: in.Subject, Field: "pdf text"}
	}
	return docs, nil
}

func (p *teslaParser) parseInvoice(text, name string, in Input) (receipt.Receipt, error) {
	date, ok := p.extractDate(text)
	if !ok {
		return receipt.Receipt{}, &ParseError{Provider: "Tesla", Subject: name, Field: "date"}
	}

	cost, ok := firstFloat(teslaCostFallbacks, text, 0)
	if !ok {
		return receipt.Receipt{}, &ParseError{Provider: "Tesla", Subject: name, Field: "cost"}
	}

	location, ok := p.extractLocation(text)
	if !ok {
		return receipt.Receipt{}, &ParseError{Provider: "Tesla", Subject: name, Field: "location"}
	}

	energy, _ := firstFloat(teslaEnergyRE, text, 200)

	subject := "Tesla Supercharging Receipt - "
	if inv := teslaInvoiceNumberRE.FindStringSubmatch(text); inv != nil {
		subject += inv[1]
	} else {
		subject += "Unknown"
	}
	if m := teslaUnitPriceRE.FindStringSubmatch(text); m != nil {
		subject += fmt.Sprintf(" @$%s/kWh", m[1])
	}

	raw := text
	if in.Sender != "" {
		raw = fmt.Sprintf("From: %s, Subject: %s, PDF: %s\n\n%s", in.Sender, in.Subject, name, text)
	}

	return receipt.Receipt{
		Provider:     "Tesla",
		Date:         date,
		Location:     location,
		Cost:         cost,
		Currency:     p.currency,
		EnergyKWh:    energy,
		EmailSubject: subject,
		RawData:      truncate(raw, rawDataLimit),
	}, nil
}

// extractDate reads Tesla's YYYY/MM/DD invoice date. The labeled form is
// preferred; a bare slashed ISO date anywhere in the document is the
// fallback.
func (p *teslaParser) extractDate(text string) (time.Time, bool) {
	for _, re := range []*regexp.Regexp{teslaDateRE, teslaAnyDateRE} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		t, err := time.ParseInLocation("2006/01/02", m[1], time.Local)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

func (p *teslaParser) extractLocation(text string) (string, bool) {
	if m := teslaLocationRE.FindStringSubmatch(text); m != nil {
		parts := make([]string, 0, 3)
		for _, g := range m[1:] {
			g = strings.TrimSpace(g)
			if g != "" && !strings.HasPrefix(g, "S/N") {
				parts = append(parts, g)
			}
		}
		loc := strings.Join(parts, ", ")
		loc = strings.Join(strings.Fields(loc), " ")
		if len(loc) > 200 {
			loc = loc[:200]
		}
		if len(loc) > 5 {
			return loc, true
		}
	}
	return ExtractLocation(text)
}
