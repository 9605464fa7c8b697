// Package parse turns raw charging-receipt inputs (provider emails, Tesla
// PDF invoices, EVCC controller sessions) into canonical receipts. Each
// provider has its own parser; a registry picks the first parser whose cheap
// signal (source type, sender, subject) matches before any expensive text
// extraction runs.
package parse

import (
	"fmt"
	"strings"

	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

// Attachment is a PDF pulled from an email or scanned from disk.
type Attachment struct {
	Filename string
	Data     []byte
}

// Input is one raw item handed to the parsers. Text is the already-extracted
// plain text of the source; network fetching and MIME decoding happen before
// an Input is built, so parsing never blocks on I/O.
type Input struct {
	Source      receipt.SourceType
	Sender      string
	Subject     string
	Text        string
	Attachments []Attachment
	SessionJSON []byte // raw EVCC session object
}

// Parser extracts zero or more receipts from a recognized input.
type Parser interface {
	// Provider returns the display name this parser emits.
	Provider() string
	// CanParse is the cheap gate: it must decide from sender/subject/source
	// metadata only, without touching the body.
	CanParse(in Input) bool
	// Parse extracts receipts. A recognized input missing a required field
	// (cost, date) fails with a *ParseError. Multi-document inputs may
	// return the receipts that did parse alongside the first document's
	// error.
	Parse(in Input) ([]receipt.Receipt, error)
}

// ParseError reports that a recognized input could not be extracted. It
// carries enough context to debug the offending email or file.
type ParseError struct {
	Provider string
	Subject  string
	Field    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: no %s found in %q", e.Provider, e.Field, e.Subject)
}

// Registry holds parsers in fixed priority order; the first CanParse match
// wins.
type Registry struct {
	parsers []Parser
}

// Options configures the parser set.
type Options struct {
	Currency   string  // default currency code for extracted receipts
	HomeRate   float64 // $/kWh applied to EVCC sessions without a reported price
	ExtractPDF func([]byte) (string, error)
}

// NewRegistry builds the standard parser set. Order matters: the more
// specific senders come before the catch-all patterns.
func NewRegistry(opts Options) *Registry {
	if opts.Currency == "" {
		opts.Currency = "AUD"
	}
	return &Registry{parsers: []Parser{
		NewTesla(opts.Currency, opts.ExtractPDF),
		NewBPPulse(opts.Currency),
		NewEVIE(opts.Currency),
		NewChargefox(opts.Currency),
		NewAmpol(opts.Currency),
		NewEVCC(opts.Currency, opts.HomeRate),
	}}
}

// Find returns the first parser that recognizes the input, or nil.
func (r *Registry) Find(in Input) Parser {
	for _, p := range r.parsers {
		if p.CanParse(in) {
			return p
		}
	}
	return nil
}

// providerMapping maps sender keywords to provider display names, used when
// no dedicated parser claims an email.
var providerMapping = map[string]string{
	"chargefox":   "Chargefox",
	"evie":        "EVIE Networks",
	"goevie":      "EVIE Networks",
	"bppulse":     "BP Pulse",
	"tesla":       "Tesla",
	"chargepoint": "ChargePoint",
	"nrma":        "NRMA",
	"ampcharge":   "Ampol",
	"ampol":       "Ampol",
	"exploren":    "Exploren",
	"shell":       "Shell Recharge",
	"jetcharge":   "JET Charge",
	"agl":         "AGL",
	"origin":      "Origin Energy",
}

// IdentifyProvider guesses the provider display name from an email sender,
// falling back to the capitalized mail domain.
func IdentifyProvider(sender string) string {
	lower := strings.ToLower(sender)
	for key, name := range providerMapping {
		if strings.Contains(lower, key) {
			return name
		}
	}
	if at := strings.LastIndex(lower, "@"); at >= 0 && at+1 < len(lower) {
		domain := strings.SplitN(lower[at+1:], ".", 2)[0]
		if domain != "" {
			return strings.ToUpper(domain[:1]) + domain[1:]
		}
	}
	return "Unknown"
}
