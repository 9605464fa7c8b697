package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SourceType identifies where a receipt was extracted from. It determines
// the home vs public aggregation bucket.
type SourceType string

const (
	SourceEmail    SourceType = "email"
	SourceTeslaPDF SourceType = "tesla_pdf"
	SourceEVCC     SourceType = "evcc"
)

// Home reports whether the source represents home charging.
func (s SourceType) Home() bool {
	return s == SourceEVCC
}

// Receipt is the canonical record of one charging session, normalized from
// a provider email, a Tesla PDF invoice, or an EVCC controller session.
type Receipt struct {
	Provider        string    `json:"provider"`
	Date            time.Time `json:"date"`
	Location        string    `json:"location"`
	Cost            float64   `json:"cost"`
	Currency        string    `json:"currency"`
	EnergyKWh       float64   `json:"energy_kwh,omitempty"` // 0 = not reported
	SessionDuration string    `json:"session_duration,omitempty"`
	EmailSubject    string    `json:"email_subject,omitempty"`
	RawData         string    `json:"raw_data,omitempty"`
	SessionID       string    `json:"session_id,omitempty"` // EVCC controller session identifier
}

// Valid reports whether the receipt passes the persistence gate. It fails
// closed: a missing or unidentified provider, a zero date, an empty location,
// or a cost at or below minimumCost all make the receipt invalid.
func (r Receipt) Valid(minimumCost float64) bool {
	return r.Provider != "" &&
		r.Provider != "Unknown" &&
		!r.Date.IsZero() &&
		r.Location != "" &&
		r.Cost > minimumCost
}

// Fingerprint derives the deduplication key for the receipt. It is a pure
// function of the normalized receipt fields, so re-parsing the same document
// yields the same fingerprint regardless of whitespace or casing in the
// source text. EVCC receipts carrying the controller's own session identifier
// hash that identifier instead, falling back to the field hash when absent.
func (r Receipt) Fingerprint(source SourceType) string {
	if source == SourceEVCC && r.SessionID != "" {
		return shortHash(strings.Join([]string{
			normalize(r.Provider),
			r.SessionID,
			string(source),
		}, "|"))
	}

	parts := []string{
		normalize(r.Provider),
		r.Date.Format("2006-01-02 15:04"),
		normalize(r.Location),
		fmt.Sprintf("%.2f", r.Cost),
		strings.ToUpper(r.Currency),
		string(source),
	}
	if r.EnergyKWh > 0 {
		parts = append(parts, fmt.Sprintf("%.2f", r.EnergyKWh))
	}

	return shortHash(strings.Join(parts, "|"))
}

func (r Receipt) String() string {
	return fmt.Sprintf("%s: $%.2f at %s on %s",
		r.Provider, r.Cost, r.Location, r.Date.Format("2006-01-02"))
}

// ContentHash fingerprints a raw input (email bytes, PDF bytes, session JSON)
// for the processed-input markers.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
