package parse

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

// evccParser turns EVCC controller session objects into home-charging
// receipts. The input is structured JSON, so there is no text extraction;
// the one computation is the session cost, taken from the controller's
// reported price when present and otherwise derived from the configured
// home electricity rate.
type evccParser struct {
	currency string
	homeRate float64
}

// NewEVCC builds the home-charging session parser.
func NewEVCC(currency string, homeRate float64) Parser {
	return &evccParser{currency: currency, homeRate: homeRate}
}

type evccSession struct {
	ID              json.Number `json:"id"`
	ChargedEnergy   float64     `json:"chargedEnergy"`
	Price           *float64    `json:"price"`
	PricePerKWh     *float64    `json:"pricePerKWh"`
	SolarPercentage *float64    `json:"solarPercentage"`
	Created         string      `json:"created"`
	Finished        string      `json:"finished"`
	ChargeDuration  int64       `json:"chargeDuration"` // nanoseconds
	Loadpoint       string      `json:"loadpoint"`
	Vehicle         string      `json:"vehicle"`
}

func (p *evccParser) Provider() string { return "EVCC (Home)" }

func (p *evccParser) CanParse(in Input) bool {
	return in.Source == receipt.SourceEVCC && len(in.SessionJSON) > 0
}

func (p *evccParser) Parse(in Input) ([]receipt.Receipt, error) {
	var s evccSession
	if err := json.Unmarshal(in.SessionJSON, &s); err != nil {
		return nil, fmt.Errorf("decoding evcc session: %w", err)
	}

	if s.ChargedEnergy <= 0 {
		return nil, &ParseError{Provider: p.Provider(), Subject: "session #" + s.ID.String(), Field: "charged energy"}
	}

	cost := s.ChargedEnergy * p.homeRate
	if s.Price != nil {
		cost = *s.Price
	}

	date, ok := p.sessionTime(s)
	if !ok {
		return nil, &ParseError{Provider: p.Provider(), Subject: "session #" + s.ID.String(), Field: "timestamp"}
	}

	location := "Home Charging"
	if s.Loadpoint != "" {
		location += fmt.Sprintf(" (%s)", s.Loadpoint)
	}
	if s.Vehicle != "" {
		location += fmt.Sprintf(" - %s", s.Vehicle)
	}

	subject := fmt.Sprintf("EVCC Home Charging Session #%s", s.ID.String())
	if s.SolarPercentage != nil {
		subject += fmt.Sprintf(" (Solar: %.1f%%)", *s.SolarPercentage)
	}
	if s.PricePerKWh != nil {
		subject += fmt.Sprintf(" @$%.4f/kWh", *s.PricePerKWh)
	}

	r := receipt.Receipt{
		Provider:        p.Provider(),
		Date:            date,
		Location:        location,
		Cost:            cost,
		Currency:        p.currency,
		EnergyKWh:       s.ChargedEnergy,
		SessionDuration: formatDuration(s.ChargeDuration),
		EmailSubject:    subject,
		RawData:         truncate(string(in.SessionJSON), 1000),
		SessionID:       s.ID.String(),
	}
	return []receipt.Receipt{r}, nil
}

// sessionTime prefers the finish timestamp over the start; both are RFC 3339
// from the controller.
func (p *evccParser) sessionTime(s evccSession) (time.Time, bool) {
	for _, raw := range []string{s.Finished, s.Created} {
		if raw == "" {
			continue
		}
		// evcc reports the zero time for sessions still in progress
		if t, err := time.Parse(time.RFC3339, raw); err == nil && t.Year() > 1 {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatDuration(ns int64) string {
	if ns <= 0 {
		return ""
	}
	d := time.Duration(ns)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
