package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stevelea/ev-charging-extractor/internal/dates"
	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

const rawDataLimit = 2000

// emailParser is the shared extraction flow for providers that send
// text/HTML receipt emails. Provider parsers supply their own pattern
// tables, which are tried before the shared ones; a missing optional field
// degrades to unknown, a missing cost or date fails the parse.
type emailParser struct {
	provider          string
	currency          string
	senderIndicators  []string
	subjectIndicators []string
	patterns          providerPatterns
}

// providerPatterns holds a provider's own compiled regexes, tried ahead of
// the shared tables. Any nil slice falls straight through to the shared
// table.
type providerPatterns struct {
	cost     []*regexp.Regexp
	energy   []*regexp.Regexp
	location []*regexp.Regexp
	duration []*regexp.Regexp
	date     []*regexp.Regexp
}

func (p *emailParser) Provider() string { return p.provider }

func (p *emailParser) CanParse(in Input) bool {
	if in.Source != receipt.SourceEmail {
		return false
	}
	sender := strings.ToLower(in.Sender)
	subject := strings.ToLower(in.Subject)
	return containsAny(sender, p.senderIndicators) && containsAny(subject, p.subjectIndicators)
}

func (p *emailParser) Parse(in Input) ([]receipt.Receipt, error) {
	text := in.Text
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Provider: p.provider, Subject: in.Subject, Field: "text content"}
	}

	cost, ok := p.extractCost(text)
	if !ok {
		return nil, &ParseError{Provider: p.provider, Subject: in.Subject, Field: "cost"}
	}

	date, err := p.extractDate(text)
	if err != nil {
		return nil, fmt.Errorf("%s receipt %q: %w", p.provider, in.Subject, err)
	}

	location, ok := p.extractLocation(text)
	if !ok {
		location = "Unknown"
	}
	energy, _ := p.extractEnergy(text)
	duration, _ := p.extractDuration(text)

	r := receipt.Receipt{
		Provider:        p.provider,
		Date:            date,
		Location:        location,
		Cost:            cost,
		Currency:        p.currency,
		EnergyKWh:       energy,
		SessionDuration: duration,
		EmailSubject:    in.Subject,
		RawData:         truncate(text, rawDataLimit),
	}
	return []receipt.Receipt{r}, nil
}

func (p *emailParser) extractCost(text string) (float64, bool) {
	if v, ok := firstFloat(p.patterns.cost, text, 0); ok {
		return v, true
	}
	return ExtractCost(text)
}

func (p *emailParser) extractEnergy(text string) (float64, bool) {
	if v, ok := firstFloat(p.patterns.energy, text, 200); ok {
		return v, true
	}
	return ExtractEnergy(text)
}

func (p *emailParser) extractLocation(text string) (string, bool) {
	for _, re := range p.patterns.location {
		if m := re.FindStringSubmatch(text); m != nil {
			loc := cleanLocation(m[1:])
			if len(loc) > 5 {
				return loc, true
			}
		}
	}
	return ExtractLocation(text)
}

func (p *emailParser) extractDuration(text string) (string, bool) {
	for _, re := range p.patterns.duration {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return ExtractDuration(text)
}

// extractDate tries the provider's own date patterns (the parser's format
// hint) before the general normalizer.
func (p *emailParser) extractDate(text string) (time.Time, error) {
	for _, re := range p.patterns.date {
		if m := re.FindStringSubmatch(text); m != nil {
			if t, err := dates.Parse(strings.Join(m[1:], " ")); err == nil {
				return t, nil
			}
		}
	}
	return dates.Parse(text)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
