// Package dates normalizes the date formats found in charging receipts.
// Providers mix ISO dates, Tesla's YYYY/MM/DD invoices, written month names
// and ambiguous numeric dates; the resolution policy here is day-first
// (Australian convention) unless a component value forces the alternative.
package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoDate is returned when no structurally valid date interpretation
// exists in the text. Callers treat it as a parse failure for the whole
// receipt, never as a warning.
var ErrNoDate = errors.New("no parseable date")

var (
	isoRE      = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})(?:[ T](\d{1,2}):(\d{2})(?::\d{2})?)?`)
	teslaRE    = regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`)
	dottedISO  = regexp.MustCompile(`(\d{4})\.(\d{1,2})\.(\d{1,2})`)
	monthDayRE = regexp.MustCompile(`(?i)([A-Za-z]{3,9})\s+(\d{1,2}),?\s+(\d{4})(?:,?\s+(?:at\s+)?(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AP]M)?)?`)
	dayMonthRE = regexp.MustCompile(`(?i)(\d{1,2})\s+([A-Za-z]{3,9}),?\s+(\d{4})`)
	numericRE  = regexp.MustCompile(`(\d{1,2})([/.-])(\d{1,2})[/.-](\d{4})(?:\s+(?:at\s+)?(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AP]M)?)?`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// Parse extracts the first date (with time when present) from free text.
// Pattern priority mirrors what the supported providers emit: ISO first,
// then Tesla's slashed ISO, written month names, and finally ambiguous
// numeric dates resolved by the day-first heuristic.
func Parse(text string) (time.Time, error) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrNoDate)
	}

	if m := isoRE.FindStringSubmatch(text); m != nil {
		if t, ok := buildDate(m[1], m[2], m[3], m[4], m[5], ""); ok {
			return t, nil
		}
	}

	if m := teslaRE.FindStringSubmatch(text); m != nil {
		if t, ok := buildDate(m[1], m[2], m[3], "", "", ""); ok {
			return t, nil
		}
	}

	if m := dottedISO.FindStringSubmatch(text); m != nil {
		if t, ok := buildDate(m[1], m[2], m[3], "", "", ""); ok {
			return t, nil
		}
	}

	if m := monthDayRE.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[strings.ToLower(m[1])]; ok {
			if t, ok := buildNamed(m[3], month, m[2], m[4], m[5], m[7]); ok {
				return t, nil
			}
		}
	}

	if m := dayMonthRE.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[strings.ToLower(m[2])]; ok {
			if t, ok := buildNamed(m[3], month, m[1], "", "", ""); ok {
				return t, nil
			}
		}
	}

	if m := numericRE.FindStringSubmatch(text); m != nil {
		day, month, ok := resolveDayMonth(m[1], m[3])
		if ok {
			if t, ok := buildDate(m[4], strconv.Itoa(month), strconv.Itoa(day), m[5], m[6], m[8]); ok {
				return t, nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("%w in %q", ErrNoDate, snippet(text))
}

// resolveDayMonth applies the day-first policy to an ambiguous a/b pair:
// day-first unless the second component exceeds 12, which forces the
// month-first reading.
func resolveDayMonth(a, b string) (day, month int, ok bool) {
	av, err1 := strconv.Atoi(a)
	bv, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	switch {
	case bv > 12 && av <= 12:
		return bv, av, true // forced month-first
	default:
		return av, bv, true // day-first default
	}
}

func buildNamed(year string, month time.Month, day, hour, minute, ampm string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}
	h, min := parseClock(hour, minute, ampm)
	t := time.Date(y, month, d, h, min, 0, 0, time.Local)
	return t, plausible(t)
}

func buildDate(year, month, day, hour, minute, ampm string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}
	h, min := parseClock(hour, minute, ampm)
	t := time.Date(y, time.Month(m), d, h, min, 0, 0, time.Local)
	if t.Day() != d || t.Month() != time.Month(m) {
		return time.Time{}, false // e.g. 31/02 rolled over
	}
	return t, plausible(t)
}

func parseClock(hour, minute, ampm string) (int, int) {
	if hour == "" {
		return 0, 0
	}
	h, err := strconv.Atoi(hour)
	if err != nil || h > 23 {
		return 0, 0
	}
	min, err := strconv.Atoi(minute)
	if err != nil || min > 59 {
		min = 0
	}
	switch strings.ToUpper(ampm) {
	case "PM":
		if h < 12 {
			h += 12
		}
	case "AM":
		if h == 12 {
			h = 0
		}
	}
	return h, min
}

// plausible rejects interpretations far outside the deployment's lifetime;
// receipts before 2020 or more than a year ahead are misparses.
func plausible(t time.Time) bool {
	return t.Year() >= 2020 && t.Year() <= time.Now().Year()+1
}

func snippet(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
