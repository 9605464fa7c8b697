package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// Shared extraction tables, ordered most specific to most generic. Provider
// parsers try their own tables first and fall back to these. Numeric
// extraction tolerates currency symbols, markdown bold markers and units
// embedded in the same token as the number.

var costPatterns = compileAll(
	// BP Pulse styles its totals in markdown bold with an AUD suffix.
	`\*\*Total\s+Cost\*\*[^\d]*\*\*([0-9]+\.[0-9]{2})\s+AUD\*\*`,
	`\*\*Total\s+Sales\s+Amount\*\*[^\d]*\*\*([0-9]+\.[0-9]{2})\s+AUD\*\*`,
	`Sale\s+Amount[:\s]*([0-9]+\.[0-9]{2})\s+AUD`,
	`Energy\s+Cost[:\s]*([0-9]+\.[0-9]{2})\s+AUD`,
	`\*\*([0-9]+\.[0-9]{2})\s+AUD\*\*`,
	`\*\*\$([0-9]+\.[0-9]{2})\*\*\s+for\s+EV\s+charging`,
	`Total\s+Amount\s+including\s+GST[:\s]*\$([0-9]+\.[0-9]{2})`,
	`Total\s+Amount[:\s]*\$([0-9]+\.[0-9]{2})`,
	`Amount\s+Due[:\s]*\$([0-9]+\.[0-9]{2})`,
	`Amount\s+Charged[:\s]*\$([0-9]+\.[0-9]{2})`,
	`Session\s+Cost[:\s]*\$([0-9]+\.[0-9]{2})`,
	`Charging\s+Cost[:\s]*\$([0-9]+\.[0-9]{2})`,
	`You\s+paid[:\s]*\$([0-9]+\.[0-9]{2})`,
	`Supercharging[:\s]*\$([0-9]+\.[0-9]{2})`,
	`Invoice\s+Total[:\s]*\$([0-9]+\.[0-9]{2})`,
	`Total[:\s]*\$([0-9]+\.[0-9]{2})`,
	`Amount[:\s]*\$([0-9]+\.[0-9]{2})`,
	`([0-9]+\.[0-9]{2})\s*AUD`,
	`AUD\s*\$?([0-9]+\.[0-9]{2})`,
	`\$([0-9]+\.[0-9]{2})`,
)

var energyPatterns = compileAll(
	`Total\s+Energy[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
	`Energy\s+Distributed[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
	`Energy\s+Consumed[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
	`Energy\s+Delivered[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
	`kWh\s+Delivered[:\s]*([0-9]+\.[0-9]+)`,
	`Charging\s+for\s+\d+mins?,\s+([0-9]+\.[0-9]+)kWh`,
	`([0-9]+\.[0-9]+)kWh\s+@\s+\$[0-9.]+/kWh`,
	`([0-9]+\.[0-9]+)\s*kWh\s+(?:delivered|charged)`,
	`Charged[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
	`Session\s+energy[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
	`(\d+\.\d+)\s*kWh`,
	`(\d+)\s*kWh`,
	`kWh[:\s]*([0-9]+\.[0-9]+)`,
)

var locationPatterns = compileAll(
	`Location\s+bp\s+pulse\s+([A-Za-z\s]+)\s+([^\n\r]+Drive[^\n\r,]*,\s*[A-Za-z\s]+,?\s*\d{4})`,
	`Location[:\s]*([^\n\r]+Service Centre[^\n\r]*\d+[^\n\r]*,\s*[A-Z]{2,3}\s*\d{4})`,
	`(Ampol Foodary [A-Za-z\s]+)`,
	`EV\s+charging\s+at\s+([^,\n\r]+,\s*[A-Z]{2,3},?\s*\d{4})\s+on`,
	`charging\s+at\s+([^\n\r]+)\s+on\s+\d{4}`,
	`Location[:\s]*([^\n\r]+)`,
	`Site[:\s]*([^\n\r]+)`,
	`Station[:\s]*([^\n\r]+)`,
	`Address[:\s]*([^\n\r]+)`,
	`Charging\s+station[:\s]*([^\n\r]+)`,
	`(\d+[\-0-9]*\s+[A-Za-z\s]+(?:Street|St|Road|Rd|Avenue|Ave|Drive|Dr|Highway|Hwy|Lane|Ln)[^\n\r,]*,\s*[A-Za-z\s]+,?\s*[A-Z]{2,3}\s*\d{4})`,
	`([A-Za-z\s]+,\s*[A-Z]{2,3}\s*\d{4})`,
)

var durationPatterns = compileAll(
	`Charging\s+Time[:\s]*(\d+m)`,
	`Charging\s+for\s+(\d+mins?)`,
	`Session\s+[Dd]uration[:\s]*(\d+:\d+(?::\d+)?)`,
	`Duration[:\s]*(\d{2}:\d{2}:\d{2})`,
	`Duration[:\s]*(\d+:\d+(?::\d+)?)`,
	`Duration[:\s]*(\d+\s+minutes?)`,
	`Charged\s+for[:\s]*(\d+)\s*minutes?`,
	`(\d+)\s*hours?\s*(\d+)\s*minutes?`,
	`(\d+)h\s*(\d+)m`,
	`(\d+)\s*minutes?`,
	`(\d+m)(?:\s*\d+s)?`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		res = append(res, regexp.MustCompile(`(?i)`+e))
	}
	return res
}

// firstFloat returns the first capture of the first matching pattern that
// parses as a positive number within (0, max); max <= 0 means unbounded.
func firstFloat(patterns []*regexp.Regexp, text string, max float64) (float64, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v <= 0 {
			continue
		}
		if max > 0 && v >= max {
			continue
		}
		return v, true
	}
	return 0, false
}

// ExtractCost pulls a session cost out of receipt text.
func ExtractCost(text string) (float64, bool) {
	return firstFloat(costPatterns, text, 0)
}

// ExtractEnergy pulls a kWh figure out of receipt text. Values outside
// (0, 200) are treated as misreads of other numbers on the receipt.
func ExtractEnergy(text string) (float64, bool) {
	return firstFloat(energyPatterns, text, 200)
}

// ExtractLocation pulls a site description out of receipt text, joining
// multi-group matches and normalizing whitespace. Matches shorter than six
// characters are discarded as noise.
func ExtractLocation(text string) (string, bool) {
	for _, re := range locationPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		loc := cleanLocation(m[1:])
		if len(loc) > 5 {
			return loc, true
		}
	}
	return "", false
}

// ExtractDuration pulls a session duration string out of receipt text.
func ExtractDuration(text string) (string, bool) {
	for _, re := range durationPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 2 && m[2] != "" {
			return m[1] + "h " + m[2] + "m", true
		}
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

func cleanLocation(groups []string) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g != "" {
			parts = append(parts, g)
		}
	}
	loc := strings.Join(parts, " ")
	loc = strings.NewReplacer("\n", " ", "\r", " ").Replace(loc)
	loc = strings.Join(strings.Fields(loc), " ")
	if len(loc) > 200 {
		loc = loc[:200]
	}
	return loc
}
