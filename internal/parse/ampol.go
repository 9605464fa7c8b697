package parse

// NewAmpol builds the parser for Ampol AmpCharge receipt emails.
func NewAmpol(currency string) Parser {
	return &emailParser{
		provider: "Ampol",
		currency: currency,
		senderIndicators: []string{
			"ampcharge.com.au", "ampol.com.au",
		},
		subjectIndicators: []string{
			"tax invoice", "charging receipt", "ev charging", "ampcharge", "receipt",
		},
		patterns: providerPatterns{
			cost: compileAll(
				`\*\*\$([0-9]+\.[0-9]{2})\*\*\s+for\s+EV\s+charging`,
				`Total\s+Cost[:\s]*\*\*\$([0-9]+\.[0-9]{2})\*\*`,
				`Total\s+Cost[:\s]*\$([0-9]+\.[0-9]{2})`,
			),
			energy: compileAll(
				`Energy\s+Delivered[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
			),
			location: compileAll(
				`(Ampol Foodary [A-Za-z\s]+)`,
				`(Pacific Highway \d+-\d+, [A-Za-z\s]+ \d{4})`,
			),
			duration: compileAll(
				`Duration[:\s]*(\d{2}:\d{2}:\d{2})`,
			),
			// Ampol start times are DD/MM/YYYY with a 12-hour clock.
			date: compileAll(
				`Start\s+Time[:\s]*(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}\s*[AP]M)`,
				`(\d{2}/\d{2}/\d{4})`,
			),
		},
	}
}
