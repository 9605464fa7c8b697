package parse

// NewEVIE builds the parser for EVIE Networks receipt emails.
func NewEVIE(currency string) Parser {
	return &emailParser{
		provider: "EVIE Networks",
		currency: currency,
		senderIndicators: []string{
			"goevie.com.au", "evie.com.au",
		},
		subjectIndicators: []string{
			"receipt", "invoice", "charging session", "tax invoice",
		},
		patterns: providerPatterns{
			cost: compileAll(
				`\*\*([0-9]+\.[0-9]{2})\s+AUD\*\*`,
				`Total\s+Amount[:\s]*\$([0-9]+\.[0-9]{2})`,
				`Amount\s+Due[:\s]*\$([0-9]+\.[0-9]{2})`,
			),
			energy: compileAll(
				`Total\s+Energy[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
				`Energy\s+Consumed[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
				`kWh\s+Delivered[:\s]*([0-9]+\.[0-9]+)`,
			),
			location: compileAll(
				`Location[:\s]*([^\n\r]+Service Centre[^\n\r]*\d+[^\n\r]*,\s*[A-Z]{2,3}\s*\d{4})`,
				`([A-Za-z\s]+Service Centre)[^\n\r]*(\d+\s+[A-Za-z\s]+(?:Drive|Road|Street|Ave|Avenue)[^\n\r,]*,\s*[A-Z]{2,3}\s*\d{4})`,
			),
			duration: compileAll(
				`Charging\s+Time[:\s]*(\d+m)`,
				`Session\s+Duration[:\s]*(\d+:\d+)`,
			),
			date: compileAll(
				`([A-Za-z]{3,9}\s+\d{1,2},\s+\d{4}\s+at\s+\d{1,2}:\d{2}:\d{2}\s*[AP]M)`,
			),
		},
	}
}
