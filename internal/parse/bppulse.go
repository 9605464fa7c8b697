package parse

// NewBPPulse builds the parser for BP Pulse receipt emails. BP Pulse wraps
// its figures in markdown-style bold markers, so the cost patterns have to
// match through the asterisks.
func NewBPPulse(currency string) Parser {
	return &emailParser{
		provider: "BP Pulse",
		currency: currency,
		senderIndicators: []string{
			"bppulse.com.au",
		},
		subjectIndicators: []string{
			"charging", "receipt", "session", "invoice",
		},
		patterns: providerPatterns{
			cost: compileAll(
				`\*\*Total\s+Cost\*\*[^\d]*\*\*([0-9]+\.[0-9]{2})\s+AUD\*\*`,
				`\*\*Total\s+Sales\s+Amount\*\*[^\d]*\*\*([0-9]+\.[0-9]{2})\s+AUD\*\*`,
				`Total\s+Cost[:\s]*\*\*([0-9]+\.[0-9]{2})\s+AUD\*\*`,
				`Sale\s+Amount[:\s]*([0-9]+\.[0-9]{2})\s+AUD`,
				`Energy\s+Cost[:\s]*([0-9]+\.[0-9]{2})\s+AUD`,
			),
			energy: compileAll(
				`Total\s+Energy[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
				`Energy\s+Distributed[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
			),
			location: compileAll(
				`Location\s+bp\s+pulse\s+([A-Za-z\s]+)\s+([^\n\r]+Drive[^\n\r,]*,\s*[A-Za-z\s]+,?\s*\d{4})`,
				`Location[:\s]*([^\n\r]*bp\s+pulse[^\n\r]+)`,
			),
			duration: compileAll(
				`Charging\s+Time[:\s]*(\d+m)`,
			),
			date: compileAll(
				`([A-Za-z]{3,9}\s+\d{1,2},\s+\d{4}\s+at\s+\d{1,2}:\d{2}:\d{2}\s*[AP]M)`,
				`Start\s+Time[:\s]*([A-Za-z]{3}\s+\d{1,2},\s+\d{4},\s+\d{1,2}:\d{2}:\d{2}\s*[AP]M)`,
			),
		},
	}
}
