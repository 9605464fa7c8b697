package parse

// NewChargefox builds the parser for Chargefox receipt emails.
func NewChargefox(currency string) Parser {
	return &emailParser{
		provider: "Chargefox",
		currency: currency,
		senderIndicators: []string{
			"chargefox.com",
		},
		subjectIndicators: []string{
			"charging receipt", "payment receipt", "charging session",
			"ev charging", "charge complete", "invoice", "receipt",
		},
		patterns: providerPatterns{
			cost: compileAll(
				`Total\s+Amount\s+including\s+GST[:\s]*\$([0-9]+\.[0-9]{2})`,
				`Payments[:\s]*Amount[:\s]*\$([0-9]+\.[0-9]{2})`,
				`Total\s+Amount[:\s]*\$([0-9]+\.[0-9]{2})`,
				`You\s+paid[:\s]*\$([0-9]+\.[0-9]{2})`,
				`Total[:\s]*\$([0-9]+\.[0-9]{2})\s+AUD`,
			),
			energy: compileAll(
				`Charging\s+for\s+\d+mins?,\s+([0-9]+\.[0-9]+)kWh`,
				`([0-9]+\.[0-9]+)kWh\s+@\s+\$[0-9.]+/kWh`,
				`Energy\s+delivered[:\s]*([0-9]+\.[0-9]+)\s*kWh`,
			),
			location: compileAll(
				`EV\s+charging\s+at\s+([^,\n\r]+,\s*[A-Z]{2,3},?\s*\d{4})\s+on`,
				`charging\s+at\s+([^\n\r]+)\s+on\s+\d{4}`,
			),
			duration: compileAll(
				`Charging\s+for\s+(\d+mins?)`,
			),
			// Chargefox puts an ISO date after the station name.
			date: compileAll(
				`EV\s+charging\s+at[^\n]*on\s+(\d{4}-\d{2}-\d{2})`,
				`Charged\s+on[:\s]*([A-Za-z]{3,9}\s+\d{1,2},\s+\d{4})`,
				`Date[:\s]*(\d{1,2}\s+[A-Za-z]{3,9},\s+\d{4})`,
			),
		},
	}
}
