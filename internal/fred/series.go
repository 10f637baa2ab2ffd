package fred

// SeriesDef describes one FRED series in the catalog.
type SeriesDef struct {
	ID        string
	Name      string
	Category  string
	Frequency string
	Units     string
}

func daily(id, name, category string) SeriesDef {
	return SeriesDef{ID: id, Name: name, Category: category, Frequency: "Daily", Units: "Percent"}
}

// Catalog is every series the agents can use, grouped by category in fetch order.
var Catalog = []SeriesDef{
	// Treasury curve
	daily("DGS1MO", "1-Month Treasury", "yield_curve"),
	daily("DGS3MO", "3-Month Treasury", "yield_curve"),
	daily("DGS6MO", "6-Month Treasury", "yield_curve"),
	daily("DGS1", "1-Year Treasury", "yield_curve"),
	daily("DGS2", "2-Year Treasury", "yield_curve"),
	daily("DGS3", "3-Year Treasury", "yield_curve"),
	daily("DGS5", "5-Year Treasury", "yield_curve"),
	daily("DGS7", "7-Year Treasury", "yield_curve"),
	daily("DGS10", "10-Year Treasury", "yield_curve"),
	daily("DGS20", "20-Year Treasury", "yield_curve"),
	daily("DGS30", "30-Year Treasury", "yield_curve"),

	// Spreads
	daily("T10Y2Y", "10Y-2Y Spread", "spread"),
	daily("T10Y3M", "10Y-3M Spread", "spread"),
	daily("T10YFF", "10Y-FedFunds Spread", "spread"),

	// Corporate credit
	daily("AAA", "Moody's Aaa Corporate Yield", "credit"),
	daily("BAA", "Moody's Baa Corporate Yield", "credit"),
	daily("BAA10Y", "Baa-10Y Credit Spread", "credit"),
	daily("BAMLH0A0HYM2", "ICE BofA HY OAS", "credit"),
	daily("BAMLC0A0CM", "ICE BofA IG OAS", "credit"),

	// Inflation
	daily("DFII5", "5Y TIPS Real Yield", "inflation"),
	daily("DFII10", "10Y TIPS Real Yield", "inflation"),
	daily("DFII30", "30Y TIPS Real Yield", "inflation"),
	daily("T5YIE", "5Y Breakeven Inflation", "inflation"),
	daily("T10YIE", "10Y Breakeven Inflation", "inflation"),
	daily("T5YIFR", "5Y5Y Forward Inflation", "inflation"),
	{ID: "CPIAUCSL", Name: "CPI Urban Consumers", Category: "inflation_hard", Frequency: "Monthly", Units: "Index"},
	{ID: "PCEPI", Name: "PCE Price Index", Category: "inflation_hard", Frequency: "Monthly", Units: "Index"},
	{ID: "PPIFIS", Name: "PPI Final Demand", Category: "inflation_hard", Frequency: "Monthly", Units: "Index"},
	{ID: "CPILFESL", Name: "Core CPI", Category: "inflation_hard", Frequency: "Monthly", Units: "Index"},

	// Fed policy
	daily("FEDFUNDS", "Fed Funds Effective Rate", "fed_policy"),
	daily("DFEDTARU", "Fed Funds Target Upper", "fed_policy"),
	daily("DFEDTARL", "Fed Funds Target Lower", "fed_policy"),

	// Liquidity
	{ID: "M2SL", Name: "M2 Money Supply", Category: "liquidity", Frequency: "Monthly", Units: "Billions USD"},
	{ID: "WALCL", Name: "Fed Total Assets", Category: "liquidity", Frequency: "Weekly", Units: "Millions USD"},
	{ID: "RRPONTSYD", Name: "ON RRP Facility Balance", Category: "liquidity", Frequency: "Daily", Units: "Billions USD"},
	{ID: "WTREGEN", Name: "Treasury General Account", Category: "liquidity", Frequency: "Weekly", Units: "Millions USD"},

	// Dollar and global risk
	{ID: "DTWEXBGS", Name: "Trade-Weighted USD Index (Broad)", Category: "dollar", Frequency: "Daily", Units: "Index"},
	{ID: "VIXCLS", Name: "CBOE VIX", Category: "dollar", Frequency: "Daily", Units: "Index"},
	daily("TEDRATE", "TED Spread", "dollar"),
	{ID: "DEXUSEU", Name: "USD/EUR Exchange Rate", Category: "dollar", Frequency: "Daily", Units: "USD per EUR"},

	// Employment
	{ID: "UNRATE", Name: "Unemployment Rate", Category: "employment", Frequency: "Monthly", Units: "Percent"},
	{ID: "PAYEMS", Name: "Non-Farm Payrolls", Category: "employment", Frequency: "Monthly", Units: "Thousands"},
	{ID: "ICSA", Name: "Initial Jobless Claims", Category: "employment", Frequency: "Weekly", Units: "Number"},
	{ID: "CCSA", Name: "Continued Jobless Claims", Category: "employment", Frequency: "Weekly", Units: "Number"},
	{ID: "MANEMP", Name: "Manufacturing Employment", Category: "employment", Frequency: "Monthly", Units: "Thousands"},

	// Financial stress and equities
	{ID: "STLFSI4", Name: "St. Louis Fed Financial Stress Index", Category: "stress", Frequency: "Weekly", Units: "Index"},
	{ID: "NFCI", Name: "Chicago Fed NFCI", Category: "stress", Frequency: "Weekly", Units: "Index"},
	{ID: "SP500", Name: "S&P 500", Category: "equity", Frequency: "Daily", Units: "Index"},
	{ID: "NASDAQCOM", Name: "NASDAQ Composite", Category: "equity", Frequency: "Daily", Units: "Index"},
}

// AllSeriesIDs returns every catalog ID in order.
func AllSeriesIDs() []string {
	ids := make([]string, len(Catalog))
	for i, s := range Catalog {
		ids[i] = s.ID
	}
	return ids
}

// Lookup finds a catalog entry by ID.
func Lookup(id string) (SeriesDef, bool) {
	for _, s := range Catalog {
		if s.ID == id {
			return s, true
		}
	}
	return SeriesDef{}, false
}
