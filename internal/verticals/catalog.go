// Package verticals serves per-sector macro dashboards. Each vertical names its own FRED series,
// KPIs and charts, and is analyzed with its own lifecycle-managed system prompt.
package verticals

import (
	"fmt"

	"github.com/rewired-gh/macrooracle/internal/fred"
)

// PrimaryID is the vertical backed by the agent loop.
const PrimaryID = "defi_crypto"

// SeriesDef is one FRED series a vertical charts.
type SeriesDef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Frequency string `json:"freq"`
	Units     string `json:"units"`
}

// KPI is a headline tile. Format is a d3-style number format for the dashboard.
type KPI struct {
	SeriesID string `json:"series_id"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	Format   string `json:"format"`
	Suffix   string `json:"suffix"`
}

// Chart groups series into one dashboard panel.
type Chart struct {
	ID             string            `json:"chart_id"`
	Title          string            `json:"title"`
	Series         []string          `json:"series"`
	Type           string            `json:"chart_type"`
	Color          string            `json:"color"`
	ReferenceLines map[string]string `json:"reference_lines,omitempty"`
}

// Vertical is one sector dashboard.
type Vertical struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Icon           string      `json:"icon"`
	Color          string      `json:"color"`
	Primary        bool        `json:"is_primary"`
	Description    string      `json:"description"`
	Tagline        string      `json:"tagline"`
	Customers      []string    `json:"customers"`
	Series         []SeriesDef `json:"series"`
	KPIs           []KPI       `json:"kpis"`
	Charts         []Chart     `json:"charts"`
	PromptTemplate string      `json:"-"`
}

// Summary is the tab-bar view of a vertical.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Primary     bool   `json:"is_primary"`
	Description string `json:"description"`
	SeriesCount int    `json:"series_count"`
	ChartCount  int    `json:"chart_count"`
}

// Detail is the full dashboard configuration of a vertical.
type Detail struct {
	Vertical
	SeriesCount int `json:"series_count"`
}

// SeriesIDs returns the vertical's series in catalog order. The primary vertical uses the
// agent loop's series.
func (v *Vertical) SeriesIDs() []string {
	if v.Primary {
		return fred.AllSeriesIDs()
	}
	ids := make([]string, len(v.Series))
	for i, s := range v.Series {
		ids[i] = s.ID
	}
	return ids
}

// SeriesCount is the number of series behind the vertical.
func (v *Vertical) SeriesCount() int {
	if v.Primary {
		return len(fred.Catalog)
	}
	return len(v.Series)
}

// Lookup finds a series definition by ID.
func (v *Vertical) Lookup(id string) (SeriesDef, bool) {
	for _, s := range v.Series {
		if s.ID == id {
			return s, true
		}
	}
	return SeriesDef{}, false
}

// Template returns the vertical's base system prompt.
func (v *Vertical) Template() string {
	if v.PromptTemplate != "" {
		return v.PromptTemplate
	}
	return fmt.Sprintf("You are a %s analyst. Analyze the data. Respond in JSON.", v.Name)
}

// Summary returns the tab-bar view.
func (v *Vertical) Summary() Summary {
	return Summary{
		ID:          v.ID,
		Name:        v.Name,
		Icon:        v.Icon,
		Color:       v.Color,
		Primary:     v.Primary,
		Description: v.Description,
		SeriesCount: v.SeriesCount(),
		ChartCount:  len(v.Charts),
	}
}

// Detail returns the full dashboard configuration.
func (v *Vertical) Detail() Detail {
	return Detail{Vertical: *v, SeriesCount: v.SeriesCount()}
}

// Get returns the vertical with id.
func Get(id string) (*Vertical, bool) {
	for i := range Catalog {
		if Catalog[i].ID == id {
			return &Catalog[i], true
		}
	}
	return nil, false
}

// List returns the tab-bar view of every vertical in catalog order.
func List() []Summary {
	out := make([]Summary, len(Catalog))
	for i := range Catalog {
		out[i] = Catalog[i].Summary()
	}
	return out
}

// LookupSeries finds a series in any non-primary vertical.
func LookupSeries(id string) (SeriesDef, bool) {
	for i := range Catalog {
		if s, ok := Catalog[i].Lookup(id); ok {
			return s, true
		}
	}
	return SeriesDef{}, false
}

func series(id, name, freq, units string) SeriesDef {
	return SeriesDef{ID: id, Name: name, Frequency: freq, Units: units}
}

func kpi(seriesID, label, color, format, suffix string) KPI {
	return KPI{SeriesID: seriesID, Label: label, Color: color, Format: format, Suffix: suffix}
}

func chart(id, title, typ, color string, ids []string, refs map[string]string) Chart {
	return Chart{ID: id, Title: title, Series: ids, Type: typ, Color: color, ReferenceLines: refs}
}

// Catalog is every vertical in tab order. The first entry is the primary one.
var Catalog = []Vertical{
	{
		ID:          PrimaryID,
		Name:        "DeFi & Crypto",
		Icon:        "⚡",
		Color:       "#06b6d4",
		Primary:     true,
		Description: "Macro to DeFi transmission: M2 to BTC correlation, MEV liquidation triggers, yield farming risk",
		Tagline:     "8 Agents · FRED Series · Macro to Crypto Transmission Channels",
		Customers:   []string{"Crypto funds", "DeFi protocols", "MEV researchers", "Institutional OTC desks"},
		Series:      []SeriesDef{},
		KPIs:        []KPI{},
		Charts:      []Chart{},
	},
	{
		ID:          "county_fiscal",
		Name:        "County GDP & Fiscal",
		Icon:        "🏛️",
		Color:       "#8b5cf6",
		Description: "County-level GDP, government expenditure, fiscal health, property tax trends",
		Tagline:     "Municipal Fiscal Intelligence · State & County Economics",
		Customers:   []string{"Municipal bond analysts", "State treasurers", "Local government planners", "Rating agencies"},
		Series: []SeriesDef{
			series("GDP", "US GDP", "Quarterly", "Billions USD"),
			series("A191RL1Q225SBEA", "Real GDP Growth (QoQ Annualized)", "Quarterly", "Percent"),
			series("GFDEBTN", "Federal Debt Total", "Quarterly", "Millions USD"),
			series("FYFSD", "Federal Surplus/Deficit", "Annual", "Millions USD"),
			series("SLEXPND", "State & Local Gov Expenditure", "Quarterly", "Billions USD"),
			series("FGEXPND", "Federal Gov Expenditure", "Quarterly", "Billions USD"),
			series("W006RC1Q027SBEA", "Gov Investment (Gross)", "Quarterly", "Billions USD"),
			series("A822RL1Q225SBEA", "State & Local Gov Spending (Real)", "Quarterly", "Percent"),
			series("B094RC1Q027SBEA", "Personal Tax Revenue", "Quarterly", "Billions USD"),
			series("FGRECPT", "Federal Gov Receipts", "Quarterly", "Billions USD"),
			series("W068RCQ027SBEA", "Gov Social Benefits", "Quarterly", "Billions USD"),
		},
		KPIs: []KPI{
			kpi("A191RL1Q225SBEA", "GDP Growth", "#8b5cf6", ".1f", "%"),
			kpi("GFDEBTN", "Federal Debt", "#ef4444", ",.0f", "M"),
			kpi("SLEXPND", "State/Local Spend", "#f59e0b", ",.0f", "B"),
			kpi("FGRECPT", "Fed Receipts", "#22c55e", ",.0f", "B"),
			kpi("FYFSD", "Surplus/Deficit", "#f87171", ",.0f", "M"),
		},
		Charts: []Chart{
			chart("gdp_growth", "Real GDP Growth (QoQ Annualized)", "area", "#8b5cf6", []string{"A191RL1Q225SBEA"},
				map[string]string{"0": "Zero Growth", "2": "Trend (2%)", "-2": "Contraction"}),
			chart("federal_debt", "Federal Debt Outstanding", "area", "#ef4444", []string{"GFDEBTN"}, nil),
			chart("gov_spending", "Government Expenditure: Federal vs State/Local", "line", "#f59e0b", []string{"FGEXPND", "SLEXPND"}, nil),
			chart("fiscal_balance", "Federal Receipts vs Expenditure", "line", "#22c55e", []string{"FGRECPT", "FGEXPND"}, nil),
			chart("tax_revenue", "Personal Tax Revenue", "area", "#60a5fa", []string{"B094RC1Q027SBEA"}, nil),
			chart("social_benefits", "Government Social Benefits Spending", "area", "#ec4899", []string{"W068RCQ027SBEA"}, nil),
		},
		PromptTemplate: "You are a municipal fiscal analyst. Analyze GDP growth, federal debt trajectory, spending vs revenue, " +
			"state/local fiscal health. Focus on fiscal sustainability, debt/GDP trend, tax base health, social obligations " +
			"growth and recession vulnerability. Respond in JSON: market_regime, regime_label, dominant_signal, confidence, " +
			"headline, narrative, key_risks, regime_triggers.",
	},
	{
		ID:          "housing",
		Name:        "Housing & Real Estate",
		Icon:        "🏠",
		Color:       "#f59e0b",
		Description: "Home prices, mortgage rates, housing starts, inventory: bubble detection and market health",
		Tagline:     "Case-Shiller · Mortgage Rates · Supply/Demand · Affordability",
		Customers:   []string{"REITs", "Mortgage lenders", "Real estate funds", "Home builders", "Insurance cos"},
		Series: []SeriesDef{
			series("CSUSHPISA", "Case-Shiller US Home Price Index", "Monthly", "Index"),
			series("MORTGAGE30US", "30-Year Fixed Mortgage Rate", "Weekly", "Percent"),
			series("MORTGAGE15US", "15-Year Fixed Mortgage Rate", "Weekly", "Percent"),
			series("HOUST", "Housing Starts", "Monthly", "Thousands"),
			series("PERMIT", "Building Permits", "Monthly", "Thousands"),
			series("MSACSR", "Monthly Supply of New Houses", "Monthly", "Months"),
			series("EXHOSLUSM495S", "Existing Home Sales", "Monthly", "Millions"),
			series("MSPUS", "Median Home Sale Price", "Quarterly", "USD"),
			series("RRVRUSQ156N", "Rental Vacancy Rate", "Quarterly", "Percent"),
			series("MDSP", "Household Debt Service Ratio", "Quarterly", "Percent"),
		},
		KPIs: []KPI{
			kpi("MORTGAGE30US", "30Y Mortgage", "#ef4444", ".2f", "%"),
			kpi("CSUSHPISA", "Case-Shiller", "#f59e0b", ".1f", ""),
			kpi("HOUST", "Housing Starts", "#22c55e", ",.0f", "K"),
			kpi("MSACSR", "Months Supply", "#60a5fa", ".1f", " mo"),
			kpi("MSPUS", "Median Price", "#8b5cf6", ",.0f", ""),
		},
		Charts: []Chart{
			chart("mortgage_rates", "Mortgage Rates (30Y & 15Y)", "line", "#ef4444", []string{"MORTGAGE30US", "MORTGAGE15US"},
				map[string]string{"7": "Affordability Stress", "5": "Normal"}),
			chart("home_prices", "Case-Shiller US Home Price Index", "area", "#f59e0b", []string{"CSUSHPISA"}, nil),
			chart("supply_demand", "Housing Starts vs Building Permits", "line", "#22c55e", []string{"HOUST", "PERMIT"}, nil),
			chart("inventory", "Months Supply of New Houses", "area", "#60a5fa", []string{"MSACSR"},
				map[string]string{"6": "Balanced", "4": "Tight Supply"}),
			chart("sales_volume", "Existing Home Sales", "area", "#8b5cf6", []string{"EXHOSLUSM495S"}, nil),
			chart("debt_service", "Household Debt Service Ratio", "line", "#ec4899", []string{"MDSP"},
				map[string]string{"13": "Pre-2008 Stress"}),
		},
		PromptTemplate: "You are a housing market strategist. Analyze mortgage rates, home prices, supply/demand, affordability. " +
			"Mortgage >7% = freeze. Months supply >6 = buyer's market, <4 = bubble risk. Starts declining 3+ months = " +
			"recession lead (6-9mo). Debt service >13% = pre-2008 stress. Respond in JSON: market_regime, headline, " +
			"narrative, key_risks, regime_triggers.",
	},
	{
		ID:          "small_business",
		Name:        "Small Business & Main Street",
		Icon:        "🏪",
		Color:       "#22c55e",
		Description: "NFIB optimism, consumer credit, retail sales, savings rate: Main Street economic health",
		Tagline:     "NFIB Optimism · Consumer Credit · Retail Sales · Lending",
		Customers:   []string{"SBA", "Chambers of commerce", "Fintech lenders", "Community banks"},
		Series: []SeriesDef{
			series("RSAFS", "Retail Sales (Total)", "Monthly", "Millions USD"),
			series("TOTALSL", "Total Consumer Credit", "Monthly", "Billions USD"),
			series("REVOLSL", "Revolving Credit (Credit Cards)", "Monthly", "Billions USD"),
			series("UMCSENT", "UMich Consumer Sentiment", "Monthly", "Index"),
			series("PCE", "Personal Consumption Expenditure", "Monthly", "Billions USD"),
			series("PSAVERT", "Personal Savings Rate", "Monthly", "Percent"),
			series("DRCCLACBS", "Credit Card Delinquency Rate", "Quarterly", "Percent"),
			series("BUSLOANS", "Commercial & Industrial Loans", "Monthly", "Billions USD"),
			series("AWHNONAG", "Avg Weekly Hours (All Private)", "Monthly", "Hours"),
			series("INDPRO", "Industrial Production Index", "Monthly", "Index"),
		},
		KPIs: []KPI{
			kpi("UMCSENT", "Consumer Sent.", "#22c55e", ".1f", ""),
			kpi("PSAVERT", "Savings Rate", "#f59e0b", ".1f", "%"),
			kpi("RSAFS", "Retail Sales", "#8b5cf6", ",.0f", "M"),
			kpi("DRCCLACBS", "CC Delinquency", "#ef4444", ".2f", "%"),
			kpi("BUSLOANS", "C&I Loans", "#60a5fa", ",.0f", "B"),
		},
		Charts: []Chart{
			chart("consumer_sentiment", "UMich Consumer Sentiment", "area", "#22c55e", []string{"UMCSENT"},
				map[string]string{"80": "Neutral", "60": "Recession Level"}),
			chart("retail_sales", "Total Retail Sales", "area", "#8b5cf6", []string{"RSAFS"}, nil),
			chart("consumer_credit", "Consumer Credit: Total vs Revolving", "line", "#f59e0b", []string{"TOTALSL", "REVOLSL"}, nil),
			chart("savings_rate", "Personal Savings Rate", "area", "#14b8a6", []string{"PSAVERT"},
				map[string]string{"8": "Healthy", "3": "Stress"}),
			chart("business_loans", "Commercial & Industrial Loans", "area", "#ec4899", []string{"BUSLOANS"}, nil),
			chart("industrial_prod", "Industrial Production Index", "line", "#60a5fa", []string{"INDPRO"}, nil),
		},
		PromptTemplate: "You are a Main Street economist writing for small business owners. Savings <3% = stress. " +
			"CC delinquency rising with savings falling = consumer stress. Retail sales declining 2+ months = demand " +
			"destruction. Weekly hours declining = leading layoff indicator. Write for a restaurant owner, not Wall Street. " +
			"Respond in JSON: market_regime, headline, narrative, key_risks, regime_triggers.",
	},
	{
		ID:          "inflation_impact",
		Name:        "Inflation & Consumer Impact",
		Icon:        "💰",
		Color:       "#ef4444",
		Description: "CPI components breakdown: food, shelter, energy, medical. Who is actually hurting?",
		Tagline:     "CPI Components · Real Wages · Purchasing Power · Inequality",
		Customers:   []string{"Policy think tanks", "Congressional offices", "Nonprofits", "Media"},
		Series: []SeriesDef{
			series("CPIAUCSL", "CPI All Urban Consumers", "Monthly", "Index"),
			series("CPIFABSL", "CPI Food at Home", "Monthly", "Index"),
			series("CPIENGSL", "CPI Energy", "Monthly", "Index"),
			series("CUSR0000SAH1", "CPI Shelter", "Monthly", "Index"),
			series("CUSR0000SAM2", "CPI Medical Care Services", "Monthly", "Index"),
			series("CUUR0000SETB01", "CPI Gasoline", "Monthly", "Index"),
			series("CES0500000003", "Avg Hourly Earnings (All Private)", "Monthly", "USD"),
			series("LES1252881600Q", "Median Weekly Earnings", "Quarterly", "USD"),
			series("DSPIC96", "Real Disposable Personal Income", "Monthly", "Billions USD"),
			series("CPALTT01USM657N", "CPI Total (YoY Change)", "Monthly", "Percent"),
		},
		KPIs: []KPI{
			kpi("CPALTT01USM657N", "CPI YoY", "#ef4444", ".1f", "%"),
			kpi("CES0500000003", "Avg Hourly Wage", "#22c55e", ".2f", ""),
			kpi("CPIFABSL", "Food CPI", "#f59e0b", ".1f", ""),
			kpi("CUSR0000SAH1", "Shelter CPI", "#8b5cf6", ".1f", ""),
			kpi("CPIENGSL", "Energy CPI", "#06b6d4", ".1f", ""),
		},
		Charts: []Chart{
			chart("headline_cpi", "CPI Year-over-Year Change", "area", "#ef4444", []string{"CPALTT01USM657N"},
				map[string]string{"2": "Fed Target", "5": "High", "8": "Crisis"}),
			chart("cpi_components", "CPI: Food vs Shelter vs Energy", "line", "#f59e0b", []string{"CPIFABSL", "CUSR0000SAH1", "CPIENGSL"}, nil),
			chart("food_gasoline", "Food vs Gasoline (Essentials Squeeze)", "line", "#ec4899", []string{"CPIFABSL", "CUUR0000SETB01"}, nil),
			chart("real_wages", "Average Hourly Earnings", "area", "#22c55e", []string{"CES0500000003"}, nil),
			chart("real_income", "Real Disposable Personal Income", "area", "#60a5fa", []string{"DSPIC96"}, nil),
			chart("medical", "Medical Care Services CPI", "area", "#8b5cf6", []string{"CUSR0000SAM2"}, nil),
		},
		PromptTemplate: "You are a social economist explaining inflation's real impact by income group. Low-income households " +
			"spend 35% on food and energy vs 15% for high-income. Shelter hits renters (40% of Americans). Use dollar amounts " +
			"not just percentages. Who is hurting most? Are wages keeping up? What should Congress worry about? " +
			"Respond in JSON: market_regime, headline, narrative, key_risks, regime_triggers.",
	},
	{
		ID:          "agriculture",
		Name:        "Agriculture & Commodities",
		Icon:        "🌾",
		Color:       "#84cc16",
		Description: "Commodity prices, farm PPI, trade balance, supply chain: rural economic health",
		Tagline:     "Commodity Prices · Farm Income · Export Markets · Supply Chain",
		Customers:   []string{"Ag lenders", "Commodity traders", "USDA contractors", "Farm bureaus"},
		Series: []SeriesDef{
			series("DCOILWTICO", "WTI Crude Oil Price", "Daily", "USD/Barrel"),
			series("GOLDAMGBD228NLBM", "Gold Price (London Fix)", "Daily", "USD/Troy Oz"),
			series("GASREGW", "Regular Gas Price", "Weekly", "USD/Gallon"),
			series("WPU0223", "PPI Farm Products", "Monthly", "Index"),
			series("PPIACO", "PPI All Commodities", "Monthly", "Index"),
			series("BOPGSTB", "Trade Balance", "Monthly", "Millions USD"),
			series("IQ", "Imports of Goods", "Monthly", "Billions USD"),
			series("IEABC", "Exports of Goods", "Monthly", "Billions USD"),
			series("PCOPPUSDM", "Copper Price", "Monthly", "USD/Metric Ton"),
			series("DTWEXBGS", "USD Index (Broad)", "Daily", "Index"),
		},
		KPIs: []KPI{
			kpi("DCOILWTICO", "WTI Crude", "#84cc16", ".2f", ""),
			kpi("GOLDAMGBD228NLBM", "Gold", "#f59e0b", ",.0f", ""),
			kpi("GASREGW", "Gas Price", "#ef4444", ".2f", "/gal"),
			kpi("BOPGSTB", "Trade Balance", "#60a5fa", ",.0f", "M"),
			kpi("PCOPPUSDM", "Copper", "#ec4899", ",.0f", ""),
		},
		Charts: []Chart{
			chart("oil", "WTI Crude Oil Price", "area", "#84cc16", []string{"DCOILWTICO"},
				map[string]string{"80": "Budget Breakeven", "100": "Inflation Pressure"}),
			chart("gold", "Gold Price (USD/Troy Oz)", "area", "#f59e0b", []string{"GOLDAMGBD228NLBM"}, nil),
			chart("farm_ppi", "PPI: Farm Products vs All Commodities", "line", "#22c55e", []string{"WPU0223", "PPIACO"}, nil),
			chart("trade", "US Trade Balance", "area", "#ef4444", []string{"BOPGSTB"}, map[string]string{"0": "Balanced"}),
			chart("imports_exports", "Imports vs Exports", "line", "#60a5fa", []string{"IQ", "IEABC"}, nil),
			chart("copper", "Copper (Growth Proxy)", "area", "#ec4899", []string{"PCOPPUSDM"}, nil),
		},
		PromptTemplate: "You are an agricultural economist. Oil >$100 = farm input cost pressure. Gold surging = macro fear. " +
			"Copper rising = global growth. Farm PPI diverging from headline = margin compression. Gas >$4/gal = rural " +
			"stress. Trade deficit widening = dollar weakness = commodity price rise. Respond in JSON: market_regime, " +
			"headline, narrative, key_risks, regime_triggers.",
	},
	{
		ID:          "trade_supply",
		Name:        "Trade & Supply Chain",
		Icon:        "🚢",
		Color:       "#0ea5e9",
		Description: "Trade balance, manufacturing, capacity utilization, new orders: supply chain intelligence",
		Tagline:     "Global Trade · Manufacturing · Capacity · Orders Pipeline",
		Customers:   []string{"Supply chain teams", "Trade policy analysts", "Logistics cos", "Importers/exporters"},
		Series: []SeriesDef{
			series("BOPGSTB", "Trade Balance (G&S)", "Monthly", "Millions USD"),
			series("BOPGTB", "Trade Balance (Goods)", "Monthly", "Millions USD"),
			series("IMPGS", "Imports of G&S", "Quarterly", "Billions USD"),
			series("EXPGS", "Exports of G&S", "Quarterly", "Billions USD"),
			series("MANEMP", "Manufacturing Employment", "Monthly", "Thousands"),
			series("IPMAN", "Industrial Production (Mfg)", "Monthly", "Index"),
			series("TCU", "Capacity Utilization", "Monthly", "Percent"),
			series("NEWORDER", "Manufacturers New Orders", "Monthly", "Millions USD"),
			series("AMTMNO", "Manufacturers Total Orders", "Monthly", "Millions USD"),
			series("DTWEXBGS", "Trade-Weighted USD", "Daily", "Index"),
		},
		KPIs: []KPI{
			kpi("BOPGSTB", "Trade Balance", "#0ea5e9", ",.0f", "M"),
			kpi("IPMAN", "Mfg Production", "#22c55e", ".1f", ""),
			kpi("TCU", "Capacity Util.", "#f59e0b", ".1f", "%"),
			kpi("MANEMP", "Mfg Jobs", "#8b5cf6", ",.0f", "K"),
			kpi("DTWEXBGS", "USD Index", "#ef4444", ".1f", ""),
		},
		Charts: []Chart{
			chart("trade_bal", "US Trade Balance (G&S)", "area", "#0ea5e9", []string{"BOPGSTB"}, map[string]string{"0": "Balanced"}),
			chart("imp_exp", "Imports vs Exports (Quarterly)", "line", "#22c55e", []string{"IMPGS", "EXPGS"}, nil),
			chart("mfg", "Industrial Production (Manufacturing)", "area", "#f59e0b", []string{"IPMAN"}, nil),
			chart("capacity", "Capacity Utilization", "line", "#8b5cf6", []string{"TCU"},
				map[string]string{"80": "High", "75": "Normal", "70": "Slack"}),
			chart("orders", "Manufacturers New Orders", "area", "#ec4899", []string{"NEWORDER"}, nil),
			chart("usd", "Trade-Weighted USD", "line", "#ef4444", []string{"DTWEXBGS"}, nil),
		},
		PromptTemplate: "You are a trade and supply chain analyst. Strong USD = exports suffer but imports cheaper. " +
			"Capacity >80% = supply constraint = inflation. New orders declining 3+ months = mfg recession. Trade deficit " +
			"widening = USD weakness = imported inflation. Respond in JSON: market_regime, headline, narrative, key_risks, " +
			"regime_triggers.",
	},
	{
		ID:          "labor_market",
		Name:        "Labor Market & Workforce",
		Icon:        "👷",
		Color:       "#ec4899",
		Description: "JOLTS openings, quits rate, wages, unemployment by demographic: workforce strategy",
		Tagline:     "JOLTS · Quits Rate · Wage Growth · Demographics · Claims",
		Customers:   []string{"Large employers", "Staffing firms", "HR tech companies", "Workforce boards"},
		Series: []SeriesDef{
			series("JTSJOL", "JOLTS Job Openings", "Monthly", "Thousands"),
			series("JTSQUR", "JOLTS Quits Rate", "Monthly", "Percent"),
			series("JTSHIR", "JOLTS Hires", "Monthly", "Thousands"),
			series("UNRATE", "Unemployment Rate", "Monthly", "Percent"),
			series("LNS14000006", "Unemployment (Black)", "Monthly", "Percent"),
			series("LNS14000009", "Unemployment (Hispanic)", "Monthly", "Percent"),
			series("PAYEMS", "Total Non-Farm Payrolls", "Monthly", "Thousands"),
			series("CES0500000003", "Avg Hourly Earnings", "Monthly", "USD"),
			series("CIVPART", "Labor Force Participation", "Monthly", "Percent"),
			series("ICSA", "Initial Jobless Claims", "Weekly", "Number"),
			series("U6RATE", "U-6 Underemployment", "Monthly", "Percent"),
		},
		KPIs: []KPI{
			kpi("UNRATE", "Unemployment", "#ec4899", ".1f", "%"),
			kpi("JTSJOL", "Job Openings", "#22c55e", ",.0f", "K"),
			kpi("JTSQUR", "Quits Rate", "#f59e0b", ".1f", "%"),
			kpi("CIVPART", "Participation", "#60a5fa", ".1f", "%"),
			kpi("CES0500000003", "Avg Hourly Wage", "#8b5cf6", ".2f", ""),
		},
		Charts: []Chart{
			chart("openings", "JOLTS Job Openings", "area", "#22c55e", []string{"JTSJOL"}, nil),
			chart("quits", "Quits Rate (Worker Confidence)", "line", "#f59e0b", []string{"JTSQUR"},
				map[string]string{"3.0": "Great Resignation", "2.0": "Normal", "1.5": "Fear"}),
			chart("unemp_demo", "Unemployment: Overall vs Black vs Hispanic", "line", "#ec4899",
				[]string{"UNRATE", "LNS14000006", "LNS14000009"}, nil),
			chart("payrolls", "Total Non-Farm Payrolls", "area", "#60a5fa", []string{"PAYEMS"}, nil),
			chart("participation", "Labor Force Participation Rate", "line", "#8b5cf6", []string{"CIVPART"},
				map[string]string{"63": "Pre-COVID", "62": "Current"}),
			chart("claims", "Initial Jobless Claims (Weekly)", "area", "#ef4444", []string{"ICSA"},
				map[string]string{"300000": "Recession Signal", "200000": "Healthy"}),
		},
		PromptTemplate: "You are a workforce strategist for CHROs and staffing firms. Quits >3% = wage pressure. " +
			"Quits <2% = layoff cycle. Claims >300K = recession. Participation declining = structural shortage. Hours " +
			"declining before payrolls = cut hours then heads. Which industries face shortages? Where will wages spike? " +
			"Respond in JSON: market_regime, headline, narrative, key_risks, regime_triggers.",
	},
}
