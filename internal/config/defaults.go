package config

import "time"

// Canonical column names for the indicators the pipeline derives features
// from. Keeping them as constants avoids stringly-typed drift between the
// config, the feature definitions, and the tests.
const (
	ColGDPGrowth            = "GDP_Growth_Pct"
	ColInflation            = "Inflation_CPI_Pct"
	ColRenewableConsumption = "Renewable_Energy_Consumption_Pct"
	ColRenewableElectricity = "Renewable_Electricity_Output_Pct"
	ColRenewableNoHydro     = "Renewable_Electricity_NoHydro_Pct"
	ColFossilFuel           = "Fossil_Fuel_Consumption_Pct"
	ColAltNuclear           = "Alternative_Nuclear_Energy_Pct"
	ColEnergyUsePerCapita   = "Energy_Use_Per_Capita"
	ColEnergyIntensity      = "Energy_Intensity_Primary"
	ColEnergyImports        = "Energy_Imports_Net_Pct"
	ColFuelImports          = "Fuel_Imports_Pct_Merchandise"
	ColGDPPerCapita         = "GDP_Per_Capita_PPP"
	ColBroadMoney           = "Broad_Money_Pct_GDP"
	ColDomesticCredit       = "Domestic_Credit_Private_Pct_GDP"
	ColTrade                = "Trade_Pct_GDP"
	ColCurrentAccount       = "Current_Account_Balance_Pct_GDP"
	ColREER                 = "Real_Effective_Exchange_Rate"
	ColGovExpenditure       = "Gov_Expenditure_Pct_GDP"
	ColCapitalFormation     = "Gross_Fixed_Capital_Formation_Pct_GDP"
	ColCarbonIntensity      = "Carbon_Intensity_GDP"
	ColCO2PerCapita         = "CO2_Emissions_Per_Capita"
)

// Default returns the production configuration: the 2000-2023 study over 33
// countries centered on Turkey.
func Default() Config {
	return Config{
		StartYear: 2000,
		EndYear:   2023,

		Countries: CountriesConfig{
			Developed:        []string{"DEU", "DNK", "SWE", "FRA", "USA", "JPN", "GBR", "CAN", "AUS", "NLD"},
			Emerging:         []string{"TUR", "IND", "BRA", "MEX", "IDN", "VNM", "POL", "ZAF", "THA", "MYS"},
			FastGrowing:      []string{"CHN", "VNM", "POL", "BGD", "PHL"},
			PolicyComparison: []string{"NOR", "ESP", "ITA", "GRC", "PRT", "KOR", "CHL", "SAU", "RUS", "NZL"},

			EnergyImporters: []string{"TUR", "JPN", "DEU", "IND", "KOR", "ESP", "ITA", "GRC", "PRT", "THA", "PHL", "BGD"},
			GreenLeaders:    []string{"DNK", "SWE", "NOR", "DEU", "NZL"},

			Focus:              "TUR",
			FocusPeers:         []string{"BRA", "MEX", "IDN", "POL", "ZAF", "THA", "MYS", "IND"},
			PeerComparison:     []string{"POL", "MEX", "BRA", "IDN", "ZAF"},
			AdvancedComparison: []string{"DEU", "ESP", "ITA", "KOR", "GRC"},
		},

		Variables: VariablesConfig{
			Indicators: map[string]string{
				"NY.GDP.MKTP.KD.ZG":    ColGDPGrowth,
				"FP.CPI.TOTL.ZG":       ColInflation,
				"EG.FEC.RNEW.ZS":       ColRenewableConsumption,
				"EG.ELC.RNEW.ZS":       ColRenewableElectricity,
				"EG.ELC.RNWX.ZS":       ColRenewableNoHydro,
				"EG.USE.COMM.FO.ZS":    ColFossilFuel,
				"EG.USE.COMM.CL.ZS":    ColAltNuclear,
				"EG.USE.PCAP.KG.OE":    ColEnergyUsePerCapita,
				"EG.EGY.PRIM.PP.KD":    ColEnergyIntensity,
				"EG.IMP.CONS.ZS":       ColEnergyImports,
				"TM.VAL.FUEL.ZS.UN":    ColFuelImports,
				"NY.GDP.PCAP.PP.KD":    ColGDPPerCapita,
				"FM.LBL.BMNY.GD.ZS":    ColBroadMoney,
				"FD.AST.PRVT.GD.ZS":    ColDomesticCredit,
				"NE.TRD.GNFS.ZS":       ColTrade,
				"BN.CAB.XOKA.GD.ZS":    ColCurrentAccount,
				"PX.REX.REER":          ColREER,
				"NE.CON.GOVT.ZS":       ColGovExpenditure,
				"NE.GDI.FTOT.ZS":       ColCapitalFormation,
				"EN.ATM.CO2E.PP.GD.KD": ColCarbonIntensity,
				"EN.ATM.CO2E.PC":       ColCO2PerCapita,
			},

			// Volatile series carry the shocks the study is about; a filled
			// value would be indistinguishable from a real one downstream.
			Volatile: []string{
				ColInflation,
				ColGDPGrowth,
				ColCurrentAccount,
				ColREER,
			},
			// Slow-moving shares and ratios where last-known-value is a
			// defensible short-range estimate.
			Structural: []string{
				ColRenewableConsumption,
				ColGDPPerCapita,
				ColBroadMoney,
				ColDomesticCredit,
				ColTrade,
				ColGovExpenditure,
			},
			Outcomes: []string{ColInflation, ColGDPGrowth},

			CoreEvidence: []string{
				ColRenewableConsumption,
				ColRenewableElectricity,
				ColRenewableNoHydro,
				ColFossilFuel,
				ColAltNuclear,
			},

			LagVariables: []string{
				ColRenewableConsumption,
				ColEnergyImports,
				ColBroadMoney,
			},
		},

		Impute: ImputeConfig{
			ForwardFillLimit: 3,
			InterpolateLimit: 2,
			BackfillLimit:    1,
		},

		Features: FeaturesConfig{
			PostEraYear:        2020,
			CADeficitThreshold: -3,
			RollingWindow:      3,
			RollingMinPeriods:  2,
		},

		Quality: QualityConfig{
			Bounds: []Bound{
				// Hyperinflation episodes are real data; quadruple digits are
				// almost always entry errors.
				{Column: ColInflation, Min: -500, Max: 500},
				{Column: ColGDPGrowth, Min: -50, Max: 50},
			},
			MissingWarnRatio: 0.5,
		},

		Periods: []PeriodBin{
			{Label: "Pre_Crisis", From: 2000, To: 2007},
			{Label: "Financial_Crisis", From: 2008, To: 2009},
			{Label: "Recovery_Green", From: 2010, To: 2019},
			{Label: "Pandemic", From: 2020, To: 2021},
			{Label: "Energy_Crisis", From: 2022, To: 2024},
		},

		Fetch: FetchConfig{
			BaseURL:           "https://api.worldbank.org/v2",
			ChunkYears:        5,
			MaxRetries:        3,
			RetryDelay:        10 * time.Second,
			RequestTimeout:    30 * time.Second,
			RequestsPerSecond: 5,
			Concurrency:       4,
			CacheTTL:          24 * time.Hour,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},

		Paths: PathsConfig{
			RawCSV:        "data/raw/wb_raw.csv",
			CacheCSV:      "data/cache/wb_cache.csv",
			ProcessedCSV:  "data/processed/analysis_ready.csv",
			ComparisonCSV: "data/processed/focus_comparison.csv",
			ReportXLSX:    "data/reports/quality_report.xlsx",
		},
	}
}
