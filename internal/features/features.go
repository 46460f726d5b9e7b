// Package features appends derived columns to an imputed panel: transition
// dynamics (first differences), lag copies, rolling volatility, vulnerability
// interactions, cross-sectional frontier gaps, period labels, and country
// membership dummies.
//
// Derivations never remove or mutate existing columns, depend only on
// post-imputation raw columns (never on other derived columns), and
// propagate missingness: absent inputs yield an absent output for that row,
// never a zero substitute. Each derivation declares the columns it requires;
// a derivation whose inputs are absent from the panel schema is skipped and
// the skip is reported, all others proceed.
package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"greentrap/internal/config"
	"greentrap/internal/panel"
)

// Derived column names.
const (
	ColTransitionSpeed      = "Green_Transition_Speed"
	ColModernRenewGrowth    = "Modern_Renewables_Growth"
	ColFossilReduction      = "Fossil_Reduction_Rate"
	ColREERChange           = "REER_Change"
	ColEnergyVulnerability  = "Energy_Vulnerability_Index"
	ColFuelImportExposure   = "Fuel_Import_Exposure"
	ColLogGDPPerCapita      = "Log_GDP_Per_Capita"
	ColInflationVolatility  = "Inflation_Volatility_3Y"
	ColGrowthVolatility     = "GDP_Growth_Volatility_3Y"
	ColCADeficitDummy       = "CA_Deficit_Dummy"
	ColCarbonFrontier       = "Carbon_Efficiency_Frontier"
	ColCarbonGap            = "Carbon_Efficiency_Gap"
	ColEmissionsReduction   = "Emissions_Reduction_Rate"
	ColPostEra              = "Post_2020"
	ColIsEnergyImporter     = "Is_Energy_Importer"
	ColIsFocusCountry       = "Is_Focus_Country"
	ColIsGreenLeader        = "Is_Green_Leader"
	ColIsFocusPeer          = "Is_Focus_Peer"
	ColGreenXImporter       = "Green_X_Importer"
	ColGreenXDevelopment    = "Green_X_Development"
	ColGreenXPostEra        = "Green_X_Post2020"
	LabelPeriod             = "Period"
	LabelCountryGroup       = "Country_Group"
)

// Skip records a derivation that could not run because its required input
// columns are absent from the panel schema. Optional indicator coverage
// changes over time, so a skip is expected, not an error.
type Skip struct {
	Feature string   `json:"feature"`
	Missing []string `json:"missing_columns"`
}

// derivation is one derived column: a name, the raw columns it requires, and
// the function that writes it.
type derivation struct {
	name     string
	requires []string
	apply    func(p *panel.Panel)
}

// Deriver appends derived columns to a panel.
type Deriver struct {
	cfg    config.Config
	logger *slog.Logger
}

// NewDeriver creates a feature deriver for the given configuration.
func NewDeriver(cfg config.Config, logger *slog.Logger) *Deriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deriver{cfg: cfg, logger: logger}
}

// Apply appends all derived columns whose inputs exist, returning one Skip
// per derivation whose inputs are missing. It returns an error only for
// configuration-level defects: a year in the panel that maps to no period
// bin aborts before any label is written.
func (d *Deriver) Apply(ctx context.Context, p *panel.Panel) ([]Skip, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("feature derivation cancelled: %w", err)
	}

	// Period labeling is total over the panel or fatal: check every year up
	// front so a failure cannot leave a half-labeled panel.
	for _, o := range p.Rows() {
		if _, err := d.cfg.PeriodFor(o.Year); err != nil {
			return nil, fmt.Errorf("period labeling: %w", err)
		}
	}

	var skips []Skip
	applied := 0
	for _, dv := range d.derivations() {
		if missing := absentColumns(p, dv.requires); len(missing) > 0 {
			skips = append(skips, Skip{Feature: dv.name, Missing: missing})
			d.logger.DebugContext(ctx, "skipping derivation",
				"feature", dv.name,
				"missing_columns", missing,
			)
			continue
		}
		dv.apply(p)
		applied++
	}

	d.logger.InfoContext(ctx, "feature derivation completed",
		"derived", applied,
		"skipped", len(skips),
	)
	return skips, nil
}

// derivations lists every derived column in creation order. Interactions are
// computed from raw columns directly (never from other derived columns), so
// the order carries no dependencies.
func (d *Deriver) derivations() []derivation {
	countries := d.cfg.Countries
	feat := d.cfg.Features

	ds := []derivation{
		// Green transition dynamics: year-over-year changes within a series.
		{ColTransitionSpeed, []string{config.ColRenewableConsumption}, func(p *panel.Panel) {
			seriesDiff(p, config.ColRenewableConsumption, ColTransitionSpeed)
		}},
		{ColModernRenewGrowth, []string{config.ColRenewableNoHydro}, func(p *panel.Panel) {
			seriesDiff(p, config.ColRenewableNoHydro, ColModernRenewGrowth)
		}},
		{ColFossilReduction, []string{config.ColFossilFuel}, func(p *panel.Panel) {
			seriesDiff(p, config.ColFossilFuel, ColFossilReduction)
		}},
		{ColREERChange, []string{config.ColREER}, func(p *panel.Panel) {
			seriesDiff(p, config.ColREER, ColREERChange)
		}},

		// Energy vulnerability interactions.
		{ColEnergyVulnerability, []string{config.ColEnergyImports, config.ColEnergyIntensity}, func(p *panel.Panel) {
			product(p, config.ColEnergyImports, config.ColEnergyIntensity, ColEnergyVulnerability, 0.01)
		}},
		{ColFuelImportExposure, []string{config.ColFuelImports, config.ColTrade}, func(p *panel.Panel) {
			product(p, config.ColFuelImports, config.ColTrade, ColFuelImportExposure, 0.01)
		}},

		// Macro indicators.
		{ColLogGDPPerCapita, []string{config.ColGDPPerCapita}, func(p *panel.Panel) {
			logTransform(p, config.ColGDPPerCapita, ColLogGDPPerCapita)
		}},
		{ColInflationVolatility, []string{config.ColInflation}, func(p *panel.Panel) {
			rollingStd(p, config.ColInflation, ColInflationVolatility, feat.RollingWindow, feat.RollingMinPeriods)
		}},
		{ColGrowthVolatility, []string{config.ColGDPGrowth}, func(p *panel.Panel) {
			rollingStd(p, config.ColGDPGrowth, ColGrowthVolatility, feat.RollingWindow, feat.RollingMinPeriods)
		}},
		{ColCADeficitDummy, []string{config.ColCurrentAccount}, func(p *panel.Panel) {
			thresholdDummy(p, config.ColCurrentAccount, ColCADeficitDummy, feat.CADeficitThreshold)
		}},

		// Carbon efficiency.
		{ColCarbonFrontier, []string{config.ColCarbonIntensity}, func(p *panel.Panel) {
			frontierGap(p, config.ColCarbonIntensity, ColCarbonFrontier, ColCarbonGap)
		}},
		{ColEmissionsReduction, []string{config.ColCO2PerCapita}, func(p *panel.Panel) {
			pctChange(p, config.ColCO2PerCapita, ColEmissionsReduction)
		}},

		// Interactions with membership and era. Computed from the raw
		// renewable share plus set membership / year directly.
		{ColGreenXImporter, []string{config.ColRenewableConsumption}, func(p *panel.Panel) {
			gateByMembership(p, config.ColRenewableConsumption, ColGreenXImporter, countries.EnergyImporters)
		}},
		{ColGreenXDevelopment, []string{config.ColRenewableConsumption, config.ColGDPPerCapita}, func(p *panel.Panel) {
			greenDevelopment(p, ColGreenXDevelopment)
		}},
		{ColGreenXPostEra, []string{config.ColRenewableConsumption}, func(p *panel.Panel) {
			gateByEra(p, config.ColRenewableConsumption, ColGreenXPostEra, feat.PostEraYear)
		}},
	}

	// Lag copies of the configured variables.
	for _, src := range d.cfg.Variables.LagVariables {
		src := src
		for _, k := range []int{1, 2} {
			k := k
			dst := fmt.Sprintf("%s_Lag%d", src, k)
			ds = append(ds, derivation{dst, []string{src}, func(p *panel.Panel) {
				seriesLag(p, src, dst, k)
			}})
		}
	}

	// Labels and dummies need no input columns; they derive from the keys.
	ds = append(ds,
		derivation{LabelPeriod, nil, func(p *panel.Panel) {
			for i := 0; i < p.Len(); i++ {
				o := p.Row(i)
				label, _ := d.cfg.PeriodFor(o.Year) // checked total in Apply
				o.SetLabel(LabelPeriod, label)
			}
		}},
		derivation{ColPostEra, nil, func(p *panel.Panel) {
			eraDummy(p, ColPostEra, feat.PostEraYear)
		}},
		derivation{LabelCountryGroup, nil, func(p *panel.Panel) {
			for i := 0; i < p.Len(); i++ {
				o := p.Row(i)
				o.SetLabel(LabelCountryGroup, countries.GroupFor(o.Country))
			}
		}},
		derivation{ColIsEnergyImporter, nil, func(p *panel.Panel) {
			membershipDummy(p, ColIsEnergyImporter, countries.EnergyImporters)
		}},
		derivation{ColIsFocusCountry, nil, func(p *panel.Panel) {
			membershipDummy(p, ColIsFocusCountry, []string{countries.Focus})
		}},
		derivation{ColIsGreenLeader, nil, func(p *panel.Panel) {
			membershipDummy(p, ColIsGreenLeader, countries.GreenLeaders)
		}},
		derivation{ColIsFocusPeer, nil, func(p *panel.Panel) {
			membershipDummy(p, ColIsFocusPeer, countries.FocusPeers)
		}},
	)

	return ds
}

func absentColumns(p *panel.Panel, cols []string) []string {
	var missing []string
	for _, col := range cols {
		if !p.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// seriesDiff writes dst = src(year) - src(year-1) within each series; the
// first position of a series is left absent.
func seriesDiff(p *panel.Panel, src, dst string) {
	p.EachSeries(func(_ string, s panel.Series) {
		for i := 1; i < len(s); i++ {
			cur, okCur := s[i].Value(src)
			prev, okPrev := s[i-1].Value(src)
			if okCur && okPrev {
				s[i].Set(dst, cur-prev)
			}
		}
	})
}

// seriesLag writes dst = src(year-k) within each series; the first k
// positions are left absent.
func seriesLag(p *panel.Panel, src, dst string, k int) {
	p.EachSeries(func(_ string, s panel.Series) {
		for i := k; i < len(s); i++ {
			if v, ok := s[i-k].Value(src); ok {
				s[i].Set(dst, v)
			}
		}
	})
}

// pctChange writes dst = (src(year) - src(year-1)) / src(year-1); absent when
// the prior value is absent or zero.
func pctChange(p *panel.Panel, src, dst string) {
	p.EachSeries(func(_ string, s panel.Series) {
		for i := 1; i < len(s); i++ {
			cur, okCur := s[i].Value(src)
			prev, okPrev := s[i-1].Value(src)
			if okCur && okPrev && prev != 0 {
				s[i].Set(dst, (cur-prev)/prev)
			}
		}
	})
}

// rollingStd writes the sample standard deviation of the trailing window
// positions of src, requiring at least minPeriods non-missing observations
// in the window.
func rollingStd(p *panel.Panel, src, dst string, window, minPeriods int) {
	p.EachSeries(func(_ string, s panel.Series) {
		for i := range s {
			lo := i - window + 1
			if lo < 0 {
				lo = 0
			}
			var obs []float64
			for j := lo; j <= i; j++ {
				if v, ok := s[j].Value(src); ok {
					obs = append(obs, v)
				}
			}
			if len(obs) >= minPeriods && len(obs) >= 2 {
				s[i].Set(dst, stat.StdDev(obs, nil))
			}
		}
	})
}

// product writes dst = a * b * scale per row; absent if either operand is
// absent.
func product(p *panel.Panel, a, b, dst string, scale float64) {
	for i := 0; i < p.Len(); i++ {
		o := p.Row(i)
		av, okA := o.Value(a)
		bv, okB := o.Value(b)
		if okA && okB {
			o.Set(dst, av*bv*scale)
		}
	}
}

// logTransform writes dst = ln(1 + max(0, src)). Negative inputs clip to
// zero rather than producing NaN.
func logTransform(p *panel.Panel, src, dst string) {
	for i := 0; i < p.Len(); i++ {
		o := p.Row(i)
		if v, ok := o.Value(src); ok {
			if v < 0 {
				v = 0
			}
			o.Set(dst, math.Log1p(v))
		}
	}
}

// thresholdDummy writes 1 when src < threshold, else 0; absent when src is
// absent.
func thresholdDummy(p *panel.Panel, src, dst string, threshold float64) {
	for i := 0; i < p.Len(); i++ {
		o := p.Row(i)
		if v, ok := o.Value(src); ok {
			if v < threshold {
				o.Set(dst, 1)
			} else {
				o.Set(dst, 0)
			}
		}
	}
}

// frontierGap writes, per year, the cross-sectional minimum of src as
// frontierDst for every observation of that year, and gapDst = src/frontier.
// Years with no observed value leave both absent; a zero frontier leaves the
// gap absent.
func frontierGap(p *panel.Panel, src, frontierDst, gapDst string) {
	p.EachYear(func(_ int, rows []*panel.Observation) {
		frontier := math.Inf(1)
		found := false
		for _, o := range rows {
			if v, ok := o.Value(src); ok && v < frontier {
				frontier = v
				found = true
			}
		}
		if !found {
			return
		}
		for _, o := range rows {
			o.Set(frontierDst, frontier)
			if v, ok := o.Value(src); ok && frontier != 0 {
				o.Set(gapDst, v/frontier)
			}
		}
	})
}

// membershipDummy writes 1 for countries in the set, 0 otherwise. No time
// dependency.
func membershipDummy(p *panel.Panel, dst string, set []string) {
	members := make(map[string]struct{}, len(set))
	for _, c := range set {
		members[c] = struct{}{}
	}
	for i := 0; i < p.Len(); i++ {
		o := p.Row(i)
		if _, ok := members[o.Country]; ok {
			o.Set(dst, 1)
		} else {
			o.Set(dst, 0)
		}
	}
}

// eraDummy writes 1 for years at or after the era start, 0 before.
func eraDummy(p *panel.Panel, dst string, eraStart int) {
	for i := 0; i < p.Len(); i++ {
		o := p.Row(i)
		if o.Year >= eraStart {
			o.Set(dst, 1)
		} else {
			o.Set(dst, 0)
		}
	}
}

// gateByMembership writes dst = src for member countries and 0 for
// non-members; absent when src is absent.
func gateByMembership(p *panel.Panel, src, dst string, set []string) {
	members := make(map[string]struct{}, len(set))
	for _, c := range set {
		members[c] = struct{}{}
	}
	for i := 0; i < p.Len(); i++ {
		o := p.Row(i)
		v, ok := o.Value(src)
		if !ok {
			continue
		}
		if _, member := members[o.Country]; member {
			o.Set(dst, v)
		} else {
			o.Set(dst, 0)
		}
	}
}

// gateByEra writes dst = src for years in the era and 0 before it; absent
// when src is absent.
func gateByEra(p *panel.Panel, src, dst string, eraStart int) {
	for i := 0; i < p.Len(); i++ {
		o := p.Row(i)
		v, ok := o.Value(src)
		if !ok {
			continue
		}
		if o.Year >= eraStart {
			o.Set(dst, v)
		} else {
			o.Set(dst, 0)
		}
	}
}

// greenDevelopment writes renewable share times log GDP per capita, both
// read from raw columns.
func greenDevelopment(p *panel.Panel, dst string) {
	for i := 0; i < p.Len(); i++ {
		o := p.Row(i)
		green, okG := o.Value(config.ColRenewableConsumption)
		gdp, okD := o.Value(config.ColGDPPerCapita)
		if !okG || !okD {
			continue
		}
		if gdp < 0 {
			gdp = 0
		}
		o.Set(dst, green*math.Log1p(gdp))
	}
}
