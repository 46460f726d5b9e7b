package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greentrap/internal/config"
	"greentrap/internal/panel"
)

func testVars() config.VariablesConfig {
	return config.VariablesConfig{
		Outcomes:     []string{"Inflation_CPI_Pct", "GDP_Growth_Pct"},
		CoreEvidence: []string{"Renewable_Energy_Consumption_Pct", "Fossil_Fuel_Consumption_Pct"},
	}
}

func testQuality() config.QualityConfig {
	return config.QualityConfig{
		Bounds: []config.Bound{
			{Column: "Inflation_CPI_Pct", Min: -500, Max: 500},
			{Column: "GDP_Growth_Pct", Min: -50, Max: 50},
		},
	}
}

func row(country string, year int, values map[string]float64) panel.Observation {
	o := panel.NewObservation(country, year)
	for k, v := range values {
		o.Set(k, v)
	}
	return o
}

// complete returns a row passing every rule.
func complete(country string, year int) panel.Observation {
	return row(country, year, map[string]float64{
		"Inflation_CPI_Pct":                8.5,
		"GDP_Growth_Pct":                   4.2,
		"Renewable_Energy_Consumption_Pct": 12.0,
	})
}

func mustPanel(t *testing.T, obs ...panel.Observation) *panel.Panel {
	t.Helper()
	p, err := panel.New(obs)
	require.NoError(t, err)
	return p
}

func TestOutcomeMissingDropped(t *testing.T) {
	// TUR/2010 has no outcome value, TUR/2011 does.
	missing := row("TUR", 2010, map[string]float64{
		"GDP_Growth_Pct":                   4.2,
		"Renewable_Energy_Consumption_Pct": 12.0,
	})
	p := mustPanel(t, missing, complete("TUR", 2011))

	gate := NewGate(testVars(), testQuality(), nil)
	out, removals, err := gate.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 1, removals.OutcomeMissing)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, 2011, out.Row(0).Year)
}

func TestNoCoreEvidenceDropped(t *testing.T) {
	noEvidence := row("TUR", 2010, map[string]float64{
		"Inflation_CPI_Pct": 8.5,
		"GDP_Growth_Pct":    4.2,
	})
	p := mustPanel(t, noEvidence, complete("TUR", 2011))

	gate := NewGate(testVars(), testQuality(), nil)
	out, removals, err := gate.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 1, removals.NoCoreEvidence)
	assert.Equal(t, 1, out.Len())
}

func TestBoundsDropImplausibleValues(t *testing.T) {
	hyper := complete("TUR", 2010)
	hyper.Set("Inflation_CPI_Pct", 1200) // entry error, not hyperinflation
	crash := complete("TUR", 2011)
	crash.Set("GDP_Growth_Pct", -80)
	extreme := complete("TUR", 2012)
	extreme.Set("Inflation_CPI_Pct", 480) // large but within bounds, kept

	p := mustPanel(t, hyper, crash, extreme)

	gate := NewGate(testVars(), testQuality(), nil)
	out, removals, err := gate.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 1, removals.OutOfBounds["Inflation_CPI_Pct"])
	assert.Equal(t, 1, removals.OutOfBounds["GDP_Growth_Pct"])
	require.Equal(t, 1, out.Len())
	assert.Equal(t, 2012, out.Row(0).Year)
}

func TestRowCountAccounting(t *testing.T) {
	p := mustPanel(t,
		complete("TUR", 2010),
		row("TUR", 2011, map[string]float64{"Renewable_Energy_Consumption_Pct": 10}),
		row("DEU", 2010, map[string]float64{"Inflation_CPI_Pct": 2, "GDP_Growth_Pct": 1}),
		complete("DEU", 2011),
	)
	rowsIn := p.Len()

	gate := NewGate(testVars(), testQuality(), nil)
	out, removals, err := gate.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, rowsIn, out.Len()+removals.Total())
}

func TestGateIdempotence(t *testing.T) {
	p := mustPanel(t,
		complete("TUR", 2010),
		row("TUR", 2011, nil),
		complete("DEU", 2010),
	)

	gate := NewGate(testVars(), testQuality(), nil)
	once, first, err := gate.Apply(context.Background(), p)
	require.NoError(t, err)
	require.Positive(t, first.Total())

	twice, second, err := gate.Apply(context.Background(), once)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Total(), "re-applying the gate must remove nothing")
	assert.Equal(t, once.Len(), twice.Len())
}

func TestGateNeverMutatesValues(t *testing.T) {
	p := mustPanel(t, complete("TUR", 2010), row("TUR", 2011, nil))
	before := p.Clone()

	gate := NewGate(testVars(), testQuality(), nil)
	_, _, err := gate.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, before.Rows(), p.Rows())
}

func TestOutcomeColumnAbsentFromSchemaIsFatal(t *testing.T) {
	// No row anywhere carries GDP_Growth_Pct: configuration defect.
	p := mustPanel(t,
		row("TUR", 2010, map[string]float64{
			"Inflation_CPI_Pct":                8,
			"Renewable_Energy_Consumption_Pct": 12,
		}),
	)

	gate := NewGate(testVars(), testQuality(), nil)
	_, _, err := gate.Apply(context.Background(), p)
	require.Error(t, err)
	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "GDP_Growth_Pct")
}

func TestCoreEvidenceEntirelyAbsentIsFatal(t *testing.T) {
	p := mustPanel(t,
		row("TUR", 2010, map[string]float64{
			"Inflation_CPI_Pct": 8,
			"GDP_Growth_Pct":    4,
		}),
	)

	gate := NewGate(testVars(), testQuality(), nil)
	_, _, err := gate.Apply(context.Background(), p)
	require.Error(t, err)
	var cerr *config.Error
	assert.ErrorAs(t, err, &cerr)
}

func TestZeroRemovalRulesDoNotHalt(t *testing.T) {
	p := mustPanel(t, complete("TUR", 2010), complete("DEU", 2010))

	gate := NewGate(testVars(), testQuality(), nil)
	out, removals, err := gate.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 0, removals.Total())
	assert.Equal(t, 2, out.Len())
}
