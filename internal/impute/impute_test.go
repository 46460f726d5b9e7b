package impute

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greentrap/internal/panel"
)

// seriesPanel builds a single-country panel over consecutive years starting
// at 2000. A nil entry in values is a missing observation.
func seriesPanel(t *testing.T, country, col string, values []*float64) *panel.Panel {
	t.Helper()
	var obs []panel.Observation
	for i, v := range values {
		o := panel.NewObservation(country, 2000+i)
		if v != nil {
			o.Set(col, *v)
		}
		obs = append(obs, o)
	}
	p, err := panel.New(obs)
	require.NoError(t, err)
	return p
}

func f(v float64) *float64 { return &v }

// column reads back a series column as pointers for easy comparison.
func column(p *panel.Panel, country, col string) []*float64 {
	s := p.SeriesFor(country)
	out := make([]*float64, len(s))
	for i, o := range s {
		if v, ok := o.Value(col); ok {
			vv := v
			out[i] = &vv
		}
	}
	return out
}

func TestClassification(t *testing.T) {
	c := NewClassification(
		[]string{"Inflation_CPI_Pct", "GDP_Growth_Pct"},
		[]string{"Trade_Pct_GDP"},
		[]string{"Inflation_CPI_Pct"},
	)

	tests := []struct {
		col  string
		want Class
	}{
		{"Inflation_CPI_Pct", ClassOutcome}, // outcome wins over volatile
		{"GDP_Growth_Pct", ClassVolatile},
		{"Trade_Pct_GDP", ClassStructural},
		{"CO2_Emissions_Per_Capita", ClassInterpolable}, // default
	}
	for _, tt := range tests {
		t.Run(tt.col, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Of(tt.col))
		})
	}
}

func TestInterpolationInteriorGap(t *testing.T) {
	// AAA 2000-2004, values [1.0, -, -, 4.0, -], interior limit 2.
	// The interior gap fills linearly as [2.0, 3.0]; the trailing year stays
	// missing because it is not an interior gap.
	p := seriesPanel(t, "AAA", "x", []*float64{f(1.0), nil, nil, f(4.0), nil})
	eng := NewEngine(Classification{}, Limits{Interpolate: 2}, nil)

	_, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	got := column(p, "AAA", "x")
	require.NotNil(t, got[1])
	require.NotNil(t, got[2])
	assert.InDelta(t, 2.0, *got[1], 1e-12)
	assert.InDelta(t, 3.0, *got[2], 1e-12)
	assert.Nil(t, got[4], "trailing gap must not be interpolated")
}

func TestInterpolationBoundedGap(t *testing.T) {
	// A 5-year interior gap with limit 2 stays missing.
	p := seriesPanel(t, "AAA", "x", []*float64{f(1), nil, nil, nil, nil, nil, f(7)})
	eng := NewEngine(Classification{}, Limits{Interpolate: 2}, nil)

	_, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	got := column(p, "AAA", "x")
	for i := 1; i <= 5; i++ {
		assert.Nil(t, got[i], "year %d must remain missing", 2000+i)
	}
}

func TestForwardFillLimit(t *testing.T) {
	classes := NewClassification(nil, []string{"pop"}, nil)
	p := seriesPanel(t, "AAA", "pop", []*float64{f(10), nil, nil, nil, f(20), nil, nil})
	eng := NewEngine(classes, Limits{ForwardFill: 3}, nil)

	_, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	got := column(p, "AAA", "pop")
	for i := 1; i <= 3; i++ {
		require.NotNil(t, got[i], "position %d", i)
		assert.Equal(t, 10.0, *got[i])
	}
	require.NotNil(t, got[5])
	assert.Equal(t, 20.0, *got[5], "trailing gap within the limit fills forward")
	assert.Equal(t, 20.0, *got[6])
}

func TestForwardFillSkipsOverlongGaps(t *testing.T) {
	// A structural gap of five years with limit 3 must stay entirely
	// missing: no value may originate from a gap longer than the limit, not
	// even the first positions of it.
	classes := NewClassification(nil, []string{"pop"}, nil)
	p := seriesPanel(t, "AAA", "pop", []*float64{f(10), nil, nil, nil, nil, nil, f(20)})
	eng := NewEngine(classes, Limits{ForwardFill: 3}, nil)

	stats, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	got := column(p, "AAA", "pop")
	for i := 1; i <= 5; i++ {
		assert.Nil(t, got[i], "position %d was filled from a gap of length 5", i)
	}
	assert.Equal(t, 5, stats.MissingAfter["pop"])
	assert.Equal(t, 0, stats.FilledCells)
}

func TestVolatileIdentity(t *testing.T) {
	classes := NewClassification([]string{"infl"}, nil, nil)
	p := seriesPanel(t, "AAA", "infl", []*float64{f(5), nil, nil, f(8), nil})
	before := p.Clone()
	eng := NewEngine(classes, DefaultLimits(), nil)

	stats, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, column(before, "AAA", "infl"), column(p, "AAA", "infl"))
	assert.Equal(t, stats.MissingBefore["infl"], stats.MissingAfter["infl"])
}

func TestOutcomeNeverFilled(t *testing.T) {
	// Outcome wins even when the column is also listed as structural.
	classes := NewClassification(nil, []string{"gdp"}, []string{"gdp"})
	p := seriesPanel(t, "AAA", "gdp", []*float64{f(1), nil, f(3)})
	eng := NewEngine(classes, DefaultLimits(), nil)

	_, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Nil(t, column(p, "AAA", "gdp")[1])
}

func TestLeadingBackfill(t *testing.T) {
	tests := []struct {
		name   string
		in     []*float64
		expect []bool // presence after imputation
	}{
		{
			name:   "leading single gap patched",
			in:     []*float64{nil, f(2), f(3)},
			expect: []bool{true, true, true},
		},
		{
			name:   "only one position of a longer leading gap",
			in:     []*float64{nil, nil, nil, f(4)},
			expect: []bool{false, false, true, true},
		},
		{
			name:   "trailing gap untouched",
			in:     []*float64{f(1), f(2), nil},
			expect: []bool{true, true, false},
		},
	}

	classes := NewClassification(nil, []string{"x"}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := seriesPanel(t, "AAA", "x", tt.in)
			eng := NewEngine(classes, Limits{ForwardFill: 0, Backfill: 1}, nil)
			_, err := eng.Apply(context.Background(), p)
			require.NoError(t, err)

			got := column(p, "AAA", "x")
			for i, want := range tt.expect {
				if want {
					assert.NotNil(t, got[i], "position %d", i)
				} else {
					assert.Nil(t, got[i], "position %d", i)
				}
			}
		})
	}

	t.Run("backfill copies the first known value", func(t *testing.T) {
		p := seriesPanel(t, "AAA", "x", []*float64{nil, f(7), f(9)})
		eng := NewEngine(classes, Limits{Backfill: 1}, nil)
		_, err := eng.Apply(context.Background(), p)
		require.NoError(t, err)
		got := column(p, "AAA", "x")
		require.NotNil(t, got[0])
		assert.Equal(t, 7.0, *got[0])
	})
}

func TestNoCrossSeriesLeakage(t *testing.T) {
	// Country A's trailing values must never feed country B's leading gap
	// and vice versa, whatever the strategy.
	mk := func(aLast float64) *panel.Panel {
		a1 := panel.NewObservation("AAA", 2000)
		a1.Set("x", 1)
		a2 := panel.NewObservation("AAA", 2001)
		a2.Set("x", aLast)
		b1 := panel.NewObservation("BBB", 2000) // missing x
		b2 := panel.NewObservation("BBB", 2001)
		b2.Set("x", 5)
		p, err := panel.New([]panel.Observation{a1, a2, b1, b2})
		require.NoError(t, err)
		return p
	}

	classes := NewClassification(nil, []string{"x"}, nil)
	eng := NewEngine(classes, DefaultLimits(), nil)

	p1 := mk(100)
	p2 := mk(999)
	_, err := eng.Apply(context.Background(), p1)
	require.NoError(t, err)
	_, err = eng.Apply(context.Background(), p2)
	require.NoError(t, err)

	// BBB's filled leading value comes from its own series (backfill of 5),
	// independent of AAA's perturbed values.
	assert.Equal(t, column(p1, "BBB", "x"), column(p2, "BBB", "x"))
	got := column(p1, "BBB", "x")
	require.NotNil(t, got[0])
	assert.Equal(t, 5.0, *got[0])
}

func TestStatsAccounting(t *testing.T) {
	classes := NewClassification(nil, []string{"x"}, nil)
	p := seriesPanel(t, "AAA", "x", []*float64{f(1), nil, nil, f(4)})
	eng := NewEngine(classes, Limits{ForwardFill: 3, Backfill: 1}, nil)

	stats, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.MissingBefore["x"])
	assert.Equal(t, 0, stats.MissingAfter["x"])
	assert.Equal(t, 2, stats.FilledCells)
	assert.Equal(t, 2, stats.TotalBefore())
	assert.Equal(t, 0, stats.TotalAfter())
}

func TestAbsentColumnSkipped(t *testing.T) {
	classes := NewClassification(nil, []string{"present", "configured_but_absent"}, nil)
	p := seriesPanel(t, "AAA", "present", []*float64{f(1), nil})
	eng := NewEngine(classes, DefaultLimits(), nil)

	_, err := eng.Apply(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"configured_but_absent"}, eng.ClassifiedColumns(p))
}

func TestDeterminism(t *testing.T) {
	classes := NewClassification(nil, []string{"a"}, nil)
	build := func() *panel.Panel {
		var obs []panel.Observation
		for _, c := range []string{"TUR", "DEU", "POL"} {
			for y := 2000; y < 2010; y++ {
				o := panel.NewObservation(c, y)
				if (y+len(c))%3 != 0 {
					o.Set("a", float64(y))
					o.Set("b", float64(y)*2)
				}
				obs = append(obs, o)
			}
		}
		p, err := panel.New(obs)
		require.NoError(t, err)
		return p
	}

	eng := NewEngine(classes, DefaultLimits(), nil)
	p1, p2 := build(), build()
	s1, err := eng.Apply(context.Background(), p1)
	require.NoError(t, err)
	s2, err := eng.Apply(context.Background(), p2)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, p1.Rows(), p2.Rows())
}
