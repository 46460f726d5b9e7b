package panel

import (
	"fmt"
	"sort"
)

// Observation is a single (country, year) row. Values maps indicator names to
// numeric values; a missing observation is an absent key. Labels holds
// categorical columns (period names, group labels) written by the feature
// derivation stage.
type Observation struct {
	Country string
	Year    int
	Values  map[string]float64
	Labels  map[string]string
}

// NewObservation creates an observation with initialized maps.
func NewObservation(country string, year int) Observation {
	return Observation{
		Country: country,
		Year:    year,
		Values:  make(map[string]float64),
		Labels:  make(map[string]string),
	}
}

// Value returns the value for the given column and whether it is present.
func (o Observation) Value(col string) (float64, bool) {
	v, ok := o.Values[col]
	return v, ok
}

// Set writes a value for the given column.
func (o *Observation) Set(col string, v float64) {
	if o.Values == nil {
		o.Values = make(map[string]float64)
	}
	o.Values[col] = v
}

// SetLabel writes a categorical label for the given column.
func (o *Observation) SetLabel(col, label string) {
	if o.Labels == nil {
		o.Labels = make(map[string]string)
	}
	o.Labels[col] = label
}

// Label returns the label for the given column and whether it is present.
func (o Observation) Label(col string) (string, bool) {
	l, ok := o.Labels[col]
	return l, ok
}

// Panel is an ordered collection of observations partitioned into one Series
// per country. It is the sole mutable artifact handed between pipeline
// stages; ownership transfers with it.
type Panel struct {
	obs []Observation
}

// New builds a panel from the given observations, sorting them by
// (country, year). A duplicate (country, year) pair is a data-quality defect
// and returns an error.
func New(obs []Observation) (*Panel, error) {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Country != sorted[j].Country {
			return sorted[i].Country < sorted[j].Country
		}
		return sorted[i].Year < sorted[j].Year
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Country == sorted[i-1].Country && sorted[i].Year == sorted[i-1].Year {
			return nil, fmt.Errorf("duplicate observation for %s/%d", sorted[i].Country, sorted[i].Year)
		}
	}

	return &Panel{obs: sorted}, nil
}

// Len returns the number of observations in the panel.
func (p *Panel) Len() int {
	return len(p.obs)
}

// Rows returns the underlying observations in (country, year) order. The
// slice is shared with the panel; callers holding ownership may mutate
// observation values through it.
func (p *Panel) Rows() []Observation {
	return p.obs
}

// Row returns a pointer to the observation at index i.
func (p *Panel) Row(i int) *Observation {
	return &p.obs[i]
}

// Countries returns the distinct country codes in order.
func (p *Panel) Countries() []string {
	var countries []string
	for i, o := range p.obs {
		if i == 0 || o.Country != p.obs[i-1].Country {
			countries = append(countries, o.Country)
		}
	}
	return countries
}

// Series returns the contiguous slice of observations for one country,
// ordered by year. The returned slice aliases panel storage.
type Series []Observation

// SeriesFor returns the series for the given country, or nil if the country
// has no observations.
func (p *Panel) SeriesFor(country string) Series {
	start := sort.Search(len(p.obs), func(i int) bool {
		return p.obs[i].Country >= country
	})
	end := start
	for end < len(p.obs) && p.obs[end].Country == country {
		end++
	}
	if start == end {
		return nil
	}
	return Series(p.obs[start:end])
}

// EachSeries invokes fn once per country with that country's series. The
// series aliases panel storage, so fn may mutate values in place.
func (p *Panel) EachSeries(fn func(country string, s Series)) {
	start := 0
	for i := 1; i <= len(p.obs); i++ {
		if i == len(p.obs) || p.obs[i].Country != p.obs[start].Country {
			fn(p.obs[start].Country, Series(p.obs[start:i]))
			start = i
		}
	}
}

// EachYear invokes fn once per distinct year with pointers to every
// observation for that year, across countries (the cross-sectional slice).
// Years are visited in ascending order.
func (p *Panel) EachYear(fn func(year int, obs []*Observation)) {
	byYear := make(map[int][]*Observation)
	for i := range p.obs {
		byYear[p.obs[i].Year] = append(byYear[p.obs[i].Year], &p.obs[i])
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		fn(y, byYear[y])
	}
}

// Columns returns the sorted union of numeric column names across all
// observations.
func (p *Panel) Columns() []string {
	seen := make(map[string]struct{})
	for _, o := range p.obs {
		for col := range o.Values {
			seen[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// LabelColumns returns the sorted union of label column names.
func (p *Panel) LabelColumns() []string {
	seen := make(map[string]struct{})
	for _, o := range p.obs {
		for col := range o.Labels {
			seen[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// HasColumn reports whether any observation carries the given numeric column.
func (p *Panel) HasColumn(col string) bool {
	for _, o := range p.obs {
		if _, ok := o.Values[col]; ok {
			return true
		}
	}
	return false
}

// MissingCount returns the number of observations missing the given column.
func (p *Panel) MissingCount(col string) int {
	missing := 0
	for _, o := range p.obs {
		if _, ok := o.Values[col]; !ok {
			missing++
		}
	}
	return missing
}

// Filter returns a new panel containing only the observations for which keep
// returns true. Observations are shared, not copied; the original panel
// should not be used after filtering if ownership moved.
func (p *Panel) Filter(keep func(o Observation) bool) *Panel {
	var kept []Observation
	for _, o := range p.obs {
		if keep(o) {
			kept = append(kept, o)
		}
	}
	return &Panel{obs: kept}
}

// Clone returns a deep copy of the panel, including value and label maps.
func (p *Panel) Clone() *Panel {
	obs := make([]Observation, len(p.obs))
	for i, o := range p.obs {
		c := Observation{Country: o.Country, Year: o.Year}
		if o.Values != nil {
			c.Values = make(map[string]float64, len(o.Values))
			for k, v := range o.Values {
				c.Values[k] = v
			}
		}
		if o.Labels != nil {
			c.Labels = make(map[string]string, len(o.Labels))
			for k, v := range o.Labels {
				c.Labels[k] = v
			}
		}
		obs[i] = c
	}
	return &Panel{obs: obs}
}

// YearRange returns the minimum and maximum year present in the panel.
// ok is false for an empty panel.
func (p *Panel) YearRange() (min, max int, ok bool) {
	if len(p.obs) == 0 {
		return 0, 0, false
	}
	min, max = p.obs[0].Year, p.obs[0].Year
	for _, o := range p.obs[1:] {
		if o.Year < min {
			min = o.Year
		}
		if o.Year > max {
			max = o.Year
		}
	}
	return min, max, true
}

// Column extracts one column from a series as parallel value/presence
// slices, ordered by year. Writing values back is the caller's concern.
func (s Series) Column(col string) (values []float64, present []bool) {
	values = make([]float64, len(s))
	present = make([]bool, len(s))
	for i, o := range s {
		if v, ok := o.Values[col]; ok {
			values[i] = v
			present[i] = true
		}
	}
	return values, present
}
