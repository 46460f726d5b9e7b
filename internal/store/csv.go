// Package store reads and writes panels as CSV files. The on-disk layout is
// one row per (country, year) with a Country_Code column, a Year column,
// numeric indicator columns, and trailing categorical label columns. Missing
// values are empty cells, never sentinel numbers.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"greentrap/internal/panel"
)

const (
	colCountry = "Country_Code"
	colYear    = "Year"
)

// SavePanel writes the panel to path as CSV, creating parent directories as
// needed.
func SavePanel(p *panel.Panel, path string) error {
	numeric := p.Columns()
	labels := p.LabelColumns()

	header := make([]string, 0, 2+len(numeric)+len(labels))
	header = append(header, colCountry, colYear)
	header = append(header, numeric...)
	header = append(header, labels...)

	records := make([][]string, 0, p.Len()+1)
	records = append(records, header)
	for _, o := range p.Rows() {
		rec := make([]string, 0, len(header))
		rec = append(rec, o.Country, strconv.Itoa(o.Year))
		for _, col := range numeric {
			if v, ok := o.Value(col); ok {
				rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				rec = append(rec, "")
			}
		}
		for _, col := range labels {
			label, _ := o.Label(col)
			rec = append(rec, label)
		}
		records = append(records, rec)
	}

	// Load every column as a string series so empty cells round-trip as
	// empty cells rather than NaN literals.
	types := make(map[string]series.Type, len(header))
	for _, col := range header {
		types[col] = series.String
	}
	df := dataframe.LoadRecords(records, dataframe.WithTypes(types))
	if df.Err != nil {
		return fmt.Errorf("build dataframe: %w", df.Err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := df.WriteCSV(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadPanel reads a panel from the CSV file at path. Columns other than
// Country_Code and Year are treated as numeric indicators when they parse as
// numbers and as categorical labels otherwise; empty cells are missing.
func LoadPanel(path string) (*panel.Panel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.WithTypes(map[string]series.Type{
		colCountry: series.String,
		colYear:    series.Int,
	}))
	if df.Err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, df.Err)
	}

	names := df.Names()
	colTypes := df.Types()
	idxCountry, idxYear := -1, -1
	for i, name := range names {
		switch name {
		case colCountry:
			idxCountry = i
		case colYear:
			idxYear = i
		}
	}
	if idxCountry < 0 || idxYear < 0 {
		return nil, fmt.Errorf("%s: missing %s or %s column", path, colCountry, colYear)
	}

	obs := make([]panel.Observation, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		country := df.Elem(i, idxCountry).String()
		year, err := df.Elem(i, idxYear).Int()
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid year: %w", path, i+1, err)
		}
		o := panel.NewObservation(country, year)

		for j, name := range names {
			if j == idxCountry || j == idxYear {
				continue
			}
			elem := df.Elem(i, j)
			if elem.IsNA() {
				continue
			}
			switch colTypes[j] {
			case series.Float, series.Int:
				o.Set(name, elem.Float())
			default:
				if s := elem.String(); s != "" {
					o.SetLabel(name, s)
				}
			}
		}
		obs = append(obs, o)
	}

	p, err := panel.New(obs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
