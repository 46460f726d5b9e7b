// Package config defines the immutable run configuration for the green
// transition panel pipeline: country groups, indicator classification,
// imputation limits, period bins, and quality bounds. Configuration is
// loaded once (defaults, then YAML file, then GREENTRAP_* environment
// overrides), validated, and passed by value into each pipeline stage at
// construction time. No package reads it ambiently.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// envPrefix namespaces environment variable overrides, e.g.
// GREENTRAP_FETCH_MAX_RETRIES.
const envPrefix = "GREENTRAP"

// Error is a fatal configuration error. The pipeline never starts on one.
type Error struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Country group labels assigned by CountriesConfig.GroupFor.
const (
	GroupDeveloped        = "Developed"
	GroupFastGrowing      = "Fast_Growing"
	GroupEmerging         = "Emerging"
	GroupPolicyComparison = "Policy_Comp"
)

// Config is the complete pipeline configuration.
type Config struct {
	StartYear int `yaml:"start_year" envconfig:"START_YEAR" validate:"required,min=1960"`
	EndYear   int `yaml:"end_year" envconfig:"END_YEAR" validate:"required,gtefield=StartYear"`

	Countries CountriesConfig `yaml:"countries"`
	Variables VariablesConfig `yaml:"variables"`
	Impute    ImputeConfig    `yaml:"impute"`
	Features  FeaturesConfig  `yaml:"features"`
	Quality   QualityConfig   `yaml:"quality"`
	Periods   []PeriodBin     `yaml:"periods" validate:"required,min=1,dive"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Logging   LoggingConfig   `yaml:"logging"`
	Paths     PathsConfig     `yaml:"paths"`
}

// CountriesConfig holds the analytical country sets (ISO-3 codes).
type CountriesConfig struct {
	Developed        []string `yaml:"developed" validate:"required,min=1"`
	Emerging         []string `yaml:"emerging" validate:"required,min=1"`
	FastGrowing      []string `yaml:"fast_growing"`
	PolicyComparison []string `yaml:"policy_comparison"`

	// Membership sets for dummy columns.
	EnergyImporters []string `yaml:"energy_importers"`
	GreenLeaders    []string `yaml:"green_leaders"`

	// Focus is the country the study centers on; FocusPeers are its
	// emerging-market peers. PeerComparison and AdvancedComparison define
	// the comparison subset written next to the full dataset.
	Focus              string   `yaml:"focus" validate:"required,len=3"`
	FocusPeers         []string `yaml:"focus_peers"`
	PeerComparison     []string `yaml:"peer_comparison"`
	AdvancedComparison []string `yaml:"advanced_comparison"`
}

// All returns the sorted union of the four group lists. Countries appearing
// in several lists (e.g. POL, VNM) are included once.
func (c CountriesConfig) All() []string {
	seen := make(map[string]struct{})
	for _, list := range [][]string{c.Developed, c.Emerging, c.FastGrowing, c.PolicyComparison} {
		for _, code := range list {
			seen[code] = struct{}{}
		}
	}
	all := make([]string, 0, len(seen))
	for code := range seen {
		all = append(all, code)
	}
	sort.Strings(all)
	return all
}

// GroupFor returns the analytical group label for a country. A country in
// several lists resolves by fixed precedence: Developed, then Fast_Growing,
// then Emerging; everything else is Policy_Comp. The order is explicit
// policy, not iteration accident.
func (c CountriesConfig) GroupFor(code string) string {
	switch {
	case contains(c.Developed, code):
		return GroupDeveloped
	case contains(c.FastGrowing, code):
		return GroupFastGrowing
	case contains(c.Emerging, code):
		return GroupEmerging
	default:
		return GroupPolicyComparison
	}
}

func contains(list []string, code string) bool {
	for _, c := range list {
		if c == code {
			return true
		}
	}
	return false
}

// VariablesConfig maps WDI indicator codes to column names and classifies
// columns for the imputation policy. Columns in none of the class lists
// default to the interpolable class.
type VariablesConfig struct {
	// Indicators maps WDI series codes to clean column names.
	Indicators map[string]string `yaml:"indicators" validate:"required,min=1"`

	// Volatile columns are never imputed; Structural columns are
	// forward-fillable; Outcomes must survive the quality gate non-missing
	// and are excluded from all imputation.
	Volatile   []string `yaml:"volatile"`
	Structural []string `yaml:"structural"`
	Outcomes   []string `yaml:"outcomes" validate:"required,min=1"`

	// CoreEvidence lists the green-transition indicators; a row missing all
	// of them carries no information about the phenomenon under study.
	CoreEvidence []string `yaml:"core_evidence" validate:"required,min=1"`

	// LagVariables get _Lag1 and _Lag2 copies.
	LagVariables []string `yaml:"lag_variables"`
}

// ImputeConfig bounds each fill strategy.
type ImputeConfig struct {
	ForwardFillLimit int `yaml:"forward_fill_limit" envconfig:"IMPUTE_FORWARD_FILL_LIMIT" validate:"min=0"`
	InterpolateLimit int `yaml:"interpolate_limit" envconfig:"IMPUTE_INTERPOLATE_LIMIT" validate:"min=0"`
	BackfillLimit    int `yaml:"backfill_limit" envconfig:"IMPUTE_BACKFILL_LIMIT" validate:"min=0"`
}

// FeaturesConfig parameterizes the derived-feature thresholds.
type FeaturesConfig struct {
	// PostEraYear marks the start of the energy-crisis/high-inflation era
	// dummy and its interactions.
	PostEraYear int `yaml:"post_era_year" envconfig:"FEATURES_POST_ERA_YEAR" validate:"required"`
	// CADeficitThreshold is the current-account balance (pct of GDP) below
	// which the deficit dummy switches on.
	CADeficitThreshold float64 `yaml:"ca_deficit_threshold" envconfig:"FEATURES_CA_DEFICIT_THRESHOLD"`
	// RollingWindow and RollingMinPeriods parameterize the volatility
	// columns: trailing window length and the minimum non-missing
	// observations required to produce a value.
	RollingWindow     int `yaml:"rolling_window" envconfig:"FEATURES_ROLLING_WINDOW" validate:"min=2"`
	RollingMinPeriods int `yaml:"rolling_min_periods" envconfig:"FEATURES_ROLLING_MIN_PERIODS" validate:"min=1"`
}

// Bound is a sanity range for one column. Values outside [Min, Max] are
// treated as probable data-entry errors, not extreme but real observations.
type Bound struct {
	Column string  `yaml:"column" validate:"required"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max" validate:"gtefield=Min"`
}

// QualityConfig parameterizes the quality gate.
type QualityConfig struct {
	Bounds []Bound `yaml:"bounds" validate:"dive"`

	// MissingWarnRatio is the post-imputation missingness ratio above which
	// a column is flagged in the run report.
	MissingWarnRatio float64 `yaml:"missing_warn_ratio" envconfig:"QUALITY_MISSING_WARN_RATIO" validate:"min=0,max=1"`
}

// PeriodBin labels an inclusive year range. Bins must be non-overlapping and
// together cover [StartYear, EndYear].
type PeriodBin struct {
	Label string `yaml:"label" validate:"required"`
	From  int    `yaml:"from" validate:"required"`
	To    int    `yaml:"to" validate:"required,gtefield=From"`
}

// FetchConfig parameterizes the WDI API client.
type FetchConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"FETCH_BASE_URL" validate:"required,url"`
	ChunkYears        int           `yaml:"chunk_years" envconfig:"FETCH_CHUNK_YEARS" validate:"min=1"`
	MaxRetries        int           `yaml:"max_retries" envconfig:"FETCH_MAX_RETRIES" validate:"min=1"`
	RetryDelay        time.Duration `yaml:"retry_delay" envconfig:"FETCH_RETRY_DELAY"`
	RequestTimeout    time.Duration `yaml:"request_timeout" envconfig:"FETCH_REQUEST_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"FETCH_REQUESTS_PER_SECOND" validate:"gt=0"`
	Concurrency       int           `yaml:"concurrency" envconfig:"FETCH_CONCURRENCY" validate:"min=1"`
	CacheTTL          time.Duration `yaml:"cache_ttl" envconfig:"FETCH_CACHE_TTL"`
}

// LoggingConfig mirrors the structured logging setup.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOGGING_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"LOGGING_FORMAT" validate:"oneof=json text"`
	Output string `yaml:"output" envconfig:"LOGGING_OUTPUT" validate:"oneof=stdout stderr file"`
	File   string `yaml:"file" envconfig:"LOGGING_FILE"`
}

// PathsConfig holds file locations for the batch entrypoints.
type PathsConfig struct {
	RawCSV        string `yaml:"raw_csv" envconfig:"PATHS_RAW_CSV"`
	CacheCSV      string `yaml:"cache_csv" envconfig:"PATHS_CACHE_CSV"`
	ProcessedCSV  string `yaml:"processed_csv" envconfig:"PATHS_PROCESSED_CSV"`
	ComparisonCSV string `yaml:"comparison_csv" envconfig:"PATHS_COMPARISON_CSV"`
	ReportXLSX    string `yaml:"report_xlsx" envconfig:"PATHS_REPORT_XLSX"`
}

// Load builds the configuration: code defaults, overlaid by the YAML file at
// path (if path is empty or the file does not exist, defaults stand), then
// environment variable overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural constraints (tags) and domain invariants:
// disjoint classification lists, classified columns that exist in the
// indicator mapping, and period bins that exactly cover the configured span.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	known := make(map[string]struct{}, len(c.Variables.Indicators))
	for _, name := range c.Variables.Indicators {
		if _, dup := known[name]; dup {
			return &Error{Field: "variables.indicators", Reason: fmt.Sprintf("duplicate column name %q", name)}
		}
		known[name] = struct{}{}
	}

	inVolatile := make(map[string]struct{})
	for _, col := range c.Variables.Volatile {
		inVolatile[col] = struct{}{}
	}
	for _, col := range c.Variables.Structural {
		if _, clash := inVolatile[col]; clash {
			return &Error{Field: "variables", Reason: fmt.Sprintf("column %q classified both volatile and structural", col)}
		}
	}

	for _, group := range []struct {
		field string
		cols  []string
	}{
		{"variables.volatile", c.Variables.Volatile},
		{"variables.structural", c.Variables.Structural},
		{"variables.outcomes", c.Variables.Outcomes},
		{"variables.core_evidence", c.Variables.CoreEvidence},
		{"variables.lag_variables", c.Variables.LagVariables},
	} {
		for _, col := range group.cols {
			if _, ok := known[col]; !ok {
				return &Error{Field: group.field, Reason: fmt.Sprintf("column %q is not produced by any configured indicator", col)}
			}
		}
	}

	if err := c.validatePeriods(); err != nil {
		return err
	}

	if c.Features.RollingMinPeriods > c.Features.RollingWindow {
		return &Error{Field: "features.rolling_min_periods", Reason: "cannot exceed rolling_window"}
	}

	if c.Logging.Output == "file" && c.Logging.File == "" {
		return &Error{Field: "logging.file", Reason: "required when logging.output is file"}
	}

	return nil
}

// validatePeriods ensures every year in [StartYear, EndYear] maps to exactly
// one period label.
func (c Config) validatePeriods() error {
	covered := make(map[int]string)
	for _, bin := range c.Periods {
		for y := bin.From; y <= bin.To; y++ {
			if other, ok := covered[y]; ok {
				return &Error{Field: "periods", Reason: fmt.Sprintf("year %d covered by both %q and %q", y, other, bin.Label)}
			}
			covered[y] = bin.Label
		}
	}
	for y := c.StartYear; y <= c.EndYear; y++ {
		if _, ok := covered[y]; !ok {
			return &Error{Field: "periods", Reason: fmt.Sprintf("year %d falls outside all period bins", y)}
		}
	}
	return nil
}

// PeriodFor returns the label for a year, or an Error if the year falls
// outside every configured bin.
func (c Config) PeriodFor(year int) (string, error) {
	for _, bin := range c.Periods {
		if year >= bin.From && year <= bin.To {
			return bin.Label, nil
		}
	}
	return "", &Error{Field: "periods", Reason: fmt.Sprintf("year %d falls outside all period bins", year)}
}
