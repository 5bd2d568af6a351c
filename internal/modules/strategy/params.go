package strategy

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aristath/crucible/internal/apperr"
)

// ParamType classifies an optimizable parameter
type ParamType string

const (
	// ParamNumber is a numeric parameter with min/max/step constraints
	ParamNumber ParamType = "number"
	// ParamBoolean is a flag enumerated as {false, true}
	ParamBoolean ParamType = "boolean"
	// ParamSelect is a choice from a fixed option list
	ParamSelect ParamType = "select"
)

// ParameterDef describes one optimizable parameter of a strategy. Declaration
// order matters: the enumerator varies the first declared parameter slowest
// and the last declared fastest. A disabled definition is pinned to its
// default value instead of contributing a search axis.
type ParameterDef struct {
	Name        string      `yaml:"name" json:"name"`
	Type        ParamType   `yaml:"type" json:"type"`
	Min         float64     `yaml:"min,omitempty" json:"min"`
	Max         float64     `yaml:"max,omitempty" json:"max"`
	Step        float64     `yaml:"step,omitempty" json:"step"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Options     []string    `yaml:"options,omitempty" json:"options,omitempty"`
	Enabled     bool        `yaml:"enabled" json:"enabled"`
	Category    string      `yaml:"category,omitempty" json:"category,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// StrategyParameters pairs a strategy with its ordered parameter definitions
type StrategyParameters struct {
	Strategy   Kind           `yaml:"strategy" json:"strategy"`
	Parameters []ParameterDef `yaml:"parameters" json:"parameters"`
}

// Definitions is the full optimizable-parameter catalog
type Definitions struct {
	Strategies []StrategyParameters `yaml:"strategies" json:"strategies"`
}

// ForStrategy returns the ordered definitions for one strategy, or nil
func (d *Definitions) ForStrategy(kind Kind) []ParameterDef {
	for _, sp := range d.Strategies {
		if sp.Strategy == kind {
			return sp.Parameters
		}
	}
	return nil
}

// Defaults returns the default parameter assignment for one strategy
func (d *Definitions) Defaults(kind Kind) Params {
	params := Params{}
	for _, def := range d.ForStrategy(kind) {
		if def.Default != nil {
			params[def.Name] = def.Default
		}
	}
	return params
}

// DefaultDefinitions returns the compiled-in parameter catalog. A YAML file
// can replace it wholesale; there is no per-field merging.
func DefaultDefinitions() *Definitions {
	return &Definitions{
		Strategies: []StrategyParameters{
			{
				Strategy: KindSMC,
				Parameters: []ParameterDef{
					{Name: "swingLookback", Type: ParamNumber, Min: 3, Max: 15, Step: 1, Default: 5,
						Enabled: true, Category: "entry",
						Description: "Candles on each side of a swing point"},
					{Name: "riskReward", Type: ParamNumber, Min: 1.0, Max: 4.0, Step: 0.5, Default: 2.0,
						Enabled: true, Category: "risk",
						Description: "Take-profit distance as a multiple of risk"},
					{Name: "minRangePips", Type: ParamNumber, Min: 10, Max: 100, Step: 10, Default: 30,
						Enabled: true, Category: "filter",
						Description: "Minimum swing range before a break is tradeable"},
				},
			},
			{
				Strategy: KindAmplitude,
				Parameters: []ParameterDef{
					{Name: "amplitudeWindow", Type: ParamNumber, Min: 10, Max: 40, Step: 5, Default: 20,
						Enabled: true, Category: "entry",
						Description: "Candles in the rolling amplitude window"},
					{Name: "fibLevel", Type: ParamSelect, Options: []string{"0.382", "0.500", "0.618", "0.786"}, Default: "0.618",
						Enabled: true, Category: "entry",
						Description: "Retracement level targeted by the fade"},
					{Name: "triggerPips", Type: ParamNumber, Min: 5, Max: 50, Step: 5, Default: 15,
						Enabled: true, Category: "risk",
						Description: "Stop distance beyond the range extreme"},
				},
			},
			{
				Strategy: KindMomentum,
				Parameters: []ParameterDef{
					{Name: "emaFast", Type: ParamNumber, Min: 5, Max: 20, Step: 5, Default: 10,
						Enabled: true, Category: "entry",
						Description: "Fast EMA period"},
					{Name: "emaSlow", Type: ParamNumber, Min: 20, Max: 60, Step: 10, Default: 30,
						Enabled: true, Category: "entry",
						Description: "Slow EMA period"},
					{Name: "rsiPeriod", Type: ParamNumber, Min: 7, Max: 21, Step: 7, Default: 14,
						Enabled: true, Category: "filter",
						Description: "RSI filter period"},
					{Name: "atrMultiplier", Type: ParamNumber, Min: 1.0, Max: 3.0, Step: 0.5, Default: 2.0,
						Enabled: true, Category: "risk",
						Description: "Stop distance as a multiple of ATR"},
					{Name: "longOnly", Type: ParamBoolean, Default: false,
						Enabled: true, Category: "filter",
						Description: "Suppress short signals"},
				},
			},
		},
	}
}

// LoadDefinitions reads the parameter catalog from a YAML file. A missing
// file falls back to the compiled-in defaults; a malformed or inconsistent
// file is a configuration error.
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDefinitions(), nil
		}
		return nil, err
	}

	defs := &Definitions{}
	if err := yaml.Unmarshal(data, defs); err != nil {
		return nil, apperr.Configuration("malformed parameters file: %v", err).
			WithContext("path", path)
	}

	if err := defs.validate(); err != nil {
		return nil, err
	}

	return defs, nil
}

func (d *Definitions) validate() error {
	for _, sp := range d.Strategies {
		if _, err := ParseKind(string(sp.Strategy)); err != nil {
			return err
		}
		for _, def := range sp.Parameters {
			if def.Name == "" {
				return apperr.Configuration("parameter without a name under strategy %s", sp.Strategy)
			}
			switch def.Type {
			case ParamNumber:
				if def.Step <= 0 {
					return apperr.Configuration("parameter %s has non-positive step", def.Name).
						WithContext("strategy", string(sp.Strategy)).
						WithContext("step", def.Step)
				}
				if def.Max < def.Min {
					return apperr.Configuration("parameter %s has max below min", def.Name).
						WithContext("strategy", string(sp.Strategy)).
						WithContext("min", def.Min).
						WithContext("max", def.Max)
				}
			case ParamBoolean:
				// No constraints
			case ParamSelect:
				if len(def.Options) == 0 {
					return apperr.Configuration("select parameter %s has no options", def.Name).
						WithContext("strategy", string(sp.Strategy))
				}
			default:
				return apperr.Configuration("parameter %s has unknown type %q", def.Name, def.Type).
					WithContext("strategy", string(sp.Strategy))
			}
		}
	}
	return nil
}
