package optimization

import (
	"math"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/modules/strategy"
)

// axis is one enumerable dimension with its ordered candidate values
type axis struct {
	name   string
	values []interface{}
}

// Enumerator addresses every combination of the search space by index
// without materializing it. Strategy is the outermost dimension in request
// order; enabled parameters nest in declaration order with the first
// declared varying slowest. The mapping from index to assignment is pure,
// so re-enumerating the same request reproduces the same sequence.
type Enumerator struct {
	strategies  []strategy.Kind
	axes        []axis
	strides     []int
	pinned      strategy.Params
	perStrategy int
}

// NewEnumerator validates the axes and builds the index mapping
func NewEnumerator(strategies []strategy.Kind, defs []strategy.ParameterDef) (*Enumerator, error) {
	if len(strategies) == 0 {
		return nil, apperr.Configuration("at least one strategy must be selected")
	}
	for _, kind := range strategies {
		if _, err := strategy.ParseKind(string(kind)); err != nil {
			return nil, err
		}
	}

	pinned := strategy.Params{}
	var axes []axis
	for _, def := range defs {
		if !def.Enabled {
			if def.Default != nil {
				pinned[def.Name] = def.Default
			}
			continue
		}
		values, err := axisValues(def)
		if err != nil {
			return nil, err
		}
		axes = append(axes, axis{name: def.Name, values: values})
	}

	perStrategy := 1
	strides := make([]int, len(axes))
	for i := len(axes) - 1; i >= 0; i-- {
		strides[i] = perStrategy
		perStrategy *= len(axes[i].values)
	}

	return &Enumerator{
		strategies:  strategies,
		axes:        axes,
		strides:     strides,
		pinned:      pinned,
		perStrategy: perStrategy,
	}, nil
}

// Count returns the total number of combinations: the product of enabled
// axis sizes times the number of strategies.
func (e *Enumerator) Count() int {
	return e.perStrategy * len(e.strategies)
}

// TotalBatches returns how many batches of the given size cover the space
func (e *Enumerator) TotalBatches(batchSize int) int {
	return (e.Count() + batchSize - 1) / batchSize
}

// At materializes combination i. Valid for 0 <= i < Count().
func (e *Enumerator) At(i int) (strategy.Kind, strategy.Params) {
	kind := e.strategies[i/e.perStrategy]
	rem := i % e.perStrategy

	params := make(strategy.Params, len(e.pinned)+len(e.axes))
	for name, value := range e.pinned {
		params[name] = value
	}
	for ai, ax := range e.axes {
		idx := (rem / e.strides[ai]) % len(ax.values)
		params[ax.name] = ax.values[idx]
	}
	return kind, params
}

// axisValues expands one enabled definition into its ordered value list
func axisValues(def strategy.ParameterDef) ([]interface{}, error) {
	switch def.Type {
	case strategy.ParamNumber:
		if def.Step <= 0 {
			return nil, apperr.Configuration("parameter %s has non-positive step", def.Name).
				WithContext("step", def.Step)
		}
		if def.Max < def.Min {
			return nil, apperr.Configuration("parameter %s has max below min", def.Name).
				WithContext("min", def.Min).
				WithContext("max", def.Max)
		}
		// The epsilon keeps float rounding from inventing an extra step when
		// (max-min)/step lands on an integer.
		count := int(math.Ceil((def.Max-def.Min)/def.Step-1e-9)) + 1
		values := make([]interface{}, 0, count)
		for i := 0; i < count; i++ {
			v := def.Min + float64(i)*def.Step
			if v > def.Max {
				v = def.Max
			}
			values = append(values, v)
		}
		return values, nil

	case strategy.ParamBoolean:
		return []interface{}{false, true}, nil

	case strategy.ParamSelect:
		if len(def.Options) == 0 {
			return nil, apperr.Configuration("select parameter %s has no options", def.Name)
		}
		values := make([]interface{}, 0, len(def.Options))
		for _, option := range def.Options {
			values = append(values, option)
		}
		return values, nil

	default:
		return nil, apperr.Configuration("parameter %s has unknown type %q", def.Name, def.Type)
	}
}
