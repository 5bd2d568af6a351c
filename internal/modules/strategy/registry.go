package strategy

import (
	"github.com/aristath/crucible/internal/apperr"
)

// Kind identifies a strategy. The set is closed; requests naming anything
// else are rejected before a job is created.
type Kind string

const (
	// KindSMC trades break-of-structure setups around swing highs and lows
	KindSMC Kind = "SMC"
	// KindAmplitude fades exhausted range expansions toward a Fibonacci level
	KindAmplitude Kind = "AMPLITUDE"
	// KindMomentum trades EMA crossovers filtered by RSI, with ATR stops
	KindMomentum Kind = "MOMENTUM"
)

// Strategies hold no mutable state, so every lookup returns the same
// instance and concurrent runs share them freely.
var (
	smcInstance       = &SMC{}
	amplitudeInstance = &Amplitude{}
	momentumInstance  = &Momentum{}

	kinds = []Kind{KindSMC, KindAmplitude, KindMomentum}

	instances = map[Kind]Strategy{
		KindSMC:       smcInstance,
		KindAmplitude: amplitudeInstance,
		KindMomentum:  momentumInstance,
	}
)

// Registry resolves strategy kinds to their shared instances
type Registry struct{}

// NewRegistry creates a strategy registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Get returns the strategy for a kind
func (r *Registry) Get(kind Kind) (Strategy, error) {
	s, ok := instances[kind]
	if !ok {
		return nil, apperr.Configuration("unknown strategy %q", kind).
			WithContext("strategy", string(kind))
	}
	return s, nil
}

// List returns all known kinds in declaration order
func (r *Registry) List() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind validates a strategy name
func ParseKind(s string) (Kind, error) {
	if _, ok := instances[Kind(s)]; !ok {
		return "", apperr.Configuration("unknown strategy %q", s).
			WithContext("strategy", s)
	}
	return Kind(s), nil
}
