// Package npadomain is a thin fixpoint-driver stub over internal/semiring
// and internal/npaconfig. The NPA (numeric/pointer abstract
// interpretation) sub-module itself — widening strategies, memory models,
// fragment decomposition — is explicitly out of core scope (spec.md §1);
// this package exists only so a config file can be bound to a solver
// shape without the core committing to implementing one.
//
// Open Question (spec §9, #3 — incremental SMT/NPA caching vs
// cancellation) is intentionally left unresolved here: whether a real NPA
// implementation would need its own incremental cache invalidated by the
// same context.Context cancellation the rest of the core uses is a
// decision for whoever eventually builds that sub-module, not this
// contract stub.
package npadomain

import (
	"lotus/internal/npaconfig"
	"lotus/internal/semiring"
)

// Driver pairs a Semiring[T] with the config that selects its widening
// behavior. Driver has no solving method; NewDriver only validates the
// config — see the package doc comment.
type Driver[T any] struct {
	Ring   semiring.Semiring[T]
	Config *npaconfig.Config
}

// NewDriver validates cfg against the variants this stub understands and
// returns a Driver bound to ring.
func NewDriver[T any](ring semiring.Semiring[T], cfg *npaconfig.Config) (*Driver[T], error) {
	switch cfg.AnalyzerVariant {
	case npaconfig.UnilateralAnalyzer, npaconfig.BilateralAnalyzer, "":
	default:
		return nil, &UnsupportedVariantError{Variant: cfg.AnalyzerVariant}
	}
	return &Driver[T]{Ring: ring, Config: cfg}, nil
}

// UnsupportedVariantError is returned when a config names an analyzer
// variant this contract stub doesn't recognize.
type UnsupportedVariantError struct {
	Variant npaconfig.AnalyzerVariant
}

func (e *UnsupportedVariantError) Error() string {
	return "npadomain: unsupported analyzer variant: " + string(e.Variant)
}
