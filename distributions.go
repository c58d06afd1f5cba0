// -*- tab-width:2 -*-

package sim

// This file has the inter-packet gap models a Source can use.

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// ModelCdf is an inverse CDF: given a probability p in (0, 1) it
// returns the value z with P(Z <= z) = p.  It should be >= 0 for all p.
type ModelCdf func(p float64) float64

// GapModel names how a Source spaces its packets around the mean
// gap given by its rate.
type GapModel int

// Gap models.
const (
	GapConstant GapModel = iota
	GapUniform
	GapExponential
	GapPareto
)

const paretoShape = 1.5

func (m GapModel) String() string {
	switch m {
	case GapConstant:
		return "const"
	case GapUniform:
		return "uniform"
	case GapExponential:
		return "expon"
	case GapPareto:
		return "pareto"
	}

	return fmt.Sprintf("gap-model-%d", int(m))
}

// ParseGapModel accepts a model name; empty means constant.
func ParseGapModel(s string) (GapModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "const", "constant":
		return GapConstant, nil
	case "uniform":
		return GapUniform, nil
	case "expon", "exp", "exponential":
		return GapExponential, nil
	case "pareto":
		return GapPareto, nil
	}

	return 0, fmt.Errorf("unknown gap model %q", s)
}

// Quantile returns the model's inverse CDF for gaps with the given
// mean (seconds).
func (m GapModel) Quantile(mean float64) ModelCdf {
	switch m {
	case GapUniform:
		return UniformCDF(0, 2*mean) //nolint:mnd
	case GapExponential:
		return ExponentialCDF(mean)
	case GapPareto:
		// scale chosen so the mean is preserved
		return ParetoCDF(mean*(paretoShape-1)/paretoShape, paretoShape)
	case GapConstant:
	}

	return func(float64) float64 { return mean }
}

// UniformCDF returns the inverse CDF of a uniform random variable over [a, b].
func UniformCDF(a, b float64) ModelCdf {
	return func(p float64) float64 {
		if p < 0 {
			return a
		}

		if p > 1 {
			return b
		}

		return a + p*(b-a) // Linear interpolation between a and b
	}
}

// ExponentialCDF returns the inverse CDF of an exponential random
// variable with the given mean.
func ExponentialCDF(mean float64) ModelCdf {
	e := distuv.Exponential{Rate: 1 / mean}

	return clamped(e.Quantile)
}

// ParetoCDF returns the inverse CDF of a Pareto distribution with scale xm and shape alpha.
func ParetoCDF(xm, alpha float64) ModelCdf {
	pareto := distuv.Pareto{
		Xm:    xm,
		Alpha: alpha,
	}

	return clamped(pareto.Quantile)
}

// clamped keeps p inside [0, 1], which distuv panics outside of.
func clamped(q func(float64) float64) ModelCdf {
	return func(p float64) float64 {
		switch {
		case p < 0:
			p = 0
		case p > 1:
			p = 1
		}

		return q(p)
	}
}
