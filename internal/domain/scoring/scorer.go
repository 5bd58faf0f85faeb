// Package scoring computes Contract-Net-style bids for tool candidates.
package scoring

import (
	"math"

	"caprouter/internal/domain/registry"
)

// Weights are the linear coefficients of the scoring formula. The zero value
// is not valid; use DefaultWeights.
type Weights struct {
	Fit    float64
	SLA    float64
	Reward float64
	Cost   float64
}

// DefaultWeights are the formula's placeholder coefficients.
func DefaultWeights() Weights {
	return Weights{Fit: 0.45, SLA: 0.25, Reward: 0.15, Cost: 0.15}
}

const (
	defaultP95Ms = 3000.0
	slaCapMs     = 5000.0
	neutralReward = 0.5
)

// Context carries the request-scoped inputs a Scorer may condition on.
type Context struct {
	Tenant     string
	Capability string
	Input      map[string]any
}

// RewardFunc computes the pluggable reward term for a tool. A nil RewardFunc
// is equivalent to a neutral 0.5 placeholder.
type RewardFunc func(tool registry.Tool, ctx Context) float64

// Scorer maps a (tool, context) pair to a scalar bid.
type Scorer interface {
	Score(tool registry.Tool, ctx Context) float64
}

// LinearScorer implements the formula s = wFit*fit + wSla*sla + wReward*reward - wCost*cost.
type LinearScorer struct {
	weights Weights
	reward  RewardFunc
}

// Option configures a LinearScorer.
type Option func(*LinearScorer)

// WithWeights overrides the default coefficients.
func WithWeights(w Weights) Option {
	return func(s *LinearScorer) { s.weights = w }
}

// WithRewardFunc overrides the neutral reward placeholder with a pluggable
// term, e.g. a per-tenant CEL expression (see adapter/outbound/cel).
func WithRewardFunc(f RewardFunc) Option {
	return func(s *LinearScorer) { s.reward = f }
}

// NewLinearScorer builds a LinearScorer with default weights and a neutral
// reward term unless overridden by opts.
func NewLinearScorer(opts ...Option) *LinearScorer {
	s := &LinearScorer{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the candidate's bid. Non-finite results surface as -Inf so
// callers can sort such tools last without special-casing NaN.
func (s *LinearScorer) Score(tool registry.Tool, ctx Context) float64 {
	fit := 1.0 // capability gate is upstream of scoring; every candidate fits.

	p95 := defaultP95Ms
	if tool.SLA != nil && tool.SLA.P95Ms > 0 {
		p95 = float64(tool.SLA.P95Ms)
	}
	sla := clamp01(1 - math.Min(p95, slaCapMs)/slaCapMs)

	reward := neutralReward
	if s.reward != nil {
		reward = s.reward(tool, ctx)
	}

	cost := 0.0
	if tool.CostEstimate != nil {
		cost = *tool.CostEstimate
	}

	score := s.weights.Fit*fit + s.weights.SLA*sla + s.weights.Reward*reward - s.weights.Cost*cost
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return math.Inf(-1)
	}
	return score
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Compile-time interface verification.
var _ Scorer = (*LinearScorer)(nil)
