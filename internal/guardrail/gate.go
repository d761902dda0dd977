// Package guardrail applies the hard admission policies — group size,
// confidence, naming — that decide whether a validated proposal is promoted
// into the final suggestion set.
package guardrail

import (
	"fmt"

	"intentminer/internal/logging"
	"intentminer/internal/validate"
)

// Rejection reasons, machine-readable.
const (
	ReasonMinSize             = "min_size"
	ReasonLowConfidence       = "low_confidence"
	ReasonEmptyName           = "empty_name"
	ReasonSupersededDuplicate = "superseded_duplicate"
)

// Config holds the admission thresholds.
type Config struct {
	MinClusterSize   int     // groups below this size never pass
	MinConfidence    float64 // proposals below this confidence never pass
	PrimaryLevelSize int     // group size at which an intent counts as primary
}

// Accepted is a promoted proposal with its group evidence attached.
type Accepted struct {
	validate.Proposal
	GroupID          int      `json:"group_id"`
	GroupSize        int      `json:"group_size"`
	Samples          []string `json:"samples,omitempty"`
	AmbiguousOverlap bool     `json:"ambiguous_overlap,omitempty"`
}

// Rejection records a refused proposal with its rule for the audit trail.
type Rejection struct {
	GroupID    int      `json:"group_id"`
	GroupSize  int      `json:"group_size"`
	Slug       string   `json:"slug,omitempty"`
	Reason     string   `json:"reason"`
	Detail     string   `json:"detail,omitempty"`
	Confidence float64  `json:"confidence"`
	Samples    []string `json:"samples,omitempty"`
}

// Gate accumulates one run's admission decisions. Not safe for concurrent
// use: the pipeline's collector feeds it sequentially after the parallel
// per-group work completes.
type Gate struct {
	cfg        Config
	bySlug     map[string]*Accepted
	order      []string // slugs in acceptance order
	rejections []Rejection
}

// NewGate creates a Gate for one run.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg, bySlug: make(map[string]*Accepted)}
}

// Admit applies every policy to the proposal. All must pass: group size at
// or above the minimum, confidence at or above the threshold, non-empty
// slug, and no duplicate of an already-accepted slug. A duplicate keeps the
// higher-confidence proposal, flags it ambiguous_overlap, and records the
// loser as superseded rather than silently dropping it.
//
// Returns whether the proposal was accepted and, if not, the rejection
// reason.
func (g *Gate) Admit(groupID, size int, samples []string, p *validate.Proposal) (bool, string) {
	reject := func(reason, detail string) (bool, string) {
		logging.Guardrail("group %d rejected: %s (%s)", groupID, reason, detail)
		g.rejections = append(g.rejections, Rejection{
			GroupID:    groupID,
			GroupSize:  size,
			Slug:       p.Slug,
			Reason:     reason,
			Detail:     detail,
			Confidence: p.Confidence,
			Samples:    samples,
		})
		return false, reason
	}

	if size < g.cfg.MinClusterSize {
		return reject(ReasonMinSize, fmt.Sprintf("size %d below minimum %d", size, g.cfg.MinClusterSize))
	}
	if p.Confidence < g.cfg.MinConfidence {
		return reject(ReasonLowConfidence, fmt.Sprintf("confidence %.2f below threshold %.2f", p.Confidence, g.cfg.MinConfidence))
	}
	if p.Slug == "" {
		return reject(ReasonEmptyName, "proposal has no usable slug")
	}

	candidate := &Accepted{
		Proposal:  *p,
		GroupID:   groupID,
		GroupSize: size,
		Samples:   samples,
	}
	candidate.Level = deriveLevel(p, size, g.cfg.PrimaryLevelSize, candidate)

	incumbent, dup := g.bySlug[p.Slug]
	if !dup {
		g.bySlug[p.Slug] = candidate
		g.order = append(g.order, p.Slug)
		logging.Guardrail("group %d accepted as %q (level=%s confidence=%.2f)",
			groupID, p.Slug, candidate.Level, p.Confidence)
		return true, ""
	}

	// Duplicate slug inside one run: the higher-confidence proposal wins
	// and carries the overlap flag as evidence of the collision.
	if candidate.Confidence > incumbent.Confidence {
		g.bySlug[p.Slug] = candidate
		candidate.AmbiguousOverlap = true
		g.rejections = append(g.rejections, Rejection{
			GroupID:    incumbent.GroupID,
			GroupSize:  incumbent.GroupSize,
			Slug:       incumbent.Slug,
			Reason:     ReasonSupersededDuplicate,
			Detail:     fmt.Sprintf("superseded by group %d at confidence %.2f", groupID, candidate.Confidence),
			Confidence: incumbent.Confidence,
			Samples:    incumbent.Samples,
		})
		logging.Guardrail("group %d replaced group %d for slug %q", groupID, incumbent.GroupID, p.Slug)
		return true, ""
	}

	incumbent.AmbiguousOverlap = true
	return reject(ReasonSupersededDuplicate,
		fmt.Sprintf("slug already held by group %d at confidence %.2f", incumbent.GroupID, incumbent.Confidence))
}

// deriveLevel sizes the intent level: big groups are primary, the rest
// secondary. A disagreement with the model's own level claim is kept as a
// warning instead of being discarded.
func deriveLevel(p *validate.Proposal, size, primarySize int, acc *Accepted) string {
	level := "secondary"
	if primarySize > 0 && size >= primarySize {
		level = "primary"
	}
	if p.Level != "" && p.Level != level {
		acc.Warnings = append(acc.Warnings,
			fmt.Sprintf("model claimed level %s, derived %s from group size %d", p.Level, level, size))
	}
	return level
}

// Accepted returns promoted proposals in acceptance order.
func (g *Gate) Accepted() []Accepted {
	out := make([]Accepted, 0, len(g.order))
	for _, slug := range g.order {
		out = append(out, *g.bySlug[slug])
	}
	return out
}

// Rejections returns every refused proposal with its reason.
func (g *Gate) Rejections() []Rejection {
	out := make([]Rejection, len(g.rejections))
	copy(out, g.rejections)
	return out
}
