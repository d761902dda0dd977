// Package pipeline orchestrates a discovery run: embed the corpus, select a
// partition, then name, validate, and gate each candidate group through a
// bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"intentminer/internal/cluster"
	"intentminer/internal/embedding"
	"intentminer/internal/guardrail"
	"intentminer/internal/ingest"
	"intentminer/internal/logging"
	"intentminer/internal/propose"
	"intentminer/internal/validate"
)

// Options carries the run-level knobs the orchestrator needs.
type Options struct {
	Workers    int
	RunTimeout time.Duration
	SortBy     string // "group" or "confidence"
	OutputDir  string // when set, artifacts are written here
	Guardrail  guardrail.Config
}

// Runner wires the stages of a discovery run.
type Runner struct {
	space    *embedding.Space
	selector *cluster.Selector
	proposer *propose.Proposer
	opts     Options
}

// NewRunner assembles a Runner from its stages.
func NewRunner(space *embedding.Space, selector *cluster.Selector, proposer *propose.Proposer, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{space: space, selector: selector, proposer: proposer, opts: opts}
}

// GroupError records a group that could not be carried to a gate decision.
type GroupError struct {
	GroupID   int    `json:"group_id"`
	GroupSize int    `json:"group_size"`
	Stage     string `json:"stage"`  // "reasoning" or "validation"
	Reason    string `json:"reason"` // validation reason tag or error text
}

// Summary is the run's closing account. Accepted + Rejected + Errored always
// equals Candidates.
type Summary struct {
	Messages   int `json:"messages"`
	Candidates int `json:"candidates"`
	Proposed   int `json:"proposed"`
	Accepted   int `json:"accepted"`
	Rejected   int `json:"rejected"`
	Errored    int `json:"errored"`
}

// Report is the full outcome of one discovery run.
type Report struct {
	RunID       string                `json:"run_id"`
	StartedAt   time.Time             `json:"started_at"`
	Duration    time.Duration         `json:"duration"`
	Partial     bool                  `json:"partial"`
	Degenerate  bool                  `json:"degenerate"`
	K           int                   `json:"k"`
	Silhouette  float64               `json:"silhouette"`
	Suggestions []guardrail.Accepted  `json:"suggestions"`
	Rejections  []guardrail.Rejection `json:"rejections,omitempty"`
	Errors      []GroupError          `json:"errors,omitempty"`
	Summary     Summary               `json:"summary"`
}

// groupOutcome is one worker's result, sent to the collector.
type groupOutcome struct {
	group    cluster.Group
	samples  []string
	proposal *validate.Proposal
	failed   *validate.Result // set when validation rejected the response
	err      error            // set when the reasoning call failed
}

// Run executes the full discovery flow over the messages. Per-group
// failures never abort the run; an embedding failure does.
func (r *Runner) Run(ctx context.Context, messages []ingest.Message) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	report.Summary.Messages = len(messages)

	if len(messages) == 0 {
		return nil, fmt.Errorf("pipeline: no messages to process")
	}

	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategoryPipeline, fmt.Sprintf("run %s", report.RunID))
	logging.Pipeline("run %s: %d messages, %d workers", report.RunID, len(messages), r.opts.Workers)

	texts := ingest.NormalizedTexts(messages)

	vectors, err := r.space.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", report.RunID, err)
	}

	partition, err := r.selector.Select(vectors)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", report.RunID, err)
	}
	report.K = partition.K
	report.Silhouette = partition.Score
	report.Degenerate = partition.Degenerate

	groups := partition.Groups()
	report.Summary.Candidates = len(groups)

	// Dump the raw partition before any reasoning so a failed run still
	// leaves the clustering evidence behind.
	if r.opts.OutputDir != "" {
		if err := WriteClusterDump(r.opts.OutputDir, groups, texts); err != nil {
			logging.Get(logging.CategoryPipeline).Warn("cluster dump failed: %v", err)
		}
	}
	logging.Pipeline("run %s: k=%d silhouette=%.4f degenerate=%v", report.RunID, partition.K, partition.Score, partition.Degenerate)

	gate := guardrail.NewGate(r.opts.Guardrail)

	// Small groups never reach the reasoning service; they become size
	// rejections up front.
	viable := make([]cluster.Group, 0, len(groups))
	sizeSkips := make([]guardrail.Rejection, 0)
	for _, g := range groups {
		if g.Size() < r.opts.Guardrail.MinClusterSize {
			sizeSkips = append(sizeSkips, guardrail.Rejection{
				GroupID:   g.ID,
				GroupSize: g.Size(),
				Reason:    guardrail.ReasonMinSize,
				Detail:    fmt.Sprintf("size %d below minimum %d", g.Size(), r.opts.Guardrail.MinClusterSize),
				Samples:   sampleTexts(g, texts, 3),
			})
			continue
		}
		viable = append(viable, g)
	}

	// Per-group work is independent: bounded pool, results merged through a
	// channel by a single collector, never a shared list.
	outcomes := make(chan groupOutcome, len(viable))
	eg, groupCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.Workers)

	for _, g := range viable {
		g := g
		eg.Go(func() error {
			outcomes <- r.processGroup(groupCtx, g, texts)
			return nil
		})
	}

	collected := make([]groupOutcome, 0, len(viable))
	done := make(chan struct{})
	go func() {
		for o := range outcomes {
			collected = append(collected, o)
		}
		close(done)
	}()

	_ = eg.Wait() // workers never return errors; Wait just joins them
	close(outcomes)
	<-done

	// Gate decisions must not depend on completion timing, so outcomes are
	// replayed in group order.
	sort.Slice(collected, func(i, j int) bool { return collected[i].group.ID < collected[j].group.ID })

	for _, o := range collected {
		switch {
		case o.err != nil:
			if errors.Is(o.err, context.DeadlineExceeded) || errors.Is(o.err, context.Canceled) {
				report.Partial = true
			}
			report.Errors = append(report.Errors, GroupError{
				GroupID:   o.group.ID,
				GroupSize: o.group.Size(),
				Stage:     "reasoning",
				Reason:    o.err.Error(),
			})
		case o.failed != nil:
			report.Errors = append(report.Errors, GroupError{
				GroupID:   o.group.ID,
				GroupSize: o.group.Size(),
				Stage:     "validation",
				Reason:    fmt.Sprintf("%s: %s", o.failed.Reason, o.failed.Detail),
			})
		default:
			report.Summary.Proposed++
			gate.Admit(o.group.ID, o.group.Size(), o.samples, o.proposal)
		}
	}

	report.Suggestions = sortSuggestions(gate.Accepted(), r.opts.SortBy)
	report.Rejections = append(sizeSkips, gate.Rejections()...)

	report.Summary.Accepted = len(report.Suggestions)
	report.Summary.Rejected = len(report.Rejections)
	report.Summary.Errored = len(report.Errors)
	report.Duration = time.Since(report.StartedAt)

	logging.Pipeline("run %s: candidates=%d proposed=%d accepted=%d rejected=%d errored=%d partial=%v",
		report.RunID, report.Summary.Candidates, report.Summary.Proposed,
		report.Summary.Accepted, report.Summary.Rejected, report.Summary.Errored, report.Partial)
	timer.StopWithInfo()

	return report, nil
}

// processGroup runs the propose -> validate chain for one group.
func (r *Runner) processGroup(ctx context.Context, g cluster.Group, texts []string) groupOutcome {
	out := groupOutcome{group: g}

	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}

	raw, err := r.proposer.Propose(ctx, g, texts)
	if err != nil {
		out.err = err
		return out
	}
	out.samples = raw.Samples

	res := validate.Validate(raw.Raw)
	if !res.OK {
		out.failed = &res
		return out
	}
	out.proposal = res.Proposal
	return out
}

// sortSuggestions orders the final list deterministically: by group id, or
// by descending confidence with group id as the tie-break.
func sortSuggestions(accepted []guardrail.Accepted, sortBy string) []guardrail.Accepted {
	switch sortBy {
	case "group":
		sort.Slice(accepted, func(i, j int) bool { return accepted[i].GroupID < accepted[j].GroupID })
	default: // "confidence"
		sort.Slice(accepted, func(i, j int) bool {
			if accepted[i].Confidence != accepted[j].Confidence {
				return accepted[i].Confidence > accepted[j].Confidence
			}
			return accepted[i].GroupID < accepted[j].GroupID
		})
	}
	return accepted
}

func sampleTexts(g cluster.Group, texts []string, limit int) []string {
	out := make([]string, 0, limit)
	for _, idx := range g.Members {
		if len(out) == limit {
			break
		}
		if idx >= 0 && idx < len(texts) {
			out = append(out, texts[idx])
		}
	}
	return out
}
