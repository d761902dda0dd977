package propose

import (
	"context"
	"fmt"

	"intentminer/internal/cluster"
	"intentminer/internal/logging"
)

// RawProposal is the untrusted reasoning output for one group, paired with
// the group context the validator and guardrail need downstream.
type RawProposal struct {
	GroupID int
	Size    int
	Samples []string
	Raw     string
}

// Proposer names groups through a Completer.
type Proposer struct {
	completer Completer
	sampleCap int
}

// NewProposer creates a Proposer. sampleCap bounds how many messages from a
// group are shown to the model.
func NewProposer(completer Completer, sampleCap int) *Proposer {
	return &Proposer{completer: completer, sampleCap: sampleCap}
}

// Propose makes exactly one reasoning call for the group and returns the raw
// response. texts must be indexed by message index (the full normalized
// corpus). A *ServiceError means the group should be skipped, not the run.
func (p *Proposer) Propose(ctx context.Context, group cluster.Group, texts []string) (*RawProposal, error) {
	picks := SelectSamples(group.Members, p.sampleCap)
	samples := make([]string, 0, len(picks))
	for _, idx := range picks {
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("group %d references message %d outside corpus of %d", group.ID, idx, len(texts))
		}
		samples = append(samples, texts[idx])
	}

	logging.Propose("group %d: proposing from %d samples (size=%d)", group.ID, len(samples), group.Size())

	raw, err := p.completer.Complete(ctx, BuildPrompt(samples))
	if err != nil {
		return nil, err
	}

	return &RawProposal{
		GroupID: group.ID,
		Size:    group.Size(),
		Samples: samples,
		Raw:     raw,
	}, nil
}
