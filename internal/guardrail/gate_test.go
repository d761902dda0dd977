package guardrail

import (
	"testing"

	"intentminer/internal/validate"
)

func testConfig() Config {
	return Config{MinClusterSize: 2, MinConfidence: 0.6, PrimaryLevelSize: 50}
}

func proposal(slug string, confidence float64) *validate.Proposal {
	return &validate.Proposal{
		Label:       slug,
		Slug:        slug,
		Level:       "secondary",
		Description: "a test intent",
		Confidence:  confidence,
	}
}

func TestAdmitAcceptsGoodProposal(t *testing.T) {
	g := NewGate(testConfig())

	ok, reason := g.Admit(0, 10, []string{"hi"}, proposal("track_order", 0.9))
	if !ok {
		t.Fatalf("expected acceptance, got reason %q", reason)
	}

	accepted := g.Accepted()
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted, got %d", len(accepted))
	}
	if accepted[0].GroupID != 0 || accepted[0].GroupSize != 10 {
		t.Fatalf("group evidence wrong: %+v", accepted[0])
	}
	if accepted[0].Level != "secondary" {
		t.Fatalf("size 10 should be secondary, got %s", accepted[0].Level)
	}
}

func TestAdmitNeverPassesSmallGroups(t *testing.T) {
	g := NewGate(testConfig())

	// Even maximum confidence cannot overrule the size floor.
	ok, reason := g.Admit(1, 1, nil, proposal("tiny", 1.0))
	if ok {
		t.Fatal("single-message group must be rejected")
	}
	if reason != ReasonMinSize {
		t.Fatalf("expected %s, got %s", ReasonMinSize, reason)
	}
	if len(g.Rejections()) != 1 {
		t.Fatalf("rejection not recorded")
	}
}

func TestAdmitRejectsLowConfidence(t *testing.T) {
	g := NewGate(testConfig())
	ok, reason := g.Admit(0, 20, nil, proposal("maybe", 0.59))
	if ok {
		t.Fatal("expected rejection")
	}
	if reason != ReasonLowConfidence {
		t.Fatalf("expected %s, got %s", ReasonLowConfidence, reason)
	}
}

func TestAdmitRejectsEmptySlug(t *testing.T) {
	g := NewGate(testConfig())
	p := proposal("", 0.9)
	ok, reason := g.Admit(0, 20, nil, p)
	if ok {
		t.Fatal("expected rejection")
	}
	if reason != ReasonEmptyName {
		t.Fatalf("expected %s, got %s", ReasonEmptyName, reason)
	}
}

func TestAdmitDuplicateKeepsHigherConfidence(t *testing.T) {
	g := NewGate(testConfig())

	if ok, _ := g.Admit(0, 20, nil, proposal("refund", 0.7)); !ok {
		t.Fatal("first proposal should be accepted")
	}
	if ok, _ := g.Admit(1, 30, nil, proposal("refund", 0.95)); !ok {
		t.Fatal("higher-confidence duplicate should replace the incumbent")
	}

	accepted := g.Accepted()
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted, got %d", len(accepted))
	}
	if accepted[0].GroupID != 1 || accepted[0].Confidence != 0.95 {
		t.Fatalf("winner wrong: %+v", accepted[0])
	}
	if !accepted[0].AmbiguousOverlap {
		t.Fatal("kept proposal must carry the ambiguous_overlap flag")
	}

	rejections := g.Rejections()
	if len(rejections) != 1 || rejections[0].Reason != ReasonSupersededDuplicate {
		t.Fatalf("superseded incumbent not recorded: %+v", rejections)
	}
	if rejections[0].GroupID != 0 {
		t.Fatalf("wrong group recorded as superseded: %+v", rejections[0])
	}
}

func TestAdmitDuplicateLowerConfidenceLoses(t *testing.T) {
	g := NewGate(testConfig())

	g.Admit(0, 20, nil, proposal("refund", 0.9))
	ok, reason := g.Admit(1, 20, nil, proposal("refund", 0.7))
	if ok {
		t.Fatal("lower-confidence duplicate must lose")
	}
	if reason != ReasonSupersededDuplicate {
		t.Fatalf("expected %s, got %s", ReasonSupersededDuplicate, reason)
	}

	accepted := g.Accepted()
	if accepted[0].GroupID != 0 {
		t.Fatalf("incumbent should survive: %+v", accepted[0])
	}
	if !accepted[0].AmbiguousOverlap {
		t.Fatal("incumbent must be flagged ambiguous_overlap after the collision")
	}
}

func TestAdmitDerivesPrimaryLevelFromSize(t *testing.T) {
	g := NewGate(testConfig())

	g.Admit(0, 80, nil, proposal("big_intent", 0.9))
	accepted := g.Accepted()
	if accepted[0].Level != "primary" {
		t.Fatalf("size 80 should be primary, got %s", accepted[0].Level)
	}
	// The model claimed secondary; the disagreement surfaces as a warning.
	if len(accepted[0].Warnings) == 0 {
		t.Fatal("expected a level-disagreement warning")
	}
}

func TestAccountingEveryDecisionLandsSomewhere(t *testing.T) {
	g := NewGate(testConfig())

	g.Admit(0, 20, nil, proposal("a", 0.9))
	g.Admit(1, 1, nil, proposal("b", 0.9))
	g.Admit(2, 20, nil, proposal("a", 0.95))
	g.Admit(3, 20, nil, proposal("c", 0.1))

	// 4 decisions: slug "a" kept once (group 2), groups 1, 0, and 3 rejected.
	if got := len(g.Accepted()); got != 1 {
		t.Fatalf("expected 1 accepted, got %d", got)
	}
	if got := len(g.Rejections()); got != 3 {
		t.Fatalf("expected 3 rejections, got %d", got)
	}
}
