package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"intentminer/internal/cluster"
	"intentminer/internal/embedding"
	"intentminer/internal/guardrail"
	"intentminer/internal/ingest"
	"intentminer/internal/propose"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// opencensus starts this worker in a package init via transitive
		// dependencies; it is not started by the code under test.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// stubEngine maps known texts to fixed vectors so the clustering outcome is
// controlled entirely by the test.
type stubEngine struct {
	vectors map[string][]float32
}

func (s *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	return v, nil
}

func (s *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *stubEngine) Dimensions() int { return 3 }
func (s *stubEngine) Name() string    { return "stub" }

// stubCompleter answers based on which sample messages appear in the prompt.
type stubCompleter struct {
	responses map[string]string // substring of prompt -> response
	failOn    string            // substring of prompt that triggers an error
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	if s.failOn != "" && strings.Contains(prompt, s.failOn) {
		return "", &propose.ServiceError{Err: errors.New("stubbed outage")}
	}
	for marker, resp := range s.responses {
		if strings.Contains(prompt, marker) {
			return resp, nil
		}
	}
	return "", &propose.ServiceError{Err: fmt.Errorf("no stub response for prompt")}
}

func orderHindiMessages() ([]ingest.Message, *stubEngine) {
	records := []ingest.Record{
		{Text: "where is my order"},
		{Text: "where's my order right now"},
		{Text: "where is my order please"},
		{Text: "please switch to Hindi"},
		{Text: "can we continue in Hindi"},
	}
	msgs := ingest.NewMessages(records)

	engine := &stubEngine{vectors: map[string][]float32{}}
	orderVecs := [][]float32{{1, 0, 0}, {0.98, 0.02, 0}, {0.97, 0, 0.03}}
	hindiVecs := [][]float32{{0, 1, 0}, {0.02, 0.97, 0.01}}
	for i, m := range msgs[:3] {
		engine.vectors[m.Normalized] = orderVecs[i]
	}
	for i, m := range msgs[3:] {
		engine.vectors[m.Normalized] = hindiVecs[i]
	}
	return msgs, engine
}

func newTestRunner(engine embedding.Engine, completer propose.Completer, opts Options) *Runner {
	return NewRunner(
		embedding.NewSpace(engine),
		cluster.NewSelector(5, 40),
		propose.NewProposer(completer, 12),
		opts,
	)
}

func testOptions() Options {
	return Options{
		Workers:    2,
		RunTimeout: time.Minute,
		SortBy:     "confidence",
		Guardrail:  guardrail.Config{MinClusterSize: 2, MinConfidence: 0.6, PrimaryLevelSize: 50},
	}
}

func TestRunOrderAndHindiScenario(t *testing.T) {
	msgs, engine := orderHindiMessages()
	completer := &stubCompleter{responses: map[string]string{
		"where is my order": `{"name":"Track Order","description":"Customer asks where their order is.","confidence":0.95}`,
		"switch to Hindi":   `{"name":"Requires Hindi Support","description":"Customer wants the conversation in Hindi.","confidence":0.9}`,
	}}

	r := newTestRunner(engine, completer, testOptions())
	report, err := r.Run(context.Background(), msgs)
	require.NoError(t, err)

	require.Equal(t, 2, report.K)
	require.Len(t, report.Suggestions, 2)

	// Sorted by descending confidence: Track Order first.
	require.Equal(t, "track_order", report.Suggestions[0].Slug)
	require.Equal(t, 0.95, report.Suggestions[0].Confidence)
	require.Equal(t, 3, report.Suggestions[0].GroupSize)
	require.Equal(t, "requires_hindi_support", report.Suggestions[1].Slug)
	require.Equal(t, 2, report.Suggestions[1].GroupSize)

	require.Equal(t, report.Summary.Candidates,
		report.Summary.Accepted+report.Summary.Rejected+report.Summary.Errored)
	require.False(t, report.Partial)
	require.NotEmpty(t, report.RunID)
}

func TestRunSkipsSmallGroupBeforeReasoning(t *testing.T) {
	// Four orbiting one topic, one stray. The stray's group never reaches
	// the completer.
	records := []ingest.Record{
		{Text: "reset my password"},
		{Text: "password reset please"},
		{Text: "how do i reset password"},
		{Text: "need a password reset"},
		{Text: "what is the weather"},
	}
	msgs := ingest.NewMessages(records)
	engine := &stubEngine{vectors: map[string][]float32{}}
	topic := [][]float32{{1, 0, 0}, {0.99, 0.01, 0}, {0.98, 0, 0.02}, {0.97, 0.03, 0}}
	for i, m := range msgs[:4] {
		engine.vectors[m.Normalized] = topic[i]
	}
	engine.vectors[msgs[4].Normalized] = []float32{0, 1, 0}

	completer := &stubCompleter{
		responses: map[string]string{
			"reset": `{"name":"Password Reset","description":"User cannot log in.","confidence":0.9}`,
		},
		failOn: "weather", // reaching the completer with the stray is a test failure
	}

	r := newTestRunner(engine, completer, testOptions())
	report, err := r.Run(context.Background(), msgs)
	require.NoError(t, err)

	require.Len(t, report.Suggestions, 1)
	require.Empty(t, report.Errors, "small group must be rejected before the reasoning call")
	require.Len(t, report.Rejections, 1)
	require.Equal(t, guardrail.ReasonMinSize, report.Rejections[0].Reason)
	require.Equal(t, 1, report.Rejections[0].GroupSize)
}

func TestRunToleratesReasoningFailure(t *testing.T) {
	msgs, engine := orderHindiMessages()
	completer := &stubCompleter{
		responses: map[string]string{
			"where is my order": `{"name":"Track Order","description":"Order status.","confidence":0.95}`,
		},
		failOn: "Hindi",
	}

	r := newTestRunner(engine, completer, testOptions())
	report, err := r.Run(context.Background(), msgs)
	require.NoError(t, err, "one group's failure must never abort the run")

	require.Len(t, report.Suggestions, 1)
	require.Equal(t, "track_order", report.Suggestions[0].Slug)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "reasoning", report.Errors[0].Stage)
	require.Equal(t, report.Summary.Candidates,
		report.Summary.Accepted+report.Summary.Rejected+report.Summary.Errored)
}

func TestRunRecordsValidationFailure(t *testing.T) {
	msgs, engine := orderHindiMessages()
	completer := &stubCompleter{responses: map[string]string{
		"where is my order": `{"name":"Track Order","description":"Order status.","confidence":0.95}`,
		"switch to Hindi":   `I am sorry, I cannot help with that.`,
	}}

	r := newTestRunner(engine, completer, testOptions())
	report, err := r.Run(context.Background(), msgs)
	require.NoError(t, err)

	require.Len(t, report.Suggestions, 1)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "validation", report.Errors[0].Stage)
	require.Contains(t, report.Errors[0].Reason, "parse_error")
}

func TestRunEmbeddingFailureIsFatal(t *testing.T) {
	msgs, _ := orderHindiMessages()
	engine := &stubEngine{vectors: map[string][]float32{}} // knows no text

	r := newTestRunner(engine, &stubCompleter{}, testOptions())
	_, err := r.Run(context.Background(), msgs)
	require.Error(t, err)

	var embErr *embedding.Error
	require.ErrorAs(t, err, &embErr)
}

func TestRunIsIdempotent(t *testing.T) {
	msgs, engine := orderHindiMessages()
	completer := &stubCompleter{responses: map[string]string{
		"where is my order": `{"name":"Track Order","description":"Order status.","confidence":0.95}`,
		"switch to Hindi":   `{"name":"Requires Hindi Support","description":"Hindi please.","confidence":0.9}`,
	}}

	r := newTestRunner(engine, completer, testOptions())

	first, err := r.Run(context.Background(), msgs)
	require.NoError(t, err)
	second, err := r.Run(context.Background(), msgs)
	require.NoError(t, err)

	// Identical inputs must produce identical suggestion sets; only run
	// identity and timing may differ.
	if diff := cmp.Diff(first.Suggestions, second.Suggestions); diff != "" {
		t.Fatalf("suggestions drifted between runs (-first +second):\n%s", diff)
	}
	require.Equal(t, first.Summary, second.Summary)
	require.NotEqual(t, first.RunID, second.RunID)
}

func TestRunSortByGroup(t *testing.T) {
	msgs, engine := orderHindiMessages()
	completer := &stubCompleter{responses: map[string]string{
		"where is my order": `{"name":"Track Order","description":"Order status.","confidence":0.7}`,
		"switch to Hindi":   `{"name":"Requires Hindi Support","description":"Hindi please.","confidence":0.9}`,
	}}

	opts := testOptions()
	opts.SortBy = "group"
	r := newTestRunner(engine, completer, opts)

	report, err := r.Run(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, report.Suggestions, 2)
	// Group order, not confidence order.
	require.Equal(t, 0, report.Suggestions[0].GroupID)
	require.Equal(t, 1, report.Suggestions[1].GroupID)
}

func TestRunEmptyInput(t *testing.T) {
	r := newTestRunner(&stubEngine{}, &stubCompleter{}, testOptions())
	_, err := r.Run(context.Background(), nil)
	require.Error(t, err)
}
