package strategy

import (
	"context"
	"errors"
	"testing"

	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/agent/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replying(content string, err error) *mocks.MockLLMClient {
	return &mocks.MockLLMClient{
		CompleteFunc: func(context.Context, ports.CompletionRequest) (*ports.CompletionResponse, error) {
			if err != nil {
				return nil, err
			}
			return mocks.Reply(content), nil
		},
	}
}

func newSelector(client ports.LLMClient, advisor ExperienceAdvisor) *Selector {
	return NewSelector(Config{Gateway: gateway.New(client, gateway.Config{}), Advisor: advisor})
}

func TestSelectGreetingTakesFastPath(t *testing.T) {
	client := replying("", errors.New("must not be called"))
	s := newSelector(client, nil)

	for _, text := range []string{"Hello!", "hi there", "Thank you.", "Good morning"} {
		d := s.Select(context.Background(), Query{Text: text}, DefaultSelfDescription())
		assert.Equal(t, DirectAnswer, d.Strategy, text)
		assert.Greater(t, d.Confidence, 0.8, text)
		assert.False(t, d.RequiresPlanning, text)
		assert.Equal(t, Simple, d.EstimatedComplexity, text)
	}
	assert.Empty(t, client.Requests())
}

func TestSelectParsesModelDecision(t *testing.T) {
	client := replying("```json\n"+`{"strategy": "ITERATIVE", "confidence": 0.8, "reasoning": "needs several lookups",
		"requires_verification": false, "estimated_complexity": "multi-hop", "requires_planning": true}`+"\n```", nil)
	s := newSelector(client, nil)

	d := s.Select(context.Background(), Query{Text: "Compare the GDP growth of the three largest EU economies since 2010"}, DefaultSelfDescription())

	assert.Equal(t, Iterative, d.Strategy)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, MultiHop, d.EstimatedComplexity)
	assert.True(t, d.RequiresPlanning)
	assert.Equal(t, "needs several lookups", d.Reasoning)
	require.Len(t, client.Requests(), 1)
	assert.Equal(t, "strategy", client.Requests()[0].Phase())
}

func TestSelectDegradesToDefault(t *testing.T) {
	cases := map[string]*mocks.MockLLMClient{
		"gateway error":    replying("", errors.New("503 service unavailable")),
		"not json":         replying("I would retrieve documents.", nil),
		"unknown strategy": replying(`{"strategy": "guess", "confidence": 0.9}`, nil),
	}
	for name, client := range cases {
		t.Run(name, func(t *testing.T) {
			d := newSelector(client, nil).Select(context.Background(), Query{Text: "What is our refund policy?"}, DefaultSelfDescription())
			assert.Equal(t, SingleRetrieval, d.Strategy)
			assert.Equal(t, 0.5, d.Confidence)
			assert.True(t, d.RequiresVerification)
			assert.Contains(t, d.Reasoning, "Strategy selection failed")
		})
	}
}

func TestSelectUpgradesUnsureDirectAnswer(t *testing.T) {
	client := replying(`{"strategy": "direct_answer", "confidence": 0.4, "reasoning": "probably known"}`, nil)

	d := newSelector(client, nil).Select(context.Background(), Query{Text: "When was the company founded?"}, DefaultSelfDescription())

	assert.Equal(t, SingleRetrieval, d.Strategy)
	assert.True(t, d.RequiresVerification)
	assert.Contains(t, d.Reasoning, "below 0.60")
}

func TestSelectHighRiskOverride(t *testing.T) {
	cases := []struct {
		name       string
		reply      string
		query      string
		want       Strategy
		wantVerify bool
	}{
		{
			name:       "low confidence escalates",
			reply:      `{"strategy": "direct_answer", "confidence": 0.85}`,
			query:      "What dosage of ibuprofen is safe for a child?",
			want:       Escalate,
			wantVerify: true,
		},
		{
			name:       "high confidence requires verification",
			reply:      `{"strategy": "single_retrieval", "confidence": 0.93, "requires_verification": false}`,
			query:      "Can my landlord break the lease contract early?",
			want:       SingleRetrieval,
			wantVerify: true,
		},
		{
			name:       "label itself matches",
			reply:      `{"strategy": "iterative", "confidence": 0.7, "requires_planning": true}`,
			query:      "Give me financial advice for next year",
			want:       Escalate,
			wantVerify: true,
		},
		{
			name:       "no risk leaves decision alone",
			reply:      `{"strategy": "iterative", "confidence": 0.7}`,
			query:      "How do solar panels convert light to electricity?",
			want:       Iterative,
			wantVerify: false,
		},
		{
			name:       "fallback still escalates",
			reply:      "garbage",
			query:      "Should I invest my pension in crypto?",
			want:       Escalate,
			wantVerify: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newSelector(replying(tc.reply, nil), nil).Select(context.Background(), Query{Text: tc.query}, DefaultSelfDescription())
			assert.Equal(t, tc.want, d.Strategy)
			assert.Equal(t, tc.wantVerify, d.RequiresVerification)
			if d.Strategy == Escalate {
				assert.False(t, d.RequiresPlanning)
			} else {
				assert.True(t, d.Confidence >= 0.9 || !tc.wantVerify)
			}
		})
	}
}

func TestSelectEmptyQueryAsksForClarification(t *testing.T) {
	client := replying("", errors.New("must not be called"))
	d := newSelector(client, nil).Select(context.Background(), Query{Text: "   "}, DefaultSelfDescription())
	assert.Equal(t, Clarify, d.Strategy)
	assert.Zero(t, d.Confidence)
	assert.Empty(t, client.Requests())
}

type fixedAdvisor struct{ rec Recommendation }

func (a fixedAdvisor) Recommend(string) (Recommendation, bool) { return a.rec, true }

func TestSelectIncludesExperienceHint(t *testing.T) {
	client := replying(`{"strategy": "single_retrieval", "confidence": 0.7}`, nil)
	advisor := fixedAdvisor{rec: Recommendation{Pattern: "definition", Strategy: SingleRetrieval, AverageScore: 0.82}}

	d := newSelector(client, advisor).Select(context.Background(), Query{
		Text:    "What is a vector clock?",
		History: []Turn{{Role: "user", Text: "I am studying distributed systems"}},
	}, DefaultSelfDescription())

	assert.Equal(t, SingleRetrieval, d.Strategy)
	req := client.Requests()[0]
	prompt := req.Messages[len(req.Messages)-1].Content
	assert.Contains(t, prompt, `similar "definition" queries were answered best with single_retrieval`)
	assert.Contains(t, prompt, "user: I am studying distributed systems")
}

func TestParseStrategy(t *testing.T) {
	for raw, want := range map[string]Strategy{
		"DIRECT_ANSWER":    DirectAnswer,
		"single retrieval": SingleRetrieval,
		"react":            Iterative,
		"Escalate":         Escalate,
		"clarification":    Clarify,
	} {
		got, ok := ParseStrategy(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseStrategy("freestyle")
	assert.False(t, ok)
}

func TestStronger(t *testing.T) {
	assert.Equal(t, SingleRetrieval, DirectAnswer.Stronger())
	assert.Equal(t, Iterative, SingleRetrieval.Stronger())
	assert.Equal(t, Iterative, Iterative.Stronger())
}

func TestMatchHighRisk(t *testing.T) {
	topics := DefaultSelfDescription().HighRiskTopics

	label, ok := matchHighRisk("What are common symptoms of flu?", topics)
	assert.True(t, ok)
	assert.Equal(t, "medical", label)

	_, ok = matchHighRisk("Is suede easy to clean?", topics)
	assert.False(t, ok, "sue must match whole words only")

	label, ok = matchHighRisk("Where can I report self-harm content?", topics)
	assert.True(t, ok)
	assert.Equal(t, "safety", label)

	_, ok = matchHighRisk("anything", nil)
	assert.False(t, ok)
}
