package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reasoner/internal/domain/agent/ports"
	jsonx "reasoner/internal/shared/json"
)

func offlineRequest(phase, system, user string) ports.CompletionRequest {
	return ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: ports.RoleSystem, Content: system},
			{Role: ports.RoleUser, Content: user},
		},
		Metadata: map[string]any{ports.MetadataPhase: phase},
	}
}

func TestOfflineThinkSearchesThenAnswers(t *testing.T) {
	client := NewOfflineClient()

	resp, err := client.Complete(context.Background(), offlineRequest("think", "Actions: SEARCH, FINAL_ANSWER", "Question: capital of France\n\nDecide the next action."))
	require.NoError(t, err)
	var first map[string]any
	require.NoError(t, jsonx.Unmarshal([]byte(resp.Content), &first))
	assert.Equal(t, "SEARCH", first["action"])
	assert.Equal(t, "capital of France", first["action_input"])

	resp, err = client.Complete(context.Background(), offlineRequest("think", "Actions: SEARCH, FINAL_ANSWER",
		"Question: capital of France\n\nContext gathered so far:\n[Step 1] SEARCH(capital of France): Paris\n\nDecide the next action."))
	require.NoError(t, err)
	var second map[string]any
	require.NoError(t, jsonx.Unmarshal([]byte(resp.Content), &second))
	assert.Equal(t, "FINAL_ANSWER", second["action"])
	assert.Contains(t, second["action_input"], "Paris")
}

func TestOfflineStrategyHeuristics(t *testing.T) {
	client := NewOfflineClient()
	cases := map[string]string{
		"Query: what is go":                                          "direct_answer",
		"Query: explain how the scheduler keeps tasks isolated":      "single_retrieval",
		"Query: compare raft and paxos for small clusters in detail": "iterative",
	}
	for prompt, want := range cases {
		resp, err := client.Complete(context.Background(), offlineRequest("strategy", "", prompt))
		require.NoError(t, err)
		var decision map[string]any
		require.NoError(t, jsonx.Unmarshal([]byte(resp.Content), &decision))
		assert.Equal(t, want, decision["strategy"], prompt)
	}
}

func TestOfflineHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOfflineClient().Complete(ctx, offlineRequest("synthesis", "", "x"))
	assert.ErrorIs(t, err, context.Canceled)
}
