package react

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/agent/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type phaseFunc func(call int, prompt string) (string, error)

// scriptedLLM answers each phase with its own function; call counts start at 1.
func scriptedLLM(phases map[string]phaseFunc) *mocks.MockLLMClient {
	var mu sync.Mutex
	counts := map[string]int{}
	return &mocks.MockLLMClient{
		CompleteFunc: func(_ context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
			phase := req.Phase()
			mu.Lock()
			counts[phase]++
			call := counts[phase]
			mu.Unlock()

			fn, ok := phases[phase]
			if !ok {
				return nil, fmt.Errorf("unexpected phase %q", phase)
			}
			content, err := fn(call, req.Messages[len(req.Messages)-1].Content)
			if err != nil {
				return nil, err
			}
			return mocks.Reply(content), nil
		},
	}
}

func thought(action Action, input string, confidence float64) string {
	return fmt.Sprintf(`{"thought": "thinking about %s", "action": %q, "action_input": %q, "confidence": %.2f}`,
		action, action, input, confidence)
}

func verdict(valid bool, score float64) string {
	return fmt.Sprintf(`{"is_valid": %t, "quality_score": %.2f, "issues": ["needs more"], "should_retry": %t}`, valid, score, !valid)
}

func always(content string) phaseFunc {
	return func(int, string) (string, error) { return content, nil }
}

func searchTool(content string) *mocks.MockToolInvoker {
	return &mocks.MockToolInvoker{
		InvokeFunc: func(_ context.Context, _ string, input string) (ports.ToolResult, error) {
			return ports.ToolResult{Content: content, Sources: []ports.Source{{Title: "kb:" + input}}}, nil
		},
	}
}

func newEngine(client ports.LLMClient, tools ports.ToolInvoker, cfg ReactEngineConfig) *ReactEngine {
	cfg.Gateway = gateway.New(client, gateway.Config{})
	cfg.Tools = tools
	return NewReactEngine(cfg)
}

func TestRunStopsAtFinalAnswer(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: always(thought(ActionFinalAnswer, "Paris is the capital of France.", 0.9)),
	})
	tools := searchTool("unused")
	engine := newEngine(client, tools, ReactEngineConfig{})

	result := engine.Run(context.Background(), Request{Query: "What is the capital of France?"})

	require.Len(t, result.Steps, 1)
	assert.Equal(t, StopFinalAnswer, result.StopReason)
	assert.Equal(t, "Paris is the capital of France.", result.FinalAnswer)
	assert.True(t, result.Success)
	assert.True(t, result.VerificationPassed)
	assert.Empty(t, tools.Calls())
	assert.Zero(t, client.CallsFor(phaseVerify))
}

func TestRunStopsAtClarify(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: always(thought(ActionClarify, "Which year do you mean?", 0.4)),
	})
	engine := newEngine(client, searchTool("unused"), ReactEngineConfig{})

	result := engine.Run(context.Background(), Request{Query: "Who won the cup?"})

	require.Len(t, result.Steps, 1)
	assert.Equal(t, StopClarify, result.StopReason)
	assert.Equal(t, "Which year do you mean?", result.FinalAnswer)
	assert.True(t, result.Success)
}

func TestRunBoundsThinkCalls(t *testing.T) {
	for _, maxIterations := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("max_%d", maxIterations), func(t *testing.T) {
			client := scriptedLLM(map[string]phaseFunc{
				phaseThink:      always(thought(ActionSearch, "more facts", 0.5)),
				phaseVerify:     always(verdict(true, 0.9)),
				phaseSynthesize: always("synthesized answer"),
			})
			engine := newEngine(client, searchTool("some facts"), ReactEngineConfig{MaxIterations: maxIterations})

			result := engine.Run(context.Background(), Request{Query: "tell me facts"})

			assert.Equal(t, maxIterations, client.CallsFor(phaseThink))
			assert.Equal(t, maxIterations, result.Thoughts)
			assert.LessOrEqual(t, len(result.Steps), maxIterations+1)
			assert.Equal(t, StopMaxIterations, result.StopReason)
			assert.Equal(t, "synthesized answer", result.FinalAnswer)
			assert.Equal(t, ActionFinalAnswer, result.Steps[len(result.Steps)-1].Action)
			assert.True(t, result.VerificationPassed)
		})
	}
}

func TestRunSelfCorrectsUnhelpfulSearch(t *testing.T) {
	const query = "Who designed the Zorblax protocol?"
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: func(_ int, prompt string) (string, error) {
			if strings.Contains(prompt, "You must choose FINAL_ANSWER") {
				return thought(ActionFinalAnswer, "I could not find who designed it.", 0.4), nil
			}
			return thought(ActionSearch, query, 0.5), nil
		},
		phaseVerify: always(verdict(false, 0.2)),
		phaseCorrect: func(call int, _ string) (string, error) {
			return thought(ActionSearch, fmt.Sprintf("Zorblax protocol author alternative %d", call), 0.5), nil
		},
	})
	tools := searchTool("no relevant info found")
	engine := newEngine(client, tools, ReactEngineConfig{MaxIterations: 3, VerificationThreshold: 0.6})

	result := engine.Run(context.Background(), Request{Query: query})

	require.Len(t, result.Steps, 3)
	first := result.Steps[0]
	require.NotNil(t, first.Verification)
	assert.True(t, first.Verification.ShouldRetry)
	require.True(t, first.Corrected())
	assert.Equal(t, query, first.Original.ActionInput)
	assert.NotEqual(t, query, first.ActionInput)
	assert.True(t, strings.HasPrefix(first.Observation.Content, "[Corrected] "))

	last := result.Steps[2]
	assert.Equal(t, ActionFinalAnswer, last.Action)
	assert.Equal(t, StopFinalAnswer, result.StopReason)
	assert.Equal(t, 2, result.Corrections)
	assert.True(t, result.VerificationPassed)

	// The second correction prompt lists both failed attempts verbatim.
	var correctPrompts []string
	for _, req := range client.Requests() {
		if req.Phase() == phaseCorrect {
			correctPrompts = append(correctPrompts, req.Messages[len(req.Messages)-1].Content)
		}
	}
	require.Len(t, correctPrompts, 2)
	assert.Equal(t, 2, strings.Count(correctPrompts[1], fmt.Sprintf("input=%q", query)))
	assert.Contains(t, correctPrompts[1], "no relevant info found")
}

func TestRunEarlyExitDetour(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		client := scriptedLLM(map[string]phaseFunc{
			phaseThink: func(call int, _ string) (string, error) {
				if call == 1 {
					return thought(ActionSearch, "capital of France", 0.9), nil
				}
				return thought(ActionFinalAnswer, "Paris.", 0.95), nil
			},
		})
		tools := searchTool("unused")
		engine := newEngine(client, tools, ReactEngineConfig{})

		result := engine.Run(context.Background(), Request{Query: "capital of France?"})

		require.Len(t, result.Steps, 1)
		assert.Equal(t, "Paris.", result.FinalAnswer)
		assert.Equal(t, 2, result.Thoughts)
		assert.Empty(t, tools.Calls())
	})

	t.Run("declined keeps original action", func(t *testing.T) {
		client := scriptedLLM(map[string]phaseFunc{
			phaseThink: func(call int, _ string) (string, error) {
				if call == 1 {
					return thought(ActionSearch, "capital of France", 0.9), nil
				}
				return thought(ActionSearch, "something else", 0.9), nil
			},
			phaseVerify:     always(verdict(true, 0.9)),
			phaseSynthesize: always("Paris."),
		})
		tools := searchTool("Paris is the capital.")
		engine := newEngine(client, tools, ReactEngineConfig{MaxIterations: 2})

		result := engine.Run(context.Background(), Request{Query: "capital of France?"})

		assert.Equal(t, 2, client.CallsFor(phaseThink))
		require.Len(t, tools.Calls(), 1)
		assert.Equal(t, "capital of France", tools.Calls()[0].Input)
		require.Len(t, result.Steps, 2)
		assert.Equal(t, StopMaxIterations, result.StopReason)
	})

	t.Run("skipped without budget", func(t *testing.T) {
		client := scriptedLLM(map[string]phaseFunc{
			phaseThink:      always(thought(ActionSearch, "capital of France", 0.95)),
			phaseVerify:     always(verdict(true, 0.9)),
			phaseSynthesize: always("Paris."),
		})
		engine := newEngine(client, searchTool("Paris"), ReactEngineConfig{MaxIterations: 1})

		result := engine.Run(context.Background(), Request{Query: "capital of France?"})

		assert.Equal(t, 1, client.CallsFor(phaseThink))
		assert.Len(t, result.Steps, 2)
	})
}

func TestRunUnregisteredToolIsFailedObservation(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: func(call int, _ string) (string, error) {
			if call == 1 {
				return thought(ActionWebSearch, "latest news", 0.5), nil
			}
			return thought(ActionFinalAnswer, "No news source available.", 0.4), nil
		},
	})
	tools := searchTool("kb")
	tools.HasFunc = func(name string) bool { return name == "search" }
	engine := newEngine(client, tools, ReactEngineConfig{})

	result := engine.Run(context.Background(), Request{Query: "news?", SkipVerification: true})

	require.Len(t, result.Steps, 2)
	obs := result.Steps[0].Observation
	require.NotNil(t, obs)
	assert.False(t, obs.Success)
	assert.Contains(t, obs.Error, ports.ErrToolNotFound.Error())
	assert.Empty(t, tools.Calls())
	assert.Equal(t, StopFinalAnswer, result.StopReason)
}

func TestRunToolErrorIsFailedObservation(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: func(call int, _ string) (string, error) {
			if call == 1 {
				return thought(ActionCalculate, "1/0", 0.5), nil
			}
			return thought(ActionFinalAnswer, "Division by zero is undefined.", 0.8), nil
		},
	})
	tools := &mocks.MockToolInvoker{
		InvokeFunc: func(context.Context, string, string) (ports.ToolResult, error) {
			panic("calculator crashed")
		},
	}
	engine := newEngine(client, tools, ReactEngineConfig{})

	result := engine.Run(context.Background(), Request{Query: "1/0?", SkipVerification: true})

	require.Len(t, result.Steps, 2)
	assert.False(t, result.Steps[0].Observation.Success)
	assert.Contains(t, result.Steps[0].Observation.Error, "calculator crashed")
	assert.True(t, result.Success)
}

func TestRunDegradesWhenThinkFails(t *testing.T) {
	for name, fn := range map[string]phaseFunc{
		"gateway error": func(int, string) (string, error) { return "", errors.New("connection reset") },
		"unparseable":   always("I think we should search"),
		"no action":     always(`{"thought": "hmm", "confidence": 0.9}`),
	} {
		t.Run(name, func(t *testing.T) {
			client := scriptedLLM(map[string]phaseFunc{phaseThink: fn})
			engine := newEngine(client, searchTool("unused"), ReactEngineConfig{})

			result := engine.Run(context.Background(), Request{Query: "anything"})

			require.Len(t, result.Steps, 1)
			step := result.Steps[0]
			assert.Equal(t, ActionFinalAnswer, step.Action)
			assert.Equal(t, fallbackConfidence, step.Confidence)
			assert.True(t, step.Degraded)
			assert.Equal(t, apologyAnswer, result.FinalAnswer)
			assert.False(t, result.Success)
		})
	}
}

func TestRunCorrectionBudgetIsGlobal(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink:  always(thought(ActionSearch, "first try", 0.5)),
		phaseVerify: always(verdict(false, 0.1)),
		phaseCorrect: func(call int, _ string) (string, error) {
			return thought(ActionSearch, fmt.Sprintf("variant %d", call), 0.5), nil
		},
		phaseSynthesize: always("best effort"),
	})
	engine := newEngine(client, searchTool("nothing"), ReactEngineConfig{MaxIterations: 3, MaxRetriesPerStep: 1})

	result := engine.Run(context.Background(), Request{Query: "hard question"})

	assert.Equal(t, 3, client.CallsFor(phaseCorrect))
	assert.Equal(t, 3, result.Corrections)
	assert.False(t, result.VerificationPassed)
	assert.Equal(t, StopMaxIterations, result.StopReason)
	assert.Len(t, result.Steps, 4)
}

func TestRunAcceptsLowQualityWhenCorrectionDisabled(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink:      always(thought(ActionSearch, "q", 0.5)),
		phaseVerify:     always(verdict(false, 0.1)),
		phaseSynthesize: always("best effort"),
	})
	engine := newEngine(client, searchTool("weak"), ReactEngineConfig{MaxIterations: 2, MaxRetriesPerStep: -1})

	result := engine.Run(context.Background(), Request{Query: "q"})

	assert.Zero(t, client.CallsFor(phaseCorrect))
	assert.Zero(t, result.Corrections)
	for _, step := range result.Steps[:2] {
		assert.False(t, step.Corrected())
		assert.False(t, step.Verification.IsValid)
	}
}

func TestRunKeepsOriginalWhenCorrectionRepeats(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: func(call int, _ string) (string, error) {
			if call == 1 {
				return thought(ActionSearch, "Same  Query", 0.5), nil
			}
			return thought(ActionFinalAnswer, "done", 0.7), nil
		},
		phaseVerify:  always(verdict(false, 0.3)),
		phaseCorrect: always(thought(ActionSearch, "same query", 0.5)),
	})
	tools := searchTool("weak")
	engine := newEngine(client, tools, ReactEngineConfig{})

	result := engine.Run(context.Background(), Request{Query: "q"})

	assert.Len(t, tools.Calls(), 1)
	assert.False(t, result.Steps[0].Corrected())
	assert.Equal(t, 1, result.Corrections)
}

func TestRunKeepsOriginalWhenCorrectionFails(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: func(call int, _ string) (string, error) {
			if call == 1 {
				return thought(ActionSearch, "q", 0.5), nil
			}
			return thought(ActionFinalAnswer, "done", 0.7), nil
		},
		phaseVerify:  always(verdict(false, 0.3)),
		phaseCorrect: func(int, string) (string, error) { return "", errors.New("rate limited") },
	})
	engine := newEngine(client, searchTool("weak"), ReactEngineConfig{})

	result := engine.Run(context.Background(), Request{Query: "q"})

	require.Len(t, result.Steps, 2)
	assert.False(t, result.Steps[0].Corrected())
	assert.Equal(t, "weak", result.Steps[0].Observation.Content)
}

func TestRunCorrectionCanFinish(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink:   always(thought(ActionSearch, "q", 0.5)),
		phaseVerify:  always(verdict(false, 0.3)),
		phaseCorrect: always(thought(ActionFinalAnswer, "The answer is 42.", 0.7)),
	})
	engine := newEngine(client, searchTool("weak"), ReactEngineConfig{})

	result := engine.Run(context.Background(), Request{Query: "q"})

	require.Len(t, result.Steps, 1)
	assert.True(t, result.Steps[0].Corrected())
	assert.Equal(t, "The answer is 42.", result.FinalAnswer)
	assert.Equal(t, StopFinalAnswer, result.StopReason)
}

func TestRunTruncatesObservationsInContext(t *testing.T) {
	long := strings.Repeat("x", 2000)
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: func(call int, _ string) (string, error) {
			if call == 1 {
				return thought(ActionSearch, "q", 0.5), nil
			}
			return thought(ActionFinalAnswer, "done", 0.7), nil
		},
	})
	engine := newEngine(client, searchTool(long), ReactEngineConfig{})

	result := engine.Run(context.Background(), Request{Query: "q", SkipVerification: true})
	require.Len(t, result.Steps, 2)

	var second string
	for _, req := range client.Requests() {
		second = req.Messages[len(req.Messages)-1].Content
	}
	assert.Contains(t, second, strings.Repeat("x", 1500)+"...")
	assert.NotContains(t, second, strings.Repeat("x", 1501))
	assert.Equal(t, long, result.Steps[0].Observation.Content, "the step keeps the full observation")
}

func TestRunRefineQueryRewritesWorkingQuery(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: func(call int, prompt string) (string, error) {
			if call == 1 {
				return thought(ActionRefineQuery, "population of Tokyo in 2020", 0.5), nil
			}
			if !strings.Contains(prompt, "Question: population of Tokyo in 2020") {
				return "", errors.New("refined query missing from prompt")
			}
			return thought(ActionFinalAnswer, "About 14 million.", 0.8), nil
		},
	})
	tools := searchTool("unused")
	engine := newEngine(client, tools, ReactEngineConfig{})

	result := engine.Run(context.Background(), Request{Query: "how many people live in tokyo"})

	require.Len(t, result.Steps, 2)
	assert.Equal(t, ActionRefineQuery, result.Steps[0].Action)
	assert.Equal(t, "About 14 million.", result.FinalAnswer)
	assert.True(t, result.Success)
	assert.Empty(t, tools.Calls())
}

func TestRunExhaustionSynthesisFailureUsesLatestObservation(t *testing.T) {
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink:      always(thought(ActionSearch, "q", 0.5)),
		phaseSynthesize: func(int, string) (string, error) { return "", errors.New("boom") },
	})
	engine := newEngine(client, searchTool("the only fact"), ReactEngineConfig{MaxIterations: 2})

	result := engine.Run(context.Background(), Request{Query: "q", SkipVerification: true})

	assert.Equal(t, "the only fact", result.FinalAnswer)
	assert.False(t, result.Success)
	assert.True(t, result.Steps[len(result.Steps)-1].Degraded)
}

func TestRunCancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		client := scriptedLLM(map[string]phaseFunc{})
		engine := newEngine(client, searchTool("unused"), ReactEngineConfig{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := engine.Run(ctx, Request{Query: "q"})

		assert.Equal(t, StopCancelled, result.StopReason)
		assert.Empty(t, result.Steps)
		assert.Empty(t, client.Requests())
		assert.False(t, result.Success)
	})

	t.Run("between iterations", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		client := scriptedLLM(map[string]phaseFunc{
			phaseThink: always(thought(ActionSearch, "q", 0.5)),
		})
		tools := &mocks.MockToolInvoker{
			InvokeFunc: func(context.Context, string, string) (ports.ToolResult, error) {
				cancel()
				return ports.ToolResult{Content: "partial finding"}, nil
			},
		}
		engine := newEngine(client, tools, ReactEngineConfig{})

		result := engine.Run(ctx, Request{Query: "q", SkipVerification: true})

		assert.Equal(t, StopCancelled, result.StopReason)
		assert.Len(t, result.Steps, 1)
		assert.Equal(t, 1, client.CallsFor(phaseThink))
		assert.Equal(t, "partial finding", result.FinalAnswer)
	})
}

func TestRunEmitsThinkingSteps(t *testing.T) {
	sink := &mocks.RecordingSink{}
	client := scriptedLLM(map[string]phaseFunc{
		phaseThink: func(call int, _ string) (string, error) {
			if call == 1 {
				return thought(ActionSearch, "q", 0.5), nil
			}
			return thought(ActionFinalAnswer, "done", 0.7), nil
		},
	})
	engine := newEngine(client, searchTool("fact"), ReactEngineConfig{Sink: sink})

	result := engine.Run(context.Background(), Request{Query: "q", SkipVerification: true})

	events := sink.OfType(ports.EventThinkingStep)
	require.Len(t, events, len(result.Steps))
	assert.Equal(t, 1, events[0].Payload["step"])
	assert.Equal(t, "SEARCH", events[0].Payload["action"])
	assert.Equal(t, []ports.Source{{Title: "kb:q"}}, result.Sources)
}
