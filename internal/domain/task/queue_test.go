package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamond(t *testing.T, opts ...QueueOption) *Queue {
	t.Helper()
	q, err := NewQueue([]Task{
		{ID: "a", Title: "A", AssignedAgent: "llm", MaxRetries: 2},
		{ID: "b", Title: "B", AssignedAgent: "llm", DependsOn: []string{"a"}, MaxRetries: 2},
		{ID: "c", Title: "C", AssignedAgent: "llm", DependsOn: []string{"a"}, MaxRetries: 2, Priority: 5},
		{ID: "d", Title: "D", AssignedAgent: "llm", DependsOn: []string{"b", "c"}, MaxRetries: 2},
	}, opts...)
	require.NoError(t, err)
	return q
}

func ids(tasks []Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}

func TestReadyTasksFollowDependencies(t *testing.T) {
	t.Parallel()
	q := diamond(t)

	require.Equal(t, []string{"a"}, ids(q.ReadyTasks()))

	_, err := q.MarkStarted("a")
	require.NoError(t, err)
	require.Empty(t, q.ReadyTasks())
	require.NoError(t, q.MarkCompleted("a", "done"))

	// c outranks b on priority.
	require.Equal(t, []string{"c", "b"}, ids(q.ReadyTasks()))
	got, _ := q.Get("d")
	require.Equal(t, StatusPending, got.Status)
}

func TestMarkStartedRefusesIncompleteDependencies(t *testing.T) {
	t.Parallel()
	q := diamond(t)

	_, err := q.MarkStarted("b")
	require.ErrorIs(t, err, ErrDependenciesIncomplete)

	_, err = q.MarkStarted("a")
	require.NoError(t, err)
	_, err = q.MarkStarted("a")
	require.ErrorIs(t, err, ErrInvalidTransition, "in_progress is exclusive")
}

func TestRetryCeiling(t *testing.T) {
	t.Parallel()
	q, err := NewQueue([]Task{{ID: "flaky", Title: "F", AssignedAgent: "llm", MaxRetries: 2}})
	require.NoError(t, err)
	cause := errors.New("model timeout")

	for attempt := 1; attempt <= 2; attempt++ {
		require.Len(t, q.ReadyTasks(), 1)
		_, err := q.MarkStarted("flaky")
		require.NoError(t, err)
		require.NoError(t, q.MarkRetry("flaky", cause))
		got, _ := q.Get("flaky")
		require.Equal(t, StatusRetrying, got.Status)
		require.Equal(t, attempt, got.RetryCount)
	}

	_, err = q.MarkStarted("flaky")
	require.NoError(t, err)
	require.ErrorIs(t, q.MarkRetry("flaky", cause), ErrRetryBudgetExhausted)

	got, _ := q.Get("flaky")
	require.True(t, got.PermanentlyFailed())
	require.Equal(t, 2, got.RetryCount)
	require.Equal(t, 3, got.Attempts)
	require.Equal(t, "model timeout", got.Error)

	// Permanent failure is sticky.
	require.ErrorIs(t, q.MarkRetry("flaky", cause), ErrRetryBudgetExhausted)
	require.Empty(t, q.ReadyTasks())
	require.Empty(t, q.RetryEligible())
	require.True(t, q.IsTerminal())
	got, _ = q.Get("flaky")
	require.Equal(t, 2, got.RetryCount)
}

func TestMarkFailedKeepsTaskRetryEligible(t *testing.T) {
	t.Parallel()
	q, err := NewQueue([]Task{{ID: "x", Title: "X", AssignedAgent: "llm", MaxRetries: 1}})
	require.NoError(t, err)

	_, err = q.MarkStarted("x")
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed("x", errors.New("interrupted")))
	require.False(t, q.IsTerminal())
	require.Equal(t, []string{"x"}, ids(q.RetryEligible()))

	require.NoError(t, q.MarkRetry("x", nil))
	require.Equal(t, []string{"x"}, ids(q.ReadyTasks()))
}

func TestZeroRetryTaskFailsPermanentlyOnFirstFailure(t *testing.T) {
	t.Parallel()
	q, err := NewQueue([]Task{{ID: "x", Title: "X", AssignedAgent: "llm"}})
	require.NoError(t, err)

	_, err = q.MarkStarted("x")
	require.NoError(t, err)
	require.ErrorIs(t, q.MarkRetry("x", errors.New("boom")), ErrRetryBudgetExhausted)
	require.True(t, q.IsTerminal())
}

func TestBlockedTasksAndProgress(t *testing.T) {
	t.Parallel()
	q := diamond(t)

	_, _ = q.MarkStarted("a")
	require.NoError(t, q.MarkCompleted("a", "ok"))
	q.ReadyTasks()
	_, _ = q.MarkStarted("b")
	_, _ = q.MarkStarted("c")
	require.NoError(t, q.MarkCompleted("c", "ok"))
	require.NoError(t, q.MarkRetry("b", errors.New("1")))
	_, _ = q.MarkStarted("b")
	require.NoError(t, q.MarkRetry("b", errors.New("2")))
	_, _ = q.MarkStarted("b")
	require.ErrorIs(t, q.MarkRetry("b", errors.New("3")), ErrRetryBudgetExhausted)

	require.Equal(t, []string{"d"}, ids(q.Blocked()))
	require.False(t, q.IsTerminal())

	p := q.Progress()
	assert.Equal(t, 4, p.Total)
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 1, p.Pending)
	assert.Equal(t, 2, p.Retries)
}

func TestClaimEmissionIsAtMostOnce(t *testing.T) {
	t.Parallel()
	q := diamond(t)

	require.False(t, q.ClaimEmission("a"), "not completed yet")
	_, _ = q.MarkStarted("a")
	require.NoError(t, q.MarkCompleted("a", "ok"))
	require.True(t, q.ClaimEmission("a"))
	require.False(t, q.ClaimEmission("a"))
	require.False(t, q.ClaimEmission("missing"))
}

func TestLogIsMonotonicAndHooked(t *testing.T) {
	t.Parallel()
	var hooked []LogEntry
	q := diamond(t, WithTransitionHook(func(e LogEntry) { hooked = append(hooked, e) }))

	q.ReadyTasks()
	_, _ = q.MarkStarted("a")
	require.NoError(t, q.MarkCompleted("a", "ok"))

	log := q.Log()
	require.Len(t, log, 3)
	for i, entry := range log {
		require.Equal(t, i+1, entry.Seq)
	}
	require.Equal(t, StatusReady, log[0].To)
	require.Equal(t, StatusCompleted, log[2].To)
	require.Equal(t, log, hooked)
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	q := diamond(t)

	snap := q.Snapshot()
	snap[3].DependsOn[0] = "mutated"
	snap[0].Status = StatusCompleted

	got, _ := q.Get("d")
	require.Equal(t, []string{"b", "c"}, got.DependsOn)
	got, _ = q.Get("a")
	require.Equal(t, StatusPending, got.Status)
}

func TestDependencyResults(t *testing.T) {
	t.Parallel()
	q := diamond(t)

	_, _ = q.MarkStarted("a")
	require.NoError(t, q.MarkCompleted("a", "alpha"))
	require.Equal(t, map[string]string{"a": "alpha"}, q.DependencyResults("b"))
	require.Empty(t, q.DependencyResults("d"))
}

func TestNewQueueRejectsBrokenGraphs(t *testing.T) {
	t.Parallel()

	_, err := NewQueue(nil)
	require.ErrorContains(t, err, "at least one task")

	_, err = NewQueue([]Task{{ID: "a"}, {ID: "a"}})
	require.ErrorContains(t, err, `duplicate task id "a"`)

	_, err = NewQueue([]Task{{ID: "a", DependsOn: []string{"ghost"}}})
	require.ErrorContains(t, err, `unknown task "ghost"`)

	_, err = NewQueue([]Task{{ID: "a", DependsOn: []string{"a"}}})
	require.ErrorContains(t, err, "depends on itself")

	_, err = NewQueue([]Task{
		{ID: "a", DependsOn: []string{"c"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	})
	var ve *ValidationErrors
	require.ErrorAs(t, err, &ve)
	require.Contains(t, err.Error(), "circular dependency detected: ")
	require.Len(t, ve.Errors, 1)
}
