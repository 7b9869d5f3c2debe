package task

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// TransitionHook observes every logged transition. It runs under the queue
// lock and must not call back into the queue.
type TransitionHook func(entry LogEntry)

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithGoal records the top-level goal the queue was planned for.
func WithGoal(goal string) QueueOption {
	return func(q *Queue) { q.goal = goal }
}

// WithTransitionHook registers hook for every status transition.
func WithTransitionHook(hook TransitionHook) QueueOption {
	return func(q *Queue) {
		if hook != nil {
			q.hooks = append(q.hooks, hook)
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// Queue owns the tasks of one run. It is the single writer of task status:
// callers only ever receive copies.
type Queue struct {
	mu      sync.Mutex
	goal    string
	order   []string
	index   map[string]int
	tasks   map[string]*Task
	emitted map[string]bool
	log     []LogEntry
	hooks   []TransitionHook
	now     func() time.Time
}

// NewQueue validates tasks as a DAG and takes ownership of copies of them.
// Every task starts pending with a zero retry count.
func NewQueue(tasks []Task, opts ...QueueOption) (*Queue, error) {
	if err := validateTasks(tasks); err != nil {
		return nil, err
	}

	q := &Queue{
		order:   make([]string, 0, len(tasks)),
		index:   make(map[string]int, len(tasks)),
		tasks:   make(map[string]*Task, len(tasks)),
		emitted: make(map[string]bool),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	created := q.now()
	for i, t := range tasks {
		c := t.clone()
		c.Status = StatusPending
		c.RetryCount = 0
		c.Attempts = 0
		if c.MaxRetries < 0 {
			c.MaxRetries = 0
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = created
		}
		q.order = append(q.order, c.ID)
		q.index[c.ID] = i
		q.tasks[c.ID] = &c
	}
	return q, nil
}

// Goal returns the goal recorded with WithGoal.
func (q *Queue) Goal() string {
	return q.goal
}

// Len returns the number of tasks.
func (q *Queue) Len() int {
	return len(q.order)
}

// ReadyTasks promotes pending tasks whose dependencies all completed to ready
// and returns every dispatchable task, highest priority first, then in plan
// order.
func (q *Queue) ReadyTasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []Task
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status == StatusPending && q.depsCompletedLocked(t) {
			q.transitionLocked(t, StatusReady, "dependencies completed")
		}
		if t.Status.Dispatchable() && q.depsCompletedLocked(t) {
			ready = append(ready, t.clone())
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return q.index[ready[i].ID] < q.index[ready[j].ID]
	})
	return ready
}

// MarkStarted moves a pending, ready or retrying task to in_progress. It
// refuses tasks that are already in progress or whose dependencies are not
// all completed.
func (q *Queue) MarkStarted(id string) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.getLocked(id)
	if err != nil {
		return Task{}, err
	}
	if t.Status != StatusPending && !t.Status.Dispatchable() {
		return Task{}, fmt.Errorf("%w: start %s from %s", ErrInvalidTransition, id, t.Status)
	}
	if !q.depsCompletedLocked(t) {
		return Task{}, fmt.Errorf("%w: %s", ErrDependenciesIncomplete, id)
	}
	t.Attempts++
	t.StartedAt = q.now()
	q.transitionLocked(t, StatusInProgress, fmt.Sprintf("attempt %d", t.Attempts))
	return t.clone(), nil
}

// MarkCompleted records a successful result for an in-progress task.
func (q *Queue) MarkCompleted(id, result string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.getLocked(id)
	if err != nil {
		return err
	}
	if t.Status != StatusInProgress {
		return fmt.Errorf("%w: complete %s from %s", ErrInvalidTransition, id, t.Status)
	}
	t.Result = result
	t.Error = ""
	t.CompletedAt = q.now()
	q.transitionLocked(t, StatusCompleted, "")
	return nil
}

// MarkFailed records a failure for an in-progress task without consuming a
// retry. The task stays retry-eligible while retry_count < max_retries.
func (q *Queue) MarkFailed(id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.getLocked(id)
	if err != nil {
		return err
	}
	if t.Status != StatusInProgress {
		return fmt.Errorf("%w: fail %s from %s", ErrInvalidTransition, id, t.Status)
	}
	q.failLocked(t, cause)
	return nil
}

// MarkRetry schedules another attempt of a task that is in progress or has
// failed. It increments retry_count and moves the task to retrying. When the
// budget is already spent the task becomes permanently failed and
// ErrRetryBudgetExhausted is returned; a permanently failed task never
// resurrects.
func (q *Queue) MarkRetry(id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.getLocked(id)
	if err != nil {
		return err
	}
	switch {
	case t.PermanentlyFailed():
		return fmt.Errorf("%w: %s", ErrRetryBudgetExhausted, id)
	case t.Status != StatusInProgress && t.Status != StatusFailed:
		return fmt.Errorf("%w: retry %s from %s", ErrInvalidTransition, id, t.Status)
	}

	if t.RetryCount >= t.MaxRetries {
		q.failLocked(t, cause)
		return fmt.Errorf("%w: %s after %d retries", ErrRetryBudgetExhausted, id, t.RetryCount)
	}

	t.RetryCount++
	if cause != nil {
		t.Error = cause.Error()
	}
	q.transitionLocked(t, StatusRetrying, fmt.Sprintf("retry %d/%d", t.RetryCount, t.MaxRetries))
	return nil
}

// RetryEligible returns failed tasks that still have retry budget.
func (q *Queue) RetryEligible() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Task
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status == StatusFailed && t.RetryCount < t.MaxRetries {
			out = append(out, t.clone())
		}
	}
	return out
}

// IsTerminal reports whether every task is completed or permanently failed.
func (q *Queue) IsTerminal() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		if !q.tasks[id].Terminal() {
			return false
		}
	}
	return true
}

// Blocked returns non-terminal tasks that can never run because a direct or
// transitive dependency failed permanently.
func (q *Queue) Blocked() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	blocked := make(map[string]bool)
	// order is a topological order for plans built by BuildQueue; iterate to
	// a fixed point so hand-built queues work as well.
	for changed := true; changed; {
		changed = false
		for _, id := range q.order {
			t := q.tasks[id]
			if blocked[id] || t.Terminal() || t.Status == StatusInProgress {
				continue
			}
			for _, dep := range t.DependsOn {
				if q.tasks[dep].PermanentlyFailed() || blocked[dep] {
					blocked[id] = true
					changed = true
					break
				}
			}
		}
	}

	var out []Task
	for _, id := range q.order {
		if blocked[id] {
			out = append(out, q.tasks[id].clone())
		}
	}
	return out
}

// ClaimEmission returns true exactly once per task, the first time it is
// called after the task completed.
func (q *Queue) ClaimEmission(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok || t.Status != StatusCompleted || q.emitted[id] {
		return false
	}
	q.emitted[id] = true
	return true
}

// Get returns a copy of the task with id.
func (q *Queue) Get(id string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// Snapshot returns copies of every task in plan order.
func (q *Queue) Snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.tasks[id].clone())
	}
	return out
}

// DependencyResults returns the results of the direct dependencies of id.
func (q *Queue) DependencyResults(id string) map[string]string {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(t.DependsOn))
	for _, dep := range t.DependsOn {
		if d := q.tasks[dep]; d.Status == StatusCompleted {
			out[dep] = d.Result
		}
	}
	return out
}

// Progress returns aggregate counters.
func (q *Queue) Progress() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := Progress{Total: len(q.order)}
	for _, id := range q.order {
		t := q.tasks[id]
		p.Retries += t.RetryCount
		switch t.Status {
		case StatusPending:
			p.Pending++
		case StatusReady:
			p.Ready++
		case StatusInProgress:
			p.InProgress++
		case StatusRetrying:
			p.Retrying++
		case StatusCompleted:
			p.Completed++
		case StatusFailed:
			p.Failed++
		}
	}
	return p
}

// Log returns a copy of the execution log.
func (q *Queue) Log() []LogEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]LogEntry(nil), q.log...)
}

func (q *Queue) getLocked(id string) (*Task, error) {
	t, ok := q.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

func (q *Queue) depsCompletedLocked(t *Task) bool {
	for _, dep := range t.DependsOn {
		if q.tasks[dep].Status != StatusCompleted {
			return false
		}
	}
	return true
}

func (q *Queue) failLocked(t *Task, cause error) {
	if cause != nil {
		t.Error = cause.Error()
	}
	t.CompletedAt = q.now()
	q.transitionLocked(t, StatusFailed, t.Error)
}

func (q *Queue) transitionLocked(t *Task, to Status, detail string) {
	entry := LogEntry{
		Seq:    len(q.log) + 1,
		TaskID: t.ID,
		From:   t.Status,
		To:     to,
		Detail: detail,
		At:     q.now(),
	}
	t.Status = to
	q.log = append(q.log, entry)
	for _, hook := range q.hooks {
		hook(entry)
	}
}
