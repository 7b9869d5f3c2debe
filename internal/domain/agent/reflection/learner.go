package reflection

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reasoner/internal/domain/agent/strategy"
	"reasoner/internal/logging"
	jsonx "reasoner/internal/shared/json"
)

const defaultExperienceCapacity = 100

// Query patterns recognized by ClassifyPattern.
const (
	PatternDefinition  = "definition"
	PatternHowTo       = "how_to"
	PatternExplanation = "explanation"
	PatternComparison  = "comparison"
	PatternEnumeration = "enumeration"
	PatternGeneral     = "general"
)

// Checked in order; the first pattern with a matching cue wins.
var patternCues = []struct {
	pattern string
	cues    []string
}{
	{PatternComparison, []string{"compare", "comparison", "difference between", " vs ", " vs. ", "versus", "better than", "pros and cons"}},
	{PatternEnumeration, []string{"list ", "what are the", "examples of", "types of", "kinds of", "name some", "which are"}},
	{PatternHowTo, []string{"how to", "how do i", "how can i", "how should i", "steps to", "guide to"}},
	{PatternExplanation, []string{"why ", "explain", "how does", "how do ", "what causes", "reason for"}},
	{PatternDefinition, []string{"what is", "what's", "what are", "define", "definition of", "meaning of", "who is"}},
}

// ClassifyPattern buckets a query by its shape using keyword cues.
func ClassifyPattern(query string) string {
	text := " " + strings.ToLower(strings.Join(strings.Fields(query), " ")) + " "
	for _, pc := range patternCues {
		for _, cue := range pc.cues {
			if strings.Contains(text, cue) {
				return pc.pattern
			}
		}
	}
	return PatternGeneral
}

// ExperienceRecord is one remembered outcome.
type ExperienceRecord struct {
	QueryPattern string            `json:"query_pattern"`
	Strategy     strategy.Strategy `json:"strategy_used"`
	Success      bool              `json:"success"`
	QualityScore float64           `json:"quality_score"`
	Lessons      []string          `json:"lessons,omitempty"`
	RecordedAt   time.Time         `json:"recorded_at"`
}

// LearnerConfig wires a Learner.
type LearnerConfig struct {
	Capacity int
	Logger   logging.Logger
}

// Learner keeps a bounded, oldest-evicted log of outcomes. One Learner is
// shared by every request of a process; all methods are safe for
// concurrent use.
type Learner struct {
	mu       sync.Mutex
	records  []ExperienceRecord
	capacity int
	logger   logging.Logger
	now      func() time.Time
}

// NewLearner creates an empty Learner.
func NewLearner(cfg LearnerConfig) *Learner {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultExperienceCapacity
	}
	return &Learner{
		capacity: capacity,
		logger:   logging.WithComponent(cfg.Logger, "learner"),
		now:      time.Now,
	}
}

// Record classifies query and appends the outcome, evicting the oldest
// records beyond capacity.
func (l *Learner) Record(query string, used strategy.Strategy, success bool, score float64, lessons []string) ExperienceRecord {
	rec := ExperienceRecord{
		QueryPattern: ClassifyPattern(query),
		Strategy:     used,
		Success:      success,
		QualityScore: clamp01(score),
		Lessons:      append([]string(nil), lessons...),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	rec.RecordedAt = l.now()
	l.appendLocked(rec)
	l.logger.Debug("recorded %s/%s success=%t score=%.2f (%d kept)", rec.QueryPattern, used, success, rec.QualityScore, len(l.records))
	return rec
}

func (l *Learner) appendLocked(rec ExperienceRecord) {
	l.records = append(l.records, rec)
	if over := len(l.records) - l.capacity; over > 0 {
		kept := make([]ExperienceRecord, l.capacity)
		copy(kept, l.records[over:])
		l.records = kept
	}
}

// BestStrategy returns the strategy with the highest average quality among
// successful records for pattern. ok is false when there is no successful
// history, which is the common case for a fresh learner.
func (l *Learner) BestStrategy(pattern string) (best strategy.Strategy, avg float64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	type tally struct {
		sum   float64
		count int
	}
	tallies := make(map[strategy.Strategy]*tally)
	var order []strategy.Strategy
	for _, rec := range l.records {
		if !rec.Success || rec.QueryPattern != pattern {
			continue
		}
		t, seen := tallies[rec.Strategy]
		if !seen {
			t = &tally{}
			tallies[rec.Strategy] = t
			order = append(order, rec.Strategy)
		}
		t.sum += rec.QualityScore
		t.count++
	}
	for _, s := range order {
		t := tallies[s]
		if mean := t.sum / float64(t.count); !ok || mean > avg {
			best, avg, ok = s, mean, true
		}
	}
	return best, avg, ok
}

// Recommend implements strategy.ExperienceAdvisor.
func (l *Learner) Recommend(query string) (strategy.Recommendation, bool) {
	pattern := ClassifyPattern(query)
	best, avg, ok := l.BestStrategy(pattern)
	if !ok {
		return strategy.Recommendation{}, false
	}
	return strategy.Recommendation{Pattern: pattern, Strategy: best, AverageScore: avg}, true
}

// Records returns a copy of the log, oldest first.
func (l *Learner) Records() []ExperienceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ExperienceRecord(nil), l.records...)
}

// Save writes the log to path as JSON, replacing the file atomically.
func (l *Learner) Save(path string) error {
	data, err := jsonx.MarshalIndent(l.Records(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode experience: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create experience dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write experience: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace experience file: %w", err)
	}
	return nil
}

// Load appends the records stored at path. A missing file is not an error.
func (l *Learner) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read experience: %w", err)
	}
	var records []ExperienceRecord
	if err := jsonx.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode experience %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range records {
		l.appendLocked(rec)
	}
	l.logger.Info("loaded %d experience record(s) from %s", len(records), path)
	return nil
}
