package ports

import "time"

// EventType labels events broadcast while a request is processed.
type EventType string

const (
	EventStrategyDecision   EventType = "strategy_decision"
	EventThinkingStep       EventType = "thinking_step"
	EventIntermediateResult EventType = "intermediate_result"
	EventProgress           EventType = "progress"
	EventFinalAnswer        EventType = "final_answer"
)

// Event is the envelope delivered to an EventSink.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventSink receives engine events. Emit must return promptly; a slow
// consumer must never stall the loops that emit.
type EventSink interface {
	Emit(event Event)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// NopSink returns a sink that drops every event.
func NopSink() EventSink { return nopSink{} }

// SinkOrNop returns sink, or a no-op sink when sink is nil.
func SinkOrNop(sink EventSink) EventSink {
	if sink == nil {
		return nopSink{}
	}
	return sink
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType EventType, runID string, payload map[string]any) Event {
	return Event{Type: eventType, RunID: runID, Payload: payload, Timestamp: time.Now()}
}
