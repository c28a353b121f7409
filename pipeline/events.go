// ABOUTME: Lifecycle events emitted by the engine and stage executor.
// ABOUTME: Delivered to an optional EventHandler callback; the CLI renders them to the console.

package pipeline

import "time"

// EngineEventType identifies a lifecycle event emitted during a run.
type EngineEventType string

const (
	EventRunStarted   EngineEventType = "run.started"
	EventRunCompleted EngineEventType = "run.completed"

	EventItemStarted   EngineEventType = "item.started"
	EventItemSkipped   EngineEventType = "item.skipped"
	EventItemSucceeded EngineEventType = "item.succeeded"
	EventItemFailed    EngineEventType = "item.failed"

	EventStageStarted   EngineEventType = "stage.started"
	EventStageCompleted EngineEventType = "stage.completed"
	EventStageFailed    EngineEventType = "stage.failed"
	EventStageRetrying  EngineEventType = "stage.retrying"

	EventProviderFallback EngineEventType = "provider.fallback"
)

// EngineEvent represents a lifecycle event emitted during pipeline execution.
type EngineEvent struct {
	Type      EngineEventType
	ItemID    string
	Stage     Stage
	Data      map[string]any
	Timestamp time.Time
}

// EventHandler receives engine events. Handlers must be fast; they run
// inline on the engine goroutine.
type EventHandler func(EngineEvent)

// emitter wraps an optional handler so emit sites stay one-liners.
type emitter struct {
	handler EventHandler
}

func (e emitter) emit(evtType EngineEventType, itemID string, stage Stage, data map[string]any) {
	if e.handler == nil {
		return
	}
	e.handler(EngineEvent{
		Type:      evtType,
		ItemID:    itemID,
		Stage:     stage,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
