// ABOUTME: StageExecutor runs one stage of one work item: mark in_progress, call
// ABOUTME: the fallback policy, persist the artifact, and advance or record failure.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StageExecutor executes a single stage attempt against the durable record.
// Commit granularity is one stage: the record is committed in_progress before
// the provider call, and committed again with the outcome after. Partial
// stage output is never persisted.
type StageExecutor struct {
	Store     *StateStore
	Artifacts ArtifactStore
	Builder   *StageBuilder
	Policy    *FallbackPolicy

	// Routes maps each stage to its ordered provider fallback chain.
	Routes map[Stage][]ProviderRoute

	events emitter
}

// SetEventHandler wires lifecycle event delivery. Must be called before Run.
func (x *StageExecutor) SetEventHandler(h EventHandler) {
	x.events = emitter{handler: h}
}

// RunStage executes rec's current stage. On success the record advances to
// the next stage with attempts reset; on failure the record is marked failed
// with the error recorded. Both outcomes are committed before returning.
// A context error is returned as-is, leaving the record in_progress for the
// next run to pick up.
func (x *StageExecutor) RunStage(ctx context.Context, rec *WorkItemRecord) error {
	stage := rec.CurrentStage
	if stage == StageComplete {
		return nil
	}
	routes, ok := x.Routes[stage]
	if !ok || len(routes) == 0 {
		return fmt.Errorf("no provider routes for stage %q", stage)
	}

	attemptID := uuid.NewString()
	itemID := rec.Key.ID()

	rec.Status = StatusInProgress
	rec.UpdatedAt = time.Now().UTC()
	if err := x.Store.Upsert(rec); err != nil {
		return fmt.Errorf("committing in_progress for %s: %w", itemID, err)
	}
	x.events.emit(EventStageStarted, itemID, stage, map[string]any{"attempt_id": attemptID})

	result, err := x.executeStage(ctx, rec, stage, routes)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return x.commitFailure(rec, stage, err)
	}

	ref, err := x.Artifacts.Save(rec.Key, stage, []byte(result.Text))
	if err != nil {
		return x.commitFailure(rec, stage, fmt.Errorf("saving artifact: %w", err))
	}

	rec.ArtifactRefs[stage] = ref
	rec.CurrentStage = NextStage(stage)
	rec.AttemptCount = 0
	rec.LastError = ""
	if rec.CurrentStage == StageComplete {
		rec.Status = StatusSucceeded
	} else {
		rec.Status = StatusPending
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := x.Store.Upsert(rec); err != nil {
		return fmt.Errorf("committing %s completion for %s: %w", stage, itemID, err)
	}

	x.events.emit(EventStageCompleted, itemID, stage, map[string]any{
		"attempt_id": attemptID,
		"provider":   result.Provider,
		"model":      result.Model,
		"attempts":   result.Attempts,
		"ref":        ref,
	})
	return nil
}

func (x *StageExecutor) executeStage(ctx context.Context, rec *WorkItemRecord, stage Stage, routes []ProviderRoute) (*StageResult, error) {
	req, err := x.Builder.BuildRequest(rec, stage)
	if err != nil {
		return nil, err
	}

	itemID := rec.Key.ID()
	lastRoute := routes[0]
	x.Policy.Observer = func(route ProviderRoute, attempt int, attemptErr error) {
		if route != lastRoute {
			x.events.emit(EventProviderFallback, itemID, stage, map[string]any{
				"from": lastRoute.String(),
				"to":   route.String(),
			})
			lastRoute = route
		}
		if attemptErr != nil {
			x.events.emit(EventStageRetrying, itemID, stage, map[string]any{
				"provider": route.String(),
				"attempt":  attempt,
				"error":    attemptErr.Error(),
			})
		}
	}
	defer func() { x.Policy.Observer = nil }()

	return x.Policy.Execute(ctx, req, routes, ValidatorFor(stage))
}

func (x *StageExecutor) commitFailure(rec *WorkItemRecord, stage Stage, cause error) error {
	itemID := rec.Key.ID()
	rec.Status = StatusFailed
	rec.AttemptCount++
	rec.LastError = cause.Error()
	rec.UpdatedAt = time.Now().UTC()
	if err := x.Store.Upsert(rec); err != nil {
		return fmt.Errorf("committing failure for %s: %w (original: %v)", itemID, err, cause)
	}
	x.events.emit(EventStageFailed, itemID, stage, map[string]any{
		"error":    cause.Error(),
		"attempts": rec.AttemptCount,
	})
	return cause
}
