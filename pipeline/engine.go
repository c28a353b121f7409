// ABOUTME: Engine enumerates the work item cross product and drives each eligible
// ABOUTME: item through its remaining stages, isolating failures per item.

package pipeline

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Dimensions define the cross product of work items a run covers.
// Questions are keyed by position; reordering them orphans prior state.
type Dimensions struct {
	Roles      []string
	Questions  []string
	Industries []string
	Variants   int
}

// Keys returns every work item key with its question text, in deterministic
// order: roles, then questions, then industries, then variants.
func (d Dimensions) Keys() []keyedQuestion {
	var out []keyedQuestion
	for _, role := range d.Roles {
		for qi, question := range d.Questions {
			for _, industry := range d.Industries {
				for v := 1; v <= d.Variants; v++ {
					out = append(out, keyedQuestion{
						Key: WorkItemKey{
							Role:          role,
							QuestionIndex: qi,
							Industry:      industry,
							Variant:       v,
						},
						Question: question,
					})
				}
			}
		}
	}
	return out
}

type keyedQuestion struct {
	Key      WorkItemKey
	Question string
}

// Filter narrows a run to a subset of the cross product. Zero values match
// everything; QuestionIndex uses -1 for "all".
type Filter struct {
	Role          string
	QuestionIndex int
	Industry      string
}

// NewFilter returns a filter matching every item.
func NewFilter() Filter {
	return Filter{QuestionIndex: -1}
}

func (f Filter) matches(key WorkItemKey) bool {
	if f.Role != "" && f.Role != key.Role {
		return false
	}
	if f.QuestionIndex >= 0 && f.QuestionIndex != key.QuestionIndex {
		return false
	}
	if f.Industry != "" && f.Industry != key.Industry {
		return false
	}
	return true
}

// FailedItem identifies one permanently failed work item and the error that
// stopped it, so a summary reader can target a re-run without opening the
// state store.
type FailedItem struct {
	ID        string
	Stage     Stage
	LastError string
}

// RunSummary reports the outcome of one engine run.
type RunSummary struct {
	RunID       string
	Succeeded   int
	Failed      int
	Skipped     int
	FailedItems []FailedItem
}

// Engine orchestrates a pipeline run over the state store. Items are
// processed one at a time in deterministic order; a failing item is recorded
// and skipped over rather than aborting the run. Context cancellation is
// honored between stage attempts and ends the run early.
type Engine struct {
	Store    *StateStore
	Executor *StageExecutor

	// UntilStage, when set, caps how far items advance: each item runs its
	// outstanding stages through UntilStage and then stops, leaving the
	// record pending at the next stage. Empty means run to completion.
	UntilStage Stage

	events emitter
}

// NewEngine wires an engine and its executor to the same event handler.
func NewEngine(store *StateStore, executor *StageExecutor, handler EventHandler) *Engine {
	executor.SetEventHandler(handler)
	return &Engine{
		Store:    store,
		Executor: executor,
		events:   emitter{handler: handler},
	}
}

// Run enumerates dims, creates missing records, skips succeeded ones, and
// drives every remaining item through its outstanding stages. The returned
// summary is valid even when err is non-nil (early cancellation).
func (e *Engine) Run(ctx context.Context, dims Dimensions, filter Filter) (*RunSummary, error) {
	runID := ulid.Make().String()
	summary := &RunSummary{RunID: runID}

	items := dims.Keys()
	e.events.emit(EventRunStarted, "", "", map[string]any{
		"run_id": runID,
		"total":  len(items),
	})

	for _, item := range items {
		if !filter.matches(item.Key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rec, err := e.loadOrCreate(item)
		if err != nil {
			return summary, err
		}
		itemID := rec.Key.ID()

		if !rec.Resumable() {
			summary.Skipped++
			e.events.emit(EventItemSkipped, itemID, rec.CurrentStage, nil)
			continue
		}

		e.events.emit(EventItemStarted, itemID, rec.CurrentStage, nil)
		if err := e.runItem(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			lastErr := rec.LastError
			if lastErr == "" {
				lastErr = err.Error()
			}
			summary.FailedItems = append(summary.FailedItems, FailedItem{
				ID:        itemID,
				Stage:     rec.CurrentStage,
				LastError: lastErr,
			})
			e.events.emit(EventItemFailed, itemID, rec.CurrentStage, map[string]any{"error": err.Error()})
			continue
		}
		summary.Succeeded++
		e.events.emit(EventItemSucceeded, itemID, rec.CurrentStage, nil)
	}

	e.events.emit(EventRunCompleted, "", "", map[string]any{
		"run_id":    runID,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	})
	return summary, nil
}

// Resume drives only the records already in the store that are pending,
// failed, or in_progress. No new records are created; the cross product is
// not consulted.
func (e *Engine) Resume(ctx context.Context, filter Filter) (*RunSummary, error) {
	runID := ulid.Make().String()
	summary := &RunSummary{RunID: runID}

	records, err := e.Store.ListResumable()
	if err != nil {
		return summary, err
	}
	e.events.emit(EventRunStarted, "", "", map[string]any{
		"run_id": runID,
		"total":  len(records),
	})

	for _, rec := range records {
		if !filter.matches(rec.Key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		itemID := rec.Key.ID()

		e.events.emit(EventItemStarted, itemID, rec.CurrentStage, nil)
		if err := e.runItem(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			lastErr := rec.LastError
			if lastErr == "" {
				lastErr = err.Error()
			}
			summary.FailedItems = append(summary.FailedItems, FailedItem{
				ID:        itemID,
				Stage:     rec.CurrentStage,
				LastError: lastErr,
			})
			e.events.emit(EventItemFailed, itemID, rec.CurrentStage, map[string]any{"error": err.Error()})
			continue
		}
		summary.Succeeded++
		e.events.emit(EventItemSucceeded, itemID, rec.CurrentStage, nil)
	}

	e.events.emit(EventRunCompleted, "", "", map[string]any{
		"run_id":    runID,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	})
	return summary, nil
}

func (e *Engine) loadOrCreate(item keyedQuestion) (*WorkItemRecord, error) {
	rec, found, err := e.Store.Get(item.Key)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", item.Key.ID(), err)
	}
	if found {
		return rec, nil
	}
	rec = NewWorkItemRecord(item.Key, item.Question)
	if err := e.Store.Upsert(rec); err != nil {
		return nil, fmt.Errorf("creating %s: %w", item.Key.ID(), err)
	}
	return rec, nil
}

func (e *Engine) runItem(ctx context.Context, rec *WorkItemRecord) error {
	for rec.CurrentStage != StageComplete && !e.pastCap(rec.CurrentStage) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Executor.RunStage(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pastCap(stage Stage) bool {
	if e.UntilStage == "" {
		return false
	}
	return StageIndex(stage) > StageIndex(e.UntilStage)
}
