package pipeline

import (
	"context"
	"sync"
)

// BatchItem identifies one subject/session to process.
type BatchItem struct {
	Subject string
	Session string
}

// BatchResult pairs an item with its run outcome.
type BatchResult struct {
	Item   BatchItem
	Report *Report
	Err    error
}

// EngineFactory builds an independent engine and run for one item. Each item
// gets its own Recording and (typically) its own subject-scoped checkpoint
// store; the only shared resource is the store directory, where distinct
// subjects write distinct keys.
type EngineFactory func(item BatchItem) (*Engine, *Run, error)

// RunBatch executes one independent pipeline run per item, each on its own
// goroutine. Runs share no mutable state; failures are reported per item
// rather than aborting the batch.
func RunBatch(ctx context.Context, items []BatchItem, build EngineFactory) []BatchResult {
	results := make([]BatchResult, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng, run, err := build(item)
			if err != nil {
				results[i] = BatchResult{Item: item, Err: err}
				return
			}
			report, err := eng.Execute(ctx, run, "")
			results[i] = BatchResult{Item: item, Report: report, Err: err}
		}()
	}
	wg.Wait()

	return results
}
