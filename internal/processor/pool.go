package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"freightflow/internal/logging"
	"freightflow/internal/types"
)

// progressEvery is how often workers report batch progress.
const progressEvery = 25

// RunBatch processes messages with a bounded worker pool: a shared atomic
// index into the batch, each worker pulling the next message and running it
// to completion. Window bounds are recorded as sync state.
func (p *Processor) RunBatch(ctx context.Context, msgs []types.Message, workers int, windowStart, windowEnd time.Time) types.BatchSummary {
	log := logging.L(logging.CategoryProcessor)
	start := time.Now()
	if workers < 1 {
		workers = 1
	}

	var (
		next      atomic.Int64
		processed atomic.Int64
		succeeded atomic.Int64
		failed    atomic.Int64
		linked    atomic.Int64
		wg        sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i := int(next.Add(1)) - 1
				if i >= len(msgs) {
					return
				}
				res := p.Process(ctx, &msgs[i])
				n := processed.Add(1)
				switch {
				case res.Err != "":
					failed.Add(1)
				default:
					succeeded.Add(1)
					if res.ShipmentID != "" {
						linked.Add(1)
					}
				}
				if n%progressEvery == 0 {
					log.Infow("batch progress",
						"processed", n, "total", len(msgs),
						"failed", failed.Load())
				}
			}
		}()
	}
	wg.Wait()

	summary := types.BatchSummary{
		Processed:   int(processed.Load()),
		Succeeded:   int(succeeded.Load()),
		Failed:      int(failed.Load()),
		Linked:      int(linked.Load()),
		TotalTimeMs: time.Since(start).Milliseconds(),
	}
	if p.metrics != nil {
		p.metrics.BatchSeconds.Observe(time.Since(start).Seconds())
	}
	log.Infow("batch complete",
		"processed", summary.Processed, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "linked", summary.Linked,
		"time_ms", summary.TotalTimeMs)

	if err := p.store.RecordSyncState(ctx, &types.SyncState{
		LastRunAt:   time.Now().UTC(),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Processed:   summary.Processed,
		Succeeded:   summary.Succeeded,
		Failed:      summary.Failed,
	}); err != nil {
		log.Warnw("sync state record failed", "error", err)
	}
	return summary
}
