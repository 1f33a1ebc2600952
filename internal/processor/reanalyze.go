package processor

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"freightflow/internal/logging"
	"freightflow/internal/types"
)

// Reanalyze re-runs extraction over already-chronicled messages. Threads
// are distributed round-robin across workers; within a thread, messages run
// strictly in occurredAt order so each extraction sees its predecessors'
// context. Messages without a chronicle go through the full pipeline.
// Shipment links are left as they are; reanalysis refreshes the analysis,
// not ownership.
func (p *Processor) Reanalyze(ctx context.Context, msgs []types.Message, workers int) types.BatchSummary {
	log := logging.L(logging.CategoryProcessor)
	start := time.Now()
	if workers < 1 {
		workers = 1
	}

	threads := partitionByThread(msgs)

	var g errgroup.Group
	results := make([]types.ProcessResult, len(msgs))
	offsets := make(map[string]int, len(msgs))
	for i, m := range msgs {
		offsets[m.MessageID] = i
	}

	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for t := w; t < len(threads); t += workers {
				for i := range threads[t] {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					m := &threads[t][i]
					res := p.reanalyzeOne(ctx, m)
					results[offsets[m.MessageID]] = *res
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warnw("reanalysis interrupted", "error", err)
	}

	summary := types.BatchSummary{TotalTimeMs: time.Since(start).Milliseconds()}
	for i := range results {
		summary.Processed++
		if results[i].Err != "" {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		if results[i].ShipmentID != "" {
			summary.Linked++
		}
	}
	log.Infow("reanalysis complete",
		"processed", summary.Processed, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "time_ms", summary.TotalTimeMs)
	return summary
}

func (p *Processor) reanalyzeOne(ctx context.Context, m *types.Message) *types.ProcessResult {
	log := logging.L(logging.CategoryProcessor)

	existing, err := p.store.GetChronicleByMessageID(ctx, m.MessageID)
	if err != nil {
		return p.fail(ctx, m, "reanalysis_lookup", err)
	}
	if existing == nil {
		return p.Process(ctx, m)
	}

	attachmentTexts := p.attachmentTexts(ctx, m)
	threadCtx, err := p.store.ThreadChronicles(ctx, m.ThreadID, 10)
	if err != nil {
		return p.fail(ctx, m, "reanalysis_context", err)
	}
	// Keep the chronicle's own row out of its context.
	threadCtx = dropChronicle(threadCtx, existing.ID)

	fresh, err := p.analyze(ctx, m, attachmentTexts, threadCtx, existing.ThreadPosition)
	if err != nil {
		return p.fail(ctx, m, "reanalysis_extract", err)
	}

	existing.Analysis = fresh.Analysis
	existing.Confidence = fresh.Confidence
	existing.ConfidenceSource = fresh.ConfidenceSource
	existing.EscalationReason = fresh.EscalationReason
	existing.ReanalysisFlags = fresh.ReanalysisFlags
	if err := p.store.UpdateChronicle(ctx, existing); err != nil {
		return p.fail(ctx, m, "reanalysis_persist", err)
	}
	log.Debugw("chronicle reanalyzed",
		"chronicle_id", existing.ID, "document_type", existing.Analysis.DocumentType)
	return &types.ProcessResult{
		ChronicleID: existing.ID,
		ShipmentID:  existing.ShipmentID,
	}
}

// partitionByThread groups messages per thread, each group sorted by
// receipt time.
func partitionByThread(msgs []types.Message) [][]types.Message {
	byThread := make(map[string][]types.Message)
	var order []string
	for _, m := range msgs {
		if _, ok := byThread[m.ThreadID]; !ok {
			order = append(order, m.ThreadID)
		}
		byThread[m.ThreadID] = append(byThread[m.ThreadID], m)
	}
	out := make([][]types.Message, 0, len(order))
	for _, id := range order {
		group := byThread[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ReceivedAt.Before(group[j].ReceivedAt)
		})
		out = append(out, group)
	}
	return out
}

func dropChronicle(chronicles []types.Chronicle, id string) []types.Chronicle {
	out := chronicles[:0]
	for _, c := range chronicles {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
