package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/james2654817/dingtalk-notion-sync/internal/translate"
)

// NotionCycle returns a poll cycle over one Notion database. Per-page
// failures are contained (one bad page never blocks the rest) but any
// transport failure marks the whole cycle failed so the cursor holds and the
// window is replayed.
func (e *Engine) NotionCycle(databaseID string) func(ctx context.Context, since time.Time) error {
	return func(ctx context.Context, since time.Time) error {
		pages, err := e.records.RecentlyEdited(ctx, databaseID, since)
		if err != nil {
			return fmt.Errorf("list recently edited: %w", err)
		}

		var failed int
		for _, page := range pages {
			if _, err := e.SyncPage(ctx, page); err != nil {
				e.logger.Error("sync page failed",
					zap.String("page_id", page.ID),
					zap.Error(err))
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d pages failed", failed, len(pages))
		}
		return nil
	}
}

// DingtalkCycle returns a poll cycle over the user's DingTalk todo list.
// The webhook is the primary change source for DingTalk; this cycle is the
// catch-up path for deliveries lost while the listener was down.
func (e *Engine) DingtalkCycle() func(ctx context.Context, since time.Time) error {
	return func(ctx context.Context, since time.Time) error {
		records, err := e.todo.QueryTasks(ctx, since)
		if err != nil {
			return fmt.Errorf("query tasks: %w", err)
		}

		var failed int
		for _, rec := range records {
			if _, err := e.HandleChange(ctx, translate.ChangeFromRecord(rec)); err != nil {
				e.logger.Error("sync task failed",
					zap.String("task_id", rec.TaskID),
					zap.Error(err))
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d tasks failed", failed, len(records))
		}
		return nil
	}
}
