package sync

import (
	"context"

	"github.com/james2654817/dingtalk-notion-sync/internal/notion"
	"github.com/james2654817/dingtalk-notion-sync/internal/translate"
)

// Resolver finds the Notion mirror of a DingTalk task. Webhook events do not
// say which board a task belongs to, so both are searched in order, personal
// first, stopping at the first hit. The resolver never decides creation
// targets; that is routing, owned by the engine.
type Resolver struct {
	records   RecordClient
	databases []string
}

func NewResolver(records RecordClient, personalDB, teamDB string) *Resolver {
	return &Resolver{
		records:   records,
		databases: []string{personalDB, teamDB},
	}
}

// Resolve returns the mirror page and the database it lives in, or a nil
// page when no mirror exists.
func (r *Resolver) Resolve(ctx context.Context, taskID string) (*notion.Page, string, error) {
	for _, db := range r.databases {
		page, err := r.records.FindPageByTaskID(ctx, db, translate.PropTaskID, taskID)
		if err != nil {
			return nil, "", err
		}
		if page != nil {
			return page, db, nil
		}
	}
	return nil, "", nil
}
