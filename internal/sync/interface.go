package sync

import (
	"context"
	"time"

	"github.com/james2654817/dingtalk-notion-sync/internal/dingtalk"
	"github.com/james2654817/dingtalk-notion-sync/internal/notion"
)

// TodoClient is the DingTalk surface the engine needs.
type TodoClient interface {
	UnionID() string
	CreateTask(ctx context.Context, f dingtalk.CreateFields) (string, error)
	UpdateTask(ctx context.Context, taskID string, f dingtalk.UpdateFields) error
	QueryTasks(ctx context.Context, since time.Time) ([]dingtalk.TaskRecord, error)
}

// RecordClient is the Notion surface the engine needs.
type RecordClient interface {
	RecentlyEdited(ctx context.Context, databaseID string, since time.Time) ([]notion.Page, error)
	CreatePage(ctx context.Context, databaseID string, props notion.Properties) (notion.Page, error)
	UpdatePage(ctx context.Context, pageID string, props notion.Properties) error
	FindPageByTaskID(ctx context.Context, databaseID, correlationProp, taskID string) (*notion.Page, error)
}
