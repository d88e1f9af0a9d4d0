package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/james2654817/dingtalk-notion-sync/internal/dingtalk"
	"github.com/james2654817/dingtalk-notion-sync/internal/notion"
	"github.com/james2654817/dingtalk-notion-sync/internal/translate"
)

func TestNotionCycleListFailure(t *testing.T) {
	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, time.Now())

	records.On("RecentlyEdited", mock.Anything, personalDB, mock.Anything).
		Return([]notion.Page{}, errors.New("timeout")).Once()

	err := e.NotionCycle(personalDB)(context.Background(), time.Now().Add(-time.Hour))
	assert.Error(t, err)
}

func TestNotionCycleIsolatesPageFailures(t *testing.T) {
	// One bad page fails the cycle (so the window replays) but does not
	// block the pages after it.
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, t1.Add(time.Minute))

	pageFor := func(id, title string) notion.Page {
		return notion.Page{
			ID:             id,
			LastEditedTime: t1,
			Properties: notion.Properties{
				translate.PropTitle: notion.TitleProperty(title),
			},
		}
	}

	records.On("RecentlyEdited", mock.Anything, personalDB, mock.Anything).
		Return([]notion.Page{pageFor("page-a", "a"), pageFor("page-b", "b")}, nil).Once()

	todo.On("CreateTask", mock.Anything, mock.MatchedBy(func(f dingtalk.CreateFields) bool {
		return f.Subject == "a"
	})).Return("", errors.New("dingtalk 500")).Once()
	todo.On("CreateTask", mock.Anything, mock.MatchedBy(func(f dingtalk.CreateFields) bool {
		return f.Subject == "b"
	})).Return("task-b", nil).Once()
	records.On("UpdatePage", mock.Anything, "page-b", mock.Anything).Return(nil).Once()

	err := e.NotionCycle(personalDB)(context.Background(), t1.Add(-time.Hour))
	assert.Error(t, err, "a failed page must fail the cycle so the cursor holds")

	todo.AssertExpectations(t)
	records.AssertExpectations(t)
}

func TestDingtalkCycleRoutesPolledTasks(t *testing.T) {
	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, time.Now())

	since := time.Now().Add(-time.Hour)
	rec := dingtalk.TaskRecord{
		TaskID:       "task-10",
		Subject:      "from poller",
		CreatorID:    me,
		ExecutorIDs:  []string{"u-report"},
		ModifiedTime: time.Now().UnixMilli(),
	}

	todo.On("QueryTasks", mock.Anything, since).Return([]dingtalk.TaskRecord{rec}, nil).Once()
	records.On("FindPageByTaskID", mock.Anything, teamDB, translate.PropTaskID, "task-10").
		Return(nil, nil).Once()
	records.On("CreatePage", mock.Anything, teamDB, mock.Anything).
		Return(notion.Page{ID: "page-new"}, nil).Once()

	err := e.DingtalkCycle()(context.Background(), since)
	require.NoError(t, err)

	todo.AssertExpectations(t)
	records.AssertExpectations(t)
}
