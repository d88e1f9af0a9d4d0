package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/james2654817/dingtalk-notion-sync/internal/dingtalk"
	"github.com/james2654817/dingtalk-notion-sync/internal/model"
	"github.com/james2654817/dingtalk-notion-sync/internal/notion"
	"github.com/james2654817/dingtalk-notion-sync/internal/translate"
)

const (
	personalDB = "db-personal"
	teamDB     = "db-team"
	me         = "u-me"
)

type MockTodoClient struct {
	mock.Mock
}

func (m *MockTodoClient) UnionID() string {
	return me
}

func (m *MockTodoClient) CreateTask(ctx context.Context, f dingtalk.CreateFields) (string, error) {
	args := m.Called(ctx, f)
	return args.String(0), args.Error(1)
}

func (m *MockTodoClient) UpdateTask(ctx context.Context, taskID string, f dingtalk.UpdateFields) error {
	args := m.Called(ctx, taskID, f)
	return args.Error(0)
}

func (m *MockTodoClient) QueryTasks(ctx context.Context, since time.Time) ([]dingtalk.TaskRecord, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]dingtalk.TaskRecord), args.Error(1)
}

type MockRecordClient struct {
	mock.Mock
}

func (m *MockRecordClient) RecentlyEdited(ctx context.Context, databaseID string, since time.Time) ([]notion.Page, error) {
	args := m.Called(ctx, databaseID, since)
	return args.Get(0).([]notion.Page), args.Error(1)
}

func (m *MockRecordClient) CreatePage(ctx context.Context, databaseID string, props notion.Properties) (notion.Page, error) {
	args := m.Called(ctx, databaseID, props)
	return args.Get(0).(notion.Page), args.Error(1)
}

func (m *MockRecordClient) UpdatePage(ctx context.Context, pageID string, props notion.Properties) error {
	args := m.Called(ctx, pageID, props)
	return args.Error(0)
}

func (m *MockRecordClient) FindPageByTaskID(ctx context.Context, databaseID, correlationProp, taskID string) (*notion.Page, error) {
	args := m.Called(ctx, databaseID, correlationProp, taskID)
	if p := args.Get(0); p != nil {
		return p.(*notion.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestEngine(todo *MockTodoClient, records *MockRecordClient, now time.Time) *Engine {
	e := NewEngine(todo, records, personalDB, teamDB, zap.NewNop())
	e.now = func() time.Time { return now }
	return e
}

func syncedAtOf(t *testing.T, props notion.Properties) time.Time {
	t.Helper()
	ts, err := translate.ParseTime(props[translate.PropLastSynced].DateStart())
	require.NoError(t, err)
	return ts
}

func TestSyncPageCreatesMirrorAndWritesBack(t *testing.T) {
	// A Notion page with no correlation id: create on DingTalk exactly once,
	// then write back the new task id plus a sync stamp at or after the
	// page's modification time.
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	now := t1.Add(time.Minute)

	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, now)

	page := notion.Page{
		ID:             "page-1",
		LastEditedTime: t1,
		Properties: notion.Properties{
			translate.PropTitle:    notion.TitleProperty("new task"),
			translate.PropPriority: notion.SelectProperty("高"),
		},
	}

	todo.On("CreateTask", mock.Anything, mock.MatchedBy(func(f dingtalk.CreateFields) bool {
		return f.Subject == "new task" &&
			f.SourceID == "notion_page-1" &&
			len(f.ExecutorIDs) == 1 && f.ExecutorIDs[0] == me
	})).Return("task-new", nil).Once()

	records.On("UpdatePage", mock.Anything, "page-1", mock.MatchedBy(func(props notion.Properties) bool {
		return props[translate.PropTaskID].RichTextText() == "task-new" &&
			!syncedAtOf(t, props).Before(t1)
	})).Return(nil).Once()

	o, err := e.SyncPage(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, o)

	todo.AssertExpectations(t)
	records.AssertExpectations(t)
}

func TestSyncPageUpdatesExistingMirror(t *testing.T) {
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, t1.Add(time.Minute))

	page := notion.Page{
		ID:             "page-2",
		LastEditedTime: t1,
		Properties: notion.Properties{
			translate.PropTitle:      notion.TitleProperty("known task"),
			translate.PropTaskID:     notion.RichTextProperty("task-9"),
			translate.PropStatus:     notion.StatusProperty("已完成"),
			translate.PropLastSynced: notion.DateProperty(translate.FormatTime(t1.Add(-time.Hour))),
		},
	}

	todo.On("UpdateTask", mock.Anything, "task-9", mock.MatchedBy(func(f dingtalk.UpdateFields) bool {
		return f.Subject != nil && *f.Subject == "known task" &&
			f.Done != nil && *f.Done
	})).Return(nil).Once()
	records.On("UpdatePage", mock.Anything, "page-2", mock.Anything).Return(nil).Once()

	o, err := e.SyncPage(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, o)

	todo.AssertExpectations(t)
	records.AssertExpectations(t)
	// No create happened.
	todo.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
}

func TestSyncPageSuppressesOwnWrite(t *testing.T) {
	// last_synced_at >= last_modified_at means the edit was our own prior
	// write: zero backend calls.
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, t1.Add(time.Minute))

	page := notion.Page{
		ID:             "page-3",
		LastEditedTime: t1,
		Properties: notion.Properties{
			translate.PropTitle:      notion.TitleProperty("already synced"),
			translate.PropTaskID:     notion.RichTextProperty("task-9"),
			translate.PropLastSynced: notion.DateProperty(translate.FormatTime(t1)),
		},
	}

	o, err := e.SyncPage(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, o)

	todo.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
	todo.AssertNotCalled(t, "UpdateTask", mock.Anything, mock.Anything, mock.Anything)
	records.AssertNotCalled(t, "UpdatePage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncPageCreateFailureDoesNotWriteBack(t *testing.T) {
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, t1.Add(time.Minute))

	page := notion.Page{
		ID:             "page-4",
		LastEditedTime: t1,
		Properties: notion.Properties{
			translate.PropTitle: notion.TitleProperty("doomed"),
		},
	}

	todo.On("CreateTask", mock.Anything, mock.Anything).Return("", errors.New("dingtalk down")).Once()

	o, err := e.SyncPage(context.Background(), page)
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, o)
	records.AssertNotCalled(t, "UpdatePage", mock.Anything, mock.Anything, mock.Anything)
}

func createChange(creatorID string, executorIDs ...string) model.TodoChange {
	ch := model.NewTodoChange(model.ChangeCreate, "task-1")
	ch.CreatorID = creatorID
	ch.ExecutorIDs = executorIDs
	ch.Task = model.CanonicalTask{Title: "routed", DingtalkID: "task-1", Priority: model.PriorityNormal}
	return ch
}

func TestRoutingMatrix(t *testing.T) {
	tests := []struct {
		name   string
		change model.TodoChange
		wantDB string // empty means no-op
	}{
		{"assigned to me by someone else", createChange("u-boss", me), personalDB},
		{"created by me for someone else", createChange(me, "u-report"), teamDB},
		{"self-assigned to self", createChange(me, me), ""},
		{"neither role", createChange("u-boss", "u-report"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			todo := new(MockTodoClient)
			records := new(MockRecordClient)
			e := newTestEngine(todo, records, time.Now())

			if tt.wantDB != "" {
				records.On("FindPageByTaskID", mock.Anything, tt.wantDB, translate.PropTaskID, "task-1").
					Return(nil, nil).Once()
				records.On("CreatePage", mock.Anything, tt.wantDB, mock.Anything).
					Return(notion.Page{ID: "page-new"}, nil).Once()
			}

			o, err := e.HandleChange(context.Background(), tt.change)
			require.NoError(t, err)

			if tt.wantDB != "" {
				assert.Equal(t, OutcomeSynced, o)
				records.AssertExpectations(t)
			} else {
				assert.Equal(t, OutcomeIgnored, o)
				records.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything, mock.Anything)
				records.AssertNotCalled(t, "FindPageByTaskID", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestCreateChangeFoldsIntoUpdateWhenMirrorExists(t *testing.T) {
	// At-least-once delivery: a replayed create must not produce a second
	// mirror page.
	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, time.Now())

	existing := notion.Page{ID: "page-old", Properties: notion.Properties{
		translate.PropTaskID: notion.RichTextProperty("task-1"),
	}}

	records.On("FindPageByTaskID", mock.Anything, personalDB, translate.PropTaskID, "task-1").
		Return(&existing, nil).Once()
	records.On("UpdatePage", mock.Anything, "page-old", mock.Anything).Return(nil).Once()

	o, err := e.HandleChange(context.Background(), createChange("u-boss", me))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, o)

	records.AssertExpectations(t)
	records.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateWithoutMirrorIsDropped(t *testing.T) {
	// Updates never create. Both boards are searched, then the event is
	// dropped with zero writes.
	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, time.Now())

	records.On("FindPageByTaskID", mock.Anything, personalDB, translate.PropTaskID, "task-ghost").
		Return(nil, nil).Once()
	records.On("FindPageByTaskID", mock.Anything, teamDB, translate.PropTaskID, "task-ghost").
		Return(nil, nil).Once()

	ch := model.NewTodoChange(model.ChangeUpdate, "task-ghost")
	o, err := e.HandleChange(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDropped, o)

	records.AssertExpectations(t)
	records.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything, mock.Anything)
	records.AssertNotCalled(t, "UpdatePage", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateResolvesPersonalBoardFirst(t *testing.T) {
	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, time.Now())

	hit := notion.Page{ID: "page-p", Properties: notion.Properties{}}
	records.On("FindPageByTaskID", mock.Anything, personalDB, translate.PropTaskID, "task-2").
		Return(&hit, nil).Once()
	records.On("UpdatePage", mock.Anything, "page-p", mock.Anything).Return(nil).Once()

	ch := model.NewTodoChange(model.ChangeUpdate, "task-2")
	ch.Task = model.CanonicalTask{Title: "updated", DingtalkID: "task-2", Priority: model.PriorityNormal}

	o, err := e.HandleChange(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, o)

	// Personal hit short-circuits: the team board is never queried.
	records.AssertNotCalled(t, "FindPageByTaskID", mock.Anything, teamDB, mock.Anything, mock.Anything)
}

func TestUpdateSuppressedByMirrorSyncStamp(t *testing.T) {
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, t1.Add(time.Minute))

	mirror := notion.Page{ID: "page-m", Properties: notion.Properties{
		translate.PropLastSynced: notion.DateProperty(translate.FormatTime(t1.Add(time.Second))),
	}}
	records.On("FindPageByTaskID", mock.Anything, personalDB, translate.PropTaskID, "task-3").
		Return(&mirror, nil).Once()

	ch := model.NewTodoChange(model.ChangeUpdate, "task-3")
	ch.Task = model.CanonicalTask{DingtalkID: "task-3", LastModifiedAt: t1}

	o, err := e.HandleChange(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, o)
	records.AssertNotCalled(t, "UpdatePage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteMarksMirrorInsteadOfRemoving(t *testing.T) {
	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, time.Now())

	mirror := notion.Page{ID: "page-d", Properties: notion.Properties{}}
	records.On("FindPageByTaskID", mock.Anything, personalDB, translate.PropTaskID, "task-4").
		Return(&mirror, nil).Once()
	records.On("UpdatePage", mock.Anything, "page-d", mock.MatchedBy(func(props notion.Properties) bool {
		return props[translate.PropStatus].StatusName() == translate.StatusDeleted
	})).Return(nil).Once()

	ch := model.NewTodoChange(model.ChangeDelete, "task-4")
	o, err := e.HandleChange(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, o)
	records.AssertExpectations(t)
}

func TestResolverTransportErrorIsRetryable(t *testing.T) {
	todo := new(MockTodoClient)
	records := new(MockRecordClient)
	e := newTestEngine(todo, records, time.Now())

	records.On("FindPageByTaskID", mock.Anything, personalDB, translate.PropTaskID, "task-5").
		Return(nil, errors.New("notion 502")).Once()

	ch := model.NewTodoChange(model.ChangeUpdate, "task-5")
	o, err := e.HandleChange(context.Background(), ch)
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, o)
}
