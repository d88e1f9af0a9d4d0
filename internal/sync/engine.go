package sync

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/james2654817/dingtalk-notion-sync/internal/metrics"
	"github.com/james2654817/dingtalk-notion-sync/internal/model"
	"github.com/james2654817/dingtalk-notion-sync/internal/notion"
	"github.com/james2654817/dingtalk-notion-sync/internal/translate"
)

// Engine is the reconciliation core. It consumes canonical changes from the
// pollers and the webhook layer, gates them through the loop guard and the
// resolver, and issues create/update/mark-deleted calls to the backends.
type Engine struct {
	todo     TodoClient
	records  RecordClient
	resolver *Resolver

	personalDB string
	teamDB     string

	locks  *taskLocks
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(todo TodoClient, records RecordClient, personalDB, teamDB string, logger *zap.Logger) *Engine {
	return &Engine{
		todo:       todo,
		records:    records,
		resolver:   NewResolver(records, personalDB, teamDB),
		personalDB: personalDB,
		teamDB:     teamDB,
		locks:      newTaskLocks(),
		logger:     logger,
		now:        time.Now,
	}
}

// SyncPage reconciles one Notion page toward DingTalk: create the mirror task
// when the page carries no correlation id, update it otherwise. Either way
// the page gets a refreshed sync marker so the resulting edit is suppressed
// by the loop guard on the next cycle.
func (e *Engine) SyncPage(ctx context.Context, page notion.Page) (Outcome, error) {
	task := translate.TaskFromPage(page)

	key := task.DingtalkID
	if key == "" {
		// No correlation yet: serialize on the page so two racing triggers
		// cannot both create a mirror.
		key = "page:" + page.ID
	}
	unlock := e.locks.acquire(key)
	defer unlock()

	if ShouldSkip(task.LastSyncedAt, task.LastModifiedAt) {
		e.logger.Debug("page already synced, skipping", zap.String("page_id", page.ID))
		return e.done("notion_to_dingtalk", OutcomeSkipped, nil)
	}

	var o Outcome
	var err error
	if task.DingtalkID == "" {
		o, err = e.createTask(ctx, page, task)
	} else {
		o, err = e.updateTask(ctx, page, task)
	}
	return e.done("notion_to_dingtalk", o, err)
}

func (e *Engine) createTask(ctx context.Context, page notion.Page, task model.CanonicalTask) (Outcome, error) {
	fields := translate.CreateFields(task, []string{e.todo.UnionID()}, "notion_"+page.ID)
	taskID, err := e.todo.CreateTask(ctx, fields)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("create task for page %s: %w", page.ID, err)
	}

	if err := e.records.UpdatePage(ctx, page.ID, translate.CorrelationProperties(taskID, e.now())); err != nil {
		// The task exists but the correlation was not recorded; the next
		// cycle will retry and the sourceId keeps DingTalk deduplicating.
		return OutcomeFailed, fmt.Errorf("write back correlation for page %s: %w", page.ID, err)
	}

	e.logger.Info("created dingtalk mirror",
		zap.String("page_id", page.ID),
		zap.String("task_id", taskID))
	return OutcomeSynced, nil
}

func (e *Engine) updateTask(ctx context.Context, page notion.Page, task model.CanonicalTask) (Outcome, error) {
	if err := e.todo.UpdateTask(ctx, task.DingtalkID, translate.UpdateFields(task)); err != nil {
		return OutcomeFailed, fmt.Errorf("update task %s: %w", task.DingtalkID, err)
	}
	if err := e.records.UpdatePage(ctx, page.ID, translate.SyncMarker(e.now())); err != nil {
		return OutcomeFailed, fmt.Errorf("refresh sync marker on page %s: %w", page.ID, err)
	}
	return OutcomeSynced, nil
}

// HandleChange reconciles one DingTalk-originated change toward Notion.
func (e *Engine) HandleChange(ctx context.Context, ch model.TodoChange) (Outcome, error) {
	unlock := e.locks.acquire(ch.TaskID)
	defer unlock()

	var o Outcome
	var err error
	switch ch.Type {
	case model.ChangeCreate:
		o, err = e.routeCreate(ctx, ch)
	case model.ChangeUpdate:
		o, err = e.applyUpdate(ctx, ch)
	case model.ChangeDelete:
		o, err = e.applyDelete(ctx, ch)
	default:
		e.logger.Warn("unknown change type", zap.String("type", string(ch.Type)))
		o = OutcomeDropped
	}
	return e.done("dingtalk_to_notion", o, err)
}

// routeCreate picks the target board from the creator/executor roles:
// assigned to me by someone else goes to the personal board, assigned by me
// to someone else goes to the team board, and the two ambiguous combinations
// are no-ops.
func (e *Engine) routeCreate(ctx context.Context, ch model.TodoChange) (Outcome, error) {
	me := e.todo.UnionID()
	assignedToMe := slices.Contains(ch.ExecutorIDs, me)
	createdByMe := ch.CreatorID == me

	var databaseID string
	switch {
	case assignedToMe && !createdByMe:
		databaseID = e.personalDB
	case createdByMe && !assignedToMe:
		databaseID = e.teamDB
	default:
		return OutcomeIgnored, nil
	}
	return e.upsert(ctx, ch, databaseID)
}

// upsert creates the mirror page in the routed board, or folds into an
// update when a mirror already exists there (at-least-once delivery).
func (e *Engine) upsert(ctx context.Context, ch model.TodoChange, databaseID string) (Outcome, error) {
	existing, err := e.records.FindPageByTaskID(ctx, databaseID, translate.PropTaskID, ch.TaskID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("find mirror of task %s: %w", ch.TaskID, err)
	}
	if existing != nil {
		return e.updateMirror(ctx, ch, *existing)
	}

	page, err := e.records.CreatePage(ctx, databaseID, translate.PageProperties(ch.Task, e.now()))
	if err != nil {
		return OutcomeFailed, fmt.Errorf("create mirror of task %s: %w", ch.TaskID, err)
	}
	e.logger.Info("created notion mirror",
		zap.String("task_id", ch.TaskID),
		zap.String("page_id", page.ID))
	return OutcomeSynced, nil
}

// applyUpdate updates whichever board holds the mirror. Updates never
// create: a missing mirror is logged and dropped.
func (e *Engine) applyUpdate(ctx context.Context, ch model.TodoChange) (Outcome, error) {
	page, _, err := e.resolver.Resolve(ctx, ch.TaskID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("resolve task %s: %w", ch.TaskID, err)
	}
	if page == nil {
		e.logger.Warn("no mirror page for task update", zap.String("task_id", ch.TaskID))
		return OutcomeDropped, nil
	}
	return e.updateMirror(ctx, ch, *page)
}

func (e *Engine) updateMirror(ctx context.Context, ch model.TodoChange, page notion.Page) (Outcome, error) {
	mirror := translate.TaskFromPage(page)
	if ShouldSkip(mirror.LastSyncedAt, ch.Task.LastModifiedAt) {
		e.logger.Debug("task already synced, skipping", zap.String("task_id", ch.TaskID))
		return OutcomeSkipped, nil
	}

	if err := e.records.UpdatePage(ctx, page.ID, translate.PageProperties(ch.Task, e.now())); err != nil {
		return OutcomeFailed, fmt.Errorf("update mirror of task %s: %w", ch.TaskID, err)
	}
	return OutcomeSynced, nil
}

// applyDelete marks the mirror with the terminal deleted status instead of
// removing the page, preserving history.
func (e *Engine) applyDelete(ctx context.Context, ch model.TodoChange) (Outcome, error) {
	page, _, err := e.resolver.Resolve(ctx, ch.TaskID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("resolve task %s: %w", ch.TaskID, err)
	}
	if page == nil {
		e.logger.Warn("no mirror page for task delete", zap.String("task_id", ch.TaskID))
		return OutcomeDropped, nil
	}

	if err := e.records.UpdatePage(ctx, page.ID, translate.DeletedMarker()); err != nil {
		return OutcomeFailed, fmt.Errorf("mark mirror of task %s deleted: %w", ch.TaskID, err)
	}
	e.logger.Info("marked notion mirror deleted",
		zap.String("task_id", ch.TaskID),
		zap.String("page_id", page.ID))
	return OutcomeSynced, nil
}

func (e *Engine) done(direction string, o Outcome, err error) (Outcome, error) {
	metrics.SyncOps.WithLabelValues(direction, o.String()).Inc()
	return o, err
}
