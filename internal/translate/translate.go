// Package translate is the single conversion boundary between the backends'
// native record shapes and the canonical task model. Nothing outside this
// package maps priorities, statuses, timestamps or property names.
package translate

import (
	"errors"
	"fmt"
	"time"

	"github.com/james2654817/dingtalk-notion-sync/internal/dingtalk"
	"github.com/james2654817/dingtalk-notion-sync/internal/model"
	"github.com/james2654817/dingtalk-notion-sync/internal/notion"
)

// Notion schema property names.
const (
	PropTitle      = "任務名稱"
	PropDue        = "到期日"
	PropPriority   = "優先級"
	PropNotes      = "備註"
	PropStatus     = "狀態"
	PropTaskID     = "釘釘任務ID"
	PropLastSynced = "上次同步"
)

// Status labels. Deleted tasks keep their page with a terminal status.
const (
	StatusDone    = "Done"
	StatusTodo    = "To Do"
	StatusDeleted = "已刪除"
)

const untitledTask = "未命名任務"

// TimestampFormat is fixed-width, zero-padded, millisecond-precision UTC.
// Canonical timestamps must compare on a total order of instants, so every
// timestamp this system writes uses this one layout.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

var ErrUnknownEventType = errors.New("unknown event type")

// PriorityLabel maps a canonical priority to its Notion select option.
func PriorityLabel(p model.Priority) string {
	switch p {
	case model.PriorityUrgent:
		return "緊急"
	case model.PriorityHigh:
		return "較高"
	case model.PriorityLow:
		return "較低"
	default:
		return "普通"
	}
}

// PriorityFromLabel maps a Notion select option back to a canonical priority.
// The hand-edited board uses the short 高/中/低 scale; labels written by this
// system use the four-level scale and must round-trip exactly. Unknown labels
// fall back to Normal.
func PriorityFromLabel(name string) model.Priority {
	switch name {
	case "高", "緊急":
		return model.PriorityUrgent
	case "中", "較高":
		return model.PriorityHigh
	case "較低":
		return model.PriorityLow
	default:
		// includes 低 and 普通
		return model.PriorityNormal
	}
}

// DoneFromStatus reports whether a status label counts as completed.
func DoneFromStatus(status string) bool {
	switch status {
	case "已完成", "完成", StatusDone:
		return true
	default:
		return false
	}
}

func StatusFromDone(done bool) string {
	if done {
		return StatusDone
	}
	return StatusTodo
}

// FormatTime renders a canonical timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ParseTime accepts the canonical layout plus the RFC 3339 and date-only
// forms Notion emits.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimestampFormat, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("translate: unparseable timestamp %q", s)
}

// MillisToTime converts a DingTalk epoch-millisecond timestamp.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func TimeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// TaskFromPage extracts a canonical task from a Notion page.
func TaskFromPage(page notion.Page) model.CanonicalTask {
	props := page.Properties

	t := model.CanonicalTask{
		Title:          props[PropTitle].TitleText(),
		Priority:       PriorityFromLabel(props[PropPriority].SelectName()),
		Notes:          props[PropNotes].RichTextText(),
		Done:           DoneFromStatus(props[PropStatus].StatusName()),
		DingtalkID:     props[PropTaskID].RichTextText(),
		NotionID:       page.ID,
		LastModifiedAt: page.LastEditedTime.UTC(),
	}

	if start := props[PropDue].DateStart(); start != "" {
		if due, err := ParseTime(start); err == nil {
			t.DueAt = &due
		}
	}
	if start := props[PropLastSynced].DateStart(); start != "" {
		if synced, err := ParseTime(start); err == nil {
			t.LastSyncedAt = &synced
		}
	}
	return t
}

// TaskFromEvent converts the task snapshot a webhook event carries.
// Events do not report a modification time; LastModifiedAt stays zero.
func TaskFromEvent(data dingtalk.EventTask) model.CanonicalTask {
	t := model.CanonicalTask{
		Title:      data.Subject,
		Priority:   model.PriorityNormal,
		Notes:      data.Description,
		Done:       data.Done,
		DingtalkID: data.TaskID,
	}
	if data.Priority != nil {
		t.Priority = model.Priority(*data.Priority)
	}
	if data.DueTime != nil {
		due := MillisToTime(*data.DueTime)
		t.DueAt = &due
	}
	return t
}

// ChangeFromEvent converts a decrypted webhook event into a canonical change.
func ChangeFromEvent(ev dingtalk.Event) (model.TodoChange, error) {
	var ct model.ChangeType
	switch ev.EventType {
	case dingtalk.EventTaskCreate:
		ct = model.ChangeCreate
	case dingtalk.EventTaskUpdate:
		ct = model.ChangeUpdate
	case dingtalk.EventTaskDelete:
		ct = model.ChangeDelete
	default:
		return model.TodoChange{}, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.EventType)
	}

	ch := model.NewTodoChange(ct, ev.TaskData.TaskID)
	ch.CreatorID = ev.TaskData.CreatorID
	ch.ExecutorIDs = ev.TaskData.ExecutorIDs
	ch.Task = TaskFromEvent(ev.TaskData)
	return ch, nil
}

// ChangeFromRecord converts a polled DingTalk task into a canonical change.
// Polled records are always upserts; the engine routes creates and folds
// into updates when a mirror already exists.
func ChangeFromRecord(rec dingtalk.TaskRecord) model.TodoChange {
	ch := model.NewTodoChange(model.ChangeCreate, rec.TaskID)
	ch.CreatorID = rec.CreatorID
	ch.ExecutorIDs = rec.ExecutorIDs

	prio := rec.Priority
	ch.Task = model.CanonicalTask{
		Title:          rec.Subject,
		Priority:       model.Priority(prio),
		Notes:          rec.Description,
		Done:           rec.Done,
		DingtalkID:     rec.TaskID,
		LastModifiedAt: MillisToTime(rec.ModifiedTime),
	}
	if prio == 0 {
		ch.Task.Priority = model.PriorityNormal
	}
	if rec.DueTime != nil {
		due := MillisToTime(*rec.DueTime)
		ch.Task.DueAt = &due
	}
	return ch
}

// PageProperties builds the full Notion property set for a canonical task,
// including the correlation id and a fresh sync marker.
func PageProperties(t model.CanonicalTask, syncedAt time.Time) notion.Properties {
	title := t.Title
	if title == "" {
		title = untitledTask
	}

	props := notion.Properties{
		PropTitle:      notion.TitleProperty(title),
		PropTaskID:     notion.RichTextProperty(t.DingtalkID),
		PropPriority:   notion.SelectProperty(PriorityLabel(t.Priority)),
		PropStatus:     notion.StatusProperty(StatusFromDone(t.Done)),
		PropLastSynced: notion.DateProperty(FormatTime(syncedAt)),
	}
	if t.DueAt != nil {
		props[PropDue] = notion.DateProperty(FormatTime(*t.DueAt))
	}
	if t.Notes != "" {
		props[PropNotes] = notion.RichTextProperty(t.Notes)
	}
	return props
}

// CorrelationProperties is the write-back after creating the DingTalk mirror
// of a Notion page: the new task id plus a fresh sync marker.
func CorrelationProperties(taskID string, syncedAt time.Time) notion.Properties {
	return notion.Properties{
		PropTaskID:     notion.RichTextProperty(taskID),
		PropLastSynced: notion.DateProperty(FormatTime(syncedAt)),
	}
}

// SyncMarker refreshes only the last-synced stamp.
func SyncMarker(syncedAt time.Time) notion.Properties {
	return notion.Properties{
		PropLastSynced: notion.DateProperty(FormatTime(syncedAt)),
	}
}

// DeletedMarker flips a page to the terminal deleted status.
func DeletedMarker() notion.Properties {
	return notion.Properties{
		PropStatus: notion.StatusProperty(StatusDeleted),
	}
}

// CreateFields shapes a canonical task for DingTalk task creation.
func CreateFields(t model.CanonicalTask, executorIDs []string, sourceID string) dingtalk.CreateFields {
	f := dingtalk.CreateFields{
		Subject:     t.Title,
		ExecutorIDs: executorIDs,
		SourceID:    sourceID,
		Description: t.Notes,
	}
	prio := int(t.Priority)
	f.Priority = &prio
	if t.DueAt != nil {
		due := TimeToMillis(*t.DueAt)
		f.DueTime = &due
	}
	return f
}

// UpdateFields shapes a canonical task for a DingTalk task update. All
// mutable fields are written.
func UpdateFields(t model.CanonicalTask) dingtalk.UpdateFields {
	subject := t.Title
	desc := t.Notes
	prio := int(t.Priority)
	done := t.Done

	f := dingtalk.UpdateFields{
		Subject:     &subject,
		Description: &desc,
		Priority:    &prio,
		Done:        &done,
	}
	if t.DueAt != nil {
		due := TimeToMillis(*t.DueAt)
		f.DueTime = &due
	}
	return f
}
