package model

import "time"

// Priority uses DingTalk's numeric scale as the canonical representation.
type Priority int

const (
	PriorityLow    Priority = 10
	PriorityNormal Priority = 20
	PriorityHigh   Priority = 30
	PriorityUrgent Priority = 40
)

// CanonicalTask is the backend-neutral task representation. It exists only
// in-flight during a reconciliation pass; durable state lives entirely in the
// two backends.
type CanonicalTask struct {
	Title          string
	DueAt          *time.Time
	Priority       Priority
	Notes          string
	Done           bool
	DingtalkID     string // correlation key into DingTalk
	NotionID       string // correlation key into Notion
	LastSyncedAt   *time.Time // stamped by this system after each write it performs
	LastModifiedAt time.Time  // reported by the backend that sourced the change
}
