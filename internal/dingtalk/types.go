package dingtalk

// CreateFields is the writable field set for a new todo task.
type CreateFields struct {
	Subject     string   `json:"subject"`
	ExecutorIDs []string `json:"executorIds"`
	SourceID    string   `json:"sourceId,omitempty"`
	DueTime     *int64   `json:"dueTime,omitempty"`
	Description string   `json:"description,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
}

// UpdateFields is a partial update; nil fields are left untouched.
type UpdateFields struct {
	Subject     *string `json:"subject,omitempty"`
	DueTime     *int64  `json:"dueTime,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	Done        *bool   `json:"done,omitempty"`
}

// TaskRecord is a todo task as returned by the read endpoints.
type TaskRecord struct {
	TaskID       string   `json:"id"`
	Subject      string   `json:"subject"`
	Description  string   `json:"description"`
	DueTime      *int64   `json:"dueTime"`
	Priority     int      `json:"priority"`
	Done         bool     `json:"done"`
	CreatorID    string   `json:"creatorId"`
	ExecutorIDs  []string `json:"executorIds"`
	ModifiedTime int64    `json:"modifiedTime"`
}

// Event type names pushed over the webhook.
const (
	EventTaskCreate = "todo_task_create"
	EventTaskUpdate = "todo_task_update"
	EventTaskDelete = "todo_task_delete"
)

// Event is the decrypted webhook payload.
type Event struct {
	EventType string    `json:"EventType"`
	TaskData  EventTask `json:"taskData"`
}

// EventTask is the task snapshot an event carries. Pointer fields distinguish
// absent from zero.
type EventTask struct {
	TaskID      string   `json:"taskId"`
	CreatorID   string   `json:"creatorId"`
	ExecutorIDs []string `json:"executorIds"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	DueTime     *int64   `json:"dueTime"`
	Priority    *int     `json:"priority"`
	Done        bool     `json:"done"`
}
