package model

import "github.com/google/uuid"

type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// TodoChange is a canonical change event originating on DingTalk, either
// pushed over the webhook or picked up by the DingTalk poller. CreatorID and
// ExecutorIDs carry the routing roles; Task carries the translated fields.
type TodoChange struct {
	ID          string
	Type        ChangeType
	TaskID      string
	CreatorID   string
	ExecutorIDs []string
	Task        CanonicalTask
}

func NewTodoChange(t ChangeType, taskID string) TodoChange {
	return TodoChange{
		ID:     uuid.NewString(),
		Type:   t,
		TaskID: taskID,
	}
}
