// Package events defines the typed event contract for task lifecycle changes.
// Every event delivered over the WebSocket channel uses these types. No
// ad-hoc map[string]interface{} events.
package events

import "taskpulse/pkg/store"

// Kind identifies what happened to a task.
type Kind string

const (
	TaskCreated Kind = "created"
	TaskUpdated Kind = "updated"
	TaskDeleted Kind = "deleted"
)

// TaskView is the wire representation of a task. It is an explicit mapping
// from the storage record, independent of storage internals; columns the
// clients have no business with (timestamps) stay out of it.
type TaskView struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// ViewOf maps a storage record to its wire representation.
func ViewOf(t *store.Task) *TaskView {
	return &TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
	}
}

// TaskEvent is the envelope broadcast to listeners. Task is nil for deleted
// events. Immutable once constructed.
type TaskEvent struct {
	Kind   Kind      `json:"event"`
	TaskID int64     `json:"task_id"`
	Task   *TaskView `json:"task,omitempty"`
}

// NewCreated builds a created event with a full task snapshot.
func NewCreated(t *store.Task) TaskEvent {
	return TaskEvent{Kind: TaskCreated, TaskID: t.ID, Task: ViewOf(t)}
}

// NewUpdated builds an updated event with the resulting task snapshot.
func NewUpdated(t *store.Task) TaskEvent {
	return TaskEvent{Kind: TaskUpdated, TaskID: t.ID, Task: ViewOf(t)}
}

// NewDeleted builds a deleted event. No snapshot; the task is gone.
func NewDeleted(id int64) TaskEvent {
	return TaskEvent{Kind: TaskDeleted, TaskID: id}
}
