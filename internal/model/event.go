package model

import "time"

type EventType string

const (
	EventCreate EventType = "CREATE"
	EventWrite  EventType = "WRITE"
	EventRemove EventType = "REMOVE"
	EventRename EventType = "RENAME"
)

// FileEvent is a raw filesystem notification for a workspace file.
type FileEvent struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

func (t EventType) ChangeType() ChangeType {
	switch t {
	case EventCreate:
		return ChangeCreated
	case EventRemove:
		return ChangeDeleted
	case EventRename:
		return ChangeRenamed
	default:
		return ChangeModified
	}
}
