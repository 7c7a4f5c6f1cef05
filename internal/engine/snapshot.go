package engine

import (
	"wamda.app/notifier/internal/entity"
)

// Snapshot is a frozen copy of engine state handed to consumers. Mutating it
// never affects the engine.
type Snapshot struct {
	Notifications []entity.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	IsLoading     bool                  `json:"is_loading"`
	Error         string                `json:"error,omitempty"`
}

// OnChange receives a snapshot after every state mutation.
type OnChange func(Snapshot)
