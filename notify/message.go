// Package notify tells downstream consumers that an export archive is ready.
package notify

import (
	"context"
	"time"
)

// Message describes one finished export.
type Message struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	TargetDate string    `json:"target_date"`
	Archive    string    `json:"archive"`
	ObjectKey  string    `json:"object_key,omitempty"`
	Rows       int       `json:"rows"`
	Created    int       `json:"created"`
	Closed     int       `json:"closed"`
	Skipped    int       `json:"skipped"`
	FinishedAt time.Time `json:"finished_at"`
}

// Notifier is implemented by every archive-ready channel.
type Notifier interface {
	ArchiveReady(ctx context.Context, msg Message) error
}
