package store

import "time"

// Entry is one stored model exchange turn.
type Entry struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
