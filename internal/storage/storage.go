// Package storage persists user accounts and prediction records.
package storage

import (
	"time"
)

// PredictionFilter selects a page of predictions, newest first
type PredictionFilter struct {
	OwnerID  string
	Status   string
	PageSize int
	Cursor   *PredictionCursor
}

// PredictionCursor is the position after which the next page starts
type PredictionCursor struct {
	CreatedAt time.Time
	ID        string
}
