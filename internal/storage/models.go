package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Review states kept alongside each row. New rows start PENDING; an admin
// update may move them on.
const (
	StatusPending  = "PENDING"
	StatusReviewed = "REVIEWED"
	StatusArchived = "ARCHIVED"
)

// Patch carries the fields of an update. Nil fields keep their stored value.
type Patch struct {
	CustomerName *string
	Email        *string
	Rating       *int
	Comments     *string
	Status       *string
}
