package model

import "time"

// Project is a named opaque text blob owned by a single user. The Data
// payload is never parsed by the server. Projects are soft-deleted only;
// the owning user row is never physically removed once referenced here.
type Project struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Data      string    `json:"data" db:"data"`
	UserID    int64     `json:"user_id" db:"user_id"`
	IsDeleted bool      `json:"is_deleted" db:"is_deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
