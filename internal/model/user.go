package model

import "time"

// User is an account in the directory. Passwords are stored as bcrypt hashes
// and never serialized. Deletion is a visibility flag: a soft-deleted user
// stays in storage (projects keep referencing it) but is invisible to every
// read path except duplicate checks, which span deleted rows too.
type User struct {
	ID             int64     `json:"id" db:"id"`
	Username       string    `json:"username" db:"username"`
	Email          string    `json:"email" db:"email"`
	PasswordHash   string    `json:"-" db:"password_hash"`
	Admin          bool      `json:"admin" db:"admin"`
	ProtectedAdmin bool      `json:"protected_admin" db:"protected_admin"`
	IsDeleted      bool      `json:"is_deleted" db:"is_deleted"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the public shape of the authenticated user, returned by /me.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Admin    bool   `json:"admin"`
}

// Profile returns the public view of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Admin:    u.Admin,
	}
}
