package model

// User is a dashboard account. OAuth-linked identities live outside the
// core; the claim pipeline only needs an ID and a deliverable address.
type User struct {
	Base
	Email        string `db:"email" json:"email"`
	Name         string `db:"name" json:"name"`
	PasswordHash string `db:"password_hash" json:"-"`
	Plan         string `db:"plan" json:"plan"`
}
