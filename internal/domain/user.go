package domain

import "time"

// User is an account in the directory. Role is "admin" or "client".
type User struct {
	ID           string
	Email        string
	FullName     string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
}
