package domain

import "time"

// User is an account. Voting requires EmailVerified.
type User struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	EmailVerified     bool
	VerificationToken string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Profile is the public face of a user; it owns exactly one Market.
type Profile struct {
	ID             string
	UserID         string
	Name           string
	ProfilePicture string
	ResumeURL      string
	OwnerEmail     string // filled on reads
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
