package models

import "time"

// RevokedToken marks a refresh token id that must no longer be honored.
type RevokedToken struct {
	JTI       string
	ExpiresAt time.Time
	RevokedAt time.Time
}
