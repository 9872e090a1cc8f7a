package domain

import (
	"strings"
	"time"
)

// User represents a registered account. The record is immutable once
// created; email is stored normalized and is unique across the directory.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// NormalizeEmail lowercases and trims an address so lookups and storage
// agree on a single canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
