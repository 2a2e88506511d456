package service

import (
	"crypto/sha256"
	"encoding/hex"
)

// MovementHash computes the content identity of a court movement.
// Absent and empty details hash identically.
func MovementHash(date, description, details string) string {
	hash := sha256.Sum256([]byte(date + "|" + description + "|" + details))
	return hex.EncodeToString(hash[:])
}
