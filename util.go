package main

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// GenerateID returns a random hex string of the given byte length.
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateUUID returns a random v4 UUID string, used for session IDs.
func GenerateUUID() string {
	return uuid.NewString()
}
