// Package utils holds small helpers shared by the server and the client:
// identifier generation used for lock ids and RPC correlation ids.
package utils

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewUUID returns a random UUIDv4 encoded as a 32-character hex string.
// Used both for server-generated lock ids and client-generated request ids;
// collisions are not expected within one process lifetime.
func NewUUID() string {
	newUUID := uuid.New()
	return hex.EncodeToString(newUUID[:])
}
