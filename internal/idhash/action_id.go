package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeActionID computes a deterministic action_id using SHA256.
// Formula: SHA256(run_id|wallet|kind|seq)
// Returns hex-encoded hash (64 characters).
func ComputeActionID(runID, wallet, kind string, seq int) string {
	data := fmt.Sprintf("%s|%s|%s|%d", runID, wallet, kind, seq)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
