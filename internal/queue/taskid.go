package queue

import (
	"encoding/hex"
	"strconv"

	"lukechampine.com/blake3"
)

// NewTaskID derives a deterministic task id from the normalized URL and a
// seed index, so re-enqueuing the same URL across a crash/restore cycle
// always yields the same id instead of a fresh random UUID each time.
func NewTaskID(normalizedURL string, seedIndex int) string {
	sum := blake3.Sum256([]byte(normalizedURL + "\x00" + strconv.Itoa(seedIndex)))
	return hex.EncodeToString(sum[:16])
}
