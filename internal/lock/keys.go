package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Key namespace shared by all workers. Batch, query and details keys may
// carry a window suffix so identical work becomes eligible again once the
// window rolls over; a zero window makes content-hash dedup permanent for
// the lock's lifetime.

// DayKey identifies a (month, day) discovery run.
func DayKey(month string, day int) string {
	return fmt.Sprintf("dayLock:%s:%d", month, day)
}

// BatchKey identifies a scheduled title chunk by content hash.
func BatchKey(batchHash string, window time.Duration) string {
	return "batchLock:" + batchHash + windowSuffix(time.Now(), window)
}

// QueryKey identifies one SPARQL query body by hash.
func QueryKey(query string, window time.Duration) string {
	sum := sha256.Sum256([]byte(query))
	return "queryLock:" + hex.EncodeToString(sum[:]) + windowSuffix(time.Now(), window)
}

// DetailsKey identifies one in-flight enrichment batch by content hash.
func DetailsKey(batchHash string, window time.Duration) string {
	return "humanDetailsLock:" + batchHash + windowSuffix(time.Now(), window)
}

// CounterKey names the outstanding-batch countdown for a discovery run.
func CounterKey(runID string) string {
	return "wikiBatches:" + runID
}

// BatchHash fingerprints a title chunk: NFC-normalized, sorted, JSON
// encoded, SHA-256. Sorting makes the hash independent of arrival order.
func BatchHash(titles []string) string {
	normalized := make([]string, len(titles))
	for i, t := range titles {
		normalized[i] = norm.NFC.String(t)
	}
	slices.Sort(normalized)
	encoded, _ := json.Marshal(normalized)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func windowSuffix(now time.Time, window time.Duration) string {
	if window <= 0 {
		return ""
	}
	return fmt.Sprintf(":%d", now.Unix()/int64(window.Seconds()))
}
