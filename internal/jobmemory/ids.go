package jobmemory

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomAlnum returns n lowercase-alnum characters drawn from crypto/rand.
// A read failure (practically never, on any real platform) degrades to the
// alphabet's first character rather than panicking an id generator.
func randomAlnum(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			out[i] = idAlphabet[0]
			continue
		}
		out[i] = idAlphabet[idx.Int64()]
	}
	return string(out)
}

// newJobID builds "job-<issueId>-<timestampMs>-<random6>" per spec.md §4.3.
func newJobID(issueID string) string {
	return fmt.Sprintf("job-%s-%d-%s", issueID, time.Now().UnixMilli(), randomAlnum(6))
}

// newEntryID builds "<kind>-<timestampMs>-<random9>" for a Decision,
// Gotcha, ContextEntry, or Outcome.
func newEntryID(kind string) string {
	return fmt.Sprintf("%s-%d-%s", kind, time.Now().UnixMilli(), randomAlnum(9))
}
