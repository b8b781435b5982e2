package moderation

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator returns a candidate id for a new action of type t. The ledger
// retries when the candidate collides with an existing id.
type IDGenerator func(t ActionType) string

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewActionID returns "<prefix>-<ULID>", e.g. "M-01HZX3Q5W4B6S0T2C1N8K9D7EF".
// ULIDs sort by creation time, which keeps exported tables readable.
func NewActionID(t ActionType) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return t.IDPrefix() + "-" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
