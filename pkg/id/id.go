// Package id mints ULIDs for runs and trades.
package id

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
	epoch   = time.Unix(0, 0)
)

func init() {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		binary.LittleEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))
	}
	entropy = ulid.Monotonic(rand.NewChaCha8(seed), 0)
}

// New returns a ULID stamped with the current wall clock.
func New() string {
	return At(time.Now())
}

// At returns a ULID whose timestamp component is t, so trades stamped with
// their entry bar sort in simulated time. Times before the Unix epoch are
// clamped to it.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	if t.Before(epoch) {
		t = epoch
	}
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		// Only reachable after 2^80 IDs in one millisecond.
		panic(err)
	}
	return id.String()
}
