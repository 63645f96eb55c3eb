// Package idx generates the sortable identifiers used for challenge records
// and request correlation.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a canonical 26 character ULID. IDs minted later sort after IDs
// minted earlier, also within the same millisecond.
type ID string

const Zero ID = ""

var ErrInvalid = errors.New("idx: invalid ulid")

var (
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
)

// New mints an ID stamped with the current UTC time.
func New() ID {
	return NewAt(time.Now())
}

// NewAt mints an ID stamped with t. Use the caller's clock so the ID and the
// record's created_at agree.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()

	if entropy == nil {
		entropy = ulid.Monotonic(rand.Reader, 0)
	}
	u, err := ulid.New(ulid.Timestamp(t.UTC()), entropy)
	if err != nil {
		// Only reachable when the monotonic window overflows inside one
		// millisecond; a fresh source restarts the sequence.
		entropy = ulid.Monotonic(rand.Reader, 0)
		u = ulid.MustNew(ulid.Timestamp(t.UTC()), entropy)
	}
	return ID(u.String())
}

// Parse validates s. Lowercase input is accepted and canonicalised.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return Zero, ErrInvalid
	}
	return ID(u.String()), nil
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Time is the millisecond timestamp embedded in id, or the zero time when id
// does not parse.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}
