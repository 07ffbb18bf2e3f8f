// Package seq mints snapshot and subscription identifiers.
package seq

import (
	"cmp"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator mints identifiers. Successive identifiers from one Generator
// are unique and strictly increasing according to its Compare.
type Generator interface {
	Next() (string, error)
	// Compare orders two identifiers minted by this generator.
	Compare(a, b string) int
}

const (
	KindULID    = "ulid"
	KindCounter = "counter"
)

// New returns a generator of the given kind.
func New(kind string) (Generator, error) {
	switch kind {
	case "", KindULID:
		return NewULID(), nil
	case KindCounter:
		return NewCounter(), nil
	default:
		return nil, fmt.Errorf("unknown id kind %q", kind)
	}
}

// ULID mints monotonic ULIDs. Ids minted within the same millisecond are
// ordered by the monotonic entropy source, and the timestamp never moves
// backwards even if the wall clock does.
type ULID struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMS  uint64
	now     func() time.Time
}

func NewULID() *ULID {
	return &ULID{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (g *ULID) Next() (string, error) {
	g.Lock()
	defer g.Unlock()

	ms := ulid.Timestamp(g.now())
	if ms < g.lastMS {
		ms = g.lastMS
	}
	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		return "", fmt.Errorf("could not mint id: %w", err)
	}
	g.lastMS = ms
	return id.String(), nil
}

func (g *ULID) Compare(a, b string) int {
	return strings.Compare(a, b)
}

// Counter mints decimal counter values starting at 1.
type Counter struct {
	sync.Mutex
	n int64
}

func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) Next() (string, error) {
	c.Lock()
	defer c.Unlock()
	c.n++
	return strconv.FormatInt(c.n, 10), nil
}

func (c *Counter) Compare(a, b string) int {
	if n := cmp.Compare(len(a), len(b)); n != 0 {
		return n
	}
	return strings.Compare(a, b)
}
