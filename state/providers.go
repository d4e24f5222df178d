package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.dedis.ch/kyber/v4/suites"
)

// Checksummer digests state data deterministically.
type Checksummer interface {
	Checksum(data map[string]any) string
}

// ChecksumFunc adapts a function to Checksummer.
type ChecksumFunc func(data map[string]any) string

func (f ChecksumFunc) Checksum(data map[string]any) string { return f(data) }

// KyberChecksum hashes the canonical JSON encoding of the data (map keys
// sorted by encoding/json) with the hash of a kyber suite.
type KyberChecksum struct {
	suite suites.Suite
}

// NewKyberChecksum uses the Ed25519 suite, the one the poker deck is built on.
func NewKyberChecksum() KyberChecksum {
	return KyberChecksum{suite: suites.MustFind("Ed25519")}
}

func (k KyberChecksum) Checksum(data map[string]any) string {
	b, err := json.Marshal(data)
	if err != nil {
		// non-JSON leaves; fall back to the printed form
		b = []byte(fmt.Sprintf("%v", data))
	}
	return k.Sum(b)
}

// Sum hashes raw bytes with the suite hash.
func (k KyberChecksum) Sum(b []byte) string {
	h := k.suite.Hash()
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Counter hands out version numbers.
type Counter interface {
	Next() int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func() int

func (f CounterFunc) Next() int { return f() }

// SequenceCounter counts 1, 2, 3, ...
type SequenceCounter struct {
	mu sync.Mutex
	n  int
}

func (c *SequenceCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}
