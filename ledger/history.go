package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/luca-patrignani/mental-poker-sync/delta"
	"github.com/luca-patrignani/mental-poker-sync/state"
)

// ErrVersionNotFound is returned by history queries that reference a version
// absent from the retained window.
var ErrVersionNotFound = errors.New("version not found")

// DefaultMaxLength is the length of a history created without WithMaxLength.
const DefaultMaxLength = 50

const rootHash = "0"

// History is a bounded log of past versions.
type History struct {
	mu        sync.RWMutex
	entries   []Entry
	maxLength int
	checksum  state.Checksummer
	clock     state.Clock
	counter   state.Counter
	hasher    state.KyberChecksum
}

type Option func(*History)

// WithMaxLength bounds the history. Values below 1 are ignored.
func WithMaxLength(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.maxLength = n
		}
	}
}

func WithChecksum(c state.Checksummer) Option {
	return func(h *History) { h.checksum = c }
}

func WithClock(c state.Clock) Option {
	return func(h *History) { h.clock = c }
}

// WithCounter sets the provider of version numbers for CreateVersion.
func WithCounter(c state.Counter) Option {
	return func(h *History) { h.counter = c }
}

// NewHistory creates an empty history.
func NewHistory(opts ...Option) *History {
	h := &History{
		maxLength: DefaultMaxLength,
		checksum:  state.NewKyberChecksum(),
		clock:     state.SystemClock{},
		counter:   &state.SequenceCounter{},
		hasher:    state.NewKyberChecksum(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateVersion records a snapshot of data with the given change log,
// evicting the oldest entry once the maximum length is exceeded.
func (h *History) CreateVersion(data map[string]any, changes []state.StateChange) state.VersionedState {
	vs := state.VersionedState{
		Version:   h.counter.Next(),
		Timestamp: h.clock.Now(),
		Checksum:  h.checksum.Checksum(data),
		Data:      delta.CloneState(data),
	}
	vs.Changes = append([]state.StateChange(nil), changes...)
	vs = vs.Clone()

	h.mu.Lock()
	defer h.mu.Unlock()

	prev := rootHash
	if n := len(h.entries); n > 0 {
		prev = h.entries[n-1].Hash
	}
	e := Entry{VersionedState: vs, PrevHash: prev}
	e.Hash = h.calculateHash(e)
	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.maxLength; over > 0 {
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
	return vs.Clone()
}

// GetVersion returns the most recent entry recorded as version n. Absence is
// a normal outcome, reported by ok.
func (h *History) GetVersion(n int) (vs state.VersionedState, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Version == n {
			return h.entries[i].VersionedState.Clone(), true
		}
	}
	return state.VersionedState{}, false
}

// Lookup is GetVersion with absence reported as ErrVersionNotFound.
func (h *History) Lookup(n int) (state.VersionedState, error) {
	vs, ok := h.GetVersion(n)
	if !ok {
		return state.VersionedState{}, fmt.Errorf("%w: %d", ErrVersionNotFound, n)
	}
	return vs, nil
}

// Range returns the entries whose version lies in [from, to], oldest first.
func (h *History) Range(from, to int) []state.VersionedState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []state.VersionedState
	for _, e := range h.entries {
		if e.Version >= from && e.Version <= to {
			out = append(out, e.VersionedState.Clone())
		}
	}
	return out
}

// Compare returns the change log recorded at version b. Version a must also
// be retained. The result is b's own log, not a structural diff of the data
// of a and b.
func (h *History) Compare(a, b int) ([]state.StateChange, error) {
	if _, err := h.Lookup(a); err != nil {
		return nil, err
	}
	vb, err := h.Lookup(b)
	if err != nil {
		return nil, err
	}
	return vb.Changes, nil
}

// Latest returns the most recent entry.
func (h *History) Latest() (state.VersionedState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return state.VersionedState{}, false
	}
	return h.entries[len(h.entries)-1].VersionedState.Clone(), true
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Versions lists the retained version numbers, oldest first.
func (h *History) Versions() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]int, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Version
	}
	return out
}

// Verify checks every entry hash and every link of the retained window. The
// oldest retained entry is the root of the window once eviction started.
func (h *History) Verify() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i, e := range h.entries {
		if expected := h.calculateHash(e); e.Hash != expected {
			return fmt.Errorf("entry %d invalid: hash: expected %s, got %s", e.Version, expected, e.Hash)
		}
		if sum := h.checksum.Checksum(e.Data); e.Checksum != sum {
			return fmt.Errorf("entry %d invalid: checksum: expected %s, got %s", e.Version, sum, e.Checksum)
		}
		if i == 0 {
			continue
		}
		if prev := h.entries[i-1]; e.PrevHash != prev.Hash {
			return fmt.Errorf("entry %d invalid: prev hash: expected %s, got %s", e.Version, prev.Hash, e.PrevHash)
		}
	}
	return nil
}

// calculateHash hashes the version, timestamp, previous hash, data checksum
// and change log of an entry.
func (h *History) calculateHash(e Entry) string {
	changes, _ := json.Marshal(e.Changes)
	data := strconv.Itoa(e.Version) +
		strconv.FormatInt(e.Timestamp.UnixNano(), 10) +
		e.PrevHash +
		e.Checksum +
		string(changes)
	return h.hasher.Sum([]byte(data))
}
