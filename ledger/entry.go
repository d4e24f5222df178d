package ledger

import "github.com/luca-patrignani/mental-poker-sync/state"

// Entry is one recorded version.
type Entry struct {
	state.VersionedState
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}
