// Package poker is the Texas Hold'em table the sync engine keeps in step
// across players.
//
// # Core Types
//
// Session: the state of a hand: players, community cards, bets, dealer
// marker and whose turn it is.
//
// Player: one seat with its chips, its contribution to the pot and its hole
// cards. Hole cards never leave the local process.
//
// Card: a playing card with suit and rank.
//
// Action: a player's move (bet, raise, call, all-in, check or fold).
//
// # Shared State
//
// Snapshot turns a Session into the plain nested state the engine diffs.
// The table-authoritative fields are stored under the keys currentTurn,
// phase, pot, dealer and communityCards. FromState reverses it.
//
// # Hand Evaluation
//
// Winners evaluates the best 7-card hand of each eligible player per pot and
// splits tied pots equally.
package poker
