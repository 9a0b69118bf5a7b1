// Package room implements the two-party room abstraction: canonical key
// derivation for an unordered pair of users, and the concurrent registry
// that maps room keys to the live connections currently in each room.
package room

import "fmt"

// Key identifies the room shared by one unordered pair of users.
type Key string

// Derive returns the canonical room key for a pair of user IDs. It is
// commutative: Derive(a, b) == Derive(b, a). The smaller ID always comes
// first and the two are joined with an underscore, so distinct pairs can
// never produce the same key.
func Derive(a, b int64) Key {
	if a > b {
		a, b = b, a
	}
	return Key(fmt.Sprintf("%d_%d", a, b))
}
