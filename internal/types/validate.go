package types

import "regexp"

var roomIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_\- ]{1,50}$`)

// ValidRoomID reports whether id is acceptable at the boundary: 1-50
// characters of letters, digits, underscores, and hyphens.
func ValidRoomID(id string) bool { return roomIDRe.MatchString(id) }

// ValidUsername reports whether name is acceptable at the boundary: 1-50
// characters of letters, digits, spaces, underscores, and hyphens.
func ValidUsername(name string) bool { return usernameRe.MatchString(name) }

// ValidMaxLives bounds the shared error budget.
func ValidMaxLives(n int) bool { return n >= 1 && n <= 10 }

// ValidNumbersPerPlayer bounds the hand size.
func ValidNumbersPerPlayer(n int) bool { return n >= 1 && n <= 20 }
