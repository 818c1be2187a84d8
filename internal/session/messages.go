package session

import (
	"time"

	"github.com/blindorder/blindorder-backend/internal/game"
	"github.com/blindorder/blindorder-backend/internal/types"
)

type Msg interface{ isSessionMsg() }

// Join attaches a connection to the room as PlayerID. If Username already
// belongs to a participant this is a reconnect and the participant is
// rebound to the new connection, hand intact.
type Join struct {
	PlayerID string
	Username string
	Host     bool
	Outbox   chan types.ServerMessage
	Reply    chan error
}

// Leave detaches a connection and removes its participant, applying the
// host-failover / room-deletion policy.
type Leave struct{ PlayerID string }

type StartGame struct{ PlayerID string }

type PlayNumber struct {
	PlayerID string
	Number   int
}

type Reset struct{ PlayerID string }

// UpdateSettings changes room settings; legal only while in the lobby.
type UpdateSettings struct {
	MaxLives         int
	NumbersPerPlayer int
	Reply            chan error
}

// Close tears the room down, notifying every connection and removing the
// durable record.
type Close struct{ Reason string }

// Evict drops the room from memory without touching the durable record.
// Ignored while connections are attached.
type Evict struct{}

type GetState struct{ Reply chan View }

type Shutdown struct{}

func (Join) isSessionMsg()           {}
func (Leave) isSessionMsg()          {}
func (StartGame) isSessionMsg()      {}
func (PlayNumber) isSessionMsg()     {}
func (Reset) isSessionMsg()          {}
func (UpdateSettings) isSessionMsg() {}
func (Close) isSessionMsg()          {}
func (Evict) isSessionMsg()          {}
func (GetState) isSessionMsg()       {}
func (Shutdown) isSessionMsg()       {}

// View is a race-free reflection of session internals for the registry,
// the sweep, and tests.
type View struct {
	NumClients int
	LastActive time.Time
	Room       *game.Room
}
