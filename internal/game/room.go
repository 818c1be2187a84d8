package game

import (
	"slices"
	"time"
)

type State string

const (
	StateLobby    State = "lobby"
	StatePlaying  State = "playing"
	StateGameOver State = "game-over"
	StateVictory  State = "victory"
)

// Terminal reports whether the game has ended and only a reset can follow.
func (s State) Terminal() bool {
	return s == StateGameOver || s == StateVictory
}

// Participant is one connected player inside a room. ID is tied to the
// current connection and changes across reconnects; Username is the stable
// identity used to rebind a hand after a network drop.
type Participant struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Numbers  []int     `json:"numbers"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Room is the authoritative aggregate for one game session. It is owned by
// the room's session actor; everything else only ever sees clones.
type Room struct {
	ID               string        `json:"id"`
	MaxLives         int           `json:"maxLives"`
	NumbersPerPlayer int           `json:"numbersPerPlayer"`
	Lives            int           `json:"lives"`
	State            State         `json:"state"`
	HostID           string        `json:"hostId"`
	Timeline         []int         `json:"timeline"`
	Players          []*Participant `json:"players"`
	GameEvents       []GameEvent   `json:"gameEvents"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

func NewRoom(id string, maxLives, numbersPerPlayer int) *Room {
	now := time.Now()
	return &Room{
		ID:               id,
		MaxLives:         maxLives,
		NumbersPerPlayer: numbersPerPlayer,
		Lives:            maxLives,
		State:            StateLobby,
		Timeline:         []int{},
		Players:          []*Participant{},
		GameEvents:       []GameEvent{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Player returns the participant with the given connection id.
func (r *Room) Player(id string) *Participant {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerByUsername returns the participant holding the given username.
func (r *Room) PlayerByUsername(name string) *Participant {
	for _, p := range r.Players {
		if p.Username == name {
			return p
		}
	}
	return nil
}

// RemovePlayer drops the participant with the given id, preserving join order.
func (r *Room) RemovePlayer(id string) bool {
	for i, p := range r.Players {
		if p.ID == id {
			r.Players = slices.Delete(r.Players, i, i+1)
			return true
		}
	}
	return false
}

// HeldCount is the number of undrawn-yet-unplayed numbers across all hands.
func (r *Room) HeldCount() int {
	n := 0
	for _, p := range r.Players {
		n += len(p.Numbers)
	}
	return n
}

// Clone deep-copies the aggregate so snapshots can cross goroutine
// boundaries without racing the owning session.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Timeline = slices.Clone(r.Timeline)
	cp.GameEvents = slices.Clone(r.GameEvents)
	cp.Players = make([]*Participant, len(r.Players))
	for i, p := range r.Players {
		pc := *p
		pc.Numbers = slices.Clone(p.Numbers)
		cp.Players[i] = &pc
	}
	return &cp
}
