package game

import (
	"errors"
	"math/rand"
	"slices"
	"time"
)

// NumberUniverse is the fixed range [1..NumberUniverse] numbers are drawn from.
const NumberUniverse = 100

// EventRetention bounds the room event log; older entries are trimmed.
const EventRetention = 50

var ErrRoomNotLobby = errors.New("game can only start from the lobby")
var ErrNotEnoughPlayers = errors.New("need at least 2 players to start")
var ErrDrawTooLarge = errors.New("not enough unique numbers for all players")
var ErrGameNotRunning = errors.New("no game in progress")
var ErrPlayerNotFound = errors.New("player not found")
var ErrNumberNotHeld = errors.New("number not held by player")

// IsNotFound reports whether err names a missing room, player, or number.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrNumberNotHeld)
}

// IsPrecondition reports whether err is an unsatisfiable start requirement.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrNotEnoughPlayers) || errors.Is(err, ErrDrawTooLarge)
}

// IsStateConflict reports whether err means the operation is illegal in the
// room's current state.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrRoomNotLobby) || errors.Is(err, ErrGameNotRunning)
}

// drawNumbers picks count distinct integers uniformly from [1..NumberUniverse],
// already shuffled. Package var so tests can pin the draw.
var drawNumbers = func(count int) []int {
	perm := rand.Perm(NumberUniverse)
	nums := make([]int, count)
	for i := range nums {
		nums[i] = perm[i] + 1
	}
	return nums
}

// InitializeGame deals a disjoint random hand to every participant and moves
// the room from lobby to playing.
func InitializeGame(room *Room) error {
	if room.State != StateLobby {
		return ErrRoomNotLobby
	}
	if len(room.Players) < 2 {
		return ErrNotEnoughPlayers
	}
	total := len(room.Players) * room.NumbersPerPlayer
	if total > NumberUniverse {
		return ErrDrawTooLarge
	}

	draw := drawNumbers(total)
	for i, p := range room.Players {
		hand := slices.Clone(draw[i*room.NumbersPerPlayer : (i+1)*room.NumbersPerPlayer])
		slices.Sort(hand) // sorted for display, not for play order
		p.Numbers = hand
	}

	room.Timeline = []int{}
	room.Lives = room.MaxLives
	room.State = StatePlaying
	room.UpdatedAt = time.Now()
	return nil
}

// MoveResult describes the outcome of a single played number.
type MoveResult struct {
	Correct   bool
	LivesLost int
	GameOver  bool
	Victory   bool
}

// MakeMove plays number on behalf of the given participant. The move is
// correct iff number is the minimum of every number still held by any
// participant. The played number is consumed either way; a wrong move costs
// one shared life. An out-of-order number is a normal game outcome, not an
// error.
func MakeMove(room *Room, participantID string, number int) (MoveResult, error) {
	if room.State != StatePlaying {
		return MoveResult{}, ErrGameNotRunning
	}
	player := room.Player(participantID)
	if player == nil {
		return MoveResult{}, ErrPlayerNotFound
	}
	idx := slices.Index(player.Numbers, number)
	if idx < 0 {
		return MoveResult{}, ErrNumberNotHeld
	}

	correct := number == lowestHeld(room)
	player.Numbers = slices.Delete(player.Numbers, idx, idx+1)

	result := MoveResult{Correct: correct}
	if correct {
		room.Timeline = append(room.Timeline, number)
		if room.HeldCount() == 0 {
			room.State = StateVictory
			result.Victory = true
		}
	} else {
		room.Lives--
		result.LivesLost = 1
		if room.Lives <= 0 {
			room.Lives = 0
			room.State = StateGameOver
			result.GameOver = true
		}
	}
	room.UpdatedAt = time.Now()
	return result, nil
}

// ResetGame returns the room to the lobby with hands, timeline, lives, and
// the event log back at their initial values. Legal from any state.
func ResetGame(room *Room) {
	room.State = StateLobby
	room.Lives = room.MaxLives
	room.Timeline = []int{}
	room.GameEvents = []GameEvent{}
	for _, p := range room.Players {
		p.Numbers = []int{}
	}
	room.UpdatedAt = time.Now()
}

// AddGameEvent appends to the room's event log, trimming the oldest entries
// past EventRetention.
func AddGameEvent(room *Room, event GameEvent) {
	room.GameEvents = append(room.GameEvents, event)
	if n := len(room.GameEvents); n > EventRetention {
		room.GameEvents = slices.Clone(room.GameEvents[n-EventRetention:])
	}
}

// GameState is the read-only projection broadcast to clients alongside the
// room whenever a game is in progress.
type GameState struct {
	State            State       `json:"state"`
	Lives            int         `json:"lives"`
	MaxLives         int         `json:"maxLives"`
	Timeline         []int       `json:"timeline"`
	TotalNumbers     int         `json:"totalNumbers"`
	Progress         float64     `json:"progress"`
	RemainingNumbers []int       `json:"remainingNumbers"`
	GameEvents       []GameEvent `json:"gameEvents"`
}

// GameStateOf derives the client projection from the aggregate. The
// remaining numbers are only meant for the end-of-game reveal.
func GameStateOf(room *Room) GameState {
	remaining := make([]int, 0, room.HeldCount())
	for _, p := range room.Players {
		remaining = append(remaining, p.Numbers...)
	}
	slices.Sort(remaining)

	total := len(room.Timeline) + len(remaining)
	progress := 0.0
	if total > 0 {
		progress = float64(len(room.Timeline)) / float64(total)
	}

	return GameState{
		State:            room.State,
		Lives:            room.Lives,
		MaxLives:         room.MaxLives,
		Timeline:         slices.Clone(room.Timeline),
		TotalNumbers:     total,
		Progress:         progress,
		RemainingNumbers: remaining,
		GameEvents:       slices.Clone(room.GameEvents),
	}
}

func lowestHeld(room *Room) int {
	low := NumberUniverse + 1
	for _, p := range room.Players {
		for _, n := range p.Numbers {
			if n < low {
				low = n
			}
		}
	}
	return low
}
