package session

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/blindorder/blindorder-backend/internal/game"
	"github.com/blindorder/blindorder-backend/internal/types"
)

var ErrGameInProgress = errors.New("game already in progress")
var ErrNotInLobby = errors.New("settings can only change in the lobby")

const persistTimeout = 5 * time.Second

const startMessage = "Game started! Work together to play all numbers in ascending order. No communication allowed!"

// Persister is the slice of the durable store a session writes through to.
type Persister interface {
	SaveRoom(ctx context.Context, room *game.Room) error
	DeleteRoom(ctx context.Context, id string) error
}

// Session owns one room aggregate. All mutation flows through its inbox and
// is applied by a single goroutine, so concurrent operations on the same
// room are serialized in arrival order while rooms stay independent.
// Broadcasts happen synchronously inside the loop; durable writes are
// handed to a side goroutine and never gate a move.
type Session struct {
	inbox      chan Msg
	room       *game.Room
	clients    map[string]chan types.ServerMessage
	store      Persister
	log        *zap.Logger
	onStop     func(roomID string)
	lastActive time.Time

	persistCh   chan *game.Room
	persistDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts the session's loop. onStop is invoked exactly once when the
// session stops for any reason, so the registry can drop its entry.
func New(parent context.Context, room *game.Room, store Persister, log *zap.Logger, onStop func(roomID string)) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:       make(chan Msg, 64),
		room:        room,
		clients:     make(map[string]chan types.ServerMessage),
		store:       store,
		log:         log.With(zap.String("room", room.ID)),
		onStop:      onStop,
		lastActive:  time.Now(),
		persistCh:   make(chan *game.Room, 1),
		persistDone: make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	go s.loop()
	go s.persistLoop()
	return s
}

// Inbox accepts session messages. Senders should select against Done to
// avoid blocking on a stopped session.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.stop(false)
			return

		case m := <-s.inbox:
			switch m.(type) {
			case Join, Leave, StartGame, PlayNumber, Reset, UpdateSettings:
				// only mutations count as activity; the sweep's GetState
				// poll must not keep an abandoned room looking alive
				s.lastActive = time.Now()
			}
			var done bool
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)
			case Leave:
				done = s.handleLeave(msg.PlayerID)
			case StartGame:
				s.handleStart(msg.PlayerID)
			case PlayNumber:
				s.handlePlay(msg.PlayerID, msg.Number)
			case Reset:
				s.handleReset(msg.PlayerID)
			case UpdateSettings:
				s.handleSettings(msg)
			case Close:
				s.broadcastDeleted(msg.Reason)
				s.stop(true)
				done = true
			case Evict:
				if len(s.clients) == 0 {
					s.stop(false)
					done = true
				}
			case GetState:
				msg.Reply <- View{
					NumClients: len(s.clients),
					LastActive: s.lastActive,
					Room:       s.room.Clone(),
				}
			case Shutdown:
				s.stop(false)
				done = true
			}
			if done {
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	if existing := s.room.PlayerByUsername(msg.Username); existing != nil {
		// Reconnect: rebind the participant to the new connection. A stale
		// connection under the old id gets cut loose.
		if out, ok := s.clients[existing.ID]; ok {
			close(out)
			delete(s.clients, existing.ID)
		}
		if s.room.HostID == existing.ID {
			s.room.HostID = msg.PlayerID
		}
		existing.ID = msg.PlayerID
		s.room.UpdatedAt = time.Now()
		s.clients[msg.PlayerID] = msg.Outbox
		msg.Reply <- nil

		s.log.Info("player reconnected",
			zap.String("player", msg.Username),
			zap.String("conn", msg.PlayerID))

		s.broadcastRoom()
		if s.room.State != game.StateLobby {
			s.send(msg.PlayerID, types.ServerMessage{
				Type:      "game-state-updated",
				GameState: s.gameState(),
			})
		}
		s.schedulePersist()
		return
	}

	if s.room.State != game.StateLobby {
		// unseen names cannot join mid-game
		msg.Reply <- ErrGameInProgress
		return
	}

	p := &game.Participant{
		ID:       msg.PlayerID,
		Username: msg.Username,
		Numbers:  []int{},
		JoinedAt: time.Now(),
	}
	s.room.Players = append(s.room.Players, p)
	if msg.Host || s.room.HostID == "" {
		s.room.HostID = msg.PlayerID
	}
	s.room.UpdatedAt = time.Now()
	s.clients[msg.PlayerID] = msg.Outbox
	msg.Reply <- nil

	s.log.Info("player joined",
		zap.String("player", msg.Username),
		zap.Bool("host", s.room.HostID == msg.PlayerID))

	s.broadcastRoom()
	s.schedulePersist()
}

// handleLeave returns true when the room was torn down and the loop must exit.
func (s *Session) handleLeave(playerID string) bool {
	if out, ok := s.clients[playerID]; ok {
		close(out)
		delete(s.clients, playerID)
	}
	p := s.room.Player(playerID)
	if p == nil {
		return false
	}

	wasHost := s.room.HostID == playerID
	wasLobby := s.room.State == game.StateLobby
	s.room.RemovePlayer(playerID)
	s.room.UpdatedAt = time.Now()

	s.log.Info("player left",
		zap.String("player", p.Username),
		zap.Bool("host", wasHost),
		zap.Int("remaining", len(s.room.Players)))

	if len(s.room.Players) == 0 {
		s.stop(true)
		return true
	}

	if wasHost && wasLobby {
		// a lobby without its host has nothing worth preserving
		s.broadcastDeleted("host left the room")
		s.stop(true)
		return true
	}

	if wasHost {
		// earliest-joined remaining participant inherits the room
		s.room.HostID = s.room.Players[0].ID
		s.log.Info("host reassigned", zap.String("player", s.room.Players[0].Username))
	}

	s.broadcast()
	s.schedulePersist()
	return false
}

func (s *Session) handleStart(playerID string) {
	if s.room.HostID != playerID {
		s.sendError(playerID, "only the host can start the game")
		return
	}
	if err := game.InitializeGame(s.room); err != nil {
		s.sendError(playerID, err.Error())
		return
	}
	game.AddGameEvent(s.room, game.NewEvent(game.GameStarted{Message: startMessage}))

	s.log.Info("game started",
		zap.Int("players", len(s.room.Players)),
		zap.Int("numbersPerPlayer", s.room.NumbersPerPlayer))

	s.broadcast()
	s.schedulePersist()
}

func (s *Session) handlePlay(playerID string, number int) {
	result, err := game.MakeMove(s.room, playerID, number)
	if err != nil {
		s.sendError(playerID, err.Error())
		return
	}
	player := s.room.Player(playerID)

	if result.Correct {
		game.AddGameEvent(s.room, game.NewEvent(game.MoveMade{
			PlayerID:   playerID,
			PlayerName: player.Username,
			Number:     number,
			Timeline:   slices.Clone(s.room.Timeline),
		}))
		if result.Victory {
			game.AddGameEvent(s.room, game.NewEvent(game.GameEnded{
				Result:  "victory",
				Message: "Congratulations! You completed the sequence!",
			}))
		}
	} else {
		game.AddGameEvent(s.room, game.NewEvent(game.MoveFailed{
			PlayerID:   playerID,
			PlayerName: player.Username,
			Number:     number,
			LivesLost:  result.LivesLost,
			Lives:      s.room.Lives,
		}))
		if result.GameOver {
			game.AddGameEvent(s.room, game.NewEvent(game.GameEnded{
				Result:  "defeat",
				Message: "Game Over! You ran out of lives.",
			}))
		}
	}

	s.broadcast()
	s.schedulePersist()
}

func (s *Session) handleReset(playerID string) {
	if s.room.HostID != playerID {
		s.sendError(playerID, "only the host can reset the game")
		return
	}
	game.ResetGame(s.room)
	game.AddGameEvent(s.room, game.NewEvent(game.GameReset{Message: "Game has been reset"}))

	s.log.Info("game reset")

	s.broadcast()
	s.schedulePersist()
}

func (s *Session) handleSettings(msg UpdateSettings) {
	if s.room.State != game.StateLobby {
		msg.Reply <- ErrNotInLobby
		return
	}
	s.room.MaxLives = msg.MaxLives
	s.room.Lives = msg.MaxLives
	s.room.NumbersPerPlayer = msg.NumbersPerPlayer
	s.room.UpdatedAt = time.Now()
	msg.Reply <- nil

	s.broadcastRoom()
	s.schedulePersist()
}

// broadcast sends the room snapshot to every attached connection, plus the
// game projection whenever a game is past the lobby. All connections see
// the same sequence in the same order.
func (s *Session) broadcast() {
	s.broadcastRoom()
	if s.room.State != game.StateLobby {
		msg := types.ServerMessage{Type: "game-state-updated", GameState: s.gameState()}
		for id := range s.clients {
			s.send(id, msg)
		}
	}
}

func (s *Session) broadcastRoom() {
	msg := types.ServerMessage{Type: "room-updated", Room: s.room.Clone()}
	for id := range s.clients {
		s.send(id, msg)
	}
}

func (s *Session) broadcastDeleted(reason string) {
	msg := types.ServerMessage{Type: "room-deleted", Reason: reason}
	for id := range s.clients {
		s.send(id, msg)
	}
}

func (s *Session) gameState() *game.GameState {
	gs := game.GameStateOf(s.room)
	return &gs
}

func (s *Session) sendError(playerID, text string) {
	s.send(playerID, types.ServerMessage{Type: "error", Error: text})
}

// send is non-blocking; a connection that cannot keep up is dropped. Its
// participant stays in the room and can reconnect by username.
func (s *Session) send(playerID string, msg types.ServerMessage) {
	out, ok := s.clients[playerID]
	if !ok {
		return
	}
	select {
	case out <- msg:
	default:
		s.log.Warn("dropping slow connection", zap.String("conn", playerID))
		close(out)
		delete(s.clients, playerID)
	}
}

// schedulePersist hands a snapshot to the persist goroutine. A pending
// not-yet-written snapshot is replaced, so the durable store always
// converges on the latest aggregate without writes applying out of order.
func (s *Session) schedulePersist() {
	snap := s.room.Clone()
	for {
		select {
		case s.persistCh <- snap:
			return
		default:
			select {
			case <-s.persistCh:
			default:
			}
		}
	}
}

func (s *Session) persistLoop() {
	defer close(s.persistDone)
	for snap := range s.persistCh {
		s.save(snap)
	}
}

// save writes through to the durable store, retrying once. Failures are
// logged and swallowed: the in-memory aggregate stays authoritative and a
// transient persistence failure never becomes a user-visible move failure.
func (s *Session) save(snap *game.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := s.store.SaveRoom(ctx, snap)
	if err == nil {
		return
	}
	s.log.Warn("durable write failed, retrying", zap.Error(err))
	if err := s.store.SaveRoom(ctx, snap); err != nil {
		s.log.Error("durable write failed after retry", zap.Error(err))
	}
}

// stop closes every outbox, stops the persist goroutine, and optionally
// removes the durable record once the last pending write has landed.
func (s *Session) stop(deleteRecord bool) {
	for id, out := range s.clients {
		close(out)
		delete(s.clients, id)
	}
	close(s.persistCh)

	if deleteRecord {
		roomID := s.room.ID
		go func() {
			<-s.persistDone
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := s.store.DeleteRoom(ctx, roomID); err != nil {
				s.log.Warn("durable delete failed, retrying", zap.Error(err))
				if err := s.store.DeleteRoom(ctx, roomID); err != nil {
					s.log.Error("durable delete failed after retry", zap.Error(err))
				}
			}
		}()
	}

	if s.onStop != nil {
		s.onStop(s.room.ID)
		s.onStop = nil
	}
	s.cancel()
}
