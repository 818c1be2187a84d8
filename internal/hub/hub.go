package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/blindorder/blindorder-backend/internal/game"
	"github.com/blindorder/blindorder-backend/internal/session"
)

// Durable is the slice of the durable store the registry needs: cold-loads
// on first access, plus the write-through interface handed to sessions.
type Durable interface {
	session.Persister
	LoadRoom(ctx context.Context, id string) (*game.Room, error)
}

type HubMsg interface{ isHubMsg() }

// OpenRoom resolves a room for a joining connection: live session first,
// then a cold load from the durable store. Reply receives nil when the
// room does not exist anywhere.
type OpenRoom struct {
	ID    string
	Reply chan *session.Session
}

// GetRoom resolves only rooms that are live in memory.
type GetRoom struct {
	ID    string
	Reply chan *session.Session
}

// AddRoom registers a freshly created aggregate and starts its session.
type AddRoom struct {
	Room  *game.Room
	Reply chan *session.Session
}

type RemoveRoom struct{ ID string }

type ListRooms struct {
	Reply chan map[string]*session.Session
}

type ShutdownHub struct{}

func (OpenRoom) isHubMsg()    {}
func (GetRoom) isHubMsg()     {}
func (AddRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the registry of live room sessions. Like the sessions it
// fronts, it is a single goroutine fed by a typed inbox.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*session.Session
	store  Durable
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, store Durable, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*session.Session),
		store:  store,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case OpenRoom:
				// A stopped session may linger here until its RemoveRoom
				// callback lands; treat it as gone and reload.
				if sess := h.rooms[msg.ID]; sess != nil && !stopped(sess) {
					msg.Reply <- sess
					break
				}
				delete(h.rooms, msg.ID)
				msg.Reply <- h.coldLoad(msg.ID)

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case AddRoom:
				if sess := h.rooms[msg.Room.ID]; sess != nil {
					msg.Reply <- sess
					break
				}
				sess := h.startSession(msg.Room)
				msg.Reply <- sess

			case RemoveRoom:
				// only drop a session that really stopped; a stale callback
				// must not unregister a reloaded successor
				if sess := h.rooms[msg.ID]; sess != nil && stopped(sess) {
					delete(h.rooms, msg.ID)
				}

			case ListRooms:
				snapshot := make(map[string]*session.Session, len(h.rooms))
				for id, sess := range h.rooms {
					snapshot[id] = sess
				}
				msg.Reply <- snapshot

			case ShutdownHub:
				for _, sess := range h.rooms {
					select {
					case sess.Inbox() <- session.Shutdown{}:
					case <-sess.Done():
					}
				}
				clear(h.rooms)
				h.cancel()
				return
			}
		}
	}
}

// coldLoad pulls a room the process does not have live out of the durable
// store and revives it as a session.
func (h *Hub) coldLoad(id string) *session.Session {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	room, err := h.store.LoadRoom(ctx, id)
	if err != nil {
		h.log.Error("room load failed", zap.String("room", id), zap.Error(err))
		return nil
	}
	if room == nil {
		return nil
	}
	h.log.Info("room loaded from durable store", zap.String("room", id))
	return h.startSession(room)
}

func (h *Hub) startSession(room *game.Room) *session.Session {
	sess := session.New(h.ctx, room, h.store, h.log, func(roomID string) {
		// Session stopped on its own (room deleted or evicted). Runs on the
		// session goroutine, so it must not block on a busy hub.
		go func() {
			select {
			case h.inbox <- RemoveRoom{ID: roomID}:
			case <-h.ctx.Done():
			}
		}()
	})
	h.rooms[room.ID] = sess
	return sess
}

// Sweep periodically evicts rooms that have had no attached connections
// for at least ttl. The durable record remains the recovery source for a
// future reload. Run it as a background goroutine, not on the hub loop.
func (h *Hub) Sweep(ttl, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}

		reply := make(chan map[string]*session.Session, 1)
		select {
		case h.inbox <- ListRooms{Reply: reply}:
		case <-h.ctx.Done():
			return
		}
		rooms := <-reply

		for id, sess := range rooms {
			view, ok := queryView(sess)
			if !ok {
				continue
			}
			if view.NumClients == 0 && time.Since(view.LastActive) > ttl {
				h.log.Info("evicting idle room", zap.String("room", id))
				select {
				case sess.Inbox() <- session.Evict{}:
				case <-sess.Done():
				}
			}
		}
	}
}

func stopped(sess *session.Session) bool {
	select {
	case <-sess.Done():
		return true
	default:
		return false
	}
}

func queryView(sess *session.Session) (session.View, bool) {
	reply := make(chan session.View, 1)
	select {
	case sess.Inbox() <- session.GetState{Reply: reply}:
	case <-sess.Done():
		return session.View{}, false
	}
	select {
	case view := <-reply:
		return view, true
	case <-sess.Done():
		return session.View{}, false
	}
}
