package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/blindorder/blindorder-backend/internal/game"
	"github.com/blindorder/blindorder-backend/internal/hub"
	"github.com/blindorder/blindorder-backend/internal/session"
	"github.com/blindorder/blindorder-backend/internal/types"
)

// RoomStore is the durable surface the REST handlers read and write. Live
// rooms are resolved through the hub first; the store only answers for
// rooms that are not resident in memory.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *game.Room) error
	LoadRoom(ctx context.Context, id string) (*game.Room, error)
	UpdateRoomSettings(ctx context.Context, id string, maxLives, numbersPerPlayer int) (*game.Room, error)
	SaveRoom(ctx context.Context, room *game.Room) error
	DeleteRoom(ctx context.Context, id string) error
	ListRooms(ctx context.Context) ([]*game.Room, error)
	GetRoomPlayers(ctx context.Context, roomID string) ([]*game.Participant, error)
	GetPlayerByID(ctx context.Context, id string) (*game.Participant, error)
	ListPlayers(ctx context.Context) ([]*game.Participant, error)
	DeletePlayer(ctx context.Context, id string) (bool, error)
}

type API struct {
	hub   *hub.Hub
	store RoomStore
	log   *zap.Logger
}

func NewAPI(h *hub.Hub, store RoomStore, log *zap.Logger) *API {
	return &API{hub: h, store: store, log: log}
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createRoomRequest struct {
	MaxLives         int `json:"maxLives"`
	NumbersPerPlayer int `json:"numbersPerPlayer"`
}

func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !types.ValidMaxLives(req.MaxLives) {
		writeError(w, http.StatusBadRequest, "max lives must be between 1 and 10")
		return
	}
	if !types.ValidNumbersPerPlayer(req.NumbersPerPlayer) {
		writeError(w, http.StatusBadRequest, "numbers per player must be between 1 and 20")
		return
	}

	var room *game.Room
	for attempt := 0; attempt < 10; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate room code")
			return
		}
		existing, err := a.store.LoadRoom(r.Context(), code)
		if err != nil {
			a.log.Error("room lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create room")
			return
		}
		if existing != nil {
			continue // code collision, roll again
		}
		room = game.NewRoom(code, req.MaxLives, req.NumbersPerPlayer)
		break
	}
	if room == nil {
		writeError(w, http.StatusInternalServerError, "failed to generate unique room code")
		return
	}

	if err := a.store.CreateRoom(r.Context(), room); err != nil {
		a.log.Error("room create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	a.log.Info("room created", zap.String("room", room.ID))
	writeJSON(w, http.StatusCreated, room)
}

func (a *API) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.store.ListRooms(r.Context())
	if err != nil {
		a.log.Error("room list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (a *API) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	if sess := a.liveSession(r.Context(), roomID); sess != nil {
		if view, ok := queryView(r.Context(), sess); ok {
			writeJSON(w, http.StatusOK, view.Room)
			return
		}
	}

	room, err := a.store.LoadRoom(r.Context(), roomID)
	if err != nil {
		a.log.Error("room load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type updateRoomRequest struct {
	MaxLives         int `json:"maxLives"`
	NumbersPerPlayer int `json:"numbersPerPlayer"`
}

func (a *API) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req updateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !types.ValidMaxLives(req.MaxLives) {
		writeError(w, http.StatusBadRequest, "max lives must be between 1 and 10")
		return
	}
	if !types.ValidNumbersPerPlayer(req.NumbersPerPlayer) {
		writeError(w, http.StatusBadRequest, "numbers per player must be between 1 and 20")
		return
	}

	// A live session is the authority; settings changes go through its loop.
	if sess := a.liveSession(r.Context(), roomID); sess != nil {
		reply := make(chan error, 1)
		msg := session.UpdateSettings{
			MaxLives:         req.MaxLives,
			NumbersPerPlayer: req.NumbersPerPlayer,
			Reply:            reply,
		}
		select {
		case sess.Inbox() <- msg:
		case <-sess.Done():
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		select {
		case err := <-reply:
			if err != nil {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
		case <-sess.Done():
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		if view, ok := queryView(r.Context(), sess); ok {
			writeJSON(w, http.StatusOK, view.Room)
			return
		}
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	room, err := a.store.LoadRoom(r.Context(), roomID)
	if err != nil {
		a.log.Error("room load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update room")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if room.State != game.StateLobby {
		writeError(w, http.StatusConflict, "settings can only change in the lobby")
		return
	}

	updated, err := a.store.UpdateRoomSettings(r.Context(), roomID, req.MaxLives, req.NumbersPerPlayer)
	if err != nil {
		a.log.Error("room update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update room")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	if sess := a.liveSession(r.Context(), roomID); sess != nil {
		select {
		case sess.Inbox() <- session.Close{Reason: "room deleted"}:
			writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
			return
		case <-sess.Done():
			// fell out of memory; fall through to the durable path
		}
	}

	room, err := a.store.LoadRoom(r.Context(), roomID)
	if err != nil {
		a.log.Error("room load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete room")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err := a.store.DeleteRoom(r.Context(), roomID); err != nil {
		a.log.Error("room delete failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete room")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) GetRoomPlayers(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	if sess := a.liveSession(r.Context(), roomID); sess != nil {
		if view, ok := queryView(r.Context(), sess); ok {
			writeJSON(w, http.StatusOK, view.Room.Players)
			return
		}
	}

	room, err := a.store.LoadRoom(r.Context(), roomID)
	if err != nil {
		a.log.Error("room load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	players, err := a.store.GetRoomPlayers(r.Context(), roomID)
	if err != nil {
		a.log.Error("player list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list players")
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// ResetRoom resets a dormant room's stored state. A live room is reset
// through the game itself (host-only), not through this surface.
func (a *API) ResetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	if a.liveSession(r.Context(), roomID) != nil {
		writeError(w, http.StatusConflict, "room is active; reset it in-game")
		return
	}

	room, err := a.store.LoadRoom(r.Context(), roomID)
	if err != nil {
		a.log.Error("room load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset room")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	game.ResetGame(room)
	if err := a.store.SaveRoom(r.Context(), room); err != nil {
		a.log.Error("room reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (a *API) ListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := a.store.ListPlayers(r.Context())
	if err != nil {
		a.log.Error("player list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list players")
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (a *API) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	player, err := a.store.GetPlayerByID(r.Context(), playerID)
	if err != nil {
		a.log.Error("player load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load player")
		return
	}
	if player == nil {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (a *API) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	deleted, err := a.store.DeletePlayer(r.Context(), playerID)
	if err != nil {
		a.log.Error("player delete failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete player")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) liveSession(ctx context.Context, roomID string) *session.Session {
	reply := make(chan *session.Session, 1)
	select {
	case a.hub.Inbox() <- hub.GetRoom{ID: roomID, Reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case sess := <-reply:
		return sess
	case <-ctx.Done():
		return nil
	}
}

func queryView(ctx context.Context, sess *session.Session) (session.View, bool) {
	reply := make(chan session.View, 1)
	select {
	case sess.Inbox() <- session.GetState{Reply: reply}:
	case <-sess.Done():
		return session.View{}, false
	case <-ctx.Done():
		return session.View{}, false
	}
	select {
	case view := <-reply:
		return view, true
	case <-sess.Done():
		return session.View{}, false
	case <-ctx.Done():
		return session.View{}, false
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
