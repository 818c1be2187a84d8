package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blindorder/blindorder-backend/internal/game"
	"github.com/blindorder/blindorder-backend/internal/hub"
	"github.com/blindorder/blindorder-backend/internal/session"
)

// fakeStore is an in-memory RoomStore plus the hub's Durable surface.
type fakeStore struct {
	mu      sync.Mutex
	rooms   map[string]*game.Room
	players map[string]*game.Participant
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:   make(map[string]*game.Room),
		players: make(map[string]*game.Participant),
	}
}

func (f *fakeStore) CreateRoom(_ context.Context, room *game.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.ID] = room.Clone()
	return nil
}

func (f *fakeStore) LoadRoom(_ context.Context, id string) (*game.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, nil
	}
	return room.Clone(), nil
}

func (f *fakeStore) SaveRoom(_ context.Context, room *game.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.ID] = room.Clone()
	return nil
}

func (f *fakeStore) UpdateRoomSettings(_ context.Context, id string, maxLives, numbersPerPlayer int) (*game.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, nil
	}
	room.MaxLives = maxLives
	room.Lives = maxLives
	room.NumbersPerPlayer = numbersPerPlayer
	return room.Clone(), nil
}

func (f *fakeStore) DeleteRoom(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
	return nil
}

func (f *fakeStore) ListRooms(_ context.Context) ([]*game.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rooms := make([]*game.Room, 0, len(f.rooms))
	for _, room := range f.rooms {
		rooms = append(rooms, room.Clone())
	}
	return rooms, nil
}

func (f *fakeStore) GetRoomPlayers(_ context.Context, roomID string) ([]*game.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return room.Clone().Players, nil
}

func (f *fakeStore) GetPlayerByID(_ context.Context, id string) (*game.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.players[id], nil
}

func (f *fakeStore) ListPlayers(_ context.Context) ([]*game.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	players := make([]*game.Participant, 0, len(f.players))
	for _, p := range f.players {
		players = append(players, p)
	}
	return players, nil
}

func (f *fakeStore) DeletePlayer(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.players[id]; !ok {
		return false, nil
	}
	delete(f.players, id)
	return true, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore, *hub.Hub) {
	t.Helper()
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, store, zap.NewNop())
	srv := httptest.NewServer(SetupRoutes(h, store, zap.NewNop(), []string{"*"}))
	t.Cleanup(srv.Close)
	return srv, store, h
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestCreateRoom(t *testing.T) {
	srv, store, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/rooms", `{"maxLives":3,"numbersPerPlayer":6}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	id, _ := body["id"].(string)
	require.Len(t, id, 6)
	require.Equal(t, "lobby", body["state"])
	require.Equal(t, float64(3), body["lives"])

	saved, err := store.LoadRoom(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, saved)
}

func TestCreateRoomValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"max lives too low", `{"maxLives":0,"numbersPerPlayer":6}`},
		{"max lives too high", `{"maxLives":11,"numbersPerPlayer":6}`},
		{"numbers too high", `{"maxLives":3,"numbersPerPlayer":21}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/rooms", tc.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, false, body["success"])
		})
	}
}

func TestGetRoom(t *testing.T) {
	srv, store, _ := newTestServer(t)

	room := game.NewRoom("ROOMAA", 3, 6)
	require.NoError(t, store.CreateRoom(context.Background(), room))

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/rooms/ROOMAA", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ROOMAA", body["id"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/rooms/NOPE99", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRoomInvalidID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/rooms/bad%20id", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid room id", body["error"])
}

func TestGetRoomPrefersLiveSession(t *testing.T) {
	srv, store, h := newTestServer(t)

	room := game.NewRoom("ROOMBB", 3, 6)
	require.NoError(t, store.CreateRoom(context.Background(), room))

	// Start a live session and diverge its state from the stored row.
	live := room.Clone()
	live.Lives = 1
	reply := make(chan *session.Session, 1)
	select {
	case h.Inbox() <- hub.AddRoom{Room: live, Reply: reply}:
	case <-time.After(time.Second):
		t.Fatal("hub inbox blocked")
	}
	select {
	case <-reply:
	case <-time.After(time.Second):
		t.Fatal("no session started")
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/rooms/ROOMBB", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), body["lives"], "live view wins over the stored row")
}

func TestUpdateRoomDormant(t *testing.T) {
	srv, store, _ := newTestServer(t)

	room := game.NewRoom("ROOMCC", 3, 6)
	require.NoError(t, store.CreateRoom(context.Background(), room))

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/rooms/ROOMCC", `{"maxLives":5,"numbersPerPlayer":8}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(5), body["maxLives"])
	require.Equal(t, float64(8), body["numbersPerPlayer"])
}

func TestUpdateRoomRejectedMidGame(t *testing.T) {
	srv, store, _ := newTestServer(t)

	room := game.NewRoom("ROOMDD", 3, 6)
	room.State = game.StatePlaying
	require.NoError(t, store.CreateRoom(context.Background(), room))

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/rooms/ROOMDD", `{"maxLives":5,"numbersPerPlayer":8}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, false, body["success"])
}

func TestDeleteRoom(t *testing.T) {
	srv, store, _ := newTestServer(t)

	room := game.NewRoom("ROOMEE", 3, 6)
	require.NoError(t, store.CreateRoom(context.Background(), room))

	resp, body := doJSON(t, http.MethodDelete, srv.URL+"/api/rooms/ROOMEE", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["deleted"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/rooms/ROOMEE", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResetRoomDormant(t *testing.T) {
	srv, store, _ := newTestServer(t)

	room := game.NewRoom("ROOMFF", 3, 6)
	room.State = game.StateGameOver
	room.Lives = 0
	room.Timeline = []int{5, 9}
	require.NoError(t, store.CreateRoom(context.Background(), room))

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/rooms/ROOMFF/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "lobby", body["state"])
	require.Equal(t, float64(3), body["lives"])
	require.Empty(t, body["timeline"])
}

func TestPlayerEndpoints(t *testing.T) {
	srv, store, _ := newTestServer(t)
	store.players["p1"] = &game.Participant{ID: "p1", Username: "ana"}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/players/p1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ana", body["username"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/players/p2", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, http.MethodDelete, srv.URL+"/api/players/p1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["deleted"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/players/p1", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
