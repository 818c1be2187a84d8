package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/blindorder/blindorder-backend/internal/hub"
	"github.com/blindorder/blindorder-backend/internal/types"
	"github.com/blindorder/blindorder-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, store RoomStore, log *zap.Logger, originPatterns []string) http.Handler {
	api := NewAPI(h, store, log)
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log, originPatterns))

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", api.ListRooms)
		r.Post("/", api.CreateRoom)
		r.Route("/{roomID}", func(r chi.Router) {
			r.Use(requireValidRoomID)
			r.Get("/", api.GetRoom)
			r.Put("/", api.UpdateRoom)
			r.Delete("/", api.DeleteRoom)
			r.Get("/players", api.GetRoomPlayers)
			r.Post("/reset", api.ResetRoom)
		})
	})

	r.Route("/api/players", func(r chi.Router) {
		r.Get("/", api.ListPlayers)
		r.Get("/{playerID}", api.GetPlayer)
		r.Delete("/{playerID}", api.DeletePlayer)
	})

	return r
}

// requireValidRoomID rejects malformed room ids before they reach the core.
func requireValidRoomID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !types.ValidRoomID(chi.URLParam(r, "roomID")) {
			writeError(w, http.StatusBadRequest, "invalid room id")
			return
		}
		next.ServeHTTP(w, r)
	})
}
