package types

import "github.com/blindorder/blindorder-backend/internal/game"

// ClientMessage is the inbound envelope on a realtime connection.
type ClientMessage struct {
	Type       string `json:"type"` // "join-room" | "start-game" | "play-number" | "reset-game" | "leave-room"
	RoomID     string `json:"roomId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	IsHost     bool   `json:"isHost,omitempty"`
	Number     int    `json:"number,omitempty"`
}

// ServerMessage is the outbound envelope. Clients replace their local view
// with whatever the latest room-updated / game-state-updated carries.
type ServerMessage struct {
	Type      string          `json:"type"` // "room-updated" | "game-state-updated" | "error" | "room-deleted" | "left-room"
	Room      *game.Room      `json:"room,omitempty"`
	GameState *game.GameState `json:"gameState,omitempty"`
	Error     string          `json:"error,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}
