package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMoveMade    EventType = "move-made"
	EventMoveFailed  EventType = "move-failed"
	EventGameStarted EventType = "game-started"
	EventGameEnded   EventType = "game-ended"
	EventGameReset   EventType = "game-reset"
)

// EventPayload is implemented by exactly one struct per event type. Every
// place that interprets events switches on the concrete type.
type EventPayload interface {
	eventType() EventType
}

type MoveMade struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Number     int    `json:"number"`
	Timeline   []int  `json:"timeline"`
}

type MoveFailed struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Number     int    `json:"number"`
	LivesLost  int    `json:"livesLost"`
	Lives      int    `json:"lives"`
}

type GameStarted struct {
	Message string `json:"message"`
}

type GameEnded struct {
	Result  string `json:"result"` // "victory" or "defeat"
	Message string `json:"message"`
}

type GameReset struct {
	Message string `json:"message"`
}

func (MoveMade) eventType() EventType    { return EventMoveMade }
func (MoveFailed) eventType() EventType  { return EventMoveFailed }
func (GameStarted) eventType() EventType { return EventGameStarted }
func (GameEnded) eventType() EventType   { return EventGameEnded }
func (GameReset) eventType() EventType   { return EventGameReset }

// GameEvent is one entry in a room's append-only event log. The log doubles
// as an audit trail and as the way clients learn why a broadcast happened.
type GameEvent struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Payload   EventPayload
}

// NewEvent stamps a payload with an id, its tag, and the current time.
func NewEvent(payload EventPayload) GameEvent {
	return GameEvent{
		ID:        uuid.NewString(),
		Type:      payload.eventType(),
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

type eventEnvelope struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func (e GameEvent) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return json.Marshal(eventEnvelope{
		ID:        e.ID,
		Type:      e.Type,
		Data:      data,
		Timestamp: e.Timestamp.UnixMilli(),
	})
}

func (e *GameEvent) UnmarshalJSON(b []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	var payload EventPayload
	switch env.Type {
	case EventMoveMade:
		payload = &MoveMade{}
	case EventMoveFailed:
		payload = &MoveFailed{}
	case EventGameStarted:
		payload = &GameStarted{}
	case EventGameEnded:
		payload = &GameEnded{}
	case EventGameReset:
		payload = &GameReset{}
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
		}
	}

	e.ID = env.ID
	e.Type = env.Type
	e.Timestamp = time.UnixMilli(env.Timestamp)
	switch p := payload.(type) {
	case *MoveMade:
		e.Payload = *p
	case *MoveFailed:
		e.Payload = *p
	case *GameStarted:
		e.Payload = *p
	case *GameEnded:
		e.Payload = *p
	case *GameReset:
		e.Payload = *p
	}
	return nil
}
