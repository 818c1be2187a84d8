package storage

import (
	"time"

	"github.com/blindorder/blindorder-backend/internal/game"
)

// Room is the durable row behind a game.Room aggregate. Timeline and the
// event log are stored as JSON columns, matching the wire representation.
type Room struct {
	ID               string           `gorm:"primaryKey;size:50"`
	MaxLives         int              `gorm:"not null"`
	NumbersPerPlayer int              `gorm:"not null"`
	Lives            int              `gorm:"not null"`
	State            string           `gorm:"size:20;not null;default:'lobby'"`
	HostID           string           `gorm:"size:100"`
	Timeline         []int            `gorm:"serializer:json"`
	GameEvents       []game.GameEvent `gorm:"serializer:json"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Players          []Player `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

type Player struct {
	ID       string `gorm:"primaryKey;size:100"`
	RoomID   string `gorm:"size:50;index;not null"`
	Username string `gorm:"size:50;not null"`
	Numbers  []int  `gorm:"serializer:json"`
	JoinedAt time.Time
}

func roomToModel(r *game.Room) Room {
	return Room{
		ID:               r.ID,
		MaxLives:         r.MaxLives,
		NumbersPerPlayer: r.NumbersPerPlayer,
		Lives:            r.Lives,
		State:            string(r.State),
		HostID:           r.HostID,
		Timeline:         r.Timeline,
		GameEvents:       r.GameEvents,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func playerToModel(roomID string, p *game.Participant) Player {
	return Player{
		ID:       p.ID,
		RoomID:   roomID,
		Username: p.Username,
		Numbers:  p.Numbers,
		JoinedAt: p.JoinedAt,
	}
}

func roomFromModel(m *Room, players []Player) *game.Room {
	r := &game.Room{
		ID:               m.ID,
		MaxLives:         m.MaxLives,
		NumbersPerPlayer: m.NumbersPerPlayer,
		Lives:            m.Lives,
		State:            game.State(m.State),
		HostID:           m.HostID,
		Timeline:         m.Timeline,
		GameEvents:       m.GameEvents,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		Players:          make([]*game.Participant, 0, len(players)),
	}
	if r.Timeline == nil {
		r.Timeline = []int{}
	}
	if r.GameEvents == nil {
		r.GameEvents = []game.GameEvent{}
	}
	for i := range players {
		r.Players = append(r.Players, playerFromModel(&players[i]))
	}
	return r
}

func playerFromModel(m *Player) *game.Participant {
	p := &game.Participant{
		ID:       m.ID,
		Username: m.Username,
		Numbers:  m.Numbers,
		JoinedAt: m.JoinedAt,
	}
	if p.Numbers == nil {
		p.Numbers = []int{}
	}
	return p
}
