package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blindorder/blindorder-backend/internal/game"
)

// Store is the relational durable store behind the in-memory sessions. The
// sessions are authoritative while a room is live; these rows exist so a
// room survives process restarts and idle eviction.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Connect opens the Postgres database and migrates the schema.
func Connect(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.AutoMigrate(&Room{}, &Player{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	log.Info("connected to postgres")
	return &Store{db: db, log: log}, nil
}

// NewWithDB wraps an existing gorm handle; used by tests.
func NewWithDB(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Room{}, &Player{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateRoom inserts a fresh aggregate.
func (s *Store) CreateRoom(ctx context.Context, room *game.Room) error {
	model := roomToModel(room)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("creating room %s: %w", room.ID, err)
	}
	return nil
}

// LoadRoom reads a full aggregate, players in join order. Returns (nil, nil)
// when the room does not exist.
func (s *Store) LoadRoom(ctx context.Context, id string) (*game.Room, error) {
	var model Room
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading room %s: %w", id, err)
	}

	var players []Player
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", id).
		Order("joined_at asc").
		Find(&players).Error; err != nil {
		return nil, fmt.Errorf("loading players for room %s: %w", id, err)
	}
	return roomFromModel(&model, players), nil
}

// SaveRoom write-throughs the whole aggregate: the room row is upserted and
// the player rows are reconciled against the current participant set, so a
// reconnect's id change or a departure is reflected durably.
func (s *Store) SaveRoom(ctx context.Context, room *game.Room) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := roomToModel(room)
		if err := tx.Save(&model).Error; err != nil {
			return err
		}

		ids := make([]string, 0, len(room.Players))
		for _, p := range room.Players {
			player := playerToModel(room.ID, p)
			if err := tx.Save(&player).Error; err != nil {
				return err
			}
			ids = append(ids, p.ID)
		}

		del := tx.Where("room_id = ?", room.ID)
		if len(ids) > 0 {
			del = del.Where("id NOT IN ?", ids)
		}
		return del.Delete(&Player{}).Error
	})
	if err != nil {
		return fmt.Errorf("saving room %s: %w", room.ID, err)
	}
	return nil
}

// UpdateRoomSettings changes the lobby-tunable fields of a stored room.
func (s *Store) UpdateRoomSettings(ctx context.Context, id string, maxLives, numbersPerPlayer int) (*game.Room, error) {
	res := s.db.WithContext(ctx).Model(&Room{}).Where("id = ?", id).Updates(map[string]any{
		"max_lives":          maxLives,
		"lives":              maxLives,
		"numbers_per_player": numbersPerPlayer,
	})
	if res.Error != nil {
		return nil, fmt.Errorf("updating room %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.LoadRoom(ctx, id)
}

// DeleteRoom removes the room and, via the FK cascade, its players.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&Player{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Room{ID: id}).Error
	})
	if err != nil {
		return fmt.Errorf("deleting room %s: %w", id, err)
	}
	return nil
}

// ListRooms returns all stored rooms, newest first, without players.
func (s *Store) ListRooms(ctx context.Context) ([]*game.Room, error) {
	var models []Room
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	rooms := make([]*game.Room, 0, len(models))
	for i := range models {
		rooms = append(rooms, roomFromModel(&models[i], nil))
	}
	return rooms, nil
}

// GetRoomPlayers returns a stored room's players in join order.
func (s *Store) GetRoomPlayers(ctx context.Context, roomID string) ([]*game.Participant, error) {
	var models []Player
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at asc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing players for room %s: %w", roomID, err)
	}
	players := make([]*game.Participant, 0, len(models))
	for i := range models {
		players = append(players, playerFromModel(&models[i]))
	}
	return players, nil
}

// GetPlayerByID returns (nil, nil) when the player does not exist.
func (s *Store) GetPlayerByID(ctx context.Context, id string) (*game.Participant, error) {
	var model Player
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading player %s: %w", id, err)
	}
	return playerFromModel(&model), nil
}

// ListPlayers returns every stored player.
func (s *Store) ListPlayers(ctx context.Context) ([]*game.Participant, error) {
	var models []Player
	if err := s.db.WithContext(ctx).Order("joined_at asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	players := make([]*game.Participant, 0, len(models))
	for i := range models {
		players = append(players, playerFromModel(&models[i]))
	}
	return players, nil
}

// DeletePlayer reports whether a row was removed.
func (s *Store) DeletePlayer(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&Player{ID: id})
	if res.Error != nil {
		return false, fmt.Errorf("deleting player %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
