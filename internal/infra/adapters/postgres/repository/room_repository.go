package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/TalkRooms/internal/domain/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository - зеркало живых комнат для отображения вне сессии, не источник правды
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	// SetParticipants заменяет состав комнаты и выставляет is_live
	SetParticipants(ctx context.Context, roomID string, userIDs []string) error
	SetOwner(ctx context.Context, roomID, userID string) error
}

type roomRepo struct {
	db *sqlx.DB
}

func NewRoomRepo(db *sqlx.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room

	err := r.db.GetContext(
		ctx,
		&room,
		"SELECT id, title, max_participants, is_live, owner_id, created_at, updated_at FROM rooms WHERE id = $1",
		roomID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}

		return nil, fmt.Errorf("get room: %w", err)
	}

	return &room, nil
}

func (r *roomRepo) SetParticipants(ctx context.Context, roomID string, userIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM room_participants WHERE room_id = $1", roomID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}

	if len(userIDs) > 0 {
		rows := make([]models.RoomParticipant, 0, len(userIDs))
		for _, id := range userIDs {
			rows = append(rows, models.RoomParticipant{RoomID: roomID, UserID: id})
		}

		_, err = tx.NamedExecContext(
			ctx,
			"INSERT INTO room_participants (room_id, user_id) VALUES (:room_id, :user_id)",
			rows,
		)
		if err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
	}

	if _, err = tx.ExecContext(
		ctx,
		"UPDATE rooms SET is_live = $1, updated_at = now() WHERE id = $2",
		len(userIDs) > 0,
		roomID,
	); err != nil {
		return fmt.Errorf("update live flag: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (r *roomRepo) SetOwner(ctx context.Context, roomID, userID string) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE rooms SET owner_id = $1, updated_at = now() WHERE id = $2",
		userID,
		roomID,
	)

	return err
}
