package models

import "time"

// Room - запись комнаты в постоянном хранилище. Для живой комнаты источник правды - память координатора.
type Room struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	MaxParticipants int       `json:"max_participants" db:"max_participants"`
	IsLive          bool      `json:"is_live" db:"is_live"`
	OwnerID         string    `json:"owner_id" db:"owner_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type RoomParticipant struct {
	RoomID string `db:"room_id"`
	UserID string `db:"user_id"`
}

type UserStats struct {
	UserID       string    `json:"user_id" db:"user_id"`
	SessionCount int       `json:"session_count" db:"session_count"`
	Hours        float64   `json:"hours" db:"hours"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
