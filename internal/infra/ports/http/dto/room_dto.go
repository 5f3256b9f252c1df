package dto

import (
	"time"

	"github.com/qrave1/TalkRooms/internal/domain/models"
	"github.com/qrave1/TalkRooms/internal/domain/runtime"
)

type ParticipantResponse struct {
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
	AudioEnabled bool      `json:"audio_enabled"`
	VideoEnabled bool      `json:"video_enabled"`
	IsOwner      bool      `json:"is_owner"`
}

type RosterResponse struct {
	RoomID       string                `json:"room_id"`
	Title        string                `json:"title"`
	OwnerID      string                `json:"owner_id"`
	Version      uint64                `json:"version"`
	Participants []ParticipantResponse `json:"participants"`
}

func NewRosterResponse(roster runtime.Roster) RosterResponse {
	resp := RosterResponse{
		RoomID:       roster.RoomID,
		Title:        roster.Title,
		OwnerID:      roster.OwnerID,
		Version:      roster.Version,
		Participants: make([]ParticipantResponse, 0, len(roster.Participants)),
	}

	for _, p := range roster.Participants {
		resp.Participants = append(resp.Participants, ParticipantResponse{
			UserID:       p.UserID,
			DisplayName:  p.DisplayName,
			AvatarURL:    p.AvatarURL,
			JoinedAt:     p.JoinTime,
			AudioEnabled: p.AudioEnabled,
			VideoEnabled: p.VideoEnabled,
			IsOwner:      p.UserID == roster.OwnerID,
		})
	}

	return resp
}

type UserStatsResponse struct {
	UserID       string  `json:"user_id"`
	SessionCount int     `json:"session_count"`
	Hours        float64 `json:"hours"`
}

func NewUserStatsResponse(userID string, stats *models.UserStats) UserStatsResponse {
	if stats == nil {
		return UserStatsResponse{UserID: userID}
	}

	return UserStatsResponse{
		UserID:       stats.UserID,
		SessionCount: stats.SessionCount,
		Hours:        stats.Hours,
	}
}
