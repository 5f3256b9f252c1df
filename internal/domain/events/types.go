package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/qrave1/TalkRooms/internal/domain/runtime"
)

// Входящие события
const (
	TypeJoin       = "join"
	TypeLeave      = "leave"
	TypeKick       = "kick"
	TypeSendSignal = "sendSignal"
	TypeSetMedia   = "setMedia"
	TypeSendChat   = "sendChat"
	TypePing       = "ping"
)

// Исходящие события
const (
	TypeRoster            = "roster"
	TypeParticipantJoined = "participantJoined"
	TypeParticipantLeft   = "participantLeft"
	TypeOwnershipChanged  = "ownershipChanged"
	TypeSignal            = "signal"
	TypeMediaChanged      = "mediaChanged"
	TypeKicked            = "kicked"
	TypeRoomError         = "roomError"
	TypeChat              = "chat"
	TypePong              = "pong"
)

// Message - общее событие
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode собирает исходящий кадр {"type": ..., "data": ...}
func Encode(msgType string, data any) ([]byte, error) {
	var raw json.RawMessage

	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s data: %w", msgType, err)
		}
		raw = b
	}

	return json.Marshal(Message{Type: msgType, Data: raw})
}

// JoinEvent - запрос на вход в комнату
type JoinEvent struct {
	RoomID      string `json:"room_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	RoomTitle   string `json:"room_title"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type LeaveEvent struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type KickEvent struct {
	RoomID       string `json:"room_id"`
	TargetUserID string `json:"target_user_id"`
}

// SendSignalEvent - offer/answer/candidate для конкретного участника
type SendSignalEvent struct {
	ToUserID string             `json:"to_user_id"`
	RoomID   string             `json:"room_id"`
	Kind     runtime.SignalKind `json:"kind"`
	Payload  json.RawMessage    `json:"payload"`
}

type SetMediaEvent struct {
	RoomID  string            `json:"room_id"`
	UserID  string            `json:"user_id"`
	Kind    runtime.MediaKind `json:"kind"`
	Enabled bool              `json:"enabled"`
}

type SendChatEvent struct {
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

type ParticipantJoinedEvent struct {
	Participant runtime.Participant `json:"participant"`
}

type ParticipantLeftEvent struct {
	UserID string `json:"user_id"`
}

type OwnershipChangedEvent struct {
	NewOwnerID string `json:"new_owner_id"`
}

type SignalEvent struct {
	FromUserID string             `json:"from_user_id"`
	Kind       runtime.SignalKind `json:"kind"`
	Payload    json.RawMessage    `json:"payload"`
}

type MediaChangedEvent struct {
	UserID  string            `json:"user_id"`
	Kind    runtime.MediaKind `json:"kind"`
	Enabled bool              `json:"enabled"`
}

type KickedEvent struct {
	Reason string `json:"reason"`
}

type RoomErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ChatEvent struct {
	FromUserID  string    `json:"from_user_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
}
