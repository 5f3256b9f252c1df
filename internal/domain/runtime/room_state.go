package runtime

import (
	"errors"
	"sort"
	"time"
)

var ErrParticipantExists = errors.New("participant already in room")

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

// Participant - участник живой комнаты. ConnectionID наружу не отдаётся.
type Participant struct {
	ConnectionID string    `json:"-"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	JoinTime     time.Time `json:"join_time"`
	AudioEnabled bool      `json:"audio_enabled"`
	VideoEnabled bool      `json:"video_enabled"`
}

// before задаёт порядок участников: сначала по времени входа, затем по userID
func (p *Participant) before(other *Participant) bool {
	if !p.JoinTime.Equal(other.JoinTime) {
		return p.JoinTime.Before(other.JoinTime)
	}

	return p.UserID < other.UserID
}

// Roster - снимок состава комнаты, который рассылается клиентам
type Roster struct {
	RoomID       string        `json:"room_id"`
	Title        string        `json:"title"`
	OwnerID      string        `json:"owner_id"`
	Version      uint64        `json:"version"`
	Participants []Participant `json:"participants"`
}

// RoomState хранит состав одной живой комнаты.
// Не потокобезопасен: доступ сериализуется владельцем (см. memory.RoomStore).
type RoomState struct {
	ID              string
	Title           string
	MaxParticipants int
	OwnerID         string

	version      uint64
	participants map[string]*Participant
}

func NewRoomState(id, title string, maxParticipants int) *RoomState {
	return &RoomState{
		ID:              id,
		Title:           title,
		MaxParticipants: maxParticipants,
		participants:    make(map[string]*Participant),
	}
}

func (r *RoomState) Len() int { return len(r.participants) }

func (r *RoomState) Version() uint64 { return r.version }

// Full - MaxParticipants <= 0 означает без ограничения
func (r *RoomState) Full() bool {
	return r.MaxParticipants > 0 && len(r.participants) >= r.MaxParticipants
}

func (r *RoomState) Participant(userID string) (Participant, bool) {
	p, ok := r.participants[userID]
	if !ok {
		return Participant{}, false
	}

	return *p, true
}

func (r *RoomState) ConnectionOf(userID string) (string, bool) {
	p, ok := r.participants[userID]
	if !ok {
		return "", false
	}

	return p.ConnectionID, true
}

// Add добавляет нового участника. Первый вошедший в пустую комнату становится владельцем.
func (r *RoomState) Add(p Participant) (becameOwner bool, err error) {
	if _, ok := r.participants[p.UserID]; ok {
		return false, ErrParticipantExists
	}

	r.participants[p.UserID] = &p
	r.version++

	if r.OwnerID == "" {
		r.OwnerID = p.UserID
		return true, nil
	}

	return false, nil
}

// SwitchConnection переносит участника на новое соединение, запись остаётся на месте
func (r *RoomState) SwitchConnection(userID, connectionID string) (previous string, ok bool) {
	p, ok := r.participants[userID]
	if !ok {
		return "", false
	}

	previous = p.ConnectionID
	p.ConnectionID = connectionID
	r.version++

	return previous, true
}

// Removal - результат удаления участника
type Removal struct {
	Participant  Participant
	OwnerChanged bool
	NewOwnerID   string
}

// Remove удаляет участника. Если ушёл владелец, права переходят участнику
// с самым ранним JoinTime (при равенстве - с наименьшим userID).
func (r *RoomState) Remove(userID string) (Removal, bool) {
	p, ok := r.participants[userID]
	if !ok {
		return Removal{}, false
	}

	delete(r.participants, userID)
	r.version++

	res := Removal{Participant: *p}

	if r.OwnerID != userID {
		return res, true
	}

	r.OwnerID = ""
	if next := r.earliest(); next != nil {
		r.OwnerID = next.UserID
	}

	res.OwnerChanged = true
	res.NewOwnerID = r.OwnerID

	return res, true
}

func (r *RoomState) SetMedia(userID string, kind MediaKind, enabled bool) bool {
	p, ok := r.participants[userID]
	if !ok {
		return false
	}

	switch kind {
	case MediaAudio:
		p.AudioEnabled = enabled
	case MediaVideo:
		p.VideoEnabled = enabled
	default:
		return false
	}

	r.version++

	return true
}

// Participants возвращает копию участников в порядке (JoinTime, UserID)
func (r *RoomState) Participants() []Participant {
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })

	res := make([]Participant, 0, len(out))
	for _, p := range out {
		res = append(res, *p)
	}

	return res
}

func (r *RoomState) UserIDs() []string {
	participants := r.Participants()

	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}

	return ids
}

func (r *RoomState) Snapshot() Roster {
	return Roster{
		RoomID:       r.ID,
		Title:        r.Title,
		OwnerID:      r.OwnerID,
		Version:      r.version,
		Participants: r.Participants(),
	}
}

func (r *RoomState) earliest() *Participant {
	var first *Participant
	for _, p := range r.participants {
		if first == nil || p.before(first) {
			first = p
		}
	}

	return first
}
