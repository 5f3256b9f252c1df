package constant

// Ключи атрибутов для slog
const (
	Error        = "error"
	UserID       = "user_id"
	RoomID       = "room_id"
	ConnectionID = "connection_id"
	TargetUserID = "target_user_id"
	EventType    = "event_type"
	Task         = "task"
	Code         = "code"
)
