package usecase

import "fmt"

type ErrorCode string

const (
	CodeRoomNotFound    ErrorCode = "RoomNotFound"
	CodeUnauthorized    ErrorCode = "Unauthorized"
	CodeUserNotFound    ErrorCode = "UserNotFound"
	CodeTargetNotInRoom ErrorCode = "TargetNotInRoom"
	CodeNotInARoom      ErrorCode = "NotInARoom"
	CodeRoomFull        ErrorCode = "RoomFull"
	CodeBadRequest      ErrorCode = "BadRequest"
	CodeRateLimited     ErrorCode = "RateLimited"
)

// RoomError - ошибка, о которой сообщается только инициатору запроса.
// Состояние комнаты при этом не меняется.
type RoomError struct {
	Code    ErrorCode
	Message string
}

func (e *RoomError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is сравнивает по коду, чтобы errors.Is(err, ErrUnauthorized) работал для любых сообщений
func (e *RoomError) Is(target error) bool {
	t, ok := target.(*RoomError)
	return ok && t.Code == e.Code
}

func newRoomError(code ErrorCode, format string, args ...any) *RoomError {
	return &RoomError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrRoomNotFound    = &RoomError{Code: CodeRoomNotFound, Message: "room not found"}
	ErrUnauthorized    = &RoomError{Code: CodeUnauthorized, Message: "not allowed"}
	ErrUserNotFound    = &RoomError{Code: CodeUserNotFound, Message: "user not found in room"}
	ErrTargetNotInRoom = &RoomError{Code: CodeTargetNotInRoom, Message: "target is not in room"}
	ErrNotInARoom      = &RoomError{Code: CodeNotInARoom, Message: "connection is not in a room"}
	ErrRoomFull        = &RoomError{Code: CodeRoomFull, Message: "room is full"}
	ErrBadRequest      = &RoomError{Code: CodeBadRequest, Message: "bad request"}
	ErrRateLimited     = &RoomError{Code: CodeRateLimited, Message: "too many events"}
)
