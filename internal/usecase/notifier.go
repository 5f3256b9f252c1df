package usecase

import (
	"errors"
	"log/slog"

	"github.com/qrave1/TalkRooms/internal/application/constant"
	"github.com/qrave1/TalkRooms/internal/domain/events"
	"github.com/qrave1/TalkRooms/internal/domain/runtime"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/memory"
)

// Notifier кодирует исходящие события и кладёт их в очереди соединений.
// Рассылки по комнате делаются под блокировкой комнаты, поэтому порядок событий
// в очереди каждого соединения совпадает с порядком изменений.
type Notifier struct {
	connections memory.ConnectionRegistry
}

func NewNotifier(connections memory.ConnectionRegistry) *Notifier {
	return &Notifier{connections: connections}
}

// Send отправляет событие одному соединению
func (n *Notifier) Send(connectionID, msgType string, data any) bool {
	payload, err := events.Encode(msgType, data)
	if err != nil {
		slog.Error("encode event", slog.Any(constant.Error, err), slog.String(constant.EventType, msgType))
		return false
	}

	return n.connections.Send(connectionID, payload)
}

// Broadcast отправляет событие всем участникам комнаты, кроме exceptUserID
func (n *Notifier) Broadcast(state *runtime.RoomState, msgType string, data any, exceptUserID string) int {
	payload, err := events.Encode(msgType, data)
	if err != nil {
		slog.Error("encode event", slog.Any(constant.Error, err), slog.String(constant.EventType, msgType))
		return 0
	}

	sent := 0
	for _, p := range state.Participants() {
		if p.UserID == exceptUserID {
			continue
		}

		if n.connections.Send(p.ConnectionID, payload) {
			sent++
		}
	}

	return sent
}

// Error сообщает инициатору доменную ошибку. Для прочих ошибок возвращает false.
func (n *Notifier) Error(connectionID string, err error) bool {
	var roomErr *RoomError
	if !errors.As(err, &roomErr) {
		return false
	}

	n.Send(connectionID, events.TypeRoomError, events.RoomErrorEvent{
		Code:    string(roomErr.Code),
		Message: roomErr.Message,
	})

	return true
}
