package usecase

import (
	"context"
	"log/slog"

	"github.com/qrave1/TalkRooms/internal/application/constant"
	"github.com/qrave1/TalkRooms/internal/application/metric"
	"github.com/qrave1/TalkRooms/internal/domain/events"
	"github.com/qrave1/TalkRooms/internal/domain/runtime"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/memory"
)

type SignalingUsecase interface {
	HandleSignal(ctx context.Context, connectionID string, ev events.SendSignalEvent) error
	// Relay пересылает конверт живому соединению адресата, payload не разбирается
	Relay(ctx context.Context, envelope runtime.SignalingEnvelope) error

	HandlePing(ctx context.Context, connectionID string)
}

type signalingUsecase struct {
	rooms       memory.RoomStore
	connections memory.ConnectionRegistry
	notifier    *Notifier
}

func NewSignalingUsecase(
	rooms memory.RoomStore,
	connections memory.ConnectionRegistry,
	notifier *Notifier,
) SignalingUsecase {
	return &signalingUsecase{
		rooms:       rooms,
		connections: connections,
		notifier:    notifier,
	}
}

func (s *signalingUsecase) HandleSignal(ctx context.Context, connectionID string, ev events.SendSignalEvent) error {
	roomID, userID, ok := s.connections.Lookup(connectionID)
	if !ok || roomID != ev.RoomID {
		return ErrNotInARoom
	}

	if ev.ToUserID == "" || ev.ToUserID == userID {
		return newRoomError(CodeBadRequest, "invalid to_user_id")
	}

	if !ev.Kind.Valid() {
		return newRoomError(CodeBadRequest, "unknown signal kind %q", ev.Kind)
	}

	return s.Relay(ctx, runtime.SignalingEnvelope{
		FromUserID: userID,
		ToUserID:   ev.ToUserID,
		RoomID:     roomID,
		Kind:       ev.Kind,
		Payload:    ev.Payload,
	})
}

func (s *signalingUsecase) Relay(ctx context.Context, envelope runtime.SignalingEnvelope) error {
	var found bool

	// отправка под локом комнаты, чтобы сигнал не обогнал roster
	s.rooms.Do(envelope.RoomID, nil, func(state *runtime.RoomState) {
		target, ok := state.ConnectionOf(envelope.ToUserID)
		if !ok {
			return
		}

		found = s.notifier.Send(target, events.TypeSignal, events.SignalEvent{
			FromUserID: envelope.FromUserID,
			Kind:       envelope.Kind,
			Payload:    envelope.Payload,
		})
	})

	if !found {
		metric.RecordSignalRelay("target_not_in_room")

		slog.DebugContext(
			ctx,
			"signal target not in room",
			slog.String(constant.RoomID, envelope.RoomID),
			slog.String(constant.UserID, envelope.FromUserID),
			slog.String(constant.TargetUserID, envelope.ToUserID),
		)

		return newRoomError(CodeTargetNotInRoom, "user %s is not in room %s", envelope.ToUserID, envelope.RoomID)
	}

	metric.RecordSignalRelay("delivered")

	return nil
}

func (s *signalingUsecase) HandlePing(ctx context.Context, connectionID string) {
	s.notifier.Send(connectionID, events.TypePong, nil)
}
