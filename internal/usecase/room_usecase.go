package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/qrave1/TalkRooms/internal/application/config"
	"github.com/qrave1/TalkRooms/internal/application/constant"
	"github.com/qrave1/TalkRooms/internal/application/metric"
	"github.com/qrave1/TalkRooms/internal/domain/events"
	"github.com/qrave1/TalkRooms/internal/domain/runtime"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/memory"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/postgres/repository"
)

const (
	reasonKicked       = "kicked by room owner"
	reasonSessionMoved = "session moved to another connection"
)

type RoomUsecase interface {
	HandleJoin(ctx context.Context, connectionID string, ev events.JoinEvent) error
	HandleLeave(ctx context.Context, connectionID string, ev events.LeaveEvent) error
	HandleKick(ctx context.Context, connectionID string, ev events.KickEvent) error
	HandleSetMedia(ctx context.Context, connectionID string, ev events.SetMediaEvent) error
	HandleChat(ctx context.Context, connectionID string, ev events.SendChatEvent) error

	// HandleDisconnect вызывается транспортом при потере соединения
	HandleDisconnect(ctx context.Context, connectionID string)

	SetMediaState(ctx context.Context, roomID, userID string, kind runtime.MediaKind, enabled bool)
	Roster(roomID string) (runtime.Roster, bool)

	Stop()
}

type roomUsecase struct {
	cfg config.SessionConfig

	roomRepo  repository.RoomRepository
	statsRepo repository.UserStatsRepository

	rooms       memory.RoomStore
	connections memory.ConnectionRegistry

	notifier   *Notifier
	persister  *Persister
	reconciler *DisconnectReconciler
	debouncer  *RosterDebouncer

	now func() time.Time
}

func NewRoomUsecase(
	cfg config.SessionConfig,
	roomRepo repository.RoomRepository,
	statsRepo repository.UserStatsRepository,
	rooms memory.RoomStore,
	connections memory.ConnectionRegistry,
	notifier *Notifier,
	persister *Persister,
) RoomUsecase {
	u := &roomUsecase{
		cfg:         cfg,
		roomRepo:    roomRepo,
		statsRepo:   statsRepo,
		rooms:       rooms,
		connections: connections,
		notifier:    notifier,
		persister:   persister,
		reconciler:  NewDisconnectReconciler(cfg.GracePeriod),
		now:         time.Now,
	}

	u.debouncer = NewRosterDebouncer(cfg.RosterDebounce, u.flushRoster)

	return u
}

func (u *roomUsecase) HandleJoin(ctx context.Context, connectionID string, ev events.JoinEvent) error {
	if ev.RoomID == "" || ev.UserID == "" {
		return newRoomError(CodeBadRequest, "room_id and user_id are required")
	}

	room, err := u.roomRepo.GetRoom(ctx, ev.RoomID)
	if err != nil {
		if !errors.Is(err, repository.ErrRoomNotFound) {
			slog.Error("get room", slog.Any(constant.Error, err), slog.String(constant.RoomID, ev.RoomID))
		}

		// клиент повторит вход через retry, отдельного кода для сбоя хранилища нет
		return newRoomError(CodeRoomNotFound, "room %s not found", ev.RoomID)
	}

	prevRoomID, prevUserID, inRoom := u.connections.Lookup(connectionID)

	if inRoom && prevRoomID == ev.RoomID && prevUserID == ev.UserID {
		u.rooms.Do(ev.RoomID, nil, func(state *runtime.RoomState) {
			u.notifier.Send(connectionID, events.TypeRoster, state.Snapshot())
		})

		return nil
	}

	if inRoom {
		u.leaveRoom(ctx, connectionID, prevRoomID, prevUserID)
	}

	title := room.Title
	if title == "" {
		title = ev.RoomTitle
	}

	create := func() *runtime.RoomState {
		return runtime.NewRoomState(ev.RoomID, title, room.MaxParticipants)
	}

	var joinErr error

	u.rooms.Do(ev.RoomID, create, func(state *runtime.RoomState) {
		state.Title = title
		state.MaxParticipants = room.MaxParticipants

		u.reconciler.Cancel(ev.RoomID, ev.UserID)

		if _, exists := state.Participant(ev.UserID); exists {
			u.switchConnection(state, connectionID, ev.UserID)
			return
		}

		if state.Full() {
			joinErr = newRoomError(CodeRoomFull, "room %s is full", ev.RoomID)
			return
		}

		participant := runtime.Participant{
			ConnectionID: connectionID,
			UserID:       ev.UserID,
			DisplayName:  ev.DisplayName,
			AvatarURL:    ev.AvatarURL,
			JoinTime:     u.now(),
		}

		becameOwner, err := state.Add(participant)
		if err != nil {
			joinErr = fmt.Errorf("add participant: %w", err)
			return
		}

		u.connections.Associate(connectionID, ev.RoomID, ev.UserID)

		u.notifier.Broadcast(
			state,
			events.TypeParticipantJoined,
			events.ParticipantJoinedEvent{Participant: participant},
			ev.UserID,
		)
		u.debouncer.Trigger(ev.RoomID)

		u.persistParticipants(state)
		if becameOwner {
			u.persistOwner(state.ID, state.OwnerID)
		}

		userID := ev.UserID
		u.persister.Enqueue("increment_session_count", func(ctx context.Context) error {
			return u.statsRepo.IncrementSessionCount(ctx, userID)
		})

		slog.Info(
			"user joined room",
			slog.String(constant.RoomID, ev.RoomID),
			slog.String(constant.UserID, ev.UserID),
			slog.String(constant.ConnectionID, connectionID),
			slog.Bool("owner", becameOwner),
		)
	})

	return joinErr
}

// switchConnection - пользователь вернулся через другое соединение; запись не дублируется
// и событие входа не рассылается.
func (u *roomUsecase) switchConnection(state *runtime.RoomState, connectionID, userID string) {
	previous, _ := state.SwitchConnection(userID, connectionID)

	u.connections.Associate(connectionID, state.ID, userID)

	if previous != "" && previous != connectionID {
		if roomID, prevUser, live := u.connections.Lookup(previous); live && roomID == state.ID && prevUser == userID {
			u.connections.Dissociate(previous)
			u.notifier.Send(previous, events.TypeKicked, events.KickedEvent{Reason: reasonSessionMoved})
		}
	}

	u.debouncer.Trigger(state.ID)

	slog.Info(
		"user switched connection",
		slog.String(constant.RoomID, state.ID),
		slog.String(constant.UserID, userID),
		slog.String(constant.ConnectionID, connectionID),
		slog.String("previous_connection_id", previous),
	)
}

func (u *roomUsecase) HandleLeave(ctx context.Context, connectionID string, ev events.LeaveEvent) error {
	roomID, userID, ok := u.connections.Lookup(connectionID)
	if !ok || (ev.RoomID != "" && ev.RoomID != roomID) {
		return ErrNotInARoom
	}

	if ev.UserID != "" && ev.UserID != userID {
		return newRoomError(CodeUnauthorized, "cannot leave on behalf of another user")
	}

	u.leaveRoom(ctx, connectionID, roomID, userID)

	return nil
}

func (u *roomUsecase) leaveRoom(ctx context.Context, connectionID, roomID, userID string) {
	u.rooms.Do(roomID, nil, func(state *runtime.RoomState) {
		if conn, ok := state.ConnectionOf(userID); ok && conn == connectionID {
			u.removeParticipant(ctx, state, userID)
		}
	})

	u.connections.Dissociate(connectionID)
}

func (u *roomUsecase) HandleKick(ctx context.Context, connectionID string, ev events.KickEvent) error {
	roomID, requesterID, ok := u.connections.Lookup(connectionID)
	if !ok || (ev.RoomID != "" && ev.RoomID != roomID) {
		return ErrNotInARoom
	}

	if ev.TargetUserID == "" {
		return newRoomError(CodeBadRequest, "target_user_id is required")
	}

	var kickErr error

	found := u.rooms.Do(roomID, nil, func(state *runtime.RoomState) {
		if state.OwnerID != requesterID {
			kickErr = newRoomError(CodeUnauthorized, "only the room owner can kick participants")
			return
		}

		if ev.TargetUserID == requesterID {
			kickErr = newRoomError(CodeUnauthorized, "owner cannot kick themselves")
			return
		}

		target, exists := state.Participant(ev.TargetUserID)
		if !exists {
			kickErr = newRoomError(CodeUserNotFound, "user %s is not in room %s", ev.TargetUserID, roomID)
			return
		}

		u.reconciler.Cancel(roomID, target.UserID)
		u.removeParticipant(ctx, state, target.UserID)

		u.notifier.Send(target.ConnectionID, events.TypeKicked, events.KickedEvent{Reason: reasonKicked})
		u.connections.Dissociate(target.ConnectionID)

		slog.Info(
			"user kicked",
			slog.String(constant.RoomID, roomID),
			slog.String(constant.UserID, requesterID),
			slog.String(constant.TargetUserID, target.UserID),
		)
	})
	if !found {
		return ErrNotInARoom
	}

	return kickErr
}

// removeParticipant - общий алгоритм выхода: leave, kick и истёкший grace period.
// Вызывается под блокировкой комнаты.
func (u *roomUsecase) removeParticipant(ctx context.Context, state *runtime.RoomState, userID string) {
	removal, ok := state.Remove(userID)
	if !ok {
		return
	}

	if state.Len() > 0 {
		u.notifier.Broadcast(state, events.TypeParticipantLeft, events.ParticipantLeftEvent{UserID: userID}, "")

		if removal.OwnerChanged {
			u.notifier.Broadcast(
				state,
				events.TypeOwnershipChanged,
				events.OwnershipChangedEvent{NewOwnerID: removal.NewOwnerID},
				"",
			)
		}

		u.debouncer.Trigger(state.ID)
	} else {
		u.debouncer.Cancel(state.ID)
	}

	u.persistParticipants(state)
	if removal.OwnerChanged {
		u.persistOwner(state.ID, removal.NewOwnerID)
	}

	hours := u.now().Sub(removal.Participant.JoinTime).Hours()
	u.persister.Enqueue("add_user_hours", func(ctx context.Context) error {
		return u.statsRepo.AddHours(ctx, userID, hours)
	})

	slog.InfoContext(
		ctx,
		"user left room",
		slog.String(constant.RoomID, state.ID),
		slog.String(constant.UserID, userID),
		slog.Float64("hours", hours),
		slog.String("new_owner_id", removal.NewOwnerID),
	)
}

func (u *roomUsecase) HandleDisconnect(ctx context.Context, connectionID string) {
	roomID, userID, inRoom := u.connections.Lookup(connectionID)

	u.connections.Forget(connectionID)

	if !inRoom {
		return
	}

	u.reconciler.Schedule(connectionID, roomID, userID, func(pd *PendingDisconnect) {
		u.finalizeDisconnect(context.WithoutCancel(ctx), pd)
	})

	slog.Info(
		"connection lost, cleanup deferred",
		slog.String(constant.RoomID, roomID),
		slog.String(constant.UserID, userID),
		slog.String(constant.ConnectionID, connectionID),
		slog.Duration("grace_period", u.cfg.GracePeriod),
	)
}

func (u *roomUsecase) finalizeDisconnect(ctx context.Context, pd *PendingDisconnect) {
	u.rooms.Do(pd.RoomID, nil, func(state *runtime.RoomState) {
		if !u.reconciler.Claim(pd) {
			return
		}

		conn, ok := state.ConnectionOf(pd.UserID)
		if !ok || conn != pd.ConnectionID {
			return
		}

		u.removeParticipant(ctx, state, pd.UserID)
	})
}

func (u *roomUsecase) HandleSetMedia(ctx context.Context, connectionID string, ev events.SetMediaEvent) error {
	roomID, userID, ok := u.connections.Lookup(connectionID)
	if !ok || (ev.RoomID != "" && ev.RoomID != roomID) {
		return ErrNotInARoom
	}

	if ev.UserID != "" && ev.UserID != userID {
		return newRoomError(CodeUnauthorized, "cannot change media state of another user")
	}

	if !ev.Kind.Valid() {
		return newRoomError(CodeBadRequest, "unknown media kind %q", ev.Kind)
	}

	u.SetMediaState(ctx, roomID, userID, ev.Kind, ev.Enabled)

	return nil
}

func (u *roomUsecase) SetMediaState(ctx context.Context, roomID, userID string, kind runtime.MediaKind, enabled bool) {
	found := u.rooms.Do(roomID, nil, func(state *runtime.RoomState) {
		if !state.SetMedia(userID, kind, enabled) {
			slog.WarnContext(
				ctx,
				"media state for unknown participant",
				slog.String(constant.RoomID, roomID),
				slog.String(constant.UserID, userID),
			)
			return
		}

		u.notifier.Broadcast(state, events.TypeMediaChanged, events.MediaChangedEvent{
			UserID:  userID,
			Kind:    kind,
			Enabled: enabled,
		}, "")
		u.debouncer.Trigger(roomID)
	})
	if !found {
		slog.WarnContext(ctx, "media state for unknown room", slog.String(constant.RoomID, roomID))
	}
}

func (u *roomUsecase) HandleChat(ctx context.Context, connectionID string, ev events.SendChatEvent) error {
	roomID, userID, ok := u.connections.Lookup(connectionID)
	if !ok || (ev.RoomID != "" && ev.RoomID != roomID) {
		return ErrNotInARoom
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return newRoomError(CodeBadRequest, "empty message")
	}

	if u.cfg.ChatMaxLength > 0 && utf8.RuneCountInString(text) > u.cfg.ChatMaxLength {
		return newRoomError(CodeBadRequest, "message is longer than %d characters", u.cfg.ChatMaxLength)
	}

	u.rooms.Do(roomID, nil, func(state *runtime.RoomState) {
		sender, exists := state.Participant(userID)
		if !exists {
			return
		}

		u.notifier.Broadcast(state, events.TypeChat, events.ChatEvent{
			FromUserID:  userID,
			DisplayName: sender.DisplayName,
			Text:        text,
			SentAt:      u.now(),
		}, "")
	})

	return nil
}

func (u *roomUsecase) Roster(roomID string) (runtime.Roster, bool) {
	return u.rooms.Snapshot(roomID)
}

func (u *roomUsecase) Stop() {
	u.debouncer.Stop()
	u.reconciler.Stop()
}

func (u *roomUsecase) flushRoster(roomID string) {
	u.rooms.Do(roomID, nil, func(state *runtime.RoomState) {
		u.notifier.Broadcast(state, events.TypeRoster, state.Snapshot(), "")
		metric.IncrementRosterBroadcasts()
	})
}

func (u *roomUsecase) persistParticipants(state *runtime.RoomState) {
	roomID := state.ID
	userIDs := state.UserIDs()

	u.persister.Enqueue("set_participants", func(ctx context.Context) error {
		return u.roomRepo.SetParticipants(ctx, roomID, userIDs)
	})
}

func (u *roomUsecase) persistOwner(roomID, ownerID string) {
	u.persister.Enqueue("set_owner", func(ctx context.Context) error {
		return u.roomRepo.SetOwner(ctx, roomID, ownerID)
	})
}
