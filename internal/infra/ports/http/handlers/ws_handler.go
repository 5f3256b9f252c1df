package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/qrave1/TalkRooms/internal/application/config"
	"github.com/qrave1/TalkRooms/internal/application/constant"
	"github.com/qrave1/TalkRooms/internal/domain/events"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/memory"
	"github.com/qrave1/TalkRooms/internal/infra/appctx"
	"github.com/qrave1/TalkRooms/internal/usecase"
)

const writeWait = 10 * time.Second

type WebSocketHandler struct {
	upgrader *websocket.Upgrader
	wsCfg    config.WebsocketConfig

	roomUsecase      usecase.RoomUsecase
	signalingUsecase usecase.SignalingUsecase

	connections memory.ConnectionRegistry
	notifier    *usecase.Notifier
}

func NewWebSocketHandler(
	cfg *config.Config,
	roomUsecase usecase.RoomUsecase,
	signalingUsecase usecase.SignalingUsecase,
	connections memory.ConnectionRegistry,
	notifier *usecase.Notifier,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		wsCfg:            cfg.WS,
		roomUsecase:      roomUsecase,
		signalingUsecase: signalingUsecase,
		connections:      connections,
		notifier:         notifier,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := appctx.UserID(ctx)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return err
	}
	defer ws.Close()

	connectionID := uuid.NewString()
	conn := h.connections.Register(connectionID)

	defer h.roomUsecase.HandleDisconnect(context.WithoutCancel(ctx), connectionID)

	ws.SetReadLimit(h.wsCfg.ReadLimit)

	if err = ws.SetReadDeadline(time.Now().Add(h.wsCfg.PongWait)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.wsCfg.PongWait))
	})

	go h.writePump(ws, conn)

	limiter := rate.NewLimiter(rate.Limit(h.wsCfg.RateLimit), h.wsCfg.RateBurst)

	slog.Info(
		"websocket connected",
		slog.String(constant.UserID, userID),
		slog.String(constant.ConnectionID, connectionID),
	)

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			h.handleWebsocketError(ctx, connectionID, err)

			return nil
		}

		if !limiter.Allow() {
			h.notifier.Error(connectionID, usecase.ErrRateLimited)
			continue
		}

		signalMessage := new(events.Message)

		if err = json.Unmarshal(msg, signalMessage); err != nil {
			h.notifier.Error(connectionID, badRequest("malformed message"))
			continue
		}

		if err = h.handleMessage(ctx, connectionID, userID, signalMessage); err != nil {
			if !h.notifier.Error(connectionID, err) {
				slog.Error(
					"handle message",
					slog.Any(constant.Error, err),
					slog.String(constant.EventType, signalMessage.Type),
					slog.String(constant.ConnectionID, connectionID),
				)
			}
		}
	}
}

// writePump - единственный писатель в сокет
func (h *WebSocketHandler) writePump(ws *websocket.Conn, conn *memory.Connection) {
	ticker := time.NewTicker(h.wsCfg.PingPeriod())

	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case payload := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))

			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Error("write to websocket", slog.Any(constant.Error, err), slog.String(constant.ConnectionID, conn.ID))
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))

			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Error("ping failed", slog.Any(constant.Error, err))
				return
			}

		case <-conn.Done():
			_ = ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

func (h *WebSocketHandler) handleMessage(
	ctx context.Context,
	connectionID string,
	userID string,
	msg *events.Message,
) error {
	switch msg.Type {
	case events.TypeJoin:
		joinEvent, err := decode[events.JoinEvent](msg)
		if err != nil {
			return err
		}

		if joinEvent.UserID == "" {
			joinEvent.UserID = userID
		}

		if joinEvent.UserID != userID {
			return &usecase.RoomError{Code: usecase.CodeUnauthorized, Message: "user_id does not match token"}
		}

		return h.roomUsecase.HandleJoin(ctx, connectionID, joinEvent)

	case events.TypeLeave:
		leaveEvent, err := decode[events.LeaveEvent](msg)
		if err != nil {
			return err
		}

		return h.roomUsecase.HandleLeave(ctx, connectionID, leaveEvent)

	case events.TypeKick:
		kickEvent, err := decode[events.KickEvent](msg)
		if err != nil {
			return err
		}

		return h.roomUsecase.HandleKick(ctx, connectionID, kickEvent)

	case events.TypeSendSignal:
		signalEvent, err := decode[events.SendSignalEvent](msg)
		if err != nil {
			return err
		}

		return h.signalingUsecase.HandleSignal(ctx, connectionID, signalEvent)

	case events.TypeSetMedia:
		mediaEvent, err := decode[events.SetMediaEvent](msg)
		if err != nil {
			return err
		}

		return h.roomUsecase.HandleSetMedia(ctx, connectionID, mediaEvent)

	case events.TypeSendChat:
		chatEvent, err := decode[events.SendChatEvent](msg)
		if err != nil {
			return err
		}

		return h.roomUsecase.HandleChat(ctx, connectionID, chatEvent)

	case events.TypePing:
		h.signalingUsecase.HandlePing(ctx, connectionID)

		return nil

	default:
		return badRequest(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func decode[T any](msg *events.Message) (T, error) {
	var ev T

	if len(msg.Data) == 0 {
		return ev, badRequest(fmt.Sprintf("%s: data is required", msg.Type))
	}

	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return ev, badRequest(fmt.Sprintf("%s: invalid data", msg.Type))
	}

	return ev, nil
}

func badRequest(message string) error {
	return &usecase.RoomError{Code: usecase.CodeBadRequest, Message: message}
}

func (h *WebSocketHandler) handleWebsocketError(ctx context.Context, connectionID string, err error) {
	userID, _ := appctx.UserID(ctx)

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info(
				"user disconnected from websocket",
				slog.String(constant.UserID, userID),
				slog.String(constant.ConnectionID, connectionID),
			)
		default:
			slog.Warn(
				"websocket closed",
				slog.Int(constant.Code, closeErr.Code),
				slog.String(constant.UserID, userID),
				slog.String(constant.ConnectionID, connectionID),
			)
		}
	} else {
		slog.Error(
			"websocket read",
			slog.Any(constant.Error, err),
			slog.String(constant.ConnectionID, connectionID),
		)
	}
}
