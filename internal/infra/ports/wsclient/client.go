package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/qrave1/TalkRooms/internal/application/constant"
	"github.com/qrave1/TalkRooms/internal/domain/events"
	"github.com/qrave1/TalkRooms/internal/usecase"
)

// ErrGaveUp - комната так и не появилась за отведённые попытки
var ErrGaveUp = errors.New("room not found, giving up")

const (
	joinRetryInterval = 4 * time.Second
	joinMaxRetries    = 2
)

// DefaultJoinBackoff - 3 попытки с интервалом 4 секунды
func DefaultJoinBackoff() retry.Backoff {
	return retry.WithMaxRetries(joinMaxRetries, retry.NewConstant(joinRetryInterval))
}

// Client - тонкий клиент протокола комнат поверх websocket
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}

		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return &Client{conn: conn}, nil
}

func (c *Client) Send(msgType string, data any) error {
	payload, err := events.Encode(msgType, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) Read() (*events.Message, error) {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	msg := new(events.Message)
	if err = json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	return msg, nil
}

func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	return c.conn.Close()
}

// JoinWithRetry отправляет join и ждёт первого roster. На RoomNotFound повторяет по backoff,
// прочие ошибки комнаты возвращаются сразу.
func JoinWithRetry(ctx context.Context, c *Client, ev events.JoinEvent, backoff retry.Backoff) (*events.Message, error) {
	var roster *events.Message

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.Send(events.TypeJoin, ev); err != nil {
			return err
		}

		for {
			msg, err := c.Read()
			if err != nil {
				return err
			}

			switch msg.Type {
			case events.TypeRoster:
				roster = msg
				return nil

			case events.TypeRoomError:
				var roomErr events.RoomErrorEvent
				if err = json.Unmarshal(msg.Data, &roomErr); err != nil {
					return fmt.Errorf("decode room error: %w", err)
				}

				joinErr := &usecase.RoomError{Code: usecase.ErrorCode(roomErr.Code), Message: roomErr.Message}
				if joinErr.Code != usecase.CodeRoomNotFound {
					return joinErr
				}

				slog.WarnContext(ctx, "room not found, retrying join", slog.String(constant.RoomID, ev.RoomID))

				return retry.RetryableError(joinErr)
			}
		}
	})
	if err != nil {
		if errors.Is(err, usecase.ErrRoomNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGaveUp, ev.RoomID)
		}

		return nil, err
	}

	return roster, nil
}
