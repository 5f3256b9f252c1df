package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/TalkRooms/internal/application/config"
	"github.com/qrave1/TalkRooms/internal/domain/events"
	"github.com/qrave1/TalkRooms/internal/domain/models"
	"github.com/qrave1/TalkRooms/internal/domain/runtime"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/memory"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/TalkRooms/internal/infra/ports/http/dto"
	"github.com/qrave1/TalkRooms/internal/infra/ports/http/handlers"
	"github.com/qrave1/TalkRooms/internal/infra/ports/http/middleware"
	"github.com/qrave1/TalkRooms/internal/infra/ports/http/server"
	"github.com/qrave1/TalkRooms/internal/infra/ports/wsclient"
	"github.com/qrave1/TalkRooms/internal/usecase"
)

const testSecret = "test-secret"

type stubRoomRepo struct {
	rooms map[string]*models.Room
}

func (r *stubRoomRepo) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}

	return room, nil
}

func (r *stubRoomRepo) SetParticipants(context.Context, string, []string) error { return nil }

func (r *stubRoomRepo) SetOwner(context.Context, string, string) error { return nil }

type stubStatsRepo struct {
	mu       sync.Mutex
	sessions map[string]int
}

func (s *stubStatsRepo) IncrementSessionCount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[userID]++

	return nil
}

func (s *stubStatsRepo) AddHours(context.Context, string, float64) error { return nil }

func (s *stubStatsRepo) GetStats(_ context.Context, userID string) (*models.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &models.UserStats{UserID: userID, SessionCount: s.sessions[userID]}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Debug:      true,
		JWTSecret:  testSecret,
		StunServer: webrtc.ICEServer{URLs: []string{"stun:stun.example.org:3478"}},
		Session: config.SessionConfig{
			GracePeriod:    50 * time.Millisecond,
			RosterDebounce: 20 * time.Millisecond,
			ChatMaxLength:  100,
		},
		WS: config.WebsocketConfig{
			RateLimit:  100,
			RateBurst:  100,
			SendBuffer: 64,
			ReadLimit:  1 << 16,
			PongWait:   10 * time.Second,
		},
	}

	roomRepo := &stubRoomRepo{rooms: map[string]*models.Room{
		"r1": {ID: "r1", Title: "Standup", MaxParticipants: 4},
	}}
	statsRepo := &stubStatsRepo{sessions: make(map[string]int)}

	connections := memory.NewConnectionRegistry(cfg.WS.SendBuffer)
	rooms := memory.NewRoomStore()
	notifier := usecase.NewNotifier(connections)
	persister := usecase.NewPersister(64, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = persister.Run(ctx) }()

	roomUsecase := usecase.NewRoomUsecase(cfg.Session, roomRepo, statsRepo, rooms, connections, notifier, persister)
	signalingUsecase := usecase.NewSignalingUsecase(rooms, connections, notifier)

	e := server.New(
		cfg,
		handlers.NewIceHandler(cfg),
		handlers.NewRoomHandler(roomUsecase, statsRepo),
		handlers.NewWebSocketHandler(cfg, roomUsecase, signalingUsecase, connections, notifier),
	)

	srv := httptest.NewServer(e)

	t.Cleanup(func() {
		srv.Close()
		roomUsecase.Stop()
		cancel()
	})

	return srv
}

func signToken(t *testing.T, userID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	return signed
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
}

func dial(t *testing.T, srv *httptest.Server, userID string) *wsclient.Client {
	t.Helper()

	c, err := wsclient.Dial(context.Background(), wsURL(srv), signToken(t, userID))
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func readUntil(t *testing.T, c *wsclient.Client, msgType string) *events.Message {
	t.Helper()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	for {
		msg, err := c.Read()
		require.NoError(t, err, "waiting for %s", msgType)

		if msg.Type == msgType {
			return msg
		}
	}
}

func noRetry() retry.Backoff {
	return retry.WithMaxRetries(0, retry.NewConstant(10*time.Millisecond))
}

func TestWebSocketSession(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	alice := dial(t, srv, "alice")
	msg, err := wsclient.JoinWithRetry(ctx, alice, events.JoinEvent{RoomID: "r1", DisplayName: "Alice"}, noRetry())
	require.NoError(t, err)

	var roster runtime.Roster
	require.NoError(t, json.Unmarshal(msg.Data, &roster))
	assert.Equal(t, "alice", roster.OwnerID)
	assert.Equal(t, "Standup", roster.Title)

	bob := dial(t, srv, "bob")
	_, err = wsclient.JoinWithRetry(ctx, bob, events.JoinEvent{RoomID: "r1", UserID: "bob", DisplayName: "Bob"}, noRetry())
	require.NoError(t, err)

	joined := readUntil(t, alice, events.TypeParticipantJoined)
	var joinedEvent events.ParticipantJoinedEvent
	require.NoError(t, json.Unmarshal(joined.Data, &joinedEvent))
	assert.Equal(t, "bob", joinedEvent.Participant.UserID)

	require.NoError(t, alice.Send(events.TypeSendSignal, events.SendSignalEvent{
		ToUserID: "bob",
		RoomID:   "r1",
		Kind:     runtime.SignalOffer,
		Payload:  json.RawMessage(`{"sdp":"v=0"}`),
	}))

	signal := readUntil(t, bob, events.TypeSignal)
	var signalEvent events.SignalEvent
	require.NoError(t, json.Unmarshal(signal.Data, &signalEvent))
	assert.Equal(t, "alice", signalEvent.FromUserID)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(signalEvent.Payload))

	resp, err := http.DefaultClient.Do(authorized(t, srv.URL+"/api/v1/rooms/r1/roster", "bob"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rosterResp dto.RosterResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rosterResp))
	require.Len(t, rosterResp.Participants, 2)
	assert.True(t, rosterResp.Participants[0].IsOwner)
}

func TestWebSocketProtocolErrors(t *testing.T) {
	srv := newTestServer(t)

	for name, tc := range map[string]struct {
		send func(c *wsclient.Client) error
		code usecase.ErrorCode
	}{
		"UnknownType": {
			send: func(c *wsclient.Client) error { return c.Send("dance", nil) },
			code: usecase.CodeBadRequest,
		},
		"ForeignUserID": {
			send: func(c *wsclient.Client) error {
				return c.Send(events.TypeJoin, events.JoinEvent{RoomID: "r1", UserID: "mallory"})
			},
			code: usecase.CodeUnauthorized,
		},
		"UnknownRoom": {
			send: func(c *wsclient.Client) error {
				return c.Send(events.TypeJoin, events.JoinEvent{RoomID: "nope"})
			},
			code: usecase.CodeRoomNotFound,
		},
		"LeaveWithoutRoom": {
			send: func(c *wsclient.Client) error { return c.Send(events.TypeLeave, events.LeaveEvent{}) },
			code: usecase.CodeNotInARoom,
		},
	} {
		t.Run(name, func(t *testing.T) {
			c := dial(t, srv, "carol")

			require.NoError(t, tc.send(c))

			msg := readUntil(t, c, events.TypeRoomError)

			var roomErr events.RoomErrorEvent
			require.NoError(t, json.Unmarshal(msg.Data, &roomErr))
			assert.Equal(t, string(tc.code), roomErr.Code)
		})
	}
}

func TestWebSocketPing(t *testing.T) {
	srv := newTestServer(t)

	c := dial(t, srv, "dave")
	require.NoError(t, c.Send(events.TypePing, nil))

	readUntil(t, c, events.TypePong)
}

func TestWebSocketCookieAuth(t *testing.T) {
	srv := newTestServer(t)

	header := http.Header{}
	header.Set("Cookie", middleware.CookieName+"="+signToken(t, "erin"))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
}

func authorized(t *testing.T, url, userID string) *http.Request {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)

	req.Header.Set("Authorization", "Bearer "+signToken(t, userID))

	return req
}

func TestWebSocketDisconnectTransfersOwnership(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	u1, err := wsclient.Dial(ctx, wsURL(srv), signToken(t, "U1"))
	require.NoError(t, err)

	_, err = wsclient.JoinWithRetry(ctx, u1, events.JoinEvent{RoomID: "r1"}, noRetry())
	require.NoError(t, err)

	u2 := dial(t, srv, "U2")
	msg, err := wsclient.JoinWithRetry(ctx, u2, events.JoinEvent{RoomID: "r1"}, noRetry())
	require.NoError(t, err)

	var roster runtime.Roster
	require.NoError(t, json.Unmarshal(msg.Data, &roster))
	require.Len(t, roster.Participants, 2)
	assert.Equal(t, "U1", roster.OwnerID)

	require.NoError(t, u1.Close())

	left := readUntil(t, u2, events.TypeParticipantLeft)
	var leftEvent events.ParticipantLeftEvent
	require.NoError(t, json.Unmarshal(left.Data, &leftEvent))
	assert.Equal(t, "U1", leftEvent.UserID)

	owner := readUntil(t, u2, events.TypeOwnershipChanged)
	var ownerEvent events.OwnershipChangedEvent
	require.NoError(t, json.Unmarshal(owner.Data, &ownerEvent))
	assert.Equal(t, "U2", ownerEvent.NewOwnerID)

	roster = runtime.Roster{}
	require.NoError(t, json.Unmarshal(readUntil(t, u2, events.TypeRoster).Data, &roster))
	require.Len(t, roster.Participants, 1)
	assert.Equal(t, "U2", roster.OwnerID)
}
