package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qrave1/TalkRooms/internal/application/config"
	"github.com/qrave1/TalkRooms/internal/domain/events"
	"github.com/qrave1/TalkRooms/internal/domain/models"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/memory"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/postgres/repository"
)

const (
	testGrace    = 80 * time.Millisecond
	testDebounce = 40 * time.Millisecond
	waitTimeout  = 2 * time.Second
)

type fakeRoomRepo struct {
	mu sync.Mutex

	rooms        map[string]*models.Room
	participants map[string][]string
	owners       map[string]string
	getErr       error
}

func newFakeRoomRepo(rooms ...*models.Room) *fakeRoomRepo {
	repo := &fakeRoomRepo{
		rooms:        make(map[string]*models.Room),
		participants: make(map[string][]string),
		owners:       make(map[string]string),
	}

	for _, room := range rooms {
		repo.rooms[room.ID] = room
	}

	return repo
}

func (r *fakeRoomRepo) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return nil, r.getErr
	}

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}

	copied := *room

	return &copied, nil
}

func (r *fakeRoomRepo) SetParticipants(_ context.Context, roomID string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants[roomID] = append([]string(nil), userIDs...)

	return nil
}

func (r *fakeRoomRepo) SetOwner(_ context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.owners[roomID] = userID

	return nil
}

func (r *fakeRoomRepo) Participants(roomID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, ok := r.participants[roomID]

	return ids, ok
}

func (r *fakeRoomRepo) Owner(roomID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.owners[roomID]
}

type fakeStatsRepo struct {
	mu sync.Mutex

	sessions map[string]int
	hours    map[string]float64
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{
		sessions: make(map[string]int),
		hours:    make(map[string]float64),
	}
}

func (s *fakeStatsRepo) IncrementSessionCount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[userID]++

	return nil
}

func (s *fakeStatsRepo) AddHours(_ context.Context, userID string, hours float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hours[userID] += hours

	return nil
}

func (s *fakeStatsRepo) GetStats(_ context.Context, userID string) (*models.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &models.UserStats{UserID: userID, SessionCount: s.sessions[userID], Hours: s.hours[userID]}, nil
}

func (s *fakeStatsRepo) Sessions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions[userID]
}

type harness struct {
	rooms       memory.RoomStore
	connections memory.ConnectionRegistry
	roomRepo    *fakeRoomRepo
	statsRepo   *fakeStatsRepo

	room      RoomUsecase
	signaling SignalingUsecase
}

func newHarness(t *testing.T, rooms ...*models.Room) *harness {
	t.Helper()

	h := &harness{
		rooms:       memory.NewRoomStore(),
		connections: memory.NewConnectionRegistry(256),
		roomRepo:    newFakeRoomRepo(rooms...),
		statsRepo:   newFakeStatsRepo(),
	}

	notifier := NewNotifier(h.connections)
	persister := NewPersister(128, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = persister.Run(ctx)
		close(done)
	}()

	cfg := config.SessionConfig{
		GracePeriod:    testGrace,
		RosterDebounce: testDebounce,
		ChatMaxLength:  20,
	}

	h.room = NewRoomUsecase(cfg, h.roomRepo, h.statsRepo, h.rooms, h.connections, notifier, persister)
	h.signaling = NewSignalingUsecase(h.rooms, h.connections, notifier)

	t.Cleanup(func() {
		h.room.Stop()
		cancel()
		<-done
	})

	return h
}

func testRoom(id string, maxParticipants int) *models.Room {
	return &models.Room{ID: id, Title: "Room " + id, MaxParticipants: maxParticipants}
}

// client - подключение, как его видит транспорт
type client struct {
	id   string
	conn *memory.Connection
}

func (h *harness) connect(id string) *client {
	return &client{id: id, conn: h.connections.Register(id)}
}

func (h *harness) join(t *testing.T, c *client, roomID, userID string) {
	t.Helper()

	require.NoError(t, h.room.HandleJoin(context.Background(), c.id, events.JoinEvent{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: userID,
	}))
}

func decodeMessage(t *testing.T, raw []byte) events.Message {
	t.Helper()

	var msg events.Message
	require.NoError(t, json.Unmarshal(raw, &msg))

	return msg
}

// waitFor читает очередь соединения до первого события нужного типа
func (c *client) waitFor(t *testing.T, msgType string) events.Message {
	t.Helper()

	deadline := time.After(waitTimeout)

	for {
		select {
		case raw := <-c.conn.Outbound():
			if msg := decodeMessage(t, raw); msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("%s: no %s event within %s", c.id, msgType, waitTimeout)
			return events.Message{}
		}
	}
}

// collect собирает всё, что придёт за d
func (c *client) collect(t *testing.T, d time.Duration) []events.Message {
	t.Helper()

	var out []events.Message

	deadline := time.After(d)

	for {
		select {
		case raw := <-c.conn.Outbound():
			out = append(out, decodeMessage(t, raw))
		case <-deadline:
			return out
		}
	}
}

func countType(messages []events.Message, msgType string) int {
	n := 0
	for _, msg := range messages {
		if msg.Type == msgType {
			n++
		}
	}

	return n
}

func decodeData[T any](t *testing.T, msg events.Message) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))

	return v
}
