package memory

import (
	"sync"

	"github.com/qrave1/TalkRooms/internal/application/metric"
	"github.com/qrave1/TalkRooms/internal/domain/runtime"
)

// RoomStore - индекс живых комнат. Каждая комната сериализуется собственным мьютексом,
// разные комнаты друг друга не блокируют.
type RoomStore interface {
	// Do выполняет fn под эксклюзивной блокировкой комнаты. Если комнаты нет и create == nil,
	// возвращает false. Комната, оставшаяся пустой после fn, удаляется из памяти.
	Do(roomID string, create func() *runtime.RoomState, fn func(state *runtime.RoomState)) bool

	Snapshot(roomID string) (runtime.Roster, bool)
	Count() int
}

type roomSlot struct {
	mu      sync.Mutex
	state   *runtime.RoomState
	removed bool
}

type roomStore struct {
	rooms map[string]*roomSlot
	mu    sync.RWMutex
}

func NewRoomStore() RoomStore {
	return &roomStore{
		rooms: make(map[string]*roomSlot),
	}
}

func (s *roomStore) Do(roomID string, create func() *runtime.RoomState, fn func(state *runtime.RoomState)) bool {
	for {
		slot := s.slot(roomID, create)
		if slot == nil {
			return false
		}

		slot.mu.Lock()

		// слот удалили, пока ждали блокировку - берём актуальный
		if slot.removed {
			slot.mu.Unlock()
			continue
		}

		fn(slot.state)

		if slot.state.Len() == 0 {
			slot.removed = true
			s.remove(roomID, slot)
		}

		slot.mu.Unlock()

		return true
	}
}

func (s *roomStore) Snapshot(roomID string) (runtime.Roster, bool) {
	var roster runtime.Roster

	ok := s.Do(roomID, nil, func(state *runtime.RoomState) {
		roster = state.Snapshot()
	})

	return roster, ok
}

func (s *roomStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rooms)
}

func (s *roomStore) slot(roomID string, create func() *runtime.RoomState) *roomSlot {
	s.mu.RLock()
	slot, ok := s.rooms[roomID]
	s.mu.RUnlock()

	if ok || create == nil {
		return slot
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok = s.rooms[roomID]; ok {
		return slot
	}

	slot = &roomSlot{state: create()}
	s.rooms[roomID] = slot
	metric.SetRoomsLive(len(s.rooms))

	return slot
}

func (s *roomStore) remove(roomID string, slot *roomSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rooms[roomID] == slot {
		delete(s.rooms, roomID)
		metric.SetRoomsLive(len(s.rooms))
	}
}
