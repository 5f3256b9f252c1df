package usecase

import (
	"sync"
	"time"
)

type pendingKey struct {
	roomID string
	userID string
}

// PendingDisconnect - отложенная очистка после потери транспорта
type PendingDisconnect struct {
	ConnectionID string
	RoomID       string
	UserID       string
	ScheduledAt  time.Time

	timer *time.Timer
}

// DisconnectReconciler откладывает удаление участника на grace period.
// Переподключение того же (roomID, userID) отменяет удаление за O(1).
// Cancel и Claim вызываются под блокировкой комнаты; Claim срабатывает только для той же записи.
type DisconnectReconciler struct {
	grace time.Duration

	pending map[pendingKey]*PendingDisconnect
	mu      sync.Mutex
}

func NewDisconnectReconciler(grace time.Duration) *DisconnectReconciler {
	return &DisconnectReconciler{
		grace:   grace,
		pending: make(map[pendingKey]*PendingDisconnect),
	}
}

// Schedule ставит отложенную очистку, onExpire вызывается из горутины таймера
func (r *DisconnectReconciler) Schedule(connectionID, roomID, userID string, onExpire func(*PendingDisconnect)) *PendingDisconnect {
	pd := &PendingDisconnect{
		ConnectionID: connectionID,
		RoomID:       roomID,
		UserID:       userID,
		ScheduledAt:  time.Now(),
	}

	key := pendingKey{roomID: roomID, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.pending[key]; ok {
		prev.timer.Stop()
	}

	r.pending[key] = pd
	pd.timer = time.AfterFunc(r.grace, func() { onExpire(pd) })

	return pd
}

// Cancel снимает отложенную очистку, если она есть
func (r *DisconnectReconciler) Cancel(roomID, userID string) bool {
	key := pendingKey{roomID: roomID, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()

	pd, ok := r.pending[key]
	if !ok {
		return false
	}

	pd.timer.Stop()
	delete(r.pending, key)

	return true
}

// Claim забирает запись перед очисткой. false - запись отменена или заменена.
func (r *DisconnectReconciler) Claim(pd *PendingDisconnect) bool {
	key := pendingKey{roomID: pd.RoomID, userID: pd.UserID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending[key] != pd {
		return false
	}

	delete(r.pending, key)

	return true
}

func (r *DisconnectReconciler) Pending(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.pending[pendingKey{roomID: roomID, userID: userID}]

	return ok
}

func (r *DisconnectReconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, pd := range r.pending {
		pd.timer.Stop()
		delete(r.pending, key)
	}
}
