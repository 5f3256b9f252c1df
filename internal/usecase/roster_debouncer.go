package usecase

import (
	"sync"
	"time"
)

// RosterDebouncer схлопывает частые триггеры одной комнаты в одну рассылку.
// Окно отсчитывается от первого триггера, flush снимает состояние на момент срабатывания.
type RosterDebouncer struct {
	window time.Duration
	flush  func(roomID string)

	timers map[string]*time.Timer
	mu     sync.Mutex
}

func NewRosterDebouncer(window time.Duration, flush func(roomID string)) *RosterDebouncer {
	return &RosterDebouncer{
		window: window,
		flush:  flush,
		timers: make(map[string]*time.Timer),
	}
}

func (d *RosterDebouncer) Trigger(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, pending := d.timers[roomID]; pending {
		return
	}

	d.timers[roomID] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, roomID)
		d.mu.Unlock()

		d.flush(roomID)
	})
}

func (d *RosterDebouncer) Cancel(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[roomID]; ok {
		t.Stop()
		delete(d.timers, roomID)
	}
}

func (d *RosterDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for roomID, t := range d.timers {
		t.Stop()
		delete(d.timers, roomID)
	}
}
