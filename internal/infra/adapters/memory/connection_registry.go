package memory

import (
	"log/slog"
	"sync"

	"github.com/qrave1/TalkRooms/internal/application/constant"
	"github.com/qrave1/TalkRooms/internal/application/metric"
)

// ConnectionRegistry хранит живые транспортные соединения и комнату, с которой они связаны
type ConnectionRegistry interface {
	Register(connectionID string) *Connection
	Associate(connectionID, roomID, userID string)
	Dissociate(connectionID string)
	// Lookup для незарегистрированного или анонимного соединения возвращает ok=false
	Lookup(connectionID string) (roomID, userID string, ok bool)
	Forget(connectionID string)

	// Send не блокируется: переполненная очередь закрывает медленное соединение
	Send(connectionID string, payload []byte) bool
	Count() int
}

// Connection - исходящая очередь одного соединения. Пишет в сокет ровно одна горутина транспорта.
type Connection struct {
	ID string

	send chan []byte
	done chan struct{}
	once sync.Once

	roomID string
	userID string
}

func (c *Connection) Outbound() <-chan []byte { return c.send }

// Done закрывается, когда соединение забыто или отброшено как медленное
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) close() {
	c.once.Do(func() { close(c.done) })
}

type connectionRegistry struct {
	// conns хранит map[connection_id]*Connection
	conns map[string]*Connection

	bufferSize int
	mu         sync.RWMutex
}

func NewConnectionRegistry(bufferSize int) ConnectionRegistry {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	return &connectionRegistry{
		conns:      make(map[string]*Connection, 10),
		bufferSize: bufferSize,
	}
}

func (r *connectionRegistry) Register(connectionID string) *Connection {
	conn := &Connection{
		ID:   connectionID,
		send: make(chan []byte, r.bufferSize),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.conns[connectionID]; exists {
		prev.close()
	} else {
		metric.IncrementWSActiveConnections()
	}

	r.conns[connectionID] = conn

	return conn
}

func (r *connectionRegistry) Associate(connectionID, roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connectionID]; ok {
		conn.roomID = roomID
		conn.userID = userID
	}
}

func (r *connectionRegistry) Dissociate(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connectionID]; ok {
		conn.roomID = ""
		conn.userID = ""
	}
}

func (r *connectionRegistry) Lookup(connectionID string) (string, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connectionID]
	if !ok || conn.roomID == "" {
		return "", "", false
	}

	return conn.roomID, conn.userID, true
}

func (r *connectionRegistry) Forget(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, exists := r.conns[connectionID]; exists {
		delete(r.conns, connectionID)
		conn.close()

		metric.DecrementWSActiveConnections()
	}
}

func (r *connectionRegistry) Send(connectionID string, payload []byte) bool {
	r.mu.RLock()
	conn, ok := r.conns[connectionID]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	select {
	case <-conn.done:
		return false
	default:
	}

	select {
	case conn.send <- payload:
		return true
	default:
		slog.Warn("outbound queue overflow, dropping connection", slog.String(constant.ConnectionID, connectionID))
		conn.close()

		return false
	}
}

func (r *connectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
