package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dhruvxsingh/Converza/internal/room"
)

// Connection represents a single WebSocket client bound to a room, with
// a write mutex serializing outbound frames.
type Connection struct {
	ID        string // connection ID (UUID), unique per socket
	UserID    int64  // authenticated owner
	PartnerID int64  // the other room participant
	Room      room.Key
	Conn      net.Conn // underlying TCP connection
	CreatedAt time.Time

	writeTimeout time.Duration
	lastActive   atomic.Int64 // unix nanos of the last inbound frame
	writeMu      sync.Mutex   // serializes writes to this connection
}

func newConnection(id string, userID, partnerID int64, key room.Key, conn net.Conn, writeTimeout time.Duration) *Connection {
	c := &Connection{
		ID:           id,
		UserID:       userID,
		PartnerID:    partnerID,
		Room:         key,
		Conn:         conn,
		CreatedAt:    time.Now(),
		writeTimeout: writeTimeout,
	}
	c.Touch()
	return c
}

// WriteMessage sends a WebSocket text frame to this connection. The
// write mutex ensures that concurrent goroutines do not interleave frame
// bytes; the write deadline keeps a dead peer from blocking a broadcast.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9).
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// WritePong answers a client ping, echoing its payload.
func (c *Connection) WritePong(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPongFrame(payload))
}

// WriteClose sends a close frame with the given status code and reason.
func (c *Connection) WriteClose(code ws.StatusCode, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason)))
}

// Touch records inbound activity on the connection.
func (c *Connection) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// IdleFor reports how long ago the last inbound activity was seen.
func (c *Connection) IdleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActive.Load()))
}

// Close closes the underlying network connection, which also terminates
// the connection's receive loop.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry of all live connections on
// this server instance, keyed by connection ID. The room registry maps
// rooms to connections; this manager exists for whole-server concerns:
// the connection cap, the heartbeat sweep, and shutdown.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{byID: make(map[string]*Connection)}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by ID. Returns true if the connection was
// found and removed, false if it was already gone; callers use this as
// the exactly-once guard for disconnect cleanup.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	_, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
	}
	cm.mu.Unlock()
	return ok
}

// Count returns the current number of live connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice
// is safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
