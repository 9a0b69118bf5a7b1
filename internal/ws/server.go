// Package ws implements the real-time messaging server: session
// bootstrap (credential verification before any registry mutation), one
// receive loop per connection, frame dispatch through the room registry,
// the history and health HTTP endpoints, and graceful shutdown.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/dhruvxsingh/Converza/internal/auth"
	"github.com/dhruvxsingh/Converza/internal/message"
	"github.com/dhruvxsingh/Converza/internal/messaging"
	"github.com/dhruvxsingh/Converza/internal/metrics"
	"github.com/dhruvxsingh/Converza/internal/presence"
	"github.com/dhruvxsingh/Converza/internal/ratelimit"
	"github.com/dhruvxsingh/Converza/internal/room"
)

// ServerConfig holds tunable parameters for the messaging server.
type ServerConfig struct {
	ListenAddr        string        // address to listen on, e.g. ":8080"
	MaxConnections    int           // hard cap on total connections
	WriteTimeout      time.Duration // per-frame write deadline
	PersistTimeout    time.Duration // store write budget per chat frame
	HeartbeatInterval time.Duration // how often to ping clients
	HeartbeatTimeout  time.Duration // extra idle grace after a ping
}

// DefaultServerConfig returns a ServerConfig with sensible production
// defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:        ":8080",
		MaxConnections:    100000,
		WriteTimeout:      10 * time.Second,
		PersistTimeout:    5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
	}
}

// Deps are the collaborators the server is wired with. Presence, Limiter
// and Publisher are optional; a nil value disables the feature.
type Deps struct {
	Registry  *room.Registry
	Store     message.Store
	Verifier  auth.Verifier
	Presence  *presence.Store
	Limiter   *ratelimit.Limiter
	Publisher *messaging.Publisher
}

// Server upgrades HTTP connections to WebSocket, runs one receive
// goroutine per connection, and routes frames through the room registry.
type Server struct {
	config    ServerConfig
	registry  *room.Registry
	store     message.Store
	verifier  auth.Verifier
	presence  *presence.Store
	limiter   *ratelimit.Limiter
	publisher *messaging.Publisher

	conns      *ConnectionManager
	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time
}

// NewServer creates a Server with the given configuration and
// collaborators.
func NewServer(config ServerConfig, deps Deps) *Server {
	return &Server{
		config:    config,
		registry:  deps.Registry,
		store:     deps.Store,
		verifier:  deps.Verifier,
		presence:  deps.Presence,
		limiter:   deps.Limiter,
		publisher: deps.Publisher,
		conns:     NewConnectionManager(),
		done:      make(chan struct{}),
	}
}

// Handler returns the HTTP handler with all routes mounted. It is split
// from Start so tests can serve it directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/ws/{partner_id}", s.handleUpgrade)
	mux.HandleFunc("GET /api/chat/messages/{partner_id}", s.handleHistory)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Start begins accepting connections and blocks on the HTTP listener.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.Handler(),
	}

	startHeartbeat(s)

	log.Printf("ws: server listening on %s (max_conns=%d)",
		s.config.ListenAddr, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade bootstraps a session: it upgrades the HTTP request,
// verifies the credential supplied as the token query parameter, and
// only then joins the connection to its room and starts the receive
// loop. A failed verification closes the socket with a policy-violation
// status before any frame is exchanged; no registry state is created.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	partnerID, err := strconv.ParseInt(r.PathValue("partner_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid partner id", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		host, _, splitErr := net.SplitHostPort(r.RemoteAddr)
		if splitErr != nil {
			host = r.RemoteAddr
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		allowed, _ := s.limiter.Allow(ctx, host, ratelimit.RuleConnect)
		cancel()
		if !allowed {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	token := r.URL.Query().Get("token")

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	userID, err := s.verifier.Verify(ctx, token)
	cancel()
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthorized) {
			log.Printf("ws: verify error: %v", err)
		}
		_ = ws.WriteFrame(conn, ws.NewCloseFrame(ws.NewCloseFrameBody(
			ws.StatusPolicyViolation, "unauthorized")))
		conn.Close()
		return
	}

	key := room.Derive(userID, partnerID)
	c := newConnection(uuid.New().String(), userID, partnerID, key, conn, s.config.WriteTimeout)

	s.conns.Add(c)
	s.registry.Join(key, userID, c)
	metrics.ConnectionsActive.Inc()

	if s.presence != nil {
		pctx, pcancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := s.presence.Connect(pctx, userID); err != nil {
			log.Printf("ws: presence connect failed user=%d: %v", userID, err)
		}
		pcancel()
	}

	log.Printf("ws: connected conn=%s user=%d room=%s (total=%d)",
		c.ID, userID, key, s.conns.Count())

	go s.readLoop(c)
}

// readLoop consumes frames from one connection until the transport
// closes. Control frames are answered through controlHandler so the
// replies share the connection's write mutex with broadcasts; every
// text frame goes through the dispatcher. The deferred cleanup is the
// single exit path from the Open state, so Leave runs exactly once.
func (s *Server) readLoop(c *Connection) {
	defer s.removeConnection(c)

	controlHandler := s.controlHandler(c)
	rd := wsutil.Reader{
		Source:         c.Conn,
		State:          ws.StateServerSide,
		OnIntermediate: controlHandler,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			if !isExpectedClose(err) {
				log.Printf("ws: read error conn=%s user=%d: %v", c.ID, c.UserID, err)
			}
			return
		}

		if hdr.OpCode.IsControl() {
			if err := controlHandler(hdr, &rd); err != nil {
				if !isExpectedClose(err) {
					log.Printf("ws: control frame conn=%s user=%d: %v", c.ID, c.UserID, err)
				}
				return
			}
			continue
		}

		if hdr.OpCode != ws.OpText {
			if err := rd.Discard(); err != nil {
				return
			}
			continue
		}

		data, err := io.ReadAll(&rd)
		if err != nil {
			if !isExpectedClose(err) {
				log.Printf("ws: read error conn=%s user=%d: %v", c.ID, c.UserID, err)
			}
			return
		}
		if len(data) == 0 {
			continue
		}
		c.Touch()
		s.handleFrame(c, data)
	}
}

// controlHandler answers client control frames from the read goroutine.
// Every reply goes through the connection's write methods, which hold
// the write mutex for the whole frame, so a pong can never interleave
// with a broadcast that is between its header and payload writes.
func (s *Server) controlHandler(c *Connection) wsutil.FrameHandlerFunc {
	return func(hdr ws.Header, src io.Reader) error {
		payload, err := io.ReadAll(src)
		if err != nil {
			return err
		}

		switch hdr.OpCode {
		case ws.OpPing:
			c.Touch()
			return c.WritePong(payload)
		case ws.OpPong:
			c.Touch()
			return nil
		case ws.OpClose:
			code, reason := ws.ParseCloseFrameData(payload)
			if code == 0 {
				code = ws.StatusNoStatusRcvd
				_ = c.WriteClose(ws.StatusNormalClosure, "")
			} else {
				_ = c.WriteClose(code, "")
			}
			return wsutil.ClosedError{Code: code, Reason: reason}
		}
		return nil
	}
}

// isExpectedClose reports whether a read error is ordinary connection
// teardown rather than a protocol or transport failure.
func isExpectedClose(err error) bool {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		switch closed.Code {
		case ws.StatusNormalClosure, ws.StatusGoingAway, ws.StatusNoStatusRcvd:
			return true
		}
		return false
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// removeConnection tears down a connection: it leaves the room (removing
// the room entry if now empty), updates presence, and closes the socket.
// The manager removal doubles as the guard against double cleanup when a
// read error and a heartbeat eviction race.
func (s *Server) removeConnection(c *Connection) {
	if !s.conns.Remove(c.ID) {
		return
	}

	s.registry.Leave(c.Room, c.UserID, c)
	metrics.ConnectionsActive.Dec()

	if s.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := s.presence.Disconnect(ctx, c.UserID); err != nil {
			log.Printf("ws: presence disconnect failed user=%d: %v", c.UserID, err)
		}
		cancel()
	}

	_ = c.Close()

	log.Printf("ws: connection closed conn=%s user=%d room=%s (total=%d)",
		c.ID, c.UserID, c.Room, s.conns.Count())
}

// ConnectionCount returns the number of live connections on this server.
func (s *Server) ConnectionCount() int {
	return s.conns.Count()
}

// handleHealth responds with the server's health status as JSON,
// including connection and room counts and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Rooms       int    `json:"rooms"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Rooms:       s.registry.Rooms(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// Shutdown performs a graceful shutdown: it stops the HTTP listener,
// signals the heartbeat to exit, and closes all live connections with a
// going-away status.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")

	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("ws: http shutdown error: %v", err)
		}
	}

	for _, c := range s.conns.All() {
		_ = c.WriteClose(ws.StatusGoingAway, "server shutting down")
		s.removeConnection(c)
	}

	log.Printf("ws: server stopped, all connections closed")
	return nil
}
