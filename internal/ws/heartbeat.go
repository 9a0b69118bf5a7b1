package ws

import (
	"context"
	"log"
	"time"
)

// startHeartbeat begins a background goroutine that periodically sends
// WebSocket ping frames to all connections, evicts those that have gone
// stale, and refreshes presence TTLs for the rest. It returns
// immediately; the goroutine exits when the server's done channel is
// closed.
func startHeartbeat(s *Server) {
	go func() {
		ticker := time.NewTicker(s.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				checkConnections(s)
			}
		}
	}()
}

// checkConnections iterates over all live connections. Connections with
// no inbound activity within Interval + Timeout are considered dead and
// removed. All others receive a protocol-level ping frame, which the
// client answers automatically with a pong.
func checkConnections(s *Server) {
	deadline := s.config.HeartbeatInterval + s.config.HeartbeatTimeout

	for _, c := range s.conns.All() {
		idle := c.IdleFor()
		if idle > deadline {
			log.Printf("ws: heartbeat timeout conn=%s user=%d idle=%s",
				c.ID, c.UserID, idle.Round(time.Second))
			s.removeConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed conn=%s: %v", c.ID, err)
			s.removeConnection(c)
			continue
		}

		if s.presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.presence.RefreshTTL(ctx, c.UserID); err != nil {
				log.Printf("ws: presence refresh failed user=%d: %v", c.UserID, err)
			}
			cancel()
		}
	}
}
