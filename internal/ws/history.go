package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/dhruvxsingh/Converza/internal/message"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// handleHistory serves the chat history for the authenticated user and
// the partner in the URL. Pagination counts from the newest message
// (skip/limit); the response is in chronological order.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := s.verifier.Verify(ctx, requestToken(r))
	if err != nil {
		http.Error(w, "could not validate credentials", http.StatusUnauthorized)
		return
	}

	partnerID, err := strconv.ParseInt(r.PathValue("partner_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid partner id", http.StatusBadRequest)
		return
	}

	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", defaultHistoryLimit)
	if skip < 0 || limit <= 0 {
		http.Error(w, "invalid pagination", http.StatusBadRequest)
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	msgs, err := s.store.History(ctx, userID, partnerID, skip, limit)
	if err != nil {
		log.Printf("ws: history query user=%d partner=%d: %v", userID, partnerID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*message.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(msgs)
}

// requestToken extracts the credential from the Authorization header
// (Bearer scheme) or, failing that, the token query parameter.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

// queryInt parses an integer query parameter, returning def when absent.
// A present but unparseable value returns -1 so callers can reject it.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
