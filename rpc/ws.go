package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"fundchain/observability"
	"fundchain/storage/journal"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsSubscribeBuf  = 128
	wsBacklogLimit  = 1000
	errNoJournalMsg = "event journal disabled"
)

type eventQuery struct {
	after    int64
	limit    int
	campaign string
}

func parseEventQuery(w http.ResponseWriter, r *http.Request) (eventQuery, bool) {
	q := r.URL.Query()
	var out eventQuery
	if raw := strings.TrimSpace(q.Get("after")); raw != "" {
		after, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || after < 0 {
			writeError(w, http.StatusBadRequest, "invalid_cursor", "after must be a non-negative integer")
			return out, false
		}
		out.after = after
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return out, false
		}
		out.limit = limit
	}
	out.campaign = strings.TrimSpace(q.Get("campaign"))
	return out, true
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", errNoJournalMsg)
		return
	}
	query, ok := parseEventQuery(w, r)
	if !ok {
		return
	}
	entries, err := s.journal.List(r.Context(), query.after, query.limit, query.campaign)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleEventsWS replays journal entries after the cursor and then streams
// new ones as they commit.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", errNoJournalMsg)
		return
	}
	query, ok := parseEventQuery(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, query); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			s.logger.Warn("event stream aborted", slog.String("error", err.Error()))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, query eventQuery) error {
	// Subscribe before reading the backlog so nothing committed in between is
	// lost; duplicates are dropped by sequence.
	updates, cancel, err := s.journal.Subscribe(wsSubscribeBuf)
	if err != nil {
		return err
	}
	defer cancel()

	cursor := query.after
	for {
		backlog, err := s.journal.List(ctx, cursor, wsBacklogLimit, query.campaign)
		if err != nil {
			return err
		}
		for _, entry := range backlog {
			if err := writeEntry(ctx, conn, entry); err != nil {
				return err
			}
			cursor = entry.Sequence
		}
		if len(backlog) < wsBacklogLimit {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-updates:
			if !ok {
				return nil
			}
			if entry.Sequence <= cursor {
				continue
			}
			if query.campaign != "" && entry.Campaign != query.campaign {
				continue
			}
			if err := writeEntry(ctx, conn, entry); err != nil {
				return err
			}
			cursor = entry.Sequence
		}
	}
}

func writeEntry(ctx context.Context, conn *websocket.Conn, entry journal.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return err
	}
	observability.Notifications().RecordDelivered("websocket")
	return nil
}
