package journal

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"fundchain/core/events"
	"fundchain/core/types"
	"fundchain/observability"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

var errClosed = errors.New("journal: closed")

// Entry is a committed notification as persisted in the journal.
type Entry struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Campaign   string            `json:"campaign,omitempty"`
	Attributes map[string]string `json:"attributes"`
	Digest     string            `json:"digest"`
	DeliveryID string            `json:"deliveryId"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Journal is a durable, ordered record of committed notifications backed by
// SQLite. It implements events.Emitter and fans new entries out to live
// subscribers.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *observability.CrowdfundMetrics
	now     func() time.Time

	writeMu sync.Mutex

	subsMu  sync.RWMutex
	subs    map[int]chan Entry
	nextSub int
	closed  bool
}

// Open creates or opens the journal database at path. Use ":memory:" for an
// ephemeral journal.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal: path required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers at the driver.
	db.SetMaxOpenConns(1)
	j := &Journal{
		db:      db,
		logger:  logger,
		metrics: observability.Crowdfund(),
		now:     time.Now,
		subs:    make(map[int]chan Entry),
	}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            campaign TEXT,
            payload TEXT NOT NULL,
            digest TEXT NOT NULL,
            delivery_id TEXT NOT NULL UNIQUE,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_campaign ON events(campaign, sequence);`,
	}
	for _, stmt := range schema {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("journal: init schema: %w", err)
		}
	}
	return nil
}

// Emit implements events.Emitter. Events without a typed payload are skipped;
// persistence failures are logged because emission happens after commit and
// cannot be rolled back.
func (j *Journal) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	if _, err := j.Append(context.Background(), payload.Event()); err != nil {
		j.logger.Error("journal append failed",
			slog.String("event", evt.EventType()),
			slog.String("error", err.Error()))
	}
}

// Append persists evt and publishes the stored entry to subscribers.
func (j *Journal) Append(ctx context.Context, evt *types.Event) (Entry, error) {
	if evt == nil {
		return Entry{}, fmt.Errorf("journal: nil event")
	}
	attrs := evt.Clone().Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	payloadJSON, err := json.Marshal(attrs)
	if err != nil {
		return Entry{}, err
	}
	digest := blake3.Sum256(payloadJSON)
	entry := Entry{
		Type:       evt.Type,
		Campaign:   attrs["campaign"],
		Attributes: attrs,
		Digest:     hex.EncodeToString(digest[:]),
		DeliveryID: uuid.NewString(),
		CreatedAt:  j.now().UTC(),
	}

	j.writeMu.Lock()
	defer j.writeMu.Unlock()
	const stmt = `INSERT INTO events(type, campaign, payload, digest, delivery_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := j.db.ExecContext(ctx, stmt, entry.Type, entry.Campaign, string(payloadJSON), entry.Digest, entry.DeliveryID, entry.CreatedAt)
	if err == nil {
		entry.Sequence, err = res.LastInsertId()
	}
	j.metrics.RecordJournalWrite(err)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: insert event: %w", err)
	}
	j.publish(entry)
	return entry, nil
}

// List returns up to limit entries with a sequence greater than afterSeq,
// optionally restricted to one campaign.
func (j *Journal) List(ctx context.Context, afterSeq int64, limit int, campaign string) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := `SELECT sequence, type, campaign, payload, digest, delivery_id, created_at FROM events WHERE sequence > ?`
	args := []any{afterSeq}
	if campaign = strings.TrimSpace(campaign); campaign != "" {
		query += ` AND campaign = ?`
		args = append(args, campaign)
	}
	query += ` ORDER BY sequence ASC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			entry    Entry
			campaign sql.NullString
			payload  string
		)
		if err := rows.Scan(&entry.Sequence, &entry.Type, &campaign, &payload, &entry.Digest, &entry.DeliveryID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Campaign = campaign.String
		if err := json.Unmarshal([]byte(payload), &entry.Attributes); err != nil {
			return nil, fmt.Errorf("journal: decode payload %d: %w", entry.Sequence, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify recomputes the digest of an entry's attributes.
func Verify(entry Entry) bool {
	payloadJSON, err := json.Marshal(entry.Attributes)
	if err != nil {
		return false
	}
	digest := blake3.Sum256(payloadJSON)
	return hex.EncodeToString(digest[:]) == entry.Digest
}

// Subscribe registers a live listener. Entries are dropped for a subscriber
// whose buffer is full. The returned function unsubscribes and closes the
// channel.
func (j *Journal) Subscribe(buffer int) (<-chan Entry, func(), error) {
	if buffer <= 0 {
		buffer = 64
	}
	j.subsMu.Lock()
	defer j.subsMu.Unlock()
	if j.closed {
		return nil, nil, errClosed
	}
	id := j.nextSub
	j.nextSub++
	ch := make(chan Entry, buffer)
	j.subs[id] = ch
	observability.Notifications().SubscriberAdded()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			j.subsMu.Lock()
			defer j.subsMu.Unlock()
			if existing, ok := j.subs[id]; ok {
				delete(j.subs, id)
				close(existing)
				observability.Notifications().SubscriberRemoved()
			}
		})
	}
	return ch, cancel, nil
}

func (j *Journal) publish(entry Entry) {
	j.subsMu.RLock()
	defer j.subsMu.RUnlock()
	for id, ch := range j.subs {
		select {
		case ch <- entry:
		default:
			observability.Notifications().RecordDropped()
			j.logger.Warn("journal subscriber lagging; entry dropped",
				slog.Int("subscriber", id),
				slog.Int64("sequence", entry.Sequence))
		}
	}
}

// Close stops every subscription and closes the database.
func (j *Journal) Close() error {
	j.subsMu.Lock()
	if !j.closed {
		j.closed = true
		for id, ch := range j.subs {
			delete(j.subs, id)
			close(ch)
			observability.Notifications().SubscriberRemoved()
		}
	}
	j.subsMu.Unlock()
	return j.db.Close()
}
