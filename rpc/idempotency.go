package rpc

import (
	"bytes"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"fundchain/crypto"
	"fundchain/observability/logging"
	"fundchain/storage/idempotency"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotency-Replayed"
	maxIdempotencyKey = 128
)

// keyLock serialises requests sharing an idempotency key so a retry waits for
// the original instead of executing twice.
type keyLock struct {
	mu   sync.Mutex
	busy map[string]chan struct{}
}

func (l *keyLock) acquire(key string) {
	for {
		l.mu.Lock()
		if l.busy == nil {
			l.busy = make(map[string]chan struct{})
		}
		wait, held := l.busy[key]
		if !held {
			l.busy[key] = make(chan struct{})
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
		<-wait
	}
}

func (l *keyLock) release(key string) {
	l.mu.Lock()
	if ch, ok := l.busy[key]; ok {
		close(ch)
		delete(l.busy, key)
	}
	l.mu.Unlock()
}

// idempotent replays the stored response when an authenticated caller repeats
// an Idempotency-Key with the same request, and rejects reuse of a key for a
// different request.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if s.idempotency == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKey {
			writeError(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key too long")
			return
		}
		caller, ok := callerOrReject(w, r)
		if !ok {
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		digest := requestDigest(r.Method, r.URL.Path, body)
		scoped := crypto.FormatFundAddress(caller) + ":" + key

		s.inflight.acquire(scoped)
		defer s.inflight.release(scoped)

		stored, found, err := s.idempotency.Lookup(r.Context(), scoped)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if found {
			if stored.BodyDigest != digest {
				writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", "idempotency key was used for a different request")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(replayedHeader, "true")
			w.WriteHeader(stored.Status)
			_, _ = io.WriteString(w, stored.Response)
			return
		}

		recorder := &bodyRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if recorder.status >= http.StatusInternalServerError {
			return
		}
		if err := s.idempotency.Save(r.Context(), &idempotency.Record{
			Key:        scoped,
			RequestID:  uuid.NewString(),
			Method:     r.Method,
			Path:       r.URL.Path,
			BodyDigest: digest,
			Status:     recorder.status,
			Response:   recorder.buf.String(),
		}); err != nil {
			s.logger.Warn("idempotency record not saved",
				logging.MaskField("idempotency_key", key),
				slog.String("route", r.URL.Path),
				slog.String("error", err.Error()))
		}
	})
}

func requestDigest(method, path string, body []byte) string {
	h := blake3.New(32, nil)
	_, _ = io.WriteString(h, method+" "+path+"\n")
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (b *bodyRecorder) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	b.buf.Write(p)
	return b.ResponseWriter.Write(p)
}
