package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/cassiomorais/storefront/internal/idempotency"
	"github.com/rs/zerolog/log"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	IdempotencyReplayed    = "X-Idempotency-Replayed"
	maxIdempotencyBodySize = 1 << 20
)

// replayedHeaders are copied into the cache and restored on replay.
var replayedHeaders = []string{"Content-Type", "Location", "X-Event-Published"}

// Idempotency replays the first recorded response for a repeated
// Idempotency-Key on the same method and path. Server errors are not recorded
// so the client can retry them.
func Idempotency(store idempotency.Store, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			scoped := r.Method + " " + r.URL.Path + " " + key

			entry, err := store.Get(r.Context(), scoped)
			if err != nil {
				log.Warn().Err(err).Str("idempotency_key", key).Msg("Idempotency lookup failed")
			}
			if entry != nil {
				for name, value := range entry.Headers {
					w.Header().Set(name, value)
				}
				w.Header().Set(IdempotencyReplayed, "true")
				w.WriteHeader(entry.Status)
				w.Write([]byte(entry.Body))
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= 500 || rec.bodyTruncated {
				return
			}
			headers := make(map[string]string)
			for _, name := range replayedHeaders {
				if v := w.Header().Get(name); v != "" {
					headers[name] = v
				}
			}
			if err := store.Set(r.Context(), scoped, idempotency.Entry{
				Status:  rec.statusCode,
				Body:    rec.body.String(),
				Headers: headers,
			}, ttl); err != nil {
				log.Warn().Err(err).Str("idempotency_key", key).Msg("Idempotency record failed")
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
