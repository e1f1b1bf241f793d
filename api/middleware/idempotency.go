package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/experiences-backend/api/responses"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/experiences-backend/pkg/redis"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	replayHeader          = "Idempotent-Replay"
	defaultIdempotencyTTL = 24 * time.Hour
	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL    = 2 * time.Minute
	pendingMarker = "pending"
)

// idempotentRoutes maps "METHOD pattern" to how long a response is replayable.
var idempotentRoutes = map[string]time.Duration{
	http.MethodPost + " /api/v1/wallets/provision": defaultIdempotencyTTL,
}

var (
	errKeyInProgress = pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is in progress")
	errKeyReused     = pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
)

// storedResponse is the replay record kept under an idempotency key.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first non-5xx response for a repeated
// Idempotency-Key on the routes listed in idempotentRoutes. A key is held
// by a short pending marker while its first request runs.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				fail(pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := base64.StdEncoding.EncodeToString(sum[:])
			key := store.IdempotencyKey(SubjectFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			prior, err := lookup(ctx, store, key)
			switch {
			case err != nil:
				fail(err)
				return
			case prior != nil && prior.RequestHash != hash:
				fail(errKeyReused)
				return
			case prior != nil:
				prior.replay(w)
				return
			}

			reserved, err := store.SetNX(ctx, key, pendingMarker, pendingTTL)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				fail(errKeyInProgress)
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			settle(context.WithoutCancel(ctx), store, logg, key, ttl, storedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
				RequestHash: hash,
			})
		})
	}
}

// lookup returns the stored response for key, nil when the key is free, or
// errKeyInProgress while another request holds it.
func lookup(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	case raw == pendingMarker:
		return nil, errKeyInProgress
	}
	var rec storedResponse
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &rec, nil
}

// settle swaps the pending marker for the final record. Server errors only
// release the key so the client can retry.
func settle(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, key string, ttl time.Duration, rec storedResponse) {
	if err := store.Del(ctx, key); err != nil {
		logError(ctx, logg, "release idempotency reservation", err)
		return
	}
	if rec.Status >= http.StatusInternalServerError {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		logError(ctx, logg, "marshal idempotency record", err)
		return
	}
	if _, err := store.SetNX(ctx, key, string(payload), ttl); err != nil {
		logError(ctx, logg, "persist idempotency record", err)
	}
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	ttl, ok := idempotentRoutes[method+" "+pattern]
	return ttl, ok
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
