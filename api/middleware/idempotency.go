package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grundyhq/grundy-backend/api/responses"
	"github.com/grundyhq/grundy-backend/api/validators"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	pkgredis "github.com/grundyhq/grundy-backend/pkg/redis"
)

const (
	idempotencyHeader       = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotent-Replayed"
	criticalIdempotencyTTL  = 7 * 24 * time.Hour
	idempotencyReservation  = 2 * time.Minute
	maxIdempotencyKeyLength = 128
	recordStatePending      = "pending"
	recordStateComplete     = "complete"
)

type idempotentRoute struct {
	method   string
	match    func(pattern string) bool
	critical bool
}

// Routes are matched on the chi pattern. Critical routes move money and keep
// their records for a week.
var idempotentRoutes = []idempotentRoute{
	{method: http.MethodPost, match: exact("/api/v1/orders"), critical: true},
	{method: http.MethodPost, match: orderAction("/cancel"), critical: true},
	{method: http.MethodPost, match: orderAction("/retry-channel"), critical: true},
	{method: http.MethodPatch, match: orderAction("/delivery")},
	{method: http.MethodPost, match: prefix("/api/v1/admin/refunds/")},
}

type idempotencyRecord struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// The key is reserved before the handler runs so a concurrent duplicate is
// refused instead of executed twice. The reservation is then overwritten in
// place with the response, or released when the handler answered 5xx.
func Idempotency(store pkgredis.IdempotencyStore, defaultTTL time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ttl, ok := routeTTL(r.Method, routePattern(r), defaultTTL)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxIdempotencyKeyLength {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key too long"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
						WithDetails(map[string]any{"limit_bytes": tooLarge.Limit}))
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			requestHash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			pending, err := json.Marshal(idempotencyRecord{State: recordStatePending, RequestHash: requestHash})
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation"))
				return
			}
			reserved, err := store.SetNX(ctx, key, string(pending), idempotencyReservation)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayExisting(ctx, store, key, requestHash, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// The key stays held until the outcome is decided, so a duplicate
			// never finds it free while this request is finishing.
			storeCtx := context.WithoutCancel(ctx)
			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				if _, err := store.CompareAndDelete(storeCtx, key, string(pending)); err != nil {
					logError(ctx, logg, "release idempotency reservation", err)
				}
				return
			}
			record := idempotencyRecord{
				State:       recordStateComplete,
				RequestHash: requestHash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			stored, err := storeRecord(storeCtx, store, key, string(pending), record, ttl)
			switch {
			case err != nil:
				logError(ctx, logg, "persist idempotency record", err)
			case !stored && logg != nil:
				logg.Warn(logg.WithField(ctx, "idempotency_key", clientKey), "idempotency reservation lost before the response was stored")
			}
		})
	}
}

// storeRecord replaces this request's reservation with the completed record.
// A reservation that already expired is recreated when the key is still
// free; a key taken by another request is left alone.
func storeRecord(ctx context.Context, store pkgredis.IdempotencyStore, key, pending string, record idempotencyRecord, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	swapped, err := store.CompareAndSwap(ctx, key, pending, string(payload), ttl)
	if err != nil || swapped {
		return swapped, err
	}
	return store.SetNX(ctx, key, string(payload), ttl)
}

func replayExisting(ctx context.Context, store pkgredis.IdempotencyStore, key, requestHash string, w http.ResponseWriter, logg *logger.Logger) {
	stored, err := store.Get(ctx, key)
	if pkgredis.IsMiss(err) {
		// Released between our SetNX and Get: the first attempt failed.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "previous request with this idempotency key failed; retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != requestHash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != recordStateComplete:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(idempotencyReplayHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

// idempotencyScope keeps keys of different callers and resources apart.
func idempotencyScope(r *http.Request) string {
	subject := SubjectFromContext(r.Context())
	if subject == "" {
		subject = "guest"
	}
	return strings.Join([]string{subject, r.Method, r.URL.Path}, "|")
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string, defaultTTL time.Duration) (time.Duration, bool) {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	for _, route := range idempotentRoutes {
		if route.method != method || !route.match(pattern) {
			continue
		}
		if route.critical {
			return max(criticalIdempotencyTTL, defaultTTL), true
		}
		return defaultTTL, true
	}
	return 0, false
}

func exact(path string) func(string) bool {
	return func(pattern string) bool { return pattern == path }
}

func prefix(p string) func(string) bool {
	return func(pattern string) bool { return strings.HasPrefix(pattern, p) }
}

func orderAction(suffix string) func(string) bool {
	return func(pattern string) bool {
		return strings.HasPrefix(pattern, "/api/v1/orders/") && strings.HasSuffix(pattern, suffix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
