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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	HeaderIdempotencyKey      = "Idempotency-Key"
	HeaderIdempotentReplayed  = "Idempotent-Replayed"
	CodeIdempotencyMismatch   = "IDEMPOTENCY_KEY_REUSED"
	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"

	idempotencyPrefix  = "idempotency:"
	maxIdempotencyBody = 1 << 20
)

// idempotencyRecord is the cached outcome of the first request for a key.
// Completed is false while that request is still running.
type idempotencyRecord struct {
	RequestHash string `json:"request_hash"`
	Completed   bool   `json:"completed"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func computeRequestHash(r *http.Request, body []byte, userID string) string {
	h := sha256.New()
	h.Write([]byte(r.Method + ":" + r.URL.Path + ":" + userID + ":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Idempotency makes mutating endpoints safe to retry when the client sends
// an Idempotency-Key header. Keys are scoped to the authenticated user.
//
//   - first request: a placeholder is stored, the handler runs and its
//     response replaces the placeholder
//   - same key, same request, finished: the cached response is replayed
//   - same key, same request, still running: 409 IDEMPOTENCY_IN_PROGRESS
//   - same key, different request: 409 IDEMPOTENCY_KEY_REUSED
//
// Server errors, conflicts and rate-limit responses depend on state that
// can change between attempts, so they release the key instead of being
// cached. A handler panic also releases it. When Redis is unavailable
// requests pass through.
func Idempotency(rdb *redis.Client, ttl time.Duration, log logrus.FieldLogger) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > 255 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Idempotency-Key must be at most 255 characters",
			})
			return
		}

		var userID string
		if id, ok := UserIDFromContext(c); ok {
			userID = id.String()
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotencyBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "failed to read request body",
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := computeRequestHash(c.Request, body, userID)
		redisKey := idempotencyPrefix + userID + ":" + key
		ctx := c.Request.Context()
		entry := log.WithField("idempotency_key", key)

		placeholder, _ := json.Marshal(idempotencyRecord{RequestHash: hash})
		created, err := rdb.SetNX(ctx, redisKey, placeholder, ttl).Result()
		if err != nil {
			entry.WithError(err).Warn("idempotency store unavailable, handling request without it")
			c.Next()
			return
		}

		if created {
			cw := &captureWriter{ResponseWriter: c.Writer}
			c.Writer = cw
			completed := false
			defer func() {
				if !completed {
					releaseKey(context.WithoutCancel(ctx), rdb, redisKey, entry)
				}
			}()
			c.Next()
			completed = true
			storeOutcome(context.WithoutCancel(ctx), rdb, redisKey, hash, cw, ttl, entry)
			return
		}

		raw, err := rdb.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			// expired between SetNX and Get
			c.Next()
			return
		}
		if err != nil {
			entry.WithError(err).Warn("idempotency lookup failed, handling request without it")
			c.Next()
			return
		}

		var rec idempotencyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			entry.WithError(err).Error("corrupt idempotency record")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "idempotency lookup error",
			})
			return
		}

		switch {
		case rec.RequestHash != hash:
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "Idempotency-Key was already used for a different request",
				"code":  CodeIdempotencyMismatch,
			})
		case !rec.Completed:
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "A request with this Idempotency-Key is still being processed",
				"code":  CodeIdempotencyInProgress,
			})
		default:
			entry.Debug("replaying cached response")
			c.Header(HeaderIdempotentReplayed, "true")
			contentType := rec.ContentType
			if contentType == "" {
				contentType = "application/json; charset=utf-8"
			}
			c.Data(rec.Status, contentType, rec.Body)
			c.Abort()
		}
	}
}

func storeOutcome(ctx context.Context, rdb *redis.Client, redisKey, hash string, cw *captureWriter, ttl time.Duration, log logrus.FieldLogger) {
	status := cw.Status()
	if !cacheable(status) {
		releaseKey(ctx, rdb, redisKey, log)
		return
	}

	rec, err := json.Marshal(idempotencyRecord{
		RequestHash: hash,
		Completed:   true,
		Status:      status,
		ContentType: cw.Header().Get("Content-Type"),
		Body:        cw.buf.Bytes(),
	})
	if err != nil {
		log.WithError(err).Error("failed to encode idempotency record")
		return
	}
	if err := rdb.Set(ctx, redisKey, rec, ttl).Err(); err != nil {
		log.WithError(err).Warn("failed to cache idempotent response")
	}
}

// cacheable reports whether a response is final for its request
func cacheable(status int) bool {
	switch {
	case status >= http.StatusInternalServerError:
		return false
	case status == http.StatusConflict, status == http.StatusTooManyRequests:
		return false
	}
	return true
}

func releaseKey(ctx context.Context, rdb *redis.Client, redisKey string, log logrus.FieldLogger) {
	if err := rdb.Del(ctx, redisKey).Err(); err != nil {
		log.WithError(err).Warn("failed to release idempotency key")
	}
}
