// Package idempotency replays the stored response of a POST that carries an
// Idempotency-Key the caller already used.
package idempotency

import (
	"bytes"
	"crypto/sha256"
	"io"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"

	dErrors "nftregistry/pkg/domain-errors"
	"nftregistry/pkg/platform/httputil"
	"nftregistry/pkg/requestcontext"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotency-Replayed"

	DefaultTTL             = 24 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute

	maxKeyLen = 255
)

type entry struct {
	fingerprint [sha256.Size]byte
	done        bool
	status      int
	contentType string
	body        []byte
}

// Cache holds responses per caller and key.
type Cache struct {
	cache  *gocache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func New(ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		cache:  gocache.New(ttl, DefaultCleanupInterval),
		ttl:    ttl,
		logger: logger,
	}
}

// Middleware only acts on POST requests carrying the header. Responses with
// a 5xx status are not kept so the caller can retry.
func (c *Cache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderKey)
		if r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLen {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "idempotency key too long"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		cacheKey := string(requestcontext.Account(ctx)) + "\x00" + r.URL.Path + "\x00" + key
		fp := fingerprint(r.Method, r.URL.Path, body)

		pending := &entry{fingerprint: fp}
		if err := c.cache.Add(cacheKey, pending, c.ttl); err != nil {
			c.replay(w, r, cacheKey, fp)
			return
		}

		// A panicking handler must not leave the in-flight marker behind.
		completed := false
		defer func() {
			if !completed {
				c.cache.Delete(cacheKey)
			}
		}()

		rec := &bytes.Buffer{}
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(rec)
		next.ServeHTTP(ww, r)
		completed = true

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status >= http.StatusInternalServerError {
			c.cache.Delete(cacheKey)
			return
		}
		c.cache.Set(cacheKey, &entry{
			fingerprint: fp,
			done:        true,
			status:      status,
			contentType: ww.Header().Get("Content-Type"),
			body:        rec.Bytes(),
		}, c.ttl)
	})
}

func (c *Cache) replay(w http.ResponseWriter, r *http.Request, cacheKey string, fp [sha256.Size]byte) {
	value, found := c.cache.Get(cacheKey)
	if !found {
		// Expired between Add and Get; treat as in flight rather than racing.
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "request with this idempotency key is in progress"))
		return
	}
	stored, ok := value.(*entry)
	if !ok {
		c.logger.Error("wrong type in idempotency cache", "key", cacheKey)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "idempotency cache corrupted"))
		return
	}
	if stored.fingerprint != fp {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "idempotency key reused with a different request"))
		return
	}
	if !stored.done {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "request with this idempotency key is in progress"))
		return
	}
	c.logger.DebugContext(r.Context(), "idempotent replay",
		"request_id", requestcontext.RequestID(r.Context()),
		"path", r.URL.Path,
	)
	if stored.contentType != "" {
		w.Header().Set("Content-Type", stored.contentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(stored.status)
	_, _ = w.Write(stored.body)
}

func fingerprint(method, path string, body []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Flush drops every stored response.
func (c *Cache) Flush() {
	c.cache.Flush()
}
