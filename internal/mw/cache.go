package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// CacheHeader reports whether a response was served from the cache.
const CacheHeader = "X-Cache"

// skipCacheKey marks a request whose response must not be stored.
const skipCacheKey = "mw.skipCache"

// SkipCache keeps the current response out of the cache. Handlers call it
// when they answer 200 with a degraded body, such as an aggregate that could
// not be computed because the database was unavailable.
func SkipCache(c *gin.Context) {
	c.Set(skipCacheKey, true)
}

// aggregateResponse is a rendered aggregate kept for the cache TTL.
type aggregateResponse struct {
	status int
	header http.Header
	body   []byte
}

func (a aggregateResponse) replay(c *gin.Context) {
	for k, v := range a.header {
		c.Writer.Header()[k] = v
	}
	c.Writer.Header().Set(CacheHeader, "HIT")
	c.Writer.WriteHeader(a.status)
	c.Writer.Write(a.body)
}

// teeWriter copies everything the handler writes into body.
type teeWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w teeWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w teeWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache keeps GET responses of the aggregate endpoints for ttl, keyed by the
// request URI, so repeated dashboard refreshes do not re-query the sessions.
// Only 2xx responses that were not marked with SkipCache are stored.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if v, found := store.Get(key); found {
			v.(aggregateResponse).replay(c)
			c.Abort()
			return
		}

		c.Writer.Header().Set(CacheHeader, "MISS")
		tee := &teeWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = tee

		c.Next()

		if c.GetBool(skipCacheKey) {
			return
		}
		if status := tee.Status(); status >= 200 && status < 300 {
			store.Set(key, aggregateResponse{
				status: status,
				header: tee.Header().Clone(),
				body:   tee.body.Bytes(),
			}, ttl)
		}
	}
}
