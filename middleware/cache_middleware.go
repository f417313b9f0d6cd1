package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"facc/cache"
)

// bodyRecorder keeps a copy of everything a handler writes.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// CacheMiddleware serves successful GET responses from c until they expire
// or the cache is cleared.
func CacheMiddleware(c *cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}

		key := ctx.Request.URL.RequestURI()
		if e, ok := c.Get(key); ok {
			ctx.Header("X-Cache", "HIT")
			ctx.Data(e.Status, e.ContentType, e.Body)
			ctx.Abort()
			return
		}

		// A write that clears the cache while the handler runs makes this
		// response stale.
		gen := c.Generation()
		rec := &bodyRecorder{ResponseWriter: ctx.Writer}
		ctx.Writer = rec
		ctx.Header("X-Cache", "MISS")
		ctx.Next()

		if rec.Status() == http.StatusOK {
			c.SetIfCurrent(gen, key, cache.Entry{
				Status:      rec.Status(),
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
		}
	}
}
