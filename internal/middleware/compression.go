// Package middleware provides HTTP middleware for the admission core.
//
// This file compresses JSON responses with gzip when the client asks for
// it. Writers are pooled; each level gets its own pool so a writer is
// always Reset to the level it was built with.
package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// Compression levels, re-exported so callers don't import compress/gzip.
const (
	DefaultCompression = gzip.DefaultCompression
	NoCompression      = gzip.NoCompression
	BestSpeed          = gzip.BestSpeed
	BestCompression    = gzip.BestCompression
)

var gzipPools sync.Map // level -> *sync.Pool

func gzipPool(level int) *sync.Pool {
	if p, ok := gzipPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p := &sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(io.Discard, level)
			return w
		},
	}
	actual, _ := gzipPools.LoadOrStore(level, p)
	return actual.(*sync.Pool)
}

type gzipWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	return g.writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.writer.Write([]byte(s))
}

// Gzip compresses responses for clients that send Accept-Encoding: gzip.
func Gzip(level int) gin.HandlerFunc {
	pool := gzipPool(level)

	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		gz := pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)
		defer func() {
			_ = gz.Close()
			pool.Put(gz)
		}()

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")

		c.Writer = &gzipWriter{ResponseWriter: c.Writer, writer: gz}

		c.Next()
	}
}

// GzipWithExclusions is Gzip with path prefixes that bypass compression.
func GzipWithExclusions(level int, excludePrefixes []string) gin.HandlerFunc {
	compress := Gzip(level)
	return func(c *gin.Context) {
		for _, prefix := range excludePrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}
		compress(c)
	}
}
